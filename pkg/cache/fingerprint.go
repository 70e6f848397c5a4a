package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/meridian-ai/agentcore/pkg/domain"
)

// Params is the subset of sampling parameters that participate in the cache
// fingerprint.
type Params struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Fingerprint deterministically hashes (model, normalized messages,
// params), excluding nonces, user ids and timestamps. Permuting
// key-insertion order anywhere upstream never changes the result, because
// the only inputs here are the ordered message slice and three scalar
// params — there is no map serialization step to be order-sensitive about.
func Fingerprint(model string, turns []domain.ChatTurn, p Params) string {
	var b strings.Builder
	b.WriteString("model=")
	b.WriteString(model)
	b.WriteString("|msgs=")
	for _, t := range turns {
		b.WriteString(string(t.Role))
		b.WriteByte(':')
		b.WriteString(normalizeContent(t.Content))
		b.WriteByte(';')
	}
	b.WriteString("|temp=")
	b.WriteString(formatFloat(p.Temperature))
	b.WriteString("|topp=")
	b.WriteString(formatFloat(p.TopP))
	b.WriteString("|maxtok=")
	b.WriteString(strconv.Itoa(p.MaxTokens))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func normalizeContent(s string) string {
	return strings.TrimSpace(s)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
