// Package apperr defines the error taxonomy shared by every layer of the
// orchestration core. It mirrors the tagged-error-with-cause shape used by
// the wider agent-framework ecosystem (a single struct carrying a stable
// Kind plus an optional wrapped cause) rather than one Go type per failure
// mode, so callers can switch on Kind without a type-assertion per package.
package apperr

import "fmt"

// Kind is a stable error classification. Values match the taxonomy in the
// orchestration spec exactly — callers should switch on Kind, not on string
// matching Error().
type Kind string

const (
	KindRateLimited           Kind = "rate_limited"
	KindAuthentication        Kind = "authentication"
	KindModelNotSupported     Kind = "model_not_supported"
	KindContextWindowExceeded Kind = "context_window_exceeded"
	KindValidation            Kind = "validation"
	KindProvider              Kind = "provider"
	KindCircuitOpen           Kind = "circuit_open"
	KindCompetitiveTimeout    Kind = "competitive_timeout"
	KindConsensusNotReached   Kind = "consensus_not_reached"
	KindOrchestrationTimeout  Kind = "orchestration_timeout"
)

// Error is the single error type used across the core.
type Error struct {
	Kind     Kind
	Message  string
	Provider string
	// Retryable classifies a Provider-kind failure as retryable (429/5xx/
	// transport reset) vs terminal (auth/validation/not-found/context-window).
	Retryable  bool
	StatusCode int
	Cause      error

	// Optional structured payloads used by specific kinds.
	KnownModels []string      // KindModelNotSupported
	RetryAfterMs int64        // KindRateLimited
	Estimated, Limit int      // KindContextWindowExceeded
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a plain classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
