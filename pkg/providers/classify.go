package providers

import (
	"strings"

	"github.com/meridian-ai/agentcore/pkg/apperr"
)

// retryableStatus reports whether an HTTP status code is retryable per the
// spec's taxonomy: 429, 500, 502, 503, 504.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ClassifyHTTPError turns a provider HTTP failure into a classified
// *apperr.Error. body is sniffed for an HTML auth-failure page, since some
// upstreams return a login/error HTML document (not JSON) on an expired or
// missing API key instead of a structured 401.
func ClassifyHTTPError(provider string, statusCode int, body string) *apperr.Error {
	if statusCode == 401 || statusCode == 403 || looksLikeAuthHTML(body) {
		return &apperr.Error{
			Kind:       apperr.KindAuthentication,
			Message:    "authentication failed",
			Provider:   provider,
			StatusCode: statusCode,
		}
	}

	if statusCode == 400 || statusCode == 422 {
		return &apperr.Error{
			Kind:       apperr.KindValidation,
			Message:    "request rejected by provider",
			Provider:   provider,
			StatusCode: statusCode,
		}
	}

	return &apperr.Error{
		Kind:       apperr.KindProvider,
		Message:    "provider request failed",
		Provider:   provider,
		StatusCode: statusCode,
		Retryable:  retryableStatus(statusCode),
	}
}

// looksLikeAuthHTML treats an HTML error document as an authentication
// failure when it mentions common auth-failure vocabulary. Upstreams
// sometimes front their API behind a gateway that emits an HTML page rather
// than a JSON error body on an invalid or expired credential.
func looksLikeAuthHTML(body string) bool {
	lower := strings.ToLower(body)
	if !strings.Contains(lower, "<html") {
		return false
	}
	for _, needle := range []string{"unauthorized", "forbidden", "invalid api key", "authentication", "sign in", "log in"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// ClassifyTransportError classifies a network-level failure (connection
// reset, timeout) as a retryable Provider error.
func ClassifyTransportError(provider string, cause error) *apperr.Error {
	return &apperr.Error{
		Kind:      apperr.KindProvider,
		Message:   "transport error",
		Provider:  provider,
		Retryable: true,
		Cause:     cause,
	}
}
