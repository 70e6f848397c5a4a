package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindProvider, "upstream failed", cause)
	assert.Contains(t, err.Error(), "provider")
	assert.Contains(t, err.Error(), "upstream failed")
	assert.Contains(t, err.Error(), "boom")
}

func TestError_MessageOmitsCauseWhenAbsent(t *testing.T) {
	err := New(KindValidation, "bad strategy")
	assert.Equal(t, "validation: bad strategy", err.Error())
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(KindRateLimited, "no tokens", cause)
	require.Equal(t, cause, err.Unwrap())
}

func TestIs_MatchesWrappedKind(t *testing.T) {
	err := New(KindCircuitOpen, "breaker open")
	assert.True(t, Is(err, KindCircuitOpen))
	assert.False(t, Is(err, KindProvider))
}

func TestIs_FollowsStandardUnwrapChain(t *testing.T) {
	inner := New(KindContextWindowExceeded, "too big")
	outer := fmt.Errorf("calling model: %w", inner)
	assert.True(t, Is(outer, KindContextWindowExceeded))
}

func TestIs_FalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), KindAuthentication))
}
