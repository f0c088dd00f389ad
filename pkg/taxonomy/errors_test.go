package taxonomy

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwagent/pkg/proto"
)

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTypeTransient.String())
	assert.Equal(t, "rate_limit", ErrorTypeRateLimit.String())
	assert.Equal(t, "validation", ErrorTypeValidation.String())
	assert.Equal(t, "semantic", ErrorTypeSemantic.String())
	assert.Equal(t, "auth", ErrorTypeAuth.String())
	assert.Equal(t, "fatal", ErrorTypeFatal.String())
	assert.Equal(t, "unknown", ErrorTypeUnknown.String())
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeTransient, ErrorTypeRateLimit, ErrorTypeUnknown}
	for _, et := range retryable {
		err := NewError(et, "boom")
		assert.True(t, err.IsRetryable(), "expected %s retryable", et)
	}

	blocked := []ErrorType{ErrorTypeValidation, ErrorTypeSemantic, ErrorTypeAuth, ErrorTypeFatal}
	for _, et := range blocked {
		err := NewError(et, "boom")
		assert.False(t, err.IsRetryable(), "expected %s not retryable", et)
	}
}

func TestResultStatusMapping(t *testing.T) {
	assert.Equal(t, proto.ResultTransient, NewError(ErrorTypeTransient, "x").ResultStatus())
	assert.Equal(t, proto.ResultTransient, NewError(ErrorTypeRateLimit, "x").ResultStatus())
	assert.Equal(t, proto.ResultSemantic, NewError(ErrorTypeValidation, "x").ResultStatus())
	assert.Equal(t, proto.ResultSemantic, NewError(ErrorTypeSemantic, "x").ResultStatus())
	assert.Equal(t, proto.ResultFatal, NewError(ErrorTypeAuth, "x").ResultStatus())
	assert.Equal(t, proto.ResultFatal, NewError(ErrorTypeFatal, "x").ResultStatus())
}

func TestUnwrapAndIs(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewErrorWithCause(ErrorTypeTransient, cause, "query dispatch failed")

	require.True(t, errors.Is(err, cause))
	assert.True(t, Is(err, ErrorTypeTransient))
	assert.False(t, Is(err, ErrorTypeSemantic))
	assert.Equal(t, ErrorTypeTransient, TypeOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestIsThroughWrapping(t *testing.T) {
	inner := Semanticf("object %s does not exist", "RAW.EVENTS.T1")
	wrapped := fmt.Errorf("dispatch: %w", inner)

	assert.True(t, Is(wrapped, ErrorTypeSemantic))
	assert.Equal(t, ErrorTypeSemantic, TypeOf(wrapped))
}

func TestRetryConfigLookup(t *testing.T) {
	cfg := NewError(ErrorTypeRateLimit, "429").GetRetryConfig()
	assert.Equal(t, DefaultRateLimitRetries, cfg.MaxRetries)
	assert.True(t, cfg.Jitter)

	cfg = NewError(ErrorTypeSemantic, "no").GetRetryConfig()
	assert.Zero(t, cfg.MaxRetries)
}

func TestRetriesExhausted(t *testing.T) {
	cause := NewError(ErrorTypeTransient, "timeout")
	err := NewRetriesExhaustedError(cause, 3)

	assert.Contains(t, err.Error(), "retries exhausted after 3 attempts")
	assert.True(t, errors.Is(err, cause))
}
