package errors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_PreservesSentinel(t *testing.T) {
	err := Wrapf(ErrRateLimitExceeded, "serpapi returned %d", 429)

	assert.True(t, Is(err, ErrRateLimitExceeded))
	assert.Equal(t, "serpapi returned 429: rate limit exceeded", err.Error())
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestValidationError_MatchesInvalidInput(t *testing.T) {
	err := Wrap(NewValidationError("start_quarter", "expected YYYYqN", "2024-1"), "parse range")

	assert.True(t, Is(err, ErrInvalidInput))

	var ve *ValidationError
	assert.True(t, As(err, &ve))
	assert.Equal(t, "start_quarter", ve.Field)
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.Nil(t, m.ToError())

	m.Add(nil)
	m.Add(ErrTimeout)
	m.Add(ErrUnavailable)

	err := m.ToError()
	assert.Error(t, err)
	assert.True(t, Is(err, ErrTimeout))
	assert.True(t, Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "multiple errors (2)")
}

func TestRequestID(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	id, ok := RequestID(WithRequestID(context.Background(), "req-1"))
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}
