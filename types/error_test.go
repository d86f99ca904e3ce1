package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrNotFound, "version not found")
	assert.Equal(t, "[NOT_FOUND] version not found", err.Error())

	withCause := NewError(ErrUpstream, "store unreachable").WithCause(errors.New("dial tcp"))
	assert.Contains(t, withCause.Error(), "dial tcp")
	assert.ErrorContains(t, withCause, "store unreachable")
}

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	inner := NewError(ErrConcurrencyConflict, "finalize race lost")
	wrapped := fmt.Errorf("finalize: %w", inner)

	assert.Equal(t, ErrConcurrencyConflict, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, ErrConcurrencyConflict))
	assert.False(t, IsCode(wrapped, ErrNotFound))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(NewError(ErrSchemaMismatch, "bad keys")))
	assert.True(t, IsRetryable(NewError(ErrUpstream, "timeout").WithRetryable(true)))
	assert.False(t, IsRetryable(errors.New("plain")))
}
