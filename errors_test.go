package locopilot

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientError_Unwrap(t *testing.T) {
	err := &ClientError{Reason: "missing required property 'path'", Err: ErrValidation}
	assert.Contains(t, err.Error(), "missing required property")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, IsClientError(err))
	assert.False(t, IsSystemError(err))
}

func TestClientError_Wrapped(t *testing.T) {
	inner := &ClientError{Reason: "bad enum value"}
	wrapped := fmt.Errorf("dispatch: %w", inner)
	assert.True(t, IsClientError(wrapped))
	var ce *ClientError
	require.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "bad enum value", ce.Reason)
}

func TestSystemError_HidesDetail(t *testing.T) {
	inner := errors.New("docker daemon socket permission denied")
	err := &SystemError{Err: inner}
	assert.NotContains(t, err.Error(), "docker")
	assert.True(t, IsSystemError(err))
	assert.True(t, errors.Is(err, inner))
}

func TestWrapJSONParseError(t *testing.T) {
	err := wrapJSONParseError(errors.New("unexpected end of JSON input"))
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "json parse error")
}
