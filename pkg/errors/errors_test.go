package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndWrap(t *testing.T) {
	base := New(ErrorTypeConnection, "connection refused")
	assert.Equal(t, ErrorTypeConnection, base.Type)
	assert.Contains(t, base.Error(), "connection refused")
	assert.NotEmpty(t, base.Stack)

	wrapped := Wrap(base, ErrorTypeHandler, "query failed")
	assert.Equal(t, ErrorTypeHandler, wrapped.Type)
	assert.Contains(t, wrapped.Error(), "query failed")
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.ErrorIs(t, wrapped, base)

	// The original stack is preserved across wrapping.
	assert.Equal(t, base.Stack, wrapped.Stack)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "ignored"))
}

func TestWrap_ForeignError(t *testing.T) {
	err := Wrapf(fmt.Errorf("driver: bad connection"), ErrorTypeConnection, "connect to %s failed", "db.internal")
	require.NotNil(t, err)
	assert.Equal(t, ErrorTypeConnection, err.Type)
	assert.Contains(t, err.Error(), "db.internal")
	assert.Contains(t, err.Error(), "driver: bad connection")
	assert.NotEmpty(t, err.Stack)
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeTimeout, "deadline elapsed")
	assert.True(t, IsType(err, ErrorTypeTimeout))
	assert.False(t, IsType(err, ErrorTypeHandler))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeTimeout))
	assert.False(t, IsType(nil, ErrorTypeTimeout))

	// The outermost classification wins.
	wrapped := Wrap(err, ErrorTypeHandler, "task failed")
	assert.True(t, IsType(wrapped, ErrorTypeHandler))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeValidation, TypeOf(New(ErrorTypeValidation, "bad query")))
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeTimeout, "t")))
	assert.True(t, IsRetryable(New(ErrorTypeConnection, "c")))
	assert.True(t, IsRetryable(New(ErrorTypeRateLimit, "r")))
	assert.False(t, IsRetryable(New(ErrorTypeValidation, "v")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeData, "row decode failed").
		WithDetail("table", "events").
		WithDetail("row", 42)

	assert.Equal(t, "events", err.Details["table"])
	assert.Equal(t, 42, err.Details["row"])
}
