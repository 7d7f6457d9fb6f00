package errs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFatalKindsClassification(t *testing.T) {
	assert.True(t, OutOfOrderEvent.Fatal())
	assert.True(t, ResourceExhausted.Fatal())
	assert.True(t, SchemaError.Fatal())
	assert.False(t, InvalidOrder.Fatal())
	assert.False(t, GuardBlocked.Fatal())
}

func TestNewFormatsMessage(t *testing.T) {
	err := New(InvalidOrder, "order %s is missing %s", "o1", "price")
	assert.Equal(t, "order o1 is missing price", err.Error())
	assert.Equal(t, InvalidOrder, err.Kind())
	assert.False(t, err.Fatal())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := New(InvalidOrder, "root cause")
	wrapped := Wrap(SchemaError, cause, "wrapped: %s", "context")
	assert.Equal(t, SchemaError, wrapped.Kind())
	assert.NotNil(t, wrapped.Unwrap())
}

func TestIsMatchesKind(t *testing.T) {
	err := New(GuardBlocked, "blocked")
	assert.True(t, Is(err, GuardBlocked))
	assert.False(t, Is(err, InvalidOrder))
	assert.False(t, Is(assertPlainError{}, GuardBlocked))
}

type assertPlainError struct{}

func (assertPlainError) Error() string { return "plain" }
