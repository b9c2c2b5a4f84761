package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypes(t *testing.T) {
	err := NewNotFoundError("slot 3 is empty", nil)
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsValidationError(err))
	assert.Equal(t, "NOT_FOUND", err.Code)

	wrapped := fmt.Errorf("load: %w", NewStorageError("write failed", assert.AnError))
	assert.True(t, IsStorageError(wrapped))
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Contains(t, wrapped.Error(), "write failed")
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ctx", ErrorTypeError))

	err := WrapError(NewConflictError("menu showing", nil), "choose", ErrorTypeError)
	assert.True(t, IsConflictError(err))
	assert.Equal(t, "choose: menu showing", err.(*AppError).Message)

	plain := WrapError(assert.AnError, "save", ErrorTypeStorage)
	assert.True(t, IsStorageError(plain))
}
