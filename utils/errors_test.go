package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, IsValidationError(NewValidationError("bad input")))
	assert.True(t, IsConflictError(NewConflictError("already there")))
	assert.True(t, IsInvalidStateError(NewInvalidStateError("closed")))
	assert.True(t, IsNotFoundError(NewNotFoundError("Emergency")))
	assert.True(t, IsForbiddenError(NewForbiddenError("not yours")))

	assert.False(t, IsConflictError(NewValidationError("bad input")))
	assert.False(t, IsNotFoundError(nil))
}

func TestServiceErrorUnwrapsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("while joining: %w", NewConflictError("duplicate responder"))

	serviceErr, ok := GetServiceError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeConflict, serviceErr.Code)
	assert.True(t, IsConflictError(wrapped))
}

func TestNotFoundErrorNamesTheResource(t *testing.T) {
	err := NewNotFoundError("Emergency")
	assert.Contains(t, err.Error(), "Emergency not found")
}
