package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsAPIErrorUnwraps(t *testing.T) {
	// Services wrap repository errors; the taxonomy must survive that.
	wrapped := fmt.Errorf("resolving envelope: %w", ErrNotFound)

	got := AsAPIError(wrapped)
	assert.Equal(t, "not_found", got.Code)
	assert.Equal(t, http.StatusNotFound, got.StatusCode)
	assert.True(t, IsAPIError(wrapped))
}

func TestAsAPIErrorHidesUnknownErrors(t *testing.T) {
	got := AsAPIError(errors.New("pq: connection refused"))
	assert.Equal(t, "internal_error", got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
	assert.False(t, IsAPIError(errors.New("plain")))
}
