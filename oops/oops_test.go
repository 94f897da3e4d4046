package oops_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/scopedb/oops"
)

func TestRegistry_New(t *testing.T) {
	r := oops.NewRegistry()
	r.Register("NOTE_NOT_FOUND", oops.Definition{Message: "note %d does not exist", Status: http.StatusNotFound})
	r.Register("TITLE_REQUIRED", oops.Definition{Message: "title is required"})

	err := r.New("NOTE_NOT_FOUND", 42)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Equal(t, "note 42 does not exist", err.Message)
	assert.Equal(t, "[NOTE_NOT_FOUND] note 42 does not exist", err.Error())

	err = r.New("TITLE_REQUIRED")
	assert.Equal(t, http.StatusBadRequest, err.Status)
}

func TestRegistry_UnknownCode(t *testing.T) {
	err := oops.NewRegistry().New("MISSING")
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Contains(t, err.Message, "MISSING")
}

func TestAs_FindsWrappedError(t *testing.T) {
	cause := errors.New("constraint failed")
	friendly := oops.Text(http.StatusConflict, "title %q already used", "x").WithCause(cause)
	wrapped := fmt.Errorf("handler: %w", friendly)

	got, ok := oops.As(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, got.Status)
	assert.ErrorIs(t, wrapped, cause)

	_, ok = oops.As(cause)
	assert.False(t, ok)
}

func TestDefaultRegistry(t *testing.T) {
	oops.Register("RATE_LIMITED", http.StatusTooManyRequests, "slow down")
	assert.Equal(t, http.StatusTooManyRequests, oops.New("RATE_LIMITED").Status)
}
