package upload

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("handler: %w", &Error{Code: CodeSessionNotFound, Message: "gone"})

	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, CodeSessionNotFound, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := internalError("Failed to record chunk", errors.New("disk full"))
	assert.Equal(t, "Failed to record chunk: disk full", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "disk full")
}
