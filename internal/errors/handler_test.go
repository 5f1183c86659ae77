package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandle_AppErrorUserMessage(t *testing.T) {
	h := NewHandler(testLogger(), false)

	msg, retryable := h.Handle(context.Background(), NewQuotaExceededError())
	assert.Equal(t, "You have used all your credits for today. Come back tomorrow!", msg)
	assert.False(t, retryable)

	msg, retryable = h.Handle(context.Background(), NewDatabaseError(errors.New("conn refused")))
	assert.Equal(t, "A temporary problem occurred. Please try again later.", msg)
	assert.True(t, retryable)
}

func TestHandle_WrappedAppError(t *testing.T) {
	h := NewHandler(testLogger(), false)

	wrapped := fmt.Errorf("handling photo: %w", NewUsageError("/ban <user_id>"))
	msg, _ := h.Handle(context.Background(), wrapped)
	assert.Equal(t, "Usage: /ban <user_id>", msg)
}

func TestHandle_UnknownErrorFallsBack(t *testing.T) {
	h := NewHandler(testLogger(), false)

	msg, retryable := h.Handle(context.Background(), errors.New("boom"))
	assert.Equal(t, "Something went wrong. Please try again later.", msg)
	assert.False(t, retryable)
}

func TestHandle_NilError(t *testing.T) {
	h := NewHandler(testLogger(), false)

	msg, retryable := h.Handle(context.Background(), nil)
	assert.Empty(t, msg)
	assert.False(t, retryable)
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewDatabaseError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "E200", err.Code)
}
