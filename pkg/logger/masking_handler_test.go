package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskingHandler_MasksSensitiveAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewTextHandler(&buf, nil)))

	log.Info("connecting",
		slog.String("token", "123:secret-token"),
		slog.String("password", "hunter2"),
		slog.String("api_key", "abc"),
		slog.String("dsn", "postgres://u:p@host/db"),
		slog.String("addr", "localhost:6379"),
	)

	out := buf.String()
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "postgres://")
	assert.Contains(t, out, "localhost:6379")
	assert.Contains(t, out, "***")
}

func TestMaskingHandler_CaseInsensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewTextHandler(&buf, nil)))

	log.Info("msg", slog.String("Token", "leaky"))

	assert.NotContains(t, buf.String(), "leaky")
}

func TestMaskingHandler_Enabled(t *testing.T) {
	h := NewMaskingHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
