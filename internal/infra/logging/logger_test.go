package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "test", "debug")

	ctx := WithRequestID(context.Background(), "req-1")
	log.With(slog.String("component", "ledger")).InfoContext(ctx, "posted")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "ledger", rec["component"])
	assert.Equal(t, "test", rec["env"])
	assert.Equal(t, "posted", rec["msg"])
}

func TestContextHandler_NoRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "test", "info")

	log.InfoContext(context.Background(), "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	_, ok := rec["request_id"]
	assert.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
