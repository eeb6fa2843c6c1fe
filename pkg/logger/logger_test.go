package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: FormatJSON, Output: &buf})

	log.Debug("hidden")
	log.Info("shown", "course", "CS 2063")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "CS 2063", entry["course"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Level: "debug", Format: FormatText, Output: &buf}).Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestFromContext(t *testing.T) {
	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	scoped := base.With("request_id", "r1")

	assert.Same(t, scoped, FromContext(WithContext(context.Background(), scoped), base))
	assert.Same(t, base, FromContext(context.Background(), base))
	assert.Same(t, slog.Default(), FromContext(context.Background(), nil))
}
