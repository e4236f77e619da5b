package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLevelHandler_DifferentLevels(t *testing.T) {
	var stderrBuf, fileBuf bytes.Buffer

	logger := slog.New(NewMultiLevelHandler(
		slog.NewTextHandler(&stderrBuf, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&fileBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	stderr := stderrBuf.String()
	assert.Contains(t, stderr, "error message")
	assert.NotContains(t, stderr, "debug message")
	assert.NotContains(t, stderr, "info message")
	assert.NotContains(t, stderr, "warn message")

	file := fileBuf.String()
	for _, msg := range []string{"debug message", "info message", "warn message", "error message"} {
		assert.Contains(t, file, msg)
	}
}

func TestMultiLevelHandler_Enabled(t *testing.T) {
	h := NewMultiLevelHandler(
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	ctx := context.Background()
	assert.False(t, h.Enabled(ctx, slog.LevelDebug))
	assert.True(t, h.Enabled(ctx, slog.LevelInfo))

	assert.False(t, NewMultiLevelHandler().Enabled(ctx, slog.LevelError))
}

func TestMultiLevelHandler_AttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(NewMultiLevelHandler(
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	)).With("device", "hw:0").WithGroup("hw")

	logger.Info("configured", "rate", 48000)

	for _, out := range []string{a.String(), b.String()} {
		assert.Contains(t, out, "device=hw:0")
		assert.Contains(t, out, "hw.rate=48000")
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestMultiLevelHandler_FailureDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiLevelHandler(
		failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)},
		slog.NewTextHandler(&buf, nil),
	)

	err := slog.New(h).Handler().Handle(context.Background(), slog.NewRecord(testClock, slog.LevelInfo, "still logged", 0))
	assert.ErrorContains(t, err, "disk full")
	assert.Contains(t, buf.String(), "still logged")
}
