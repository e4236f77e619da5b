//go:build cgo

package audio

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// Context wraps malgo.AllocatedContext with lifecycle management and logging
type Context struct {
	ctx *malgo.AllocatedContext
}

// NewContext initializes a miniaudio context that logs through slog
func NewContext() (*Context, error) {
	slog.Debug("initializing audio context")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, err)
	}

	slog.Info("audio context initialized successfully")
	return &Context{ctx: ctx}, nil
}

// PlaybackDevices enumerates playback devices known to the context
func (c *Context) PlaybackDevices() ([]malgo.DeviceInfo, error) {
	if c.ctx == nil {
		return nil, ErrBackendClosed
	}
	infos, err := c.ctx.Devices(malgo.Playback)
	if err != nil {
		slog.Error("failed to enumerate playback devices", "error", err)
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}
	slog.Debug("enumerated playback devices", "count", len(infos))
	return infos, nil
}

// Close uninitializes and frees the context
func (c *Context) Close() error {
	if c.ctx == nil {
		slog.Debug("audio context already closed")
		return nil
	}

	slog.Debug("closing audio context")

	// malgo requires both Uninit() and Free()
	if err := c.ctx.Uninit(); err != nil {
		slog.Error("failed to uninitialize audio context", "error", err)
		return err
	}

	c.ctx.Free()
	c.ctx = nil

	slog.Info("audio context closed successfully")
	return nil
}

// GetContext returns the underlying malgo context for device operations
func (c *Context) GetContext() *malgo.AllocatedContext {
	return c.ctx
}

// IsValid checks if the context is still valid
func (c *Context) IsValid() bool {
	return c.ctx != nil
}
