package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"pcmtone.click/internal/audio"
)

// DeviceLock keeps two pcmtone processes from configuring the same device
type DeviceLock struct {
	device string
	flock  *flock.Flock
}

// NewDeviceLock creates a lock backed by the file at path
func NewDeviceLock(device, path string) *DeviceLock {
	slog.Debug("creating device lock", "device", device, "file_path", path)
	return &DeviceLock{device: device, flock: flock.New(path)}
}

// Acquire takes the lock without blocking. A device held by another process
// yields audio.ErrDeviceBusy.
func (l *DeviceLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		slog.Error("error during try-lock attempt", "file_path", l.flock.Path(), "error", err)
		return fmt.Errorf("failed to lock device %s: %w", l.device, err)
	}
	if !locked {
		slog.Warn("device is locked by another process", "device", l.device, "file_path", l.flock.Path())
		return fmt.Errorf("%w: %s", audio.ErrDeviceBusy, l.device)
	}

	slog.Debug("device lock acquired", "device", l.device)
	return nil
}

// Release drops the lock
func (l *DeviceLock) Release() {
	if err := l.flock.Unlock(); err != nil {
		slog.Error("failed to release device lock", "device", l.device, "error", err)
		return
	}
	slog.Debug("device lock released", "device", l.device)
}
