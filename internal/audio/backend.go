package audio

import (
	"context"
	"errors"
	"fmt"

	"pcmtone.click/internal/pcm"
)

// Common errors for Backend implementations
var (
	ErrBackendNotAvailable = errors.New("audio backend not available")
	ErrBackendClosed       = errors.New("audio backend is closed")
	ErrDeviceNotFound      = errors.New("playback device not found")
	ErrDeviceBusy          = errors.New("playback device busy")
	ErrStreamClosed        = pcm.ErrStreamClosed
	ErrNotConfigured       = errors.New("stream has no committed configuration")
)

// MaxDeviceBufferFrames bounds the buffer the real backends advertise. It is
// what a drop can discard, so it stays well below any tone worth playing.
const MaxDeviceBufferFrames = 1 << 15

// DefaultDevice selects whatever device the backend considers its default
const DefaultDevice = "default"

// Backend is an audio system that can open playback streams.
// Implementations handle the actual playback mechanism (malgo, oto, system commands).
type Backend interface {
	pcm.Opener

	// Name returns the backend type, e.g. "malgo"
	Name() string

	// Devices lists the playback devices the backend can open
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// Close releases backend-wide resources. Streams must be closed first.
	Close() error
}

// DeviceInfo describes one playback device
type DeviceInfo struct {
	ID           string
	Name         string
	Default      bool
	Capabilities pcm.Capabilities
	// NativeFormats lists formats the hardware handles without conversion, when known
	NativeFormats []string
}

func (d DeviceInfo) String() string {
	marker := ""
	if d.Default {
		marker = " (default)"
	}
	return fmt.Sprintf("%s%s [%s]", d.Name, marker, d.ID)
}

func isDefaultName(name string) bool {
	return name == "" || name == DefaultDevice
}
