package pcm

import (
	"context"
	"fmt"
)

// HwConfig is a complete, committed hardware configuration
type HwConfig struct {
	Access       Access
	Format       Format
	Rate         uint32
	Channels     uint32
	Periods      uint32
	BufferFrames uint32
}

// FrameBytes returns the size in bytes of one interleaved frame
func (c HwConfig) FrameBytes() int {
	return int(c.Channels) * c.Format.BytesPerSample()
}

// PeriodFrames returns the number of frames in one period
func (c HwConfig) PeriodFrames() uint32 {
	if c.Periods == 0 {
		return 0
	}
	return c.BufferFrames / c.Periods
}

func (c HwConfig) String() string {
	return fmt.Sprintf("%s %s %dHz %dch periods=%d buffer=%d",
		c.Access, c.Format, c.Rate, c.Channels, c.Periods, c.BufferFrames)
}

// Stream is an open playback handle. Implementations are not safe for
// concurrent use; one session owns a stream from open to close.
type Stream interface {
	// Name returns the device identifier the stream was opened with
	Name() string
	// Capabilities reports the full configuration space of the device
	Capabilities() (Capabilities, error)
	// Commit applies a complete configuration atomically
	Commit(cfg HwConfig) error
	// Prepare readies the stream for a write pass
	Prepare() error
	// Write writes interleaved frames and returns how many frames were accepted.
	// Fewer frames than offered is not an error.
	Write(p []byte) (int, error)
	// Drain blocks until buffered frames have played
	Drain() error
	// Drop discards buffered frames immediately
	Drop() error
	Close() error
}

// Opener opens named playback streams
type Opener interface {
	Open(ctx context.Context, name string) (Stream, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, name string) (Stream, error)

func (f OpenerFunc) Open(ctx context.Context, name string) (Stream, error) {
	return f(ctx, name)
}
