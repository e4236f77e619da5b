//go:build cgo

package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"pcmtone.click/internal/pcm"
)

var otoCapabilities = pcm.Capabilities{
	Accesses:     []pcm.Access{pcm.AccessRWInterleaved},
	Formats:      []pcm.Format{pcm.FormatU8, pcm.FormatS16LE, pcm.FormatFloat32LE},
	Rates:        pcm.Interval{Min: 8000, Max: 192000},
	Channels:     pcm.Interval{Min: 1, Max: 2},
	Periods:      pcm.Interval{Min: 2, Max: 16},
	BufferFrames: pcm.Interval{Min: 256, Max: MaxDeviceBufferFrames},
}

// oto allows a single context per process and its parameters cannot change
var otoShared struct {
	mu       sync.Mutex
	ctx      *oto.Context
	rate     uint32
	channels uint32
	format   pcm.Format
}

func otoFormat(f pcm.Format) (oto.Format, bool) {
	switch f {
	case pcm.FormatU8:
		return oto.FormatUnsignedInt8, true
	case pcm.FormatS16LE:
		return oto.FormatSignedInt16LE, true
	case pcm.FormatFloat32LE:
		return oto.FormatFloat32LE, true
	default:
		return 0, false
	}
}

func sharedOtoContext(cfg pcm.HwConfig) (*oto.Context, error) {
	otoShared.mu.Lock()
	defer otoShared.mu.Unlock()

	if otoShared.ctx != nil {
		if otoShared.rate != cfg.Rate || otoShared.channels != cfg.Channels || otoShared.format != cfg.Format {
			return nil, fmt.Errorf("%w: oto context already running at %s %dHz %dch",
				ErrDeviceBusy, otoShared.format, otoShared.rate, otoShared.channels)
		}
		return otoShared.ctx, nil
	}

	format, ok := otoFormat(cfg.Format)
	if !ok {
		return nil, fmt.Errorf("oto cannot play %s", cfg.Format)
	}

	op := &oto.NewContextOptions{
		SampleRate:   int(cfg.Rate),
		ChannelCount: int(cfg.Channels),
		Format:       format,
		BufferSize:   time.Duration(cfg.BufferFrames) * time.Second / time.Duration(cfg.Rate),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoShared.ctx = ctx
	otoShared.rate = cfg.Rate
	otoShared.channels = cfg.Channels
	otoShared.format = cfg.Format
	slog.Info("oto context initialized", "rate", cfg.Rate, "channels", cfg.Channels, "format", cfg.Format.String())
	return ctx, nil
}

// OtoBackend plays through the ebitengine/oto default output
type OtoBackend struct {
	closed bool
	mutex  sync.Mutex
}

// NewOtoBackend creates an OtoBackend
func NewOtoBackend() *OtoBackend {
	slog.Debug("creating new OtoBackend")
	return &OtoBackend{}
}

func newOtoBackend() (Backend, error) {
	return NewOtoBackend(), nil
}

// Name returns "oto"
func (ob *OtoBackend) Name() string {
	return BackendOto
}

// Devices reports the single default output oto can reach
func (ob *OtoBackend) Devices(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{
		ID:           DefaultDevice,
		Name:         DefaultDevice,
		Default:      true,
		Capabilities: otoCapabilities,
	}}, nil
}

// Open accepts only the default device
func (ob *OtoBackend) Open(ctx context.Context, name string) (pcm.Stream, error) {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.closed {
		return nil, ErrBackendClosed
	}
	if !isDefaultName(name) {
		return nil, fmt.Errorf("%w: oto plays only to the default device, not %q", ErrDeviceNotFound, name)
	}
	slog.Debug("opened oto stream", "device", name)
	return &otoStream{name: name}, nil
}

// Close marks the backend closed. The process-wide oto context stays alive.
func (ob *OtoBackend) Close() error {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()
	ob.closed = true
	slog.Debug("OtoBackend closed")
	return nil
}

// otoStream pipes frames into an oto player
type otoStream struct {
	name   string
	ctx    *oto.Context
	cfg    pcm.HwConfig
	player *oto.Player
	pipeW  *io.PipeWriter
	closed bool
}

func (s *otoStream) Name() string { return s.name }

func (s *otoStream) Capabilities() (pcm.Capabilities, error) {
	if s.closed {
		return pcm.Capabilities{}, ErrStreamClosed
	}
	return otoCapabilities, nil
}

func (s *otoStream) Commit(cfg pcm.HwConfig) error {
	if s.closed {
		return ErrStreamClosed
	}
	ctx, err := sharedOtoContext(cfg)
	if err != nil {
		slog.Error("failed to configure oto output", "error", err)
		return err
	}
	s.ctx = ctx
	s.cfg = cfg
	return nil
}

func (s *otoStream) Prepare() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.ctx == nil {
		return ErrNotConfigured
	}
	s.release(io.ErrClosedPipe)

	r, w := io.Pipe()
	player := s.ctx.NewPlayer(r)
	player.SetBufferSize(int(s.cfg.BufferFrames) * s.cfg.FrameBytes())
	player.Play()

	s.player = player
	s.pipeW = w
	return nil
}

func (s *otoStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.pipeW == nil {
		return 0, ErrNotConfigured
	}
	frameBytes := s.cfg.FrameBytes()
	whole := len(p) / frameBytes * frameBytes
	n, err := s.pipeW.Write(p[:whole])
	if err != nil {
		return n / frameBytes, fmt.Errorf("oto write failed: %w", err)
	}
	return n / frameBytes, nil
}

func (s *otoStream) Drain() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.player == nil {
		return nil
	}
	_ = s.pipeW.Close()

	limit := time.Now().Add(time.Duration(s.cfg.BufferFrames)*time.Second/time.Duration(s.cfg.Rate) + time.Second)
	for s.player.IsPlaying() && time.Now().Before(limit) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.player.Err(); err != nil {
		return fmt.Errorf("oto player failed: %w", err)
	}
	s.release(nil)
	return nil
}

func (s *otoStream) Drop() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.release(io.ErrClosedPipe)
	return nil
}

// release stops and discards the current player
func (s *otoStream) release(pipeErr error) {
	if s.player == nil {
		return
	}
	s.player.Pause()
	if s.pipeW != nil {
		_ = s.pipeW.CloseWithError(pipeErr)
	}
	if err := s.player.Close(); err != nil {
		slog.Debug("oto player close returned error", "error", err)
	}
	s.player = nil
	s.pipeW = nil
}

func (s *otoStream) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.release(io.ErrClosedPipe)
	s.closed = true
	slog.Debug("oto stream closed", "device", s.name)
	return nil
}
