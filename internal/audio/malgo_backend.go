//go:build cgo

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"pcmtone.click/internal/pcm"
)

// miniaudio converts format, rate and channel layout in software, so the
// configuration space is wider than what the hardware reports natively.
var malgoCapabilities = pcm.Capabilities{
	Accesses:     []pcm.Access{pcm.AccessRWInterleaved},
	Formats:      []pcm.Format{pcm.FormatU8, pcm.FormatS16LE, pcm.FormatS32LE, pcm.FormatFloat32LE},
	Rates:        pcm.Interval{Min: 8000, Max: 384000},
	Channels:     pcm.Interval{Min: 1, Max: 254},
	Periods:      pcm.Interval{Min: 2, Max: 32},
	BufferFrames: pcm.Interval{Min: 64, Max: MaxDeviceBufferFrames},
}

func malgoFormat(f pcm.Format) (malgo.FormatType, bool) {
	switch f {
	case pcm.FormatU8:
		return malgo.FormatU8, true
	case pcm.FormatS16LE:
		return malgo.FormatS16, true
	case pcm.FormatS32LE:
		return malgo.FormatS32, true
	case pcm.FormatFloat32LE:
		return malgo.FormatF32, true
	default:
		return malgo.FormatUnknown, false
	}
}

func malgoFormatName(f malgo.FormatType) string {
	switch f {
	case malgo.FormatU8:
		return "u8"
	case malgo.FormatS16:
		return "s16le"
	case malgo.FormatS24:
		return "s24le"
	case malgo.FormatS32:
		return "s32le"
	case malgo.FormatF32:
		return "f32le"
	default:
		return "unknown"
	}
}

// MalgoBackend plays through miniaudio
type MalgoBackend struct {
	context *Context
	closed  bool
	mutex   sync.Mutex
}

// NewMalgoBackend creates a MalgoBackend; the miniaudio context is created on first use
func NewMalgoBackend() *MalgoBackend {
	slog.Debug("creating new MalgoBackend")
	return &MalgoBackend{}
}

func newMalgoBackend() (Backend, error) {
	return NewMalgoBackend(), nil
}

// Name returns "malgo"
func (mb *MalgoBackend) Name() string {
	return BackendMalgo
}

func (mb *MalgoBackend) ensureContext() (*Context, error) {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		return nil, ErrBackendClosed
	}
	if mb.context == nil {
		ctx, err := NewContext()
		if err != nil {
			return nil, err
		}
		mb.context = ctx
	}
	return mb.context, nil
}

// Devices lists miniaudio playback devices
func (mb *MalgoBackend) Devices(ctx context.Context) ([]DeviceInfo, error) {
	audioCtx, err := mb.ensureContext()
	if err != nil {
		return nil, err
	}
	infos, err := audioCtx.PlaybackDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		info := &infos[i]
		native := make([]string, 0, info.FormatCount)
		for _, df := range info.Formats[:info.FormatCount] {
			native = append(native, fmt.Sprintf("%s/%dch/%dHz", malgoFormatName(df.Format), df.Channels, df.SampleRate))
		}
		devices = append(devices, DeviceInfo{
			ID:            info.ID.String(),
			Name:          info.Name(),
			Default:       info.IsDefault != 0,
			Capabilities:  malgoCapabilities,
			NativeFormats: native,
		})
	}
	return devices, nil
}

// Open resolves a device by name or ID; "default" selects the system default
func (mb *MalgoBackend) Open(ctx context.Context, name string) (pcm.Stream, error) {
	slog.Debug("opening malgo playback device", "device", name)

	audioCtx, err := mb.ensureContext()
	if err != nil {
		return nil, err
	}

	stream := &malgoStream{backend: mb, name: name}
	if isDefaultName(name) {
		return stream, nil
	}

	infos, err := audioCtx.PlaybackDevices()
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].Name() == name || infos[i].ID.String() == name {
			id := infos[i].ID
			stream.deviceID = &id
			slog.Debug("malgo device resolved", "device", name, "id", id.String())
			return stream, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
}

// Close releases the miniaudio context
func (mb *MalgoBackend) Close() error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	if mb.closed {
		slog.Debug("MalgoBackend already closed")
		return nil
	}
	mb.closed = true

	if mb.context != nil {
		if err := mb.context.Close(); err != nil {
			slog.Error("error closing audio context", "error", err)
			return fmt.Errorf("error closing audio context: %w", err)
		}
	}

	slog.Debug("MalgoBackend closed")
	return nil
}

// malgoStream feeds a miniaudio device callback from a frame ring
type malgoStream struct {
	backend  *MalgoBackend
	name     string
	deviceID *malgo.DeviceID
	device   *malgo.Device
	cfg      pcm.HwConfig
	ring     *frameRing
	started  bool
	closed   bool
}

func (s *malgoStream) Name() string { return s.name }

func (s *malgoStream) Capabilities() (pcm.Capabilities, error) {
	if s.closed {
		return pcm.Capabilities{}, ErrStreamClosed
	}
	return malgoCapabilities, nil
}

func (s *malgoStream) Commit(cfg pcm.HwConfig) error {
	if s.closed {
		return ErrStreamClosed
	}
	format, ok := malgoFormat(cfg.Format)
	if !ok {
		return fmt.Errorf("malgo cannot play %s", cfg.Format)
	}
	audioCtx, err := s.backend.ensureContext()
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = cfg.Channels
	deviceConfig.SampleRate = cfg.Rate
	deviceConfig.PeriodSizeInFrames = cfg.PeriodFrames()
	deviceConfig.Periods = cfg.Periods
	deviceConfig.Alsa.NoMMap = 1
	if s.deviceID != nil {
		deviceConfig.Playback.DeviceID = s.deviceID.Pointer()
	}

	ring := newFrameRing(int(cfg.BufferFrames), cfg.FrameBytes())
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			ring.read(out)
		},
	}

	device, err := malgo.InitDevice(audioCtx.GetContext().Context, deviceConfig, callbacks)
	if err != nil {
		slog.Error("failed to initialize playback device", "device", s.name, "error", err)
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if s.device != nil {
		s.device.Uninit()
	}
	s.device = device
	s.ring = ring
	s.cfg = cfg
	s.started = false

	slog.Debug("malgo device configured", "device", s.name, "config", cfg.String(), "device_rate", device.SampleRate())
	return nil
}

func (s *malgoStream) Prepare() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.device == nil {
		return ErrNotConfigured
	}
	s.ring.reset()
	if !s.started {
		if err := s.device.Start(); err != nil {
			slog.Error("failed to start playback device", "device", s.name, "error", err)
			return fmt.Errorf("failed to start playback device: %w", err)
		}
		s.started = true
	}
	return nil
}

// bufferDuration is how long the ring takes to play out completely
func (s *malgoStream) bufferDuration() time.Duration {
	return time.Duration(s.cfg.BufferFrames) * time.Second / time.Duration(s.cfg.Rate)
}

func (s *malgoStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.device == nil || !s.started {
		return 0, ErrNotConfigured
	}
	// a ring that does not move within two buffer lengths counts as no progress
	return s.ring.write(p, 2*s.bufferDuration()+100*time.Millisecond)
}

func (s *malgoStream) Drain() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.device == nil || !s.started {
		return nil
	}
	if !s.ring.waitEmpty(2*s.bufferDuration() + time.Second) {
		slog.Warn("timed out draining playback device", "device", s.name, "buffered_bytes", s.ring.buffered())
	}
	// the last period is still in the device after the ring empties
	time.Sleep(time.Duration(s.cfg.PeriodFrames()) * time.Second / time.Duration(s.cfg.Rate))
	return s.stop()
}

func (s *malgoStream) Drop() error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.ring != nil {
		s.ring.reset()
	}
	return s.stop()
}

func (s *malgoStream) stop() error {
	if s.device == nil || !s.started {
		return nil
	}
	s.started = false
	if err := s.device.Stop(); err != nil {
		slog.Error("failed to stop playback device", "device", s.name, "error", err)
		return fmt.Errorf("failed to stop playback device: %w", err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	if s.ring != nil {
		s.ring.close()
	}
	if s.device != nil {
		if s.started {
			_ = s.device.Stop()
		}
		s.device.Uninit()
		s.device = nil
	}
	slog.Debug("malgo stream closed", "device", s.name)
	return nil
}
