package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pcmtone.click/internal/pcm"
)

// NullCapabilities is the configuration space the null device reports by default
func NullCapabilities() pcm.Capabilities {
	return pcm.Capabilities{
		Accesses:     []pcm.Access{pcm.AccessRWInterleaved, pcm.AccessMMapInterleaved},
		Formats:      pcm.SupportedFormats(),
		Rates:        pcm.Interval{Min: 8000, Max: 192000},
		RateSet:      []uint32{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 192000},
		Channels:     pcm.Interval{Min: 1, Max: 8},
		Periods:      pcm.Interval{Min: 2, Max: 32},
		BufferFrames: pcm.Interval{Min: 64, Max: 1 << 20},
	}
}

// NullBackend discards audio. It simulates a device with a configurable
// capability space and per-call write limit, and records what was played.
type NullBackend struct {
	// Caps is the capability space reported by every stream
	Caps pcm.Capabilities
	// MaxFramesPerWrite limits how many frames one Write accepts; 0 is unlimited
	MaxFramesPerWrite int
	// OpenErr, CommitErr and WriteErr inject failures
	OpenErr   error
	CommitErr error
	WriteErr  error

	mutex   sync.Mutex
	streams []*NullStream
	closed  bool
}

// NewNullBackend creates a null backend with NullCapabilities
func NewNullBackend() *NullBackend {
	slog.Debug("creating new NullBackend")
	return &NullBackend{Caps: NullCapabilities()}
}

// Name returns "null"
func (nb *NullBackend) Name() string {
	return BackendNull
}

// Devices reports a single simulated device
func (nb *NullBackend) Devices(ctx context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{
		ID:           "null",
		Name:         "null output",
		Default:      true,
		Capabilities: nb.Caps,
	}}, nil
}

// Open returns a new simulated stream for any device name
func (nb *NullBackend) Open(ctx context.Context, name string) (pcm.Stream, error) {
	nb.mutex.Lock()
	defer nb.mutex.Unlock()

	if nb.closed {
		return nil, ErrBackendClosed
	}
	if nb.OpenErr != nil {
		return nil, nb.OpenErr
	}

	stream := &NullStream{backend: nb, name: name}
	nb.streams = append(nb.streams, stream)
	slog.Debug("opened null stream", "device", name)
	return stream, nil
}

// Streams returns every stream opened so far
func (nb *NullBackend) Streams() []*NullStream {
	nb.mutex.Lock()
	defer nb.mutex.Unlock()
	return append([]*NullStream(nil), nb.streams...)
}

// LastStream returns the most recently opened stream, or nil
func (nb *NullBackend) LastStream() *NullStream {
	nb.mutex.Lock()
	defer nb.mutex.Unlock()
	if len(nb.streams) == 0 {
		return nil
	}
	return nb.streams[len(nb.streams)-1]
}

// Close marks the backend closed
func (nb *NullBackend) Close() error {
	nb.mutex.Lock()
	defer nb.mutex.Unlock()
	nb.closed = true
	return nil
}

// NullStream records the frames written to it
type NullStream struct {
	backend *NullBackend
	name    string

	mutex    sync.Mutex
	config   *pcm.HwConfig
	data     bytes.Buffer
	prepares int
	writes   int
	drained  bool
	dropped  bool
	closed   bool
}

func (s *NullStream) Name() string { return s.name }

func (s *NullStream) Capabilities() (pcm.Capabilities, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return pcm.Capabilities{}, ErrStreamClosed
	}
	return s.backend.Caps, nil
}

func (s *NullStream) Commit(cfg pcm.HwConfig) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if s.backend.CommitErr != nil {
		return s.backend.CommitErr
	}
	s.config = &cfg
	return nil
}

func (s *NullStream) Prepare() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if s.config == nil {
		return ErrNotConfigured
	}
	s.prepares++
	s.dropped = false
	s.drained = false
	return nil
}

func (s *NullStream) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return 0, ErrStreamClosed
	}
	if s.config == nil {
		return 0, ErrNotConfigured
	}
	s.writes++
	if s.backend.WriteErr != nil {
		return 0, s.backend.WriteErr
	}

	frameBytes := s.config.FrameBytes()
	frames := len(p) / frameBytes
	if limit := s.backend.MaxFramesPerWrite; limit > 0 && frames > limit {
		frames = limit
	}
	s.data.Write(p[:frames*frameBytes])
	return frames, nil
}

func (s *NullStream) Drain() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.drained = true
	return nil
}

func (s *NullStream) Drop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.dropped = true
	return nil
}

func (s *NullStream) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	return nil
}

// Config returns the committed configuration, if any
func (s *NullStream) Config() (pcm.HwConfig, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.config == nil {
		return pcm.HwConfig{}, false
	}
	return *s.config, true
}

// Bytes returns a copy of everything written
func (s *NullStream) Bytes() []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return bytes.Clone(s.data.Bytes())
}

// NullStats summarizes the calls the stream received
type NullStats struct {
	Prepares int
	Writes   int
	Drained  bool
	Dropped  bool
	Closed   bool
}

// Stats returns call counters and final flags
func (s *NullStream) Stats() NullStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return NullStats{
		Prepares: s.prepares,
		Writes:   s.writes,
		Drained:  s.drained,
		Dropped:  s.dropped,
		Closed:   s.closed,
	}
}

func (s *NullStream) String() string {
	cfg, ok := s.Config()
	if !ok {
		return fmt.Sprintf("null stream %s (unconfigured)", s.name)
	}
	return fmt.Sprintf("null stream %s %s", s.name, cfg)
}
