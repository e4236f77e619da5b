package pcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// State is a step in the playback lifecycle
type State int

const (
	StateOpened State = iota + 1
	StateConfigured
	StatePrepared
	StateWritten
	StateDropped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateConfigured:
		return "configured"
	case StatePrepared:
		return "prepared"
	case StateWritten:
		return "written"
	case StateDropped:
		return "dropped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultMaxStalls is how many consecutive zero-frame writes are tolerated
const DefaultMaxStalls = 8

// Session owns one configured stream from configuration to close
type Session struct {
	stream        Stream
	negotiated    Negotiated
	state         State
	maxStalls     int
	framesWritten int64
}

// SessionOption customizes a Session
type SessionOption func(*Session)

// WithMaxStalls sets how many consecutive writes may accept zero frames
// before WriteAll gives up with ErrNoProgress
func WithMaxStalls(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxStalls = n
		}
	}
}

// NewSession wraps a stream that has already been configured
func NewSession(stream Stream, negotiated Negotiated, opts ...SessionOption) *Session {
	s := &Session{
		stream:     stream,
		negotiated: negotiated,
		state:      StateConfigured,
		maxStalls:  DefaultMaxStalls,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachSession wraps a stream that is open but not yet configured
func AttachSession(stream Stream, opts ...SessionOption) *Session {
	s := NewSession(stream, Negotiated{}, opts...)
	s.state = StateOpened
	return s
}

// Configure negotiates hardware parameters for an attached stream
func (s *Session) Configure(n *Negotiator, req Request) error {
	if s.state != StateOpened {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.state, StateConfigured)
	}
	negotiated, err := n.Configure(s.stream, req)
	if err != nil {
		return err
	}
	s.negotiated = negotiated
	s.state = StateConfigured
	return nil
}

// OpenSession opens and negotiates a device and returns a configured session
func OpenSession(ctx context.Context, n *Negotiator, opener Opener, name string, req Request, opts ...SessionOption) (*Session, error) {
	stream, negotiated, err := n.Open(ctx, opener, name, req)
	if err != nil {
		return nil, err
	}
	return NewSession(stream, negotiated, opts...), nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return s.state
}

// Negotiated returns the configuration the device accepted
func (s *Session) Negotiated() Negotiated {
	return s.negotiated
}

// FramesWritten returns the total frames accepted across all passes
func (s *Session) FramesWritten() int64 {
	return s.framesWritten
}

func (s *Session) transition(to State, allowed ...State) error {
	for _, from := range allowed {
		if s.state == from {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.state, to)
}

// Prepare readies the stream for a write pass
func (s *Session) Prepare() error {
	if s.state != StateConfigured && s.state != StateWritten && s.state != StatePrepared {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.state, StatePrepared)
	}
	if err := s.stream.Prepare(); err != nil {
		slog.Error("failed to prepare stream", "device", s.stream.Name(), "error", err)
		return fmt.Errorf("failed to prepare stream: %w", err)
	}
	s.state = StatePrepared
	return nil
}

// WriteAll writes every frame in buf, continuing after partial writes.
// It returns the number of frames the device accepted.
func (s *Session) WriteAll(ctx context.Context, buf []byte) (int, error) {
	if s.state != StatePrepared {
		return 0, fmt.Errorf("%w: cannot write in state %s", ErrInvalidState, s.state)
	}

	frameBytes := s.negotiated.FrameBytes()
	if frameBytes == 0 {
		return 0, fmt.Errorf("%w: no frame size negotiated", ErrInvalidState)
	}
	if len(buf)%frameBytes != 0 {
		return 0, fmt.Errorf("buffer of %d bytes is not a whole number of %d-byte frames", len(buf), frameBytes)
	}

	total := len(buf) / frameBytes
	written := 0
	stalls := 0
	calls := 0

	for written < total {
		if err := ctx.Err(); err != nil {
			s.framesWritten += int64(written)
			return written, err
		}

		n, err := s.stream.Write(buf[written*frameBytes:])
		calls++
		if err != nil {
			s.framesWritten += int64(written)
			slog.Error("write to device failed",
				"device", s.stream.Name(),
				"frames_written", written,
				"frames_total", total,
				"error", err)
			return written, fmt.Errorf("write failed after %d of %d frames: %w", written, total, err)
		}
		if n < 0 || n > total-written {
			s.framesWritten += int64(written)
			return written, fmt.Errorf("device reported %d frames written with %d remaining", n, total-written)
		}
		if n == 0 {
			stalls++
			if stalls >= s.maxStalls {
				s.framesWritten += int64(written)
				return written, fmt.Errorf("%w after %d attempts (%d of %d frames written)", ErrNoProgress, stalls, written, total)
			}
			continue
		}
		stalls = 0
		written += n
	}

	s.framesWritten += int64(written)
	s.state = StateWritten
	slog.Debug("buffer written", "device", s.stream.Name(), "frames", written, "calls", calls)
	return written, nil
}

// Play writes buf repeat times, preparing the stream before every pass
func (s *Session) Play(ctx context.Context, buf []byte, repeat int) error {
	if repeat < 1 {
		return fmt.Errorf("repeat count must be at least 1, got %d", repeat)
	}

	for pass := 1; pass <= repeat; pass++ {
		if err := s.Prepare(); err != nil {
			return err
		}
		n, err := s.WriteAll(ctx, buf)
		if err != nil {
			return fmt.Errorf("playback pass %d of %d: %w", pass, repeat, err)
		}
		slog.Debug("playback pass complete", "pass", pass, "repeat", repeat, "frames", n)
	}

	slog.Info("playback complete",
		"device", s.stream.Name(),
		"repeat", repeat,
		"frames_written", s.framesWritten)
	return nil
}

// Finish stops the stream. Buffered frames are discarded unless drain is set.
func (s *Session) Finish(drain bool) error {
	if err := s.transition(StateDropped, StateConfigured, StatePrepared, StateWritten); err != nil {
		return err
	}

	if drain {
		if err := s.stream.Drain(); err != nil {
			slog.Error("failed to drain stream", "device", s.stream.Name(), "error", err)
			return fmt.Errorf("failed to drain stream: %w", err)
		}
		slog.Debug("stream drained", "device", s.stream.Name())
		return nil
	}

	if err := s.stream.Drop(); err != nil {
		slog.Error("failed to drop stream", "device", s.stream.Name(), "error", err)
		return fmt.Errorf("failed to drop stream: %w", err)
	}
	slog.Debug("stream dropped", "device", s.stream.Name())
	return nil
}

// Close releases the stream. It is safe to call more than once.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	if err := s.stream.Close(); err != nil && !errors.Is(err, ErrStreamClosed) {
		slog.Error("failed to close stream", "device", s.stream.Name(), "error", err)
		return fmt.Errorf("failed to close stream: %w", err)
	}
	slog.Debug("stream closed", "device", s.stream.Name())
	return nil
}
