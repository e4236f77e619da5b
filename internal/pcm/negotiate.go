package pcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Request is the configuration a caller asks the device for
type Request struct {
	Access   Access
	Format   Format
	Rate     uint32
	Channels uint32
	Periods  uint32
	// CapacityBytes is the total byte capacity the caller wants to stream,
	// typically the length of the sample buffer
	CapacityBytes int
}

// DefaultRequest returns 16-bit mono 44.1kHz interleaved playback with 8 periods
func DefaultRequest() Request {
	return Request{
		Access:        AccessRWInterleaved,
		Format:        FormatS16LE,
		Rate:          44100,
		Channels:      1,
		Periods:       8,
		CapacityBytes: 2 * 44100 * 5,
	}
}

// Validate checks the request before any device is touched
func (r Request) Validate() error {
	var errs []error
	if r.Format.BytesPerSample() == 0 {
		errs = append(errs, fmt.Errorf("unsupported format %s", r.Format))
	}
	if r.Rate == 0 {
		errs = append(errs, errors.New("rate must be positive"))
	}
	if r.Channels == 0 {
		errs = append(errs, errors.New("channels must be positive"))
	}
	if r.Periods == 0 {
		errs = append(errs, errors.New("periods must be positive"))
	}
	if r.CapacityBytes <= 0 {
		errs = append(errs, errors.New("capacity must be positive"))
	}
	return errors.Join(errs...)
}

// Negotiated holds the values the device actually accepted
type Negotiated struct {
	Access        Access
	Format        Format
	Rate          uint32
	Channels      uint32
	Periods       uint32
	BufferFrames  uint32
	PeriodFrames  uint32
	CapacityBytes int
}

// HwConfig returns the committed hardware configuration
func (n Negotiated) HwConfig() HwConfig {
	return HwConfig{
		Access:       n.Access,
		Format:       n.Format,
		Rate:         n.Rate,
		Channels:     n.Channels,
		Periods:      n.Periods,
		BufferFrames: n.BufferFrames,
	}
}

// FrameBytes returns the size of one interleaved frame
func (n Negotiated) FrameBytes() int {
	return n.HwConfig().FrameBytes()
}

// Negotiator configures playback streams against their capability space
type Negotiator struct {
	pool *ParamsPool
}

// NewNegotiator creates a negotiator drawing descriptors from pool.
// A nil pool gets a private pool of DefaultPoolSize.
func NewNegotiator(pool *ParamsPool) *Negotiator {
	if pool == nil {
		pool = NewParamsPool(DefaultPoolSize)
	}
	return &Negotiator{pool: pool}
}

// Pool returns the descriptor pool used by the negotiator
func (n *Negotiator) Pool() *ParamsPool {
	return n.pool
}

// Open opens the named device and configures it. On any failure the stream
// is closed and the error is a *StageError naming the step that failed.
func (n *Negotiator) Open(ctx context.Context, opener Opener, name string, req Request) (Stream, Negotiated, error) {
	slog.Debug("opening playback device", "device", name)

	if err := req.Validate(); err != nil {
		return nil, Negotiated{}, fmt.Errorf("invalid hardware configuration request: %w", err)
	}

	stream, err := opener.Open(ctx, name)
	if err != nil {
		slog.Error("failed to open playback device", "device", name, "error", err)
		return nil, Negotiated{}, stageError(StageOpen, name, err)
	}

	negotiated, err := n.Configure(stream, req)
	if err != nil {
		if closeErr := stream.Close(); closeErr != nil {
			slog.Warn("failed to close device after negotiation failure",
				"device", name,
				"error", closeErr)
		}
		return nil, Negotiated{}, err
	}

	return stream, negotiated, nil
}

// Configure runs descriptor allocation through commit against an open stream.
// The caller keeps ownership of the stream whether or not this succeeds.
func (n *Negotiator) Configure(stream Stream, req Request) (Negotiated, error) {
	name := stream.Name()
	slog.Debug("negotiating hardware parameters",
		"device", name,
		"access", req.Access.String(),
		"format", req.Format.String(),
		"rate", req.Rate,
		"channels", req.Channels,
		"periods", req.Periods,
		"capacity_bytes", req.CapacityBytes)

	if err := req.Validate(); err != nil {
		slog.Error("invalid hardware configuration request", "device", name, "error", err)
		return Negotiated{}, fmt.Errorf("invalid hardware configuration request: %w", err)
	}

	fail := func(stage Stage, err error) (Negotiated, error) {
		slog.Error("hardware parameter negotiation failed",
			"device", name,
			"stage", stage.String(),
			"error", err)
		return Negotiated{}, stageError(stage, name, err)
	}

	params, err := n.pool.Acquire()
	if err != nil {
		return fail(StageAlloc, err)
	}
	defer params.Free()

	caps, err := stream.Capabilities()
	if err != nil {
		return fail(StageQuery, err)
	}
	if err := params.Any(caps); err != nil {
		return fail(StageQuery, err)
	}

	if err := params.SetAccess(req.Access); err != nil {
		return fail(StageAccess, err)
	}

	if err := params.SetFormat(req.Format); err != nil {
		return fail(StageFormat, err)
	}

	rate := req.Rate
	if err := params.SetRateNear(&rate); err != nil {
		return fail(StageRate, err)
	}
	if rate != req.Rate {
		slog.Info("device adjusted sample rate", "device", name, "requested", req.Rate, "effective", rate)
	}

	if err := params.SetChannels(req.Channels); err != nil {
		return fail(StageChannels, err)
	}

	periods := req.Periods
	if err := params.SetPeriodsNear(&periods); err != nil {
		return fail(StagePeriods, err)
	}
	if periods != req.Periods {
		slog.Info("device adjusted period count", "device", name, "requested", req.Periods, "effective", periods)
	}

	bytesPerSample := uint64(req.Format.BytesPerSample())
	wanted := uint64(req.CapacityBytes) * uint64(periods) / (uint64(req.Channels) * bytesPerSample)
	if wanted > uint64(^uint32(0)) {
		wanted = uint64(^uint32(0))
	}
	frames := uint32(wanted)
	if err := params.SetBufferSizeNear(&frames); err != nil {
		return fail(StageBufferSize, err)
	}
	capacity := int(uint64(frames) * uint64(req.Channels) * bytesPerSample / uint64(periods))

	cfg, err := params.Config()
	if err != nil {
		return fail(StageCommit, err)
	}
	if err := stream.Commit(cfg); err != nil {
		return fail(StageCommit, err)
	}

	negotiated := Negotiated{
		Access:        cfg.Access,
		Format:        cfg.Format,
		Rate:          cfg.Rate,
		Channels:      cfg.Channels,
		Periods:       cfg.Periods,
		BufferFrames:  cfg.BufferFrames,
		PeriodFrames:  cfg.PeriodFrames(),
		CapacityBytes: capacity,
	}

	slog.Info("hardware parameters committed",
		"device", name,
		"config", cfg.String(),
		"capacity_bytes", capacity)

	return negotiated, nil
}
