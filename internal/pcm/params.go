package pcm

import (
	"errors"
	"fmt"
	"sync"
)

var errPoolExhausted = errors.New("parameter descriptor pool exhausted")

// DefaultPoolSize is the number of descriptors a negotiator may hold at once
const DefaultPoolSize = 4

// ParamsPool hands out a bounded number of hardware parameter descriptors
type ParamsPool struct {
	mu    sync.Mutex
	size  int
	inUse int
}

// NewParamsPool creates a pool that allows size live descriptors
func NewParamsPool(size int) *ParamsPool {
	return &ParamsPool{size: size}
}

// Acquire returns a fresh descriptor or an error when the pool is exhausted
func (p *ParamsPool) Acquire() (*HwParams, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inUse >= p.size {
		return nil, fmt.Errorf("%w (%d in use)", errPoolExhausted, p.inUse)
	}
	p.inUse++
	return &HwParams{pool: p}, nil
}

// InUse returns the number of descriptors not yet freed
func (p *ParamsPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

func (p *ParamsPool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse > 0 {
		p.inUse--
	}
}

// HwParams is a hardware parameter descriptor. It starts from the device's
// full capability space and each Set call narrows it further; a value
// accepted earlier is never widened again.
type HwParams struct {
	pool   *ParamsPool
	freed  bool
	loaded bool

	space Capabilities

	access       Access
	format       Format
	rate         uint32
	channels     uint32
	periods      uint32
	bufferFrames uint32

	accessSet, formatSet, rateSet, channelsSet, periodsSet, bufferSet bool
}

// Free returns the descriptor to its pool. Calling Free twice is a no-op.
func (h *HwParams) Free() {
	if h.freed {
		return
	}
	h.freed = true
	if h.pool != nil {
		h.pool.release()
	}
}

func (h *HwParams) check() error {
	if h.freed {
		return ErrParamsFreed
	}
	if !h.loaded {
		return errors.New("configuration space not loaded")
	}
	return nil
}

// Any loads the full configuration space of a device into the descriptor
func (h *HwParams) Any(caps Capabilities) error {
	if h.freed {
		return ErrParamsFreed
	}
	if err := caps.Validate(); err != nil {
		return err
	}
	h.space = caps
	h.loaded = true
	return nil
}

// SetAccess restricts the descriptor to access type a
func (h *HwParams) SetAccess(a Access) error {
	if err := h.check(); err != nil {
		return err
	}
	if !h.space.SupportsAccess(a) {
		return fmt.Errorf("access %s not in %v", a, h.space.Accesses)
	}
	h.space.Accesses = []Access{a}
	h.access = a
	h.accessSet = true
	return nil
}

// SetFormat restricts the descriptor to sample format f
func (h *HwParams) SetFormat(f Format) error {
	if err := h.check(); err != nil {
		return err
	}
	if !h.space.SupportsFormat(f) {
		return fmt.Errorf("format %s not in %v", f, h.space.Formats)
	}
	h.space.Formats = []Format{f}
	h.format = f
	h.formatSet = true
	return nil
}

// SetRateNear picks the supported rate closest to *rate and writes it back
func (h *HwParams) SetRateNear(rate *uint32) error {
	if err := h.check(); err != nil {
		return err
	}
	if *rate == 0 {
		return errors.New("requested rate is zero")
	}
	effective, ok := h.space.NearestRate(*rate)
	if !ok || effective == 0 {
		return fmt.Errorf("no rate available near %d", *rate)
	}
	*rate = effective
	h.space.Rates = Single(effective)
	h.space.RateSet = nil
	h.rate = effective
	h.rateSet = true
	return nil
}

// SetChannels restricts the descriptor to exactly n channels
func (h *HwParams) SetChannels(n uint32) error {
	if err := h.check(); err != nil {
		return err
	}
	if n == 0 || !h.space.Channels.Contains(n) {
		return fmt.Errorf("%d channels outside %s", n, h.space.Channels)
	}
	h.space.Channels = Single(n)
	h.channels = n
	h.channelsSet = true
	return nil
}

// SetPeriodsNear picks the supported period count closest to *periods and writes it back
func (h *HwParams) SetPeriodsNear(periods *uint32) error {
	if err := h.check(); err != nil {
		return err
	}
	// every period needs at least one frame of buffer
	iv := h.space.Periods
	if iv.Max > h.space.BufferFrames.Max {
		iv.Max = h.space.BufferFrames.Max
	}
	if iv.Empty() {
		return fmt.Errorf("period counts %s do not fit a buffer of at most %d frames",
			h.space.Periods, h.space.BufferFrames.Max)
	}
	effective := iv.Near(*periods)
	if effective == 0 {
		return fmt.Errorf("no period count available near %d", *periods)
	}
	*periods = effective
	h.space.Periods = Single(effective)
	h.periods = effective
	h.periodsSet = true
	return nil
}

// SetBufferSizeNear picks the supported buffer size closest to *frames and
// writes it back. The result is a whole number of periods.
func (h *HwParams) SetBufferSizeNear(frames *uint32) error {
	if err := h.check(); err != nil {
		return err
	}
	if !h.periodsSet {
		return errors.New("period count must be set before buffer size")
	}

	iv := h.space.BufferFrames
	v := iv.Near(*frames)
	v -= v % h.periods
	if v < iv.Min || v == 0 {
		v += h.periods
	}
	if !iv.Contains(v) {
		return fmt.Errorf("no buffer size in %s is a multiple of %d periods", iv, h.periods)
	}

	*frames = v
	h.space.BufferFrames = Single(v)
	h.bufferFrames = v
	h.bufferSet = true
	return nil
}

// Config returns the assembled configuration once every field has been set
func (h *HwParams) Config() (HwConfig, error) {
	if err := h.check(); err != nil {
		return HwConfig{}, err
	}

	var missing []string
	if !h.accessSet {
		missing = append(missing, "access")
	}
	if !h.formatSet {
		missing = append(missing, "format")
	}
	if !h.rateSet {
		missing = append(missing, "rate")
	}
	if !h.channelsSet {
		missing = append(missing, "channels")
	}
	if !h.periodsSet {
		missing = append(missing, "periods")
	}
	if !h.bufferSet {
		missing = append(missing, "buffer size")
	}
	if len(missing) > 0 {
		return HwConfig{}, fmt.Errorf("incomplete configuration, missing %v", missing)
	}

	return HwConfig{
		Access:       h.access,
		Format:       h.format,
		Rate:         h.rate,
		Channels:     h.channels,
		Periods:      h.periods,
		BufferFrames: h.bufferFrames,
	}, nil
}
