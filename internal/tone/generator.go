package tone

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// ErrInvalidParams is returned for parameters that cannot describe a tone
var ErrInvalidParams = errors.New("invalid tone parameters")

// MaxAmplitude is the largest positive signed 16-bit sample
const MaxAmplitude = math.MaxInt16

// MaxSamples bounds frames * channels so the encoded buffer stays within
// int32 bytes for every sample width up to 4 bytes
const MaxSamples = math.MaxInt32 / 4

// Params describes one sine tone
type Params struct {
	Frequency  float64 // Hz
	Duration   float64 // seconds
	SampleRate uint32
	Channels   uint32
	Amplitude  float64 // peak value, 0..MaxAmplitude
}

// DefaultParams returns a 5 second 440Hz full-scale mono tone at 44.1kHz
func DefaultParams() Params {
	return Params{
		Frequency:  440,
		Duration:   5,
		SampleRate: 44100,
		Channels:   1,
		Amplitude:  MaxAmplitude,
	}
}

// AmplitudeForVolume scales full-scale amplitude by a 0..1 volume
func AmplitudeForVolume(volume float64) float64 {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	return MaxAmplitude * volume
}

// Validate reports every problem with p in one error
func (p Params) Validate() error {
	var errs []error

	if math.IsNaN(p.Frequency) || math.IsInf(p.Frequency, 0) || p.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("frequency must be positive and finite, got %v", p.Frequency))
	}
	if math.IsNaN(p.Duration) || math.IsInf(p.Duration, 0) || p.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive and finite, got %v", p.Duration))
	}
	if p.SampleRate == 0 {
		errs = append(errs, errors.New("sample rate must be positive"))
	}
	if p.Channels == 0 {
		errs = append(errs, errors.New("channels must be positive"))
	}
	if math.IsNaN(p.Amplitude) || p.Amplitude < 0 || p.Amplitude > MaxAmplitude {
		errs = append(errs, fmt.Errorf("amplitude must be within [0, %d], got %v", MaxAmplitude, p.Amplitude))
	}
	if p.SampleRate > 0 && p.Frequency > float64(p.SampleRate)/2 {
		errs = append(errs, fmt.Errorf("frequency %v Hz is above the Nyquist limit of %d Hz", p.Frequency, p.SampleRate/2))
	}
	if len(errs) == 0 {
		if samples := math.Round(float64(p.SampleRate)*p.Duration) * float64(p.Channels); samples > MaxSamples {
			errs = append(errs, fmt.Errorf("%v s at %d Hz and %d channels needs %.0f samples, more than the limit of %d",
				p.Duration, p.SampleRate, p.Channels, samples, MaxSamples))
		}
	}
	if len(errs) == 0 && p.Frames() == 0 {
		errs = append(errs, fmt.Errorf("duration %v s is shorter than one frame at %d Hz", p.Duration, p.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
	}
	return nil
}

// Frames returns round(rate * duration)
func (p Params) Frames() int {
	return int(math.Round(float64(p.SampleRate) * p.Duration))
}

// SampleCount returns the number of interleaved samples, frames * channels
func (p Params) SampleCount() int {
	return p.Frames() * int(p.Channels)
}

// ByteLen returns the buffer size in bytes for the given sample width
func (p Params) ByteLen(bytesPerSample int) int {
	return p.SampleCount() * bytesPerSample
}

// Generate returns an interleaved buffer of signed 16-bit samples. Every
// channel carries the same signal: round(amplitude * sin(2π f n / rate)) for
// frame n. The phase is computed at full precision.
func Generate(p Params) ([]int16, error) {
	if err := p.Validate(); err != nil {
		slog.Error("invalid tone parameters", "error", err)
		return nil, err
	}

	frames := p.Frames()
	channels := int(p.Channels)
	samples := make([]int16, frames*channels)

	step := 2 * math.Pi * p.Frequency / float64(p.SampleRate)
	for n := 0; n < frames; n++ {
		v := clamp16(math.Round(p.Amplitude * math.Sin(step*float64(n))))
		base := n * channels
		for c := 0; c < channels; c++ {
			samples[base+c] = v
		}
	}

	slog.Debug("generated tone",
		"frequency", p.Frequency,
		"duration", p.Duration,
		"sample_rate", p.SampleRate,
		"channels", p.Channels,
		"samples", len(samples))

	return samples, nil
}

func clamp16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
