package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gopxl/beep"
)

// resampleQuality is the beep interpolation quality (1..64)
const resampleQuality = 4

// ErrInvalidConversion is returned for zero target rates or channel counts
var ErrInvalidConversion = errors.New("invalid conversion target")

// ConvertForPlayback resamples data to rate and remaps it to channels.
// Mono sources are duplicated, stereo targets keep left and right, and
// wider targets alternate left and right across the extra channels.
func ConvertForPlayback(data *AudioData, rate, channels uint32) (*AudioData, error) {
	if data == nil || data.Channels == 0 || data.SampleRate == 0 {
		return nil, ErrInvalidData
	}
	if data.Channels > 2 {
		return nil, fmt.Errorf("%w: %d source channels", ErrUnsupportedFormat, data.Channels)
	}
	if rate == 0 || channels == 0 {
		return nil, ErrInvalidConversion
	}

	if data.SampleRate == rate && data.Channels == channels {
		return data, nil
	}

	frames := data.Frames()
	srcChannels := int(data.Channels)
	pos := 0
	var source beep.Streamer = beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= frames {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < frames {
			left := float64(data.Samples[pos*srcChannels]) / math.MaxInt16
			right := left
			if srcChannels == 2 {
				right = float64(data.Samples[pos*srcChannels+1]) / math.MaxInt16
			}
			samples[n] = [2]float64{left, right}
			n++
			pos++
		}
		return n, true
	})

	if data.SampleRate != rate {
		source = beep.Resample(resampleQuality, beep.SampleRate(data.SampleRate), beep.SampleRate(rate), source)
	}

	expected := int(uint64(frames) * uint64(rate) / uint64(data.SampleRate))
	out := make([]int16, 0, (expected+1)*int(channels))
	buf := make([][2]float64, 512)
	for {
		n, ok := source.Stream(buf)
		for _, frame := range buf[:n] {
			for ch := uint32(0); ch < channels; ch++ {
				v := frame[0]
				if channels == 1 {
					v = (frame[0] + frame[1]) / 2
				} else if ch%2 == 1 {
					v = frame[1]
				}
				out = append(out, floatTo16(v))
			}
		}
		if !ok {
			break
		}
	}
	if err := source.Err(); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	converted := &AudioData{
		Samples:        out,
		Channels:       channels,
		SampleRate:     rate,
		SourceBitDepth: data.SourceBitDepth,
	}
	slog.Debug("converted input for playback",
		"from_rate", data.SampleRate,
		"to_rate", rate,
		"from_channels", data.Channels,
		"to_channels", channels,
		"frames_in", frames,
		"frames_out", converted.Frames())
	return converted, nil
}

func floatTo16(v float64) int16 {
	v = math.Round(v * math.MaxInt16)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
