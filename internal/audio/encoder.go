package audio

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/youpy/go-wav"
)

const encodeBitDepth = 16

func checkEncodable(samples []int16, rate, channels uint32) error {
	if rate == 0 || channels == 0 {
		return fmt.Errorf("%w: rate %d channels %d", ErrInvalidData, rate, channels)
	}
	if len(samples)%int(channels) != 0 {
		return fmt.Errorf("%w: %d samples is not a whole number of %d-channel frames",
			ErrInvalidData, len(samples), channels)
	}
	return nil
}

// EncodeWAV writes interleaved 16-bit samples as a PCM WAV file.
// WAV output is limited to one or two channels.
func EncodeWAV(w io.Writer, samples []int16, rate, channels uint32) error {
	if err := checkEncodable(samples, rate, channels); err != nil {
		return err
	}
	if channels > 2 {
		return fmt.Errorf("%w: WAV output supports at most 2 channels, got %d", ErrUnsupportedFormat, channels)
	}

	frames := len(samples) / int(channels)
	writer := wav.NewWriter(w, uint32(frames), uint16(channels), rate, encodeBitDepth)

	out := make([]wav.Sample, frames)
	for i := range out {
		for ch := 0; ch < int(channels); ch++ {
			out[i].Values[ch] = int(samples[i*int(channels)+ch])
		}
	}
	if err := writer.WriteSamples(out); err != nil {
		return fmt.Errorf("write WAV samples: %w", err)
	}

	slog.Debug("encoded WAV", "frames", frames, "rate", rate, "channels", channels)
	return nil
}

// EncodeAIFF writes interleaved 16-bit samples as an AIFF file
func EncodeAIFF(ws io.WriteSeeker, samples []int16, rate, channels uint32) error {
	if err := checkEncodable(samples, rate, channels); err != nil {
		return err
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	encoder := aiff.NewEncoder(ws, int(rate), encodeBitDepth, int(channels))
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: int(channels),
			SampleRate:  int(rate),
		},
		Data:           data,
		SourceBitDepth: encodeBitDepth,
	}
	if err := encoder.Write(buf); err != nil {
		encoder.Close()
		return fmt.Errorf("write AIFF samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize AIFF: %w", err)
	}

	slog.Debug("encoded AIFF", "frames", len(samples)/int(channels), "rate", rate, "channels", channels)
	return nil
}
