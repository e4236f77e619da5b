package audio

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/youpy/go-wav"
)

// WavDecoder handles WAV audio format decoding
type WavDecoder struct{}

// NewWavDecoder creates a new WAV decoder instance
func NewWavDecoder() *WavDecoder {
	slog.Debug("creating new WAV decoder instance")
	return &WavDecoder{}
}

// Decode reads WAV audio data from reader and returns 16-bit PCM
func (d *WavDecoder) Decode(reader io.Reader) (*AudioData, error) {
	slog.Debug("starting WAV decode operation")

	// youpy/go-wav needs a ReadSeeker, so we need to read all data first
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read WAV data", "error", err)
		return nil, ErrReadFailure
	}

	if len(data) == 0 {
		slog.Error("empty WAV data")
		return nil, ErrInvalidData
	}

	wavReader := wav.NewReader(bytes.NewReader(data))

	format, err := wavReader.Format()
	if err != nil {
		slog.Error("failed to read WAV format", "error", err)
		return nil, ErrInvalidData
	}

	slog.Debug("WAV format detected",
		"audio_format", format.AudioFormat,
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"bits_per_sample", format.BitsPerSample)

	if format.NumChannels == 0 || format.SampleRate == 0 {
		slog.Error("invalid WAV format parameters",
			"channels", format.NumChannels,
			"sample_rate", format.SampleRate)
		return nil, ErrInvalidData
	}
	// go-wav samples hold at most two channel values
	if format.NumChannels > 2 {
		slog.Error("unsupported WAV channel count", "channels", format.NumChannels)
		return nil, ErrUnsupportedFormat
	}

	bitDepth := int(format.BitsPerSample)
	switch format.AudioFormat {
	case wav.AudioFormatPCM:
		switch bitDepth {
		case 8, 16, 24, 32:
		default:
			slog.Error("unsupported bit depth", "bits", bitDepth)
			return nil, ErrUnsupportedFormat
		}
	case wav.AudioFormatIEEEFloat:
		// go-wav scales float samples to the int32 range
		bitDepth = 32
	default:
		slog.Error("unsupported WAV encoding", "audio_format", format.AudioFormat)
		return nil, ErrUnsupportedFormat
	}

	channels := int(format.NumChannels)
	var samples []int16

	for {
		chunk, err := wavReader.ReadSamples()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			slog.Error("failed to read WAV samples", "error", err)
			return nil, ErrReadFailure
		}
		if len(chunk) == 0 {
			break
		}

		for _, sample := range chunk {
			for ch := 0; ch < channels; ch++ {
				v := sample.Values[ch]
				if bitDepth == 8 {
					// 8-bit WAV is unsigned with a 128 midpoint
					v -= 128
				}
				samples = append(samples, to16(v, bitDepth))
			}
		}
	}

	if len(samples) == 0 {
		slog.Error("no audio data found in WAV file")
		return nil, ErrInvalidData
	}

	audioData := &AudioData{
		Samples:        samples,
		Channels:       uint32(format.NumChannels),
		SampleRate:     format.SampleRate,
		SourceBitDepth: int(format.BitsPerSample),
	}

	slog.Info("WAV decode completed successfully",
		"frames", audioData.Frames(),
		"channels", audioData.Channels,
		"sample_rate", audioData.SampleRate,
		"source_bits", audioData.SourceBitDepth,
		"duration_ms", audioData.Duration().Milliseconds())

	return audioData, nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// FormatName returns the name of the format this decoder handles
func (d *WavDecoder) FormatName() string {
	return "WAV"
}
