package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// Mp3Decoder handles MP3 audio format decoding
type Mp3Decoder struct{}

// NewMp3Decoder creates a new MP3 decoder instance
func NewMp3Decoder() *Mp3Decoder {
	slog.Debug("creating new MP3 decoder instance")
	return &Mp3Decoder{}
}

// Decode reads MP3 audio data from reader and returns 16-bit PCM
func (d *Mp3Decoder) Decode(reader io.Reader) (*AudioData, error) {
	slog.Debug("starting MP3 decode operation")

	decoder, err := mp3.NewDecoder(reader)
	if err != nil {
		slog.Error("failed to create MP3 decoder", "error", err)
		return nil, ErrInvalidData
	}

	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		slog.Error("invalid MP3 sample rate", "sample_rate", sampleRate)
		return nil, ErrInvalidData
	}

	// go-mp3 always produces 16-bit little-endian stereo
	var pcmBytes []byte
	buf := make([]byte, 4096)
	for {
		n, err := decoder.Read(buf)
		pcmBytes = append(pcmBytes, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			slog.Error("failed to read MP3 PCM data", "error", err)
			return nil, ErrReadFailure
		}
		if n == 0 {
			break
		}
	}

	if len(pcmBytes) < 4 {
		slog.Error("no audio data found in MP3 file")
		return nil, ErrInvalidData
	}

	samples := make([]int16, len(pcmBytes)/4*2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcmBytes[i*2:]))
	}

	audioData := &AudioData{
		Samples:        samples,
		Channels:       2,
		SampleRate:     uint32(sampleRate),
		SourceBitDepth: 16,
	}

	slog.Info("MP3 decode completed successfully",
		"frames", audioData.Frames(),
		"sample_rate", audioData.SampleRate,
		"duration_ms", audioData.Duration().Milliseconds())

	return audioData, nil
}

// CanDecode checks if this decoder can handle the given filename
func (d *Mp3Decoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".mpeg")
}

// FormatName returns the name of the format this decoder handles
func (d *Mp3Decoder) FormatName() string {
	return "MP3"
}
