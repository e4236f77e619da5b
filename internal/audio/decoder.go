package audio

import (
	"errors"
	"io"
	"time"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// AudioData is decoded audio as interleaved signed 16-bit samples
type AudioData struct {
	Samples        []int16
	Channels       uint32
	SampleRate     uint32
	SourceBitDepth int // bit depth of the file before conversion to 16-bit
}

// Frames returns the number of sample frames
func (d *AudioData) Frames() int {
	if d.Channels == 0 {
		return 0
	}
	return len(d.Samples) / int(d.Channels)
}

// Duration returns the playing time of the data
func (d *AudioData) Duration() time.Duration {
	if d.SampleRate == 0 {
		return 0
	}
	return time.Duration(d.Frames()) * time.Second / time.Duration(d.SampleRate)
}

// Decoder interface for audio format decoding
type Decoder interface {
	// Decode reads audio data from reader and returns 16-bit PCM
	Decode(reader io.Reader) (*AudioData, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}

// to16 scales a signed integer sample of the given bit depth to 16 bits
func to16(v int, bitDepth int) int16 {
	switch {
	case bitDepth < 16:
		return int16(v << (16 - bitDepth))
	case bitDepth == 16:
		return int16(v)
	default:
		return int16(v >> (bitDepth - 16))
	}
}
