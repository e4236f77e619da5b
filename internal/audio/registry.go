package audio

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how much of a file is handed to mimetype for magic detection
const sniffLen = 512

// DecoderRegistry picks a decoder for an input file by content, then by name
type DecoderRegistry struct {
	decoders []Decoder
}

// NewDecoderRegistry creates a new empty decoder registry
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{}
}

// NewDefaultRegistry creates a registry with WAV, MP3 and AIFF decoders
func NewDefaultRegistry() *DecoderRegistry {
	registry := NewDecoderRegistry()
	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewAiffDecoder())

	slog.Debug("default decoder registry initialized",
		"supported_formats", registry.SupportedFormats())
	return registry
}

// Register adds a decoder; earlier registrations win extension ties
func (r *DecoderRegistry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}
	r.decoders = append(r.decoders, decoder)
	slog.Debug("decoder registered",
		"format", decoder.FormatName(),
		"total_decoders", len(r.decoders))
}

// SupportedFormats returns the format names of all registered decoders
func (r *DecoderRegistry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// ByExtension returns the first decoder accepting filename, or nil
func (r *DecoderRegistry) ByExtension(filename string) Decoder {
	if filename == "" {
		return nil
	}
	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			return decoder
		}
	}
	return nil
}

// ByFormat returns the decoder registered under formatName, or nil
func (r *DecoderRegistry) ByFormat(formatName string) Decoder {
	for _, decoder := range r.decoders {
		if strings.EqualFold(decoder.FormatName(), formatName) {
			return decoder
		}
	}
	return nil
}

// Detect chooses a decoder from the leading bytes of a file, falling back
// to the file extension when the content is not recognised.
func (r *DecoderRegistry) Detect(filename string, head []byte) Decoder {
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	if len(head) > 0 {
		mime := strings.ToLower(mimetype.Detect(head).String())

		var format string
		switch {
		case strings.Contains(mime, "wav") || mime == "audio/vnd.wave":
			format = "WAV"
		case strings.Contains(mime, "mpeg") || strings.Contains(mime, "mp3"):
			format = "MP3"
		case strings.Contains(mime, "aiff"):
			format = "AIFF"
		}

		if decoder := r.ByFormat(format); decoder != nil {
			slog.Debug("format detected by magic bytes",
				"filename", filename,
				"format", format,
				"mime_type", mime)
			return decoder
		}
		slog.Debug("magic bytes not recognised", "filename", filename, "mime_type", mime)
	}

	decoder := r.ByExtension(filename)
	if decoder == nil {
		slog.Warn("no decoder matched input", "filename", filename)
		return nil
	}
	slog.Debug("format detected by extension",
		"filename", filename,
		"format", decoder.FormatName())
	return decoder
}

// DecodeFile reads everything from reader and decodes it with the
// decoder Detect selects.
func (r *DecoderRegistry) DecodeFile(filename string, reader io.Reader) (*AudioData, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	decoder := r.Detect(filename, content)
	if decoder == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	data, err := decoder.Decode(bytes.NewReader(content))
	if err != nil {
		slog.Error("decode failed",
			"filename", filename,
			"format", decoder.FormatName(),
			"error", err)
		return nil, fmt.Errorf("decode %s as %s: %w", filename, decoder.FormatName(), err)
	}

	slog.Info("input decoded",
		"filename", filename,
		"format", decoder.FormatName(),
		"channels", data.Channels,
		"sample_rate", data.SampleRate,
		"frames", data.Frames())
	return data, nil
}
