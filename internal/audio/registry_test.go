package audio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i*97 - 3000)
	}
	return samples
}

func TestDefaultRegistryFormats(t *testing.T) {
	registry := NewDefaultRegistry()
	assert.Equal(t, []string{"WAV", "MP3", "AIFF"}, registry.SupportedFormats())
	assert.NotNil(t, registry.ByFormat("aiff"))
	assert.Nil(t, registry.ByFormat("FLAC"))
}

func TestRegistryRegisterNil(t *testing.T) {
	registry := NewDecoderRegistry()
	registry.Register(nil)
	assert.Empty(t, registry.SupportedFormats())
}

func TestRegistryDetect(t *testing.T) {
	registry := NewDefaultRegistry()

	var wavFile bytes.Buffer
	require.NoError(t, EncodeWAV(&wavFile, testSamples(64), 8000, 1))

	tests := []struct {
		name     string
		filename string
		head     []byte
		expected string
	}{
		{"magic bytes beat a wrong extension", "tone.mp3", wavFile.Bytes(), "WAV"},
		{"unrecognised content falls back to extension", "tone.mp3", []byte("plain text"), "MP3"},
		{"no content uses extension", "tone.aif", nil, "AIFF"},
		{"nothing matches", "tone.txt", []byte("plain text"), ""},
		{"empty name and content", "", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder := registry.Detect(tt.filename, tt.head)
			if tt.expected == "" {
				assert.Nil(t, decoder)
				return
			}
			require.NotNil(t, decoder)
			assert.Equal(t, tt.expected, decoder.FormatName())
		})
	}
}

func TestRegistryDecodeWAV(t *testing.T) {
	samples := testSamples(800)
	var buf bytes.Buffer
	require.NoError(t, EncodeWAV(&buf, samples, 8000, 1))

	data, err := NewDefaultRegistry().DecodeFile("input.data", &buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(8000), data.SampleRate)
	assert.Equal(t, uint32(1), data.Channels)
	assert.Equal(t, samples, data.Samples)
}

func TestRegistryDecodeAIFF(t *testing.T) {
	fs := afero.NewMemMapFs()
	samples := testSamples(1000)

	f, err := fs.Create("/tone.aiff")
	require.NoError(t, err)
	require.NoError(t, EncodeAIFF(f, samples, 48000, 2))
	require.NoError(t, f.Close())

	f, err = fs.Open("/tone.aiff")
	require.NoError(t, err)
	defer f.Close()

	data, err := NewDefaultRegistry().DecodeFile("/tone.aiff", f)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), data.SampleRate)
	assert.Equal(t, uint32(2), data.Channels)
	assert.Equal(t, 16, data.SourceBitDepth)
	assert.Equal(t, samples, data.Samples)
}

func TestRegistryDecodeUnsupported(t *testing.T) {
	_, err := NewDefaultRegistry().DecodeFile("notes.txt", strings.NewReader("not audio"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeValidation(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, EncodeWAV(&buf, testSamples(3), 8000, 2), ErrInvalidData)
	assert.ErrorIs(t, EncodeWAV(&buf, testSamples(6), 0, 2), ErrInvalidData)
	assert.ErrorIs(t, EncodeWAV(&buf, testSamples(6), 8000, 3), ErrUnsupportedFormat)

	f, err := afero.NewMemMapFs().Create("/x.aiff")
	require.NoError(t, err)
	assert.ErrorIs(t, EncodeAIFF(f, testSamples(5), 8000, 2), ErrInvalidData)
}
