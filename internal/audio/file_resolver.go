package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// ErrInputNotFound is returned when no candidate path for an input exists
var ErrInputNotFound = errors.New("input file not found")

// DefaultInputExtensions is the probe order used when an input path has no extension
var DefaultInputExtensions = []string{".wav", ".aiff", ".aif", ".mp3"}

// FileResolver locates input audio files on a filesystem, trying each
// supported extension when the path given does not exist as-is.
type FileResolver struct {
	fs                  afero.Fs
	supportedExtensions []string
}

// NewFileResolver creates a FileResolver over fs with the given extensions
func NewFileResolver(fs afero.Fs, extensions []string) *FileResolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileResolver{
		fs:                  fs,
		supportedExtensions: extensions,
	}
}

// Resolve returns path when it names a regular file, otherwise the first
// path+extension candidate that does.
func (f *FileResolver) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInputNotFound)
	}

	if f.isFile(path) {
		return path, nil
	}

	for _, ext := range f.supportedExtensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		candidate := path + ext
		if f.isFile(candidate) {
			slog.Debug("input resolved by extension",
				"path", path,
				"resolved_path", candidate)
			return candidate, nil
		}
	}

	slog.Warn("input resolution failed",
		"path", path,
		"extensions_tried", f.supportedExtensions)
	return "", fmt.Errorf("%w: %s (tried extensions %v)", ErrInputNotFound, path, f.supportedExtensions)
}

// Extensions returns the extensions in probe order
func (f *FileResolver) Extensions() []string {
	return f.supportedExtensions
}

// Load resolves path and decodes it with registry
func (f *FileResolver) Load(registry *DecoderRegistry, path string) (*AudioData, error) {
	resolved, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := f.fs.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	return registry.DecodeFile(resolved, file)
}

func (f *FileResolver) isFile(path string) bool {
	info, err := f.fs.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("stat failed", "path", path, "error", err)
		}
		return false
	}
	return info.Mode().IsRegular()
}
