//go:build !cgo

package audio

import (
	"errors"
	"fmt"
)

const cgoEnabled = false

var errCGORequired = errors.New(`this backend requires cgo.

pcmtone was built with CGO_ENABLED=0, so miniaudio (malgo) and oto are unavailable.
Use --backend system_command or --backend null, or rebuild with a C compiler:
  CGO_ENABLED=1 go install pcmtone.click/cmd/pcmtone`)

func newMalgoBackend() (Backend, error) {
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errCGORequired)
}

func newOtoBackend() (Backend, error) {
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errCGORequired)
}
