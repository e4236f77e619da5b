package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Format identifies a sample encoding
type Format int

const (
	FormatUnknown Format = iota
	FormatU8
	FormatS16LE
	FormatS16BE
	FormatS32LE
	FormatFloat32LE
)

var formatNames = map[Format]string{
	FormatUnknown:   "unknown",
	FormatU8:        "u8",
	FormatS16LE:     "s16le",
	FormatS16BE:     "s16be",
	FormatS32LE:     "s32le",
	FormatFloat32LE: "f32le",
}

// String returns the lower-case name used in config files and flags
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// BytesPerSample returns the storage width of one sample, or 0 for unknown formats
func (f Format) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16LE, FormatS16BE:
		return 2
	case FormatS32LE, FormatFloat32LE:
		return 4
	default:
		return 0
	}
}

// ParseFormat parses a format name such as "s16le" (case-insensitive, "S16_LE" accepted)
func ParseFormat(name string) (Format, error) {
	normalized := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	for f, n := range formatNames {
		if f != FormatUnknown && n == normalized {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown sample format %q", name)
}

// SupportedFormats lists every format the encoder can produce
func SupportedFormats() []Format {
	return []Format{FormatU8, FormatS16LE, FormatS16BE, FormatS32LE, FormatFloat32LE}
}

// Access identifies how frames are laid out for the device
type Access int

const (
	AccessRWInterleaved Access = iota
	AccessRWNonInterleaved
	AccessMMapInterleaved
)

func (a Access) String() string {
	switch a {
	case AccessRWInterleaved:
		return "rw_interleaved"
	case AccessRWNonInterleaved:
		return "rw_noninterleaved"
	case AccessMMapInterleaved:
		return "mmap_interleaved"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// Encode converts interleaved 16-bit samples into the byte layout of format f
func Encode(samples []int16, f Format) ([]byte, error) {
	width := f.BytesPerSample()
	if width == 0 {
		return nil, fmt.Errorf("cannot encode samples as %s", f)
	}

	out := make([]byte, len(samples)*width)
	for i, s := range samples {
		off := i * width
		switch f {
		case FormatU8:
			out[off] = byte(int(s>>8) + 128)
		case FormatS16LE:
			binary.LittleEndian.PutUint16(out[off:], uint16(s))
		case FormatS16BE:
			binary.BigEndian.PutUint16(out[off:], uint16(s))
		case FormatS32LE:
			binary.LittleEndian.PutUint32(out[off:], uint32(int32(s)<<16))
		case FormatFloat32LE:
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(s)/32768.0))
		}
	}
	return out, nil
}
