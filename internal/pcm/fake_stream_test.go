package pcm

import (
	"context"
	"errors"
	"fmt"
)

// fakeStream is an in-memory Stream with a configurable capability space
type fakeStream struct {
	name          string
	caps          Capabilities
	capsErr       error
	commitErr     error
	writeErr      error
	maxFrames     int // frames accepted per Write; 0 means unlimited
	zeroWrites    int // number of leading writes that accept nothing
	committed     *HwConfig
	prepares      int
	writes        int
	framesWritten int
	drained       bool
	dropped       bool
	closed        bool
	closeCalls    int
}

func fullCaps() Capabilities {
	return Capabilities{
		Accesses:     []Access{AccessRWInterleaved, AccessMMapInterleaved},
		Formats:      []Format{FormatU8, FormatS16LE, FormatS32LE},
		Rates:        Interval{Min: 8000, Max: 192000},
		RateSet:      []uint32{8000, 11025, 16000, 22050, 32000, 44100, 48000, 96000},
		Channels:     Interval{Min: 1, Max: 2},
		Periods:      Interval{Min: 2, Max: 16},
		BufferFrames: Interval{Min: 64, Max: 65536},
	}
}

func newFakeStream(name string, caps Capabilities) *fakeStream {
	return &fakeStream{name: name, caps: caps}
}

func (f *fakeStream) Name() string { return f.name }

func (f *fakeStream) Capabilities() (Capabilities, error) {
	if f.capsErr != nil {
		return Capabilities{}, f.capsErr
	}
	return f.caps, nil
}

func (f *fakeStream) Commit(cfg HwConfig) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = &cfg
	return nil
}

func (f *fakeStream) Prepare() error {
	if f.closed {
		return ErrStreamClosed
	}
	f.prepares++
	return nil
}

func (f *fakeStream) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrStreamClosed
	}
	if f.committed == nil {
		return 0, errors.New("not configured")
	}
	f.writes++
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.zeroWrites > 0 {
		f.zeroWrites--
		return 0, nil
	}
	frames := len(p) / f.committed.FrameBytes()
	if f.maxFrames > 0 && frames > f.maxFrames {
		frames = f.maxFrames
	}
	f.framesWritten += frames
	return frames, nil
}

func (f *fakeStream) Drain() error {
	f.drained = true
	return nil
}

func (f *fakeStream) Drop() error {
	f.dropped = true
	return nil
}

func (f *fakeStream) Close() error {
	f.closeCalls++
	if f.closed {
		return ErrStreamClosed
	}
	f.closed = true
	return nil
}

// fakeOpener hands out a prepared stream or fails with openErr
type fakeOpener struct {
	stream  *fakeStream
	openErr error
	opened  []string
}

func (o *fakeOpener) Open(ctx context.Context, name string) (Stream, error) {
	o.opened = append(o.opened, name)
	if o.openErr != nil {
		return nil, o.openErr
	}
	if o.stream == nil {
		return nil, fmt.Errorf("no such device %q", name)
	}
	o.stream.name = name
	return o.stream, nil
}
