package audio

import (
	"sync"
	"time"
)

// frameRing is a fixed-size byte ring shared between a blocking writer and a
// device callback. Writes and reads move whole frames only.
type frameRing struct {
	mu         sync.Mutex
	buf        []byte
	frameBytes int
	head       int // next read position
	size       int // bytes queued
	closed     bool
	space      chan struct{}
	empty      chan struct{}
}

func newFrameRing(frames, frameBytes int) *frameRing {
	return &frameRing{
		buf:        make([]byte, frames*frameBytes),
		frameBytes: frameBytes,
		space:      make(chan struct{}, 1),
		empty:      make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// write copies as many whole frames from p as fit and returns the number of
// frames queued. It waits up to timeout for space; zero frames is returned
// when none frees up in time.
func (r *frameRing) write(p []byte, timeout time.Duration) (int, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return 0, ErrStreamClosed
		}
		free := (len(r.buf) - r.size) / r.frameBytes * r.frameBytes
		if free > 0 {
			n := len(p) / r.frameBytes * r.frameBytes
			if n > free {
				n = free
			}
			tail := (r.head + r.size) % len(r.buf)
			first := copy(r.buf[tail:], p[:n])
			copy(r.buf, p[first:n])
			r.size += n
			r.mu.Unlock()
			return n / r.frameBytes, nil
		}
		r.mu.Unlock()

		select {
		case <-r.space:
		case <-deadline.C:
			return 0, nil
		}
	}
}

// read fills out from the ring and pads whatever is missing with silence
func (r *frameRing) read(out []byte) int {
	r.mu.Lock()
	n := len(out)
	if n > r.size {
		n = r.size
	}
	first := copy(out[:n], r.buf[r.head:])
	copy(out[first:n], r.buf[:n-first])
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	drained := r.size == 0
	r.mu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}

	signal(r.space)
	if drained {
		signal(r.empty)
	}
	return n
}

// waitEmpty blocks until every queued byte has been read or timeout passes
func (r *frameRing) waitEmpty(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if r.buffered() == 0 {
			return true
		}
		select {
		case <-r.empty:
		case <-deadline.C:
			return r.buffered() == 0
		}
	}
}

func (r *frameRing) buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *frameRing) reset() {
	r.mu.Lock()
	r.head = 0
	r.size = 0
	r.mu.Unlock()
	signal(r.space)
	signal(r.empty)
}

func (r *frameRing) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	signal(r.space)
	signal(r.empty)
}
