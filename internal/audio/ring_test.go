package audio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRingAcceptsWholeFramesUpToCapacity(t *testing.T) {
	r := newFrameRing(4, 2)

	n, err := r.write([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 8, r.buffered())

	n, err = r.write([]byte{0, 0}, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "full ring times out without progress")
}

func TestFrameRingWrapsAround(t *testing.T) {
	r := newFrameRing(4, 2)

	_, err := r.write([]byte{1, 1, 2, 2, 3, 3}, time.Millisecond)
	require.NoError(t, err)

	out := make([]byte, 4)
	assert.Equal(t, 4, r.read(out))
	assert.Equal(t, []byte{1, 1, 2, 2}, out)

	n, err := r.write([]byte{4, 4, 5, 5, 6, 6}, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	out = make([]byte, 8)
	assert.Equal(t, 8, r.read(out))
	assert.Equal(t, []byte{3, 3, 4, 4, 5, 5, 6, 6}, out)
}

func TestFrameRingReadPadsWithSilence(t *testing.T) {
	r := newFrameRing(4, 2)
	_, err := r.write([]byte{9, 9}, time.Millisecond)
	require.NoError(t, err)

	out := []byte{7, 7, 7, 7, 7, 7}
	assert.Equal(t, 2, r.read(out))
	assert.Equal(t, []byte{9, 9, 0, 0, 0, 0}, out)
	assert.True(t, r.waitEmpty(time.Millisecond))
}

func TestFrameRingWriterUnblocksWhenReaderConsumes(t *testing.T) {
	r := newFrameRing(2, 2)
	_, err := r.write([]byte{1, 1, 2, 2}, time.Millisecond)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.read(make([]byte, 2))
	}()

	n, err := r.write([]byte{3, 3}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFrameRingWaitEmptyTimesOut(t *testing.T) {
	r := newFrameRing(2, 2)
	_, err := r.write([]byte{1, 1}, time.Millisecond)
	require.NoError(t, err)

	assert.False(t, r.waitEmpty(10*time.Millisecond))

	r.reset()
	assert.Equal(t, 0, r.buffered())
	assert.True(t, r.waitEmpty(time.Millisecond))
}

func TestFrameRingClosed(t *testing.T) {
	r := newFrameRing(2, 2)
	r.close()

	_, err := r.write([]byte{1, 1}, time.Millisecond)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestFrameRingDropAfterWriteLosesAtMostOneBuffer(t *testing.T) {
	const (
		capacity   = 100
		frameBytes = 2
		total      = 2000
	)
	r := newFrameRing(capacity, frameBytes)

	var consumed atomic.Int64
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		period := make([]byte, 10*frameBytes)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				consumed.Add(int64(r.read(period)))
			}
		}
	}()

	tone := make([]byte, total*frameBytes)
	for off := 0; off < len(tone); {
		n, err := r.write(tone[off:], time.Second)
		require.NoError(t, err)
		require.NotZero(t, n, "consumer stalled")
		off += n * frameBytes
	}

	close(stop)
	<-done

	queued := r.buffered()
	assert.LessOrEqual(t, queued, capacity*frameBytes)
	assert.Equal(t, int64(len(tone)), consumed.Load()+int64(queued))

	r.reset()
	assert.GreaterOrEqual(t, consumed.Load(), int64((total-capacity)*frameBytes))
}
