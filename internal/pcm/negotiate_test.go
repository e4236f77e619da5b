package pcm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiator_DefaultRequest(t *testing.T) {
	stream := newFakeStream("", fullCaps())
	opener := &fakeOpener{stream: stream}
	n := NewNegotiator(nil)

	got, negotiated, err := n.Open(context.Background(), opener, "plughw:0,0", DefaultRequest())
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, []string{"plughw:0,0"}, opener.opened)
	assert.Equal(t, AccessRWInterleaved, negotiated.Access)
	assert.Equal(t, FormatS16LE, negotiated.Format)
	assert.Equal(t, uint32(44100), negotiated.Rate)
	assert.Equal(t, uint32(1), negotiated.Channels)
	assert.Equal(t, uint32(8), negotiated.Periods)
	// 441000 bytes * 8 periods / 2 bytes clamps to the 65536 frame maximum
	assert.Equal(t, uint32(65536), negotiated.BufferFrames)
	assert.Equal(t, uint32(8192), negotiated.PeriodFrames)
	assert.Equal(t, 16384, negotiated.CapacityBytes)

	require.NotNil(t, stream.committed)
	assert.Equal(t, negotiated.HwConfig(), *stream.committed)
	assert.False(t, stream.closed)
	assert.Equal(t, 0, n.Pool().InUse(), "descriptor must be released after success")
}

func TestNegotiator_RateSnapsToNearestSupported(t *testing.T) {
	tests := []struct {
		name      string
		requested uint32
		want      uint32
	}{
		{"exact", 48000, 48000},
		{"just below 44100", 44000, 44100},
		{"between 22050 and 32000", 30000, 32000},
		{"tie prefers higher", 46050, 48000},
		{"above every rate", 200000, 96000},
		{"below every rate", 4000, 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultRequest()
			req.Rate = tt.requested

			_, negotiated, err := NewNegotiator(nil).Open(context.Background(),
				&fakeOpener{stream: newFakeStream("", fullCaps())}, "default", req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, negotiated.Rate)
			assert.NotEqual(t, uint32(0), negotiated.Rate)
		})
	}
}

func TestNegotiator_ContinuousRateRange(t *testing.T) {
	caps := fullCaps()
	caps.RateSet = nil
	caps.Rates = Interval{Min: 4000, Max: 48000}

	req := DefaultRequest()
	req.Rate = 96000

	_, negotiated, err := NewNegotiator(nil).Open(context.Background(),
		&fakeOpener{stream: newFakeStream("", caps)}, "default", req)
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), negotiated.Rate)
}

func TestNegotiator_Idempotent(t *testing.T) {
	req := DefaultRequest()
	req.Rate = 47000
	req.Periods = 20

	var results []Negotiated
	for i := 0; i < 3; i++ {
		_, negotiated, err := NewNegotiator(nil).Open(context.Background(),
			&fakeOpener{stream: newFakeStream("", fullCaps())}, "hw:1", req)
		require.NoError(t, err)
		results = append(results, negotiated)
	}

	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[1], results[2])
	assert.Equal(t, uint32(48000), results[0].Rate)
	assert.Equal(t, uint32(16), results[0].Periods)
}

func TestNegotiator_BufferSizeIsWholePeriods(t *testing.T) {
	caps := fullCaps()
	caps.BufferFrames = Interval{Min: 100, Max: 1000}

	req := DefaultRequest()
	req.Periods = 3
	req.CapacityBytes = 200 // 200 * 3 / 2 = 300 frames

	_, negotiated, err := NewNegotiator(nil).Open(context.Background(),
		&fakeOpener{stream: newFakeStream("", caps)}, "default", req)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), negotiated.BufferFrames)
	assert.Equal(t, uint32(100), negotiated.PeriodFrames)
	assert.Equal(t, 200, negotiated.CapacityBytes)

	req.CapacityBytes = 201 // 301 frames rounds down to 300
	_, negotiated, err = NewNegotiator(nil).Open(context.Background(),
		&fakeOpener{stream: newFakeStream("", caps)}, "default", req)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), negotiated.BufferFrames%negotiated.Periods)
}

func TestNegotiator_EndToEnd8000HzMono(t *testing.T) {
	caps := fullCaps()
	caps.Rates = Single(8000)
	caps.RateSet = []uint32{8000}

	req := DefaultRequest()
	req.Rate = 8000
	req.CapacityBytes = 2 * 8000 * 1 * 1

	stream := newFakeStream("", caps)
	session, err := OpenSession(context.Background(), NewNegotiator(nil), &fakeOpener{stream: stream}, "mock", req)
	require.NoError(t, err)

	negotiated := session.Negotiated()
	assert.Equal(t, uint32(8000), negotiated.Rate)
	assert.Equal(t, 16000, negotiated.CapacityBytes)

	buf := make([]byte, req.CapacityBytes)
	require.NoError(t, session.Play(context.Background(), buf, 1))
	require.NoError(t, session.Finish(false))
	require.NoError(t, session.Close())

	assert.Equal(t, 8000, stream.framesWritten)
	assert.True(t, stream.dropped)
	assert.True(t, stream.closed)
	assert.Equal(t, StateClosed, session.State())
}

func TestNegotiator_StageFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(caps *Capabilities, s *fakeStream, o *fakeOpener)
		poolSize int
		stage    Stage
		sentinel error
	}{
		{
			name:     "device open",
			mutate:   func(_ *Capabilities, _ *fakeStream, o *fakeOpener) { o.openErr = errors.New("device busy") },
			stage:    StageOpen,
			sentinel: ErrDeviceOpen,
		},
		{
			name:     "descriptor allocation",
			poolSize: -1,
			stage:    StageAlloc,
			sentinel: ErrParamsAlloc,
		},
		{
			name:     "capability query error",
			mutate:   func(_ *Capabilities, s *fakeStream, _ *fakeOpener) { s.capsErr = errors.New("ioctl failed") },
			stage:    StageQuery,
			sentinel: ErrParamsQuery,
		},
		{
			name:     "empty configuration space",
			mutate:   func(c *Capabilities, _ *fakeStream, _ *fakeOpener) { c.Formats = nil },
			stage:    StageQuery,
			sentinel: ErrParamsQuery,
		},
		{
			name:     "no interleaved access",
			mutate:   func(c *Capabilities, _ *fakeStream, _ *fakeOpener) { c.Accesses = []Access{AccessMMapInterleaved} },
			stage:    StageAccess,
			sentinel: ErrAccess,
		},
		{
			name:     "format unsupported",
			mutate:   func(c *Capabilities, _ *fakeStream, _ *fakeOpener) { c.Formats = []Format{FormatU8} },
			stage:    StageFormat,
			sentinel: ErrFormat,
		},
		{
			name: "no rate left",
			mutate: func(c *Capabilities, _ *fakeStream, _ *fakeOpener) {
				c.Rates = Interval{Min: 96000, Max: 192000}
				c.RateSet = []uint32{8000}
			},
			stage:    StageRate,
			sentinel: ErrRate,
		},
		{
			name:     "channel count unsupported",
			mutate:   func(c *Capabilities, _ *fakeStream, _ *fakeOpener) { c.Channels = Single(2) },
			stage:    StageChannels,
			sentinel: ErrChannels,
		},
		{
			name: "periods do not fit buffer",
			mutate: func(c *Capabilities, _ *fakeStream, _ *fakeOpener) {
				c.Periods = Interval{Min: 32, Max: 64}
				c.BufferFrames = Single(16)
			},
			stage:    StagePeriods,
			sentinel: ErrPeriods,
		},
		{
			name: "no buffer size multiple of periods",
			mutate: func(c *Capabilities, _ *fakeStream, _ *fakeOpener) {
				c.Periods = Single(3)
				c.BufferFrames = Interval{Min: 64, Max: 65}
			},
			stage:    StageBufferSize,
			sentinel: ErrBufferSize,
		},
		{
			name:     "commit rejected",
			mutate:   func(_ *Capabilities, s *fakeStream, _ *fakeOpener) { s.commitErr = errors.New("invalid argument") },
			stage:    StageCommit,
			sentinel: ErrCommit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := fullCaps()
			stream := newFakeStream("", caps)
			opener := &fakeOpener{stream: stream}
			if tt.mutate != nil {
				tt.mutate(&caps, stream, opener)
				stream.caps = caps
			}

			pool := NewParamsPool(DefaultPoolSize)
			if tt.poolSize < 0 {
				pool = NewParamsPool(0)
			}

			got, _, err := NewNegotiator(pool).Open(context.Background(), opener, "plughw:0,0", DefaultRequest())
			require.Error(t, err)
			assert.Nil(t, got)

			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.stage, FailedStage(err))
			for _, other := range stageSentinels {
				if other != tt.sentinel {
					assert.NotErrorIs(t, err, other)
				}
			}

			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "plughw:0,0", se.Device)
			assert.Contains(t, err.Error(), tt.sentinel.Error())

			assert.Equal(t, 0, pool.InUse(), "descriptor leaked")
			if tt.stage != StageOpen {
				assert.True(t, stream.closed, "stream left open after failure")
				assert.Nil(t, stream.committed)
			}
		})
	}
}

func TestNegotiator_InvalidRequestDoesNotOpen(t *testing.T) {
	opener := &fakeOpener{stream: newFakeStream("", fullCaps())}
	req := DefaultRequest()
	req.Channels = 0

	_, _, err := NewNegotiator(nil).Open(context.Background(), opener, "default", req)
	require.Error(t, err)
	assert.Equal(t, Stage(0), FailedStage(err))
	assert.Empty(t, opener.opened)
}

func TestNegotiator_ConfigureKeepsStreamOpen(t *testing.T) {
	stream := newFakeStream("hw:0", fullCaps())
	stream.commitErr = errors.New("busy")

	_, err := NewNegotiator(nil).Configure(stream, DefaultRequest())
	require.ErrorIs(t, err, ErrCommit)
	assert.False(t, stream.closed)
}

func TestStageError_Message(t *testing.T) {
	err := stageError(StageRate, "hw:0", errors.New("no rate available near 5"))
	assert.Equal(t, "could not set sample rate (hw:0): no rate available near 5", err.Error())
	assert.Equal(t, "rate", StageRate.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
