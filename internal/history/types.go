package history

import (
	"fmt"
	"time"
)

// Status is the outcome of a run
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Run is one invocation of play or render
type Run struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Command       string // "play" or "render"
	Device        string
	Backend       string
	Format        string
	RequestedRate uint32
	EffectiveRate uint32 // 0 when negotiation did not get that far
	Channels      uint32
	Periods       uint32
	BufferFrames  uint32
	Frequency     float64
	Duration      time.Duration
	Repeat        int
	FramesWritten int64
	InputPath     string
	Status        Status
	FailedStage   string // negotiation stage name for device failures
	Error         string
}

func (r Run) String() string {
	outcome := string(r.Status)
	if r.Status == StatusFailed && r.FailedStage != "" {
		outcome = fmt.Sprintf("failed at %s", r.FailedStage)
	}
	return fmt.Sprintf("%s %s %s %s %dHz %s",
		r.StartedAt.Format(time.DateTime), r.Command, r.Device, r.Format, r.EffectiveRate, outcome)
}

// Summary aggregates runs matching a filter
type Summary struct {
	Total         int
	Failed        int
	FramesWritten int64
	Devices       int
	FailedStages  map[string]int
}
