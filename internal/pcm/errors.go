package pcm

import (
	"errors"
	"fmt"
)

// Negotiation stage failures. Every error returned by the negotiator matches
// exactly one of these with errors.Is.
var (
	ErrDeviceOpen  = errors.New("could not open output audio device")
	ErrParamsAlloc = errors.New("could not allocate hardware parameters")
	ErrParamsQuery = errors.New("could not initialize hardware parameters")
	ErrAccess      = errors.New("could not set access type")
	ErrFormat      = errors.New("could not set sample format")
	ErrRate        = errors.New("could not set sample rate")
	ErrChannels    = errors.New("could not set channel count")
	ErrPeriods     = errors.New("could not set period count")
	ErrBufferSize  = errors.New("could not set buffer size")
	ErrCommit      = errors.New("could not apply hardware parameters")
)

// Write path and lifecycle errors
var (
	ErrInvalidState = errors.New("invalid playback state transition")
	ErrNoProgress   = errors.New("device accepted no frames")
	ErrStreamClosed = errors.New("stream is closed")
	ErrParamsFreed  = errors.New("hardware parameters already released")
)

// Stage names one step of device negotiation
type Stage int

const (
	StageOpen Stage = iota + 1
	StageAlloc
	StageQuery
	StageAccess
	StageFormat
	StageRate
	StageChannels
	StagePeriods
	StageBufferSize
	StageCommit
)

var stageNames = map[Stage]string{
	StageOpen:       "open",
	StageAlloc:      "alloc",
	StageQuery:      "query",
	StageAccess:     "access",
	StageFormat:     "format",
	StageRate:       "rate",
	StageChannels:   "channels",
	StagePeriods:    "periods",
	StageBufferSize: "buffer_size",
	StageCommit:     "commit",
}

var stageSentinels = map[Stage]error{
	StageOpen:       ErrDeviceOpen,
	StageAlloc:      ErrParamsAlloc,
	StageQuery:      ErrParamsQuery,
	StageAccess:     ErrAccess,
	StageFormat:     ErrFormat,
	StageRate:       ErrRate,
	StageChannels:   ErrChannels,
	StagePeriods:    ErrPeriods,
	StageBufferSize: ErrBufferSize,
	StageCommit:     ErrCommit,
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Sentinel returns the error value that identifies failures of this stage
func (s Stage) Sentinel() error {
	return stageSentinels[s]
}

// StageError reports which negotiation step failed and why
type StageError struct {
	Stage  Stage
	Device string
	Err    error
}

func (e *StageError) Error() string {
	sentinel := e.Stage.Sentinel()
	if sentinel == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("%v (%s)", sentinel, e.Device)
	}
	return fmt.Sprintf("%v (%s): %v", sentinel, e.Device, e.Err)
}

// Unwrap exposes both the stage sentinel and the underlying cause
func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel := e.Stage.Sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func stageError(stage Stage, device string, err error) error {
	return &StageError{Stage: stage, Device: device, Err: err}
}

// FailedStage extracts the stage from a negotiation error, or 0 if err is not one
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return 0
}
