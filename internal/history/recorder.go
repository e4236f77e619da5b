package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrRecorderDisabled is returned once a recorder has turned itself off
var ErrRecorderDisabled = errors.New("history recorder disabled")

// Recorder inserts runs into the history database. After the first failed
// insert it disables itself so a broken database never blocks playback.
type Recorder struct {
	db       *sql.DB
	disabled bool
	now      func() time.Time
}

// NewRecorder creates a recorder writing to db
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Disabled reports whether the recorder stopped recording
func (r *Recorder) Disabled() bool {
	return r.disabled
}

// Record stores run, filling in a run id and timestamps when unset, and
// returns the run id.
func (r *Recorder) Record(ctx context.Context, run *Run) (string, error) {
	if r.disabled {
		return "", ErrRecorderDisabled
	}

	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = r.now()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	if run.Status == "" {
		run.Status = StatusOK
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playback_runs (
			run_id, started_at, finished_at, command, device, backend, format,
			requested_rate, effective_rate, channels, periods, buffer_frames,
			frequency, duration_ms, repeat, frames_written, input_path,
			status, failed_stage, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.Unix(), run.FinishedAt.Unix(),
		run.Command, run.Device, run.Backend, run.Format,
		run.RequestedRate, run.EffectiveRate, run.Channels, run.Periods, run.BufferFrames,
		run.Frequency, run.Duration.Milliseconds(), run.Repeat, run.FramesWritten,
		nullString(run.InputPath), string(run.Status),
		nullString(run.FailedStage), nullString(run.Error),
	)
	if err != nil {
		slog.Warn("history recording failed, disabling recorder", "run_id", run.RunID, "error", err)
		r.disabled = true
		return "", fmt.Errorf("failed to record run: %w", err)
	}

	slog.Debug("run recorded",
		"run_id", run.RunID,
		"command", run.Command,
		"device", run.Device,
		"status", run.Status)
	return run.RunID, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
