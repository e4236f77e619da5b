package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

// DefaultLimit caps history listings when no limit is given
const DefaultLimit = 20

// QueryFilter selects runs for listing and summaries
type QueryFilter struct {
	// Time filters; DatePreset wins over Since, which wins over StartTime/EndTime
	StartTime  *time.Time
	EndTime    *time.Time
	DatePreset string // "today", "yesterday", "week", "last-week", "month", "last-month", "all"
	Since      string // natural language lower bound, e.g. "3 days ago"

	Device     string
	Command    string
	FailedOnly bool

	Limit int
}

// TimeRange resolves the filter's time options against now. A zero start
// means no lower bound.
func (q *QueryFilter) TimeRange(now time.Time) (start, end time.Time, err error) {
	end = now

	switch {
	case q.DatePreset != "":
		return ParseDatePreset(q.DatePreset, now)
	case q.Since != "":
		start, err = ParseNaturalDate(q.Since, now)
		return start, end, err
	}

	if q.StartTime != nil {
		start = *q.StartTime
	}
	if q.EndTime != nil {
		end = *q.EndTime
	}
	return start, end, nil
}

// BuildWhereClause constructs the SQL condition and arguments for the filter
func (q *QueryFilter) BuildWhereClause(now time.Time) (string, []any, error) {
	var clauses []string
	var args []any

	start, end, err := q.TimeRange(now)
	if err != nil {
		return "", nil, err
	}
	if !start.IsZero() {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, start.Unix())
	}
	clauses = append(clauses, "started_at <= ?")
	args = append(args, end.Unix())

	if q.Device != "" {
		clauses = append(clauses, "device = ?")
		args = append(args, q.Device)
	}
	if q.Command != "" {
		clauses = append(clauses, "command = ?")
		args = append(args, q.Command)
	}
	if q.FailedOnly {
		clauses = append(clauses, "status = ?")
		args = append(args, string(StatusFailed))
	}

	where := strings.Join(clauses, " AND ")
	slog.Debug("built where clause", "clause", where, "arg_count", len(args))
	return where, args, nil
}

// ParseDatePreset converts date preset strings to time ranges
func ParseDatePreset(preset string, now time.Time) (start, end time.Time, err error) {
	switch preset {
	case "today":
		start = beginningOfDay(now)
		end = now
	case "yesterday":
		start = beginningOfDay(now.AddDate(0, 0, -1))
		end = beginningOfDay(now)
	case "week", "this-week":
		start = beginningOfWeek(now)
		end = now
	case "last-week":
		start = beginningOfWeek(now).AddDate(0, 0, -7)
		end = beginningOfWeek(now)
	case "month", "this-month":
		start = beginningOfMonth(now)
		end = now
	case "last-month":
		start = beginningOfMonth(now).AddDate(0, -1, 0)
		end = beginningOfMonth(now)
	case "all", "all-time":
		end = now
	default:
		err = fmt.Errorf("unknown preset: %s", preset)
	}
	return
}

// ParseNaturalDate parses expressions such as "yesterday" or "2 hours ago"
func ParseNaturalDate(naturalDate string, now time.Time) (time.Time, error) {
	result, err := naturaldate.Parse(naturalDate, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse natural date '%s': %w", naturalDate, err)
	}
	slog.Debug("parsed natural language date", "input", naturalDate, "result", result)
	return result, nil
}

func beginningOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// beginningOfWeek returns Monday 00:00 of t's week
func beginningOfWeek(t time.Time) time.Time {
	weekday := t.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	return beginningOfDay(t.AddDate(0, 0, -int(weekday-1)))
}

func beginningOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// ListRuns returns matching runs, newest first
func ListRuns(ctx context.Context, db *sql.DB, filter QueryFilter, now time.Time) ([]Run, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	where, args, err := filter.BuildWhereClause(now)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `
		SELECT run_id, started_at, finished_at, command, device, backend, format,
			requested_rate, effective_rate, channels, periods, buffer_frames,
			frequency, duration_ms, repeat, frames_written, input_path,
			status, failed_stage, error
		FROM playback_runs
		WHERE ` + where + `
		ORDER BY started_at DESC, id DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                         Run
			started, finished, duration int64
			status                      string
			inputPath, failedStage, msg sql.NullString
		)
		err := rows.Scan(&run.RunID, &started, &finished, &run.Command, &run.Device, &run.Backend, &run.Format,
			&run.RequestedRate, &run.EffectiveRate, &run.Channels, &run.Periods, &run.BufferFrames,
			&run.Frequency, &duration, &run.Repeat, &run.FramesWritten, &inputPath,
			&status, &failedStage, &msg)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.StartedAt = time.Unix(started, 0)
		run.FinishedAt = time.Unix(finished, 0)
		run.Duration = time.Duration(duration) * time.Millisecond
		run.Status = Status(status)
		run.InputPath = inputPath.String
		run.FailedStage = failedStage.String
		run.Error = msg.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// Summarize counts runs matching the filter and tallies failures by stage
func Summarize(ctx context.Context, db *sql.DB, filter QueryFilter, now time.Time) (*Summary, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	where, args, err := filter.BuildWhereClause(now)
	if err != nil {
		return nil, err
	}

	summary := &Summary{FailedStages: make(map[string]int)}
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(frames_written), 0),
			COUNT(DISTINCT device)
		FROM playback_runs WHERE `+where, args...).
		Scan(&summary.Total, &summary.Failed, &summary.FramesWritten, &summary.Devices)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT COALESCE(failed_stage, ''), COUNT(*)
		FROM playback_runs
		WHERE status = 'failed' AND `+where+`
		GROUP BY failed_stage`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed stages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stage row: %w", err)
		}
		if stage == "" {
			stage = "other"
		}
		summary.FailedStages[stage] += count
	}
	return summary, rows.Err()
}
