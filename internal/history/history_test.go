package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDatabase(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// fixed reference point: Wednesday 2026-03-18 15:00 local time
var testNow = time.Date(2026, time.March, 18, 15, 0, 0, 0, time.Local)

func sampleRun(device string, started time.Time, status Status) *Run {
	run := &Run{
		StartedAt:     started,
		FinishedAt:    started.Add(5 * time.Second),
		Command:       "play",
		Device:        device,
		Backend:       "null",
		Format:        "s16le",
		RequestedRate: 44100,
		EffectiveRate: 44100,
		Channels:      1,
		Periods:       8,
		BufferFrames:  1764000,
		Frequency:     440,
		Duration:      5 * time.Second,
		Repeat:        1,
		FramesWritten: 220500,
		Status:        status,
	}
	if status == StatusFailed {
		run.EffectiveRate = 0
		run.FramesWritten = 0
		run.FailedStage = "rate"
		run.Error = "could not set sample rate"
	}
	return run
}

func TestOpenDatabaseCreatesFileAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	db, err := OpenDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	for _, index := range []string{"idx_runs_started", "idx_runs_device", "idx_runs_failed"} {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count))
		assert.Equal(t, 1, count, index)
	}
}

func TestOpenDatabaseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := OpenDatabase(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDatabase(path)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestInMemoryDatabase(t *testing.T) {
	db, err := OpenDatabase(MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewRecorder(db).Record(context.Background(), sampleRun("default", testNow, StatusOK))
	require.NoError(t, err)

	runs, err := ListRuns(context.Background(), db, QueryFilter{}, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRecordAndListRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	recorder := NewRecorder(db)

	run := sampleRun("plughw:0,0", testNow.Add(-time.Minute), StatusOK)
	run.InputPath = "/music/a.wav"
	id, err := recorder.Record(context.Background(), run)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	runs, err := ListRuns(context.Background(), db, QueryFilter{}, testNow)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, id, got.RunID)
	assert.Equal(t, "plughw:0,0", got.Device)
	assert.Equal(t, uint32(44100), got.EffectiveRate)
	assert.Equal(t, uint32(1764000), got.BufferFrames)
	assert.Equal(t, 5*time.Second, got.Duration)
	assert.Equal(t, int64(220500), got.FramesWritten)
	assert.Equal(t, "/music/a.wav", got.InputPath)
	assert.Equal(t, StatusOK, got.Status)
	assert.Empty(t, got.FailedStage)
	assert.Equal(t, run.StartedAt.Unix(), got.StartedAt.Unix())
}

func TestRecordFillsDefaults(t *testing.T) {
	db := setupTestDB(t)
	recorder := NewRecorder(db)
	recorder.now = func() time.Time { return testNow }

	run := &Run{Command: "render", Device: "-", Backend: "-", Format: "s16le", RequestedRate: 8000, Channels: 1}
	_, err := recorder.Record(context.Background(), run)
	require.NoError(t, err)

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, testNow, run.FinishedAt)
	assert.Equal(t, testNow, run.StartedAt)
	assert.Equal(t, StatusOK, run.Status)
}

func TestRecorderDisablesAfterFailure(t *testing.T) {
	db := setupTestDB(t)
	recorder := NewRecorder(db)

	run := sampleRun("default", testNow, StatusOK)
	_, err := recorder.Record(context.Background(), run)
	require.NoError(t, err)

	// same run id violates the unique constraint
	_, err = recorder.Record(context.Background(), run)
	require.Error(t, err)
	assert.True(t, recorder.Disabled())

	_, err = recorder.Record(context.Background(), sampleRun("default", testNow, StatusOK))
	assert.ErrorIs(t, err, ErrRecorderDisabled)
}

func TestListRunsFilters(t *testing.T) {
	db := setupTestDB(t)
	recorder := NewRecorder(db)
	ctx := context.Background()

	seed := []*Run{
		sampleRun("hw:0", testNow.Add(-1*time.Hour), StatusOK),
		sampleRun("hw:0", testNow.Add(-2*time.Hour), StatusFailed),
		sampleRun("hw:1", testNow.Add(-26*time.Hour), StatusOK),
		sampleRun("hw:1", testNow.AddDate(0, 0, -20), StatusFailed),
	}
	for _, run := range seed {
		_, err := recorder.Record(ctx, run)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		filter   QueryFilter
		expected int
	}{
		{"everything", QueryFilter{}, 4},
		{"today", QueryFilter{DatePreset: "today"}, 2},
		{"yesterday", QueryFilter{DatePreset: "yesterday"}, 1},
		{"this month", QueryFilter{DatePreset: "month"}, 3},
		{"all", QueryFilter{DatePreset: "all"}, 4},
		{"device", QueryFilter{Device: "hw:1"}, 2},
		{"failed only", QueryFilter{FailedOnly: true}, 2},
		{"failed today on hw:0", QueryFilter{DatePreset: "today", Device: "hw:0", FailedOnly: true}, 1},
		{"limit", QueryFilter{Limit: 3}, 3},
		{"command mismatch", QueryFilter{Command: "render"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := ListRuns(ctx, db, tt.filter, testNow)
			require.NoError(t, err)
			assert.Len(t, runs, tt.expected)
		})
	}

	runs, err := ListRuns(ctx, db, QueryFilter{}, testNow)
	require.NoError(t, err)
	for i := 1; i < len(runs); i++ {
		assert.False(t, runs[i].StartedAt.After(runs[i-1].StartedAt), "newest first")
	}
}

func TestListRunsInvalidPreset(t *testing.T) {
	db := setupTestDB(t)
	_, err := ListRuns(context.Background(), db, QueryFilter{DatePreset: "fortnight"}, testNow)
	assert.ErrorContains(t, err, "unknown preset")

	_, err = ListRuns(context.Background(), nil, QueryFilter{}, testNow)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	db := setupTestDB(t)
	recorder := NewRecorder(db)
	ctx := context.Background()

	for _, run := range []*Run{
		sampleRun("hw:0", testNow.Add(-time.Hour), StatusOK),
		sampleRun("hw:0", testNow.Add(-time.Hour), StatusFailed),
		sampleRun("hw:1", testNow.Add(-time.Hour), StatusFailed),
	} {
		_, err := recorder.Record(ctx, run)
		require.NoError(t, err)
	}
	other := sampleRun("hw:2", testNow.Add(-time.Hour), StatusFailed)
	other.FailedStage = ""
	_, err := recorder.Record(ctx, other)
	require.NoError(t, err)

	summary, err := Summarize(ctx, db, QueryFilter{}, testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, int64(220500), summary.FramesWritten)
	assert.Equal(t, 3, summary.Devices)
	assert.Equal(t, map[string]int{"rate": 2, "other": 1}, summary.FailedStages)
}

func TestParseDatePreset(t *testing.T) {
	tests := []struct {
		preset        string
		expectedStart time.Time
		expectedEnd   time.Time
	}{
		{"today", time.Date(2026, 3, 18, 0, 0, 0, 0, time.Local), testNow},
		{"yesterday", time.Date(2026, 3, 17, 0, 0, 0, 0, time.Local), time.Date(2026, 3, 18, 0, 0, 0, 0, time.Local)},
		{"week", time.Date(2026, 3, 16, 0, 0, 0, 0, time.Local), testNow},
		{"last-week", time.Date(2026, 3, 9, 0, 0, 0, 0, time.Local), time.Date(2026, 3, 16, 0, 0, 0, 0, time.Local)},
		{"month", time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local), testNow},
		{"last-month", time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local), time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local)},
		{"all", time.Time{}, testNow},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			start, end, err := ParseDatePreset(tt.preset, testNow)
			require.NoError(t, err)
			assert.True(t, tt.expectedStart.Equal(start), "start %v", start)
			assert.True(t, tt.expectedEnd.Equal(end), "end %v", end)
		})
	}

	_, _, err := ParseDatePreset("decade", testNow)
	assert.Error(t, err)
}

func TestBeginningOfWeekOnSunday(t *testing.T) {
	sunday := time.Date(2026, 3, 22, 10, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.Local), beginningOfWeek(sunday))
}

func TestSinceFilter(t *testing.T) {
	filter := QueryFilter{Since: "yesterday"}
	start, end, err := filter.TimeRange(testNow)
	require.NoError(t, err)
	assert.True(t, start.Before(testNow))
	assert.True(t, start.After(testNow.Add(-48*time.Hour)))
	assert.Equal(t, testNow, end)
}

func TestExplicitTimeRange(t *testing.T) {
	from := testNow.Add(-3 * time.Hour)
	to := testNow.Add(-time.Hour)
	filter := QueryFilter{StartTime: &from, EndTime: &to}

	where, args, err := filter.BuildWhereClause(testNow)
	require.NoError(t, err)
	assert.Equal(t, "started_at >= ? AND started_at <= ?", where)
	assert.Equal(t, []any{from.Unix(), to.Unix()}, args)
}
