package sched

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	rec, err := NewCSVRecorder(path)
	require.NoError(t, err)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.Record(StatusEvent{Time: now, Kind: StatusDispatch, TaskID: 3, Name: "solver", RefCount: 0, Pending: 2})
	rec.Record(StatusEvent{Time: now, Kind: StatusIdle, TaskID: InvalidTaskID})
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	rec.Record(StatusEvent{Kind: StatusReset})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"timestamp", "event", "task_id", "name", "ref_count", "pending"},
		{"2024-01-02T03:04:05Z", "Dispatch", "3", "solver", "0", "2"},
		{"2024-01-02T03:04:05Z", "Idle", "", "", "0", "0"},
	}, rows)
}

func TestMemoryRecorder(t *testing.T) {
	rec := &MemoryRecorder{}
	rec.Record(StatusEvent{Kind: StatusSubmit})
	rec.Record(StatusEvent{Kind: StatusSubmit})
	rec.Record(StatusEvent{Kind: StatusDispatch})
	assert.Equal(t, 2, rec.Count(StatusSubmit))
	assert.Len(t, rec.Events(), 3)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestStatusKindString(t *testing.T) {
	assert.Equal(t, "DoubleDispatch", StatusDoubleDispatch.String())
	assert.Equal(t, "Unknown", StatusKind(99).String())
}
