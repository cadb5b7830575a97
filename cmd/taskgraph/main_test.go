package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskgraph/internal/sched"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "taskgraph.yml")
	csvPath := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(cfgPath, []byte("workers: 3\nframe_ms: 1\nislands: 5\n"), 0o644))

	var out bytes.Buffer
	err := run(context.Background(), &out, []string{"-config", cfgPath, "-frames", "3", "-csv", csvPath})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "simulation finished")
	assert.Contains(t, out.String(), "double_dispatches=0")

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"timestamp", "event", "task_id", "name", "ref_count", "pending"}, rows[0])

	resets := 0
	for _, row := range rows[1:] {
		if row[1] == sched.StatusReset.String() {
			resets++
		}
	}
	assert.Equal(t, 3, resets)
}

func TestRunHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &out, []string{"-h"}))
	assert.Contains(t, out.String(), "-config")
}

func TestBuildFrameInline(t *testing.T) {
	d := sched.NewDefaultCpuDispatcher(context.Background(), sched.DispatcherOptions{})
	rec := &sched.MemoryRecorder{}
	var warnings int
	cb := sched.ErrorCallbackFunc(func(sched.ErrorCode, string, string, int) { warnings++ })
	tm := sched.New(cb, d, sched.WithRecorder(rec))

	require.NoError(t, buildFrame(tm, 2))
	assert.EqualValues(t, 6, tm.PendingTasks())

	tm.StartSimulation()
	assert.Zero(t, tm.PendingTasks())
	assert.Zero(t, warnings)
	// six graph tasks plus two islands
	assert.EqualValues(t, 8, d.Executed())
	assert.Equal(t, 6, rec.Count(sched.StatusDispatch))
}
