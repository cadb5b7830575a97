package sched

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// manualDispatcher records submissions; tests decide when tasks finish.
type manualDispatcher struct {
	mu        sync.Mutex
	submitted []Runnable
}

func (d *manualDispatcher) SubmitTask(r Runnable) {
	d.mu.Lock()
	d.submitted = append(d.submitted, r)
	d.mu.Unlock()
}

func (d *manualDispatcher) WorkerCount() int { return 0 }

func (d *manualDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.submitted))
	for _, r := range d.submitted {
		out = append(out, r.Name())
	}
	return out
}

// finish runs and releases the submitted task called name.
func (d *manualDispatcher) finish(t *testing.T, name string) {
	t.Helper()
	d.mu.Lock()
	var found Runnable
	for _, r := range d.submitted {
		if r.Name() == name {
			found = r
			break
		}
	}
	d.mu.Unlock()
	require.NotNil(t, found, "task %q was never submitted", name)
	execute(context.Background(), found, LogErrorCallback{})
}

// diagnostics collects ErrorCallback reports.
type diagnostics struct {
	mu       sync.Mutex
	codes    []ErrorCode
	messages []string
}

func (d *diagnostics) ReportError(code ErrorCode, message, file string, line int) {
	d.mu.Lock()
	d.codes = append(d.codes, code)
	d.messages = append(d.messages, message)
	d.mu.Unlock()
}

func (d *diagnostics) count(code ErrorCode) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.codes {
		if c == code {
			n++
		}
	}
	return n
}

func (d *diagnostics) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.codes)
}

type fixture struct {
	tm   *TaskManager
	disp *manualDispatcher
	diag *diagnostics
	rec  *MemoryRecorder
}

func newFixture() fixture {
	f := fixture{
		disp: &manualDispatcher{},
		diag: &diagnostics{},
		rec:  &MemoryRecorder{},
	}
	f.tm = New(f.diag, f.disp, WithRecorder(f.rec))
	return f
}

func (f fixture) submit(t *testing.T, name string) *Task {
	t.Helper()
	task := NewTask(name, nil)
	_, err := f.tm.SubmitUnnamedTask(task, KindCPU)
	require.NoError(t, err)
	return task
}

func (f fixture) ref(t *testing.T, id TaskID) int32 {
	t.Helper()
	n, err := f.tm.GetReference(id)
	require.NoError(t, err)
	return n
}
