package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(tt *taskTables, r *taskRow) []TaskID {
	var out []TaskID
	tt.dependents(r, func(id TaskID) { out = append(out, id) })
	return out
}

func TestTaskTablesDependents(t *testing.T) {
	tt := newTaskTables()
	a := tt.appendRow(nil, KindNotPresent, "a")
	b := tt.appendRow(nil, KindCPU, "b")
	c := tt.appendRow(nil, KindCPU, "c")
	assert.Equal(t, []TaskID{0, 1, 2}, []TaskID{a, b, c})

	ra, _ := tt.row(a)
	rb, _ := tt.row(b)
	assert.Empty(t, collect(&tt, ra))
	assert.Equal(t, eol, ra.startDep)

	tt.addDependency(ra, c)
	tt.addDependency(rb, c)
	tt.addDependency(ra, b)
	assert.Equal(t, []TaskID{c, b}, collect(&tt, ra))
	assert.Equal(t, []TaskID{c}, collect(&tt, rb))
	assert.Len(t, tt.deps, 3)

	_, ok := tt.row(3)
	assert.False(t, ok)
}

func TestTaskTablesReset(t *testing.T) {
	tt := newTaskTables()
	task := NewTask("x", nil)
	id := tt.appendRow(task, KindCPU, "x")
	tt.names["x"] = id
	r, _ := tt.row(id)
	r.refCount.Add(4)
	tt.addDependency(r, id)
	depsCap := cap(tt.deps)

	tt.reset()
	assert.Zero(t, tt.len())
	assert.Empty(t, tt.deps)
	assert.Equal(t, depsCap, cap(tt.deps))
	assert.Empty(t, tt.names)
	require.Len(t, tt.free, 1)
	assert.Nil(t, tt.free[0].task)

	// recycled rows start clean
	id = tt.appendRow(nil, KindNotPresent, "y")
	r2, _ := tt.row(id)
	assert.Same(t, r, r2)
	assert.EqualValues(t, 1, r2.refCount.Load())
	assert.Equal(t, eol, r2.startDep)
	assert.Equal(t, "y", r2.name)
	assert.Empty(t, tt.free)
}

func TestTaskKindString(t *testing.T) {
	assert.Equal(t, "cpu", KindCPU.String())
	assert.Equal(t, "not-present", KindNotPresent.String())
	assert.Equal(t, "completed", KindCompleted.String())
	assert.Equal(t, "unknown(9)", TaskKind(9).String())
}
