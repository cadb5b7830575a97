package sched

import "sync/atomic"

// eol terminates a dependents list.
const eol int32 = -1

// depRow is one entry of a task's dependents list.
type depRow struct {
	taskID TaskID // task to decrement when the owner completes
	next   int32  // next row of the same list, or eol
}

// taskRow holds the scheduling state of one task.
// Rows are heap allocated so refCount can be touched without the manager
// lock while the table slice grows.
type taskRow struct {
	task     *Task
	name     string
	refCount atomic.Int32
	kind     TaskKind
	startDep int32
	lastDep  int32
}

func (r *taskRow) init(task *Task, kind TaskKind, name string) {
	r.task = task
	r.name = name
	r.refCount.Store(1)
	r.kind = kind
	r.startDep = eol
	r.lastDep = eol
}

// taskTables is the arena behind a TaskManager. Callers hold the manager lock.
type taskTables struct {
	rows  []*taskRow
	deps  []depRow
	names map[string]TaskID

	free []*taskRow // rows recycled across resets
}

func newTaskTables() taskTables {
	return taskTables{names: make(map[string]TaskID)}
}

func (tt *taskTables) len() int { return len(tt.rows) }

func (tt *taskTables) row(id TaskID) (*taskRow, bool) {
	if int(id) >= len(tt.rows) {
		return nil, false
	}
	return tt.rows[id], true
}

// appendRow allocates the next id.
func (tt *taskTables) appendRow(task *Task, kind TaskKind, name string) TaskID {
	var r *taskRow
	if n := len(tt.free); n > 0 {
		r = tt.free[n-1]
		tt.free[n-1] = nil
		tt.free = tt.free[:n-1]
	} else {
		r = new(taskRow)
	}
	r.init(task, kind, name)
	id := TaskID(len(tt.rows))
	tt.rows = append(tt.rows, r)
	return id
}

// addDependency appends dependent to owner's dependents list.
func (tt *taskTables) addDependency(owner *taskRow, dependent TaskID) {
	idx := int32(len(tt.deps))
	tt.deps = append(tt.deps, depRow{taskID: dependent, next: eol})
	if owner.lastDep == eol {
		owner.startDep = idx
	} else {
		tt.deps[owner.lastDep].next = idx
	}
	owner.lastDep = idx
}

// dependents calls fn for each entry of r's list in insertion order.
func (tt *taskTables) dependents(r *taskRow, fn func(TaskID)) {
	for i := r.startDep; i != eol; i = tt.deps[i].next {
		fn(tt.deps[i].taskID)
	}
}

// reset truncates the tables, keeping their storage for the next epoch.
func (tt *taskTables) reset() {
	for i, r := range tt.rows {
		r.task = nil
		r.name = ""
		tt.free = append(tt.free, r)
		tt.rows[i] = nil
	}
	tt.rows = tt.rows[:0]
	tt.deps = tt.deps[:0]
	clear(tt.names)
}
