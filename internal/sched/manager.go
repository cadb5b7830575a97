// internal/sched/manager.go

package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TaskManager resolves dependencies between the tasks of one frame and hands
// ready tasks to a CpuDispatcher.
//
// All table mutation happens under mu. Reference counts are atomics so a
// zero-crossing has exactly one observer. The lock is released before any
// call into the dispatcher, so a dispatcher may run tasks inline and report
// completion from inside SubmitTask.
type TaskManager struct {
	mu     sync.Mutex    // protects everything below except the atomics
	errCb  ErrorCallback // non-fatal diagnostics
	tables taskTables    // task table, dependency table, name registry
	queue  []TaskID      // rows waiting to be dispatched in the current critical section
	idle   chan struct{} // closed while pending == 0

	pending    atomic.Int32                 // submitted rows not yet resolved
	dispatcher atomic.Pointer[dispatcherRef] // receives ready cpu tasks
	inline     inlineRunner                 // runs tasks when no dispatcher is set

	logger   *slog.Logger
	recorder EventRecorder
}

type dispatcherRef struct{ d CpuDispatcher }

// Option configures a TaskManager.
type Option func(*TaskManager)

// WithLogger sets the structured logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(m *TaskManager) { m.logger = l }
}

// WithRecorder streams every table transition to r.
func WithRecorder(r EventRecorder) Option {
	return func(m *TaskManager) { m.recorder = r }
}

// New creates an empty task manager. A nil callback logs diagnostics.
func New(cb ErrorCallback, d CpuDispatcher, opts ...Option) *TaskManager {
	m := &TaskManager{
		tables: newTaskTables(),
		idle:   make(chan struct{}),
		logger: slog.Default(),
	}
	m.dispatcher.Store(&dispatcherRef{d: d})
	close(m.idle)
	for _, opt := range opts {
		opt(m)
	}
	if cb == nil {
		cb = LogErrorCallback{Logger: m.logger}
	}
	m.errCb = cb
	return m
}

// SetCpuDispatcher swaps the dispatcher. Tasks already handed out stay where they are.
func (m *TaskManager) SetCpuDispatcher(d CpuDispatcher) {
	m.dispatcher.Store(&dispatcherRef{d: d})
}

// CpuDispatcher returns the current dispatcher without taking the lock.
func (m *TaskManager) CpuDispatcher() CpuDispatcher {
	return m.dispatcher.Load().d
}

// PendingTasks returns the number of rows that have not been resolved yet.
func (m *TaskManager) PendingTasks() int32 { return m.pending.Load() }

// WaitIdle blocks until every pending row has been resolved.
func (m *TaskManager) WaitIdle(ctx context.Context) error {
	m.mu.Lock()
	ch := m.idle
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetDependencies clears all tables for the next frame.
// It fails while any task is still pending.
func (m *TaskManager) ResetDependencies() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := m.pending.Load(); n != 0 {
		return fmt.Errorf("reset with %d tasks: %w", n, ErrPendingTasks)
	}
	m.tables.reset()
	m.queue = m.queue[:0]
	m.emit(StatusReset, InvalidTaskID, nil)
	return nil
}

// StartSimulation removes the submission bias from every row and dispatches
// the rows that become ready. The whole table is scanned before the first
// dispatch, so ready rows go out in table order.
func (m *TaskManager) StartSimulation() {
	m.mu.Lock()
	if m.pending.Load() == 0 {
		m.mu.Unlock()
		return
	}
	m.emit(StatusStart, InvalidTaskID, nil)
	m.logger.Debug("starting simulation", "tasks", m.tables.len(), "pending", m.pending.Load())

	for i, r := range m.tables.rows {
		if r.kind == KindCompleted {
			continue
		}
		if m.decrLocked(TaskID(i), r) {
			m.queue = append(m.queue, TaskID(i))
		}
	}
	ready := m.drainLocked(nil)
	m.unlockAndSubmit(ready)
}

// StopSimulation is a hook for symmetry with StartSimulation.
func (m *TaskManager) StopSimulation() {
	m.logger.Debug("stopping simulation", "pending", m.pending.Load())
}

// TaskCompleted resolves the dependents of a finished task.
// Workers call it through Task.Release.
func (m *TaskManager) TaskCompleted(t *Task) {
	m.mu.Lock()
	r, err := m.rowOfLocked(t)
	if err != nil {
		m.mu.Unlock()
		m.report(ErrorInvalidOperation, fmt.Sprintf("task completed: %v", err))
		return
	}
	m.emit(StatusComplete, t.id, r)
	m.resolveLocked(t.id, r)
	ready := m.drainLocked(nil)
	m.unlockAndSubmit(ready)
}

// GetNamedTask returns the id registered under name, creating a bodyless
// placeholder when the name is new.
func (m *TaskManager) GetNamedTask(name string) TaskID {
	// cannot fail without a body
	id, _ := m.SubmitNamedTask(nil, name, KindNotPresent)
	return id
}

// SubmitNamedTask registers t under name. If the name was forward referenced
// the body is attached to the existing row. A nil t only reserves the name.
func (m *TaskManager) SubmitNamedTask(t *Task, name string, kind TaskKind) (TaskID, error) {
	if t != nil && t.OnSubmit != nil {
		t.OnSubmit()
	}
	if t == nil {
		kind = KindNotPresent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.tables.names[name]; ok {
		if t == nil {
			return id, nil
		}
		r := m.tables.rows[id]
		switch {
		case r.kind == KindCompleted:
			return id, fmt.Errorf("submit %q: %w", name, ErrTaskCompleted)
		case r.task != nil || r.kind != KindNotPresent:
			return id, fmt.Errorf("submit %q: %w", name, ErrAlreadyAttached)
		}
		r.task = t
		r.kind = kind
		t.id = id
		t.tm = m
		m.emit(StatusSubmit, id, r)
		m.logger.Debug("attached task to named placeholder", "task", name, "id", id, "kind", kind)
		return id, nil
	}

	id := m.submitLocked(t, kind, name)
	m.tables.names[name] = id
	return id, nil
}

// SubmitUnnamedTask adds t as a new row.
func (m *TaskManager) SubmitUnnamedTask(t *Task, kind TaskKind) (TaskID, error) {
	if t == nil {
		return InvalidTaskID, fmt.Errorf("submit unnamed: %w", ErrNilTask)
	}
	if t.OnSubmit != nil {
		t.OnSubmit()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitLocked(t, kind, t.name), nil
}

func (m *TaskManager) submitLocked(t *Task, kind TaskKind, name string) TaskID {
	id := m.tables.appendRow(t, kind, name)
	if t != nil {
		t.id = id
		t.tm = m
	}
	m.addPendingLocked()
	r := m.tables.rows[id]
	m.emit(StatusSubmit, id, r)
	m.logger.Debug("submitted task", "task", name, "id", id, "kind", kind)
	return id
}

// GetTaskFromID returns the body of a row, or nil.
func (m *TaskManager) GetTaskFromID(id TaskID) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tables.row(id)
	if !ok {
		return nil
	}
	return r.task
}

// DispatchTask dispatches a row regardless of its reference count.
// Dispatching a completed row is reported and otherwise ignored.
func (m *TaskManager) DispatchTask(id TaskID) error {
	m.mu.Lock()
	if _, ok := m.tables.row(id); !ok {
		m.mu.Unlock()
		return fmt.Errorf("dispatch %d: %w", id, ErrUnknownTask)
	}
	m.queue = append(m.queue, id)
	ready := m.drainLocked(nil)
	m.unlockAndSubmit(ready)
	return nil
}

// FinishBefore makes target wait until t has completed.
func (m *TaskManager) FinishBefore(t *Task, target TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, err := m.rowOfLocked(t)
	if err != nil {
		return fmt.Errorf("finish before: %w", err)
	}
	tr, ok := m.tables.row(target)
	if !ok {
		return fmt.Errorf("finish before %d: %w", target, ErrUnknownTask)
	}
	if tr.kind == KindCompleted {
		return fmt.Errorf("finish before %d: %w", target, ErrTaskCompleted)
	}
	m.tables.addDependency(owner, target)
	tr.refCount.Add(1)
	return nil
}

// StartAfter makes t wait until target has completed.
func (m *TaskManager) StartAfter(t *Task, target TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	self, err := m.rowOfLocked(t)
	if err != nil {
		return fmt.Errorf("start after: %w", err)
	}
	tr, ok := m.tables.row(target)
	if !ok {
		return fmt.Errorf("start after %d: %w", target, ErrUnknownTask)
	}
	if tr.kind == KindCompleted {
		return fmt.Errorf("start after %d: %w", target, ErrTaskCompleted)
	}
	m.tables.addDependency(tr, t.id)
	self.refCount.Add(1)
	return nil
}

func (m *TaskManager) AddReference(id TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tables.row(id)
	if !ok {
		return fmt.Errorf("add reference %d: %w", id, ErrUnknownTask)
	}
	r.refCount.Add(1)
	return nil
}

// DecrReference drops one reference; the row is dispatched when none remain.
func (m *TaskManager) DecrReference(id TaskID) error {
	m.mu.Lock()
	r, ok := m.tables.row(id)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("decrement reference %d: %w", id, ErrUnknownTask)
	}
	if m.decrLocked(id, r) {
		m.queue = append(m.queue, id)
	}
	ready := m.drainLocked(nil)
	m.unlockAndSubmit(ready)
	return nil
}

func (m *TaskManager) GetReference(id TaskID) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tables.row(id)
	if !ok {
		return 0, fmt.Errorf("get reference %d: %w", id, ErrUnknownTask)
	}
	return r.refCount.Load(), nil
}

// AddLightReference holds back a light task. It does not take the lock.
func (m *TaskManager) AddLightReference(lt *LightTask) {
	lt.refCount.Add(1)
}

// DecrLightReference drops one reference from a light task and submits it
// when none remain. Like AddLightReference it never takes the lock.
func (m *TaskManager) DecrLightReference(lt *LightTask) {
	n := lt.refCount.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		lt.refCount.Add(1)
		m.report(ErrorInvalidOperation, fmt.Sprintf("light task %q released too many times", lt.name))
		return
	}
	m.submit(m.CpuDispatcher(), lt)
}

// decrLocked drops one reference and reports whether it was the last.
func (m *TaskManager) decrLocked(id TaskID, r *taskRow) bool {
	n := r.refCount.Add(-1)
	if n < 0 {
		r.refCount.Add(1)
		m.report(ErrorInvalidOperation, fmt.Sprintf("reference count of task %d (%q) dropped below zero", id, r.name))
		return false
	}
	return n == 0
}

// drainLocked dispatches every queued row. Rows freed by resolving
// bodyless rows are appended to the queue and handled in the same pass.
// Cpu tasks are returned for submission once the lock is released.
func (m *TaskManager) drainLocked(ready []*Task) []*Task {
	for i := 0; i < len(m.queue); i++ {
		ready = m.dispatchLocked(m.queue[i], ready)
	}
	m.queue = m.queue[:0]
	return ready
}

func (m *TaskManager) dispatchLocked(id TaskID, ready []*Task) []*Task {
	r := m.tables.rows[id]
	kind := r.kind

	// prevent re-submission
	if kind == KindCompleted {
		m.emit(StatusDoubleDispatch, id, r)
		m.report(ErrorDebugWarning, fmt.Sprintf("task %d (%q) dispatched twice", id, r.name))
		return ready
	}
	r.kind = KindCompleted
	m.emit(StatusDispatch, id, r)

	switch kind {
	case KindCPU:
		if r.task != nil {
			ready = append(ready, r.task)
			break
		}
		m.report(ErrorInternal, fmt.Sprintf("cpu task %d (%q) has no body", id, r.name))
		m.resolveLocked(id, r)
	case KindNotPresent:
		m.resolveLocked(id, r)
	default:
		m.report(ErrorDebugWarning, fmt.Sprintf("task %d (%q) has unknown kind %s", id, r.name, kind))
		m.resolveLocked(id, r)
	}
	return ready
}

// resolveLocked releases the dependents of a finished row.
func (m *TaskManager) resolveLocked(id TaskID, r *taskRow) {
	m.tables.dependents(r, func(dep TaskID) {
		if m.decrLocked(dep, m.tables.rows[dep]) {
			m.queue = append(m.queue, dep)
		}
	})
	m.emit(StatusResolve, id, r)
	m.donePendingLocked()
}

func (m *TaskManager) addPendingLocked() {
	if m.pending.Add(1) == 1 {
		m.idle = make(chan struct{})
	}
}

func (m *TaskManager) donePendingLocked() {
	switch n := m.pending.Add(-1); {
	case n == 0:
		close(m.idle)
		m.emit(StatusIdle, InvalidTaskID, nil)
	case n < 0:
		m.pending.Add(1)
		m.report(ErrorInternal, "pending task count dropped below zero")
	}
}

// rowOfLocked returns the row of a submitted task.
func (m *TaskManager) rowOfLocked(t *Task) (*taskRow, error) {
	if t == nil {
		return nil, ErrNilTask
	}
	if t.tm != m {
		return nil, fmt.Errorf("task %q: %w", t.name, ErrNotSubmitted)
	}
	r, ok := m.tables.row(t.id)
	if !ok || r.task != t {
		return nil, fmt.Errorf("task %q (%d): %w", t.name, t.id, ErrUnknownTask)
	}
	return r, nil
}

// unlockAndSubmit releases the lock and hands ready tasks to the dispatcher.
func (m *TaskManager) unlockAndSubmit(ready []*Task) {
	d := m.CpuDispatcher()
	m.mu.Unlock()
	for _, t := range ready {
		m.submit(d, t)
	}
}

func (m *TaskManager) submit(d CpuDispatcher, r Runnable) {
	if d == nil {
		m.report(ErrorInvalidOperation, fmt.Sprintf("%v: running %q inline", ErrNoDispatcher, r.Name()))
		m.inline.submit(r, func(r Runnable) { execute(context.Background(), r, m.errCb) })
		return
	}
	d.SubmitTask(r)
}

func (m *TaskManager) report(code ErrorCode, msg string) {
	file, line := caller(1)
	m.errCb.ReportError(code, msg, file, line)
}

func (m *TaskManager) emit(kind StatusKind, id TaskID, r *taskRow) {
	if m.recorder == nil {
		return
	}
	ev := StatusEvent{
		Time:    time.Now(),
		Kind:    kind,
		TaskID:  id,
		Pending: m.pending.Load(),
	}
	if r != nil {
		ev.Name = r.name
		ev.RefCount = r.refCount.Load()
	}
	m.recorder.Record(ev)
}
