package sched

import (
	"context"
	"fmt"
)

// TaskID is a dense index into the manager's task table.
// IDs are handed out in registration order and stay valid until the next reset.
type TaskID uint32

// InvalidTaskID marks a task that has not been submitted yet.
const InvalidTaskID TaskID = ^TaskID(0)

// TaskKind says how a task table row is dispatched.
type TaskKind int

const (
	KindCPU        TaskKind = iota // handed to the CpuDispatcher
	KindNotPresent                 // name referenced before any task was submitted under it
	KindCompleted                  // dispatched; any later dispatch is rejected
)

func (k TaskKind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindNotPresent:
		return "not-present"
	case KindCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Runnable is the unit of work a CpuDispatcher executes.
// Workers call Run and then Release exactly once, even if Run fails.
type Runnable interface {
	Name() string
	Run(ctx context.Context) error
	Release()
}

// Continuation is anything whose dispatch can be held back by references.
type Continuation interface {
	AddReference()
	RemoveReference()
}

// Task is a node of the frame's task graph.
type Task struct {
	name     string
	work     func(ctx context.Context) error // work function
	Priority int                             // lower runs first in the default dispatcher
	OnSubmit func()                          // called outside the manager lock on submission

	id TaskID
	tm *TaskManager
}

// NewTask creates an unsubmitted task.
func NewTask(name string, work func(ctx context.Context) error) *Task {
	return &Task{
		name: name,
		work: work,
		id:   InvalidTaskID,
	}
}

func (t *Task) Name() string { return t.name }

// RunPriority orders the task in the default dispatcher's run queue.
func (t *Task) RunPriority() int { return t.Priority }

// ID returns the id assigned on submission, or InvalidTaskID.
func (t *Task) ID() TaskID { return t.id }

// Manager returns the manager the task was submitted to, if any.
func (t *Task) Manager() *TaskManager { return t.tm }

func (t *Task) Run(ctx context.Context) error {
	if t.work == nil {
		return nil
	}
	return t.work(ctx)
}

// Release reports the task as completed to its manager.
func (t *Task) Release() {
	if t.tm != nil {
		t.tm.TaskCompleted(t)
	}
}

// FinishBefore makes target wait for t.
func (t *Task) FinishBefore(target TaskID) error {
	if t.tm == nil {
		return ErrNotSubmitted
	}
	return t.tm.FinishBefore(t, target)
}

// StartAfter makes t wait for target.
func (t *Task) StartAfter(target TaskID) error {
	if t.tm == nil {
		return ErrNotSubmitted
	}
	return t.tm.StartAfter(t, target)
}

func (t *Task) AddReference() {
	if t.tm == nil {
		return
	}
	if err := t.tm.AddReference(t.id); err != nil {
		t.tm.report(ErrorInvalidOperation, err.Error())
	}
}

func (t *Task) RemoveReference() {
	if t.tm == nil {
		return
	}
	if err := t.tm.DecrReference(t.id); err != nil {
		t.tm.report(ErrorInvalidOperation, err.Error())
	}
}

// Reference returns the task's current reference count.
func (t *Task) Reference() int32 {
	if t.tm == nil {
		return 0
	}
	n, err := t.tm.GetReference(t.id)
	if err != nil {
		t.tm.report(ErrorInvalidOperation, err.Error())
	}
	return n
}
