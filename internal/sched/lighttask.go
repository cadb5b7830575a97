package sched

import (
	"context"
	"sync/atomic"
)

// unboundLight runs light tasks that have no manager.
var unboundLight inlineRunner

// LightTask is a task that never enters the task table. It is dispatched when
// its own reference count drops to zero and, once finished, removes one
// reference from its continuation.
type LightTask struct {
	name     string
	work     func(ctx context.Context) error
	Priority int

	tm       *TaskManager
	cont     Continuation
	refCount atomic.Int32
}

func NewLightTask(name string, work func(ctx context.Context) error) *LightTask {
	return &LightTask{name: name, work: work}
}

// SetContinuation binds the task to tm with one reference and holds back cont
// until this task has run.
func (lt *LightTask) SetContinuation(tm *TaskManager, cont Continuation) {
	lt.tm = tm
	lt.refCount.Store(1)
	lt.cont = cont
	if cont != nil {
		cont.AddReference()
	}
}

func (lt *LightTask) Name() string { return lt.name }

func (lt *LightTask) RunPriority() int { return lt.Priority }

func (lt *LightTask) Continuation() Continuation { return lt.cont }

func (lt *LightTask) Reference() int32 { return lt.refCount.Load() }

func (lt *LightTask) Run(ctx context.Context) error {
	if lt.work == nil {
		return nil
	}
	return lt.work(ctx)
}

// Release lets the continuation go.
func (lt *LightTask) Release() {
	if cont := lt.cont; cont != nil {
		cont.RemoveReference()
	}
}

func (lt *LightTask) AddReference() {
	if lt.tm != nil {
		lt.tm.AddLightReference(lt)
		return
	}
	lt.refCount.Add(1)
}

// RemoveReference submits the task once no references remain. A task that
// was never bound to a manager runs inline.
func (lt *LightTask) RemoveReference() {
	if lt.tm != nil {
		lt.tm.DecrLightReference(lt)
		return
	}
	if lt.refCount.Add(-1) == 0 {
		unboundLight.submit(lt, func(r Runnable) { execute(context.Background(), r, LogErrorCallback{}) })
	}
}
