// internal/sched/dispatcher.go

package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/trees/redblacktree"
	"golang.org/x/sync/errgroup"
)

// CpuDispatcher runs ready tasks. SubmitTask must not block on task completion.
type CpuDispatcher interface {
	SubmitTask(r Runnable)
	WorkerCount() int
}

// DefaultCpuDispatcher is a fixed pool of worker goroutines sharing one run
// queue ordered by task priority, FIFO within a priority.
type DefaultCpuDispatcher struct {
	mu     sync.Mutex         // protects the run queue
	cond   *sync.Cond         // signalled when work arrives or the pool closes
	rbt    *redblacktree.Tree // run queue ordered by priority and submission order
	seq    uint64             // submission counter
	closed bool
	inline inlineRunner // used with no workers or after Close

	workers  int
	ctx      context.Context
	group    *errgroup.Group
	errCb    ErrorCallback
	logger   *slog.Logger
	executed atomic.Int64 // tasks run to completion
	stopCtx  func() bool  // detaches the ctx shutdown hook
}

// DispatcherOptions configures a DefaultCpuDispatcher.
type DispatcherOptions struct {
	Workers       int // 0 runs tasks inline; nested submissions wait for the running one
	ErrorCallback ErrorCallback
	Logger        *slog.Logger
}

// NewDefaultCpuDispatcher starts the worker pool. Tasks receive ctx.
// Cancelling ctx closes the pool as Close does: queued tasks still run, with
// the cancelled ctx, and later submissions run inline.
func NewDefaultCpuDispatcher(ctx context.Context, opts DispatcherOptions) *DefaultCpuDispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cb := opts.ErrorCallback
	if cb == nil {
		cb = LogErrorCallback{Logger: logger}
	}
	workers := opts.Workers
	if workers < 0 {
		workers = 0
	}

	d := &DefaultCpuDispatcher{
		rbt:     redblacktree.NewWith(compareNodeKeys),
		workers: workers,
		ctx:     ctx,
		group:   new(errgroup.Group),
		errCb:   cb,
		logger:  logger,
	}
	d.cond = sync.NewCond(&d.mu)

	for i := 0; i < workers; i++ {
		id := i
		d.group.Go(func() error { return d.worker(id) })
	}
	d.stopCtx = context.AfterFunc(ctx, d.shutdown)
	logger.Debug("cpu dispatcher started", "workers", workers)
	return d
}

func (d *DefaultCpuDispatcher) WorkerCount() int { return d.workers }

// Executed returns how many tasks have finished running.
func (d *DefaultCpuDispatcher) Executed() int64 { return d.executed.Load() }

// SubmitTask queues r. With no workers, or after Close, r runs inline.
func (d *DefaultCpuDispatcher) SubmitTask(r Runnable) {
	d.mu.Lock()
	if d.workers == 0 || d.closed {
		d.mu.Unlock()
		d.inline.submit(r, d.run)
		return
	}

	prio := 0
	if p, ok := r.(interface{ RunPriority() int }); ok {
		prio = p.RunPriority()
	}
	d.seq++
	d.rbt.Put(nodeKey{priority: prio, seq: d.seq}, r)
	d.mu.Unlock()
	d.cond.Signal()
}

// Close lets the workers drain the queue, then waits for them to exit.
func (d *DefaultCpuDispatcher) Close() error {
	d.stopCtx()
	d.shutdown()
	return d.group.Wait()
}

func (d *DefaultCpuDispatcher) shutdown() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Queued returns the number of tasks waiting for a worker.
func (d *DefaultCpuDispatcher) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rbt.Size()
}

func (d *DefaultCpuDispatcher) worker(id int) error {
	logger := d.logger.With("worker", id)
	logger.Debug("worker started")
	for {
		d.mu.Lock()
		for d.rbt.Empty() && !d.closed {
			d.cond.Wait()
		}
		node := d.rbt.Left()
		if node == nil {
			// closed and drained
			d.mu.Unlock()
			logger.Debug("worker finished")
			return nil
		}
		d.rbt.Remove(node.Key)
		d.mu.Unlock()

		d.run(node.Value.(Runnable))
	}
}

func (d *DefaultCpuDispatcher) run(r Runnable) {
	execute(d.ctx, r, d.errCb)
	d.executed.Add(1)
}

// inlineRunner runs tasks on the submitting goroutine. A task submitted while
// inline work is already running is queued and picked up by the goroutine
// draining the queue, so a chain of completions never grows the stack.
type inlineRunner struct {
	mu       sync.Mutex
	pending  []Runnable
	draining bool
}

func (q *inlineRunner) submit(r Runnable, run func(Runnable)) {
	q.mu.Lock()
	if q.draining {
		q.pending = append(q.pending, r)
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	done := false
	defer func() {
		if !done {
			// run panicked; let the next submitter take over
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
		}
	}()
	for {
		run(r)

		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			done = true
			q.mu.Unlock()
			return
		}
		r = q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
	}
}

// execute runs r and always releases it, so a failing task still lets its
// dependents go.
func execute(ctx context.Context, r Runnable, cb ErrorCallback) {
	defer r.Release()
	defer func() {
		if p := recover(); p != nil {
			file, line := caller(0)
			cb.ReportError(ErrorInternal, fmt.Sprintf("task %q panicked: %v", r.Name(), p), file, line)
		}
	}()
	if err := r.Run(ctx); err != nil {
		file, line := caller(0)
		cb.ReportError(ErrorInternal, fmt.Sprintf("task %q failed: %v", r.Name(), err), file, line)
	}
}

// nodeKey is used as a key in the red-black tree.
type nodeKey struct {
	priority int
	seq      uint64
}

// compareNodeKeys orders nodeKeys by priority, then by submission order.
func compareNodeKeys(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	switch {
	case ka.priority < kb.priority:
		return -1
	case ka.priority > kb.priority:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}
