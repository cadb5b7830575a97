// internal/sched/schedulerEvent.go

package sched

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusSubmit StatusKind = iota
	StatusDispatch
	StatusResolve
	StatusComplete
	StatusDoubleDispatch
	StatusReset
	StatusStart
	StatusIdle
)

// StatusEvent is emitted on every table transition.
type StatusEvent struct {
	Time     time.Time
	Kind     StatusKind
	TaskID   TaskID
	Name     string
	RefCount int32
	Pending  int32
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusSubmit:
		return "Submit"
	case StatusDispatch:
		return "Dispatch"
	case StatusResolve:
		return "Resolve"
	case StatusComplete:
		return "Complete"
	case StatusDoubleDispatch:
		return "DoubleDispatch"
	case StatusReset:
		return "Reset"
	case StatusStart:
		return "Start"
	case StatusIdle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// EventRecorder consumes status events. Record is called with the manager
// lock held and must not call back into the manager.
type EventRecorder interface {
	Record(ev StatusEvent)
}

// MemoryRecorder keeps every event in memory.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (m *MemoryRecorder) Record(ev StatusEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (m *MemoryRecorder) Events() []StatusEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StatusEvent(nil), m.events...)
}

// Count returns how many events of the given kind were recorded.
func (m *MemoryRecorder) Count(kind StatusKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops all recorded events.
func (m *MemoryRecorder) Reset() {
	m.mu.Lock()
	m.events = m.events[:0]
	m.mu.Unlock()
}

// CSVRecorder appends events to a CSV file.
type CSVRecorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVRecorder creates the file at path and writes the header row.
func NewCSVRecorder(path string) (*CSVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"timestamp", "event", "task_id", "name", "ref_count", "pending"}); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &CSVRecorder{file: f, writer: w}, nil
}

func (c *CSVRecorder) Record(ev StatusEvent) {
	id := ""
	if ev.TaskID != InvalidTaskID {
		id = strconv.FormatUint(uint64(ev.TaskID), 10)
	}
	rec := []string{
		ev.Time.Format(time.RFC3339Nano),
		ev.Kind.String(),
		id,
		ev.Name,
		strconv.FormatInt(int64(ev.RefCount), 10),
		strconv.FormatInt(int64(ev.Pending), 10),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return
	}
	_ = c.writer.Write(rec)
}

// Close flushes buffered rows and closes the file.
func (c *CSVRecorder) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return nil
	}
	c.writer.Flush()
	err := c.writer.Error()
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	c.writer = nil
	return err
}
