package job

import (
	"context"
	"time"
)

// SleepWork returns a task body that sleeps for ms milliseconds or until ctx is done.
func SleepWork(ms int64) func(context.Context) error {
	d := time.Duration(ms) * time.Millisecond
	return func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

// SpinWork returns a task body that burns n iterations of integer math,
// checking ctx every 4096 iterations. The result is stored in sink.
func SpinWork(n int, sink *uint64) func(context.Context) error {
	return func(ctx context.Context) error {
		var acc uint64 = 1469598103934665603
		for i := 0; i < n; i++ {
			if i&4095 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			acc ^= uint64(i)
			acc *= 1099511628211
		}
		if sink != nil {
			*sink = acc
		}
		return nil
	}
}
