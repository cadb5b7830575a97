package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepWork(t *testing.T) {
	t.Run("completes", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, SleepWork(5)(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := SleepWork(10_000)(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSpinWork(t *testing.T) {
	var a, b uint64
	require.NoError(t, SpinWork(10_000, &a)(context.Background()))
	require.NoError(t, SpinWork(10_000, &b)(context.Background()))
	assert.Equal(t, a, b)
	assert.NotZero(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SpinWork(10_000, nil)(ctx), context.Canceled)
}
