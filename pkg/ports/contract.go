package ports

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSchedulerContract verifies that a Scheduler implementation honours the
// interface contract. advance must make at least d of scheduler time pass once a
// task is suspended in Sleep; wall-clock implementations can pass a no-op.
func RunSchedulerContract(t *testing.T, s Scheduler, advance func(d time.Duration)) {
	t.Helper()
	ctx := context.Background()

	t.Run("Go runs the task", func(t *testing.T) {
		done := make(chan struct{})
		s.Go(func() { close(done) })
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task never ran")
		}
	})

	t.Run("Sleep zero is a yield", func(t *testing.T) {
		require.NoError(t, s.Sleep(ctx, 0))
	})

	t.Run("Sleep honours cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := s.Sleep(cctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Sleep resumes after the duration", func(t *testing.T) {
		const d = 20 * time.Millisecond
		var woke atomic.Bool
		done := make(chan error, 1)
		before := s.Now()

		s.Go(func() {
			err := s.Sleep(ctx, d)
			woke.Store(true)
			done <- err
		})

		advance(d)

		select {
		case err := <-done:
			require.NoError(t, err)
			assert.True(t, woke.Load())
			assert.False(t, s.Now().Before(before.Add(d)), "scheduler time must have advanced by at least d")
		case <-time.After(2 * time.Second):
			t.Fatal("sleeper never woke")
		}
	})
}
