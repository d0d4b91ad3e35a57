package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int32
	block chan struct{}
}

func (r *countingRunner) Run(ctx context.Context) bool {
	r.calls.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	return true
}

func TestNew(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("Invalid Expression", func(t *testing.T) {
		_, err := New("every five minutes", &countingRunner{}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid cron expression")
	})

	t.Run("Five Field Expression Is Rejected", func(t *testing.T) {
		_, err := New("*/5 * * * *", &countingRunner{}, logger)
		require.Error(t, err)
	})

	t.Run("Valid Expression Has Next Run After Start", func(t *testing.T) {
		s, err := New("0 */5 * * * *", &countingRunner{}, logger)
		require.NoError(t, err)
		assert.True(t, s.Next().IsZero())

		s.Start()
		defer s.Stop()
		require.Eventually(t, func() bool { return !s.Next().IsZero() }, time.Second, 10*time.Millisecond)
		next := s.Next()
		assert.Equal(t, 0, next.Second())
		assert.Equal(t, 0, next.Minute()%5)
	})
}

func TestSchedulerRuns(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("Job Fires", func(t *testing.T) {
		runner := &countingRunner{}
		s, err := New("* * * * * *", runner, logger)
		require.NoError(t, err)
		s.Start()
		defer s.Stop()

		assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	})

	t.Run("Overlapping Ticks Are Skipped And Stop Cancels", func(t *testing.T) {
		runner := &countingRunner{block: make(chan struct{})}
		s, err := New("* * * * * *", runner, logger)
		require.NoError(t, err)
		s.Start()

		require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, 3*time.Second, 50*time.Millisecond)
		time.Sleep(2200 * time.Millisecond)
		assert.Equal(t, int32(1), runner.calls.Load())

		select {
		case <-s.Stop().Done():
		case <-time.After(2 * time.Second):
			t.Fatal("in-flight run was not cancelled by Stop")
		}
	})
}
