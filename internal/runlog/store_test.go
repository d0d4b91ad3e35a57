package runlog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-pipeline/internal/models"
	"telemetry-pipeline/internal/pipeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger, _ := test.NewNullLogger()
	// A named in-memory database per test keeps subtests isolated.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := Open("sqlite", dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func report(started time.Time, err error) pipeline.Report {
	r := pipeline.Report{
		RunID:      uuid.New(),
		State:      pipeline.StateDone,
		Devices:    3,
		Rows:       2,
		Skipped:    []*models.RowError{{Index: 1, Err: errors.New("bad latitude")}},
		Inserted:   2,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
	if err != nil {
		r.State = pipeline.StateFailed
		r.FailedStage = pipeline.StateLoading
		r.Inserted = 0
		r.Err = err
	}
	return r
}

func TestFromReport(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := FromReport(report(now, nil))
	assert.Equal(t, pipeline.StatusSucceeded, ok.Status)
	assert.Equal(t, 1, ok.Skipped)
	assert.Empty(t, ok.FailedStage)
	assert.Empty(t, ok.Error)

	failed := FromReport(report(now, fmt.Errorf("load failed: %w", models.ErrLoad)))
	assert.Equal(t, pipeline.StatusFailed, failed.Status)
	assert.Equal(t, "loading", failed.FailedStage)
	assert.Contains(t, failed.Error, "load failed")

	noData := FromReport(report(now, models.ErrNoRows))
	assert.Equal(t, pipeline.StatusNoData, noData.Status)

	rejected := FromReport(report(now, fmt.Errorf("%w: %w", models.ErrNoRows, models.ErrRowTransform)))
	assert.Equal(t, pipeline.StatusRejected, rejected.Status)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Record And List Newest First", func(t *testing.T) {
		store := newTestStore(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Observe(ctx, report(base.Add(time.Duration(i)*time.Minute), nil)))
		}
		failed := report(base.Add(10*time.Minute), models.ErrLoad)
		require.NoError(t, store.Record(ctx, failed))

		runs, err := store.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, failed.RunID, runs[0].ID)
		assert.Equal(t, pipeline.StatusFailed, runs[0].Status)
		assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
	})

	t.Run("Default Limit", func(t *testing.T) {
		store := newTestStore(t)
		for i := 0; i < DefaultLimit+5; i++ {
			require.NoError(t, store.Record(ctx, report(base.Add(time.Duration(i)*time.Second), nil)))
		}
		runs, err := store.Recent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, runs, DefaultLimit)
	})

	t.Run("Duplicate Run ID Is Rejected", func(t *testing.T) {
		store := newTestStore(t)
		r := report(base, nil)
		require.NoError(t, store.Record(ctx, r))
		assert.Error(t, store.Record(ctx, r))
	})
}

func TestOpenUnsupportedDriver(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := Open("mysql", "dsn", logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported run log driver")
}
