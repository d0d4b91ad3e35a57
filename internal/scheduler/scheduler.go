package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner is the job the scheduler triggers.
type Runner interface {
	Run(ctx context.Context) bool
}

// Scheduler runs a pipeline on a cron schedule (six fields, with seconds).
// A run that is still going when the next tick fires causes that tick to be
// skipped.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	spec    string
	logger  logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// New validates spec and registers runner. Call Start to begin ticking.
func New(spec string, runner Runner, logger logrus.FieldLogger) (*Scheduler, error) {
	log := logger.WithField("component", "scheduler")
	cronLogger := cron.PrintfLogger(log)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.SkipIfStillRunning(cronLogger),
				cron.Recover(cronLogger),
			),
		),
		spec:   spec,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}

	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.Info("Scheduled pipeline run starting")
		ok := runner.Run(s.ctx)
		s.logger.WithFields(logrus.Fields{
			"success":     ok,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Scheduled pipeline run finished")
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("cron", s.spec).Info("Scheduler started")
}

// Stop prevents new runs, cancels the one in flight and returns a context
// that is done once it has returned.
func (s *Scheduler) Stop() context.Context {
	done := s.cron.Stop()
	s.cancel()
	s.logger.Info("Scheduler stopped")
	return done
}

// Next is the time of the next scheduled run. It is zero until the
// scheduler has started.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}
