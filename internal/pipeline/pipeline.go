package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"telemetry-pipeline/internal/config"
	"telemetry-pipeline/internal/models"
	"telemetry-pipeline/internal/tracking"
	"telemetry-pipeline/internal/transform"
	"telemetry-pipeline/internal/warehouse"
)

// Fetcher retrieves the device snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (*models.DeviceResponse, error)
}

// Transformer turns a snapshot into rows.
type Transformer interface {
	Transform(resp *models.DeviceResponse) models.Batch
}

// Loader writes rows to the warehouse.
type Loader interface {
	Load(ctx context.Context, rows []models.NormalizedRow) (*warehouse.LoadResult, error)
}

// Observer is told about every finished run. Errors are logged and
// otherwise ignored.
type Observer interface {
	Observe(ctx context.Context, report Report) error
}

// Settings is everything needed to assemble a Pipeline.
type Settings struct {
	Tracking     tracking.Config
	Table        warehouse.TableRef
	VerifyWindow time.Duration
}

// SettingsFromConfig maps the loaded configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Tracking: tracking.Config{
			URL: cfg.Tracking.URL,
			Credentials: models.TrackingCredentials{
				ClientToken: cfg.Tracking.ClientToken,
				Username:    cfg.Tracking.Username,
				Password:    cfg.Tracking.Password,
			},
			ClientID: cfg.Tracking.ClientID,
			Timeout:  cfg.Tracking.Timeout,
		},
		Table: warehouse.TableRef{
			Project: cfg.Warehouse.Project,
			Dataset: cfg.Warehouse.Dataset,
			Table:   cfg.Warehouse.Table,
		},
		VerifyWindow: cfg.Warehouse.VerifyWindow,
	}
}

// Pipeline runs fetch, transform and load in sequence. It keeps no per-run
// state, so concurrent runs are safe.
type Pipeline struct {
	fetcher     Fetcher
	transformer Transformer
	loader      Loader
	observers   []Observer
	logger      logrus.FieldLogger

	Now      func() time.Time
	NewRunID func() uuid.UUID
}

// New assembles a Pipeline from its stages.
func New(fetcher Fetcher, transformer Transformer, loader Loader, logger logrus.FieldLogger, observers ...Observer) *Pipeline {
	return &Pipeline{
		fetcher:     fetcher,
		transformer: transformer,
		loader:      loader,
		observers:   observers,
		logger:      logger.WithField("component", "pipeline"),
		Now:         time.Now,
		NewRunID:    uuid.New,
	}
}

// NewFromSettings builds the HTTP client, transformer and loader for dest.
func NewFromSettings(s Settings, dest warehouse.Destination, logger logrus.FieldLogger, observers ...Observer) *Pipeline {
	return New(
		tracking.NewClient(s.Tracking, logger),
		transform.NewTransformer(logger),
		warehouse.NewLoader(dest, s.Table, s.VerifyWindow, logger),
		logger,
		observers...,
	)
}

// Run executes one pass and reports whether rows were loaded.
func (p *Pipeline) Run(ctx context.Context) bool {
	return p.Execute(ctx).OK()
}

// Execute runs one pass and returns its Report. It never panics.
func (p *Pipeline) Execute(ctx context.Context) (report Report) {
	report = Report{
		RunID:     p.NewRunID(),
		State:     StateIdle,
		StartedAt: p.Now().UTC(),
	}
	log := p.logger.WithField("run_id", report.RunID.String())
	log.Info("Starting LandAirSea to warehouse pipeline")

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("Pipeline panicked: %v", r)
			report.fail(fmt.Errorf("pipeline panicked during %s: %v", report.State, r))
		}
		report.FinishedAt = p.Now().UTC()
		p.finish(ctx, log, report)
	}()

	report.State = StateFetching
	resp, err := p.fetcher.Fetch(ctx)
	if err != nil {
		report.fail(fmt.Errorf("fetch failed: %w", err))
		return report
	}
	if !resp.HasDeviceList() {
		report.fail(fmt.Errorf("fetch failed: %w", models.ErrMalformedResponse))
		return report
	}

	report.State = StateTransforming
	batch := p.transformer.Transform(resp)
	report.Devices = batch.Devices
	report.Rows = len(batch.Rows)
	report.Skipped = batch.Skipped
	if batch.Partial() {
		log.WithFields(logrus.Fields{
			"rows":    len(batch.Rows),
			"skipped": len(batch.Skipped),
		}).Warn("Some devices could not be normalized")
	}
	if batch.Empty() {
		if batch.Devices > 0 {
			report.fail(fmt.Errorf("%w: %w: all %d device records rejected",
				models.ErrNoRows, models.ErrRowTransform, batch.Devices))
		} else {
			report.fail(fmt.Errorf("%w: snapshot has no devices", models.ErrNoRows))
		}
		return report
	}

	report.State = StateLoading
	result, err := p.loader.Load(ctx, batch.Rows)
	if err != nil {
		report.fail(fmt.Errorf("load failed: %w", err))
		return report
	}
	if result == nil {
		report.fail(fmt.Errorf("%w: loader accepted nothing", models.ErrNoRows))
		return report
	}
	report.Inserted = result.Inserted
	report.Verified = result.Verified
	report.VerifiedCount = result.VerifiedCount

	report.State = StateDone
	return report
}

func (p *Pipeline) finish(ctx context.Context, log logrus.FieldLogger, report Report) {
	fields := logrus.Fields{
		"status":      report.Status(),
		"devices":     report.Devices,
		"rows":        report.Rows,
		"skipped":     len(report.Skipped),
		"inserted":    report.Inserted,
		"duration_ms": report.Duration().Milliseconds(),
	}
	if report.OK() {
		log.WithFields(fields).Info("Pipeline completed successfully")
	} else {
		fields["failed_stage"] = string(report.FailedStage)
		log.WithFields(fields).WithError(report.Err).Error("Pipeline failed")
	}

	for _, o := range p.observers {
		p.notify(ctx, log, o, report)
	}
}

func (p *Pipeline) notify(ctx context.Context, log logrus.FieldLogger, o Observer, report Report) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Run observer %T panicked: %v", o, r)
		}
	}()
	if err := o.Observe(ctx, report); err != nil {
		log.WithError(err).Warnf("Run observer %T failed", o)
	}
}
