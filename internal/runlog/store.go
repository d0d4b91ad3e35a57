package runlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"telemetry-pipeline/internal/pipeline"
)

// DefaultLimit is used by Recent when no positive limit is given.
const DefaultLimit = 20

// Run is one pipeline run as kept in the run log.
type Run struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	StartedAt     time.Time `json:"started_at" gorm:"not null;index"`
	FinishedAt    time.Time `json:"finished_at"`
	Status        string    `json:"status" gorm:"type:varchar(20);not null"`
	FailedStage   string    `json:"failed_stage,omitempty" gorm:"type:varchar(20)"`
	Devices       int       `json:"device_count"`
	Rows          int       `json:"rows_prepared"`
	Skipped       int       `json:"rows_skipped"`
	Inserted      int       `json:"rows_loaded"`
	VerifiedCount int64     `json:"verified_count"`
	Error         string    `json:"error,omitempty" gorm:"type:text"`
}

// TableName keeps the run log apart from the telemetry table.
func (Run) TableName() string { return "pipeline_runs" }

// FromReport converts a pipeline report into a Run row.
func FromReport(report pipeline.Report) Run {
	run := Run{
		ID:            report.RunID,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
		Status:        report.Status(),
		Devices:       report.Devices,
		Rows:          report.Rows,
		Skipped:       len(report.Skipped),
		Inserted:      report.Inserted,
		VerifiedCount: report.VerifiedCount,
	}
	if report.Err != nil {
		run.FailedStage = string(report.FailedStage)
		run.Error = report.Err.Error()
	}
	return run
}

// Store persists run history with gorm.
type Store struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// Open connects to the run log database and migrates its table.
// driver is "postgres" or "sqlite".
func Open(driver, dsn string, logger logrus.FieldLogger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported run log driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to run log database: %w", err)
	}
	return NewStore(db, logger)
}

// NewStore wraps db and migrates the run log table.
func NewStore(db *gorm.DB, logger logrus.FieldLogger) (*Store, error) {
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate run log schema: %w", err)
	}
	return &Store{db: db, logger: logger.WithField("component", "runlog")}, nil
}

// Record stores one report.
func (s *Store) Record(ctx context.Context, report pipeline.Report) error {
	run := FromReport(report)
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	s.logger.WithFields(logrus.Fields{"run_id": run.ID.String(), "status": run.Status}).Debug("Run recorded")
	return nil
}

// Observe implements pipeline.Observer.
func (s *Store) Observe(ctx context.Context, report pipeline.Report) error {
	return s.Record(ctx, report)
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var runs []Run
	if err := s.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
