package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"telemetry-pipeline/internal/models"
)

// DefaultVerifyWindow is how far back the post-load count looks.
const DefaultVerifyWindow = 5 * time.Minute

// TableRef identifies the destination table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// String returns the fully-qualified {project}.{dataset}.{table} identifier.
func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.Project, r.Dataset, r.Table)
}

// Destination is a warehouse that can receive normalized rows.
type Destination interface {
	TableExists(ctx context.Context, ref TableRef) (bool, error)
	// InsertRows appends rows in one call. Per-row rejections are reported
	// as InsertErrors.
	InsertRows(ctx context.Context, ref TableRef, rows []models.NormalizedRow) (int, error)
	// CountSince counts rows whose data_timestamp is at or after cutoff.
	CountSince(ctx context.Context, ref TableRef, cutoff time.Time) (int64, error)
}

// RowInsertError is one row rejected by the destination.
type RowInsertError struct {
	Index    int
	RecordID string
	Reason   string
}

// InsertErrors lists every rejected row of an insert call.
type InsertErrors []RowInsertError

func (e InsertErrors) Error() string {
	if len(e) == 0 {
		return "insert reported no row errors"
	}
	reasons := make([]string, 0, len(e))
	for _, r := range e {
		reasons = append(reasons, fmt.Sprintf("row %d (%s): %s", r.Index, r.RecordID, r.Reason))
	}
	return fmt.Sprintf("%d row(s) rejected: %s", len(e), strings.Join(reasons, "; "))
}

// Is makes InsertErrors match models.ErrLoad.
func (e InsertErrors) Is(target error) bool { return target == models.ErrLoad }

// LoadResult summarizes a successful Load.
type LoadResult struct {
	Table         string
	Inserted      int
	Verified      bool
	VerifiedCount int64
	VerifyErr     error
}

// Loader appends normalized rows to a destination table and then runs a
// best-effort verification count.
type Loader struct {
	dest         Destination
	ref          TableRef
	verifyWindow time.Duration
	logger       logrus.FieldLogger

	Now func() time.Time
}

// NewLoader creates a Loader. A non-positive verifyWindow uses DefaultVerifyWindow.
func NewLoader(dest Destination, ref TableRef, verifyWindow time.Duration, logger logrus.FieldLogger) *Loader {
	if verifyWindow <= 0 {
		verifyWindow = DefaultVerifyWindow
	}
	return &Loader{
		dest:         dest,
		ref:          ref,
		verifyWindow: verifyWindow,
		logger:       logger.WithFields(logrus.Fields{"component": "warehouse_loader", "table": ref.String()}),
		Now:          time.Now,
	}
}

// Table returns the destination identifier.
func (l *Loader) Table() TableRef { return l.ref }

// Load inserts rows. An empty slice is logged and returns (nil, nil)
// without touching the destination. Verification problems never fail the
// load; they are reported in LoadResult.VerifyErr.
func (l *Loader) Load(ctx context.Context, rows []models.NormalizedRow) (*LoadResult, error) {
	if len(rows) == 0 {
		l.logger.Warn("No rows to insert")
		return nil, nil
	}

	l.logger.WithField("rows", len(rows)).Info("Attempting to load rows")

	exists, err := l.dest.TableExists(ctx, l.ref)
	if err != nil {
		l.logger.WithError(err).Error("Failed to look up destination table")
		return nil, fmt.Errorf("failed to look up table %s: %w", l.ref, err)
	}
	if !exists {
		l.logger.Error("Destination table not found")
		return nil, fmt.Errorf("%w: %s", models.ErrDestinationNotFound, l.ref)
	}

	inserted, err := l.dest.InsertRows(ctx, l.ref, rows)
	if err != nil {
		var insertErrs InsertErrors
		if errors.As(err, &insertErrs) {
			l.logger.WithField("rejected", len(insertErrs)).WithError(err).Error("Errors occurred while inserting rows")
			return nil, fmt.Errorf("failed to insert rows into %s: %w", l.ref, err)
		}
		l.logger.WithError(err).Error("Insert call failed")
		return nil, fmt.Errorf("%w: failed to insert rows into %s: %w", models.ErrLoad, l.ref, err)
	}
	l.logger.WithField("inserted", inserted).Infof("Successfully inserted %d rows", inserted)

	result := &LoadResult{Table: l.ref.String(), Inserted: inserted}

	cutoff := l.Now().UTC().Add(-l.verifyWindow)
	count, err := l.dest.CountSince(ctx, l.ref, cutoff)
	if err != nil {
		result.VerifyErr = fmt.Errorf("%w: %w", models.ErrVerification, err)
		l.logger.WithError(err).Warn("Verification query failed")
		return result, nil
	}
	result.Verified = true
	result.VerifiedCount = count
	l.logger.WithFields(logrus.Fields{
		"count":  count,
		"window": l.verifyWindow.String(),
	}).Info("Verification: rows found in recent window")

	return result, nil
}
