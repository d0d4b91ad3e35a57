package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"telemetry-pipeline/internal/models"
)

// PostgresDestination writes rows to a PostgreSQL table. The dataset of a
// TableRef is the schema; the project is ignored.
type PostgresDestination struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(dsn string, logger logrus.FieldLogger) (*PostgresDestination, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgresDestination(db, logger), nil
}

// NewPostgresDestination wraps an existing connection pool.
func NewPostgresDestination(db *sql.DB, logger logrus.FieldLogger) *PostgresDestination {
	return &PostgresDestination{db: db, logger: logger.WithField("destination", "postgres")}
}

func qualifiedName(ref TableRef) string {
	return pq.QuoteIdentifier(ref.Dataset) + "." + pq.QuoteIdentifier(ref.Table)
}

// TableExists looks the table up in information_schema. The dataset is the schema.
func (d *PostgresDestination) TableExists(ctx context.Context, ref TableRef) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		ref.Dataset, ref.Table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query information_schema: %w", err)
	}
	return exists, nil
}

// InsertRows writes the batch in a single transaction. The first rejected
// row aborts the whole batch.
func (d *PostgresDestination) InsertRows(ctx context.Context, ref TableRef, rows []models.NormalizedRow) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin database transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (
		record_id, data_timestamp, device_id, latitude, longitude, last_location,
		speed_kmh, heading, elevation, voltage, is_stopped,
		cellular_strength, satellite_strength, interval, last_location_timestamp
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`, qualifiedName(ref)))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		var deviceID sql.NullString
		if row.DeviceID != nil {
			deviceID = sql.NullString{String: *row.DeviceID, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			row.RecordID.String(), row.DataTimestamp, deviceID,
			row.Latitude, row.Longitude, row.LastLocation,
			row.SpeedKmh, row.Heading, row.Elevation, row.Voltage, row.IsStopped,
			row.CellularStrength, row.SatelliteStrength, row.Interval, row.LastLocationTimestamp,
		)
		if err != nil {
			d.logger.WithFields(logrus.Fields{
				"index":     i,
				"record_id": row.RecordID.String(),
				"device_id": row.DeviceIDOrUnknown(),
			}).WithError(err).Error("Failed to insert row")
			return 0, InsertErrors{{Index: i, RecordID: row.RecordID.String(), Reason: err.Error()}}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit database transaction: %w", err)
	}
	return len(rows), nil
}

// CountSince counts rows whose data_timestamp is at or after cutoff.
func (d *PostgresDestination) CountSince(ctx context.Context, ref TableRef, cutoff time.Time) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE data_timestamp >= $1`, qualifiedName(ref))
	if err := d.db.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent rows: %w", err)
	}
	return count, nil
}

// Close closes the connection pool.
func (d *PostgresDestination) Close() error {
	return d.db.Close()
}
