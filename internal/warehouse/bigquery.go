package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"telemetry-pipeline/internal/models"
)

// BigQueryDestination streams rows into BigQuery.
type BigQueryDestination struct {
	client *bigquery.Client
	logger logrus.FieldLogger
}

// NewBigQueryDestination opens a BigQuery client for project. Credentials
// come from the environment unless opts say otherwise.
func NewBigQueryDestination(ctx context.Context, project string, logger logrus.FieldLogger, opts ...option.ClientOption) (*BigQueryDestination, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &BigQueryDestination{
		client: client,
		logger: logger.WithField("destination", "bigquery"),
	}, nil
}

func (d *BigQueryDestination) table(ref TableRef) *bigquery.Table {
	return d.client.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table)
}

// TableExists fetches the table metadata. A 404 means the table is absent.
func (d *BigQueryDestination) TableExists(ctx context.Context, ref TableRef) (bool, error) {
	if _, err := d.table(ref).Metadata(ctx); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InsertRows streams the batch through the table inserter. Per-row rejections
// come back as InsertErrors.
func (d *BigQueryDestination) InsertRows(ctx context.Context, ref TableRef, rows []models.NormalizedRow) (int, error) {
	savers := make([]*bigQueryRow, len(rows))
	for i := range rows {
		savers[i] = &bigQueryRow{row: rows[i]}
	}

	if err := d.table(ref).Inserter().Put(ctx, savers); err != nil {
		var multi bigquery.PutMultiError
		if errors.As(err, &multi) {
			insertErrs := insertErrorsFrom(multi)
			for _, e := range insertErrs {
				d.logger.WithFields(logrus.Fields{"index": e.Index, "record_id": e.RecordID}).Error(e.Reason)
			}
			return 0, insertErrs
		}
		return 0, err
	}
	return len(rows), nil
}

// CountSince counts rows whose data_timestamp is at or after cutoff.
func (d *BigQueryDestination) CountSince(ctx context.Context, ref TableRef, cutoff time.Time) (int64, error) {
	q := d.client.Query(fmt.Sprintf(
		"SELECT COUNT(*) AS row_count FROM `%s` WHERE data_timestamp >= @cutoff", ref.String()))
	q.Parameters = []bigquery.QueryParameter{{Name: "cutoff", Value: cutoff}}

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to run verification query: %w", err)
	}
	var count int64
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read verification result: %w", err)
		}
		if len(values) > 0 {
			if n, ok := values[0].(int64); ok {
				count = n
			}
		}
	}
	return count, nil
}

// Close releases the underlying client.
func (d *BigQueryDestination) Close() error {
	return d.client.Close()
}

// bigQueryRow adapts a NormalizedRow to bigquery.ValueSaver. The record id
// doubles as the insert id so retried inserts are de-duplicated.
type bigQueryRow struct {
	row models.NormalizedRow
}

func (r *bigQueryRow) Save() (map[string]bigquery.Value, string, error) {
	var deviceID bigquery.Value
	if r.row.DeviceID != nil {
		deviceID = *r.row.DeviceID
	}
	id := r.row.RecordID.String()
	return map[string]bigquery.Value{
		"record_id":               id,
		"data_timestamp":          r.row.DataTimestamp,
		"device_id":               deviceID,
		"latitude":                r.row.Latitude,
		"longitude":               r.row.Longitude,
		"last_location":           r.row.LastLocation,
		"speed_kmh":               r.row.SpeedKmh,
		"heading":                 r.row.Heading,
		"elevation":               r.row.Elevation,
		"voltage":                 r.row.Voltage,
		"is_stopped":              r.row.IsStopped,
		"cellular_strength":       r.row.CellularStrength,
		"satellite_strength":      r.row.SatelliteStrength,
		"interval":                r.row.Interval,
		"last_location_timestamp": r.row.LastLocationTimestamp,
	}, id, nil
}

func insertErrorsFrom(multi bigquery.PutMultiError) InsertErrors {
	out := make(InsertErrors, 0, len(multi))
	for _, rowErr := range multi {
		out = append(out, RowInsertError{
			Index:    rowErr.RowIndex,
			RecordID: rowErr.InsertID,
			Reason:   rowErr.Errors.Error(),
		})
	}
	return out
}
