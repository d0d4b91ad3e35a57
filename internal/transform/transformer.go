package transform

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"telemetry-pipeline/internal/models"
)

// Transformer reshapes a device snapshot into warehouse rows.
type Transformer struct {
	logger logrus.FieldLogger

	// Now and NewID are replaceable in tests.
	Now   func() time.Time
	NewID func() uuid.UUID
}

// NewTransformer creates a Transformer using the wall clock and random UUIDs.
func NewTransformer(logger logrus.FieldLogger) *Transformer {
	return &Transformer{
		logger: logger.WithField("component", "row_transformer"),
		Now:    time.Now,
		NewID:  uuid.New,
	}
}

// Transform normalizes every device in resp. Records that cannot be
// normalized are reported in Batch.Skipped; the batch itself never fails.
func (t *Transformer) Transform(resp *models.DeviceResponse) models.Batch {
	devices := resp.Devices()
	ingestedAt := t.Now().UTC()

	t.logger.WithFields(logrus.Fields{
		"device_count":        len(devices),
		"ingestion_timestamp": ingestedAt.Format(time.RFC3339Nano),
	}).Info("Preparing rows for warehouse")

	batch := models.Batch{
		IngestedAt: ingestedAt,
		Devices:    len(devices),
		Rows:       make([]models.NormalizedRow, 0, len(devices)),
	}

	for i, entry := range devices {
		raw, ok := entry.(map[string]interface{})
		if !ok {
			rowErr := &models.RowError{Index: i, Err: fmt.Errorf("device entry is %T, not an object", entry)}
			t.logSkip(rowErr)
			batch.Skipped = append(batch.Skipped, rowErr)
			continue
		}

		row, rowErr := t.normalize(i, newRecord(raw), ingestedAt)
		if rowErr != nil {
			t.logSkip(rowErr)
			batch.Skipped = append(batch.Skipped, rowErr)
			continue
		}

		t.logger.WithFields(logrus.Fields{
			"device_id": row.DeviceIDOrUnknown(),
			"record_id": row.RecordID.String(),
		}).Debug("Prepared row")
		batch.Rows = append(batch.Rows, row)
	}

	t.logger.WithFields(logrus.Fields{
		"rows":    len(batch.Rows),
		"skipped": len(batch.Skipped),
	}).Infof("Prepared %d rows for warehouse", len(batch.Rows))

	return batch
}

func (t *Transformer) logSkip(rowErr *models.RowError) {
	t.logger.WithFields(logrus.Fields{
		"index":     rowErr.Index,
		"device_id": rowErr.DeviceID,
		"field":     rowErr.Field,
	}).WithError(rowErr.Err).Error("Error preparing row for device")
}

func (t *Transformer) normalize(index int, rec record, ingestedAt time.Time) (models.NormalizedRow, *models.RowError) {
	row := models.NormalizedRow{DataTimestamp: ingestedAt}
	fail := func(field string, err error) (models.NormalizedRow, *models.RowError) {
		rowErr := &models.RowError{Index: index, Field: field, Err: err}
		if row.DeviceID != nil {
			rowErr.DeviceID = *row.DeviceID
		}
		return models.NormalizedRow{}, rowErr
	}

	if v, ok := rec.lookup(FieldDeviceID); ok {
		id, present, err := toString(v)
		if err != nil {
			return fail(FieldDeviceID, err)
		}
		if present {
			row.DeviceID = &id
		}
	}

	floats := []struct {
		field string
		dst   *float64
	}{
		{FieldLatitude, &row.Latitude},
		{FieldLongitude, &row.Longitude},
		{FieldSpeedKmh, &row.SpeedKmh},
		{FieldHeading, &row.Heading},
		{FieldElevation, &row.Elevation},
		{FieldVoltage, &row.Voltage},
	}
	for _, f := range floats {
		v, _ := rec.lookup(f.field)
		n, err := toFloat(v)
		if err != nil {
			return fail(f.field, err)
		}
		*f.dst = n
	}

	ints := []struct {
		field string
		dst   *int64
	}{
		{FieldCellularStrength, &row.CellularStrength},
		{FieldSatelliteStrength, &row.SatelliteStrength},
		{FieldInterval, &row.Interval},
	}
	for _, f := range ints {
		v, _ := rec.lookup(f.field)
		n, err := toInt(v)
		if err != nil {
			return fail(f.field, err)
		}
		*f.dst = n
	}

	stopped, _ := rec.lookup(FieldIsStopped)
	b, err := toBool(stopped)
	if err != nil {
		return fail(FieldIsStopped, err)
	}
	row.IsStopped = b

	loc, _ := rec.lookup(FieldLastLocation)
	if row.LastLocation, _, err = toString(loc); err != nil {
		return fail(FieldLastLocation, err)
	}

	ts, _ := rec.lookup(FieldLastLocationTimestamp)
	s, present, err := toString(ts)
	if err != nil {
		return fail(FieldLastLocationTimestamp, err)
	}
	if !present {
		s = ingestedAt.Format(time.RFC3339Nano)
	}
	row.LastLocationTimestamp = s

	row.RecordID = t.NewID()
	return row, nil
}
