package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NormalizedRow is one device snapshot reshaped into the warehouse schema.
// Rows are built once by the transformer and never modified afterwards.
type NormalizedRow struct {
	RecordID              uuid.UUID `json:"record_id"`
	DataTimestamp         time.Time `json:"data_timestamp"`
	DeviceID              *string   `json:"device_id"`
	Latitude              float64   `json:"latitude"`
	Longitude             float64   `json:"longitude"`
	LastLocation          string    `json:"last_location"`
	SpeedKmh              float64   `json:"speed_kmh"`
	Heading               float64   `json:"heading"`
	Elevation             float64   `json:"elevation"`
	Voltage               float64   `json:"voltage"`
	IsStopped             bool      `json:"is_stopped"`
	CellularStrength      int64     `json:"cellular_strength"`
	SatelliteStrength     int64     `json:"satellite_strength"`
	Interval              int64     `json:"interval"`
	LastLocationTimestamp string    `json:"last_location_timestamp"`
}

// DeviceIDOrUnknown is used in log lines only.
func (r NormalizedRow) DeviceIDOrUnknown() string {
	if r.DeviceID == nil {
		return "unknown"
	}
	return *r.DeviceID
}

// RowError describes one device record skipped during normalization.
type RowError struct {
	Index    int    `json:"index"`
	DeviceID string `json:"device_id,omitempty"`
	Field    string `json:"field,omitempty"`
	Err      error  `json:"-"`
}

func (e *RowError) Error() string {
	id := e.DeviceID
	if id == "" {
		id = "unknown"
	}
	if e.Field != "" {
		return fmt.Sprintf("device %s (record #%d) field %s: %v", id, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("device %s (record #%d): %v", id, e.Index, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Is lets errors.Is(rowErr, ErrRowTransform) succeed for every skipped record.
func (e *RowError) Is(target error) bool { return target == ErrRowTransform }

// Batch is the per-call result of a transform: the rows that normalized
// cleanly plus one RowError per skipped record.
type Batch struct {
	IngestedAt time.Time
	Devices    int
	Rows       []NormalizedRow
	Skipped    []*RowError
}

// Empty reports whether no row survived normalization.
func (b Batch) Empty() bool { return len(b.Rows) == 0 }

// Partial reports whether some, but not all, records were skipped.
func (b Batch) Partial() bool { return len(b.Skipped) > 0 && len(b.Rows) > 0 }
