package transform

import (
	"sort"
	"strings"
)

// Canonical names of the device attributes read from the tracking API.
const (
	FieldDeviceID              = "deviceid"
	FieldLatitude              = "latitude"
	FieldLongitude             = "longitude"
	FieldLastLocation          = "lastlocation"
	FieldSpeedKmh              = "speed_kmh"
	FieldHeading               = "heading"
	FieldElevation             = "elevation"
	FieldVoltage               = "voltage"
	FieldIsStopped             = "isstopped"
	FieldCellularStrength      = "cellularstrength"
	FieldSatelliteStrength     = "satellitestrength"
	FieldInterval              = "interval"
	FieldLastLocationTimestamp = "lastlocationtimestamp"
)

// fieldAliases lists, per canonical field, the lower-cased raw keys accepted
// for it. The first alias present in a record wins.
var fieldAliases = map[string][]string{
	FieldDeviceID:              {"deviceid"},
	FieldLatitude:              {"latitude"},
	FieldLongitude:             {"longitude"},
	FieldLastLocation:          {"lastlocation"},
	FieldSpeedKmh:              {"speed_kmh"},
	FieldHeading:               {"heading"},
	FieldElevation:             {"elevation"},
	FieldVoltage:               {"voltage"},
	FieldIsStopped:             {"isstopped"},
	FieldCellularStrength:      {"cellularstrength"},
	FieldSatelliteStrength:     {"satellitestrength"},
	FieldInterval:              {"interval"},
	FieldLastLocationTimestamp: {"lastlocationtimestamp"},
}

// record is a raw device object with its keys lower-cased once.
type record map[string]interface{}

// newRecord lower-cases every key of raw. When two keys differ only in
// case, the one sorting last wins so the result does not depend on map
// iteration order.
func newRecord(raw map[string]interface{}) record {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(record, len(raw))
	for _, k := range keys {
		out[strings.ToLower(k)] = raw[k]
	}
	return out
}

// lookup resolves a canonical field through the alias table.
func (r record) lookup(field string) (interface{}, bool) {
	for _, alias := range fieldAliases[field] {
		if v, ok := r[alias]; ok {
			return v, true
		}
	}
	return nil, false
}
