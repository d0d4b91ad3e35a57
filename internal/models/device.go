package models

// DeviceListKey is the response key holding the device snapshot list.
const DeviceListKey = "devicedetails"

// RawDeviceRecord is one device object as decoded from the tracking API.
// Keys arrive in arbitrary casing and values may be strings needing coercion.
type RawDeviceRecord map[string]interface{}

// DeviceResponse is the decoded body of a MyDevices call, returned verbatim.
type DeviceResponse struct {
	Body       map[string]interface{}
	Raw        []byte
	StatusCode int
}

// HasDeviceList reports whether the response carries the devicedetails key.
func (r *DeviceResponse) HasDeviceList() bool {
	if r == nil || r.Body == nil {
		return false
	}
	_, ok := r.Body[DeviceListKey]
	return ok
}

// Devices returns the raw device list entries, or nil when absent or not a list.
func (r *DeviceResponse) Devices() []interface{} {
	if r == nil || r.Body == nil {
		return nil
	}
	list, _ := r.Body[DeviceListKey].([]interface{})
	return list
}

// TrackingCredentials authenticates against the tracking API.
type TrackingCredentials struct {
	ClientToken string `json:"clientToken"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}
