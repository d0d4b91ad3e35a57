package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"telemetry-pipeline/internal/logging"
	"telemetry-pipeline/internal/models"
)

// DefaultURL is the LandAirSea MyDevices endpoint.
const DefaultURL = "https://gateway.landairsea.com/Track/MyDevices"

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 64 * 1024

// Config holds everything the client needs; callers build it explicitly.
type Config struct {
	URL         string
	Credentials models.TrackingCredentials
	ClientID    string
	Timeout     time.Duration
}

// StatusError is returned for non-2xx responses and carries whatever body
// the server sent back.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tracking api returned non-success status %d", e.StatusCode)
}

// Is makes every StatusError match models.ErrNetwork.
func (e *StatusError) Is(target error) bool { return target == models.ErrNetwork }

// Client fetches the device snapshot over HTTP.
type Client struct {
	cfg        Config
	HttpClient *http.Client
	logger     logrus.FieldLogger
}

// NewClient creates a tracking API client.
func NewClient(cfg Config, logger logrus.FieldLogger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		HttpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithField("component", "tracking_client"),
	}
}

// Fetch posts the credentials to the MyDevices endpoint and returns the
// decoded body verbatim. It does not check for the device list.
func (c *Client) Fetch(ctx context.Context) (*models.DeviceResponse, error) {
	c.logger.WithFields(logrus.Fields{
		"url":          c.cfg.URL,
		"client_token": logging.Redact(c.cfg.Credentials.ClientToken),
		"username":     c.cfg.Credentials.Username,
	}).Info("Starting API request")

	body, err := json.Marshal(c.cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to tracking api: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.ClientID != "" {
		req.Header.Set("ClientId", c.cfg.ClientID)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("API request failed")
		return nil, fmt.Errorf("%w: failed to call %s: %v", models.ErrNetwork, c.cfg.URL, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
	}).Info("API response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		partial, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"body":        string(partial),
		}).Error("API request failed")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(partial)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.WithError(err).WithField("body", string(raw)).Error("API request failed")
		return nil, fmt.Errorf("%w: failed to read response body: %v", models.ErrNetwork, err)
	}

	// UseNumber keeps numeric device ids exact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded map[string]interface{}
	if err := dec.Decode(&decoded); err != nil || decoded == nil {
		if err == nil {
			err = fmt.Errorf("response body is JSON null")
		}
		c.logger.WithError(err).WithField("body", truncate(raw)).Error("API response is not a JSON object")
		return nil, fmt.Errorf("%w: failed to decode response body: %v", models.ErrNetwork, err)
	}

	c.logSummary(raw, decoded)

	return &models.DeviceResponse{
		Body:       decoded,
		Raw:        raw,
		StatusCode: resp.StatusCode,
	}, nil
}

// logSummary is observational only.
func (c *Client) logSummary(raw []byte, decoded map[string]interface{}) {
	keys := make([]string, 0, len(decoded))
	for k := range decoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	c.logger.WithField("keys", keys).Info("Response keys")

	devices := gjson.GetBytes(raw, models.DeviceListKey)
	if !devices.IsArray() || len(devices.Array()) == 0 {
		c.logger.Warn("No devices found in API response")
		return
	}

	list := devices.Array()
	c.logger.WithField("device_count", len(list)).Info("Found devices in response")
	for _, device := range list {
		c.logger.WithFields(logrus.Fields{
			"device_id":    lookup(device, "deviceid"),
			"location":     lookup(device, "lastlocation"),
			"last_updated": lookup(device, "lastlocationtimestamp"),
		}).Info("Device summary")
	}
}

// lookup finds key in a device object regardless of key casing.
func lookup(device gjson.Result, key string) string {
	var out string
	device.ForEach(func(k, v gjson.Result) bool {
		if strings.EqualFold(k.String(), key) {
			out = v.String()
			return false
		}
		return true
	})
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody])
	}
	return string(b)
}
