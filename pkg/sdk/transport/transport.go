package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/model"
)

// Transport sends one device reading to the server.
type Transport interface {
	Send(ctx context.Context, reading model.Reading) error
}

// ErrUnknownDevice is returned when the server has no such device.
var ErrUnknownDevice = errors.New("device not registered")

// HTTPTransport speaks the device firmware protocol: readings go out as
// query parameters on GET /api/iot/update.
type HTTPTransport struct {
	baseURL *url.URL
	token   string
	client  *http.Client

	// deviceClock, when set, sends timestamps as unzoned wall time in this
	// location the way firmware RTCs do. nil sends RFC3339.
	deviceClock *time.Location
}

// NewHTTP creates a transport for the server at baseURL, e.g.
// "http://localhost:8080". token authenticates admin calls and may be empty.
func NewHTTP(baseURL, token string) (*HTTPTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}

	return &HTTPTransport{
		baseURL: u,
		token:   token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// SetDeviceClock makes Send format timestamps as unzoned wall time in loc.
func (t *HTTPTransport) SetDeviceClock(loc *time.Location) {
	t.deviceClock = loc
}

// SetToken sets the session token used for admin calls.
func (t *HTTPTransport) SetToken(token string) {
	t.token = token
}

func (t *HTTPTransport) endpoint(path string, query url.Values) string {
	u := *t.baseURL
	u.Path = u.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

// Send pushes reading via the GET ingestion protocol.
func (t *HTTPTransport) Send(ctx context.Context, reading model.Reading) error {
	if reading.DeviceID == "" {
		return fmt.Errorf("reading has no device id")
	}

	query := url.Values{}
	query.Set("device_code", reading.DeviceID)

	fields := make([]string, 0, len(reading.Values))
	for field := range reading.Values {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		query.Set(field, strconv.FormatFloat(reading.Values[field], 'f', -1, 64))
	}

	if !reading.Timestamp.IsZero() {
		if t.deviceClock != nil {
			query.Set("timestamp", reading.Timestamp.In(t.deviceClock).Format("2006-01-02 15:04:05"))
		} else {
			query.Set("timestamp", reading.Timestamp.Format(time.RFC3339))
		}
	}

	_, err := t.do(ctx, http.MethodGet, t.endpoint("/api/iot/update", query), nil)
	return err
}

// ResetRequested asks whether the server wants the device to reboot.
func (t *HTTPTransport) ResetRequested(ctx context.Context, deviceID string) (bool, error) {
	query := url.Values{"device_code": {deviceID}}
	body, err := t.do(ctx, http.MethodGet, t.endpoint("/api/iot/update/get_device_reset_status", query), nil)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(body)) == "1", nil
}

// ClearReset acknowledges a reset request.
func (t *HTTPTransport) ClearReset(ctx context.Context, deviceID string) error {
	query := url.Values{"device_code": {deviceID}}
	_, err := t.do(ctx, http.MethodGet, t.endpoint("/api/iot/update/set_device_reset_status", query), nil)
	return err
}

// Login signs in and keeps the session token for admin calls.
func (t *HTTPTransport) Login(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("/api/auth/login", nil), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == config.SessionCookieName {
			t.token = c.Value
			return nil
		}
	}
	return fmt.Errorf("login response carried no session cookie")
}

// ImportSummary is the server's answer to a history import.
type ImportSummary struct {
	ReadingsImported int      `json:"readings_imported"`
	BatchesWritten   int      `json:"batches_written"`
	Errors           []string `json:"errors,omitempty"`
}

// Import uploads readings for one device through the admin import endpoint.
func (t *HTTPTransport) Import(ctx context.Context, deviceID string, readings []model.Reading) (*ImportSummary, error) {
	entries := make([]map[string]interface{}, 0, len(readings))
	for _, r := range readings {
		entry := map[string]interface{}{"timestamp": r.Timestamp.Format(time.RFC3339Nano)}
		for field, v := range r.Values {
			entry[field] = v
		}
		entries = append(entries, entry)
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal readings: %w", err)
	}

	path := "/api/admin/devices/" + url.PathEscape(deviceID) + "/import"
	body, err := t.do(ctx, http.MethodPost, t.endpoint(path, nil), payload)
	if err != nil {
		return nil, err
	}

	var summary ImportSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode import response: %w", err)
	}
	return &summary, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(req.URL.Path, "/api/iot/") {
		return nil, ErrUnknownDevice
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
