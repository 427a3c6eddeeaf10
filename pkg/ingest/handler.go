// Package ingest receives readings pushed by devices over the GET-based
// hardware protocol and exposes the latest values for scraping.
package ingest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
	"github.com/nicktill/facilityobs/pkg/storage"
)

// DeviceStore is the registry surface ingestion depends on.
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (model.Device, error)
	ListDevices(ctx context.Context, filter registry.DeviceFilter) ([]model.Device, error)
	RecordIngest(ctx context.Context, id string, ts, seen time.Time, values map[string]float64) error
	ResetStatus(ctx context.Context, id string) (int, error)
	SetResetStatus(ctx context.Context, id string, status int) error
}

// Handler handles device readings
type Handler struct {
	storage storage.Storage
	devices DeviceStore
	limiter *DeviceLimiter
	assumed *time.Location
	now     func() time.Time
}

// NewHandler creates a new ingest handler. Unzoned device timestamps are
// read in assumed.
func NewHandler(store storage.Storage, devices DeviceStore, limiter *DeviceLimiter, assumed *time.Location) *Handler {
	if assumed == nil {
		assumed = time.Local
	}
	return &Handler{
		storage: store,
		devices: devices,
		limiter: limiter,
		assumed: assumed,
		now:     time.Now,
	}
}

// statusResponse is the exact body device firmware expects.
type statusResponse struct {
	Status interface{} `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// HandleUpdate handles GET|POST /api/iot/update
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	received := h.now()

	deviceID := strings.TrimSpace(query.Get("device_code"))
	if deviceID == "" {
		httpx.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": ErrDeviceCodeRequired.Error()})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(deviceID, received) {
		logging.Warnw("device rate limited", "device", deviceID)
		httpx.RespondJSON(w, http.StatusTooManyRequests, map[string]string{"error": ErrRateLimited.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	device, err := h.devices.GetDevice(ctx, deviceID)
	if errors.Is(err, registry.ErrDeviceNotFound) {
		httpx.RespondJSON(w, http.StatusNotFound, map[string]string{"error": "Device not found"})
		return
	}
	if err != nil {
		h.internalError(w, deviceID, err)
		return
	}

	values, dropped, err := ExtractValues(query, device)
	if err != nil {
		httpx.RespondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(dropped) > 0 {
		logging.Warnw("dropping undeclared fields", "device", deviceID, "fields", dropped)
	}

	ts, ok := ParseTimestamp(query.Get("timestamp"), h.assumed, received)
	if !ok && query.Get("timestamp") != "" {
		logging.Warnw("unparsable device timestamp, using receive time",
			"device", deviceID, "timestamp", query.Get("timestamp"))
	}

	reading := model.Reading{DeviceID: deviceID, Timestamp: ts, Values: values}
	if err := h.storage.Write(ctx, []model.Reading{reading}); err != nil {
		h.internalError(w, deviceID, err)
		return
	}
	if err := h.devices.RecordIngest(ctx, deviceID, ts, received, values); err != nil {
		h.internalError(w, deviceID, err)
		return
	}

	logging.Debugw("reading stored", "device", deviceID, "timestamp", ts, "values", values)
	httpx.RespondJSON(w, http.StatusOK, statusResponse{Status: true})
}

func (h *Handler) internalError(w http.ResponseWriter, deviceID string, err error) {
	logging.Errorw("ingest failed", "device", deviceID, "error", err)
	httpx.RespondJSON(w, http.StatusInternalServerError, statusResponse{Status: "false", Error: "Internal Error"})
}

// HandleGetResetStatus handles GET /api/iot/update/get_device_reset_status
func (h *Handler) HandleGetResetStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_code"))
	if deviceID == "" {
		httpx.RespondText(w, http.StatusBadRequest, ErrDeviceCodeRequired.Error())
		return
	}

	status, err := h.devices.ResetStatus(r.Context(), deviceID)
	if errors.Is(err, registry.ErrDeviceNotFound) {
		httpx.RespondText(w, http.StatusNotFound, "0")
		return
	}
	if err != nil {
		logging.Errorw("failed to read reset status", "device", deviceID, "error", err)
		httpx.RespondText(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	httpx.RespondText(w, http.StatusOK, strconv.Itoa(status))
}

// HandleSetResetStatus handles GET /api/iot/update/set_device_reset_status.
// Devices call it after rebooting to acknowledge the reset.
func (h *Handler) HandleSetResetStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_code"))
	if deviceID == "" {
		httpx.RespondText(w, http.StatusBadRequest, ErrDeviceCodeRequired.Error())
		return
	}

	err := h.devices.SetResetStatus(r.Context(), deviceID, 0)
	if errors.Is(err, registry.ErrDeviceNotFound) {
		httpx.RespondText(w, http.StatusNotFound, "Device not found")
		return
	}
	if err != nil {
		logging.Errorw("failed to clear reset status", "device", deviceID, "error", err)
		httpx.RespondText(w, http.StatusInternalServerError, "Internal Error")
		return
	}
	httpx.RespondText(w, http.StatusOK, "0")
}
