package devices

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/facilityobs/pkg/auth"
	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/history"
	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
)

// Store is the registry surface the device views need.
type Store interface {
	GetDevice(ctx context.Context, id string) (model.Device, error)
	ListDevices(ctx context.Context, filter registry.DeviceFilter) ([]model.Device, error)
	UpdateDevice(ctx context.Context, id string, patch registry.DevicePatch) (model.Device, error)
}

// Handler serves /api/devices and /api/alerts.
type Handler struct {
	store     Store
	history   *history.Service
	threshold time.Duration
	now       func() time.Time
}

// NewHandler creates a device handler. Devices count as online while their
// newest reading is within threshold.
func NewHandler(store Store, hist *history.Service, threshold time.Duration) *Handler {
	if threshold <= 0 {
		threshold = config.DefaultOnlineThreshold
	}
	return &Handler{store: store, history: hist, threshold: threshold, now: time.Now}
}

// HandleList handles GET /api/devices[?dashboardOnly=true]
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.SessionFromContext(r.Context())

	devices, err := h.store.ListDevices(r.Context(), registry.DeviceFilter{
		Owner:         s.UserID,
		DashboardOnly: r.URL.Query().Get("dashboardOnly") == "true",
	})
	if err != nil {
		logging.Errorw("failed to list devices", "user_id", s.UserID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to fetch devices")
		return
	}

	now := h.now()
	views := make([]View, 0, len(devices))
	for _, d := range devices {
		views = append(views, newView(d, now, h.threshold))
	}
	httpx.RespondJSON(w, http.StatusOK, views)
}

// loadDevice fetches the {id} device and enforces ownership. It writes the
// error response itself and reports whether the caller should continue.
func (h *Handler) loadDevice(w http.ResponseWriter, r *http.Request) (model.Device, bool) {
	id := mux.Vars(r)["id"]
	d, err := h.store.GetDevice(r.Context(), id)
	if errors.Is(err, registry.ErrDeviceNotFound) {
		httpx.RespondErrorString(w, http.StatusNotFound, "Device not found")
		return model.Device{}, false
	}
	if err != nil {
		logging.Errorw("failed to fetch device", "device", id, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to fetch device")
		return model.Device{}, false
	}

	s, ok := auth.SessionFromContext(r.Context())
	if !ok || !auth.CanAccess(s, d) {
		httpx.RespondError(w, http.StatusForbidden, auth.ErrForbidden)
		return model.Device{}, false
	}
	return d, true
}

// HandleGet handles GET /api/devices/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDevice(w, r)
	if !ok {
		return
	}
	httpx.RespondJSON(w, http.StatusOK, newView(d, h.now(), h.threshold))
}

// HandlePatch handles PATCH /api/devices/{id}
func (h *Handler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDevice(w, r)
	if !ok {
		return
	}

	var patch registry.DevicePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ValidatePatch(patch); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.store.UpdateDevice(r.Context(), d.ID, patch)
	if err != nil {
		logging.Errorw("failed to update device", "device", d.ID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to update device")
		return
	}
	logging.Infow("device updated", "device", d.ID)
	httpx.RespondJSON(w, http.StatusOK, newView(updated, h.now(), h.threshold))
}

// ValidatePatch rejects device edits that would break ingestion or reports.
func ValidatePatch(p registry.DevicePatch) error {
	if p.DisplayName != nil && strings.TrimSpace(*p.DisplayName) == "" {
		return errors.New("displayName cannot be empty")
	}
	if p.ResetStatus != nil && *p.ResetStatus != 0 && *p.ResetStatus != 1 {
		return errors.New("resetStatus must be 0 or 1")
	}
	if p.Sensors != nil {
		seen := make(map[string]bool)
		for _, s := range *p.Sensors {
			if !strings.HasPrefix(s.Field, "field") {
				return fmt.Errorf("sensor field %q must look like field1, field2, ...", s.Field)
			}
			if seen[s.Field] {
				return fmt.Errorf("duplicate sensor field %q", s.Field)
			}
			seen[s.Field] = true
			if strings.TrimSpace(s.Name) == "" {
				return fmt.Errorf("sensor %s needs a name", s.Field)
			}
			if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
				return fmt.Errorf("sensor %s: min %v exceeds max %v", s.Field, *s.Min, *s.Max)
			}
		}
	}
	return nil
}

// HandleHistory handles GET /api/devices/{id}/history?range=24h|all
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDevice(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.HistoryTimeout)
	defer cancel()

	readings, err := h.history.Fetch(ctx, d.ID, history.ParseRange(r.URL.Query().Get("range")))
	if err != nil {
		logging.Errorw("failed to fetch history", "device", d.ID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, history.Flatten(readings))
}

// HandleChart handles GET /api/devices/{id}/chart?field=&range=&maxPoints=
func (h *Handler) HandleChart(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDevice(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()

	field := query.Get("field")
	if field == "" {
		if len(d.Sensors) == 0 {
			httpx.RespondErrorString(w, http.StatusBadRequest, "field parameter required")
			return
		}
		field = d.Sensors[0].Field
	}

	maxPoints := config.DefaultChartPoints
	if mp := query.Get("maxPoints"); mp != "" {
		parsed, err := strconv.Atoi(mp)
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid maxPoints: %q is not an integer", mp))
			return
		}
		if parsed <= 0 || parsed > config.MaxChartPoints {
			httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("maxPoints must be between 1 and %d", config.MaxChartPoints))
			return
		}
		maxPoints = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.HistoryTimeout)
	defer cancel()

	readings, err := h.history.Fetch(ctx, d.ID, history.ParseRange(query.Get("range")))
	if err != nil {
		logging.Errorw("failed to fetch chart data", "device", d.ID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}

	series := Series{DeviceID: d.ID, Field: field, Points: buildSeries(readings, field, maxPoints)}
	if s, ok := d.Sensor(field); ok {
		series.Name, series.Unit, series.Min, series.Max = s.Name, s.Unit, s.Min, s.Max
	}

	w.Header().Set("Cache-Control", "no-cache")
	httpx.RespondJSON(w, http.StatusOK, series)
}

// HandleAlerts handles GET /api/alerts
func (h *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	s, _ := auth.SessionFromContext(r.Context())

	devices, err := h.store.ListDevices(r.Context(), registry.DeviceFilter{Owner: s.UserID})
	if err != nil {
		logging.Errorw("failed to list devices for alerts", "user_id", s.UserID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to fetch devices")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, Alerts(devices))
}
