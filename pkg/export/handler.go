package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
	"github.com/nicktill/facilityobs/pkg/storage"
)

// DeviceSource looks up the device a backup belongs to.
type DeviceSource interface {
	GetDevice(ctx context.Context, id string) (model.Device, error)
}

// Handler handles export/import HTTP endpoints
type Handler struct {
	exporter *Exporter
	importer *Importer
	devices  DeviceSource
	loc      *time.Location
	now      func() time.Time
}

// NewHandler creates a new export/import handler. Date-only parameters are
// read in loc.
func NewHandler(store storage.Storage, devices DeviceSource, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		exporter: NewExporter(store),
		importer: NewImporter(store),
		devices:  devices,
		loc:      loc,
		now:      time.Now,
	}
}

func (h *Handler) loadDevice(w http.ResponseWriter, r *http.Request) (model.Device, bool) {
	id := mux.Vars(r)["id"]
	d, err := h.devices.GetDevice(r.Context(), id)
	if errors.Is(err, registry.ErrDeviceNotFound) {
		httpx.RespondErrorString(w, http.StatusNotFound, "Device not found")
		return model.Device{}, false
	}
	if err != nil {
		logging.Errorw("failed to load device", "device", id, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to load device")
		return model.Device{}, false
	}
	return d, true
}

// HandleExport handles GET /api/admin/devices/{id}/export
// Query params:
//   - format: "json" or "csv" (default: json)
//   - start: RFC3339 timestamp or yyyy-mm-dd (default: 24h before end)
//   - end: RFC3339 timestamp or yyyy-mm-dd (default: now)
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDevice(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Invalid format. Must be 'json' or 'csv'")
		return
	}

	end, err := h.parseTimeParam(query.Get("end"), h.now(), true)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	start, err := h.parseTimeParam(query.Get("start"), end.Add(-config.DefaultExportWindow), false)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	if !start.Before(end) {
		httpx.RespondErrorString(w, http.StatusBadRequest, "start must be before end")
		return
	}
	if end.Sub(start) > config.MaxExportWindow {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("Time range too large. Maximum is %v", config.MaxExportWindow))
		return
	}

	opts := ExportOptions{DeviceID: d.ID, Start: start, End: end}

	timestamp := h.now().Format("20060102-150405")
	filename := fmt.Sprintf("%s-history-%s.%s", d.ID, timestamp, format)
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	var result *ExportResult
	if format == "json" {
		result, err = h.exporter.ExportToJSON(r.Context(), w, opts)
	} else {
		result, err = h.exporter.ExportToCSV(r.Context(), w, opts)
	}
	if err != nil {
		logging.Errorw("export failed", "device", d.ID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Export failed")
		return
	}

	logging.Infow("history exported", "device", d.ID, "readings", result.ReadingsExported, "format", format, "range", result.TimeRange)
}

// HandleImport handles POST /api/admin/devices/{id}/import
// Accepts a JSON array of {timestamp, fieldN...} entries.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	d, ok := h.loadDevice(w, r)
	if !ok {
		return
	}

	result, err := h.importer.ImportFromJSON(r.Context(), d, r.Body)
	if err != nil {
		logging.Errorw("import failed", "device", d.ID, "error", err)
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("import failed: %w", err))
		return
	}

	if len(result.Errors) > 0 {
		shown := result.Errors
		if len(shown) > 10 {
			shown = shown[:10]
		}
		logging.Warnw("import completed with validation errors",
			"device", d.ID, "errors", len(result.Errors), "first", shown)
	}

	logging.Infow("history imported", "device", d.ID,
		"readings", result.ReadingsImported, "batches", result.BatchesWritten, "range", result.TimeRange)
	httpx.RespondJSON(w, http.StatusOK, result)
}

// parseTimeParam parses a time parameter or returns def. A bare date is the
// start of that day, or its end when endOfDay is set.
func (h *Handler) parseTimeParam(param string, def time.Time, endOfDay bool) (time.Time, error) {
	if param == "" {
		return def, nil
	}

	if t, err := time.Parse(time.RFC3339, param); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", param, h.loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", param, h.loc); err == nil {
		if endOfDay {
			return t.AddDate(0, 0, 1).Add(-time.Millisecond), nil
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or yyyy-mm-dd", param)
}
