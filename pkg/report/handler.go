package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nicktill/facilityobs/pkg/auth"
	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
)

// Handler serves device reports over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a report handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleReport handles GET /api/devices/{id}/report
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]
	query := r.URL.Query()

	format, err := ParseFormat(query.Get("format"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	req := Request{
		Period:      query.Get("period"),
		CustomStart: query.Get("start"),
		CustomEnd:   query.Get("end"),
		Interval:    query.Get("interval"),
	}
	if s, ok := auth.SessionFromContext(r.Context()); ok {
		req.Authorize = func(d model.Device) bool { return auth.CanAccess(s, d) }
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.ReportTimeout)
	defer cancel()

	rep, err := h.service.ComputeReport(ctx, deviceID, req)
	if err != nil {
		h.respondError(w, deviceID, err)
		return
	}

	switch format {
	case FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-report-%s.csv"`,
			deviceID, rep.GeneratedAt.Format("20060102-150405")))
		if err := WriteCSV(w, rep); err != nil {
			logging.Errorw("failed to write csv report", "device", deviceID, "error", err)
		}
	case FormatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := WriteHTML(w, rep); err != nil {
			logging.Errorw("failed to write html report", "device", deviceID, "error", err)
		}
	default:
		httpx.RespondJSON(w, http.StatusOK, rep)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, deviceID string, err error) {
	var rangeErr *InvalidRangeError
	switch {
	case errors.As(err, &rangeErr), errors.Is(err, ErrUnknownPeriod):
		httpx.RespondError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrDeviceNotFound):
		httpx.RespondError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrForbidden):
		httpx.RespondError(w, http.StatusForbidden, err)
	case errors.Is(err, context.DeadlineExceeded):
		logging.Warnw("report timed out", "device", deviceID, "timeout", config.ReportTimeout)
		httpx.RespondErrorString(w, http.StatusGatewayTimeout, "report generation timed out")
	default:
		logging.Errorw("report failed", "device", deviceID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "failed to generate report")
	}
}
