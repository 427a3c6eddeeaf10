package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
)

const (
	sensorValueMetric = "facility_sensor_value"
	lastUpdateMetric  = "facility_device_last_update_seconds"
)

// HandlePrometheusMetrics exports each device's latest values in Prometheus
// text format so Grafana or Prometheus can scrape the dashboard.
//
// Format: https://prometheus.io/docs/instrumenting/exposition_formats/
func (h *Handler) HandlePrometheusMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	devices, err := h.devices.ListDevices(ctx, registry.DeviceFilter{})
	if err != nil {
		logging.Errorw("prometheus export failed", "error", err)
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writePrometheus(w, devices)
}

func writePrometheus(w io.Writer, devices []model.Device) {
	fmt.Fprintf(w, "# HELP %s Latest reported sensor value\n", sensorValueMetric)
	fmt.Fprintf(w, "# TYPE %s gauge\n", sensorValueMetric)
	for _, d := range devices {
		if d.LastData == nil {
			continue
		}
		for _, field := range sortedFields(d.LastData) {
			labels := map[string]string{"device": d.ID, "field": field}
			if s, ok := d.Sensor(field); ok {
				labels["sensor"] = s.Name
				labels["unit"] = s.Unit
			}
			ts := int64(0)
			if d.LastUpdate != nil {
				ts = d.LastUpdate.UnixMilli()
			}
			fmt.Fprintf(w, "%s%s %v %d\n", sensorValueMetric, formatPrometheusLabels(labels), d.LastData[field], ts)
		}
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "# HELP %s Unix time of the device's newest reading\n", lastUpdateMetric)
	fmt.Fprintf(w, "# TYPE %s gauge\n", lastUpdateMetric)
	for _, d := range devices {
		if d.LastUpdate == nil {
			continue
		}
		fmt.Fprintf(w, "%s%s %d\n", lastUpdateMetric,
			formatPrometheusLabels(map[string]string{"device": d.ID}), d.LastUpdate.Unix())
	}
}

func sortedFields(values map[string]float64) []string {
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// formatPrometheusLabels formats labels in Prometheus format: {key="value",key2="value2"}
func formatPrometheusLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, escapePrometheusValue(labels[k])))
	}

	return "{" + strings.Join(pairs, ",") + "}"
}

// escapePrometheusValue escapes special characters in Prometheus label values.
// Backslash, double-quote, and line feed must be escaped.
func escapePrometheusValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
