package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/server/monitor"
)

var startTime = time.Now()

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string              `json:"status"`
	Version  string              `json:"version"`
	Uptime   string              `json:"uptime"`
	Registry string              `json:"registry"`
	Jobs     []monitor.JobStatus `json:"jobs"`
}

// handleHealth returns service health status. Retention only counts
// against health when it is enabled.
func handleHealth(reg Pinger, monitors *Monitors, retentionEnabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:   "healthy",
			Version:  config.Version,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Registry: "ok",
			Jobs: []monitor.JobStatus{
				monitors.Retention.Status(),
				monitors.BadgerGC.Status(),
				monitors.Sessions.Status(),
			},
		}
		statusCode := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := reg.Ping(ctx); err != nil {
			logging.Errorw("registry ping failed", "error", err)
			response.Registry = err.Error()
			response.Status = "unhealthy"
			statusCode = http.StatusServiceUnavailable
		} else if retentionEnabled && !monitors.Retention.IsHealthy() && monitors.Retention.Status().LastAttempt != "" {
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.RespondJSON(w, statusCode, response)
	}
}

// handleStorageUsage returns current storage usage.
func handleStorageUsage(sm *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := sm.Status()
		if err != nil {
			logging.Errorw("failed to calculate storage usage", "error", err)
			httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to calculate storage")
			return
		}
		httpx.RespondJSON(w, http.StatusOK, status)
	}
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, h *Handlers, reg Pinger, monitors *Monitors, retentionEnabled bool, port string) {
	router.Use(httpx.RequestLogger)
	router.Use(corsMiddleware(port))

	// Device firmware protocol and scraping, unauthenticated
	router.HandleFunc("/api/iot/update", h.Ingest.HandleUpdate).Methods("GET", "POST")
	router.HandleFunc("/api/iot/update/get_device_reset_status", h.Ingest.HandleGetResetStatus).Methods("GET")
	router.HandleFunc("/api/iot/update/set_device_reset_status", h.Ingest.HandleSetResetStatus).Methods("GET")
	router.HandleFunc("/metrics", h.Ingest.HandlePrometheusMetrics).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", handleHealth(reg, monitors, retentionEnabled)).Methods("GET")
	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST")
	api.HandleFunc("/auth/logout", h.Auth.Logout).Methods("POST")
	api.HandleFunc("/admin/seed", h.Admin.HandleSeed).Methods("GET")

	// Signed-in users
	protect := func(f http.HandlerFunc) http.Handler {
		return h.Sessions.RequireSession(f)
	}
	api.Handle("/auth/me", protect(h.Auth.Me)).Methods("GET")
	api.Handle("/user/settings", protect(h.Auth.Me)).Methods("GET")
	api.Handle("/user/settings", protect(h.Auth.UpdateSettings)).Methods("PATCH")
	api.Handle("/storage", protect(handleStorageUsage(monitors.Storage))).Methods("GET")
	api.Handle("/alerts", protect(h.Devices.HandleAlerts)).Methods("GET")
	api.Handle("/devices", protect(h.Devices.HandleList)).Methods("GET")
	api.Handle("/devices/{id}", protect(h.Devices.HandleGet)).Methods("GET")
	api.Handle("/devices/{id}", protect(h.Devices.HandlePatch)).Methods("PATCH")
	api.Handle("/devices/{id}/history", protect(h.Devices.HandleHistory)).Methods("GET")
	api.Handle("/devices/{id}/chart", protect(h.Devices.HandleChart)).Methods("GET")
	api.Handle("/devices/{id}/report", protect(h.Reports.HandleReport)).Methods("GET")

	// Administrators
	adminAPI := api.PathPrefix("/admin").Subrouter()
	adminAPI.Use(h.Sessions.RequireRole(model.RoleAdmin))
	adminAPI.HandleFunc("/users", h.Admin.HandleListUsers).Methods("GET")
	adminAPI.HandleFunc("/users", h.Admin.HandleCreateUser).Methods("POST")
	adminAPI.HandleFunc("/devices", h.Admin.HandleListDevices).Methods("GET")
	adminAPI.HandleFunc("/devices", h.Admin.HandleProvision).Methods("POST")
	adminAPI.HandleFunc("/devices", h.Admin.HandleDeleteDevice).Methods("DELETE")
	adminAPI.HandleFunc("/devices/{id}/export", h.Export.HandleExport).Methods("GET")
	adminAPI.HandleFunc("/devices/{id}/import", h.Export.HandleImport).Methods("POST")

	// CORS preflight for every path
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) mux.MiddlewareFunc {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Only set CORS headers for allowed origins
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
