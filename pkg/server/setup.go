// Package server wires storage, the registry and the HTTP handlers into a
// running facilityobs server.
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nicktill/facilityobs/pkg/admin"
	"github.com/nicktill/facilityobs/pkg/auth"
	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/devices"
	"github.com/nicktill/facilityobs/pkg/export"
	"github.com/nicktill/facilityobs/pkg/history"
	"github.com/nicktill/facilityobs/pkg/ingest"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/registry"
	"github.com/nicktill/facilityobs/pkg/report"
	"github.com/nicktill/facilityobs/pkg/retention"
	"github.com/nicktill/facilityobs/pkg/server/monitor"
	"github.com/nicktill/facilityobs/pkg/storage"
	"github.com/nicktill/facilityobs/pkg/storage/badger"
)

// InitializeStorage opens the badger reading store under the data directory.
func InitializeStorage(cfg config.Config) (*badger.Storage, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logging.Infow("initializing badger storage", "path", cfg.DataDir, "max_memory_mb", cfg.MaxMemoryMB)
	store, err := badger.New(badger.Config{
		Path:        filepath.Join(cfg.DataDir, "readings"),
		MaxMemoryMB: cfg.MaxMemoryMB,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// InitializeRegistry opens the SQLite registry of users, devices and sessions.
func InitializeRegistry(cfg config.Config) (*registry.Registry, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.RegistryPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	reg, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}
	logging.Infow("registry opened", "path", reg.Path())
	return reg, nil
}

// Handlers groups the HTTP handlers and the services behind them.
type Handlers struct {
	Sessions *auth.Manager
	Auth     *auth.Handler
	Ingest   *ingest.Handler
	Devices  *devices.Handler
	Reports  *report.Handler
	Admin    *admin.Handler
	Export   *export.Handler

	AdminService *admin.Service
}

// InitializeHandlers creates and configures all request handlers.
func InitializeHandlers(cfg config.Config, store storage.Storage, reg *registry.Registry) (*Handlers, error) {
	reportLoc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ingestLoc, err := cfg.IngestLocation()
	if err != nil {
		return nil, err
	}

	sessions := auth.NewManager(reg, cfg.Auth.SessionTTL)
	hist := history.NewService(store)
	limiter := ingest.NewDeviceLimiter(cfg.Ingest.RatePerSecond, cfg.Ingest.Burst)
	adminService := admin.NewService(reg, store)

	h := &Handlers{
		Sessions:     sessions,
		Auth:         auth.NewHandler(sessions, reg, cfg.Auth.SecureCookies),
		Ingest:       ingest.NewHandler(store, reg, limiter, ingestLoc),
		Devices:      devices.NewHandler(reg, hist, cfg.OnlineThreshold),
		Reports:      report.NewHandler(report.NewService(reg, hist, reportLoc)),
		Admin:        admin.NewHandler(adminService, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword),
		Export:       export.NewHandler(store, reg, reportLoc),
		AdminService: adminService,
	}

	logging.Infow("handlers created",
		"report_timezone", reportLoc.String(),
		"assumed_offset", ingestLoc.String(),
		"ingest_rate", cfg.Ingest.RatePerSecond,
		"ingest_burst", cfg.Ingest.Burst)
	return h, nil
}

// SeedAdmin creates the configured admin account on first start.
func SeedAdmin(ctx context.Context, cfg config.Config, svc *admin.Service) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	created, err := svc.Seed(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to seed admin account: %w", err)
	}
	if created && cfg.Auth.AdminPassword == config.DefaultAdminPassword {
		logging.Warnw("admin account created with the default password; change it in settings",
			"username", cfg.Auth.AdminUsername)
	}
	return nil
}

// Monitors groups the health monitors exposed by /api/health and /api/storage.
type Monitors struct {
	Storage   *monitor.StorageMonitor
	Retention *monitor.JobMonitor
	BadgerGC  *monitor.JobMonitor
	Sessions  *monitor.JobMonitor
}

// InitializeMonitors creates the storage and background job monitors.
func InitializeMonitors(cfg config.Config) *Monitors {
	return &Monitors{
		Storage:   monitor.NewStorageMonitor(cfg.DataDir, cfg.MaxStorageBytes()),
		Retention: monitor.NewJobMonitor("retention", 2*config.RetentionInterval),
		BadgerGC:  monitor.NewJobMonitor("badger_gc", 0),
		Sessions:  monitor.NewJobMonitor("session_purge", 2*config.SessionPurgeInterval),
	}
}

// InitializeRetention creates the history pruner.
func InitializeRetention(cfg config.Config, store storage.Storage) *retention.Pruner {
	pruner := retention.New(store, cfg.RetentionDays)
	if pruner.Enabled() {
		logging.Infow("retention enabled", "days", cfg.RetentionDays, "interval", config.RetentionInterval)
	} else {
		logging.Infow("retention disabled, history is kept forever")
	}
	return pruner
}
