package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata" // report time zones on hosts without zoneinfo

	"github.com/gorilla/mux"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("FACILITYOBS_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger isn't configured yet
		_ = logging.Init(false)
		logging.Fatalf("invalid configuration: %v", err)
	}
	if err := logging.Init(cfg.Debug); err != nil {
		panic(err)
	}
	defer logging.Sync()

	logging.Infow("starting facilityobs server",
		"version", config.Version,
		"data_dir", cfg.DataDir,
		"registry", cfg.RegistryPath,
		"max_storage_gb", cfg.MaxStorageGB,
		"retention_days", cfg.RetentionDays)

	store, err := server.InitializeStorage(cfg)
	if err != nil {
		logging.Fatalf("failed to initialize storage: %v", err)
	}
	defer store.Close()

	reg, err := server.InitializeRegistry(cfg)
	if err != nil {
		logging.Fatalf("failed to open registry: %v", err)
	}
	defer reg.Close()

	handlers, err := server.InitializeHandlers(cfg, store, reg)
	if err != nil {
		logging.Fatalf("failed to create handlers: %v", err)
	}
	if err := server.SeedAdmin(context.Background(), cfg, handlers.AdminService); err != nil {
		logging.Fatalf("%v", err)
	}

	monitors := server.InitializeMonitors(cfg)
	pruner := server.InitializeRetention(cfg, store)

	// Background tasks
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	go server.RunRetention(pruner, monitors.Retention, stop, &wg)
	go server.RunBadgerGC(store, monitors.BadgerGC, stop, &wg)
	go server.RunSessionPurge(handlers.Sessions, monitors.Sessions, stop, &wg)

	router := mux.NewRouter()
	server.SetupRoutes(router, handlers, reg, monitors, pruner.Enabled(), cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	go func() {
		logging.Infow("server listening", "addr", "http://localhost:"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Infow("shutdown signal received")

	// Stop background tasks before waiting on them
	close(stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warnw("server shutdown warning", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Infow("background tasks stopped")
	case <-time.After(5 * time.Second):
		logging.Warnw("some background tasks did not stop in time")
	}

	logging.Infow("facilityobs server exited cleanly")
}
