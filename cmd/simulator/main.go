package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/sdk"
)

func main() {
	var (
		serverURL   = flag.String("server", "http://localhost:8080", "facilityobs server base URL")
		deviceList  = flag.String("devices", os.Getenv("FACILITYOBS_DEVICES"), "comma separated device ids, e.g. RST12345678,DPT87654321")
		interval    = flag.Duration("interval", time.Minute, "time between live pushes")
		alertRate   = flag.Float64("alert-rate", 0.05, "share of values outside sensor limits")
		deviceClock = flag.String("device-clock", "", "send unzoned timestamps at this UTC offset, e.g. +05:30")
		backfill    = flag.Int("backfill", 0, "import this many historical points per device, then exit")
		step        = flag.Duration("step", 5*time.Minute, "spacing of backfilled points")
		username    = flag.String("admin-user", config.DefaultAdminUsername, "admin username for backfill")
		password    = flag.String("admin-password", os.Getenv("FACILITYOBS_ADMIN_PASSWORD"), "admin password for backfill")
		debug       = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	if err := logging.Init(*debug); err != nil {
		panic(err)
	}
	defer logging.Sync()

	var devices []sdk.Device
	for _, id := range strings.Split(*deviceList, ",") {
		if strings.TrimSpace(id) == "" {
			continue
		}
		d, err := sdk.DeviceFromID(id)
		if err != nil {
			logging.Fatalf("%v", err)
		}
		devices = append(devices, d)
	}
	if len(devices) == 0 {
		logging.Fatalf("no devices given, use -devices")
	}

	cfg := sdk.ClientConfig{
		Endpoint:  *serverURL,
		Devices:   devices,
		Interval:  *interval,
		AlertRate: *alertRate,
	}
	if *deviceClock != "" {
		loc, err := config.ParseOffset(*deviceClock)
		if err != nil {
			logging.Fatalf("invalid -device-clock: %v", err)
		}
		cfg.DeviceClock = loc
	}

	client, err := sdk.New(cfg)
	if err != nil {
		logging.Fatalf("failed to create simulator: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *backfill > 0 {
		if *password == "" {
			logging.Fatalf("backfill needs -admin-password or FACILITYOBS_ADMIN_PASSWORD")
		}
		if err := client.Transport().Login(ctx, *username, *password); err != nil {
			logging.Fatalf("login failed: %v", err)
		}

		result, err := client.Backfill(ctx, *backfill, *step)
		logging.Infow("backfill finished",
			"devices", len(devices),
			"readings", result.Readings,
			"failed", result.Failed,
			"from", result.From,
			"to", result.To)
		if err != nil {
			logging.Fatalf("backfill failed: %v", err)
		}
		return
	}

	logging.Infow("simulating devices",
		"server", *serverURL,
		"devices", len(devices),
		"interval", *interval)

	if err := client.Start(ctx); err != nil {
		logging.Fatalf("failed to start simulator: %v", err)
	}
	<-ctx.Done()
	if err := client.Stop(); err != nil {
		logging.Errorw("stop failed", "error", err)
	}

	stats := client.Stats()
	logging.Infow("simulator stopped", "sent", stats.Sent, "failed", stats.Failed, "resets", stats.Resets)
}
