package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
	"github.com/nicktill/facilityobs/pkg/server"
	"github.com/nicktill/facilityobs/pkg/storage"
	"github.com/nicktill/facilityobs/pkg/storage/badger"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.RegistryPath = filepath.Join(cfg.DataDir, "registry.db")
	cfg.Report.Timezone = "Asia/Kolkata"
	cfg.Ingest.Burst = 1000
	cfg.RetentionDays = 30
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

type app struct {
	store  *badger.Storage
	reg    *registry.Registry
	router *mux.Router
}

func start(t *testing.T, cfg config.Config) *app {
	t.Helper()

	store, err := server.InitializeStorage(cfg)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	reg, err := server.InitializeRegistry(cfg)
	if err != nil {
		t.Fatalf("Failed to open registry: %v", err)
	}
	handlers, err := server.InitializeHandlers(cfg, store, reg)
	if err != nil {
		t.Fatalf("Failed to create handlers: %v", err)
	}
	if err := server.SeedAdmin(context.Background(), cfg, handlers.AdminService); err != nil {
		t.Fatalf("Failed to seed admin: %v", err)
	}

	router := mux.NewRouter()
	server.SetupRoutes(router, handlers, reg, server.InitializeMonitors(cfg), true, cfg.Port)
	return &app{store: store, reg: reg, router: router}
}

func (a *app) stop() {
	a.store.Close()
	a.reg.Close()
}

func (a *app) get(t *testing.T, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *app) login(t *testing.T) string {
	t.Helper()
	body := `{"username":"` + config.DefaultAdminUsername + `","password":"` + config.DefaultAdminPassword + `"}`
	req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Login failed with status %d: %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == config.SessionCookieName {
			return c.Value
		}
	}
	t.Fatal("No session cookie")
	return ""
}

// TestE2E_PersistsAcrossRestart ingests over HTTP, restarts on the same data
// directory and reads the report back.
func TestE2E_PersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	a := start(t, cfg)

	ctx := context.Background()
	admin, _, err := a.reg.Credentials(ctx, config.DefaultAdminUsername)
	if err != nil {
		t.Fatalf("Seeded admin missing: %v", err)
	}
	device := model.Device{
		ID:          "RST12345678",
		DisplayName: "Clean Room",
		Type:        model.DeviceTypeRST,
		Sensors:     model.SensorTemplate(model.DeviceTypeRST),
		Owner:       admin.ID,
	}
	if err := a.reg.CreateDevice(ctx, device); err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}

	// Unzoned timestamps are device wall clock at +05:30
	ist := time.FixedZone("IST", 5*3600+1800)
	today := time.Now().In(ist)
	base := time.Date(today.Year(), today.Month(), today.Day(), 0, 2, 0, 0, ist)
	for i := 0; i < 6; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		q := url.Values{}
		q.Set("device_code", device.ID)
		q.Set("field1", "22")
		q.Set("field2", "40")
		q.Set("timestamp", ts.Format("2006-01-02 15:04:05"))
		if w := a.get(t, "/api/iot/update?"+q.Encode(), ""); w.Code != http.StatusOK {
			t.Fatalf("Ingest failed with status %d: %s", w.Code, w.Body.String())
		}
	}
	a.stop()

	// Restart on the same directory
	a = start(t, cfg)
	defer a.stop()

	token := a.login(t)
	w := a.get(t, "/api/devices/"+device.ID+"/report?period=today&interval=5m", token)
	if w.Code != http.StatusOK {
		t.Fatalf("Report failed with status %d: %s", w.Code, w.Body.String())
	}

	var rep struct {
		Rows []struct {
			Time string `json:"time"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}

	// 00:02..00:07 falls into the 00:00 and 00:05 buckets
	if len(rep.Rows) != 2 {
		t.Fatalf("Expected 2 report rows, got %d", len(rep.Rows))
	}
	if rep.Rows[0].Time != "00:00:00" || rep.Rows[1].Time != "00:05:00" {
		t.Errorf("Unexpected row times %q, %q", rep.Rows[0].Time, rep.Rows[1].Time)
	}
}

// TestE2E_RetentionWithBadger prunes old readings from a real badger store.
func TestE2E_RetentionWithBadger(t *testing.T) {
	cfg := testConfig(t)
	a := start(t, cfg)
	defer a.stop()

	ctx := context.Background()
	now := time.Now()
	readings := []model.Reading{
		{DeviceID: "DPT1", Timestamp: now.AddDate(0, 0, -60), Values: map[string]float64{"field1": 1}},
		{DeviceID: "DPT1", Timestamp: now.AddDate(0, 0, -31), Values: map[string]float64{"field1": 2}},
		{DeviceID: "DPT1", Timestamp: now.AddDate(0, 0, -1), Values: map[string]float64{"field1": 3}},
	}
	if err := a.store.Write(ctx, readings); err != nil {
		t.Fatalf("Failed to write readings: %v", err)
	}

	res, err := server.InitializeRetention(cfg, a.store).Prune(ctx)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if res.Removed != 2 {
		t.Errorf("Removed = %d, want 2", res.Removed)
	}

	left, err := a.store.Query(ctx, storage.QueryRequest{DeviceID: "DPT1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(left) != 1 || left[0].Values["field1"] != 3 {
		t.Errorf("Unexpected readings after prune: %+v", left)
	}

	if err := a.store.RunGC(config.BadgerGCDiscardRatio); err != nil {
		t.Errorf("RunGC after prune: %v", err)
	}
}
