package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/report"
	"github.com/nicktill/facilityobs/pkg/server/monitor"
	"github.com/nicktill/facilityobs/pkg/storage/memory"
)

type testServer struct {
	router *mux.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.RegistryPath = filepath.Join(cfg.DataDir, "registry.db")
	cfg.Report.Timezone = "UTC"
	cfg.Ingest.Burst = 100
	require.NoError(t, cfg.Validate())

	reg, err := InitializeRegistry(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	store := memory.New()
	h, err := InitializeHandlers(cfg, store, reg)
	require.NoError(t, err)
	require.NoError(t, SeedAdmin(context.Background(), cfg, h.AdminService))

	router := mux.NewRouter()
	SetupRoutes(router, h, reg, InitializeMonitors(cfg), false, cfg.Port)
	return &testServer{router: router}
}

func (s *testServer) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.do(t, "POST", "/api/auth/login", "", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == config.SessionCookieName {
			return c.Value
		}
	}
	t.Fatal("login did not set a session cookie")
	return ""
}

func TestServer_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "GET", "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, config.Version, health.Version)
	assert.Len(t, health.Jobs, 3)

	adminToken := s.login(t, config.DefaultAdminUsername, config.DefaultAdminPassword)

	// Admin creates a user and provisions a device for them
	rec = s.do(t, "POST", "/api/admin/users", adminToken, `{"username":"plant1","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))

	rec = s.do(t, "POST", "/api/admin/devices", adminToken, `{"userId":"`+user.ID+`","type":"RST","count":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var provisioned []model.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &provisioned))
	require.Len(t, provisioned, 1)
	deviceID := provisioned[0].ID

	// Device pushes a reading
	now := time.Now().UTC()
	q := url.Values{}
	q.Set("device_code", deviceID)
	q.Set("field1", "22.5")
	q.Set("field2", "41")
	q.Set("timestamp", now.Format(time.RFC3339))
	rec = s.do(t, "GET", "/api/iot/update?"+q.Encode(), "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":true}`, rec.Body.String())

	userToken := s.login(t, "plant1", "secret")

	rec = s.do(t, "GET", "/api/devices", userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, deviceID, listed[0]["id"])
	assert.Equal(t, true, listed[0]["online"])

	rec = s.do(t, "GET", "/api/devices/"+deviceID+"/report?period=today&interval=5m", userToken, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.False(t, rep.NoData)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, 22.5, *rep.Rows[0].Values["field1"])

	rec = s.do(t, "GET", "/api/devices/"+deviceID+"/report?period=today&format=csv", userToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Temperature (°C)")

	rec = s.do(t, "GET", "/api/devices/"+deviceID+"/report?period=fortnight", userToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Admin can back up the device history
	rec = s.do(t, "GET", "/api/admin/devices/"+deviceID+"/export", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field1": 22.5`)
}

func TestServer_AccessControl(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, "GET", "/api/devices", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, "GET", "/api/devices", "forged-token", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, "GET", "/api/admin/users", "", "").Code)

	adminToken := s.login(t, config.DefaultAdminUsername, config.DefaultAdminPassword)
	require.Equal(t, http.StatusOK, s.do(t, "POST", "/api/admin/users", adminToken, `{"username":"plant1","password":"secret"}`).Code)

	userToken := s.login(t, "plant1", "secret")
	assert.Equal(t, http.StatusForbidden, s.do(t, "GET", "/api/admin/users", userToken, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/api/auth/me", userToken, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/api/storage", userToken, "").Code)

	// Seeding is idempotent and public
	rec := s.do(t, "GET", "/api/admin/seed", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Admin already exists")

	// Logout ends the session
	require.Equal(t, http.StatusOK, s.do(t, "POST", "/api/auth/logout", userToken, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, "GET", "/api/auth/me", userToken, "").Code)
}

func TestServer_DeviceProtocol(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "GET", "/api/iot/update", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"device_code is required"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/api/iot/update?device_code=RST0&field1=1", "", "").Code)

	rec = s.do(t, "GET", "/api/iot/update/get_device_reset_status?device_code=RST0", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "0", rec.Body.String())

	rec = s.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/devices", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunWithRetry(t *testing.T) {
	policy := retryPolicy{maxRetries: 3, baseDelay: time.Millisecond}
	stop := make(chan struct{})

	t.Run("recovers after failures", func(t *testing.T) {
		m := monitor.NewJobMonitor("test", time.Hour)
		calls := 0
		runWithRetry(context.Background(), "test", func(context.Context) (interface{}, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		}, m, policy, stop)

		assert.Equal(t, 3, calls)
		assert.True(t, m.IsHealthy())
		assert.Equal(t, "ok", m.Status().LastResult)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		m := monitor.NewJobMonitor("test", time.Hour)
		calls := 0
		runWithRetry(context.Background(), "test", func(context.Context) (interface{}, error) {
			calls++
			return nil, errors.New("permanent")
		}, m, policy, stop)

		assert.Equal(t, 4, calls)
		assert.Equal(t, 4, m.Status().ConsecutiveErrors)
		assert.False(t, m.IsHealthy())
	})

	t.Run("stops waiting when stopped", func(t *testing.T) {
		m := monitor.NewJobMonitor("test", time.Hour)
		closed := make(chan struct{})
		close(closed)
		calls := 0
		runWithRetry(context.Background(), "test", func(context.Context) (interface{}, error) {
			calls++
			return nil, errors.New("fail")
		}, m, retryPolicy{maxRetries: 3, baseDelay: time.Hour}, closed)

		assert.Equal(t, 1, calls)
	})
}

func TestRunPeriodically_Stops(t *testing.T) {
	m := monitor.NewJobMonitor("tick", 0)
	stop := make(chan struct{})
	var wg sync.WaitGroup

	var mu sync.Mutex
	calls := 0
	wg.Add(1)
	go runPeriodically("tick", time.Hour, func(context.Context) (interface{}, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, nil
	}, m, retryPolicy{}, stop, &wg)

	require.Eventually(t, m.IsHealthy, time.Second, 5*time.Millisecond, "initial run happens at startup")
	close(stop)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestInitializeStorage_DefaultConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	store, err := InitializeStorage(cfg)
	require.NoError(t, err)
	defer store.Close()

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalReadings)
}
