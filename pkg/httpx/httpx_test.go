package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nicktill/facilityobs/pkg/logging"
)

func TestRespondError_Envelope(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, http.StatusBadRequest, errors.New("device_code is required"))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "Bad Request", resp.Error)
	require.Equal(t, "device_code is required", resp.Message)
}

func TestRespondText(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondText(rr, http.StatusOK, "1")

	require.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	require.Equal(t, "1", rr.Body.String())
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var body struct {
		Username string `json:"username"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"a","role":"admin"}`))
	require.Error(t, DecodeJSON(req, &body))
}

func TestRequestLogger_LogsServerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(zap.NewNop()) })

	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, zapcore.ErrorLevel, entry.Level)
	require.Equal(t, int64(http.StatusInternalServerError), entry.ContextMap()["status"])
	require.Equal(t, "/api/devices", entry.ContextMap()["path"])
}
