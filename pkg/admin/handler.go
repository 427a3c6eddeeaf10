package admin

import (
	"errors"
	"net/http"

	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
)

// Handler serves the /api/admin endpoints.
type Handler struct {
	service       *Service
	adminUsername string
	adminPassword string
}

// NewHandler creates an admin handler. The credentials are used by the
// seed endpoint.
func NewHandler(service *Service, adminUsername, adminPassword string) *Handler {
	return &Handler{service: service, adminUsername: adminUsername, adminPassword: adminPassword}
}

// HandleSeed handles GET /api/admin/seed
func (h *Handler) HandleSeed(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.Seed(r.Context(), h.adminUsername, h.adminPassword)
	if err != nil {
		logging.Errorw("seeding failed", "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Seeding failed")
		return
	}
	if !created {
		httpx.RespondJSON(w, http.StatusOK, map[string]string{"message": "Admin already exists"})
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]string{
		"message":  "Admin created successfully",
		"username": h.adminUsername,
	})
}

// HandleListUsers handles GET /api/admin/users
func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Users(r.Context())
	if err != nil {
		logging.Errorw("failed to list users", "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleCreateUser handles POST /api/admin/users
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, ErrMissingCredentials):
		httpx.RespondError(w, http.StatusBadRequest, err)
	case errors.Is(err, registry.ErrUsernameTaken):
		httpx.RespondErrorString(w, http.StatusBadRequest, "User already exists")
	case err != nil:
		logging.Errorw("failed to create user", "username", req.Username, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to create user")
	default:
		httpx.RespondJSON(w, http.StatusOK, user)
	}
}

// HandleListDevices handles GET /api/admin/devices?userId=
func (h *Handler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "User ID required")
		return
	}

	devices, err := h.service.Devices(r.Context(), userID)
	if err != nil {
		logging.Errorw("failed to list devices", "user_id", userID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to fetch devices")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, devices)
}

type provisionRequest struct {
	UserID string           `json:"userId"`
	Type   model.DeviceType `json:"type"`
	Count  int              `json:"count"`
}

// HandleProvision handles POST /api/admin/devices
func (h *Handler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid request body")
		return
	}

	devices, err := h.service.Provision(r.Context(), req.UserID, req.Type, req.Count)
	switch {
	case errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidCount):
		httpx.RespondError(w, http.StatusBadRequest, err)
	case errors.Is(err, registry.ErrUserNotFound):
		httpx.RespondErrorString(w, http.StatusNotFound, "User not found")
	case errors.Is(err, registry.ErrDeviceExists):
		httpx.RespondError(w, http.StatusConflict, err)
	case err != nil:
		logging.Errorw("failed to provision devices", "user_id", req.UserID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to create devices")
	default:
		httpx.RespondJSON(w, http.StatusOK, devices)
	}
}

// HandleDeleteDevice handles DELETE /api/admin/devices?deviceId=
func (h *Handler) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("deviceId")
	if id == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Device ID required")
		return
	}

	err := h.service.DeleteDevice(r.Context(), id)
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound):
		httpx.RespondErrorString(w, http.StatusNotFound, "Device not found")
	case err != nil:
		logging.Errorw("failed to delete device", "device", id, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "Failed to delete device")
	default:
		httpx.RespondJSON(w, http.StatusOK, map[string]string{"message": "Device deleted successfully"})
	}
}
