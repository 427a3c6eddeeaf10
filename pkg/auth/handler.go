package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/registry"
)

// Handler serves login, logout and account settings.
type Handler struct {
	manager       *Manager
	store         Store
	secureCookies bool
}

// NewHandler creates the auth HTTP handler.
func NewHandler(manager *Manager, store Store, secureCookies bool) *Handler {
	return &Handler{manager: manager, store: store, secureCookies: secureCookies}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, session, err := h.manager.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		httpx.RespondError(w, http.StatusUnauthorized, err)
		return
	}
	if err != nil {
		logging.Errorw("login failed", "username", req.Username, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(h.manager.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	logging.Infow("user logged in", "user", user.Username, "role", user.Role)
	httpx.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// Logout handles POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := tokenFromRequest(r); token != "" {
		if err := h.manager.Logout(r.Context(), token); err != nil {
			logging.Warnw("failed to delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     config.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me handles GET /api/auth/me and GET /api/user/settings
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFromContext(r.Context())
	user, err := h.store.GetUser(r.Context(), s.UserID)
	if errors.Is(err, registry.ErrUserNotFound) {
		httpx.RespondError(w, http.StatusUnauthorized, ErrUnauthenticated)
		return
	}
	if err != nil {
		logging.Errorw("failed to load user", "user_id", s.UserID, "error", err)
		httpx.RespondErrorString(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, user)
}

type settingsRequest struct {
	Username        string `json:"username,omitempty"`
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewPassword     string `json:"newPassword,omitempty"`
}

// UpdateSettings handles PATCH /api/user/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	s, _ := SessionFromContext(r.Context())

	var req settingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if username := strings.TrimSpace(req.Username); username != "" {
		err := h.store.UpdateUsername(r.Context(), s.UserID, username)
		if errors.Is(err, registry.ErrUsernameTaken) {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		if err != nil {
			logging.Errorw("failed to update username", "user_id", s.UserID, "error", err)
			httpx.RespondErrorString(w, http.StatusInternalServerError, "failed to update settings")
			return
		}
	}

	if req.NewPassword != "" {
		if req.CurrentPassword == "" {
			httpx.RespondErrorString(w, http.StatusBadRequest, "current password is required")
			return
		}
		err := h.manager.ChangePassword(r.Context(), s.UserID, req.CurrentPassword, req.NewPassword)
		if errors.Is(err, ErrWrongPassword) {
			httpx.RespondError(w, http.StatusBadRequest, err)
			return
		}
		if err != nil {
			logging.Errorw("failed to change password", "user_id", s.UserID, "error", err)
			httpx.RespondErrorString(w, http.StatusInternalServerError, "failed to update settings")
			return
		}
	}

	h.Me(w, r)
}
