package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nicktill/facilityobs/pkg/config"
	"github.com/nicktill/facilityobs/pkg/httpx"
	"github.com/nicktill/facilityobs/pkg/logging"
	"github.com/nicktill/facilityobs/pkg/model"
	"github.com/nicktill/facilityobs/pkg/registry"
)

type contextKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s registry.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (registry.Session, bool) {
	s, ok := ctx.Value(contextKey{}).(registry.Session)
	return s, ok
}

// tokenFromRequest reads a bearer token first, then the session cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(config.SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireSession rejects requests without a live session with 401.
func (m *Manager) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Authenticate(r.Context(), tokenFromRequest(r))
		if err != nil {
			if !errors.Is(err, ErrUnauthenticated) {
				logging.Errorw("session lookup failed", "path", r.URL.Path, "error", err)
				httpx.RespondErrorString(w, http.StatusInternalServerError, "session lookup failed")
				return
			}
			httpx.RespondError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireRole wraps RequireSession and additionally demands role.
func (m *Manager) RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, _ := SessionFromContext(r.Context())
			if s.Role != role {
				httpx.RespondError(w, http.StatusForbidden, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// CanAccess reports whether the session may view or edit device.
// Admins see every device; users only their own.
func CanAccess(s registry.Session, device model.Device) bool {
	return s.Role == model.RoleAdmin || device.Owner == s.UserID
}
