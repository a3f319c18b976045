package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-hr/meridian-hr/internal/platform/httpx"
	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Middleware resolves the bearer token into a request principal.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate rejects requests without a valid bearer token and stores the
// resolved principal on the context for downstream authorization.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Authentication required", "missing bearer token")
			return
		}
		userID, err := m.Service.VerifyToken(token)
		if err != nil {
			if errors.Is(err, shared.ErrTokenExpired) {
				httpx.Problem(w, http.StatusUnauthorized, "Token expired", "the bearer token has expired")
				return
			}
			httpx.Problem(w, http.StatusUnauthorized, "Authentication required", "invalid bearer token")
			return
		}
		principal, err := m.Service.Principal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.Problem(w, http.StatusUnauthorized, "Authentication required", "account no longer active")
				return
			}
			m.Logger.Error("principal lookup failed", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithPrincipal(r.Context(), &principal)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
