package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
)

func authedHandler(t *testing.T, svc *Service) http.Handler {
	t.Helper()
	mw := Middleware{Service: svc, Logger: slog.Default()}
	return mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAuthenticateMiddlewareResolvesPrincipal(t *testing.T) {
	svc, accounts := newTestAuthService(t)
	accounts.add(Account{
		ID: 1, Name: "Hana", Email: "hana@meridian.local",
		RoleName: "HR", PasswordHash: hashFor(t, "s3cret"), IsActive: true,
	})
	session, err := svc.IssueToken(rbac.Principal{ID: 1})
	require.NoError(t, err)

	var seen *rbac.Principal
	mw := Middleware{Service: svc, Logger: slog.Default()}
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = rbac.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "Hana", seen.Name)
	assert.Equal(t, "HR", seen.Role)
}

func TestAuthenticateMiddlewareMissingToken(t *testing.T) {
	svc, _ := newTestAuthService(t)
	handler := authedHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticateMiddlewareExpiredToken(t *testing.T) {
	svc, accounts := newTestAuthService(t)
	accounts.add(Account{ID: 1, Email: "x@meridian.local", IsActive: true})

	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }
	session, err := svc.IssueToken(rbac.Principal{ID: 1})
	require.NoError(t, err)
	svc.now = time.Now

	handler := authedHandler(t, svc)
	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Token expired")
}

func TestAuthenticateMiddlewareDeactivatedAccount(t *testing.T) {
	svc, accounts := newTestAuthService(t)
	accounts.add(Account{ID: 1, Email: "x@meridian.local", IsActive: false})
	session, err := svc.IssueToken(rbac.Principal{ID: 1})
	require.NoError(t, err)

	handler := authedHandler(t, svc)
	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	token, ok := bearerToken(req)
	require.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)
}
