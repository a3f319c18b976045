package roles

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
)

func newTestRouter(svc *Service, principal *rbac.Principal) http.Handler {
	cache := rbac.NewPermissionCache(5 * time.Minute)
	engine := rbac.NewEngine(nil, cache, slog.Default(), nil, rbac.Options{})
	mw := rbac.Middleware{Engine: engine}
	handler := NewHandler(slog.Default(), svc, mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if principal != nil {
				req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), principal))
			}
			next.ServeHTTP(w, req)
		})
	})
	handler.MountRoutes(r)
	return r
}

func TestCreateRoleEndpoint(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.seedPermission("view_users", "View Users")
	router := newTestRouter(svc, &rbac.Principal{ID: 1, Role: "ADMIN"})

	body := `{"name":"Support","description":"support staff","permissionIds":["view_users"]}`
	req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Role
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Support", created.Name)
}

func TestCreateRoleEndpointForbiddenForHR(t *testing.T) {
	svc, _, _, _ := newTestService()
	router := newTestRouter(svc, &rbac.Principal{ID: 2, Role: "HR"})

	req := httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"X"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestListRolesEndpointAllowsHR(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.roles[1] = Role{ID: 1, Name: "Support"}
	router := newTestRouter(svc, &rbac.Principal{ID: 2, Role: "HR"})

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Support")
}

func TestListRolesEndpointUnauthenticated(t *testing.T) {
	svc, _, _, _ := newTestService()
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDeleteRoleEndpointConflictWhenInUse(t *testing.T) {
	svc, repo, _, _ := newTestService()
	repo.roles[1] = Role{ID: 1, Name: "Support", Users: []Member{{ID: 4}}, UserCount: 1}
	router := newTestRouter(svc, &rbac.Principal{ID: 1, Role: "ADMIN"})

	req := httptest.NewRequest(http.MethodDelete, "/roles/1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestShowRoleEndpointNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	router := newTestRouter(svc, &rbac.Principal{ID: 1, Role: "ADMIN"})

	req := httptest.NewRequest(http.MethodGet, "/roles/42", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
