package rbac

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hr/meridian-hr/internal/platform/httpx"
)

// Middleware wires authorization checks for HTTP handlers. Role gates are
// cheaper than permission gates (no store access), so routes that combine
// both should mount the role gate first; it short-circuits the chain.
type Middleware struct {
	Engine *Engine
	Logger *slog.Logger
}

// RequireRole allows principals whose role name is one of names.
func (m Middleware) RequireRole(names ...string) func(http.Handler) http.Handler {
	return m.gate(func(r *http.Request, p *Principal) Decision {
		return m.Engine.Authorize(r.Context(), p, RoleIn{Names: names})
	})
}

// RequirePermissionsAll allows principals holding every listed permission.
func (m Middleware) RequirePermissionsAll(ids ...string) func(http.Handler) http.Handler {
	return m.gate(func(r *http.Request, p *Principal) Decision {
		return m.Engine.Authorize(r.Context(), p, PermissionCheck{IDs: ids, Mode: ModeAll})
	})
}

// RequirePermissionsAny allows principals holding at least one listed permission.
func (m Middleware) RequirePermissionsAny(ids ...string) func(http.Handler) http.Handler {
	return m.gate(func(r *http.Request, p *Principal) Decision {
		return m.Engine.Authorize(r.Context(), p, PermissionCheck{IDs: ids, Mode: ModeAny})
	})
}

// RequireOwnerOrElevated allows the owner of the targeted resource and
// elevated roles. The target user id is resolved from the named path
// parameter first, then a body field, then a query parameter; the first
// present value wins.
func (m Middleware) RequireOwnerOrElevated(param string) func(http.Handler) http.Handler {
	return m.gate(func(r *http.Request, p *Principal) Decision {
		targetID, ok := resolveTargetID(r, param)
		if !ok {
			// Without a target the request can only be about the caller.
			targetID = p.ID
		}
		return m.Engine.Authorize(r.Context(), p, OwnerOrElevated{TargetID: targetID})
	})
}

// RequireDepartment allows administrators and members of the listed departments.
func (m Middleware) RequireDepartment(names ...string) func(http.Handler) http.Handler {
	return m.gate(func(r *http.Request, p *Principal) Decision {
		return m.Engine.Authorize(r.Context(), p, DepartmentIn{Names: names})
	})
}

func (m Middleware) gate(check func(*http.Request, *Principal) Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			decision := check(r, principal)
			if decision.Allow {
				next.ServeHTTP(w, r)
				return
			}
			if decision.Reason == ReasonUnauthenticated {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", decision.Reason)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		})
	}
}

// resolveTargetID extracts the target user id, checking the chi path
// parameter, then the JSON body, then the query string.
func resolveTargetID(r *http.Request, param string) (int64, bool) {
	if raw := chi.URLParam(r, param); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id, true
		}
	}
	if id, ok := targetIDFromBody(r, param); ok {
		return id, true
	}
	if raw := r.URL.Query().Get(param); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id, true
		}
	}
	return 0, false
}

// targetIDFromBody peeks at the JSON body for the named field and restores
// the body so the handler can decode it again.
func targetIDFromBody(r *http.Request, param string) (int64, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return 0, false
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return 0, false
	}
	raw, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return 0, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return 0, false
	}
	value, ok := fields[param]
	if !ok {
		return 0, false
	}
	var asNumber int64
	if err := json.Unmarshal(value, &asNumber); err == nil {
		return asNumber, true
	}
	var asString string
	if err := json.Unmarshal(value, &asString); err == nil {
		if id, err := strconv.ParseInt(asString, 10, 64); err == nil {
			return id, true
		}
	}
	return 0, false
}
