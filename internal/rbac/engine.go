package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// PermissionSource resolves a user's effective permission ids from the
// identity store. Implemented by the auth repository.
type PermissionSource interface {
	EffectivePermissionIDs(ctx context.Context, userID int64) ([]string, error)
}

// Metrics receives counters for authorization decisions and cache traffic.
// All methods must tolerate being called from concurrent requests.
type Metrics interface {
	AuthzDecision(requirement string, allowed bool)
	PermissionCacheHit()
	PermissionCacheMiss()
}

// Options configure the engine's role policy.
type Options struct {
	AdminRole     string
	ElevatedRoles []string
}

// Engine answers authorization questions for one principal and requirement.
// Store failures resolve to deny, never to a propagated fault.
type Engine struct {
	source   PermissionSource
	cache    *PermissionCache
	logger   *slog.Logger
	metrics  Metrics
	admin    string
	elevated map[string]struct{}
}

// NewEngine builds an Engine. The cache is required; metrics may be nil.
func NewEngine(source PermissionSource, cache *PermissionCache, logger *slog.Logger, metrics Metrics, opts Options) *Engine {
	admin := opts.AdminRole
	if admin == "" {
		admin = "ADMIN"
	}
	elevated := make(map[string]struct{}, len(opts.ElevatedRoles))
	for _, name := range opts.ElevatedRoles {
		elevated[name] = struct{}{}
	}
	if len(elevated) == 0 {
		for _, name := range []string{"ADMIN", "HR", "MANAGER"} {
			elevated[name] = struct{}{}
		}
	}
	return &Engine{
		source:   source,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
		admin:    admin,
		elevated: elevated,
	}
}

// Authorize decides whether the principal satisfies the requirement. A nil
// principal always denies with ReasonUnauthenticated.
func (e *Engine) Authorize(ctx context.Context, p *Principal, req Requirement) Decision {
	decision := e.decide(ctx, p, req)
	if e.metrics != nil {
		e.metrics.AuthzDecision(requirementName(req), decision.Allow)
	}
	return decision
}

func (e *Engine) decide(ctx context.Context, p *Principal, req Requirement) Decision {
	if p == nil {
		return Denied(ReasonUnauthenticated)
	}
	switch r := req.(type) {
	case RoleIn:
		return e.decideRole(p, r)
	case PermissionCheck:
		return e.decidePermissions(ctx, p, r)
	case OwnerOrElevated:
		return e.decideOwner(p, r)
	case DepartmentIn:
		return e.decideDepartment(p, r)
	default:
		return Denied(fmt.Sprintf("unsupported requirement %T", req))
	}
}

func (e *Engine) decideRole(p *Principal, r RoleIn) Decision {
	for _, name := range r.Names {
		if p.Role == name {
			return Allowed()
		}
	}
	return Denied(fmt.Sprintf("insufficient role: have %q, need one of [%s]", p.Role, strings.Join(r.Names, ", ")))
}

func (e *Engine) decidePermissions(ctx context.Context, p *Principal, r PermissionCheck) Decision {
	granted, err := e.permissionSet(ctx, p.ID)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("resolve permissions", slog.Int64("user_id", p.ID), slog.Any("error", err))
		}
		return Denied("permission lookup failed")
	}
	switch r.Mode {
	case ModeAny:
		for _, id := range r.IDs {
			if _, ok := granted[id]; ok {
				return Allowed()
			}
		}
		return Denied(fmt.Sprintf("insufficient permissions: need any of [%s]", strings.Join(r.IDs, ", ")))
	default:
		for _, id := range r.IDs {
			if _, ok := granted[id]; !ok {
				return Denied(fmt.Sprintf("insufficient permissions: need all of [%s]", strings.Join(r.IDs, ", ")))
			}
		}
		return Allowed()
	}
}

func (e *Engine) decideOwner(p *Principal, r OwnerOrElevated) Decision {
	if p.Role == e.admin {
		return Allowed()
	}
	if _, ok := e.elevated[p.Role]; ok && r.TargetID != p.ID {
		return Allowed()
	}
	if r.TargetID == p.ID {
		return Allowed()
	}
	return Denied("you can only access your own data or you lack sufficient privileges")
}

func (e *Engine) decideDepartment(p *Principal, r DepartmentIn) Decision {
	if p.Role == e.admin {
		return Allowed()
	}
	for _, name := range r.Names {
		if p.Department == name {
			return Allowed()
		}
	}
	return Denied(fmt.Sprintf("department access required: need one of [%s]", strings.Join(r.Names, ", ")))
}

// permissionSet resolves the principal's permission ids via the cache,
// refreshing from the identity store on miss or expiry.
func (e *Engine) permissionSet(ctx context.Context, userID int64) (map[string]struct{}, error) {
	if ids, ok := e.cache.Get(userID); ok {
		if e.metrics != nil {
			e.metrics.PermissionCacheHit()
		}
		return toSet(ids), nil
	}
	if e.metrics != nil {
		e.metrics.PermissionCacheMiss()
	}
	ids, err := e.source.EffectivePermissionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.cache.Put(userID, ids)
	return toSet(ids), nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func requirementName(req Requirement) string {
	switch req.(type) {
	case RoleIn:
		return "role"
	case PermissionCheck:
		return "permission"
	case OwnerOrElevated:
		return "owner"
	case DepartmentIn:
		return "department"
	default:
		return "unknown"
	}
}
