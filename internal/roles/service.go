package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/meridian-hr/meridian-hr/internal/audit"
	"github.com/meridian-hr/meridian-hr/internal/platform/db"
	"github.com/meridian-hr/meridian-hr/internal/rbac"
)

var (
	ErrNameRequired         = errors.New("role name is required")
	ErrNameTaken            = errors.New("role name already exists")
	ErrInvalidPermissionIDs = errors.New("one or more permission ids do not exist")
	ErrInvalidUserIDs       = errors.New("one or more user ids do not exist")
)

// InUseError blocks deletion of a role that still has members.
type InUseError struct {
	Count int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("cannot delete role: %d user(s) are currently assigned to it", e.Count)
}

// Service owns role catalog mutations. Every successful mutation records an
// audit entry and invalidates the permission caches affected by it.
type Service struct {
	repo        RepositoryPort
	auditor     audit.Auditor
	invalidator rbac.Invalidator
	logger      *slog.Logger
}

// NewService constructs the role service.
func NewService(repo RepositoryPort, auditor audit.Auditor, invalidator rbac.Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, auditor: auditor, invalidator: invalidator, logger: logger}
}

// List returns all roles with permissions and members.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// Get returns one role.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListPermissions returns the permission catalog with role counts.
func (s *Service) ListPermissions(ctx context.Context) ([]PermissionWithRoleCount, error) {
	return s.repo.ListPermissions(ctx)
}

// Create validates and inserts a new role, then records CREATE_ROLE and
// invalidates the caches of any users assigned at creation time.
func (s *Service) Create(ctx context.Context, actor *rbac.Principal, meta audit.RequestMeta, input RoleInput) (Role, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Role{}, ErrNameRequired
	}
	taken, err := s.repo.NameTaken(ctx, input.Name, 0)
	if err != nil {
		return Role{}, err
	}
	if taken {
		return Role{}, ErrNameTaken
	}
	if err := s.validateReferences(ctx, input); err != nil {
		return Role{}, err
	}

	role, err := s.repo.CreateRole(ctx, input)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrNameTaken
		}
		return Role{}, err
	}

	s.auditor.Record(ctx, audit.Draft{
		UserID:     actorID(actor),
		Action:     audit.ActionCreateRole,
		Category:   audit.CategoryRoleManagement,
		Resource:   "roles",
		ResourceID: strconv.FormatInt(role.ID, 10),
		Severity:   audit.SeverityInfo,
		Status:     audit.StatusSuccess,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: audit.RoleDetails{
			RoleName:        role.Name,
			Description:     role.Description,
			PermissionIDs:   permissionIDList(role.Permissions),
			UserIDs:         memberIDList(role.Users),
			PermissionCount: len(role.Permissions),
			UserCount:       len(role.Users),
		},
		Description: fmt.Sprintf("Created role %q with %d permission(s) and %d user(s)", role.Name, len(role.Permissions), len(role.Users)),
	})

	for _, m := range role.Users {
		s.invalidator.Invalidate(ctx, m.ID)
	}
	return role, nil
}

// Update validates and applies changes to a role, records the per-field diff
// as UPDATE_ROLE, and invalidates the affected caches. When the permission
// set changed every cached user is invalidated since membership of other
// roles is not tracked here.
func (s *Service) Update(ctx context.Context, actor *rbac.Principal, meta audit.RequestMeta, id int64, input RoleInput) (Role, error) {
	before, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Role{}, ErrNameRequired
	}
	taken, err := s.repo.NameTaken(ctx, input.Name, id)
	if err != nil {
		return Role{}, err
	}
	if taken {
		return Role{}, ErrNameTaken
	}
	if err := s.validateReferences(ctx, input); err != nil {
		return Role{}, err
	}

	after, err := s.repo.UpdateRole(ctx, id, input)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, ErrNameTaken
		}
		return Role{}, err
	}

	changes := computeChanges(before, after)
	if !changes.Empty() {
		s.auditor.Record(ctx, audit.Draft{
			UserID:     actorID(actor),
			Action:     audit.ActionUpdateRole,
			Category:   audit.CategoryRoleManagement,
			Resource:   "roles",
			ResourceID: strconv.FormatInt(id, 10),
			Severity:   audit.SeverityInfo,
			Status:     audit.StatusSuccess,
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
			Details: audit.RoleDetails{
				RoleName: after.Name,
				Changes:  changes,
			},
			Description: fmt.Sprintf("Updated role %q", after.Name),
		})
	}

	if changes.Permissions != nil {
		s.invalidator.InvalidateAll(ctx)
	} else {
		for _, uid := range memberUnion(before.Users, after.Users) {
			s.invalidator.Invalidate(ctx, uid)
		}
	}
	return after, nil
}

// Delete removes an unassigned role, snapshotting its state into a
// DELETE_ROLE entry so the deletion can be reverted later.
func (s *Service) Delete(ctx context.Context, actor *rbac.Principal, meta audit.RequestMeta, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.UserCount > 0 {
		return &InUseError{Count: role.UserCount}
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}

	s.auditor.Record(ctx, audit.Draft{
		UserID:     actorID(actor),
		Action:     audit.ActionDeleteRole,
		Category:   audit.CategoryRoleManagement,
		Resource:   "roles",
		ResourceID: strconv.FormatInt(id, 10),
		Severity:   audit.SeverityWarning,
		Status:     audit.StatusSuccess,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Details: audit.RoleDetails{
			RoleName:        role.Name,
			Description:     role.Description,
			Permissions:     permissionRefs(role.Permissions),
			PermissionIDs:   permissionIDList(role.Permissions),
			PermissionCount: len(role.Permissions),
			UserCount:       role.UserCount,
		},
		Description: fmt.Sprintf("Deleted role %q", role.Name),
	})

	s.invalidator.InvalidateAll(ctx)
	return nil
}

// StatsOverview summarises the catalog for dashboards.
func (s *Service) StatsOverview(ctx context.Context) (StatsOverview, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return StatsOverview{}, err
	}
	permCount, err := s.repo.CountPermissions(ctx)
	if err != nil {
		return StatsOverview{}, err
	}

	dist := make([]RoleDistribution, 0, len(roles))
	for _, role := range roles {
		dist = append(dist, RoleDistribution{ID: role.ID, Name: role.Name, UserCount: role.UserCount})
	}
	sort.SliceStable(dist, func(i, j int) bool { return dist[i].UserCount > dist[j].UserCount })

	overview := StatsOverview{
		TotalRoles:       len(roles),
		TotalPermissions: permCount,
		RoleDistribution: dist,
	}
	if len(dist) > 0 && dist[0].UserCount > 0 {
		top := dist[0]
		overview.MostAssignedRole = &top
	}
	return overview, nil
}

func (s *Service) validateReferences(ctx context.Context, input RoleInput) error {
	if len(input.PermissionIDs) > 0 {
		perms, err := s.repo.PermissionsByIDs(ctx, input.PermissionIDs)
		if err != nil {
			return err
		}
		if len(perms) != len(uniqueStrings(input.PermissionIDs)) {
			return ErrInvalidPermissionIDs
		}
	}
	if len(input.UserIDs) > 0 {
		count, err := s.repo.CountUsersByIDs(ctx, input.UserIDs)
		if err != nil {
			return err
		}
		if count != len(uniqueInt64s(input.UserIDs)) {
			return ErrInvalidUserIDs
		}
	}
	return nil
}

func actorID(actor *rbac.Principal) int64 {
	if actor == nil {
		return 0
	}
	return actor.ID
}

func memberUnion(before, after []Member) []int64 {
	seen := make(map[int64]struct{}, len(before)+len(after))
	var ids []int64
	for _, m := range before {
		if _, ok := seen[m.ID]; !ok {
			seen[m.ID] = struct{}{}
			ids = append(ids, m.ID)
		}
	}
	for _, m := range after {
		if _, ok := seen[m.ID]; !ok {
			seen[m.ID] = struct{}{}
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func uniqueInt64s(in []int64) []int64 {
	seen := make(map[int64]struct{}, len(in))
	var out []int64
	for _, v := range in {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
