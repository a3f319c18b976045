package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Result bundles a page of entries with paging metadata.
type Result struct {
	Entries []EntryView
	Paging  shared.Pagination
}

// EntryView decorates an Entry with revert eligibility for listings.
type EntryView struct {
	Entry
	CanRevert bool `json:"canRevert"`
}

// Service coordinates audit trail reads.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns audit entries matching the filters with paging.
func (s *Service) List(ctx context.Context, filters ListFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	filters.Page, filters.PerPage = clampPaging(filters.Page, filters.PerPage)
	entries, total, err := s.repo.ListEntries(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Entries: decorate(entries),
		Paging:  shared.NewPagination(filters.Page, filters.PerPage, total),
	}, nil
}

// Get fetches a single entry by id.
func (s *Service) Get(ctx context.Context, id int64) (EntryView, error) {
	entry, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return EntryView{}, err
	}
	return EntryView{Entry: entry, CanRevert: revertEligible(entry)}, nil
}

// RoleHistory lists the ROLE_MANAGEMENT trail of a single role.
func (s *Service) RoleHistory(ctx context.Context, roleID int64, page, perPage int) (Result, error) {
	page, perPage = clampPaging(page, perPage)
	entries, total, err := s.repo.EntriesForResource(ctx, CategoryRoleManagement, fmt.Sprintf("%d", roleID), page, perPage)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Entries: decorate(entries),
		Paging:  shared.NewPagination(page, perPage, total),
	}, nil
}

// RoleAuditLogs lists all ROLE_MANAGEMENT entries with optional search.
func (s *Service) RoleAuditLogs(ctx context.Context, search string, page, perPage int) (Result, error) {
	page, perPage = clampPaging(page, perPage)
	filters := ListFilters{
		Category: CategoryRoleManagement,
		Search:   search,
		Page:     page,
		PerPage:  perPage,
	}
	entries, total, err := s.repo.ListEntries(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Entries: decorate(entries),
		Paging:  shared.NewPagination(page, perPage, total),
	}, nil
}

// Stats aggregates the trail for the given window.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	return s.repo.Stats(ctx, from, to)
}

func clampPaging(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 50 {
		perPage = 50
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}

func decorate(entries []Entry) []EntryView {
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, EntryView{Entry: entry, CanRevert: revertEligible(entry)})
	}
	return views
}

// revertEligible mirrors the revert engine's validation for display: only
// the three role mutations inside ROLE_MANAGEMENT qualify.
func revertEligible(entry Entry) bool {
	return entry.Category == CategoryRoleManagement && CanRevert(entry.Action)
}

// DecodeRoleDetails parses an entry's details into the role shape.
func DecodeRoleDetails(raw json.RawMessage) (RoleDetails, error) {
	var details RoleDetails
	if len(raw) == 0 {
		return details, nil
	}
	if err := json.Unmarshal(raw, &details); err != nil {
		return RoleDetails{}, err
	}
	return details, nil
}
