package users

import (
	"context"

	"github.com/meridian-hr/meridian-hr/internal/shared"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Result is one directory page.
type Result struct {
	Users  []User            `json:"users"`
	Paging shared.Pagination `json:"pagination"`
}

// Service exposes read access to the user directory.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the user service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns a filtered directory page.
func (s *Service) List(ctx context.Context, filters ListFilters) (Result, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PerPage < 1 {
		filters.PerPage = defaultPerPage
	}
	if filters.PerPage > maxPerPage {
		filters.PerPage = maxPerPage
	}
	users, total, err := s.repo.ListUsers(ctx, filters)
	if err != nil {
		return Result{}, err
	}
	if users == nil {
		users = []User{}
	}
	return Result{
		Users:  users,
		Paging: shared.NewPagination(filters.Page, filters.PerPage, total),
	}, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// Departments lists the distinct department names for filtering.
func (s *Service) Departments(ctx context.Context) ([]string, error) {
	names, err := s.repo.Departments(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
