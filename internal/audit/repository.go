package audit

import (
	"context"
	"time"
)

// ListFilters narrow an audit listing. Zero values mean "no filter".
type ListFilters struct {
	Category string
	Severity string
	Status   string
	From     time.Time
	To       time.Time
	Search   string
	Page     int
	PerPage  int
}

// Stats aggregates the audit trail for dashboard views.
type Stats struct {
	TotalLogs      int            `json:"totalLogs"`
	CategoryCounts map[string]int `json:"categoryCounts"`
	SeverityCounts map[string]int `json:"severityCounts"`
	StatusCounts   map[string]int `json:"statusCounts"`
	RecentActivity []Entry        `json:"recentActivity"`
}

// RepositoryPort defines read access to the audit trail.
type RepositoryPort interface {
	ListEntries(ctx context.Context, filters ListFilters) ([]Entry, int, error)
	GetEntry(ctx context.Context, id int64) (Entry, error)
	EntriesForResource(ctx context.Context, category, resourceID string, page, perPage int) ([]Entry, int, error)
	Stats(ctx context.Context, from, to time.Time) (Stats, error)
}
