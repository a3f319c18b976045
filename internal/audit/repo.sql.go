package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Repository provides PostgreSQL backed read access to audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `a.id, COALESCE(a.user_id, 0), a.action, a.category, a.resource, a.resource_id,
	a.severity, a.status, COALESCE(a.ip_address, ''), COALESCE(a.user_agent, ''), a.details,
	COALESCE(a.description, ''), a.created_at, COALESCE(u.name, ''), COALESCE(u.email, '')`

// ListEntries returns a page of entries plus the total matching count.
func (r *Repository) ListEntries(ctx context.Context, filters ListFilters) ([]Entry, int, error) {
	where, args := buildFilterClauses(filters)

	countQuery := "SELECT COUNT(*) FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id" + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		"SELECT %s FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id%s ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d",
		entryColumns, where, len(args)+1, len(args)+2)
	args = append(args, filters.PerPage, (filters.Page-1)*filters.PerPage)

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// GetEntry fetches one entry by id.
func (r *Repository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id WHERE a.id = $1", entryColumns)
	entries, err := r.queryEntries(ctx, query, id)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, shared.ErrNotFound
	}
	return entries[0], nil
}

// EntriesForResource lists a resource's history, newest first.
func (r *Repository) EntriesForResource(ctx context.Context, category, resourceID string, page, perPage int) ([]Entry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE category = $1 AND resource_id = $2`,
		category, resourceID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		"SELECT %s FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id WHERE a.category = $1 AND a.resource_id = $2 ORDER BY a.created_at DESC LIMIT $3 OFFSET $4",
		entryColumns)
	entries, err := r.queryEntries(ctx, query, category, resourceID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Stats aggregates counts for the given window; zero times mean unbounded.
func (r *Repository) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	where, args := buildFilterClauses(ListFilters{From: from, To: to})

	stats := Stats{
		CategoryCounts: make(map[string]int),
		SeverityCounts: make(map[string]int),
		StatusCounts:   make(map[string]int),
	}

	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id"+where, args...).Scan(&stats.TotalLogs); err != nil {
		return Stats{}, err
	}

	for _, group := range []struct {
		column string
		dest   map[string]int
	}{
		{"category", stats.CategoryCounts},
		{"severity", stats.SeverityCounts},
		{"status", stats.StatusCounts},
	} {
		query := fmt.Sprintf("SELECT a.%s, COUNT(*) FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id%s GROUP BY a.%s", group.column, where, group.column)
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return Stats{}, err
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return Stats{}, err
			}
			group.dest[key] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return Stats{}, err
		}
	}

	recentQuery := fmt.Sprintf(
		"SELECT %s FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id%s ORDER BY a.created_at DESC LIMIT 10",
		entryColumns, where)
	recent, err := r.queryEntries(ctx, recentQuery, args...)
	if err != nil {
		return Stats{}, err
	}
	stats.RecentActivity = recent
	return stats, nil
}

func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			details pgtype.Text
			at      time.Time
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.Category, &entry.Resource,
			&entry.ResourceID, &entry.Severity, &entry.Status, &entry.IPAddress, &entry.UserAgent,
			&details, &entry.Description, &at, &entry.ActorName, &entry.ActorEmail); err != nil {
			return nil, err
		}
		if details.Valid {
			entry.Details = []byte(details.String)
		}
		entry.Timestamp = at
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// buildFilterClauses renders the WHERE clause shared by listing and stats.
func buildFilterClauses(filters ListFilters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filters.Category != "" {
		add("a.category = $%d", filters.Category)
	}
	if filters.Severity != "" {
		add("a.severity = $%d", filters.Severity)
	}
	if filters.Status != "" {
		add("a.status = $%d", filters.Status)
	}
	if !filters.From.IsZero() {
		add("a.created_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("a.created_at <= $%d", filters.To)
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(a.action ILIKE $%d OR a.resource ILIKE $%d OR a.description ILIKE $%d OR u.name ILIKE $%d OR u.email ILIKE $%d)",
			n, n, n, n, n))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
