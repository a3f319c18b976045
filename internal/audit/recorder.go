package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WriteMetrics counts swallowed audit write failures.
type WriteMetrics interface {
	AuditWriteFailure()
}

// Auditor is the append contract consumed by mutation services. Record
// returns nil when the write failed; callers must not assume every mutation
// leaves a trail.
type Auditor interface {
	Record(ctx context.Context, draft Draft) *Entry
}

// Recorder appends audit entries to the audit_logs table. A failed write is
// logged and counted but never propagated, so the triggering business
// mutation is not rolled back.
type Recorder struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics WriteMetrics
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger, metrics WriteMetrics) *Recorder {
	return &Recorder{pool: pool, logger: logger, metrics: metrics}
}

// Record persists the draft with a server-assigned id and timestamp.
func (r *Recorder) Record(ctx context.Context, draft Draft) *Entry {
	entry, err := r.record(ctx, draft)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("audit record",
				slog.String("action", draft.Action),
				slog.String("resource_id", draft.ResourceID),
				slog.Any("error", err))
		}
		if r.metrics != nil {
			r.metrics.AuditWriteFailure()
		}
		return nil
	}
	return entry
}

func (r *Recorder) record(ctx context.Context, draft Draft) (*Entry, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("audit recorder not initialised")
	}
	if draft.Action == "" || draft.Category == "" || draft.Resource == "" {
		return nil, errors.New("audit draft requires action/category/resource")
	}
	if draft.Severity == "" {
		draft.Severity = SeverityInfo
	}
	if draft.Status == "" {
		draft.Status = StatusSuccess
	}

	var detailsJSON []byte
	if draft.Details != nil {
		data, err := json.Marshal(draft.Details)
		if err != nil {
			return nil, err
		}
		detailsJSON = data
	}

	var (
		id int64
		at time.Time
	)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO audit_logs (user_id, action, category, resource, resource_id, severity, status, ip_address, user_agent, details, description)
		VALUES (NULLIF($1, 0), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		draft.UserID, draft.Action, draft.Category, draft.Resource, draft.ResourceID,
		draft.Severity, draft.Status, draft.IPAddress, draft.UserAgent, detailsJSON, draft.Description,
	).Scan(&id, &at)
	if err != nil {
		return nil, err
	}

	return &Entry{
		ID:          id,
		UserID:      draft.UserID,
		Action:      draft.Action,
		Category:    draft.Category,
		Resource:    draft.Resource,
		ResourceID:  draft.ResourceID,
		Severity:    draft.Severity,
		Status:      draft.Status,
		IPAddress:   draft.IPAddress,
		UserAgent:   draft.UserAgent,
		Details:     detailsJSON,
		Description: draft.Description,
		Timestamp:   at,
	}, nil
}
