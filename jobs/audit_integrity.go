package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hr/meridian-hr/internal/audit"
)

const defaultIntegrityWindowDays = 30

// integrityWindow clamps the scan window to the default when unset. The
// value is bound as a query parameter, never interpolated.
func integrityWindow(days int) int {
	if days <= 0 {
		return defaultIntegrityWindowDays
	}
	return days
}

// AuditIntegrityJob scans recent role management entries and reports any
// whose details JSON no longer decodes, since those entries cannot be
// reverted.
type AuditIntegrityJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewAuditIntegrityJob wires dependencies for the integrity handler.
func NewAuditIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *AuditIntegrityJob {
	return &AuditIntegrityJob{Pool: pool, Logger: logger}
}

// Handle processes audit integrity tasks.
func (j *AuditIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("audit integrity: handler not configured")
	}
	var payload AuditIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	payload.Days = integrityWindow(payload.Days)

	rows, err := j.Pool.Query(ctx, `
		SELECT id, action, details
		FROM audit_logs
		WHERE category = $1 AND created_at >= NOW() - make_interval(days => $2)`,
		audit.CategoryRoleManagement, payload.Days)
	if err != nil {
		return err
	}
	defer rows.Close()

	scanned, broken := 0, 0
	for rows.Next() {
		var id int64
		var action string
		var details []byte
		if err := rows.Scan(&id, &action, &details); err != nil {
			return err
		}
		scanned++
		if !audit.CanRevert(action) {
			continue
		}
		if _, err := audit.DecodeRoleDetails(details); err != nil {
			broken++
			j.logger().Warn("unrevertible audit entry",
				slog.Int64("audit_id", id),
				slog.String("action", action),
				slog.Any("error", err))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.logger().Info("audit integrity scan finished",
		slog.Int("scanned", scanned),
		slog.Int("broken", broken),
		slog.Int("window_days", payload.Days))
	return nil
}

func (j *AuditIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
