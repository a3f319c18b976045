package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueWarmup carries permission cache warmup tasks. API instances
	// consume it so warmed entries land in the in-process cache the
	// authorization engine reads; the standalone worker does not.
	QueueWarmup = "warmup"
	// TaskPermissionCacheWarmup pre-populates permission caches for active users.
	TaskPermissionCacheWarmup = "permcache:warmup"
	// TaskAuditIntegrity verifies that role management audit details decode.
	TaskAuditIntegrity = "audit:integrity"
)

// PermissionCacheWarmupPayload selects which users to warm. An empty UserIDs
// slice means every active user.
type PermissionCacheWarmupPayload struct {
	UserIDs []int64 `json:"userIds,omitempty"`
}

// NewPermissionCacheWarmupTask constructs an Asynq task.
func NewPermissionCacheWarmupTask(payload PermissionCacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionCacheWarmup, data), nil
}

// AuditIntegrityPayload bounds the scan window in days. Zero means the
// default window.
type AuditIntegrityPayload struct {
	Days int `json:"days,omitempty"`
}

// NewAuditIntegrityTask constructs an Asynq task.
func NewAuditIntegrityTask(payload AuditIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditIntegrity, data), nil
}
