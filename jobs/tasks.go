package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsRefresh rewrites the permission snapshot of every session
	// bound to a role after its grants changed.
	TaskSessionsRefresh = "rbac:sessions_refresh"
	// TaskSessionsSweep drops role index entries of expired sessions.
	TaskSessionsSweep = "rbac:sessions_sweep"
)

// SessionsRefreshPayload names the role whose grants changed.
type SessionsRefreshPayload struct {
	RoleID uuid.UUID `json:"role_id"`
}

// NewSessionsRefreshTask builds a refresh task for roleID.
func NewSessionsRefreshTask(roleID uuid.UUID) (*asynq.Task, error) {
	if roleID == uuid.Nil {
		return nil, fmt.Errorf("jobs: sessions refresh requires a role id")
	}
	body, err := json.Marshal(SessionsRefreshPayload{RoleID: roleID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsRefresh, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewSessionsSweepTask builds the periodic index sweep task.
func NewSessionsSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
