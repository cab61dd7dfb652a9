package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/kitchenops/backoffice/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SessionStore is the part of the session manager the refresh jobs use.
type SessionStore interface {
	SessionsForRole(ctx context.Context, roleID uuid.UUID) ([]string, error)
	RefreshPermissions(ctx context.Context, sessionID string, roleID uuid.UUID, names []string) (bool, error)
	PruneRoleIndex(ctx context.Context) (int, error)
}

// PermissionResolver resolves the permission names granted to a role.
type PermissionResolver interface {
	EffectivePermissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error)
}

// SessionsRefreshJob pushes a role's current grants into its live sessions.
type SessionsRefreshJob struct {
	Sessions SessionStore
	Resolver PermissionResolver
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSessionsRefreshJob wires dependencies for the refresh handlers.
func NewSessionsRefreshJob(sessions SessionStore, resolver PermissionResolver, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsRefreshJob {
	return &SessionsRefreshJob{Sessions: sessions, Resolver: resolver, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSessionsRefresh tasks. Names are resolved when the
// task runs, so a late task still writes the latest grants.
func (j *SessionsRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil || j.Resolver == nil {
		return errors.New("sessions refresh: handler not configured")
	}
	var payload SessionsRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RoleID == uuid.Nil {
		return fmt.Errorf("sessions refresh: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskSessionsRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger(TaskSessionsRefresh).With(slog.String("role_id", payload.RoleID.String()))

	ids, err := j.Sessions.SessionsForRole(ctx, payload.RoleID)
	if err != nil {
		resultErr = err
		logger.Error("list role sessions", slog.Any("error", err))
		return resultErr
	}
	if len(ids) == 0 {
		logger.Debug("no live sessions for role")
		return nil
	}
	names, err := j.Resolver.EffectivePermissionNames(ctx, payload.RoleID)
	if err != nil {
		resultErr = err
		logger.Error("resolve role permissions", slog.Any("error", err))
		return resultErr
	}

	refreshed := 0
	for _, id := range ids {
		ok, err := j.Sessions.RefreshPermissions(ctx, id, payload.RoleID, names)
		if err != nil {
			resultErr = err
			logger.Error("refresh session", slog.String("session_id", id), slog.Any("error", err))
			return resultErr
		}
		if ok {
			refreshed++
		}
	}
	j.metrics().AddRefreshedSessions(refreshed)
	logger.Info("sessions refreshed", slog.Int("sessions", refreshed), slog.Int("indexed", len(ids)))
	return nil
}

// HandleSweep processes TaskSessionsSweep tasks.
func (j *SessionsRefreshJob) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("sessions sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskSessionsSweep)
	removed, err := j.Sessions.PruneRoleIndex(ctx)
	if err != nil {
		j.logger(TaskSessionsSweep).Error("prune role index", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger(TaskSessionsSweep).Info("role index pruned", slog.Int("removed", removed))
	return tracker.End(nil)
}

func (j *SessionsRefreshJob) logger(task string) *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", task))
	}
	return slog.Default().With(slog.String("job", task))
}

func (j *SessionsRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
