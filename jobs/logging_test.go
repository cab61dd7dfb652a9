package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTasksPassesThroughErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	boom := errors.New("boom")

	handler := logTasks(logger)(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return boom }))
	require.ErrorIs(t, handler.ProcessTask(context.Background(), NewSessionsSweepTask()), boom)
	assert.NotContains(t, buf.String(), "task done")

	handler = logTasks(logger)(asynq.HandlerFunc(func(context.Context, *asynq.Task) error { return nil }))
	require.NoError(t, handler.ProcessTask(context.Background(), NewSessionsSweepTask()))
	assert.Contains(t, buf.String(), "task done")
	assert.Contains(t, buf.String(), "task="+TaskSessionsSweep)
}

func TestTaskErrorLoggerFlagsSkippedRetries(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	taskErrorLogger(logger)(context.Background(), NewSessionsSweepTask(), fmt.Errorf("bad payload: %w", asynq.SkipRetry))
	assert.Contains(t, buf.String(), "task failed permanently")
	assert.Contains(t, buf.String(), "level=ERROR")
}
