// Package executor implements the task-dispatch core: adapter lookup,
// credential resolution, timeout-bounded handler execution and
// normalization into the canonical result envelope.
package executor

import (
	"context"
	"time"

	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/logger"
	"github.com/opsmux/opsmux/pkg/metrics"
	"github.com/opsmux/opsmux/pkg/task"
	"go.uber.org/zap"
)

// DefaultTimeout bounds handler execution when the payload does not
// declare its own timeout.
const DefaultTimeout = 120 * time.Second

// Executor dispatches tasks against registered adapters
type Executor struct {
	registry *adapter.Registry
	logger   *zap.Logger
}

// New creates an executor backed by the given registry
func New(registry *adapter.Registry) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger.Get().With(zap.String("component", "executor")),
	}
}

// Execute runs one task against the system addressed by the connector
// and returns the normalized result envelope.
//
// Failure modes: not_found (no adapter for the system),
// unsupported_task (adapter lacks the task type), missing_connector
// (absent or empty connector), timeout (deadline elapsed), handler
// (wrapped underlying failure). Handler failures are wrapped with
// system and task context and re-raised, never swallowed.
func (e *Executor) Execute(
	ctx context.Context,
	system connector.SystemType,
	taskType task.Type,
	tr task.TimeRange,
	payload *task.Payload,
	conn *connector.Connector,
) (*task.Result, error) {
	a, err := e.registry.Get(system)
	if err != nil {
		return nil, err
	}

	spec, ok := a.Tasks[taskType]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedTask,
			"system %s does not support task %s", system, taskType)
	}

	if conn.IsEmpty() {
		return nil, errors.Newf(errors.ErrorTypeMissingConnector,
			"no connector supplied for system %s", system)
	}

	params, err := credentials.Resolve(conn)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig,
			"failed to resolve credentials for system %s", system)
	}

	client, err := a.NewClient(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConnection,
			"failed to build client for system %s", system)
	}
	if closer, ok := client.(interface{ Close() error }); ok {
		defer closer.Close() //nolint:errcheck
	}

	timeout := payload.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// Audit line: system, account, effective query/target. The query
	// text is part of the task, not secret material.
	e.logger.Info("executing task",
		zap.String("system", string(system)),
		zap.String("task", string(taskType)),
		zap.String("account", conn.Name),
		zap.String("query", payload.QueryText()),
		zap.Duration("timeout", timeout))

	timer := metrics.NewTimer()
	raw, err := runBounded(ctx, timeout, func(workerCtx context.Context) (*task.Raw, error) {
		return spec.Handler(workerCtx, client, tr, payload)
	})
	metrics.TaskDuration.WithLabelValues(string(system), string(taskType)).Observe(timer.Stop().Seconds())

	if err != nil {
		if errors.IsType(err, errors.ErrorTypeTimeout) {
			metrics.TaskTimeouts.WithLabelValues(string(system), string(taskType)).Inc()
			metrics.TasksExecuted.WithLabelValues(string(system), string(taskType), "timeout").Inc()
			return nil, err
		}
		metrics.TasksExecuted.WithLabelValues(string(system), string(taskType), "error").Inc()
		return nil, errors.Wrapf(err, errors.ErrorTypeHandler,
			"task %s on system %s failed", taskType, system)
	}

	metrics.TasksExecuted.WithLabelValues(string(system), string(taskType), "success").Inc()
	return normalize(spec.Shape, raw), nil
}

// normalize wraps a handler's native result into the canonical envelope
// according to the task's declared result shape.
func normalize(shape task.ResultShape, raw *task.Raw) *task.Result {
	result := &task.Result{Shape: shape}
	if raw == nil {
		result.Shape = task.ShapeUnknown
		return result
	}

	switch shape {
	case task.ShapeTable:
		result.Table = task.NormalizeTable(raw.Table)
	case task.ShapeLogs:
		result.Logs = task.NormalizeTable(raw.Table)
	case task.ShapeText:
		result.Text = raw.Text
	case task.ShapeCommandOutput:
		result.Commands = raw.Commands
	default:
		result.Shape = task.ShapeUnknown
	}
	return result
}
