package command

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crisisnet/meshcore/internal/domain/mesh"
	"github.com/crisisnet/meshcore/internal/observability/metrics"
	"github.com/crisisnet/meshcore/pkg/idempotency"
	"github.com/crisisnet/meshcore/pkg/workerpool"
)

// Terminal reports whether err is a rejection that will not change on retry
func Terminal(err error) bool {
	return mesh.IsValidation(err) ||
		mesh.IsNotFound(err) ||
		mesh.IsIllegalState(err) ||
		mesh.IsConcurrencyConflict(err) ||
		errors.Is(err, idempotency.ErrPreviouslyFailed)
}

// Worker applies consumed commands at most once per (node, type, id)
type Worker struct {
	dispatcher *Dispatcher
	inbox      idempotency.Processor
	logger     *zap.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// NewWorker creates a worker
func NewWorker(d *Dispatcher, inbox idempotency.Processor, logger *zap.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		dispatcher: d,
		inbox:      inbox,
		logger:     logger,
		metrics:    m,
		tracer:     otel.Tracer("command-worker"),
	}
}

// Handle decodes and applies one command. A duplicate returns the stored
// result without touching the engines.
func (w *Worker) Handle(ctx context.Context, data []byte) (json.RawMessage, error) {
	cmd, err := Decode(data)
	if err != nil {
		return nil, err
	}

	ctx, span := w.tracer.Start(ctx, "command.handle",
		trace.WithAttributes(
			attribute.String("command_id", cmd.ID),
			attribute.String("command_type", string(cmd.Type)),
			attribute.String("node_id", cmd.NodeID),
		))
	defer span.End()

	key := idempotency.GenerateKey(cmd.NodeID, string(cmd.Type), cmd.ID)
	res, err := w.inbox.Process(ctx, key, string(cmd.Type), cmd.Payload, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return w.dispatcher.Dispatch(ctx, cmd)
	})
	w.metrics.Consumed()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("duplicate", !res.IsNew && !res.WasRecovered))
	w.logger.Info("command applied",
		zap.String("command_id", cmd.ID),
		zap.String("type", string(cmd.Type)),
		zap.String("node_id", cmd.NodeID),
		zap.Bool("new", res.IsNew),
	)
	return res.Result, nil
}

// Process adapts Handle to a workerpool task whose payload is the raw record
// value. Terminal rejections are logged and reported as success so the
// record is committed instead of redelivered.
func (w *Worker) Process(ctx context.Context, task *workerpool.Task) *workerpool.Result {
	data, ok := task.Payload.([]byte)
	if !ok {
		return &workerpool.Result{Error: mesh.Invalid("payload", "expected raw bytes")}
	}

	out, err := w.Handle(ctx, data)
	switch {
	case err == nil:
		return &workerpool.Result{Success: true, Data: out}
	case Terminal(err):
		w.logger.Warn("command rejected",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return &workerpool.Result{Success: true, Error: err}
	default:
		return &workerpool.Result{Error: err}
	}
}
