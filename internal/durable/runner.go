// Package durable runs orchestrator sub-tasks with timeouts, heartbeats and retries,
// and lets long-running orchestrators restart themselves with a compact argument.
package durable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/robalyx/decelerator/internal/durable"

// Runner executes sub-tasks for one orchestrator instance.
type Runner struct {
	history *History
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewRunner creates a runner that records into history.
func NewRunner(history *History, logger *zap.Logger) *Runner {
	return &Runner{
		history: history,
		tracer:  otel.Tracer(tracerName),
		logger:  logger.Named("durable"),
	}
}

// History returns the history the runner records into.
func (r *Runner) History() *History {
	return r.history
}

// Run executes fn under policy.
func (r *Runner) Run(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, r, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// Execute executes fn under policy and returns its result.
// Attempts that fail with a retryable error are retried with exponential backoff.
func Execute[T any](ctx context.Context, r *Runner, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := r.tracer.Start(ctx, "task "+policy.Name, trace.WithAttributes(
		attribute.String("task.name", policy.Name),
	))
	defer span.End()

	var (
		result  T
		attempt uint64
	)

	operation := func() error {
		attempt++
		r.history.Record(Event{Task: policy.Name, Kind: EventScheduled, Attempt: attempt})

		value, err := runAttempt(ctx, policy, fn)
		if err == nil {
			result = value
			r.history.Record(Event{Task: policy.Name, Kind: EventCompleted, Attempt: attempt})

			return nil
		}

		r.history.Record(Event{Task: policy.Name, Kind: EventFailed, Attempt: attempt})

		if ctx.Err() != nil || IsNonRetryable(err) || (policy.NonRetryable != nil && policy.NonRetryable(err)) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, next time.Duration) {
		r.logger.Warn("Task attempt failed, retrying",
			zap.String("task", policy.Name),
			zap.Uint64("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(newBackOff(policy), ctx), notify)
	span.SetAttributes(attribute.Int64("task.attempts", int64(attempt)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var zero T

		return zero, &TaskError{Task: policy.Name, Attempts: attempt, Err: err}
	}

	return result, nil
}

// runAttempt runs fn once with the attempt timeout and heartbeat watchdog applied.
func runAttempt[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if policy.Timeout > 0 {
		var stop context.CancelFunc

		attemptCtx, stop = context.WithTimeoutCause(attemptCtx, policy.Timeout, ErrAttemptTimeout)
		defer stop()
	}

	if policy.HeartbeatTimeout > 0 {
		h := &heartbeat{}
		h.beat()

		attemptCtx = context.WithValue(attemptCtx, heartbeatKey{}, h)
		go watchHeartbeat(attemptCtx, h, policy.HeartbeatTimeout, cancel)
	}

	value, err := fn(attemptCtx)
	if err != nil {
		return value, wrapCause(attemptCtx, err)
	}

	return value, nil
}

func newBackOff(policy Policy) backoff.BackOff {
	expo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(max(policy.InitialInterval, time.Millisecond)),
		backoff.WithMaxInterval(max(policy.MaxInterval, policy.InitialInterval, time.Millisecond)),
		backoff.WithMaxElapsedTime(0),
	)

	retries := uint64(0)
	if policy.MaxAttempts > 1 {
		retries = policy.MaxAttempts - 1
	}

	return backoff.WithMaxRetries(expo, retries)
}

func wrapCause(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(err, cause) {
		return err
	}

	return fmt.Errorf("%w: %w", cause, err)
}
