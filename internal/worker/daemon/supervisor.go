package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/decelerator/internal/durable"
	"github.com/robalyx/decelerator/pkg/utils"
	"go.uber.org/zap"
)

// ErrCheckpointFailed is returned when a restart argument could not be persisted.
var ErrCheckpointFailed = errors.New("failed to persist daemon checkpoint")

// RestartDelay is the pause before a crashed instance is started again.
const RestartDelay = 5 * time.Second

// CheckpointKey returns the checkpoint key of a domain's daemon.
func CheckpointKey(domain string) string {
	return "daemon:" + domain
}

// Supervisor runs daemon instances, persisting their restart arguments and
// restarting them after failures.
type Supervisor struct {
	daemon       *Daemon
	store        durable.CheckpointStore
	restartDelay time.Duration
	logger       *zap.Logger
}

// NewSupervisor creates a Supervisor for d.
func NewSupervisor(d *Daemon, store durable.CheckpointStore, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		daemon:       d,
		store:        store,
		restartDelay: RestartDelay,
		logger:       logger.Named("supervisor").With(zap.String("domain", d.Domain())),
	}
}

// WithRestartDelay overrides the pause before a failed instance restarts.
func (s *Supervisor) WithRestartDelay(delay time.Duration) *Supervisor {
	s.restartDelay = delay
	return s
}

// Run starts from the stored checkpoint, or from in when there is none, and
// keeps an instance running until ctx is cancelled.
// Only a checkpoint persistence failure ends it early.
func (s *Supervisor) Run(ctx context.Context, in Input) error {
	key := CheckpointKey(in.Domain)

	saved, err := durable.LoadCheckpoint[Input](ctx, s.store, key)
	switch {
	case err == nil:
		s.logger.Info("Resuming from checkpoint", zap.Int("queued", len(saved.Queue)))

		saved.Software = in.Software
		in = saved
	case errors.Is(err, durable.ErrNoCheckpoint):
	default:
		s.logger.Warn("Failed to load checkpoint, starting fresh", zap.Error(err))
	}

	for {
		err := s.runInstance(ctx, in)

		if next, ok := durable.AsContinueAsNew[Input](err); ok {
			if err := durable.SaveCheckpoint(ctx, s.store, key, next); err != nil {
				s.logger.Error("Failed to persist checkpoint", zap.Error(err))
				return fmt.Errorf("%w: %w", ErrCheckpointFailed, err)
			}

			s.logger.Info("Instance continued as new", zap.Int("queued", len(next.Queue)))

			in = next

			continue
		}

		if ctx.Err() != nil {
			s.logger.Info("Context cancelled, stopping daemon")
			return nil
		}

		s.logger.Error("Daemon instance failed", zap.Error(err))
		s.logger.Info("Restarting daemon", zap.Duration("delay", s.restartDelay))

		if utils.ContextSleep(ctx, s.restartDelay) == utils.SleepCancelled {
			return nil
		}
	}
}

// runInstance runs one instance and turns a panic into an error.
func (s *Supervisor) runInstance(ctx context.Context, in Input) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("daemon panicked: %v", r)
		}
	}()

	err = s.daemon.Run(ctx, in)
	if err == nil {
		err = errors.New("daemon stopped unexpectedly")
	}

	return err
}
