package jobqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Executor is a long-running consumer loop bound to one family and one
// shared, read-only worker context D. Start schedules the loop on its own
// goroutine and returns a RunningExecutor for cooperative shutdown and
// test synchronization.
//
// Shutdown is only observed at the select boundary before a new Pull — a
// job's Run is never cancelled mid-flight, so a worker never leaves a
// record Running without a terminal write it chose not to make.
type Executor[D any] struct {
	storage   Provider[D]
	workerCtx D
	logger    *Logger
	backoff   *rate.Limiter
	id        string
}

// ExecutorOption configures an Executor at construction time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	logger  *Logger
	backoff *rate.Limiter
}

// WithLogger attaches a logger; the default is silent.
func WithLogger(logger *Logger) ExecutorOption {
	return func(c *executorConfig) { c.logger = logger }
}

// WithBackoffLimiter overrides the empty-queue backoff. The default allows
// one Pull retry per second, matching the spec's fixed 1-second backoff.
func WithBackoffLimiter(limiter *rate.Limiter) ExecutorOption {
	return func(c *executorConfig) { c.backoff = limiter }
}

// NewExecutor binds storage and workerCtx into an Executor ready to Start.
func NewExecutor[D any](storage Provider[D], workerCtx D, opts ...ExecutorOption) *Executor[D] {
	cfg := executorConfig{
		logger:  NewSilentLogger(),
		backoff: rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = NewSilentLogger()
	}
	return &Executor[D]{
		storage:  storage,
		workerCtx: workerCtx,
		logger:   cfg.logger,
		backoff:  cfg.backoff,
		id:       uuid.New().String()[:8],
	}
}

// Start launches the pull->run->record loop on its own goroutine and
// returns a handle for cooperative shutdown and progress notification.
// ctx bounds the loop's lifetime in addition to RunningExecutor.Stop —
// either cancelling ctx or calling Stop ends the loop.
func (e *Executor[D]) Start(ctx context.Context) *RunningExecutor {
	loopCtx, cancel := context.WithCancel(ctx)
	re := newRunningExecutor(cancel)

	go func() {
		defer close(re.done)
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().
					Str("executor_id", e.id).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("executor loop panicked")
			}
		}()
		e.run(loopCtx, re)
	}()

	return re
}

func (e *Executor[D]) run(ctx context.Context, re *RunningExecutor) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		info, err := e.storage.Pull(ctx)
		if err != nil {
			if IsEmpty(err) {
				if werr := e.backoff.Wait(ctx); werr != nil {
					return // ctx cancelled while waiting
				}
				continue
			}
			e.logger.Error().Str("executor_id", e.id).Err(err).Msg("pull failed, worker exiting")
			return
		}

		// A claimed job runs and has its result recorded even if shutdown
		// is requested meanwhile: neither sees the loop's cancellation.
		jobCtx := context.WithoutCancel(ctx)
		runErr := info.Job.Run(jobCtx, &e.workerCtx)

		if _, err := e.storage.SetResult(jobCtx, info.Metadata.UID, runErr); err != nil {
			e.logger.Error().Str("executor_id", e.id).Err(err).Msg("set_result failed, worker exiting")
			return
		}

		if runErr != nil {
			e.logger.Warn().Str("executor_id", e.id).Str("uid", info.Metadata.UID.String()).Err(runErr).Msg("job failed")
		} else {
			e.logger.Debug().Str("executor_id", e.id).Str("uid", info.Metadata.UID.String()).Msg("job completed")
		}

		re.publishProgress()
	}
}
