package jobqueue

import (
	"context"
	"sync"
)

// RunningExecutor is the lifecycle handle returned by Executor.Start: it
// carries cooperative shutdown, join, and progress notification for tests
// that need to wait for N completions without sleeping.
type RunningExecutor struct {
	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
	stopped  bool

	mu        sync.Mutex
	completed int
	waitedFor int           // completion count the last successful WaitFor reached
	waiters   chan struct{} // closed and replaced each time completed advances
}

func newRunningExecutor(cancel context.CancelFunc) *RunningExecutor {
	return &RunningExecutor{
		cancel:  cancel,
		done:    make(chan struct{}),
		waiters: make(chan struct{}),
	}
}

// publishProgress advances the completion counter by one and wakes every
// goroutine currently blocked in WaitFor. Go's stdlib has no broadcast
// channel type, so this uses the standard close-and-replace idiom: close
// the current waiters channel (every receive on it unblocks), then swap in
// a fresh one for the next round.
func (r *RunningExecutor) publishProgress() {
	r.mu.Lock()
	r.completed++
	old := r.waiters
	r.waiters = make(chan struct{})
	r.mu.Unlock()
	close(old)
}

// Stop signals the loop to exit at its next select boundary and waits for
// it to return. It is idempotent: a second call returns ErrAlreadyStopped
// immediately without blocking or panicking.
func (r *RunningExecutor) Stop(ctx context.Context) error {
	alreadyStopped := false
	r.stopOnce.Do(func() {
		r.cancel()
	})

	r.mu.Lock()
	if r.stopped {
		alreadyStopped = true
	} else {
		r.stopped = true
	}
	r.mu.Unlock()

	if alreadyStopped {
		return ErrAlreadyStopped
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return newExecutionError(SubJoin, "timed out waiting for executor to stop", ctx.Err())
	}
}

// WaitFor resolves once the executor has completed at least n further jobs
// since this handle's last successful WaitFor call (or since Start, for the
// first call), or fails when ctx is done first. It returns
// ErrAlreadyStopped if the executor loop exits before the target is reached.
func (r *RunningExecutor) WaitFor(ctx context.Context, n int) error {
	target := 0
	r.mu.Lock()
	target = r.waitedFor + n
	r.mu.Unlock()

	exited := false
	for {
		r.mu.Lock()
		reached := r.completed >= target
		if reached {
			r.waitedFor = target
		}
		waiters := r.waiters
		r.mu.Unlock()

		if reached {
			return nil
		}
		if exited {
			return ErrAlreadyStopped
		}

		select {
		case <-waiters:
			continue
		case <-r.done:
			exited = true // re-check the final count once before reporting
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
