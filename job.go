// Package jobqueue implements a persistent, typed, asynchronous job queue.
//
// A producer enqueues concretely-typed job payloads under a job family; one
// or more workers pull jobs from durable storage, execute each against a
// shared, family-scoped worker context, and record the terminal outcome.
// The library is meant to be embedded in a service, not run as a standalone
// daemon, and is safe for multiple producers and multiple concurrent
// workers sharing one backing store.
package jobqueue

import "context"

// Job is a concrete unit of work admissible to a family whose shared worker
// context has type D. Job values are encoded to JSON for storage and
// decoded back to their concrete type before Run is called, so a Job must
// round-trip through encoding/json.
//
// Run's error return is recorded as the job's terminal result: nil marks
// the job Completed, non-nil marks it Failed with the error's message
// captured in the stored record. Run is never cancelled mid-flight by the
// executor — ctx is provided for the job body's own use (outbound calls,
// deadlines), not as a cancellation signal from the queue itself.
type Job[D any] interface {
	Run(ctx context.Context, workerCtx *D) error
}
