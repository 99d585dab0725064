// Package memory implements the in-memory storage backend (spec component
// C2.1): a genuinely unbounded FIFO slice of (uid, payload) pairs plus a
// map of job metadata, both guarded by one sync.RWMutex. A Go channel was
// the first cut here, but a channel needs a fixed buffer capacity to stay
// non-blocking on Push, which silently reintroduces the bound spec.md §5
// rules out for this backend ("unbounded — producers never block"); a
// plain growable slice under the lock has no such ceiling.
//
// There is no durability here — a process restart loses every record.
// This backend exists for tests and for embedding scenarios that don't
// need durability, not as a production queue.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bobmcallan/jobqueue"
	"github.com/bobmcallan/jobqueue/registry"
)

type queued struct {
	uid     ulid.ULID
	payload []byte
	typeTag string
}

// Provider is the in-memory jobqueue.Provider[D] implementation.
type Provider[D any] struct {
	registry *registry.Registry[D]

	mu      sync.RWMutex
	pending []queued
	jobs    map[ulid.ULID]*jobqueue.JobMetadata
}

// New builds an in-memory provider for the family described by reg. Push
// never blocks: the pending queue grows without bound rather than
// applying any backpressure of its own.
func New[D any](reg *registry.Registry[D]) *Provider[D] {
	return &Provider[D]{
		registry: reg,
		jobs:     make(map[ulid.ULID]*jobqueue.JobMetadata),
	}
}

// Push encodes job via the registry, assigns a fresh ULID, records it
// NotStarted, and appends it to the pending queue.
func (p *Provider[D]) Push(ctx context.Context, job jobqueue.Job[D]) (jobqueue.JobMetadata, error) {
	if err := ctx.Err(); err != nil {
		return jobqueue.JobMetadata{}, err
	}

	typeTag, payload, err := p.registry.Encode(job)
	if err != nil {
		return jobqueue.JobMetadata{}, err
	}

	uid := ulid.Make()
	meta := &jobqueue.JobMetadata{
		UID:     uid,
		State:   jobqueue.JobStateNotStarted,
		Created: time.Now().UTC(),
	}

	p.mu.Lock()
	p.jobs[uid] = meta
	p.pending = append(p.pending, queued{uid: uid, payload: payload, typeTag: typeTag})
	p.mu.Unlock()

	return *meta, nil
}

// Pull claims the oldest pending record without blocking: an empty queue
// yields jobqueue.ErrEmpty immediately, leaving backoff to the caller (the
// executor loop), exactly as spec.md's Pull contract requires — Pull
// itself never blocks waiting for a producer.
func (p *Provider[D]) Pull(ctx context.Context) (jobqueue.JobInfo[D], error) {
	if err := ctx.Err(); err != nil {
		return jobqueue.JobInfo[D]{}, err
	}

	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return jobqueue.JobInfo[D]{}, jobqueue.ErrEmpty
	}
	q := p.pending[0]
	p.pending = p.pending[1:]

	return p.claim(q) // releases p.mu
}

// claim transitions q's record to Running before decoding its payload,
// matching storage/postgres's UPDATE-before-decode order: a decode
// failure then leaves the record Running for operator recovery (spec.md
// S5) instead of stranding it NotStarted. It is called with p.mu held, so
// the pop and the transition form one critical section, and it releases
// p.mu before decoding.
func (p *Provider[D]) claim(q queued) (jobqueue.JobInfo[D], error) {
	now := time.Now().UTC()

	meta, ok := p.jobs[q.uid]
	if !ok {
		p.mu.Unlock()
		return jobqueue.JobInfo[D]{}, jobqueue.NewNotFoundError(q.uid.String())
	}
	meta.State = jobqueue.JobStateRunning
	meta.Started = &now
	snapshot := *meta
	p.mu.Unlock()

	job, err := p.registry.Decode(q.typeTag, q.payload)
	if err != nil {
		return jobqueue.JobInfo[D]{}, err
	}

	return jobqueue.JobInfo[D]{Metadata: snapshot, Job: job}, nil
}

// SetResult transitions uid to Completed or Failed. It is the sole writer
// of the metadata map's state/result/completed fields, so it takes the
// exclusive lock.
func (p *Provider[D]) SetResult(ctx context.Context, uid ulid.ULID, runErr error) (jobqueue.JobMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	meta, ok := p.jobs[uid]
	if !ok {
		return jobqueue.JobMetadata{}, jobqueue.NewNotFoundError(uid.String())
	}
	if meta.State == jobqueue.JobStateCompleted || meta.State == jobqueue.JobStateFailed {
		return jobqueue.JobMetadata{}, jobqueue.NewIllegalTransitionError(uid.String())
	}

	now := time.Now().UTC()
	meta.Completed = &now
	if runErr != nil {
		meta.State = jobqueue.JobStateFailed
		meta.Result = jobqueue.NewJobError(runErr)
	} else {
		meta.State = jobqueue.JobStateCompleted
	}

	return *meta, nil
}

// GetJob returns a metadata snapshot for uid.
func (p *Provider[D]) GetJob(ctx context.Context, uid ulid.ULID) (jobqueue.JobMetadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	meta, ok := p.jobs[uid]
	if !ok {
		return jobqueue.JobMetadata{}, jobqueue.NewNotFoundError(uid.String())
	}
	return *meta, nil
}

// CountPending reports how many records are currently NotStarted, per
// SPEC_FULL.md §10's operational-introspection addition. It is not part
// of jobqueue.Provider — callers that need it type-assert or hold a
// *Provider[D] directly.
func (p *Provider[D]) CountPending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, meta := range p.jobs {
		if meta.State == jobqueue.JobStateNotStarted {
			n++
		}
	}
	return n
}
