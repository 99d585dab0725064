package jobqueue

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Provider is the storage contract a job family is built on. Implementers
// MUST NOT require knowledge of concrete job types beyond what the family's
// registry already encodes into type_tag/payload — the provider persists an
// opaque blob plus a discriminator, never a concrete Go type.
//
// Global properties every Provider implementation must satisfy:
//
//   - At-most-one-worker delivery: for a job in NotStarted, at most one
//     concurrent Pull transitions it to Running.
//   - FIFO fairness: among eligible NotStarted records, Pull returns the one
//     with the smallest Created, ties broken by uid.
//   - Crash safety (durable backends): a job leased by a crashed worker
//     remains Running; the provider never auto-recovers it.
//   - No spurious transitions: SetResult on an already-terminal job returns
//     ErrIllegalTransition.
type Provider[D any] interface {
	// Push encodes job, assigns a fresh uid, persists it NotStarted, and
	// returns its metadata snapshot.
	Push(ctx context.Context, job Job[D]) (JobMetadata, error)

	// Pull atomically claims the oldest NotStarted record, transitions it
	// to Running, decodes its payload, and returns it. Returns ErrEmpty
	// (via IsEmpty) when nothing is eligible.
	Pull(ctx context.Context) (JobInfo[D], error)

	// SetResult transitions uid to Completed (runErr == nil) or Failed
	// (runErr != nil, captured in the stored result). Returns
	// ErrIllegalTransition if uid is already terminal, ErrNotFound if
	// unknown.
	SetResult(ctx context.Context, uid ulid.ULID, runErr error) (JobMetadata, error)

	// GetJob returns a metadata snapshot for uid, or ErrNotFound.
	GetJob(ctx context.Context, uid ulid.ULID) (JobMetadata, error)
}
