package jobqueue

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Queue is the producer-side façade. It is polymorphic only over the
// family's worker-context type D, hiding concrete job types behind the
// family's registry — it holds nothing beyond the storage provider handle.
type Queue[D any] struct {
	storage Provider[D]
}

// NewQueue wraps storage in a producer-facing façade.
func NewQueue[D any](storage Provider[D]) *Queue[D] {
	return &Queue[D]{storage: storage}
}

// Push hands job to the storage provider and returns its metadata.
func (q *Queue[D]) Push(ctx context.Context, job Job[D]) (JobMetadata, error) {
	meta, err := q.storage.Push(ctx, job)
	if err != nil {
		return JobMetadata{}, toAppError(err)
	}
	return meta, nil
}

// Get returns a metadata snapshot for uid.
func (q *Queue[D]) Get(ctx context.Context, uid ulid.ULID) (JobMetadata, error) {
	meta, err := q.storage.GetJob(ctx, uid)
	if err != nil {
		return JobMetadata{}, toAppError(err)
	}
	return meta, nil
}

// toAppError normalizes a provider error to *AppError, wrapping anything
// that isn't already one as an unspecified backend failure.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return NewBackendError(err)
}
