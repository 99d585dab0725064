// Package postgres implements the transactional SQL storage backend (spec
// component C2.2) on top of database/sql with the pgx/v5 driver registered
// by blank import. The provider never opens or pools connections itself:
// per scope, a *sql.DB the caller already owns is handed in.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oklog/ulid/v2"

	"github.com/bobmcallan/jobqueue"
	"github.com/bobmcallan/jobqueue/registry"
)

// The uid column is a Postgres UUID, while the queue's identifiers are
// ULIDs; both are 128-bit values, so a ULID is stored as the UUID
// constructed from the same 16 bytes and recovered by reversing that
// conversion on read.
func ulidToUUID(u ulid.ULID) string {
	return uuid.Must(uuid.FromBytes(u[:])).String()
}

func uuidToULID(s string) (ulid.ULID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ulid.ULID{}, err
	}
	var u ulid.ULID
	copy(u[:], parsed[:])
	return u, nil
}

// Schema is the authoritative DDL from spec.md §6. Callers migrate it
// however their service already manages schema; this package never runs
// it automatically.
const Schema = `
CREATE TYPE job_state AS ENUM ('not-started', 'running', 'completed', 'failed');

CREATE TABLE job_queue (
    id        SERIAL PRIMARY KEY,
    uid       UUID NOT NULL UNIQUE,
    type      TEXT NOT NULL,
    data      JSON NOT NULL,
    result    JSON,
    state     job_state NOT NULL DEFAULT 'not-started',
    created   TIMESTAMPTZ NOT NULL,
    started   TIMESTAMPTZ,
    completed TIMESTAMPTZ
);

CREATE INDEX job_queue_state_created_idx ON job_queue (state, created);
`

const (
	pushSQL = `
INSERT INTO job_queue (uid, type, data, created)
VALUES ($1, $2, $3, $4)
RETURNING id, uid, type, data, result, state, created, started, completed`

	pullSQL = `
UPDATE job_queue
SET state = 'running', started = $1
WHERE id IN (
    SELECT id
    FROM job_queue
    WHERE state = 'not-started'
    ORDER BY created, uid
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING id, uid, type, data, result, state, created, started, completed`

	setResultSQL = `
UPDATE job_queue
SET state = $2, result = $3, completed = $4
WHERE uid = $1 AND state IN ('not-started', 'running')
RETURNING id, uid, type, data, result, state, created, started, completed`

	getByUIDSQL = `
SELECT id, uid, type, data, result, state, created, started, completed
FROM job_queue WHERE uid = $1`

	countPendingSQL = `SELECT count(*) FROM job_queue WHERE state = 'not-started'`

	resetOrphanedSQL = `
UPDATE job_queue
SET state = 'not-started', started = NULL
WHERE state = 'running' AND started < $1`
)

// row mirrors one job_queue record as scanned from the driver.
type row struct {
	id        int64
	uid       ulid.ULID
	typeTag   string
	data      []byte
	result    []byte
	state     string
	created   time.Time
	started   *time.Time
	completed *time.Time
}

func (r row) metadata() jobqueue.JobMetadata {
	meta := jobqueue.JobMetadata{
		UID:       r.uid,
		State:     jobqueue.JobState(r.state),
		Created:   r.created,
		Started:   r.started,
		Completed: r.completed,
	}
	if len(r.result) > 0 {
		var je jobqueue.JobError
		if err := json.Unmarshal(r.result, &je); err == nil {
			meta.Result = &je
		}
	}
	return meta
}

func scanRow(scan func(dest ...any) error) (row, error) {
	var r row
	var uidStr string
	if err := scan(&r.id, &uidStr, &r.typeTag, &r.data, &r.result, &r.state, &r.created, &r.started, &r.completed); err != nil {
		return row{}, err
	}
	parsed, err := uuidToULID(uidStr)
	if err != nil {
		return row{}, jobqueue.NewSerializationError(err)
	}
	r.uid = parsed
	return r, nil
}

// Provider is the Postgres jobqueue.Provider[D] implementation.
type Provider[D any] struct {
	db       *sql.DB
	registry *registry.Registry[D]
}

// New builds a Postgres provider for the family described by reg, driven
// through db. db is owned by the caller: this package never closes it.
func New[D any](db *sql.DB, reg *registry.Registry[D]) *Provider[D] {
	return &Provider[D]{db: db, registry: reg}
}

// Push encodes job via the registry and inserts a NotStarted record.
func (p *Provider[D]) Push(ctx context.Context, job jobqueue.Job[D]) (jobqueue.JobMetadata, error) {
	typeTag, payload, err := p.registry.Encode(job)
	if err != nil {
		return jobqueue.JobMetadata{}, err
	}

	uid := ulid.Make()
	created := time.Now().UTC()

	r, err := scanRow(p.db.QueryRowContext(ctx, pushSQL, ulidToUUID(uid), typeTag, payload, created).Scan)
	if err != nil {
		return jobqueue.JobMetadata{}, jobqueue.NewBackendError(err)
	}
	return r.metadata(), nil
}

// Pull claims the oldest NotStarted record via FOR UPDATE SKIP LOCKED,
// decodes its payload through the registry, and returns it Running.
func (p *Provider[D]) Pull(ctx context.Context) (jobqueue.JobInfo[D], error) {
	now := time.Now().UTC()

	r, err := scanRow(p.db.QueryRowContext(ctx, pullSQL, now).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobqueue.JobInfo[D]{}, jobqueue.ErrEmpty
		}
		return jobqueue.JobInfo[D]{}, jobqueue.NewBackendError(err)
	}

	job, err := p.registry.Decode(r.typeTag, r.data)
	if err != nil {
		return jobqueue.JobInfo[D]{}, err
	}

	return jobqueue.JobInfo[D]{Metadata: r.metadata(), Job: job}, nil
}

// SetResult transitions uid to Completed or Failed, setting result and
// completed atomically. Returns ErrIllegalTransition if uid is already
// terminal, ErrNotFound if unknown.
func (p *Provider[D]) SetResult(ctx context.Context, uid ulid.ULID, runErr error) (jobqueue.JobMetadata, error) {
	state := jobqueue.JobStateCompleted
	var resultJSON []byte
	if runErr != nil {
		state = jobqueue.JobStateFailed
		encoded, err := json.Marshal(jobqueue.NewJobError(runErr))
		if err != nil {
			return jobqueue.JobMetadata{}, jobqueue.NewSerializationError(err)
		}
		resultJSON = encoded
	}
	completed := time.Now().UTC()

	r, err := scanRow(p.db.QueryRowContext(ctx, setResultSQL, ulidToUUID(uid), string(state), resultJSON, completed).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := p.GetJob(ctx, uid); getErr != nil {
				return jobqueue.JobMetadata{}, getErr
			}
			return jobqueue.JobMetadata{}, jobqueue.NewIllegalTransitionError(uid.String())
		}
		return jobqueue.JobMetadata{}, jobqueue.NewBackendError(err)
	}
	return r.metadata(), nil
}

// GetJob returns a metadata snapshot for uid.
func (p *Provider[D]) GetJob(ctx context.Context, uid ulid.ULID) (jobqueue.JobMetadata, error) {
	r, err := scanRow(p.db.QueryRowContext(ctx, getByUIDSQL, ulidToUUID(uid)).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobqueue.JobMetadata{}, jobqueue.NewNotFoundError(uid.String())
		}
		return jobqueue.JobMetadata{}, jobqueue.NewBackendError(err)
	}
	return r.metadata(), nil
}

// CountPending reports how many records are currently NotStarted, per
// SPEC_FULL.md §10's operational-introspection addition.
func (p *Provider[D]) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, countPendingSQL).Scan(&n); err != nil {
		return 0, jobqueue.NewBackendError(err)
	}
	return n, nil
}

// ResetOrphaned resets every Running record started before the cutoff
// (time.Now().Add(-olderThan)) back to NotStarted. It is explicitly
// opt-in operator tooling, never called by the executor loop itself — the
// core does not auto-recover a crashed worker's leased jobs.
func (p *Provider[D]) ResetOrphaned(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := p.db.ExecContext(ctx, resetOrphanedSQL, cutoff)
	if err != nil {
		return 0, jobqueue.NewBackendError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, jobqueue.NewBackendError(err)
	}
	return int(n), nil
}
