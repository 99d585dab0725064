package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bobmcallan/jobqueue"
	"github.com/bobmcallan/jobqueue/registry"
)

type workerCtx struct{}

type mockJob struct {
	Msg string `json:"msg"`
}

func (j *mockJob) Run(_ context.Context, _ *workerCtx) error { return nil }

type mockJob2 struct {
	Msg string `json:"msg"`
}

func (j *mockJob2) Run(_ context.Context, _ *workerCtx) error { return nil }

func newTestRegistry() *registry.Registry[workerCtx] {
	r := registry.New[workerCtx]()
	registry.Register[workerCtx](r, "MockJob", &mockJob{})
	registry.Register[workerCtx](r, "MockJob2", &mockJob2{})
	return r
}

// requireDB spins up a disposable Postgres container, gated on
// JOBQUEUE_TEST_POSTGRES, mirroring the teacher's VIRE_TEST_DOCKER-gated
// test harness. Skips the test entirely when the gate is unset.
func requireDB(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("JOBQUEUE_TEST_POSTGRES") != "true" {
		t.Skip("Postgres tests disabled (set JOBQUEUE_TEST_POSTGRES=true to enable)")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "jobqueue",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/jobqueue?sslmode=disable", host, port.Port())
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.Eventually(t, func() bool {
		return db.PingContext(ctx) == nil
	}, 30*time.Second, 200*time.Millisecond)

	_, err = db.ExecContext(ctx, Schema)
	require.NoError(t, err)

	return db
}

// TestPushPullRoundTrip implements spec.md S2.
func TestPushPullRoundTrip(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	p := New[workerCtx](db, newTestRegistry())

	_, err := p.Push(ctx, &mockJob{Msg: "a"})
	require.NoError(t, err)
	_, err = p.Push(ctx, &mockJob2{Msg: "b"})
	require.NoError(t, err)

	first, err := p.Pull(ctx)
	require.NoError(t, err)
	job1, ok := first.Job.(*mockJob)
	require.True(t, ok)
	assert.Equal(t, "a", job1.Msg)

	second, err := p.Pull(ctx)
	require.NoError(t, err)
	job2, ok := second.Job.(*mockJob2)
	require.True(t, ok)
	assert.Equal(t, "b", job2.Msg)

	_, err = p.Pull(ctx)
	assert.True(t, jobqueue.IsEmpty(err))
}

// TestSetResultTerminal implements spec.md S3.
func TestSetResultTerminal(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	p := New[workerCtx](db, newTestRegistry())

	pushed, err := p.Push(ctx, &mockJob{Msg: "a"})
	require.NoError(t, err)
	info, err := p.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, pushed.UID, info.Metadata.UID)

	_, err = p.SetResult(ctx, pushed.UID, nil)
	require.NoError(t, err)

	got, err := p.GetJob(ctx, pushed.UID)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.JobStateCompleted, got.State)

	_, err = p.SetResult(ctx, pushed.UID, nil)
	assert.True(t, jobqueue.IsIllegalTransition(err))
}

// TestConcurrentWorkers implements spec.md S4: 100 jobs, 4 concurrent
// pullers against the same backend, no duplicates and no missing jobs.
func TestConcurrentWorkers(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	p := New[workerCtx](db, newTestRegistry())

	const total = 100
	for i := 0; i < total; i++ {
		_, err := p.Push(ctx, &mockJob{Msg: fmt.Sprintf("job-%d", i)})
		require.NoError(t, err)
	}

	seen := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup

	const workers = 4
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				info, err := p.Pull(ctx)
				if jobqueue.IsEmpty(err) {
					return
				}
				require.NoError(t, err)
				_, setErr := p.SetResult(ctx, info.Metadata.UID, nil)
				require.NoError(t, setErr)
				mu.Lock()
				seen[info.Metadata.UID.String()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for uid, count := range seen {
		assert.Equal(t, 1, count, "uid %s delivered %d times", uid, count)
	}
}

// TestUnknownTypeLeavesRowRunning implements spec.md S5: a row inserted
// directly via SQL with a type_tag no registry in this process knows about
// is claimed into Running by Pull, which surfaces the registry's
// UnknownType error instead of a decoded job — but the claim itself is not
// reverted, so the record stays Running rather than reverting to
// NotStarted, exactly as spec.md documents ("the record remains in
// Running — operator-level recovery required"). Postgres is the only
// backend this scenario can be driven through end to end: the in-memory
// backend's Push and Pull always share one registry instance, so it can
// never produce a row its own Pull doesn't recognize. ResetOrphaned
// (SPEC_FULL.md §10) is that operator-level recovery, demonstrated here
// actually clearing the row it exists to fix.
func TestUnknownTypeLeavesRowRunning(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	p := New[workerCtx](db, newTestRegistry())

	uid := ulid.Make()
	_, err := db.ExecContext(ctx,
		`INSERT INTO job_queue (uid, type, data, created) VALUES ($1, $2, $3, $4)`,
		ulidToUUID(uid), "Ghost", []byte(`{"type":"Ghost"}`), time.Now().UTC())
	require.NoError(t, err)

	_, err = p.Pull(ctx)
	require.Error(t, err)
	assert.True(t, jobqueue.IsUnknownType(err))

	stuck, err := p.GetJob(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.JobStateRunning, stuck.State)
	require.NotNil(t, stuck.Started)

	// Backdate started so it looks orphaned beyond ResetOrphaned's cutoff,
	// mirroring TestResetOrphaned below, then confirm it actually recovers
	// this specific stuck-on-UnknownType row.
	_, err = db.ExecContext(ctx, `UPDATE job_queue SET started = now() - interval '1 hour' WHERE uid = $1`, ulidToUUID(uid))
	require.NoError(t, err)

	n, err := p.ResetOrphaned(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recovered, err := p.GetJob(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.JobStateNotStarted, recovered.State)
	assert.Nil(t, recovered.Started)
}

// TestResetOrphaned covers the non-automatic operator recovery helper from
// SPEC_FULL.md §10.
func TestResetOrphaned(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	p := New[workerCtx](db, newTestRegistry())

	pushed, err := p.Push(ctx, &mockJob{Msg: "a"})
	require.NoError(t, err)
	_, err = p.Pull(ctx)
	require.NoError(t, err)

	// Backdate started so it looks orphaned beyond the cutoff.
	_, err = db.ExecContext(ctx, `UPDATE job_queue SET started = now() - interval '1 hour' WHERE uid = $1`, ulidToUUID(pushed.UID))
	require.NoError(t, err)

	n, err := p.ResetOrphaned(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := p.GetJob(ctx, pushed.UID)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.JobStateNotStarted, got.State)
	assert.Nil(t, got.Started)
}

// TestCountPending covers the operational-introspection helper.
func TestCountPending(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	p := New[workerCtx](db, newTestRegistry())

	for i := 0; i < 3; i++ {
		_, err := p.Push(ctx, &mockJob{Msg: fmt.Sprintf("job-%d", i)})
		require.NoError(t, err)
	}
	n, err := p.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = p.Pull(ctx)
	require.NoError(t, err)
	n, err = p.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetJobNotFound(t *testing.T) {
	db := requireDB(t)
	p := New[workerCtx](db, newTestRegistry())

	_, err := p.GetJob(context.Background(), ulid.ULID{})
	assert.True(t, jobqueue.IsNotFound(err))
}
