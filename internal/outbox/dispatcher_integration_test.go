//go:build integration

package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/vitals/internal/domain"
	"example.com/vitals/internal/persistence/postgres"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("vitals"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = pgxpool.New(ctx, connStr)
		if err != nil {
			return false
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			return false
		}
		return true
	}, 30*time.Second, time.Second)
	t.Cleanup(pool.Close)

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	contents, err := os.ReadFile(filepath.Join(filepath.Dir(file), "../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
	return pool
}

func seedSnapshot(t *testing.T, pool *pgxpool.Pool, tenantID string) {
	t.Helper()
	repo := postgres.NewRepository(pool)
	require.NoError(t, repo.SaveSnapshot(context.Background(), tenantID, "user-1", domain.VitalsSnapshot{
		ID:            uuid.NewString(),
		ReferenceDate: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		CapturedAt:    time.Now().UTC(),
		Steps:         1700,
	}))
}

func TestDispatcherPublishesSnapshotEvents(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	seedSnapshot(t, pool, uuid.NewString())

	writer := &fakeWriter{}
	dispatcher := NewDispatcher(pool, writer, &fakeRegistry{id: 42}, 10*time.Millisecond, 5)

	before := testutil.ToFloat64(deliveredCounter)
	require.NoError(t, dispatcher.processBatch(ctx))
	require.InDelta(t, before+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Len(t, writer.msgs["vitals_snapshots"], 1)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	// Nothing left to claim.
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, writer.msgs["vitals_snapshots"], 1)
}

func TestDispatcherRoutesFailedBatchesToDLQ(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	tenantID := uuid.NewString()
	seedSnapshot(t, pool, tenantID)

	dispatcher := NewDispatcher(pool, &fakeWriter{err: errors.New("kafka write failed")}, &fakeRegistry{id: 7}, 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("vitals_snapshots"))
	require.NoError(t, dispatcher.processBatch(ctx))
	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("vitals_snapshots")), 0.0001)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE tenant_id=$1`, tenantID).Scan(&reason))
	require.Contains(t, reason, "kafka write failed")

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, pending)
}

func TestReplayerRequeuesDeadLetteredEvents(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	tenantID := uuid.NewString()
	seedSnapshot(t, pool, tenantID)

	failing := NewDispatcher(pool, &fakeWriter{err: errors.New("kafka write failed")}, &fakeRegistry{id: 7}, 10*time.Millisecond, 5)
	require.NoError(t, failing.processBatch(ctx))

	replayer := NewReplayer(pool, 3, time.Minute, nil)
	requeued, err := replayer.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	var dlqRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqRows))
	require.Zero(t, dlqRows)

	writer := &fakeWriter{}
	require.NoError(t, NewDispatcher(pool, writer, &fakeRegistry{id: 7}, 10*time.Millisecond, 5).processBatch(ctx))
	require.Len(t, writer.msgs["vitals_snapshots"], 1)
}

func TestReplayerQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	tenantID := uuid.NewString()
	seedSnapshot(t, pool, tenantID)

	failing := NewDispatcher(pool, &fakeWriter{err: errors.New("kafka write failed")}, &fakeRegistry{id: 7}, 10*time.Millisecond, 5)
	require.NoError(t, failing.processBatch(ctx))
	_, err := pool.Exec(ctx, `UPDATE outbox_dlq SET retry_count = 3`)
	require.NoError(t, err)

	before := testutil.ToFloat64(dlqQuarantinedCounter.WithLabelValues("vitals_snapshots", "vitals.snapshot_captured"))
	requeued, err := NewReplayer(pool, 3, time.Minute, nil).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)
	require.InDelta(t, before+1, testutil.ToFloat64(dlqQuarantinedCounter.WithLabelValues("vitals_snapshots", "vitals.snapshot_captured")), 0.0001)

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
}
