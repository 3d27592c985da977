// Package postgres stores vitals snapshots and their outbox events in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/vitals/internal/domain"
	"example.com/vitals/internal/events"
	"example.com/vitals/internal/persistence"
)

const dateLayout = "2006-01-02"

// Repository provides Postgres-backed persistence for snapshots and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSnapshot persists the snapshot and its snapshot_captured outbox event inside a single
// transaction scoped to tenantID.
func (r *Repository) SaveSnapshot(ctx context.Context, tenantID, userID string, s domain.VitalsSnapshot) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	const insertSnapshot = `INSERT INTO vitals_snapshots (snapshot_id, tenant_id, user_id, reference_date, captured_at, steps, heart_rate, distance_meters, active_calories, sleep_hours, blood_oxygen_percent)
        VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$10,$11)`

	referenceDate := s.ReferenceDate.Format(dateLayout)
	_, err = tx.Exec(ctx, insertSnapshot,
		s.ID,
		tenantID,
		userID,
		referenceDate,
		s.CapturedAt,
		s.Steps,
		s.HeartRate,
		s.DistanceMeters,
		s.ActiveCalories,
		s.SleepHours,
		s.BloodOxygenPercent,
	)
	if err != nil {
		return err
	}

	err = insertOutbox(ctx, tx, tenantID, s.ID, fmt.Sprintf("%s:%s", tenantID, userID), events.SnapshotCapturedType, events.VitalsSnapshotCaptured{
		SnapshotID:         s.ID,
		TenantID:           tenantID,
		UserID:             userID,
		ReferenceDate:      referenceDate,
		CapturedAt:         s.CapturedAt,
		Steps:              s.Steps,
		HeartRate:          s.HeartRate,
		DistanceMeters:     s.DistanceMeters,
		ActiveCalories:     s.ActiveCalories,
		SleepHours:         s.SleepHours,
		BloodOxygenPercent: s.BloodOxygenPercent,
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, aggregateID, partitionKey, eventType string, payload interface{}) error {
	route, ok := events.Lookup(eventType)
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		"vitals_snapshot",
		aggregateID,
		eventType,
		route.Topic,
		route.SchemaSubject,
		partitionKey,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	return err
}

// ListSnapshots returns up to limit snapshots for a user after cursor, most recent first.
func (r *Repository) ListSnapshots(ctx context.Context, tenantID, userID string, cursor *domain.SnapshotCursor, limit int) ([]domain.VitalsSnapshot, *domain.SnapshotCursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT snapshot_id::text, reference_date, captured_at, steps, heart_rate, distance_meters, active_calories, sleep_hours, blood_oxygen_percent
        FROM vitals_snapshots WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (captured_at, snapshot_id) < ($4, $5::uuid)`
		args = append(args, cursor.CapturedAt, cursor.ID)
	}

	query += ` ORDER BY captured_at DESC, snapshot_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.VitalsSnapshot, 0, limit)
	for rows.Next() {
		var s domain.VitalsSnapshot
		if err := rows.Scan(&s.ID, &s.ReferenceDate, &s.CapturedAt, &s.Steps, &s.HeartRate, &s.DistanceMeters, &s.ActiveCalories, &s.SleepHours, &s.BloodOxygenPercent); err != nil {
			return nil, nil, err
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return results, persistence.NextCursor(results, limit), nil
}

// Recorder binds the repository to one session's tenant and user.
type Recorder struct {
	repo     *Repository
	tenantID string
	userID   string
}

// Recorder returns a snapshot recorder for the given session identity.
func (r *Repository) Recorder(tenantID, userID string) *Recorder {
	return &Recorder{repo: r, tenantID: tenantID, userID: userID}
}

// RecordSnapshot persists s for the bound session.
func (r *Recorder) RecordSnapshot(ctx context.Context, s domain.VitalsSnapshot) error {
	return r.repo.SaveSnapshot(ctx, r.tenantID, r.userID, s)
}
