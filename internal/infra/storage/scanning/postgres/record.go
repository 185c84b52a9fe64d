// Package postgres persists scan records in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/grasp/internal/domain/scanning"
	"github.com/ahrav/grasp/internal/infra/storage"
)

// Ensure recordStore implements scanning.RecordRepository at compile time.
var _ scanning.RecordRepository = (*recordStore)(nil)

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

const (
	upsertRecordSQL = `
INSERT INTO scan_records (
    task_id, ability_name, instance_name, preset_name, policy, async,
    queries_issued, targets_found, elapsed_ms, finish_reason, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (task_id) DO UPDATE SET
    ability_name   = EXCLUDED.ability_name,
    instance_name  = EXCLUDED.instance_name,
    preset_name    = EXCLUDED.preset_name,
    policy         = EXCLUDED.policy,
    async          = EXCLUDED.async,
    queries_issued = EXCLUDED.queries_issued,
    targets_found  = EXCLUDED.targets_found,
    elapsed_ms     = EXCLUDED.elapsed_ms,
    finish_reason  = EXCLUDED.finish_reason,
    started_at     = EXCLUDED.started_at,
    finished_at    = EXCLUDED.finished_at,
    updated_at     = NOW()`

	selectRecordColumns = `
SELECT task_id, ability_name, instance_name, preset_name, policy, async,
       queries_issued, targets_found, elapsed_ms, finish_reason, started_at, finished_at
FROM scan_records`

	getRecordSQL = selectRecordColumns + ` WHERE task_id = $1`

	listRecordsByAbilitySQL = selectRecordColumns + `
WHERE ability_name = $1
ORDER BY finished_at DESC NULLS LAST, created_at DESC
LIMIT $2`
)

// recordStore implements scanning.RecordRepository on a pgx pool.
type recordStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewRecordStore creates a RecordRepository backed by PostgreSQL.
func NewRecordStore(pool *pgxpool.Pool, tracer trace.Tracer) *recordStore {
	return &recordStore{pool: pool, tracer: tracer}
}

// SaveRecord upserts rec.
func (s *recordStore) SaveRecord(ctx context.Context, rec *scanning.ScanRecord) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", rec.TaskID.String()),
		attribute.String("ability", rec.AbilityName),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.save_scan_record", dbAttrs, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, upsertRecordSQL,
			pgtype.UUID{Bytes: rec.TaskID, Valid: true},
			rec.AbilityName,
			rec.InstanceName,
			rec.PresetName,
			string(rec.Policy),
			rec.Async,
			rec.QueriesIssued,
			rec.TargetsFound,
			rec.Elapsed.Milliseconds(),
			rec.FinishReason,
			toTimestamptz(rec.StartedAt),
			toTimestamptz(rec.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert scan record error: %w", err)
		}
		return nil
	})
}

// GetRecord returns the record for taskID.
func (s *recordStore) GetRecord(ctx context.Context, taskID uuid.UUID) (*scanning.ScanRecord, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("task_id", taskID.String()))

	var rec *scanning.ScanRecord
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_scan_record", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, getRecordSQL, pgtype.UUID{Bytes: taskID, Valid: true})
		r, err := scanRecord(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return scanning.ErrRecordNotFound
			}
			return fmt.Errorf("get scan record query error: %w", err)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecordsByAbility returns up to limit records for ability, newest first.
func (s *recordStore) ListRecordsByAbility(ctx context.Context, ability string, limit int) ([]*scanning.ScanRecord, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("ability", ability),
		attribute.Int("limit", limit),
	)

	var records []*scanning.ScanRecord
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_scan_records", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, listRecordsByAbilitySQL, ability, limit)
		if err != nil {
			return fmt.Errorf("list scan records query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return fmt.Errorf("scan record row error: %w", err)
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(row pgx.Row) (*scanning.ScanRecord, error) {
	var (
		taskID     pgtype.UUID
		policy     string
		elapsedMS  int64
		startedAt  pgtype.Timestamptz
		finishedAt pgtype.Timestamptz
		rec        scanning.ScanRecord
	)

	err := row.Scan(
		&taskID,
		&rec.AbilityName,
		&rec.InstanceName,
		&rec.PresetName,
		&policy,
		&rec.Async,
		&rec.QueriesIssued,
		&rec.TargetsFound,
		&elapsedMS,
		&rec.FinishReason,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.TaskID = taskID.Bytes
	rec.Policy = scanning.DurationPolicy(policy)
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	rec.StartedAt = startedAt.Time
	rec.FinishedAt = finishedAt.Time
	return &rec, nil
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
