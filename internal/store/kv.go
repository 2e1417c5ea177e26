package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

const (
	sqlGetValue = `SELECT value FROM kv WHERE key = ?`

	sqlSetValue = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 value = excluded.value,
		 updated_at = excluded.updated_at`

	sqlInsertConflict = `INSERT INTO conflicts
		(id, entity_type, entity_id, resolution, local_updated_at,
		 remote_updated_at, losing_payload, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListConflicts = `SELECT id, entity_type, entity_id, resolution,
		local_updated_at, remote_updated_at, losing_payload, detected_at
		FROM conflicts ORDER BY detected_at DESC, id ASC LIMIT ?`
)

// CursorKey returns the KV key holding the pull cursor for an entity type.
func CursorKey(t catalog.EntityType) string {
	return "cursor." + string(t)
}

func getValue(ctx context.Context, q queryer, key string) (string, bool, error) {
	var value string

	err := q.QueryRowContext(ctx, sqlGetValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, catalog.WrapDB("get "+key, err)
	}

	return value, true, nil
}

func setValue(ctx context.Context, q queryer, key, value string, now int64) error {
	if _, err := q.ExecContext(ctx, sqlSetValue, key, value, now); err != nil {
		return catalog.WrapDB("set "+key, err)
	}

	return nil
}

// GetValue returns the value stored under key and whether it was present.
func (s *Store) GetValue(ctx context.Context, key string) (string, bool, error) {
	return getValue(ctx, s.db, key)
}

// SetValue stores value under key.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	return setValue(ctx, s.db, key, value, toNanos(s.Now()))
}

// GetValue reads a KV entry inside the transaction.
func (t *Tx) GetValue(ctx context.Context, key string) (string, bool, error) {
	return getValue(ctx, t.tx, key)
}

// SetValue writes a KV entry inside the transaction.
func (t *Tx) SetValue(ctx context.Context, key, value string) error {
	return setValue(ctx, t.tx, key, value, toNanos(t.Now()))
}

// RecordConflict appends a conflict record. A zero ID or DetectedAt is
// filled in.
func (t *Tx) RecordConflict(ctx context.Context, rec catalog.ConflictRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = t.Now()
	}

	_, err := t.tx.ExecContext(ctx, sqlInsertConflict,
		rec.ID, string(rec.EntityType), rec.EntityID, string(rec.Resolution),
		toNanos(rec.LocalUpdatedAt), toNanos(rec.RemoteUpdatedAt),
		rec.LosingPayload, toNanos(rec.DetectedAt),
	)
	if err != nil {
		return catalog.WrapDB("record conflict", err)
	}

	return nil
}

// ListConflicts returns up to limit conflict records, newest first.
func (s *Store) ListConflicts(ctx context.Context, limit int) ([]catalog.ConflictRecord, error) {
	if limit <= 0 {
		limit = catalog.MaxLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlListConflicts, limit)
	if err != nil {
		return nil, catalog.WrapDB("list conflicts", err)
	}
	defer rows.Close()

	var out []catalog.ConflictRecord

	for rows.Next() {
		var (
			rec        catalog.ConflictRecord
			entityType string
			resolution string
			localAt    int64
			remoteAt   int64
			detectedAt int64
		)

		if err := rows.Scan(&rec.ID, &entityType, &rec.EntityID, &resolution,
			&localAt, &remoteAt, &rec.LosingPayload, &detectedAt); err != nil {
			return nil, catalog.WrapDB("list conflicts", err)
		}

		rec.EntityType = catalog.EntityType(entityType)
		rec.Resolution = catalog.ConflictResolution(resolution)
		rec.LocalUpdatedAt = fromNanos(localAt)
		rec.RemoteUpdatedAt = fromNanos(remoteAt)
		rec.DetectedAt = fromNanos(detectedAt)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, catalog.WrapDB("list conflicts", err)
	}

	return out, nil
}
