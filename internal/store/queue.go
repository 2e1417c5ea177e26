package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

const changeColumns = `id, entity_type, entity_id, operation, payload, timestamp,
	retry_count, next_attempt_at, last_error`

const (
	sqlGetChange = `SELECT ` + changeColumns + ` FROM sync_queue WHERE id = ?`

	sqlListPending = `SELECT ` + changeColumns + ` FROM sync_queue
		ORDER BY timestamp ASC, id ASC`

	sqlUpsertChange = `INSERT INTO sync_queue
		(id, entity_type, entity_id, operation, payload, timestamp,
		 retry_count, next_attempt_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 entity_type = excluded.entity_type,
		 entity_id = excluded.entity_id,
		 operation = excluded.operation,
		 payload = excluded.payload,
		 timestamp = excluded.timestamp,
		 retry_count = excluded.retry_count,
		 next_attempt_at = excluded.next_attempt_at,
		 last_error = excluded.last_error`

	sqlRecordFailure = `UPDATE sync_queue
		SET retry_count = retry_count + 1, last_error = ?, next_attempt_at = ?,
		 operation = CASE operation WHEN 'create' THEN 'update' ELSE operation END
		WHERE id = ?`

	sqlMarkAttempted = `UPDATE sync_queue SET operation = 'update'
		WHERE id = ? AND operation = 'create'`

	sqlResetFailures = `UPDATE sync_queue
		SET retry_count = 0, next_attempt_at = NULL, last_error = ''
		WHERE retry_count > 0`

	sqlDeleteChange = `DELETE FROM sync_queue WHERE id = ?`
	sqlCountPending = `SELECT COUNT(*) FROM sync_queue`
)

func scanChange(row scanner) (*catalog.Change, error) {
	var (
		c           catalog.Change
		entityType  string
		operation   string
		payload     []byte
		timestamp   int64
		nextAttempt sql.NullInt64
	)

	err := row.Scan(
		&c.ID, &entityType, &c.EntityID, &operation, &payload, &timestamp,
		&c.RetryCount, &nextAttempt, &c.LastError,
	)
	if err != nil {
		return nil, err
	}

	if c.EntityType, err = catalog.ParseEntityType(entityType); err != nil {
		return nil, err
	}

	if c.Operation, err = catalog.ParseOperation(operation); err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		c.Payload = payload
	}

	c.Timestamp = fromNanos(timestamp)
	c.NextAttemptAt = timePtr(nextAttempt)

	return &c, nil
}

func getChange(ctx context.Context, q queryer, id string) (*catalog.Change, error) {
	c, err := scanChange(q.QueryRowContext(ctx, sqlGetChange, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, catalog.WrapDB("get change", err)
	}

	return c, nil
}

func writeChange(ctx context.Context, q queryer, c *catalog.Change) error {
	var payload []byte
	if len(c.Payload) > 0 {
		payload = c.Payload
	}

	_, err := q.ExecContext(ctx, sqlUpsertChange,
		c.ID, string(c.EntityType), c.EntityID, string(c.Operation), payload,
		toNanos(c.Timestamp), c.RetryCount, nullTime(c.NextAttemptAt), c.LastError,
	)
	if err != nil {
		return catalog.WrapDB("write change", err)
	}

	return nil
}

// GetChange returns the queue entry with the given id, or nil if there is
// none.
func (s *Store) GetChange(ctx context.Context, id string) (*catalog.Change, error) {
	return getChange(ctx, s.db, id)
}

// ListPending returns all queue entries oldest first, ties broken by id.
func (s *Store) ListPending(ctx context.Context) ([]catalog.Change, error) {
	rows, err := s.db.QueryContext(ctx, sqlListPending)
	if err != nil {
		return nil, catalog.WrapDB("list pending", err)
	}

	return collectRows(rows, scanChange, "list pending")
}

// CountPending returns the number of queue entries.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqlCountPending).Scan(&n); err != nil {
		return 0, catalog.WrapDB("count pending", err)
	}

	return n, nil
}

// Enqueue records c in its own transaction. See Tx.Enqueue.
func (s *Store) Enqueue(ctx context.Context, c catalog.Change) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.Enqueue(ctx, c)
	})
}

// RemoveChange drops a queue entry in its own transaction.
func (s *Store) RemoveChange(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.RemoveChange(ctx, id)
	})
}

// RecordFailure notes a failed replay in its own transaction. See
// Tx.RecordFailure.
func (s *Store) RecordFailure(ctx context.Context, c catalog.Change, errMsg string, next *time.Time) (int, error) {
	var count int

	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		count, err = tx.RecordFailure(ctx, c, errMsg, next)

		return err
	})

	return count, err
}

// ResetFailures clears retry bookkeeping on every failed entry so that the
// next cycle replays them immediately. It returns the number of entries
// reset.
func (s *Store) ResetFailures(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, sqlResetFailures)
	if err != nil {
		return 0, catalog.WrapDB("reset failures", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, catalog.WrapDB("reset failures", err)
	}

	s.logger.Info("queue failures reset", slog.Int64("entries", n))

	return int(n), nil
}

// GetChange reads a queue entry inside the transaction.
func (t *Tx) GetChange(ctx context.Context, id string) (*catalog.Change, error) {
	return getChange(ctx, t.tx, id)
}

// Enqueue upserts c by id, coalescing it with any pending entry for the
// same entity. A create that never reached the remote followed by a delete
// leaves no entry at all.
func (t *Tx) Enqueue(ctx context.Context, c catalog.Change) error {
	existing, err := getChange(ctx, t.tx, c.ID)
	if err != nil {
		return err
	}

	if existing != nil {
		merged, keep := catalog.Coalesce(*existing, c)
		if !keep {
			return t.RemoveChange(ctx, c.ID)
		}

		c = merged
	}

	return writeChange(ctx, t.tx, &c)
}

// PutChange writes c verbatim, replacing any entry with the same id.
// Unlike Enqueue it does not coalesce.
func (t *Tx) PutChange(ctx context.Context, c catalog.Change) error {
	return writeChange(ctx, t.tx, &c)
}

// RemoveChange drops a queue entry. Removing a missing id is a no-op.
func (t *Tx) RemoveChange(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, sqlDeleteChange, id); err != nil {
		return catalog.WrapDB("remove change", err)
	}

	return nil
}

// MarkAttempted records that the entity behind queue entry id may already
// exist remotely. A pending create becomes an update, so a later delete is
// never cancelled against it.
func (t *Tx) MarkAttempted(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, sqlMarkAttempted, id); err != nil {
		return catalog.WrapDB("mark attempted", err)
	}

	return nil
}

// MarkAttempted is the single-transaction form of Tx.MarkAttempted.
func (s *Store) MarkAttempted(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.MarkAttempted(ctx, id)
	})
}

// RecordFailure increments the retry count of c's queue entry and stores
// errMsg and the next eligible attempt time. A failed attempt may still
// have been applied remotely, so a pending create becomes an update. When
// no entry exists (a dirty record discovered by scan), c is inserted with a
// retry count of one. It returns the new retry count.
func (t *Tx) RecordFailure(ctx context.Context, c catalog.Change, errMsg string, next *time.Time) (int, error) {
	res, err := t.tx.ExecContext(ctx, sqlRecordFailure, errMsg, nullTime(next), c.ID)
	if err != nil {
		return 0, catalog.WrapDB("record failure", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, catalog.WrapDB("record failure", err)
	}

	if n == 0 {
		if c.Operation == catalog.OpCreate {
			c.Operation = catalog.OpUpdate
		}

		c.RetryCount = 1
		c.LastError = errMsg
		c.NextAttemptAt = next

		if err := writeChange(ctx, t.tx, &c); err != nil {
			return 0, err
		}

		return 1, nil
	}

	updated, err := getChange(ctx, t.tx, c.ID)
	if err != nil {
		return 0, err
	}

	if updated == nil {
		return 0, catalog.WrapDB("record failure", sql.ErrNoRows)
	}

	return updated.RetryCount, nil
}
