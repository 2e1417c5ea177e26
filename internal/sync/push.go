package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tonimelisma/mediavault/internal/catalog"
	"github.com/tonimelisma/mediavault/internal/store"
)

// push sends dirty records, oldest first and media before actors before
// collections, then replays queued deletes in FIFO order. Remote failures
// are recorded against the queue entry and the cycle continues; store
// failures, unexpected remote errors, and cancellation abort it.
func (e *Engine) push(ctx context.Context, opts RunOpts, res *Result) error {
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("sync: listing pending changes: %w", err)
	}

	queued := make(map[string]*catalog.Change, len(pending))
	for i := range pending {
		queued[pending[i].ID] = &pending[i]
	}

	for _, t := range catalog.EntityTypes {
		if err := e.pushType(ctx, t, queued, opts, res); err != nil {
			return err
		}
	}

	for i := range pending {
		if pending[i].Operation != catalog.OpDelete {
			continue
		}

		if err := e.pushDelete(ctx, &pending[i], opts, res); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) pushType(
	ctx context.Context, t catalog.EntityType, queued map[string]*catalog.Change, opts RunOpts, res *Result,
) error {
	dirty, err := e.store.ListUnsynced(ctx, t)
	if err != nil {
		return fmt.Errorf("sync: listing unsynced %s: %w", t, err)
	}

	// The store lists most recent first.
	slices.Reverse(dirty)

	for _, ent := range dirty {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := catalog.ChangeID(t, ent.Key())
		change := queued[id]

		if change != nil && !e.eligible(change, opts, res) {
			continue
		}

		if change != nil {
			if err := checkPayload(change, ent); err != nil {
				if err := e.recordFailure(ctx, change, err, res); err != nil {
					return err
				}

				continue
			}
		}

		expect := ent.Meta().UpdatedAt

		canonical, err := e.remote.Upsert(ctx, ent)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if !isNetwork(err) {
				return fmt.Errorf("sync: pushing %s %s: %w", t, ent.Key(), err)
			}

			if change == nil {
				c, cerr := catalog.NewChange(t, ent.Key(), catalog.OpUpdate, ent, e.now())
				if cerr != nil {
					return cerr
				}

				change = &c
			}

			if err := e.recordFailure(ctx, change, err, res); err != nil {
				return err
			}

			continue
		}

		ackAt := e.now()
		version := canonical.Meta().SyncVersion

		var acked bool

		err = e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error

			acked, err = tx.MarkSynced(ctx, t, ent.Key(), version, ackAt, expect)
			if err != nil {
				return err
			}

			if acked {
				return tx.RemoveChange(ctx, id)
			}

			// The remote now holds the pre-edit state. Remember its version so
			// the pull does not mistake it for a concurrent remote edit.
			if err := tx.SetSyncVersion(ctx, t, ent.Key(), version); err != nil {
				return err
			}

			return tx.MarkAttempted(ctx, id)
		})
		if err != nil {
			return fmt.Errorf("sync: acknowledging %s %s: %w", t, ent.Key(), err)
		}

		if !acked {
			e.logger.Debug("record changed during push, left dirty",
				slog.String("entity_type", t.String()),
				slog.String("key", ent.Key()),
			)

			continue
		}

		res.ItemsPushed++
	}

	return nil
}

// checkPayload validates the queued payload of change against the entity
// schema and the record about to be pushed.
func checkPayload(change *catalog.Change, ent catalog.Entity) error {
	decoded, err := change.DecodePayload()
	if err != nil {
		return fmt.Errorf("invalid queued payload: %w", err)
	}

	queued, ok := decoded.(catalog.Entity)
	if !ok || queued.Kind() != ent.Kind() || queued.Key() != ent.Key() {
		return fmt.Errorf("invalid queued payload: %w", &catalog.ValidationError{
			Field: "payload", Rule: "key", Value: change.ID,
		})
	}

	return nil
}

func (e *Engine) pushDelete(ctx context.Context, change *catalog.Change, opts RunOpts, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !e.eligible(change, opts, res) {
		return nil
	}

	err := e.remote.Delete(ctx, change.EntityType, change.EntityID)

	switch {
	case err == nil, errors.Is(err, catalog.ErrNotFound):
		if err := e.store.RemoveChange(ctx, change.ID); err != nil {
			return fmt.Errorf("sync: dequeuing %s: %w", change.ID, err)
		}

		res.ItemsPushed++

		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case !isNetwork(err):
		return fmt.Errorf("sync: deleting %s: %w", change.ID, err)
	default:
		return e.recordFailure(ctx, change, err, res)
	}
}

// eligible reports whether a queued change may be attempted this cycle.
// Permanent failures are reported every cycle.
func (e *Engine) eligible(change *catalog.Change, opts RunOpts, res *Result) bool {
	if change.PermanentlyFailed(e.retry.MaxRetries) {
		res.addError("%s: gave up after %d attempts: %s", change.ID, change.RetryCount, change.LastError)
		return false
	}

	if !opts.Force && change.Deferred(e.now()) {
		res.Deferred++
		return false
	}

	return true
}

// recordFailure bumps the change's retry count and schedules its next
// attempt.
func (e *Engine) recordFailure(ctx context.Context, change *catalog.Change, cause error, res *Result) error {
	attempt := change.RetryCount + 1
	next := e.retry.NextAttempt(e.now(), attempt)

	count, err := e.store.RecordFailure(ctx, *change, cause.Error(), &next)
	if err != nil {
		return fmt.Errorf("sync: recording failure for %s: %w", change.ID, err)
	}

	res.addError("%s: %v", change.ID, cause)

	attrs := []any{
		slog.String("change", change.ID),
		slog.Int("attempt", count),
		slog.String("error", cause.Error()),
	}

	if count >= e.retry.MaxRetries {
		e.logger.Error("change permanently failed", attrs...)
	} else {
		e.logger.Warn("change failed, will retry", append(attrs, slog.Time("next_attempt", next))...)
	}

	return nil
}
