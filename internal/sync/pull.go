package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/mediavault/internal/catalog"
	"github.com/tonimelisma/mediavault/internal/remote"
	"github.com/tonimelisma/mediavault/internal/store"
)

// pull applies the remote change feed for every entity type. A type whose
// feed fails part-way keeps its old cursor so the next cycle re-reads it.
func (e *Engine) pull(ctx context.Context, res *Result) error {
	for _, t := range catalog.EntityTypes {
		if err := e.pullType(ctx, t, res); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) pullType(ctx context.Context, t catalog.EntityType, res *Result) error {
	key := store.CursorKey(t)

	saved, _, err := e.store.GetValue(ctx, key)
	if err != nil {
		return fmt.Errorf("sync: reading %s cursor: %w", t, err)
	}

	cursor := saved
	clean := true

	for {
		page, err := e.remote.Changes(ctx, t, cursor, e.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if !isNetwork(err) {
				return fmt.Errorf("sync: fetching %s changes: %w", t, err)
			}

			res.addError("pull %s: %v", t, err)
			clean = false

			break
		}

		pageClean, err := e.applyPage(ctx, t, page, res)
		if err != nil {
			return err
		}

		clean = clean && pageClean
		cursor = page.NextCursor

		if !page.HasMore {
			break
		}
	}

	if !clean {
		e.logger.Warn("keeping pull cursor after errors", slog.String("entity_type", t.String()))
		return nil
	}

	if cursor != saved {
		if err := e.store.SetValue(ctx, key, cursor); err != nil {
			return fmt.Errorf("sync: saving %s cursor: %w", t, err)
		}
	}

	return nil
}

// applyPage applies one feed page. It reports false when a record could
// not be applied; store failures abort.
func (e *Engine) applyPage(ctx context.Context, t catalog.EntityType, page *remote.ChangePage, res *Result) (bool, error) {
	clean := true

	for _, rec := range page.Records {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if rec.Kind() != t {
			res.addError("pull %s: unexpected %s record %s", t, rec.Kind(), rec.Key())
			clean = false

			continue
		}

		err := e.store.WithTx(ctx, func(tx *store.Tx) error {
			return e.applyRecord(ctx, tx, rec, res)
		})
		if err != nil {
			if errors.Is(err, catalog.ErrDatabase) || ctx.Err() != nil {
				return false, fmt.Errorf("sync: applying %s %s: %w", t, rec.Key(), err)
			}

			res.addError("pull %s %s: %v", t, rec.Key(), err)
			clean = false
		}
	}

	for _, ts := range page.Deleted {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		err := e.store.WithTx(ctx, func(tx *store.Tx) error {
			return e.applyTombstone(ctx, tx, t, ts, res)
		})
		if err != nil {
			if errors.Is(err, catalog.ErrDatabase) || ctx.Err() != nil {
				return false, fmt.Errorf("sync: applying %s tombstone %s: %w", t, ts.ID, err)
			}

			res.addError("pull %s tombstone %s: %v", t, ts.ID, err)
			clean = false
		}
	}

	return clean, nil
}

// applyRecord merges one remote record:
//   - no local copy: insert as synced
//   - synced local copy: remote wins, unless the version is unchanged
//   - dirty local copy: the later updated_at wins, ties go to local, and
//     the losing side is written to the conflict log
func (e *Engine) applyRecord(ctx context.Context, tx *store.Tx, rec catalog.Entity, res *Result) error {
	t, key := rec.Kind(), rec.Key()

	local, err := tx.GetEntity(ctx, t, key)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	remoteMeta := rec.Meta()
	remoteMeta.MarkAcknowledged(remoteMeta.SyncVersion, tx.Now())

	if local == nil {
		if err := tx.PutEntity(ctx, rec); err != nil {
			return err
		}

		res.ItemsPulled++

		return nil
	}

	localMeta := local.Meta()
	sameVersion := remoteMeta.SyncVersion != "" && remoteMeta.SyncVersion == localMeta.SyncVersion

	if localMeta.IsSynced {
		if sameVersion {
			return nil
		}

		if err := tx.PutEntity(ctx, rec); err != nil {
			return err
		}

		res.ItemsPulled++

		return nil
	}

	// Dirty, but the remote has not moved since our last sync: nothing to
	// merge, the next push sends the local edit.
	if sameVersion {
		return nil
	}

	if remoteMeta.UpdatedAt.After(localMeta.UpdatedAt) {
		if err := e.logConflict(ctx, tx, local, localMeta, remoteMeta, catalog.RemoteWins, local); err != nil {
			return err
		}

		if err := tx.PutEntity(ctx, rec); err != nil {
			return err
		}

		if err := tx.RemoveChange(ctx, catalog.ChangeID(t, key)); err != nil {
			return err
		}

		res.ItemsPulled++
		res.Conflicts++

		return nil
	}

	if err := e.logConflict(ctx, tx, local, localMeta, remoteMeta, catalog.LocalWins, rec); err != nil {
		return err
	}

	res.Conflicts++

	return nil
}

// applyTombstone applies a remote deletion. Collection tombstones carry the
// media id.
func (e *Engine) applyTombstone(
	ctx context.Context, tx *store.Tx, t catalog.EntityType, ts catalog.Tombstone, res *Result,
) error {
	local, err := tx.GetEntity(ctx, t, ts.ID)
	if errors.Is(err, catalog.ErrNotFound) {
		return tx.RemoveChange(ctx, catalog.ChangeID(t, ts.ID))
	}

	if err != nil {
		return err
	}

	localMeta := local.Meta()
	tombMeta := &catalog.SyncMeta{UpdatedAt: ts.DeletedAt}

	if !localMeta.IsSynced {
		if !ts.DeletedAt.After(localMeta.UpdatedAt) {
			// The local edit is newer; it will be pushed and recreate the
			// record remotely.
			res.Conflicts++

			return e.logConflict(ctx, tx, local, localMeta, tombMeta, catalog.LocalWins, ts)
		}

		if err := e.logConflict(ctx, tx, local, localMeta, tombMeta, catalog.RemoteWins, local); err != nil {
			return err
		}

		res.Conflicts++
	}

	if err := tx.DeleteEntity(ctx, t, ts.ID); err != nil {
		return err
	}

	if err := tx.RemoveChange(ctx, catalog.ChangeID(t, ts.ID)); err != nil {
		return err
	}

	res.ItemsPulled++

	return nil
}

func (e *Engine) logConflict(
	ctx context.Context, tx *store.Tx, local catalog.Entity, localMeta, remoteMeta *catalog.SyncMeta,
	resolution catalog.ConflictResolution, loser any,
) error {
	payload, err := json.Marshal(loser)
	if err != nil {
		return fmt.Errorf("sync: encoding conflict payload: %w", err)
	}

	rec := catalog.ConflictRecord{
		EntityType:      local.Kind(),
		EntityID:        local.Key(),
		Resolution:      resolution,
		LocalUpdatedAt:  localMeta.UpdatedAt,
		RemoteUpdatedAt: remoteMeta.UpdatedAt,
		LosingPayload:   payload,
	}

	e.logger.Info("sync conflict resolved",
		slog.String("entity_type", rec.EntityType.String()),
		slog.String("key", rec.EntityID),
		slog.String("resolution", string(resolution)),
	)

	return tx.RecordConflict(ctx, rec)
}
