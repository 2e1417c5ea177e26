package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// entityTable maps an entity type to its table and the column the sync
// boundary addresses it by.
type entityTable struct {
	table  string
	keyCol string
}

var entityTables = map[catalog.EntityType]entityTable{
	catalog.EntityMedia:      {"media", "id"},
	catalog.EntityActor:      {"actors", "id"},
	catalog.EntityCollection: {"collections", "media_id"},
}

func tableFor(t catalog.EntityType) (entityTable, error) {
	et, ok := entityTables[t]
	if !ok {
		return entityTable{}, fmt.Errorf("store: unknown entity type %q", t)
	}

	return et, nil
}

func getEntity(ctx context.Context, q queryer, t catalog.EntityType, key string) (catalog.Entity, error) {
	var (
		e   catalog.Entity
		err error
	)

	switch t {
	case catalog.EntityMedia:
		e, err = getMedia(ctx, q, key)
	case catalog.EntityActor:
		e, err = getActor(ctx, q, key)
	case catalog.EntityCollection:
		e, err = getCollectionByMedia(ctx, q, key)
	default:
		return nil, fmt.Errorf("store: unknown entity type %q", t)
	}

	// Never hand back a typed nil inside the interface.
	if err != nil {
		return nil, err
	}

	return e, nil
}

func putEntity(ctx context.Context, q queryer, e catalog.Entity) error {
	switch v := e.(type) {
	case *catalog.MediaItem:
		return putMedia(ctx, q, v)
	case *catalog.Actor:
		return putActor(ctx, q, v)
	case *catalog.Collection:
		return putCollection(ctx, q, v)
	default:
		return fmt.Errorf("store: unsupported entity %T", e)
	}
}

func listUnsynced(ctx context.Context, q queryer, t catalog.EntityType) ([]catalog.Entity, error) {
	var (
		out []catalog.Entity
		err error
	)

	const order = " WHERE is_synced = 0 ORDER BY updated_at DESC, id ASC"

	switch t {
	case catalog.EntityMedia:
		var items []catalog.MediaItem

		rows, qerr := q.QueryContext(ctx, "SELECT "+mediaColumns+" FROM media"+order)
		if qerr != nil {
			return nil, catalog.WrapDB("list unsynced media", qerr)
		}

		if items, err = collectRows(rows, scanMedia, "list unsynced media"); err != nil {
			return nil, err
		}

		for i := range items {
			if items[i].ActorIDs, err = actorIDsForMedia(ctx, q, items[i].ID); err != nil {
				return nil, err
			}

			out = append(out, &items[i])
		}
	case catalog.EntityActor:
		rows, qerr := q.QueryContext(ctx, "SELECT "+actorColumns+" FROM actors"+order)
		if qerr != nil {
			return nil, catalog.WrapDB("list unsynced actors", qerr)
		}

		items, cerr := collectRows(rows, scanActor, "list unsynced actors")
		if cerr != nil {
			return nil, cerr
		}

		for i := range items {
			out = append(out, &items[i])
		}
	case catalog.EntityCollection:
		rows, qerr := q.QueryContext(ctx, "SELECT "+collectionColumns+" FROM collections"+order)
		if qerr != nil {
			return nil, catalog.WrapDB("list unsynced collections", qerr)
		}

		items, cerr := collectRows(rows, scanCollection, "list unsynced collections")
		if cerr != nil {
			return nil, cerr
		}

		for i := range items {
			out = append(out, &items[i])
		}
	default:
		return nil, fmt.Errorf("store: unknown entity type %q", t)
	}

	return out, nil
}

// ListUnsynced returns the dirty records of one entity type, most recently
// modified first with ties broken by id.
func (s *Store) ListUnsynced(ctx context.Context, t catalog.EntityType) ([]catalog.Entity, error) {
	return listUnsynced(ctx, s.db, t)
}

// CountUnsynced returns the number of dirty records across all entity types.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM media WHERE is_synced = 0) +
		(SELECT COUNT(*) FROM actors WHERE is_synced = 0) +
		(SELECT COUNT(*) FROM collections WHERE is_synced = 0)`).Scan(&n)
	if err != nil {
		return 0, catalog.WrapDB("count unsynced", err)
	}

	return n, nil
}

// GetEntity returns any entity by its sync key.
func (s *Store) GetEntity(ctx context.Context, t catalog.EntityType, key string) (catalog.Entity, error) {
	return getEntity(ctx, s.db, t, key)
}

// MarkSynced records a remote acknowledgment in one UPDATE. The update only
// applies while the row's updated_at still equals expectUpdatedAt, so an
// edit made while the push was in flight stays dirty. It reports whether a
// row was updated.
func (s *Store) MarkSynced(
	ctx context.Context, t catalog.EntityType, key, version string, at, expectUpdatedAt time.Time,
) (bool, error) {
	var ok bool

	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		ok, err = tx.MarkSynced(ctx, t, key, version, at, expectUpdatedAt)

		return err
	})

	return ok, err
}

// GetEntity reads any entity by its sync key inside the transaction.
func (t *Tx) GetEntity(ctx context.Context, et catalog.EntityType, key string) (catalog.Entity, error) {
	return getEntity(ctx, t.tx, et, key)
}

// PutEntity inserts or fully replaces an entity, including its sync
// metadata. Used to apply canonical remote records.
func (t *Tx) PutEntity(ctx context.Context, e catalog.Entity) error {
	return putEntity(ctx, t.tx, e)
}

// DeleteEntity removes an entity by its sync key. Media deletes cascade.
func (t *Tx) DeleteEntity(ctx context.Context, et catalog.EntityType, key string) error {
	switch et {
	case catalog.EntityMedia:
		return t.deleteMediaCascade(ctx, key)
	case catalog.EntityActor:
		_, err := deleteActor(ctx, t.tx, key)
		return err
	case catalog.EntityCollection:
		return deleteCollection(ctx, t.tx, key)
	default:
		return fmt.Errorf("store: unknown entity type %q", et)
	}
}

// MarkSynced is the transactional form of Store.MarkSynced.
func (t *Tx) MarkSynced(
	ctx context.Context, et catalog.EntityType, key, version string, at, expectUpdatedAt time.Time,
) (bool, error) {
	tbl, err := tableFor(et)
	if err != nil {
		return false, err
	}

	stmt := "UPDATE " + tbl.table +
		" SET is_synced = 1, sync_version = ?, last_synced_at = ?" +
		" WHERE " + tbl.keyCol + " = ? AND updated_at = ?"

	res, err := t.tx.ExecContext(ctx, stmt, version, toNanos(at), key, toNanos(expectUpdatedAt))
	if err != nil {
		return false, catalog.WrapDB("mark synced", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, catalog.WrapDB("mark synced", err)
	}

	return n == 1, nil
}

// SetSyncVersion records the remote version a dirty record is based on
// without acknowledging it. Used when a push landed but the record was
// edited again in flight.
func (t *Tx) SetSyncVersion(ctx context.Context, et catalog.EntityType, key, version string) error {
	tbl, err := tableFor(et)
	if err != nil {
		return err
	}

	stmt := "UPDATE " + tbl.table + " SET sync_version = ?" +
		" WHERE " + tbl.keyCol + " = ? AND is_synced = 0"

	if _, err := t.tx.ExecContext(ctx, stmt, version, key); err != nil {
		return catalog.WrapDB("set sync version", err)
	}

	return nil
}
