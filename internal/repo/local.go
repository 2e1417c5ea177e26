package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/mediavault/internal/catalog"
	"github.com/tonimelisma/mediavault/internal/store"
)

// localBackend writes to the Local Store. Every mutation marks the record
// dirty and enqueues its change in the same transaction.
type localBackend struct {
	store  *store.Store
	logger *slog.Logger
}

func newLocalBackend(s *store.Store, logger *slog.Logger) *localBackend {
	return &localBackend{store: s, logger: logger}
}

func (b *localBackend) Get(ctx context.Context, t catalog.EntityType, key string) (catalog.Entity, error) {
	return b.store.GetEntity(ctx, t, key)
}

func (b *localBackend) ListMedia(ctx context.Context, q catalog.Query) (catalog.Page[catalog.MediaItem], error) {
	return b.store.QueryMedia(ctx, q)
}

func (b *localBackend) ListActors(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Actor], error) {
	return b.store.QueryActors(ctx, q)
}

func (b *localBackend) ListCollections(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Collection], error) {
	return b.store.QueryCollections(ctx, q)
}

func (b *localBackend) Create(ctx context.Context, e catalog.Entity) (catalog.Entity, error) {
	return b.write(ctx, e, catalog.OpCreate, insertEntity)
}

func (b *localBackend) Update(ctx context.Context, e catalog.Entity) (catalog.Entity, error) {
	return b.write(ctx, e, catalog.OpUpdate, updateEntity)
}

// upsert stores e whether or not a local copy exists. The remote backend
// uses it to cache records it only knew from the remote.
func (b *localBackend) upsert(ctx context.Context, e catalog.Entity) (catalog.Entity, error) {
	return b.write(ctx, e, catalog.OpUpdate, func(ctx context.Context, tx *store.Tx, e catalog.Entity) error {
		return tx.PutEntity(ctx, e)
	})
}

type writeFunc func(ctx context.Context, tx *store.Tx, e catalog.Entity) error

func (b *localBackend) write(ctx context.Context, e catalog.Entity, op catalog.Operation, fn writeFunc) (catalog.Entity, error) {
	err := b.store.WithTx(ctx, func(tx *store.Tx) error {
		now := tx.Now()
		e.Meta().MarkDirty(now)

		if err := fn(ctx, tx, e); err != nil {
			return err
		}

		change, err := catalog.NewChange(e.Kind(), e.Key(), op, e, now)
		if err != nil {
			return err
		}

		return tx.Enqueue(ctx, change)
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("local write queued",
		slog.String("entity_type", e.Kind().String()),
		slog.String("key", e.Key()),
		slog.String("op", string(op)),
	)

	return e, nil
}

// Delete removes the entity and queues the delete. Deleting an actor also
// rewrites every media item that linked it, so those items are dirtied and
// queued too.
func (b *localBackend) Delete(ctx context.Context, t catalog.EntityType, key string) error {
	return b.store.WithTx(ctx, func(tx *store.Tx) error {
		return deleteInTx(ctx, tx, t, key)
	})
}

func deleteInTx(ctx context.Context, tx *store.Tx, t catalog.EntityType, key string) error {
	now := tx.Now()

	if t == catalog.EntityActor {
		mediaIDs, err := tx.DeleteActor(ctx, key)
		if err != nil {
			return err
		}

		for _, id := range mediaIDs {
			m, err := tx.GetMedia(ctx, id)
			if err != nil {
				return err
			}

			m.MarkDirty(now)

			if err := tx.UpdateMedia(ctx, m); err != nil {
				return err
			}

			change, err := catalog.NewChange(catalog.EntityMedia, id, catalog.OpUpdate, m, now)
			if err != nil {
				return err
			}

			if err := tx.Enqueue(ctx, change); err != nil {
				return err
			}
		}
	} else if err := tx.DeleteEntity(ctx, t, key); err != nil {
		return err
	}

	change, err := catalog.NewChange(t, key, catalog.OpDelete, nil, now)
	if err != nil {
		return err
	}

	return tx.Enqueue(ctx, change)
}

func insertEntity(ctx context.Context, tx *store.Tx, e catalog.Entity) error {
	switch v := e.(type) {
	case *catalog.MediaItem:
		return tx.InsertMedia(ctx, v)
	case *catalog.Actor:
		return tx.InsertActor(ctx, v)
	case *catalog.Collection:
		return tx.InsertCollection(ctx, v)
	default:
		return fmt.Errorf("repo: unsupported entity %T", e)
	}
}

func updateEntity(ctx context.Context, tx *store.Tx, e catalog.Entity) error {
	switch v := e.(type) {
	case *catalog.MediaItem:
		return tx.UpdateMedia(ctx, v)
	case *catalog.Actor:
		return tx.UpdateActor(ctx, v)
	case *catalog.Collection:
		return tx.UpdateCollection(ctx, v)
	default:
		return fmt.Errorf("repo: unsupported entity %T", e)
	}
}
