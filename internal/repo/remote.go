package repo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tonimelisma/mediavault/internal/catalog"
	"github.com/tonimelisma/mediavault/internal/store"
)

// remoteBackend sends mutations to the remote API with explicit
// compensation:
//
//  1. capture the local records the write touches
//  2. apply the write locally, dirty and queued
//  3. call the remote
//  4. success: store the canonical record as synced and drop the queue entry
//  5. network failure: keep the dirty, queued state for the sync engine
//  6. rejection (4xx): restore the captured records and return the error
//
// Reads go to the remote. A transport failure falls back to the local
// cache so connected mode keeps working through an outage.
type remoteBackend struct {
	local  *localBackend
	store  *store.Store
	remote Remote
	logger *slog.Logger
}

func newRemoteBackend(local *localBackend, remote Remote, logger *slog.Logger) *remoteBackend {
	return &remoteBackend{local: local, store: local.store, remote: remote, logger: logger}
}

// transient reports whether err is a remote failure worth retrying later,
// as opposed to a definitive rejection.
func transient(err error) bool {
	var netErr *catalog.NetworkError
	if !errors.As(err, &netErr) {
		return false
	}

	return !netErr.IsRejection()
}

func (b *remoteBackend) fallback(op string, err error) {
	b.logger.Warn("remote unavailable, serving local cache",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func (b *remoteBackend) Get(ctx context.Context, t catalog.EntityType, key string) (catalog.Entity, error) {
	e, err := b.remote.Get(ctx, t, key)
	if err == nil {
		return e, nil
	}

	if transient(err) {
		b.fallback("get "+t.String(), err)
		return b.local.Get(ctx, t, key)
	}

	// A record created locally and not yet pushed is unknown to the remote.
	if errors.Is(err, catalog.ErrNotFound) {
		if local, lerr := b.local.Get(ctx, t, key); lerr == nil && !local.Meta().IsSynced {
			return local, nil
		}
	}

	return nil, err
}

func (b *remoteBackend) ListMedia(ctx context.Context, q catalog.Query) (catalog.Page[catalog.MediaItem], error) {
	page, err := b.remote.ListMedia(ctx, q)
	if err != nil && transient(err) {
		b.fallback("list media", err)
		return b.local.ListMedia(ctx, q)
	}

	return page, err
}

func (b *remoteBackend) ListActors(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Actor], error) {
	page, err := b.remote.ListActors(ctx, q)
	if err != nil && transient(err) {
		b.fallback("list actors", err)
		return b.local.ListActors(ctx, q)
	}

	return page, err
}

func (b *remoteBackend) ListCollections(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Collection], error) {
	page, err := b.remote.ListCollections(ctx, q)
	if err != nil && transient(err) {
		b.fallback("list collections", err)
		return b.local.ListCollections(ctx, q)
	}

	return page, err
}

func (b *remoteBackend) Create(ctx context.Context, e catalog.Entity) (catalog.Entity, error) {
	snap, err := b.capture(ctx, []ref{{e.Kind(), e.Key()}})
	if err != nil {
		return nil, err
	}

	written, err := b.local.Create(ctx, e)
	if err != nil {
		return nil, err
	}

	canonical, err := b.remote.Create(ctx, written)

	return b.settle(ctx, snap, written, canonical, err)
}

func (b *remoteBackend) Update(ctx context.Context, e catalog.Entity) (catalog.Entity, error) {
	snap, err := b.capture(ctx, []ref{{e.Kind(), e.Key()}})
	if err != nil {
		return nil, err
	}

	written, err := b.local.upsert(ctx, e)
	if err != nil {
		return nil, err
	}

	canonical, err := b.remote.Upsert(ctx, written)

	return b.settle(ctx, snap, written, canonical, err)
}

// settle finishes a speculative write once the remote has answered.
func (b *remoteBackend) settle(
	ctx context.Context, snap snapshot, written, canonical catalog.Entity, callErr error,
) (catalog.Entity, error) {
	if callErr == nil {
		meta := canonical.Meta()
		if meta.UpdatedAt.IsZero() {
			meta.UpdatedAt = written.Meta().UpdatedAt
		}

		err := b.store.WithTx(ctx, func(tx *store.Tx) error {
			meta.MarkAcknowledged(meta.SyncVersion, tx.Now())

			if err := tx.PutEntity(ctx, canonical); err != nil {
				return err
			}

			return tx.RemoveChange(ctx, catalog.ChangeID(canonical.Kind(), canonical.Key()))
		})
		if err != nil {
			return nil, err
		}

		return canonical, nil
	}

	if transient(callErr) || ctx.Err() != nil {
		b.logger.Warn("remote write failed, queued for sync",
			slog.String("entity_type", written.Kind().String()),
			slog.String("key", written.Key()),
			slog.String("error", callErr.Error()),
		)

		// The request may have been applied before it failed.
		id := catalog.ChangeID(written.Kind(), written.Key())
		if err := b.store.MarkAttempted(context.WithoutCancel(ctx), id); err != nil {
			return nil, errors.Join(callErr, err)
		}

		return nil, callErr
	}

	if err := b.restore(ctx, snap); err != nil {
		return nil, errors.Join(callErr, err)
	}

	b.logger.Info("remote rejected write, local change rolled back",
		slog.String("entity_type", written.Kind().String()),
		slog.String("key", written.Key()),
		slog.String("error", callErr.Error()),
	)

	return nil, callErr
}

func (b *remoteBackend) Delete(ctx context.Context, t catalog.EntityType, key string) error {
	refs, err := b.deleteRefs(ctx, t, key)
	if err != nil {
		return err
	}

	snap, err := b.capture(ctx, refs)
	if err != nil {
		return err
	}

	err = b.store.WithTx(ctx, func(tx *store.Tx) error {
		derr := deleteInTx(ctx, tx, t, key)
		if !errors.Is(derr, catalog.ErrNotFound) {
			return derr
		}

		// Not cached locally: queue the delete on its own.
		change, cerr := catalog.NewChange(t, key, catalog.OpDelete, nil, tx.Now())
		if cerr != nil {
			return cerr
		}

		return tx.Enqueue(ctx, change)
	})
	if err != nil {
		return err
	}

	callErr := b.remote.Delete(ctx, t, key)
	if callErr == nil || errors.Is(callErr, catalog.ErrNotFound) {
		return b.store.RemoveChange(ctx, catalog.ChangeID(t, key))
	}

	if transient(callErr) || ctx.Err() != nil {
		b.logger.Warn("remote delete failed, queued for sync",
			slog.String("entity_type", t.String()),
			slog.String("key", key),
			slog.String("error", callErr.Error()),
		)

		return callErr
	}

	if err := b.restore(ctx, snap); err != nil {
		return errors.Join(callErr, err)
	}

	return callErr
}

// deleteRefs lists the records a delete of (t, key) rewrites locally.
func (b *remoteBackend) deleteRefs(ctx context.Context, t catalog.EntityType, key string) ([]ref, error) {
	refs := []ref{{t, key}}

	switch t {
	case catalog.EntityMedia:
		refs = append(refs, ref{catalog.EntityCollection, key})
	case catalog.EntityActor:
		var ids []string

		err := b.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			ids, err = tx.MediaIDsForActor(ctx, key)

			return err
		})
		if err != nil {
			return nil, err
		}

		for _, id := range ids {
			refs = append(refs, ref{catalog.EntityMedia, id})
		}
	}

	return refs, nil
}

// ref addresses one record across the sync boundary.
type ref struct {
	kind catalog.EntityType
	key  string
}

// snapshot is the captured local state of the records a write touches.
// A nil entity or change means it did not exist.
type snapshot []snapEntry

type snapEntry struct {
	ref
	entity catalog.Entity
	change *catalog.Change
}

func (b *remoteBackend) capture(ctx context.Context, refs []ref) (snapshot, error) {
	snap := make(snapshot, 0, len(refs))

	err := b.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, r := range refs {
			entry := snapEntry{ref: r}

			e, err := tx.GetEntity(ctx, r.kind, r.key)
			switch {
			case err == nil:
				entry.entity = e
			case !errors.Is(err, catalog.ErrNotFound):
				return err
			}

			if entry.change, err = tx.GetChange(ctx, catalog.ChangeID(r.kind, r.key)); err != nil {
				return err
			}

			snap = append(snap, entry)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// restore rewrites the captured state in one transaction. Records absent
// from the snapshot are removed in reverse order, so a collection goes
// before its media item; captured records are put back in order.
func (b *remoteBackend) restore(ctx context.Context, snap snapshot) error {
	return b.store.WithTx(ctx, func(tx *store.Tx) error {
		for i := len(snap) - 1; i >= 0; i-- {
			entry := snap[i]
			if entry.entity != nil {
				continue
			}

			if err := tx.DeleteEntity(ctx, entry.kind, entry.key); err != nil && !errors.Is(err, catalog.ErrNotFound) {
				return err
			}
		}

		for _, entry := range snap {
			if entry.entity != nil {
				if err := tx.PutEntity(ctx, entry.entity); err != nil {
					return err
				}
			}

			id := catalog.ChangeID(entry.kind, entry.key)

			if entry.change == nil {
				if err := tx.RemoveChange(ctx, id); err != nil {
					return err
				}

				continue
			}

			if err := tx.PutChange(ctx, *entry.change); err != nil {
				return err
			}
		}

		return nil
	})
}
