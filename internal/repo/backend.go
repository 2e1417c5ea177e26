package repo

import (
	"context"
	"fmt"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// Backend is the storage strategy behind the repositories. Exactly two
// implementations exist: localBackend (Standalone) and remoteBackend
// (Connected). Callers never branch on mode; the resolver picks one.
type Backend interface {
	Get(ctx context.Context, t catalog.EntityType, key string) (catalog.Entity, error)
	ListMedia(ctx context.Context, q catalog.Query) (catalog.Page[catalog.MediaItem], error)
	ListActors(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Actor], error)
	ListCollections(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Collection], error)

	// Create stores a new entity and returns the stored record.
	Create(ctx context.Context, e catalog.Entity) (catalog.Entity, error)
	// Update fully replaces an existing entity and returns the stored record.
	Update(ctx context.Context, e catalog.Entity) (catalog.Entity, error)
	// Delete removes an entity by key. Media deletes cascade.
	Delete(ctx context.Context, t catalog.EntityType, key string) error
}

// Remote is the subset of the remote API client the repositories use.
type Remote interface {
	Get(ctx context.Context, t catalog.EntityType, key string) (catalog.Entity, error)
	Create(ctx context.Context, e catalog.Entity) (catalog.Entity, error)
	Upsert(ctx context.Context, e catalog.Entity) (catalog.Entity, error)
	Delete(ctx context.Context, t catalog.EntityType, key string) error
	ListMedia(ctx context.Context, q catalog.Query) (catalog.Page[catalog.MediaItem], error)
	ListActors(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Actor], error)
	ListCollections(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Collection], error)
}

// typed narrows a backend result to its concrete entity type.
func typed[T any, PT interface {
	*T
	catalog.Entity
}](e catalog.Entity, err error) (PT, error) {
	if err != nil {
		return nil, err
	}

	out, ok := e.(PT)
	if !ok {
		return nil, fmt.Errorf("repo: unexpected entity %T", e)
	}

	return out, nil
}
