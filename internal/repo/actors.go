package repo

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// Actors is the actor repository. Links between actors and media items are
// stored on the media item, so Link and Unlink are media mutations.
type Actors struct {
	r   *resolver
	now func() time.Time
}

func (a *Actors) Add(ctx context.Context, actor catalog.Actor) (*catalog.Actor, error) {
	if actor.ID == "" {
		actor.ID = uuid.NewString()
	}

	actor.Normalize()
	actor.CreatedAt = a.now().UTC()
	actor.SyncMeta = catalog.SyncMeta{}

	if err := catalog.ValidateStruct(&actor); err != nil {
		return nil, err
	}

	return typed[catalog.Actor](a.r.backend().Create(ctx, &actor))
}

func (a *Actors) Get(ctx context.Context, id string) (*catalog.Actor, error) {
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	return typed[catalog.Actor](a.r.backend().Get(ctx, catalog.EntityActor, id))
}

func (a *Actors) Update(ctx context.Context, id string, patch catalog.ActorPatch) (*catalog.Actor, error) {
	cur, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := patch.Apply(*cur)
	merged.Normalize()

	if err := catalog.ValidateStruct(&merged); err != nil {
		return nil, err
	}

	return typed[catalog.Actor](a.r.backend().Update(ctx, &merged))
}

// Delete removes an actor. Media items that linked it lose the link and
// are queued for sync.
func (a *Actors) Delete(ctx context.Context, id string) error {
	if _, err := a.Get(ctx, id); err != nil {
		return err
	}

	return a.r.backend().Delete(ctx, catalog.EntityActor, id)
}

func (a *Actors) List(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Actor], error) {
	if err := catalog.ValidateQuery(catalog.EntityActor, q); err != nil {
		return catalog.Page[catalog.Actor]{}, err
	}

	return a.r.backend().ListActors(ctx, q)
}

// Link adds actorID to the media item. Both must exist. Linking twice is a
// no-op that writes nothing.
func (a *Actors) Link(ctx context.Context, mediaID, actorID string) (*catalog.MediaItem, error) {
	if err := requireID("media_id", mediaID); err != nil {
		return nil, err
	}

	if err := requireID("actor_id", actorID); err != nil {
		return nil, err
	}

	b := a.r.backend()

	m, err := typed[catalog.MediaItem](b.Get(ctx, catalog.EntityMedia, mediaID))
	if err != nil {
		return nil, err
	}

	if _, err := b.Get(ctx, catalog.EntityActor, actorID); err != nil {
		return nil, err
	}

	if slices.Contains(m.ActorIDs, actorID) {
		return m, nil
	}

	m.ActorIDs = uniqueSorted(append(slices.Clone(m.ActorIDs), actorID))

	return typed[catalog.MediaItem](b.Update(ctx, m))
}

// Unlink removes actorID from the media item. Removing a link that does
// not exist is a no-op.
func (a *Actors) Unlink(ctx context.Context, mediaID, actorID string) (*catalog.MediaItem, error) {
	if err := requireID("media_id", mediaID); err != nil {
		return nil, err
	}

	if err := requireID("actor_id", actorID); err != nil {
		return nil, err
	}

	b := a.r.backend()

	m, err := typed[catalog.MediaItem](b.Get(ctx, catalog.EntityMedia, mediaID))
	if err != nil {
		return nil, err
	}

	if !slices.Contains(m.ActorIDs, actorID) {
		return m, nil
	}

	m.ActorIDs = slices.DeleteFunc(slices.Clone(m.ActorIDs), func(id string) bool { return id == actorID })

	return typed[catalog.MediaItem](b.Update(ctx, m))
}
