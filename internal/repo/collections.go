package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// Collections is the repository of personal collection entries. Entries
// are addressed by the media id they belong to.
type Collections struct {
	r   *resolver
	now func() time.Time
}

// Add creates the collection entry for mediaID. The media item must exist
// and must not already have an entry.
func (c *Collections) Add(ctx context.Context, mediaID string, entry catalog.Collection) (*catalog.Collection, error) {
	if err := requireID("media_id", mediaID); err != nil {
		return nil, err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	entry.MediaID = mediaID
	entry.Normalize()
	entry.CreatedAt = c.now().UTC()
	entry.SyncMeta = catalog.SyncMeta{}

	if err := catalog.ValidateStruct(&entry); err != nil {
		return nil, err
	}

	b := c.r.backend()

	if _, err := b.Get(ctx, catalog.EntityMedia, mediaID); err != nil {
		return nil, err
	}

	_, err := b.Get(ctx, catalog.EntityCollection, mediaID)
	switch {
	case err == nil:
		return nil, catalog.NewAlreadyExists(catalog.EntityCollection, mediaID)
	case !errors.Is(err, catalog.ErrNotFound):
		return nil, err
	}

	return typed[catalog.Collection](b.Create(ctx, &entry))
}

// Get returns the collection entry for mediaID.
func (c *Collections) Get(ctx context.Context, mediaID string) (*catalog.Collection, error) {
	if err := requireID("media_id", mediaID); err != nil {
		return nil, err
	}

	return typed[catalog.Collection](c.r.backend().Get(ctx, catalog.EntityCollection, mediaID))
}

// Update applies patch to the entry for mediaID. An out-of-range rating or
// progress fails validation and leaves the stored entry unchanged.
func (c *Collections) Update(ctx context.Context, mediaID string, patch catalog.CollectionPatch) (*catalog.Collection, error) {
	cur, err := c.Get(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	merged := patch.Apply(*cur)
	merged.Normalize()

	if err := catalog.ValidateStruct(&merged); err != nil {
		return nil, err
	}

	return typed[catalog.Collection](c.r.backend().Update(ctx, &merged))
}

// Delete removes the collection entry of mediaID. The media item stays.
func (c *Collections) Delete(ctx context.Context, mediaID string) error {
	if _, err := c.Get(ctx, mediaID); err != nil {
		return err
	}

	return c.r.backend().Delete(ctx, catalog.EntityCollection, mediaID)
}

// List returns one page of collection entries matching q.
func (c *Collections) List(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Collection], error) {
	if err := catalog.ValidateQuery(catalog.EntityCollection, q); err != nil {
		return catalog.Page[catalog.Collection]{}, err
	}

	return c.r.backend().ListCollections(ctx, q)
}
