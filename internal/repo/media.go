package repo

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// Media is the media item repository.
type Media struct {
	r   *resolver
	now func() time.Time
}

// requireID rejects an empty identifier before any backend is consulted.
func requireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &catalog.ValidationError{Field: field, Rule: "required"}
	}

	return nil
}

// Add validates and stores a new media item. An empty ID is assigned a
// UUID. Every linked actor must exist.
func (m *Media) Add(ctx context.Context, item catalog.MediaItem) (*catalog.MediaItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	item.Normalize()
	item.ActorIDs = uniqueSorted(item.ActorIDs)
	item.CreatedAt = m.now().UTC()
	item.SyncMeta = catalog.SyncMeta{}

	if err := catalog.ValidateStruct(&item); err != nil {
		return nil, err
	}

	b := m.r.backend()

	for _, actorID := range item.ActorIDs {
		if _, err := b.Get(ctx, catalog.EntityActor, actorID); err != nil {
			return nil, err
		}
	}

	return typed[catalog.MediaItem](b.Create(ctx, &item))
}

// Get returns a media item by id.
func (m *Media) Get(ctx context.Context, id string) (*catalog.MediaItem, error) {
	if err := requireID("id", id); err != nil {
		return nil, err
	}

	return typed[catalog.MediaItem](m.r.backend().Get(ctx, catalog.EntityMedia, id))
}

// Update applies patch to the stored item and validates the result. On a
// validation failure nothing is written.
func (m *Media) Update(ctx context.Context, id string, patch catalog.MediaPatch) (*catalog.MediaItem, error) {
	cur, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := patch.Apply(*cur)
	merged.Normalize()

	if err := catalog.ValidateStruct(&merged); err != nil {
		return nil, err
	}

	return typed[catalog.MediaItem](m.r.backend().Update(ctx, &merged))
}

// Delete removes a media item together with its collection entry and actor
// links.
func (m *Media) Delete(ctx context.Context, id string) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}

	return m.r.backend().Delete(ctx, catalog.EntityMedia, id)
}

// List returns one page of media items matching q.
func (m *Media) List(ctx context.Context, q catalog.Query) (catalog.Page[catalog.MediaItem], error) {
	if err := catalog.ValidateQuery(catalog.EntityMedia, q); err != nil {
		return catalog.Page[catalog.MediaItem]{}, err
	}

	return m.r.backend().ListMedia(ctx, q)
}

func uniqueSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	out := slices.Clone(ids)
	slices.Sort(out)

	return slices.Compact(out)
}
