// Package sync implements the reconciler between the local catalog and the
// remote authority: a push of dirty records and queued deletes followed by
// a pull of the remote change feed, with a status state machine that
// observers can subscribe to.
package sync

import (
	"context"

	"github.com/tonimelisma/mediavault/internal/catalog"
	"github.com/tonimelisma/mediavault/internal/mode"
	"github.com/tonimelisma/mediavault/internal/remote"
)

// Remote is the remote API surface the engine needs. Satisfied by
// *remote.Client.
type Remote interface {
	// Upsert creates or replaces an entity and returns the canonical record.
	Upsert(ctx context.Context, e catalog.Entity) (catalog.Entity, error)
	// Delete removes an entity. A missing entity is reported as NotFound.
	Delete(ctx context.Context, t catalog.EntityType, key string) error
	// Changes returns one page of the change feed after cursor.
	Changes(ctx context.Context, t catalog.EntityType, cursor string, limit int) (*remote.ChangePage, error)
}

// Modes is the part of the Mode Manager the engine depends on.
// Satisfied by *mode.Manager.
type Modes interface {
	Current() mode.Mode
	Subscribe(fn func(mode.State)) (unsubscribe func())
}
