// Package catalog defines the media catalog's domain model: entities, their
// sync metadata, queries, patches, queued changes, and the error taxonomy
// shared by the store, repository, remote client, and sync engine.
package catalog

import (
	"fmt"
	"time"
)

// EntityType identifies one of the three synchronized entity kinds.
type EntityType string

// Entity types, in the order the sync engine pushes them. Media must reach
// the remote before collections that reference it.
const (
	EntityMedia      EntityType = "media"
	EntityActor      EntityType = "actor"
	EntityCollection EntityType = "collection"
)

// EntityTypes lists all entity types in push order.
var EntityTypes = []EntityType{EntityMedia, EntityActor, EntityCollection}

// ParseEntityType converts a string to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityMedia, EntityActor, EntityCollection:
		return EntityType(s), nil
	default:
		return "", fmt.Errorf("catalog: unknown entity type %q", s)
	}
}

func (t EntityType) String() string {
	return string(t)
}

// SyncMeta is the per-record bookkeeping the sync core reads and writes.
// IsSynced is true iff the remote has acknowledged the current local state.
type SyncMeta struct {
	UpdatedAt    time.Time  `json:"updated_at"`
	IsSynced     bool       `json:"-"`
	LastSyncedAt *time.Time `json:"-"`
	SyncVersion  string     `json:"sync_version,omitempty"`
}

// MarkDirty stamps the metadata for a local mutation at now.
func (m *SyncMeta) MarkDirty(now time.Time) {
	m.UpdatedAt = now.UTC()
	m.IsSynced = false
}

// MarkAcknowledged records a remote acknowledgment of the current state.
func (m *SyncMeta) MarkAcknowledged(version string, at time.Time) {
	at = at.UTC()
	m.IsSynced = true
	m.SyncVersion = version
	m.LastSyncedAt = &at
}

// Media types accepted by validation.
const (
	MediaMovie       = "movie"
	MediaSeries      = "series"
	MediaEpisode     = "episode"
	MediaDocumentary = "documentary"
	MediaOther       = "other"
)

// MediaItem is a catalog entry for a film, series, or episode.
// ActorIDs carries the Actor<->MediaItem join so that linking is a
// mutation of the media item and travels with it during sync.
type MediaItem struct {
	ID             string     `json:"id" validate:"required,max=64"`
	Title          string     `json:"title" validate:"required,max=500"`
	OriginalTitle  string     `json:"original_title,omitempty" validate:"max=500"`
	Type           string     `json:"type,omitempty" validate:"omitempty,oneof=movie series episode documentary other"`
	Studio         string     `json:"studio,omitempty" validate:"max=200"`
	Series         string     `json:"series,omitempty" validate:"max=200"`
	ReleaseDate    *time.Time `json:"release_date,omitempty"`
	RuntimeMinutes int        `json:"runtime_minutes,omitempty" validate:"min=0,max=100000"`
	Tags           []string   `json:"tags,omitempty" validate:"max=100,dive,required,max=100"`
	ActorIDs       []string   `json:"actor_ids,omitempty" validate:"dive,required"`
	CreatedAt      time.Time  `json:"created_at"`
	SyncMeta
}

// Actor is a performer that can be linked to many media items.
type Actor struct {
	ID        string     `json:"id" validate:"required,max=64"`
	Name      string     `json:"name" validate:"required,max=300"`
	Aliases   []string   `json:"aliases,omitempty" validate:"max=50,dive,required,max=300"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SyncMeta
}

// Collection statuses accepted by validation.
const (
	StatusPlanned   = "planned"
	StatusWatching  = "watching"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
)

// Collection is the user's personal entry for one media item. At most one
// Collection exists per MediaID.
type Collection struct {
	ID             string     `json:"id" validate:"required,max=64"`
	MediaID        string     `json:"media_id" validate:"required,max=64"`
	PersonalRating *float64   `json:"personal_rating,omitempty" validate:"omitempty,min=0,max=10"`
	WatchProgress  float64    `json:"watch_progress" validate:"min=0,max=1"`
	Status         string     `json:"status,omitempty" validate:"omitempty,oneof=planned watching completed dropped"`
	Favorite       bool       `json:"favorite"`
	Notes          string     `json:"notes,omitempty" validate:"max=10000"`
	WatchedAt      *time.Time `json:"watched_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SyncMeta
}

// Tombstone reports a remote deletion observed during pull.
type Tombstone struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// ConflictResolution names which side won a pull-time conflict.
type ConflictResolution string

// Conflict resolutions.
const (
	LocalWins  ConflictResolution = "local_wins"
	RemoteWins ConflictResolution = "remote_wins"
)

// ConflictRecord preserves the losing side of a dirty-local versus
// changed-remote conflict so neither version is silently discarded.
type ConflictRecord struct {
	ID              string             `json:"id"`
	EntityType      EntityType         `json:"entity_type"`
	EntityID        string             `json:"entity_id"`
	Resolution      ConflictResolution `json:"resolution"`
	LocalUpdatedAt  time.Time          `json:"local_updated_at"`
	RemoteUpdatedAt time.Time          `json:"remote_updated_at"`
	LosingPayload   []byte             `json:"losing_payload,omitempty"`
	DetectedAt      time.Time          `json:"detected_at"`
}

// Entity is implemented by *MediaItem, *Actor, and *Collection so the store
// and sync engine can handle all three uniformly. Key is the id the remote
// API addresses the entity by; for collections that is the media id.
type Entity interface {
	Kind() EntityType
	Key() string
	Meta() *SyncMeta
}

func (m *MediaItem) Kind() EntityType  { return EntityMedia }
func (m *MediaItem) Key() string       { return m.ID }
func (m *MediaItem) Meta() *SyncMeta   { return &m.SyncMeta }
func (a *Actor) Kind() EntityType      { return EntityActor }
func (a *Actor) Key() string           { return a.ID }
func (a *Actor) Meta() *SyncMeta       { return &a.SyncMeta }
func (c *Collection) Kind() EntityType { return EntityCollection }
func (c *Collection) Key() string      { return c.MediaID }
func (c *Collection) Meta() *SyncMeta  { return &c.SyncMeta }

// NewEntity returns an empty entity of type t for decoding.
func NewEntity(t EntityType) (Entity, error) {
	switch t {
	case EntityMedia:
		return &MediaItem{}, nil
	case EntityActor:
		return &Actor{}, nil
	case EntityCollection:
		return &Collection{}, nil
	default:
		return nil, fmt.Errorf("catalog: unknown entity type %q", t)
	}
}
