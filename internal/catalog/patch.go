package catalog

import (
	"slices"
	"time"
)

// MediaPatch is a partial update to a MediaItem. Nil fields are unchanged.
type MediaPatch struct {
	Title          *string    `json:"title,omitempty"`
	OriginalTitle  *string    `json:"original_title,omitempty"`
	Type           *string    `json:"type,omitempty"`
	Studio         *string    `json:"studio,omitempty"`
	Series         *string    `json:"series,omitempty"`
	ReleaseDate    *time.Time `json:"release_date,omitempty"`
	RuntimeMinutes *int       `json:"runtime_minutes,omitempty"`
	Tags           *[]string  `json:"tags,omitempty"`
}

// Apply returns a copy of m with the patch applied.
func (p MediaPatch) Apply(m MediaItem) MediaItem {
	if p.Title != nil {
		m.Title = *p.Title
	}

	if p.OriginalTitle != nil {
		m.OriginalTitle = *p.OriginalTitle
	}

	if p.Type != nil {
		m.Type = *p.Type
	}

	if p.Studio != nil {
		m.Studio = *p.Studio
	}

	if p.Series != nil {
		m.Series = *p.Series
	}

	if p.ReleaseDate != nil {
		d := *p.ReleaseDate
		m.ReleaseDate = &d
	}

	if p.RuntimeMinutes != nil {
		m.RuntimeMinutes = *p.RuntimeMinutes
	}

	if p.Tags != nil {
		m.Tags = slices.Clone(*p.Tags)
	}

	m.ActorIDs = slices.Clone(m.ActorIDs)

	return m
}

// ActorPatch is a partial update to an Actor. Nil fields are unchanged.
type ActorPatch struct {
	Name      *string    `json:"name,omitempty"`
	Aliases   *[]string  `json:"aliases,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// Apply returns a copy of a with the patch applied.
func (p ActorPatch) Apply(a Actor) Actor {
	if p.Name != nil {
		a.Name = *p.Name
	}

	if p.Aliases != nil {
		a.Aliases = slices.Clone(*p.Aliases)
	}

	if p.BirthDate != nil {
		d := *p.BirthDate
		a.BirthDate = &d
	}

	return a
}

// CollectionPatch is a partial update to a Collection. Nil fields are
// unchanged. ClearRating removes the personal rating.
type CollectionPatch struct {
	PersonalRating *float64   `json:"personal_rating,omitempty"`
	ClearRating    bool       `json:"clear_rating,omitempty"`
	WatchProgress  *float64   `json:"watch_progress,omitempty"`
	Status         *string    `json:"status,omitempty"`
	Favorite       *bool      `json:"favorite,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	WatchedAt      *time.Time `json:"watched_at,omitempty"`
}

// Apply returns a copy of c with the patch applied.
func (p CollectionPatch) Apply(c Collection) Collection {
	if p.ClearRating {
		c.PersonalRating = nil
	}

	if p.PersonalRating != nil {
		r := *p.PersonalRating
		c.PersonalRating = &r
	}

	if p.WatchProgress != nil {
		c.WatchProgress = *p.WatchProgress
	}

	if p.Status != nil {
		c.Status = *p.Status
	}

	if p.Favorite != nil {
		c.Favorite = *p.Favorite
	}

	if p.Notes != nil {
		c.Notes = *p.Notes
	}

	if p.WatchedAt != nil {
		w := *p.WatchedAt
		c.WatchedAt = &w
	}

	return c
}
