package catalog

// Pagination bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// SortKey names the primary ordering column of a query. Ties are always
// broken by id ascending so pagination is stable.
type SortKey string

// Sort keys. Not every key applies to every entity type; see SortKeysFor.
const (
	SortTitle       SortKey = "title"
	SortReleaseDate SortKey = "release_date"
	SortCreatedAt   SortKey = "created_at"
	SortUpdatedAt   SortKey = "updated_at"
	SortName        SortKey = "name"
	SortRating      SortKey = "rating"
	SortProgress    SortKey = "progress"
)

var sortKeys = map[EntityType][]SortKey{
	EntityMedia:      {SortTitle, SortReleaseDate, SortCreatedAt, SortUpdatedAt},
	EntityActor:      {SortName, SortCreatedAt, SortUpdatedAt},
	EntityCollection: {SortRating, SortProgress, SortCreatedAt, SortUpdatedAt},
}

// DefaultSort returns the sort key used when a query leaves Sort empty.
func DefaultSort(t EntityType) SortKey {
	switch t {
	case EntityMedia:
		return SortTitle
	case EntityActor:
		return SortName
	default:
		return SortUpdatedAt
	}
}

// SortKeysFor returns the sort keys valid for an entity type.
func SortKeysFor(t EntityType) []SortKey {
	return sortKeys[t]
}

// Query filters, sorts, and paginates a list operation. Empty string
// filters are ignored. Filters that do not apply to an entity type are
// ignored by that type's list.
type Query struct {
	Type     string  `validate:"omitempty,oneof=movie series episode documentary other"`
	Studio   string  `validate:"max=200"`
	Series   string  `validate:"max=200"`
	Keyword  string  `validate:"max=200"`
	ActorID  string  `validate:"max=64"`
	MediaID  string  `validate:"max=64"`
	Status   string  `validate:"omitempty,oneof=planned watching completed dropped"`
	Favorite *bool   `validate:"-"`
	Sort     SortKey `validate:"-"`
	Desc     bool    `validate:"-"`
	Limit    int     `validate:"min=0,max=500"`
	Offset   int     `validate:"min=0"`
}

// Normalized returns a copy with Limit and Sort defaults applied.
func (q Query) Normalized(t EntityType) Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}

	if q.Sort == "" {
		q.Sort = DefaultSort(t)
	}

	return q
}

// Page is one page of a list result. Total counts all matching records,
// not just this page.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
