package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestValidateStruct_CollectionRanges(t *testing.T) {
	t.Parallel()

	base := Collection{ID: "c1", MediaID: "m1"}

	tests := []struct {
		name    string
		mutate  func(*Collection)
		wantErr bool
		field   string
	}{
		{"valid empty", func(*Collection) {}, false, ""},
		{"rating at upper bound", func(c *Collection) { c.PersonalRating = ptr(10.0) }, false, ""},
		{"rating at lower bound", func(c *Collection) { c.PersonalRating = ptr(0.0) }, false, ""},
		{"rating above range", func(c *Collection) { c.PersonalRating = ptr(11.0) }, true, "personal_rating"},
		{"rating below range", func(c *Collection) { c.PersonalRating = ptr(-0.5) }, true, "personal_rating"},
		{"progress above range", func(c *Collection) { c.WatchProgress = 1.01 }, true, "watch_progress"},
		{"progress below range", func(c *Collection) { c.WatchProgress = -0.1 }, true, "watch_progress"},
		{"unknown status", func(c *Collection) { c.Status = "binged" }, true, "status"},
		{"missing media id", func(c *Collection) { c.MediaID = "" }, true, "media_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := base
			tt.mutate(&c)

			err := ValidateStruct(c)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateStruct_MediaRequiresTitle(t *testing.T) {
	t.Parallel()

	err := ValidateStruct(MediaItem{ID: "m1"})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "title", verr.Field)
	assert.Equal(t, "required", verr.Rule)
}

func TestValidateQuery_SortKeyPerEntity(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateQuery(EntityMedia, Query{Sort: SortTitle}))
	assert.ErrorIs(t, ValidateQuery(EntityMedia, Query{Sort: SortRating}), ErrValidation)
	assert.NoError(t, ValidateQuery(EntityCollection, Query{Sort: SortRating}))
	assert.ErrorIs(t, ValidateQuery(EntityActor, Query{Offset: -1}), ErrValidation)
	assert.ErrorIs(t, ValidateQuery(EntityActor, Query{Limit: 501}), ErrValidation)
}

func TestQueryNormalized(t *testing.T) {
	t.Parallel()

	q := Query{}.Normalized(EntityActor)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Equal(t, SortName, q.Sort)
}

func TestNormalizeText_NFC(t *testing.T) {
	t.Parallel()

	// "e" followed by a combining acute accent composes to U+00E9.
	decomposed := "  Ame\u0301lie "
	assert.Equal(t, "Am\u00e9lie", NormalizeText(decomposed))
	assert.Equal(t, "am\u00e9lie", FoldKeyword(decomposed))
}

func TestCoalesce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mk := func(op Operation) Change {
		return Change{ID: "media:m1", EntityType: EntityMedia, EntityID: "m1", Operation: op, Timestamp: now}
	}

	merged, keep := Coalesce(mk(OpCreate), mk(OpUpdate))
	assert.True(t, keep)
	assert.Equal(t, OpCreate, merged.Operation)

	_, keep = Coalesce(mk(OpCreate), mk(OpDelete))
	assert.False(t, keep, "unattempted create followed by delete cancels out")

	attempted := mk(OpCreate)
	attempted.RetryCount = 2
	merged, keep = Coalesce(attempted, mk(OpDelete))
	assert.True(t, keep, "a create that may have reached the remote keeps its delete")
	assert.Equal(t, OpDelete, merged.Operation)
	assert.Zero(t, merged.RetryCount)

	edited, keep := Coalesce(attempted, mk(OpUpdate))
	assert.True(t, keep)
	assert.Equal(t, OpUpdate, edited.Operation, "an edit over an attempted create is an update")
	assert.Zero(t, edited.RetryCount)

	merged, keep = Coalesce(edited, mk(OpDelete))
	assert.True(t, keep, "the delete survives the edit")
	assert.Equal(t, OpDelete, merged.Operation)

	merged, keep = Coalesce(mk(OpDelete), mk(OpCreate))
	assert.True(t, keep)
	assert.Equal(t, OpUpdate, merged.Operation)

	merged, keep = Coalesce(mk(OpUpdate), mk(OpDelete))
	assert.True(t, keep)
	assert.Equal(t, OpDelete, merged.Operation)
}

func TestChangePayloadRoundTripValidates(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c, err := NewChange(EntityCollection, "c1", OpUpdate, Collection{ID: "c1", MediaID: "m1", WatchProgress: 0.5}, now)
	require.NoError(t, err)
	assert.Equal(t, "collection:c1", c.ID)

	v, err := c.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, 0.5, v.(*Collection).WatchProgress)

	c.Payload = []byte(`{"id":"c1","media_id":"m1","watch_progress":4}`)
	_, err = c.DecodePayload()
	assert.ErrorIs(t, err, ErrValidation, "out-of-range payload fails schema validation")

	c.Payload = []byte(`id=c1,media_id=m1`)
	_, err = c.DecodePayload()
	assert.ErrorIs(t, err, ErrValidation)

	del, err := NewChange(EntityMedia, "m1", OpDelete, nil, now)
	require.NoError(t, err)
	assert.Empty(t, del.Payload)
}

func TestChangeRetryState(t *testing.T) {
	t.Parallel()

	now := time.Now()
	later := now.Add(time.Minute)
	c := Change{RetryCount: 3, NextAttemptAt: &later}

	assert.True(t, c.Deferred(now))
	assert.False(t, c.Deferred(later.Add(time.Second)))
	assert.True(t, c.PermanentlyFailed(3))
	assert.False(t, c.PermanentlyFailed(4))
	assert.False(t, c.PermanentlyFailed(0), "zero disables the cap")
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	nf := NewNotFound(EntityMedia, "m1")
	assert.ErrorIs(t, nf, ErrNotFound)
	assert.NotErrorIs(t, nf, ErrDatabase)

	dup := NewAlreadyExists(EntityCollection, "m1")
	assert.ErrorIs(t, dup, ErrAlreadyExists)

	dbErr := WrapDB("insert media", errors.New("disk I/O error"))
	assert.ErrorIs(t, dbErr, ErrDatabase)
	assert.Same(t, nf, WrapDB("get media", nf), "taxonomy errors pass through")

	netErr := &NetworkError{Op: "PUT /api/media/m1", StatusCode: 404, Err: nf}
	assert.ErrorIs(t, netErr, ErrNetwork)
	assert.ErrorIs(t, netErr, ErrNotFound)
	assert.True(t, netErr.IsRejection())
	assert.False(t, (&NetworkError{StatusCode: 503}).IsRejection())
	assert.False(t, (&NetworkError{StatusCode: 429}).IsRejection())
	assert.False(t, (&NetworkError{}).IsRejection())
}
