package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// testLogger returns a debug-level logger that writes to t.Log,
// so all activity appears in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestStore opens a Store in a temp directory with a fixed clock,
// registering cleanup with t.Cleanup.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(context.Background(), dbPath, testLogger(t))
	require.NoError(t, err)

	s.SetClock(func() time.Time { return testEpoch })

	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})

	return s
}

func newMedia(id, title string, at time.Time) *catalog.MediaItem {
	return &catalog.MediaItem{
		ID:        id,
		Title:     title,
		CreatedAt: at,
		SyncMeta:  catalog.SyncMeta{UpdatedAt: at},
	}
}

func insertTestMedia(t *testing.T, s *Store, m *catalog.MediaItem) {
	t.Helper()

	require.NoError(t, s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.InsertMedia(context.Background(), m)
	}))
}

func TestOpen_RunsMigrations(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	var n int
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN
		 ('media', 'actors', 'media_actors', 'collections', 'sync_queue', 'kv', 'conflicts')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(ctx, dbPath, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, s.SetValue(ctx, "mode.preferred", "connected"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, dbPath, testLogger(t))
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.GetValue(ctx, "mode.preferred")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "connected", v)
}

func TestMedia_InsertGetRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	release := time.Date(2001, 4, 25, 0, 0, 0, 0, time.UTC)
	m := newMedia("m1", "Amélie", testEpoch)
	m.Type = catalog.MediaMovie
	m.ReleaseDate = &release
	m.Tags = []string{"romance", "paris"}
	insertTestMedia(t, s, m)

	got, err := s.GetMedia(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Amélie", got.Title)
	assert.Equal(t, []string{"romance", "paris"}, got.Tags)
	assert.True(t, release.Equal(*got.ReleaseDate))
	assert.True(t, testEpoch.Equal(got.UpdatedAt))
	assert.False(t, got.IsSynced)
	assert.Nil(t, got.LastSyncedAt)

	err = s.WithTx(ctx, func(tx *Tx) error { return tx.InsertMedia(ctx, m) })
	assert.ErrorIs(t, err, catalog.ErrAlreadyExists)

	_, err = s.GetMedia(ctx, "missing")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestMedia_UpdateMissingIsNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.UpdateMedia(ctx, newMedia("ghost", "Ghost", testEpoch))
	})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestQueryMedia_FiltersSortAndStableTieBreak(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	// Three items share a title so that only the id tie-break orders them.
	for _, id := range []string{"c", "a", "b"} {
		m := newMedia(id, "Same Title", testEpoch)
		m.Studio = "Ghibli"
		insertTestMedia(t, s, m)
	}

	other := newMedia("z", "Another", testEpoch)
	other.Studio = "Pixar"
	insertTestMedia(t, s, other)

	page, err := s.QueryMedia(ctx, catalog.Query{Studio: "Ghibli", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a", page.Items[0].ID)
	assert.Equal(t, "b", page.Items[1].ID)

	page, err = s.QueryMedia(ctx, catalog.Query{Studio: "Ghibli", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c", page.Items[0].ID)

	page, err = s.QueryMedia(ctx, catalog.Query{Sort: catalog.SortTitle, Desc: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 4)
	assert.Equal(t, []string{"a", "b", "c", "z"}, mediaIDs(page.Items),
		"descending title keeps id ascending within ties")
}

func TestQueryMedia_KeywordIsCaseInsensitiveAndNormalized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	m := newMedia("m1", "Le Fabuleux Destin d'Amélie Poulain", testEpoch)
	insertTestMedia(t, s, m)
	insertTestMedia(t, s, newMedia("m2", "100% Pure", testEpoch))

	page, err := s.QueryMedia(ctx, catalog.Query{Keyword: "AMÉLIE"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "m1", page.Items[0].ID)

	page, err = s.QueryMedia(ctx, catalog.Query{Keyword: "%"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, mediaIDs(page.Items), "LIKE wildcards are escaped")
}

func TestLinkActor_QueryByActor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	insertTestMedia(t, s, newMedia("m1", "One", testEpoch))
	insertTestMedia(t, s, newMedia("m2", "Two", testEpoch))

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertActor(ctx, &catalog.Actor{ID: "a1", Name: "Audrey", CreatedAt: testEpoch,
			SyncMeta: catalog.SyncMeta{UpdatedAt: testEpoch}}); err != nil {
			return err
		}

		if err := tx.LinkActor(ctx, "m2", "a1"); err != nil {
			return err
		}

		return tx.LinkActor(ctx, "m2", "a1")
	}))

	page, err := s.QueryMedia(ctx, catalog.Query{ActorID: "a1"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "m2", page.Items[0].ID)
	assert.Equal(t, []string{"a1"}, page.Items[0].ActorIDs)

	actors, err := s.QueryActors(ctx, catalog.Query{MediaID: "m2"})
	require.NoError(t, err)
	require.Len(t, actors.Items, 1)

	err = s.WithTx(ctx, func(tx *Tx) error { return tx.LinkActor(ctx, "missing", "a1") })
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDeleteActor_ReturnsAffectedMedia(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	m := newMedia("m1", "One", testEpoch)
	m.ActorIDs = []string{"a1", "a2"}
	insertTestMedia(t, s, m)

	var affected []string

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertActor(ctx, &catalog.Actor{ID: "a1", Name: "Audrey", CreatedAt: testEpoch}); err != nil {
			return err
		}

		var err error
		affected, err = tx.DeleteActor(ctx, "a1")

		return err
	}))

	assert.Equal(t, []string{"m1"}, affected)

	ids, err := actorIDsForMedia(ctx, s.db, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids)
}

func mediaIDs(items []catalog.MediaItem) []string {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}

	return ids
}

// seedCascade creates a media item with a collection entry, two actor links,
// and a pending collection change.
func seedCascade(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	m := newMedia("m1", "Cascade", testEpoch)
	m.ActorIDs = []string{"a1", "a2"}
	insertTestMedia(t, s, m)

	c := &catalog.Collection{ID: "c1", MediaID: "m1", WatchProgress: 0.5, CreatedAt: testEpoch,
		SyncMeta: catalog.SyncMeta{UpdatedAt: testEpoch}}

	change, err := catalog.NewChange(catalog.EntityCollection, "m1", catalog.OpCreate, c, testEpoch)
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertCollection(ctx, c); err != nil {
			return err
		}

		return tx.Enqueue(ctx, change)
	}))
}

func TestDeleteMedia_Cascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	seedCascade(t, s)

	require.NoError(t, s.DeleteMedia(ctx, "m1"))

	_, err := s.GetMedia(ctx, "m1")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = s.GetCollectionByMedia(ctx, "m1")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	ids, err := actorIDsForMedia(ctx, s.db, "m1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, s.DeleteMedia(ctx, "m1"), catalog.ErrNotFound)
}

func TestDeleteMedia_FailureBetweenStepsRollsBackEverything(t *testing.T) {
	t.Parallel()

	for _, failAfter := range []string{stepCollection, stepActorLinks, stepQueue, stepMedia} {
		t.Run(failAfter, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := newTestStore(t)
			seedCascade(t, s)

			injected := errors.New("injected failure")
			s.cascadeHook = func(step string) error {
				if step == failAfter {
					return injected
				}

				return nil
			}

			err := s.DeleteMedia(ctx, "m1")
			require.Error(t, err)
			assert.ErrorIs(t, err, catalog.ErrDatabase)
			assert.ErrorIs(t, err, injected)

			s.cascadeHook = nil

			m, err := s.GetMedia(ctx, "m1")
			require.NoError(t, err, "media row survives")
			assert.Equal(t, []string{"a1", "a2"}, m.ActorIDs, "join rows survive")

			c, err := s.GetCollectionByMedia(ctx, "m1")
			require.NoError(t, err, "collection row survives")
			assert.Equal(t, "c1", c.ID)

			pending, err := s.GetChange(ctx, catalog.ChangeID(catalog.EntityCollection, "m1"))
			require.NoError(t, err)
			assert.NotNil(t, pending, "queue entry survives")
		})
	}
}

func TestCollection_UniquePerMedia(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	insertTestMedia(t, s, newMedia("m1", "One", testEpoch))

	first := &catalog.Collection{ID: "c1", MediaID: "m1", CreatedAt: testEpoch}
	second := &catalog.Collection{ID: "c2", MediaID: "m1", CreatedAt: testEpoch}

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.InsertCollection(ctx, first) }))

	err := s.WithTx(ctx, func(tx *Tx) error { return tx.InsertCollection(ctx, second) })
	assert.ErrorIs(t, err, catalog.ErrAlreadyExists)

	err = s.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertCollection(ctx, &catalog.Collection{ID: "c3", MediaID: "nope", CreatedAt: testEpoch})
	})
	assert.ErrorIs(t, err, catalog.ErrNotFound, "collection for a missing media item")

	page, err := s.QueryCollections(ctx, catalog.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestQueryCollections_RatingSortsNullsLast(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	ratings := map[string]*float64{"m1": nil, "m2": ptr(7.5), "m3": ptr(9.0)}
	for _, id := range []string{"m1", "m2", "m3"} {
		insertTestMedia(t, s, newMedia(id, id, testEpoch))

		c := &catalog.Collection{ID: "c-" + id, MediaID: id, PersonalRating: ratings[id], CreatedAt: testEpoch}
		require.NoError(t, s.WithTx(ctx, func(tx *Tx) error { return tx.InsertCollection(ctx, c) }))
	}

	page, err := s.QueryCollections(ctx, catalog.Query{Sort: catalog.SortRating, Desc: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "m3", page.Items[0].MediaID)
	assert.Equal(t, "m2", page.Items[1].MediaID)
	assert.Equal(t, "m1", page.Items[2].MediaID)
}

func ptr[T any](v T) *T { return &v }

func TestListUnsynced_OrderAndMarkSyncedGuard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	older := testEpoch.Add(-time.Hour)
	insertTestMedia(t, s, newMedia("old", "Old", older))
	insertTestMedia(t, s, newMedia("new", "New", testEpoch))

	dirty, err := s.ListUnsynced(ctx, catalog.EntityMedia)
	require.NoError(t, err)
	require.Len(t, dirty, 2)
	assert.Equal(t, "new", dirty[0].Key(), "most recently modified first")
	assert.Equal(t, "old", dirty[1].Key())

	// A stale expectation (edit landed mid-push) must not mark synced.
	ok, err := s.MarkSynced(ctx, catalog.EntityMedia, "old", "v1", testEpoch, older.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.MarkSynced(ctx, catalog.EntityMedia, "old", "v1", testEpoch, older)
	require.NoError(t, err)
	assert.True(t, ok)

	m, err := s.GetMedia(ctx, "old")
	require.NoError(t, err)
	assert.True(t, m.IsSynced)
	assert.Equal(t, "v1", m.SyncVersion)
	require.NotNil(t, m.LastSyncedAt)
	assert.True(t, testEpoch.Equal(*m.LastSyncedAt))

	n, err := s.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetSyncVersion_OnlyTouchesDirtyRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	insertTestMedia(t, s, newMedia("dirty", "Dirty", testEpoch))
	insertTestMedia(t, s, newMedia("clean", "Clean", testEpoch))

	ok, err := s.MarkSynced(ctx, catalog.EntityMedia, "clean", "v7", testEpoch, testEpoch)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.SetSyncVersion(ctx, catalog.EntityMedia, "dirty", "v3"); err != nil {
			return err
		}

		return tx.SetSyncVersion(ctx, catalog.EntityMedia, "clean", "v3")
	}))

	m, err := s.GetMedia(ctx, "dirty")
	require.NoError(t, err)
	assert.False(t, m.IsSynced)
	assert.Equal(t, "v3", m.SyncVersion)

	m, err = s.GetMedia(ctx, "clean")
	require.NoError(t, err)
	assert.Equal(t, "v7", m.SyncVersion, "acknowledged version is kept")
}

func TestConflictLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		return tx.RecordConflict(ctx, catalog.ConflictRecord{
			EntityType:      catalog.EntityMedia,
			EntityID:        "m1",
			Resolution:      catalog.RemoteWins,
			LocalUpdatedAt:  testEpoch.Add(-time.Minute),
			RemoteUpdatedAt: testEpoch,
			LosingPayload:   []byte(`{"id":"m1","title":"Local"}`),
		})
	}))

	recs, err := s.ListConflicts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEmpty(t, recs[0].ID)
	assert.Equal(t, catalog.RemoteWins, recs[0].Resolution)
	assert.JSONEq(t, `{"id":"m1","title":"Local"}`, string(recs[0].LosingPayload))
	assert.True(t, testEpoch.Equal(recs[0].DetectedAt))
}
