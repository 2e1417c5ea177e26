package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

const collectionColumns = `id, media_id, personal_rating, watch_progress, status,
	favorite, notes, watched_at, created_at, updated_at, is_synced,
	last_synced_at, sync_version`

const (
	sqlGetCollectionByMedia = `SELECT ` + collectionColumns + ` FROM collections WHERE media_id = ?`
	sqlGetCollection        = `SELECT ` + collectionColumns + ` FROM collections WHERE id = ?`

	sqlInsertCollection = `INSERT INTO collections
		(id, media_id, personal_rating, watch_progress, status, favorite, notes,
		 watched_at, created_at, updated_at, is_synced, last_synced_at, sync_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// Collections are addressed by media_id across the sync boundary, so a
	// pulled record replaces the local row for the same media item even
	// when the two sides minted different ids.
	sqlUpsertCollection = sqlInsertCollection + `
		ON CONFLICT(media_id) DO UPDATE SET
		 id = excluded.id,
		 personal_rating = excluded.personal_rating,
		 watch_progress = excluded.watch_progress,
		 status = excluded.status,
		 favorite = excluded.favorite,
		 notes = excluded.notes,
		 watched_at = excluded.watched_at,
		 created_at = excluded.created_at,
		 updated_at = excluded.updated_at,
		 is_synced = excluded.is_synced,
		 last_synced_at = excluded.last_synced_at,
		 sync_version = excluded.sync_version`

	sqlUpdateCollection = `UPDATE collections SET
		 personal_rating = ?, watch_progress = ?, status = ?, favorite = ?,
		 notes = ?, watched_at = ?, updated_at = ?, is_synced = ?,
		 last_synced_at = ?, sync_version = ?
		WHERE media_id = ?`
)

var collectionSortColumns = map[catalog.SortKey]struct {
	column   string
	nullable bool
}{
	catalog.SortRating:    {"personal_rating", true},
	catalog.SortProgress:  {"watch_progress", false},
	catalog.SortCreatedAt: {"created_at", false},
	catalog.SortUpdatedAt: {"updated_at", false},
}

func scanCollection(row scanner) (*catalog.Collection, error) {
	var (
		c            catalog.Collection
		rating       sql.NullFloat64
		favorite     int
		watchedAt    sql.NullInt64
		createdAt    int64
		updatedAt    int64
		isSynced     int
		lastSyncedAt sql.NullInt64
	)

	err := row.Scan(
		&c.ID, &c.MediaID, &rating, &c.WatchProgress, &c.Status,
		&favorite, &c.Notes, &watchedAt, &createdAt, &updatedAt, &isSynced,
		&lastSyncedAt, &c.SyncVersion,
	)
	if err != nil {
		return nil, err
	}

	c.PersonalRating = floatPtr(rating)
	c.Favorite = favorite != 0
	c.WatchedAt = timePtr(watchedAt)
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	c.IsSynced = isSynced != 0
	c.LastSyncedAt = timePtr(lastSyncedAt)

	return &c, nil
}

func collectionArgs(c *catalog.Collection) []any {
	return []any{
		c.ID, c.MediaID, nullFloat(c.PersonalRating), c.WatchProgress, c.Status,
		boolInt(c.Favorite), c.Notes, nullTime(c.WatchedAt),
		toNanos(c.CreatedAt), toNanos(c.UpdatedAt),
		boolInt(c.IsSynced), nullTime(c.LastSyncedAt), c.SyncVersion,
	}
}

func getCollectionByMedia(ctx context.Context, q queryer, mediaID string) (*catalog.Collection, error) {
	c, err := scanCollection(q.QueryRowContext(ctx, sqlGetCollectionByMedia, mediaID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound(catalog.EntityCollection, mediaID)
	}

	if err != nil {
		return nil, catalog.WrapDB("get collection", err)
	}

	return c, nil
}

func insertCollection(ctx context.Context, q queryer, c *catalog.Collection) error {
	if _, err := q.ExecContext(ctx, sqlInsertCollection, collectionArgs(c)...); err != nil {
		switch {
		case isUniqueViolation(err):
			return catalog.NewAlreadyExists(catalog.EntityCollection, c.MediaID)
		case isForeignKeyViolation(err):
			return catalog.NewNotFound(catalog.EntityMedia, c.MediaID)
		default:
			return catalog.WrapDB("insert collection", err)
		}
	}

	return nil
}

func putCollection(ctx context.Context, q queryer, c *catalog.Collection) error {
	if _, err := q.ExecContext(ctx, sqlUpsertCollection, collectionArgs(c)...); err != nil {
		if isForeignKeyViolation(err) {
			return catalog.NewNotFound(catalog.EntityMedia, c.MediaID)
		}

		return catalog.WrapDB("upsert collection", err)
	}

	return nil
}

func updateCollection(ctx context.Context, q queryer, c *catalog.Collection) error {
	args := collectionArgs(c)

	// Drop id (0), media_id (1), and created_at (8); media_id moves to the
	// WHERE clause.
	updateArgs := append(append([]any{}, args[2:8]...), args[9:]...)
	updateArgs = append(updateArgs, c.MediaID)

	res, err := q.ExecContext(ctx, sqlUpdateCollection, updateArgs...)
	if err != nil {
		return catalog.WrapDB("update collection", err)
	}

	return requireAffected(res, catalog.EntityCollection, c.MediaID)
}

func deleteCollection(ctx context.Context, q queryer, mediaID string) error {
	res, err := q.ExecContext(ctx, sqlDeleteMediaCollection, mediaID)
	if err != nil {
		return catalog.WrapDB("delete collection", err)
	}

	return requireAffected(res, catalog.EntityCollection, mediaID)
}

func queryCollections(ctx context.Context, q queryer, query catalog.Query) (catalog.Page[catalog.Collection], error) {
	query = query.Normalized(catalog.EntityCollection)
	page := catalog.Page[catalog.Collection]{Limit: query.Limit, Offset: query.Offset}

	var f filter
	f.addEq("media_id", query.MediaID)
	f.addEq("status", query.Status)

	if query.Favorite != nil {
		f.add("favorite = ?", boolInt(*query.Favorite))
	}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM collections"+f.where(), f.args...).Scan(&page.Total); err != nil {
		return page, catalog.WrapDB("count collections", err)
	}

	sortCol, ok := collectionSortColumns[query.Sort]
	if !ok {
		return page, &catalog.ValidationError{Field: "sort", Rule: "oneof", Value: string(query.Sort)}
	}

	stmt := "SELECT " + collectionColumns + " FROM collections" + f.where() +
		orderBy(sortCol.column, sortCol.nullable, query.Desc) + " LIMIT ? OFFSET ?"

	rows, err := q.QueryContext(ctx, stmt, append(f.args, query.Limit, query.Offset)...)
	if err != nil {
		return page, catalog.WrapDB("query collections", err)
	}

	if page.Items, err = collectRows(rows, scanCollection, "query collections"); err != nil {
		return page, err
	}

	return page, nil
}

// GetCollectionByMedia returns the collection entry for a media item.
func (s *Store) GetCollectionByMedia(ctx context.Context, mediaID string) (*catalog.Collection, error) {
	return getCollectionByMedia(ctx, s.db, mediaID)
}

// GetCollection returns a collection entry by its own id.
func (s *Store) GetCollection(ctx context.Context, id string) (*catalog.Collection, error) {
	c, err := scanCollection(s.db.QueryRowContext(ctx, sqlGetCollection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound(catalog.EntityCollection, id)
	}

	if err != nil {
		return nil, catalog.WrapDB("get collection", err)
	}

	return c, nil
}

// QueryCollections returns one page of collection entries matching query.
func (s *Store) QueryCollections(ctx context.Context, query catalog.Query) (catalog.Page[catalog.Collection], error) {
	return queryCollections(ctx, s.db, query)
}

// GetCollectionByMedia reads a collection entry inside the transaction.
func (t *Tx) GetCollectionByMedia(ctx context.Context, mediaID string) (*catalog.Collection, error) {
	return getCollectionByMedia(ctx, t.tx, mediaID)
}

// InsertCollection stores a new collection entry. A second entry for the
// same media id is AlreadyExists; a missing media item is NotFound.
func (t *Tx) InsertCollection(ctx context.Context, c *catalog.Collection) error {
	return insertCollection(ctx, t.tx, c)
}

// UpdateCollection replaces the collection entry for c.MediaID.
func (t *Tx) UpdateCollection(ctx context.Context, c *catalog.Collection) error {
	return updateCollection(ctx, t.tx, c)
}

// DeleteCollection removes the collection entry for a media item.
func (t *Tx) DeleteCollection(ctx context.Context, mediaID string) error {
	return deleteCollection(ctx, t.tx, mediaID)
}
