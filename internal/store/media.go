package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

const mediaColumns = `id, title, original_title, media_type, studio, series,
	release_date, runtime_minutes, tags, created_at, updated_at,
	is_synced, last_synced_at, sync_version`

const (
	sqlGetMedia = `SELECT ` + mediaColumns + ` FROM media WHERE id = ?`

	sqlInsertMedia = `INSERT INTO media
		(id, title, original_title, media_type, studio, series, release_date,
		 runtime_minutes, tags, sort_key, search_text, created_at, updated_at,
		 is_synced, last_synced_at, sync_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpsertMedia = sqlInsertMedia + `
		ON CONFLICT(id) DO UPDATE SET
		 title = excluded.title,
		 original_title = excluded.original_title,
		 media_type = excluded.media_type,
		 studio = excluded.studio,
		 series = excluded.series,
		 release_date = excluded.release_date,
		 runtime_minutes = excluded.runtime_minutes,
		 tags = excluded.tags,
		 sort_key = excluded.sort_key,
		 search_text = excluded.search_text,
		 created_at = excluded.created_at,
		 updated_at = excluded.updated_at,
		 is_synced = excluded.is_synced,
		 last_synced_at = excluded.last_synced_at,
		 sync_version = excluded.sync_version`

	sqlUpdateMedia = `UPDATE media SET
		 title = ?, original_title = ?, media_type = ?, studio = ?, series = ?,
		 release_date = ?, runtime_minutes = ?, tags = ?, sort_key = ?,
		 search_text = ?, updated_at = ?, is_synced = ?, last_synced_at = ?,
		 sync_version = ?
		WHERE id = ?`

	sqlDeleteMediaRow          = `DELETE FROM media WHERE id = ?`
	sqlDeleteMediaCollection   = `DELETE FROM collections WHERE media_id = ?`
	sqlDeleteMediaActorLinks   = `DELETE FROM media_actors WHERE media_id = ?`
	sqlInsertMediaActorLink    = `INSERT OR IGNORE INTO media_actors (media_id, actor_id) VALUES (?, ?)`
	sqlListActorIDsForMedia    = `SELECT actor_id FROM media_actors WHERE media_id = ? ORDER BY actor_id`
	sqlListMediaIDsForActor    = `SELECT media_id FROM media_actors WHERE actor_id = ? ORDER BY media_id`
	sqlDeleteActorLinksByActor = `DELETE FROM media_actors WHERE actor_id = ?`
)

// Cascade sub-steps reported to the test hook.
const (
	stepCollection = "collection"
	stepActorLinks = "actor_links"
	stepQueue      = "queue"
	stepMedia      = "media"
)

var mediaSortColumns = map[catalog.SortKey]struct {
	column   string
	nullable bool
}{
	catalog.SortTitle:       {"sort_key", false},
	catalog.SortReleaseDate: {"release_date", true},
	catalog.SortCreatedAt:   {"created_at", false},
	catalog.SortUpdatedAt:   {"updated_at", false},
}

func scanMedia(row scanner) (*catalog.MediaItem, error) {
	var (
		m            catalog.MediaItem
		releaseDate  sql.NullInt64
		tags         string
		createdAt    int64
		updatedAt    int64
		isSynced     int
		lastSyncedAt sql.NullInt64
	)

	err := row.Scan(
		&m.ID, &m.Title, &m.OriginalTitle, &m.Type, &m.Studio, &m.Series,
		&releaseDate, &m.RuntimeMinutes, &tags, &createdAt, &updatedAt,
		&isSynced, &lastSyncedAt, &m.SyncVersion,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("store: decoding tags for media %s: %w", m.ID, err)
	}

	m.ReleaseDate = timePtr(releaseDate)
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	m.IsSynced = isSynced != 0
	m.LastSyncedAt = timePtr(lastSyncedAt)

	return &m, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}

	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func mediaArgs(m *catalog.MediaItem) ([]any, error) {
	tags, err := encodeList(m.Tags)
	if err != nil {
		return nil, fmt.Errorf("store: encoding tags for media %s: %w", m.ID, err)
	}

	return []any{
		m.ID, m.Title, m.OriginalTitle, m.Type, m.Studio, m.Series,
		nullTime(m.ReleaseDate), m.RuntimeMinutes, tags,
		catalog.FoldKeyword(m.Title), searchText(m.Title, m.OriginalTitle),
		toNanos(m.CreatedAt), toNanos(m.UpdatedAt),
		boolInt(m.IsSynced), nullTime(m.LastSyncedAt), m.SyncVersion,
	}, nil
}

func getMedia(ctx context.Context, q queryer, id string) (*catalog.MediaItem, error) {
	m, err := scanMedia(q.QueryRowContext(ctx, sqlGetMedia, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound(catalog.EntityMedia, id)
	}

	if err != nil {
		return nil, catalog.WrapDB("get media", err)
	}

	if m.ActorIDs, err = actorIDsForMedia(ctx, q, id); err != nil {
		return nil, err
	}

	return m, nil
}

func actorIDsForMedia(ctx context.Context, q queryer, mediaID string) ([]string, error) {
	return listStrings(ctx, q, "list actor links", sqlListActorIDsForMedia, mediaID)
}

func listStrings(ctx context.Context, q queryer, op, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, catalog.WrapDB(op, err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, catalog.WrapDB(op, err)
		}

		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, catalog.WrapDB(op, err)
	}

	return out, nil
}

// replaceActorLinks rewrites the join rows of a media item to match ids.
func replaceActorLinks(ctx context.Context, q queryer, mediaID string, ids []string) error {
	if _, err := q.ExecContext(ctx, sqlDeleteMediaActorLinks, mediaID); err != nil {
		return catalog.WrapDB("clear actor links", err)
	}

	for _, actorID := range ids {
		if _, err := q.ExecContext(ctx, sqlInsertMediaActorLink, mediaID, actorID); err != nil {
			return catalog.WrapDB("insert actor link", err)
		}
	}

	return nil
}

func insertMedia(ctx context.Context, q queryer, m *catalog.MediaItem) error {
	args, err := mediaArgs(m)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, sqlInsertMedia, args...); err != nil {
		if isUniqueViolation(err) {
			return catalog.NewAlreadyExists(catalog.EntityMedia, m.ID)
		}

		return catalog.WrapDB("insert media", err)
	}

	return replaceActorLinks(ctx, q, m.ID, m.ActorIDs)
}

// putMedia inserts or fully replaces a media row and its join rows.
func putMedia(ctx context.Context, q queryer, m *catalog.MediaItem) error {
	args, err := mediaArgs(m)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, sqlUpsertMedia, args...); err != nil {
		return catalog.WrapDB("upsert media", err)
	}

	return replaceActorLinks(ctx, q, m.ID, m.ActorIDs)
}

func updateMedia(ctx context.Context, q queryer, m *catalog.MediaItem) error {
	args, err := mediaArgs(m)
	if err != nil {
		return err
	}

	// mediaArgs order: id first, created_at at index 11. UPDATE keeps
	// created_at and moves id to the WHERE clause.
	updateArgs := append(append([]any{}, args[1:11]...), args[12:]...)
	updateArgs = append(updateArgs, m.ID)

	res, err := q.ExecContext(ctx, sqlUpdateMedia, updateArgs...)
	if err != nil {
		return catalog.WrapDB("update media", err)
	}

	if err := requireAffected(res, catalog.EntityMedia, m.ID); err != nil {
		return err
	}

	return replaceActorLinks(ctx, q, m.ID, m.ActorIDs)
}

func queryMedia(ctx context.Context, q queryer, query catalog.Query) (catalog.Page[catalog.MediaItem], error) {
	query = query.Normalized(catalog.EntityMedia)
	page := catalog.Page[catalog.MediaItem]{Limit: query.Limit, Offset: query.Offset}

	var f filter
	f.addEq("media_type", query.Type)
	f.addEq("studio", catalog.NormalizeText(query.Studio))
	f.addEq("series", catalog.NormalizeText(query.Series))
	f.addKeyword(query.Keyword)

	if query.ActorID != "" {
		f.add("id IN (SELECT media_id FROM media_actors WHERE actor_id = ?)", query.ActorID)
	}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM media"+f.where(), f.args...).Scan(&page.Total); err != nil {
		return page, catalog.WrapDB("count media", err)
	}

	sortCol, ok := mediaSortColumns[query.Sort]
	if !ok {
		return page, &catalog.ValidationError{Field: "sort", Rule: "oneof", Value: string(query.Sort)}
	}

	stmt := "SELECT " + mediaColumns + " FROM media" + f.where() +
		orderBy(sortCol.column, sortCol.nullable, query.Desc) + " LIMIT ? OFFSET ?"
	args := append(f.args, query.Limit, query.Offset)

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return page, catalog.WrapDB("query media", err)
	}

	items, err := collectRows(rows, scanMedia, "query media")
	if err != nil {
		return page, err
	}

	// Join rows are loaded after the result set is closed: the store holds
	// a single connection.
	for i := range items {
		if items[i].ActorIDs, err = actorIDsForMedia(ctx, q, items[i].ID); err != nil {
			return page, err
		}
	}

	page.Items = items

	return page, nil
}

// collectRows drains rows through scan and closes them.
func collectRows[T any](rows *sql.Rows, scan func(scanner) (*T, error), op string) ([]T, error) {
	defer rows.Close()

	items := []T{}

	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, catalog.WrapDB(op, err)
		}

		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, catalog.WrapDB(op, err)
	}

	return items, nil
}

// deleteMediaCascade removes a media item, its collection, its actor links,
// and the collection's pending queue entry. It must run inside a
// transaction; any failure leaves the caller to roll back.
func (t *Tx) deleteMediaCascade(ctx context.Context, id string) error {
	if _, err := getMedia(ctx, t.tx, id); err != nil {
		return err
	}

	steps := []struct {
		name  string
		query string
		arg   string
	}{
		{stepCollection, sqlDeleteMediaCollection, id},
		{stepActorLinks, sqlDeleteMediaActorLinks, id},
		{stepQueue, sqlDeleteChange, catalog.ChangeID(catalog.EntityCollection, id)},
		{stepMedia, sqlDeleteMediaRow, id},
	}

	for _, step := range steps {
		if _, err := t.tx.ExecContext(ctx, step.query, step.arg); err != nil {
			return catalog.WrapDB("delete media "+step.name, err)
		}

		if hook := t.store.cascadeHook; hook != nil {
			if err := hook(step.name); err != nil {
				return catalog.WrapDB("delete media "+step.name, err)
			}
		}
	}

	t.store.logger.Debug("media deleted", slog.String("media_id", id))

	return nil
}

// ---------------------------------------------------------------------------
// Public API
// ---------------------------------------------------------------------------

// GetMedia returns a media item with its actor ids.
func (s *Store) GetMedia(ctx context.Context, id string) (*catalog.MediaItem, error) {
	return getMedia(ctx, s.db, id)
}

// QueryMedia returns one page of media matching query.
func (s *Store) QueryMedia(ctx context.Context, query catalog.Query) (catalog.Page[catalog.MediaItem], error) {
	return queryMedia(ctx, s.db, query)
}

// DeleteMedia removes a media item and everything that hangs off it in one
// transaction.
func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.DeleteMedia(ctx, id)
	})
}

// GetMedia reads a media item inside the transaction.
func (t *Tx) GetMedia(ctx context.Context, id string) (*catalog.MediaItem, error) {
	return getMedia(ctx, t.tx, id)
}

// InsertMedia stores a new media item. A duplicate id is AlreadyExists.
func (t *Tx) InsertMedia(ctx context.Context, m *catalog.MediaItem) error {
	return insertMedia(ctx, t.tx, m)
}

// UpdateMedia replaces a media item's fields, sync metadata, and actor
// links. created_at is preserved.
func (t *Tx) UpdateMedia(ctx context.Context, m *catalog.MediaItem) error {
	return updateMedia(ctx, t.tx, m)
}

// DeleteMedia runs the media delete cascade. A missing id is NotFound.
func (t *Tx) DeleteMedia(ctx context.Context, id string) error {
	return t.deleteMediaCascade(ctx, id)
}

// LinkActor adds an actor link to a media item. Linking is idempotent.
func (t *Tx) LinkActor(ctx context.Context, mediaID, actorID string) error {
	if _, err := t.tx.ExecContext(ctx, sqlInsertMediaActorLink, mediaID, actorID); err != nil {
		if isForeignKeyViolation(err) {
			return catalog.NewNotFound(catalog.EntityMedia, mediaID)
		}

		return catalog.WrapDB("link actor", err)
	}

	return nil
}

// UnlinkActor removes an actor link. Removing a missing link is a no-op.
func (t *Tx) UnlinkActor(ctx context.Context, mediaID, actorID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM media_actors WHERE media_id = ? AND actor_id = ?`, mediaID, actorID)
	if err != nil {
		return catalog.WrapDB("unlink actor", err)
	}

	return nil
}

// MediaIDsForActor returns the ids of media items linked to an actor.
func (t *Tx) MediaIDsForActor(ctx context.Context, actorID string) ([]string, error) {
	return listStrings(ctx, t.tx, "list media links", sqlListMediaIDsForActor, actorID)
}
