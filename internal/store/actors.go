package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

const actorColumns = `id, name, aliases, birth_date, created_at, updated_at,
	is_synced, last_synced_at, sync_version`

const (
	sqlGetActor = `SELECT ` + actorColumns + ` FROM actors WHERE id = ?`

	sqlInsertActor = `INSERT INTO actors
		(id, name, aliases, birth_date, sort_key, search_text, created_at,
		 updated_at, is_synced, last_synced_at, sync_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpsertActor = sqlInsertActor + `
		ON CONFLICT(id) DO UPDATE SET
		 name = excluded.name,
		 aliases = excluded.aliases,
		 birth_date = excluded.birth_date,
		 sort_key = excluded.sort_key,
		 search_text = excluded.search_text,
		 created_at = excluded.created_at,
		 updated_at = excluded.updated_at,
		 is_synced = excluded.is_synced,
		 last_synced_at = excluded.last_synced_at,
		 sync_version = excluded.sync_version`

	sqlUpdateActor = `UPDATE actors SET
		 name = ?, aliases = ?, birth_date = ?, sort_key = ?, search_text = ?,
		 updated_at = ?, is_synced = ?, last_synced_at = ?, sync_version = ?
		WHERE id = ?`

	sqlDeleteActorRow = `DELETE FROM actors WHERE id = ?`
)

var actorSortColumns = map[catalog.SortKey]string{
	catalog.SortName:      "sort_key",
	catalog.SortCreatedAt: "created_at",
	catalog.SortUpdatedAt: "updated_at",
}

func scanActor(row scanner) (*catalog.Actor, error) {
	var (
		a            catalog.Actor
		aliases      string
		birthDate    sql.NullInt64
		createdAt    int64
		updatedAt    int64
		isSynced     int
		lastSyncedAt sql.NullInt64
	)

	err := row.Scan(
		&a.ID, &a.Name, &aliases, &birthDate, &createdAt, &updatedAt,
		&isSynced, &lastSyncedAt, &a.SyncVersion,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(aliases), &a.Aliases); err != nil {
		return nil, fmt.Errorf("store: decoding aliases for actor %s: %w", a.ID, err)
	}

	a.BirthDate = timePtr(birthDate)
	a.CreatedAt = fromNanos(createdAt)
	a.UpdatedAt = fromNanos(updatedAt)
	a.IsSynced = isSynced != 0
	a.LastSyncedAt = timePtr(lastSyncedAt)

	return &a, nil
}

func actorArgs(a *catalog.Actor) ([]any, error) {
	aliases, err := encodeList(a.Aliases)
	if err != nil {
		return nil, fmt.Errorf("store: encoding aliases for actor %s: %w", a.ID, err)
	}

	return []any{
		a.ID, a.Name, aliases, nullTime(a.BirthDate),
		catalog.FoldKeyword(a.Name), searchText(append([]string{a.Name}, a.Aliases...)...),
		toNanos(a.CreatedAt), toNanos(a.UpdatedAt),
		boolInt(a.IsSynced), nullTime(a.LastSyncedAt), a.SyncVersion,
	}, nil
}

func getActor(ctx context.Context, q queryer, id string) (*catalog.Actor, error) {
	a, err := scanActor(q.QueryRowContext(ctx, sqlGetActor, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.NewNotFound(catalog.EntityActor, id)
	}

	if err != nil {
		return nil, catalog.WrapDB("get actor", err)
	}

	return a, nil
}

func insertActor(ctx context.Context, q queryer, a *catalog.Actor) error {
	args, err := actorArgs(a)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, sqlInsertActor, args...); err != nil {
		if isUniqueViolation(err) {
			return catalog.NewAlreadyExists(catalog.EntityActor, a.ID)
		}

		return catalog.WrapDB("insert actor", err)
	}

	return nil
}

func putActor(ctx context.Context, q queryer, a *catalog.Actor) error {
	args, err := actorArgs(a)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, sqlUpsertActor, args...); err != nil {
		return catalog.WrapDB("upsert actor", err)
	}

	return nil
}

func updateActor(ctx context.Context, q queryer, a *catalog.Actor) error {
	args, err := actorArgs(a)
	if err != nil {
		return err
	}

	// Drop id (0) and created_at (6); id moves to the WHERE clause.
	updateArgs := append(append([]any{}, args[1:6]...), args[7:]...)
	updateArgs = append(updateArgs, a.ID)

	res, err := q.ExecContext(ctx, sqlUpdateActor, updateArgs...)
	if err != nil {
		return catalog.WrapDB("update actor", err)
	}

	return requireAffected(res, catalog.EntityActor, a.ID)
}

func queryActors(ctx context.Context, q queryer, query catalog.Query) (catalog.Page[catalog.Actor], error) {
	query = query.Normalized(catalog.EntityActor)
	page := catalog.Page[catalog.Actor]{Limit: query.Limit, Offset: query.Offset}

	var f filter
	f.addKeyword(query.Keyword)

	if query.MediaID != "" {
		f.add("id IN (SELECT actor_id FROM media_actors WHERE media_id = ?)", query.MediaID)
	}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM actors"+f.where(), f.args...).Scan(&page.Total); err != nil {
		return page, catalog.WrapDB("count actors", err)
	}

	column, ok := actorSortColumns[query.Sort]
	if !ok {
		return page, &catalog.ValidationError{Field: "sort", Rule: "oneof", Value: string(query.Sort)}
	}

	stmt := "SELECT " + actorColumns + " FROM actors" + f.where() +
		orderBy(column, false, query.Desc) + " LIMIT ? OFFSET ?"

	rows, err := q.QueryContext(ctx, stmt, append(f.args, query.Limit, query.Offset)...)
	if err != nil {
		return page, catalog.WrapDB("query actors", err)
	}

	if page.Items, err = collectRows(rows, scanActor, "query actors"); err != nil {
		return page, err
	}

	return page, nil
}

// deleteActor removes an actor and its links and returns the ids of media
// items that lost a link.
func deleteActor(ctx context.Context, q queryer, id string) ([]string, error) {
	if _, err := getActor(ctx, q, id); err != nil {
		return nil, err
	}

	mediaIDs, err := listStrings(ctx, q, "list media links", sqlListMediaIDsForActor, id)
	if err != nil {
		return nil, err
	}

	if _, err := q.ExecContext(ctx, sqlDeleteActorLinksByActor, id); err != nil {
		return nil, catalog.WrapDB("delete actor links", err)
	}

	if _, err := q.ExecContext(ctx, sqlDeleteActorRow, id); err != nil {
		return nil, catalog.WrapDB("delete actor", err)
	}

	return mediaIDs, nil
}

// GetActor returns an actor.
func (s *Store) GetActor(ctx context.Context, id string) (*catalog.Actor, error) {
	return getActor(ctx, s.db, id)
}

// QueryActors returns one page of actors matching query.
func (s *Store) QueryActors(ctx context.Context, query catalog.Query) (catalog.Page[catalog.Actor], error) {
	return queryActors(ctx, s.db, query)
}

// GetActor reads an actor inside the transaction.
func (t *Tx) GetActor(ctx context.Context, id string) (*catalog.Actor, error) {
	return getActor(ctx, t.tx, id)
}

// InsertActor stores a new actor. A duplicate id is AlreadyExists.
func (t *Tx) InsertActor(ctx context.Context, a *catalog.Actor) error {
	return insertActor(ctx, t.tx, a)
}

// UpdateActor replaces an actor's fields and sync metadata.
func (t *Tx) UpdateActor(ctx context.Context, a *catalog.Actor) error {
	return updateActor(ctx, t.tx, a)
}

// DeleteActor removes an actor and its media links. It returns the ids of
// the media items whose actor list changed.
func (t *Tx) DeleteActor(ctx context.Context, id string) ([]string, error) {
	return deleteActor(ctx, t.tx, id)
}
