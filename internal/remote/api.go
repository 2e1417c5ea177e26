package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// maxResponseSize bounds JSON response bodies.
const maxResponseSize = 32 << 20

func collectionPath(t catalog.EntityType) (string, error) {
	switch t {
	case catalog.EntityMedia:
		return "/api/media", nil
	case catalog.EntityActor:
		return "/api/actors", nil
	case catalog.EntityCollection:
		return "/api/collections", nil
	default:
		return "", fmt.Errorf("remote: unknown entity type %q", t)
	}
}

func entityPath(t catalog.EntityType, key string) (string, error) {
	base, err := collectionPath(t)
	if err != nil {
		return "", err
	}

	return base + "/" + url.PathEscape(key), nil
}

// decodeJSON reads the response body into out and closes it.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	return nil
}

// doJSON sends in (if non-nil) and decodes the response into out (if
// non-nil). Errors are returned raw; callers translate them.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("remote: encoding request for %s: %w", path, err)
		}
	}

	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return nil
	}

	return decodeJSON(resp, out)
}

// getEntity fetches one entity by key.
func getEntity[T any, PT interface {
	*T
	catalog.Entity
}](ctx context.Context, c *Client, t catalog.EntityType, key string) (PT, error) {
	path, err := entityPath(t, key)
	if err != nil {
		return nil, err
	}

	out := PT(new(T))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, out); err != nil {
		return nil, toNetworkError(ctx, "GET "+path, t, key, err)
	}

	markCanonical(out.Meta())

	return out, nil
}

// putEntity creates or replaces an entity at its key and returns the
// canonical record.
func putEntity[PT catalog.Entity](ctx context.Context, c *Client, method string, e PT) (PT, error) {
	var zero PT

	var (
		path string
		err  error
	)

	if method == http.MethodPost {
		path, err = collectionPath(e.Kind())
	} else {
		path, err = entityPath(e.Kind(), e.Key())
	}

	if err != nil {
		return zero, err
	}

	out, err := catalog.NewEntity(e.Kind())
	if err != nil {
		return zero, err
	}

	if err := c.doJSON(ctx, method, path, e, out); err != nil {
		return zero, toNetworkError(ctx, method+" "+path, e.Kind(), e.Key(), err)
	}

	typed, ok := out.(PT)
	if !ok {
		return zero, fmt.Errorf("remote: unexpected entity %T", out)
	}

	markCanonical(typed.Meta())

	return typed, nil
}

// markCanonical flags a record received from the remote as synced.
func markCanonical(m *catalog.SyncMeta) {
	m.IsSynced = true
}

// listEntities fetches one page of a list endpoint.
func listEntities[T any](ctx context.Context, c *Client, t catalog.EntityType, q catalog.Query) (catalog.Page[T], error) {
	base, err := collectionPath(t)
	if err != nil {
		return catalog.Page[T]{}, err
	}

	path := base + "?" + encodeQuery(t, q).Encode()

	var page catalog.Page[T]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
		return catalog.Page[T]{}, toNetworkError(ctx, "GET "+base, t, "", err)
	}

	if page.Items == nil {
		page.Items = []T{}
	}

	for i := range page.Items {
		if e, ok := any(&page.Items[i]).(catalog.Entity); ok {
			markCanonical(e.Meta())
		}
	}

	return page, nil
}

func encodeQuery(t catalog.EntityType, q catalog.Query) url.Values {
	q = q.Normalized(t)
	v := url.Values{}

	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}

	set("type", q.Type)
	set("studio", q.Studio)
	set("series", q.Series)
	set("q", q.Keyword)
	set("actor", q.ActorID)
	set("media", q.MediaID)
	set("status", q.Status)

	if q.Favorite != nil {
		v.Set("favorite", strconv.FormatBool(*q.Favorite))
	}

	v.Set("sort", string(q.Sort))

	if q.Desc {
		v.Set("order", "desc")
	} else {
		v.Set("order", "asc")
	}

	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))

	return v
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// GetMedia fetches a media item.
func (c *Client) GetMedia(ctx context.Context, id string) (*catalog.MediaItem, error) {
	return getEntity[catalog.MediaItem](ctx, c, catalog.EntityMedia, id)
}

// ListMedia fetches one page of media.
func (c *Client) ListMedia(ctx context.Context, q catalog.Query) (catalog.Page[catalog.MediaItem], error) {
	return listEntities[catalog.MediaItem](ctx, c, catalog.EntityMedia, q)
}

// ---------------------------------------------------------------------------
// Actors
// ---------------------------------------------------------------------------

// GetActor fetches an actor.
func (c *Client) GetActor(ctx context.Context, id string) (*catalog.Actor, error) {
	return getEntity[catalog.Actor](ctx, c, catalog.EntityActor, id)
}

// ListActors fetches one page of actors.
func (c *Client) ListActors(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Actor], error) {
	return listEntities[catalog.Actor](ctx, c, catalog.EntityActor, q)
}

// ---------------------------------------------------------------------------
// Collections (addressed by media id)
// ---------------------------------------------------------------------------

// GetCollection fetches the collection entry for a media item.
func (c *Client) GetCollection(ctx context.Context, mediaID string) (*catalog.Collection, error) {
	return getEntity[catalog.Collection](ctx, c, catalog.EntityCollection, mediaID)
}

// ListCollections fetches one page of collection entries.
func (c *Client) ListCollections(ctx context.Context, q catalog.Query) (catalog.Page[catalog.Collection], error) {
	return listEntities[catalog.Collection](ctx, c, catalog.EntityCollection, q)
}

// ---------------------------------------------------------------------------
// Entity-generic operations used by the repository and sync engine
// ---------------------------------------------------------------------------

// Upsert creates or replaces e at its key (PUT) and returns the canonical
// record, marked synced.
func (c *Client) Upsert(ctx context.Context, e catalog.Entity) (catalog.Entity, error) {
	return putEntity(ctx, c, http.MethodPut, e)
}

// Create creates e (POST) and returns the canonical record, marked synced.
func (c *Client) Create(ctx context.Context, e catalog.Entity) (catalog.Entity, error) {
	return putEntity(ctx, c, http.MethodPost, e)
}

// Get fetches any entity by its key.
func (c *Client) Get(ctx context.Context, t catalog.EntityType, key string) (catalog.Entity, error) {
	var (
		e   catalog.Entity
		err error
	)

	switch t {
	case catalog.EntityMedia:
		e, err = getEntity[catalog.MediaItem](ctx, c, t, key)
	case catalog.EntityActor:
		e, err = getEntity[catalog.Actor](ctx, c, t, key)
	case catalog.EntityCollection:
		e, err = getEntity[catalog.Collection](ctx, c, t, key)
	default:
		return nil, fmt.Errorf("remote: unknown entity type %q", t)
	}

	if err != nil {
		return nil, err
	}

	return e, nil
}

// Delete removes an entity by key. A missing entity is NotFound.
func (c *Client) Delete(ctx context.Context, t catalog.EntityType, key string) error {
	path, err := entityPath(t, key)
	if err != nil {
		return err
	}

	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return toNetworkError(ctx, "DELETE "+path, t, key, err)
	}

	return nil
}

// Health reports whether GET /api/health answered 2xx.
func (c *Client) Health(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodGet, "/api/health", nil, nil); err != nil {
		return toNetworkError(ctx, "GET /api/health", "", "", err)
	}

	return nil
}
