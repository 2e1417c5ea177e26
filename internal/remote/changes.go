package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// ChangePage is one page of the remote change feed for an entity type.
type ChangePage struct {
	Records    []catalog.Entity
	Deleted    []catalog.Tombstone
	NextCursor string
	HasMore    bool
}

type changePageResponse struct {
	Records    []json.RawMessage   `json:"records"`
	Deleted    []catalog.Tombstone `json:"deleted"`
	NextCursor string              `json:"next_cursor"`
	HasMore    bool                `json:"has_more"`
}

// Changes fetches records of type t changed since cursor. An empty cursor
// starts from the beginning of the feed. Records are returned marked
// synced.
func (c *Client) Changes(ctx context.Context, t catalog.EntityType, cursor string, limit int) (*ChangePage, error) {
	if _, err := collectionPath(t); err != nil {
		return nil, err
	}

	v := url.Values{}
	if cursor != "" {
		v.Set("since", cursor)
	}

	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}

	base := "/api/changes/" + string(t)
	path := base
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var raw changePageResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, toNetworkError(ctx, "GET "+base, t, "", err)
	}

	page := &ChangePage{
		Records:    make([]catalog.Entity, 0, len(raw.Records)),
		Deleted:    raw.Deleted,
		NextCursor: raw.NextCursor,
		HasMore:    raw.HasMore,
	}

	for i, rec := range raw.Records {
		e, err := catalog.NewEntity(t)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(rec, e); err != nil {
			return nil, &catalog.NetworkError{
				Op:  "GET " + base,
				Err: fmt.Errorf("%w: record %d: %w", ErrBadResponse, i, err),
			}
		}

		markCanonical(e.Meta())
		page.Records = append(page.Records, e)
	}

	if page.HasMore && page.NextCursor == cursor {
		return nil, &catalog.NetworkError{
			Op:  "GET " + base,
			Err: fmt.Errorf("%w: has_more without advancing cursor", ErrBadResponse),
		}
	}

	return page, nil
}

// Notification signals that the remote feed for EntityType moved past
// Cursor.
type Notification struct {
	EntityType catalog.EntityType `json:"entity_type"`
	Cursor     string             `json:"cursor"`
}

// notifyPath is the websocket change-feed endpoint.
const notifyPath = "/api/changes/ws"

// Subscribe opens the websocket change feed. Notifications are delivered on
// the returned channel, which is closed when ctx is done or the connection
// fails. The dial itself is not retried; callers fall back to polling.
func (c *Client) Subscribe(ctx context.Context) (<-chan Notification, error) {
	wsURL, err := websocketURL(c.baseURL + notifyPath)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("User-Agent", userAgent)

	if c.token != nil {
		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("remote: obtaining token: %w", err)
		}

		header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	}

	opts := &websocket.DialOptions{HTTPHeader: header}

	// The websocket library rejects clients with a fixed Timeout.
	if c.httpClient.Timeout == 0 {
		opts.HTTPClient = c.httpClient
	}

	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return nil, toNetworkError(ctx, "DIAL "+notifyPath, "", "", err)
	}

	out := make(chan Notification, 16)

	go c.readNotifications(ctx, conn, out)

	return out, nil
}

func (c *Client) readNotifications(ctx context.Context, conn *websocket.Conn, out chan<- Notification) {
	defer close(out)
	defer conn.CloseNow()

	for {
		var n Notification
		if err := wsjson.Read(ctx, conn, &n); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("change feed closed", slog.String("error", err.Error()))
			}

			return
		}

		if _, err := catalog.ParseEntityType(string(n.EntityType)); err != nil {
			c.logger.Debug("ignoring change notification", slog.String("entity_type", string(n.EntityType)))
			continue
		}

		select {
		case out <- n:
		case <-ctx.Done():
			return
		}
	}
}

func websocketURL(raw string) (string, error) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://"), nil
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://"), nil
	default:
		return "", fmt.Errorf("remote: unsupported base URL %q", raw)
	}
}
