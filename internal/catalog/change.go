package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the kind of mutation a queued Change records.
type Operation string

// Queue operations.
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ParseOperation converts a string to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpCreate, OpUpdate, OpDelete:
		return Operation(s), nil
	default:
		return "", fmt.Errorf("catalog: unknown operation %q", s)
	}
}

// Change is a durable record of a mutation pending remote application.
// ID is deterministic per entity (see ChangeID) so repeated edits of the
// same entity collapse into one entry.
type Change struct {
	ID            string          `json:"id"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Operation     Operation       `json:"operation"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	RetryCount    int             `json:"retry_count"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// ChangeID returns the queue key for an entity.
func ChangeID(t EntityType, entityID string) string {
	return string(t) + ":" + entityID
}

// NewChange builds a Change for entity, encoding it as the payload.
// Deletes carry no payload.
func NewChange(t EntityType, entityID string, op Operation, entity any, now time.Time) (Change, error) {
	c := Change{
		ID:         ChangeID(t, entityID),
		EntityType: t,
		EntityID:   entityID,
		Operation:  op,
		Timestamp:  now.UTC(),
	}

	if op == OpDelete || entity == nil {
		return c, nil
	}

	payload, err := json.Marshal(entity)
	if err != nil {
		return Change{}, fmt.Errorf("catalog: encoding %s payload: %w", t, err)
	}

	c.Payload = payload

	return c, nil
}

// Coalesce merges an incoming change into an existing pending one for the
// same entity. It returns the entry to store and false when the pair
// cancels out (a create that was never attempted against the remote, then
// deleted). A create with failed attempts may have been applied remotely
// before the failure was observed: an edit on top of it becomes an update
// and a delete is kept. A fresh edit starts with clean retry bookkeeping.
func Coalesce(existing, incoming Change) (Change, bool) {
	merged := incoming
	attempted := existing.RetryCount > 0

	switch {
	case existing.Operation == OpCreate && incoming.Operation == OpDelete:
		if !attempted {
			return Change{}, false
		}
	case existing.Operation == OpCreate && incoming.Operation == OpUpdate:
		if !attempted {
			merged.Operation = OpCreate
		}
	case existing.Operation == OpDelete && incoming.Operation == OpCreate:
		merged.Operation = OpUpdate
	}

	return merged, true
}

// DecodePayload decodes and validates a queued payload for the change's
// entity type. The returned value is *MediaItem, *Actor, or *Collection.
func (c *Change) DecodePayload() (any, error) {
	if len(c.Payload) == 0 {
		return nil, &ValidationError{Field: "payload", Rule: "required"}
	}

	var target any

	switch c.EntityType {
	case EntityMedia:
		target = &MediaItem{}
	case EntityActor:
		target = &Actor{}
	case EntityCollection:
		target = &Collection{}
	default:
		return nil, fmt.Errorf("catalog: unknown entity type %q in change %s", c.EntityType, c.ID)
	}

	if err := json.Unmarshal(c.Payload, target); err != nil {
		return nil, &ValidationError{Field: "payload", Rule: "json", Value: err.Error()}
	}

	if err := ValidateStruct(target); err != nil {
		return nil, err
	}

	return target, nil
}

// PermanentlyFailed reports whether the change exhausted its retries.
func (c *Change) PermanentlyFailed(maxRetries int) bool {
	return maxRetries > 0 && c.RetryCount >= maxRetries
}

// Deferred reports whether the change is inside its backoff window at now.
func (c *Change) Deferred(now time.Time) bool {
	return c.NextAttemptAt != nil && now.Before(*c.NextAttemptAt)
}
