package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

func change(t *testing.T, et catalog.EntityType, id string, op catalog.Operation, at time.Time) catalog.Change {
	t.Helper()

	var payload any
	if op != catalog.OpDelete {
		payload = map[string]string{"id": id}
	}

	c, err := catalog.NewChange(et, id, op, payload, at)
	require.NoError(t, err)

	return c
}

func TestEnqueue_UpsertsByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "m1", catalog.OpUpdate, testEpoch)))
	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "m1", catalog.OpUpdate, testEpoch.Add(time.Second))))

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "resubmission replaces, never duplicates")

	got, err := s.GetChange(ctx, "media:m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, testEpoch.Add(time.Second).Equal(got.Timestamp))
}

func TestEnqueue_Coalesces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "m1", catalog.OpCreate, testEpoch)))
	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "m1", catalog.OpUpdate, testEpoch)))

	got, err := s.GetChange(ctx, "media:m1")
	require.NoError(t, err)
	assert.Equal(t, catalog.OpCreate, got.Operation, "create then update stays a create")

	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "m1", catalog.OpDelete, testEpoch)))

	got, err = s.GetChange(ctx, "media:m1")
	require.NoError(t, err)
	assert.Nil(t, got, "unpushed create then delete cancels out")
}

func TestListPending_FIFOWithIDTieBreak(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityActor, "z", catalog.OpDelete, testEpoch)))
	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "b", catalog.OpDelete, testEpoch.Add(-time.Minute))))
	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityActor, "a", catalog.OpDelete, testEpoch)))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "media:b", pending[0].ID)
	assert.Equal(t, "actor:a", pending[1].ID)
	assert.Equal(t, "actor:z", pending[2].ID)
	assert.Empty(t, pending[0].Payload)
}

func TestRemoveChange_MissingIsNoop(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	assert.NoError(t, s.RemoveChange(context.Background(), "media:nope"))
}

func TestRecordFailure_IncrementsAndCreates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	next := testEpoch.Add(30 * time.Second)
	c := change(t, catalog.EntityMedia, "m1", catalog.OpUpdate, testEpoch)

	count, err := s.RecordFailure(ctx, c, "connection refused", &next)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "missing entry is created")

	count, err = s.RecordFailure(ctx, c, "HTTP 503", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := s.GetChange(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "HTTP 503", got.LastError)
	assert.Nil(t, got.NextAttemptAt)

	reset, err := s.ResetFailures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	got, err = s.GetChange(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RetryCount)
	assert.Empty(t, got.LastError)
}

func TestAttemptedCreateKeepsLaterDelete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		attempt func(ctx context.Context, s *Store, c catalog.Change) error
	}{
		{"failed push", func(ctx context.Context, s *Store, c catalog.Change) error {
			_, err := s.RecordFailure(ctx, c, "connection reset", nil)
			return err
		}},
		{"push landed", func(ctx context.Context, s *Store, c catalog.Change) error {
			return s.MarkAttempted(ctx, c.ID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := newTestStore(t)

			c := change(t, catalog.EntityMedia, "m1", catalog.OpCreate, testEpoch)
			require.NoError(t, s.Enqueue(ctx, c))
			require.NoError(t, tt.attempt(ctx, s, c))

			got, err := s.GetChange(ctx, c.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, catalog.OpUpdate, got.Operation)

			require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "m1", catalog.OpUpdate, testEpoch.Add(time.Second))))
			require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "m1", catalog.OpDelete, testEpoch.Add(2*time.Second))))

			got, err = s.GetChange(ctx, c.ID)
			require.NoError(t, err)
			require.NotNil(t, got, "delete must still reach the remote")
			assert.Equal(t, catalog.OpDelete, got.Operation)
		})
	}
}

func TestRecordFailure_MissingCreateIsStoredAsUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	c := change(t, catalog.EntityActor, "a1", catalog.OpCreate, testEpoch)
	count, err := s.RecordFailure(ctx, c, "timeout", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetChange(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, catalog.OpUpdate, got.Operation)
}

func TestMarkAttempted_LeavesOtherOperations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityMedia, "m1", catalog.OpDelete, testEpoch)))
	require.NoError(t, s.MarkAttempted(ctx, "media:m1"))
	require.NoError(t, s.MarkAttempted(ctx, "media:missing"))

	got, err := s.GetChange(ctx, "media:m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, catalog.OpDelete, got.Operation)
}

func TestEnqueue_FreshEditClearsRetryState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	next := testEpoch.Add(time.Hour)
	c := change(t, catalog.EntityActor, "a1", catalog.OpUpdate, testEpoch)
	_, err := s.RecordFailure(ctx, c, "timeout", &next)
	require.NoError(t, err)

	require.NoError(t, s.Enqueue(ctx, change(t, catalog.EntityActor, "a1", catalog.OpUpdate, testEpoch.Add(time.Minute))))

	got, err := s.GetChange(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RetryCount)
	assert.Nil(t, got.NextAttemptAt)
}

func TestKV_CursorKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetValue(ctx, CursorKey(catalog.EntityMedia))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		return tx.SetValue(ctx, CursorKey(catalog.EntityMedia), "42")
	}))

	v, ok, err := s.GetValue(ctx, "cursor.media")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", v)
}
