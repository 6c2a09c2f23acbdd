package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanlink/backend/internal/store"
)

func TestMemStore_SetGet(t *testing.T) {
	ctx := context.Background()
	m := New()

	err := m.Set(ctx, "users/u1", map[string]any{"name": "alice", "score": int64(10)}, false)
	require.NoError(t, err)

	doc, err := m.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID)
	assert.Equal(t, "alice", doc.Data["name"])
	assert.Equal(t, int64(10), doc.Data["score"])

	_, err = m.Get(ctx, "users/missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemStore_SetMerge(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"a": "1", "b": "2"}, false))
	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"b": "3"}, true))

	doc, err := m.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Data["a"], "merge must keep untouched fields")
	assert.Equal(t, "3", doc.Data["b"])

	// replace drops untouched fields
	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"b": "4"}, false))
	doc, err = m.Get(ctx, "users/u1")
	require.NoError(t, err)
	_, hasA := doc.Data["a"]
	assert.False(t, hasA)
}

func TestMemStore_Increment(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"count": store.Increment(1)}, true))
	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"count": store.Increment(2)}, true))

	doc, err := m.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.Data["count"])
}

func TestMemStore_DeleteField(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"a": "1", "b": "2"}, false))
	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"a": store.DeleteField()}, true))

	doc, err := m.Get(ctx, "users/u1")
	require.NoError(t, err)
	_, hasA := doc.Data["a"]
	assert.False(t, hasA)
	assert.Equal(t, "2", doc.Data["b"])
}

func TestMemStore_Update(t *testing.T) {
	ctx := context.Background()
	m := New()

	err := m.Update(ctx, "users/missing", map[string]any{"a": "1"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"a": "1"}, false))
	require.NoError(t, m.Update(ctx, "users/u1", map[string]any{"a": "2"}))

	doc, err := m.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Data["a"])
}

func TestMemStore_TransactionAtomicity(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"a": "1"}, false))

	// failed transactions apply nothing
	err := m.RunTransaction(ctx, func(tx store.Txn) error {
		require.NoError(t, tx.Set("users/u1", map[string]any{"a": "2"}, false))
		require.NoError(t, tx.Set("users/u2", map[string]any{"a": "3"}, false))
		return assert.AnError
	})
	assert.Error(t, err)

	doc, err := m.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Data["a"])
	_, err = m.Get(ctx, "users/u2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// successful transactions apply everything
	err = m.RunTransaction(ctx, func(tx store.Txn) error {
		if err := tx.Set("users/u1", map[string]any{"a": "2"}, false); err != nil {
			return err
		}
		return tx.Set("users/u2", map[string]any{"a": "3"}, false)
	})
	require.NoError(t, err)

	doc, err = m.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "2", doc.Data["a"])
	doc, err = m.Get(ctx, "users/u2")
	require.NoError(t, err)
	assert.Equal(t, "3", doc.Data["a"])
}

func TestMemStore_QueryDirectChildrenOnly(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.NoError(t, m.Set(ctx, "users/u1", map[string]any{"score": int64(1)}, false))
	require.NoError(t, m.Set(ctx, "users/u2", map[string]any{"score": int64(2)}, false))
	require.NoError(t, m.Set(ctx, "users/u1/followers/u2", map[string]any{"state": "active"}, false))

	docs, err := m.Query("users").Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2, "subcollection documents must not leak into the parent query")
}

func TestMemStore_QueryWhereOrderLimit(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.NoError(t, m.Set(ctx, "users/a", map[string]any{"city": "Lagos", "score": int64(100)}, false))
	require.NoError(t, m.Set(ctx, "users/b", map[string]any{"city": "Lagos", "score": int64(900)}, false))
	require.NoError(t, m.Set(ctx, "users/c", map[string]any{"city": "Accra", "score": int64(500)}, false))
	require.NoError(t, m.Set(ctx, "users/d", map[string]any{"city": "Lagos", "score": int64(500)}, false))

	docs, err := m.Query("users").
		Where("city", "==", "Lagos").
		OrderBy("score", store.Desc).
		Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "d", docs[1].ID)
	assert.Equal(t, "a", docs[2].ID)

	docs, err = m.Query("users").
		Where("city", "==", "Lagos").
		OrderBy("score", store.Desc).
		Limit(2).
		Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestMemStore_QueryIn(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.NoError(t, m.Set(ctx, "users/a", map[string]any{"userId": "a"}, false))
	require.NoError(t, m.Set(ctx, "users/b", map[string]any{"userId": "b"}, false))
	require.NoError(t, m.Set(ctx, "users/c", map[string]any{"userId": "c"}, false))

	docs, err := m.Query("users").
		Where("userId", "in", []string{"a", "c", "nope"}).
		Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}
