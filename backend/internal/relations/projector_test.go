package relations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanlink/backend/internal/store"
	"fanlink/backend/internal/store/memstore"
	pkgerrors "fanlink/backend/pkg/errors"
)

func seedUser(t *testing.T, m *memstore.MemStore, id string) {
	t.Helper()
	err := m.Set(context.Background(), userPath(id), map[string]any{
		"userId":      id,
		"displayName": "user-" + id,
		"score":       int64(0),
	}, false)
	require.NoError(t, err)
}

func TestProjector_CreateFollow_MirroredEdges(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "alice")
	seedUser(t, m, "bob")

	p := NewProjector(m)
	require.NoError(t, p.Create(ctx, KindFollow, "alice", "bob", CreateAttrs{}))

	outDoc, err := m.Get(ctx, edgePath("alice", "following", "bob"))
	require.NoError(t, err)
	inDoc, err := m.Get(ctx, edgePath("bob", "followers", "alice"))
	require.NoError(t, err)

	out, err := decodeEdge(outDoc)
	require.NoError(t, err)
	in, err := decodeEdge(inDoc)
	require.NoError(t, err)

	assert.Equal(t, "bob", out.UserID)
	assert.Equal(t, "alice", in.UserID)
	assert.True(t, out.Active())
	assert.True(t, in.Active())
	assert.Equal(t, out.CreatedAt, in.CreatedAt, "both sides must carry the same timestamp")
}

func TestProjector_Create_MovesAllCounters(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "alice")
	seedUser(t, m, "bob")

	p := NewProjector(m)
	require.NoError(t, p.Create(ctx, KindFollow, "alice", "bob", CreateAttrs{}))

	sr := NewStatsReader(m)
	out, _, err := sr.Get(ctx, "alice", KindFollow)
	require.NoError(t, err)
	_, in, err := sr.Get(ctx, "bob", KindFollow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out)
	assert.Equal(t, int64(1), in)

	// legacy scalars on the user documents move in the same transaction
	aliceDoc, err := m.Get(ctx, userPath("alice"))
	require.NoError(t, err)
	bobDoc, err := m.Get(ctx, userPath("bob"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), aliceDoc.Data["following"])
	assert.Equal(t, int64(1), bobDoc.Data["followers"])
}

func TestProjector_Create_Validation(t *testing.T) {
	ctx := context.Background()
	p := NewProjector(memstore.New())

	assert.Error(t, p.Create(ctx, KindFollow, "", "bob", CreateAttrs{}))
	assert.Error(t, p.Create(ctx, KindFollow, "alice", "", CreateAttrs{}))
	assert.Error(t, p.Create(ctx, KindFollow, "alice", "alice", CreateAttrs{}))
}

func TestProjector_Create_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "alice")
	seedUser(t, m, "bob")

	p := NewProjector(m)
	require.NoError(t, p.Create(ctx, KindFollow, "alice", "bob", CreateAttrs{}))

	err := p.Create(ctx, KindFollow, "alice", "bob", CreateAttrs{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsAlreadyExists(err))

	// the failed attempt must not have moved any counter
	out, _, err := NewStatsReader(m).Get(ctx, "alice", KindFollow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out)
}

func TestProjector_Create_ExpiresAtStored(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "alice")
	seedUser(t, m, "bob")

	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	p := NewProjector(m)
	require.NoError(t, p.Create(ctx, KindSubscription, "alice", "bob", CreateAttrs{ExpiresAt: &expiry}))

	doc, err := m.Get(ctx, edgePath("alice", "subscriptions", "bob"))
	require.NoError(t, err)
	edge, err := decodeEdge(doc)
	require.NoError(t, err)
	require.NotNil(t, edge.ExpiresAt)
	assert.Equal(t, expiry, *edge.ExpiresAt)
}

func TestProjector_Sponsorship_SingleActiveSponsor(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "brandA")
	seedUser(t, m, "brandB")
	seedUser(t, m, "creator")

	p := NewProjector(m)
	require.NoError(t, p.Create(ctx, KindSponsorship, "brandA", "creator", CreateAttrs{}))

	err := p.Create(ctx, KindSponsorship, "brandB", "creator", CreateAttrs{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsAlreadySponsored(err))

	// the slot frees up once the current sponsorship ends
	require.NoError(t, p.Cancel(ctx, KindSponsorship, "brandA", "creator"))
	require.NoError(t, p.Create(ctx, KindSponsorship, "brandB", "creator", CreateAttrs{}))

	sponsorID, sponsored, err := NewStatsReader(m).CurrentSponsor(ctx, "creator")
	require.NoError(t, err)
	assert.True(t, sponsored)
	assert.Equal(t, "brandB", sponsorID)
}

func TestProjector_CancelFollow_DeletesBothEdges(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "alice")
	seedUser(t, m, "bob")

	p := NewProjector(m)
	require.NoError(t, p.Create(ctx, KindFollow, "alice", "bob", CreateAttrs{}))
	require.NoError(t, p.Cancel(ctx, KindFollow, "alice", "bob"))

	_, err := m.Get(ctx, edgePath("alice", "following", "bob"))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = m.Get(ctx, edgePath("bob", "followers", "alice"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	out, _, err := NewStatsReader(m).Get(ctx, "alice", KindFollow)
	require.NoError(t, err)
	assert.Equal(t, int64(0), out)
}

func TestProjector_CancelSubscription_KeepsCancelledEdge(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "alice")
	seedUser(t, m, "bob")

	p := NewProjector(m)
	require.NoError(t, p.Create(ctx, KindSubscription, "alice", "bob", CreateAttrs{}))
	require.NoError(t, p.Cancel(ctx, KindSubscription, "alice", "bob"))

	for _, path := range []string{
		edgePath("alice", "subscriptions", "bob"),
		edgePath("bob", "subscribers", "alice"),
	} {
		doc, err := m.Get(ctx, path)
		require.NoError(t, err, "soft-cancelled edge must survive at %s", path)
		edge, err := decodeEdge(doc)
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, edge.State)
		assert.NotNil(t, edge.CancelledAt)
	}

	// a cancelled edge does not block re-subscribing
	require.NoError(t, p.Create(ctx, KindSubscription, "alice", "bob", CreateAttrs{}))
}

func TestProjector_Cancel_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "alice")
	seedUser(t, m, "bob")

	p := NewProjector(m)

	// cancelling an edge that never existed is a no-op
	require.NoError(t, p.Cancel(ctx, KindFollow, "alice", "bob"))

	require.NoError(t, p.Create(ctx, KindSubscription, "alice", "bob", CreateAttrs{}))
	require.NoError(t, p.Cancel(ctx, KindSubscription, "alice", "bob"))
	require.NoError(t, p.Cancel(ctx, KindSubscription, "alice", "bob"))

	// the second cancel must not decrement again
	out, _, err := NewStatsReader(m).Get(ctx, "alice", KindSubscription)
	require.NoError(t, err)
	assert.Equal(t, int64(0), out)
	_, in, err := NewStatsReader(m).Get(ctx, "bob", KindSubscription)
	require.NoError(t, err)
	assert.Equal(t, int64(0), in)
}

func TestProjector_Cancel_ClampsUnderflow(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "alice")
	seedUser(t, m, "bob")

	// an active edge pair written out of band, with no counters behind it
	now := time.Now().UTC()
	require.NoError(t, m.Set(ctx, edgePath("alice", "following", "bob"), map[string]any{
		"userId": "bob", "state": "active", "createdAt": now,
	}, false))
	require.NoError(t, m.Set(ctx, edgePath("bob", "followers", "alice"), map[string]any{
		"userId": "alice", "state": "active", "createdAt": now,
	}, false))

	p := NewProjector(m)
	require.NoError(t, p.Cancel(ctx, KindFollow, "alice", "bob"))

	out, _, err := NewStatsReader(m).Get(ctx, "alice", KindFollow)
	require.NoError(t, err)
	assert.Equal(t, int64(0), out, "decrement must clamp at zero, never go negative")

	aliceDoc, err := m.Get(ctx, userPath("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), asInt64(aliceDoc.Data["following"]))
}

func TestProjector_CancelSponsorship_ClearsPointer(t *testing.T) {
	ctx := context.Background()
	m := memstore.New()
	seedUser(t, m, "brand")
	seedUser(t, m, "creator")

	p := NewProjector(m)
	require.NoError(t, p.Create(ctx, KindSponsorship, "brand", "creator", CreateAttrs{}))
	require.NoError(t, p.Cancel(ctx, KindSponsorship, "brand", "creator"))

	_, sponsored, err := NewStatsReader(m).CurrentSponsor(ctx, "creator")
	require.NoError(t, err)
	assert.False(t, sponsored)

	doc, err := m.Get(ctx, statsPath("creator"))
	require.NoError(t, err)
	_, hasPointer := doc.Data["currentSponsorId"]
	assert.False(t, hasPointer, "sponsor pointer must be removed, not blanked")
}
