package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyChainSetGetByPubKeyAndTopic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	k := NewKeyChain(db)

	entry := KeyEntry{PubKey: "pub1", Topic: "topic1", PrivKey: "priv1", Persistent: false}
	require.NoError(t, k.Set(ctx, entry))

	byPub, err := k.Get(ctx, "pub1")
	require.NoError(t, err)
	require.Equal(t, entry, byPub)

	byTopic, err := k.GetByTopic(ctx, "topic1")
	require.NoError(t, err)
	require.Equal(t, entry, byTopic)

	require.True(t, k.Has(ctx, "pub1"))
	require.True(t, k.Has(ctx, "topic1"))
}

func TestKeyChainDeleteByTopicIsNoopWhenMissing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	k := NewKeyChain(db)

	require.NoError(t, k.DeleteByTopic(ctx, "no-such-topic", "test"))
}

func TestKeyChainDeleteByTopicRemovesEntry(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	k := NewKeyChain(db)

	require.NoError(t, k.Set(ctx, KeyEntry{PubKey: "pub1", Topic: "topic1", PrivKey: "priv1"}))
	require.NoError(t, k.DeleteByTopic(ctx, "topic1", "response_received"))

	require.False(t, k.Has(ctx, "pub1"))
	_, err := k.GetByTopic(ctx, "topic1")
	require.Error(t, err)
}

func TestKeyChainGetAllFiltersByTopic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	k := NewKeyChain(db)

	require.NoError(t, k.Set(ctx, KeyEntry{PubKey: "pub1", Topic: "topic1", PrivKey: "priv1"}))
	require.NoError(t, k.Set(ctx, KeyEntry{PubKey: "pub2", Topic: "topic2", PrivKey: "priv2"}))

	all, err := k.GetAll(ctx, KeyChainFilter{Topic: "topic1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Contains(t, all, "pub1")
}

func TestKeyChainPersistentFlagRoundTrips(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	k := NewKeyChain(db)

	require.NoError(t, k.Set(ctx, KeyEntry{PubKey: "pub1", Topic: "topic1", PrivKey: "priv1", Persistent: true}))

	got, err := k.Get(ctx, "pub1")
	require.NoError(t, err)
	require.True(t, got.Persistent)
}
