package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/walletnotify/notify-engine/internal/claims"
)

func TestMessageStoreEnsureTopicHasNoMessages(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMessageStore(db)

	require.NoError(t, m.EnsureTopic(ctx, "t1"))

	has, err := m.Has(ctx, "t1")
	require.NoError(t, err)
	require.True(t, has, "an installed topic with zero messages must still report Has == true")

	all, err := m.GetAll(ctx, "t1")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestMessageStoreAppendOverwritesSameID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMessageStore(db)

	rec1 := MessageRecord{Message: claims.MessageBody{Title: "first"}, PublishedAt: 1}
	rec2 := MessageRecord{Message: claims.MessageBody{Title: "second"}, PublishedAt: 2}

	require.NoError(t, m.Append(ctx, "t1", 42, rec1))
	require.NoError(t, m.Append(ctx, "t1", 42, rec2))

	all, err := m.GetAll(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "second", all[42].Message.Title)
}

func TestMessageStoreDeleteRemovesTopicAndMessages(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMessageStore(db)

	require.NoError(t, m.Append(ctx, "t1", 1, MessageRecord{Message: claims.MessageBody{Title: "x"}}))
	require.NoError(t, m.Delete(ctx, "t1", "cleanup"))

	has, err := m.Has(ctx, "t1")
	require.NoError(t, err)
	require.False(t, has)

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	require.NotContains(t, keys, "t1")
}

func TestMessageStoreDeleteOneKeepsTopic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMessageStore(db)

	require.NoError(t, m.Append(ctx, "t1", 1, MessageRecord{Message: claims.MessageBody{Title: "x"}}))
	require.NoError(t, m.DeleteOne(ctx, "t1", 1))

	has, err := m.Has(ctx, "t1")
	require.NoError(t, err)
	require.True(t, has, "deleting a single message must leave the topic's record installed")

	all, err := m.GetAll(ctx, "t1")
	require.NoError(t, err)
	require.Empty(t, all)
}
