package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestStoreSetGet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRequestStore(db)

	req := PendingRequest{ID: 7, ResponseTopic: "rt1", Method: "wc_notifySubscribe", Request: []byte(`{"a":1}`)}
	require.NoError(t, r.Set(ctx, req))

	got, err := r.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, req, got)
	require.True(t, r.Has(ctx, 7))
}

func TestRequestStoreDeleteRemovedOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRequestStore(db)

	require.NoError(t, r.Set(ctx, PendingRequest{ID: 1, ResponseTopic: "rt", Method: "wc_notifyUpdate"}))
	require.NoError(t, r.Delete(ctx, 1, "response"))

	require.False(t, r.Has(ctx, 1))
	_, err := r.Get(ctx, 1)
	require.Error(t, err)
}

func TestRequestStoreGetAll(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRequestStore(db)

	require.NoError(t, r.Set(ctx, PendingRequest{ID: 1, ResponseTopic: "rt1", Method: "wc_notifySubscribe"}))
	require.NoError(t, r.Set(ctx, PendingRequest{ID: 2, ResponseTopic: "rt2", Method: "wc_notifyDelete"}))

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestRequestStoreEmitsDeleteReason(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	r := NewRequestStore(db)

	require.NoError(t, r.Set(ctx, PendingRequest{ID: 5, ResponseTopic: "rt", Method: "wc_notifyUpdate"}))
	events := r.Subscribe()
	require.NoError(t, r.Delete(ctx, 5, "expired"))

	ev := <-events
	require.Equal(t, EventDelete, ev.Kind)
	require.Equal(t, "expired", ev.Reason)
}
