package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/walletnotify/notify-engine/internal/claims"
	"github.com/walletnotify/notify-engine/internal/crypto"
	"github.com/walletnotify/notify-engine/internal/did"
	"github.com/walletnotify/notify-engine/internal/envelope"
	"github.com/walletnotify/notify-engine/internal/expiry"
	"github.com/walletnotify/notify-engine/internal/identity"
	"github.com/walletnotify/notify-engine/internal/relay"
	"github.com/walletnotify/notify-engine/internal/store"
)

const testAccount = "eip155:1:0x1111111111111111111111111111111111111111"

func newTestEngine(t *testing.T, conn relay.Relay) *Engine {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exp := expiry.NewTimerWheel()
	t.Cleanup(exp.Close)

	return New(conn, crypto.NewDefault(), identity.NewDefault(), did.NewResolver(), db, exp)
}

func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event kind %q", kind)
		}
	}
}

func waitRelayEvent(t *testing.T, ch <-chan relay.Event) relay.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relay event")
		return relay.Event{}
	}
}

func TestLedgerRecordAndResolve(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	exp := expiry.NewTimerWheel()
	defer exp.Close()

	l := &ledger{reqs: store.NewRequestStore(db), expirer: exp}

	require.NoError(t, l.record(ctx, 42, "rt1", MethodSubscribe, nil, time.Minute))

	pending, err := l.resolve(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "rt1", pending.ResponseTopic)
	require.Equal(t, MethodSubscribe, pending.Method)

	_, err = l.resolve(ctx, 42)
	require.Error(t, err, "resolving twice must fail: invariant 4, removed on response or expiry, never both")
}

func TestLedgerExpire(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	exp := expiry.NewTimerWheel()
	defer exp.Close()

	l := &ledger{reqs: store.NewRequestStore(db), expirer: exp}
	require.NoError(t, l.record(ctx, 7, "rt", MethodUpdate, nil, time.Minute))

	id, ok := l.expire(ctx, ledgerTarget(7))
	require.True(t, ok)
	require.Equal(t, int64(7), id)

	_, ok = l.expire(ctx, ledgerTarget(7))
	require.False(t, ok, "expiring an already-expired id is a no-op")
}

func TestEngineSubscribeFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := relay.NewMemRelay()
	dapp := newTestDapp(r, []did.NotifyType{{Name: "alerts", Description: "Alerts"}})
	defer dapp.Close()

	walletConn := r.Connect()
	e := newTestEngine(t, walletConn)
	go e.Run(ctx)

	_, err := e.identity.RegisterIdentity(ctx, identity.RegisterParams{Account: testAccount, Statement: "test"})
	require.NoError(t, err)

	events := e.Events()

	result, err := e.Subscribe(ctx, dapp.server.URL, testAccount)
	require.NoError(t, err)
	require.NotZero(t, result.ID)

	evt := waitRelayEvent(t, dapp.conn.Events())
	require.NoError(t, dapp.respondToSubscribe(ctx, evt))

	subEvt := waitEvent(t, events, EventSubscription)
	require.Nil(t, subEvt.Err)
	require.Equal(t, result.ID, subEvt.ID)
}

func TestEngineReconcileInstallsAndRemovesSubscriptions(t *testing.T) {
	ctx := context.Background()
	r := relay.NewMemRelay()
	dapp := newTestDapp(r, []did.NotifyType{{Name: "alerts", Description: "Alerts"}})
	defer dapp.Close()

	walletConn := r.Connect()
	e := newTestEngine(t, walletConn)

	symKey := strings.Repeat("11", 32)
	sb := claims.SubscriptionEntry{
		Account:   testAccount,
		SymKey:    symKey,
		Scope:     []string{"alerts"},
		Expiry:    time.Now().Add(time.Hour).Unix(),
		AppDomain: dapp.server.URL,
	}

	require.NoError(t, e.reconcile(ctx, testAccount, []claims.SubscriptionEntry{sb}))

	all, err := e.GetActiveSubscriptions(ctx, store.SubscriptionFilter{Account: testAccount})
	require.NoError(t, err)
	require.Len(t, all, 1)

	var topicStr string
	for tpc := range all {
		topicStr = tpc
	}
	require.True(t, e.keys.Has(ctx, topicStr), "subscribed topic must be present in the key chain (invariant 2)")
	hasMsgTopic, err := e.msgs.Has(ctx, topicStr)
	require.NoError(t, err)
	require.True(t, hasMsgTopic)

	// Reconciling again with an empty sbs[] removes the subscription (§4.6
	// step 1, §8 invariant 3: no orphaned relay subscription, message
	// record, or key-chain entry survives).
	require.NoError(t, e.reconcile(ctx, testAccount, nil))

	all, err = e.GetActiveSubscriptions(ctx, store.SubscriptionFilter{Account: testAccount})
	require.NoError(t, err)
	require.Empty(t, all)
	require.False(t, e.keys.Has(ctx, topicStr))
}

func TestEngineMessageRequestStoresAndResponds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := relay.NewMemRelay()
	dapp := newTestDapp(r, []did.NotifyType{{Name: "alerts", Description: "Alerts"}})
	defer dapp.Close()

	walletConn := r.Connect()
	e := newTestEngine(t, walletConn)
	go e.Run(ctx)

	_, err := e.identity.RegisterIdentity(ctx, identity.RegisterParams{Account: testAccount, Statement: "test"})
	require.NoError(t, err)

	symKey := strings.Repeat("22", 32)
	sb := claims.SubscriptionEntry{
		Account:   testAccount,
		SymKey:    symKey,
		Scope:     []string{"alerts"},
		Expiry:    time.Now().Add(time.Hour).Unix(),
		AppDomain: dapp.server.URL,
	}
	require.NoError(t, e.reconcile(ctx, testAccount, []claims.SubscriptionEntry{sb}))

	all, err := e.GetActiveSubscriptions(ctx, store.SubscriptionFilter{Account: testAccount})
	require.NoError(t, err)
	var topicStr string
	for tpc := range all {
		topicStr = tpc
	}

	events := e.Events()

	msgClaims := claims.MessageClaims{
		Common: claims.Common{Act: claims.ActMessage, Sub: testAccount},
		Msg:    claims.MessageBody{Title: "hello", Body: "world", Type: "alerts"},
	}
	jws, err := dapp.signMessageClaims(msgClaims)
	require.NoError(t, err)

	req, err := envelope.NewRequest(99, MethodMessage, messageParams{MessageAuth: jws})
	require.NoError(t, err)
	codec := envelope.NewCodec(dapp.crypto)
	if err := dapp.crypto.SetSymKey(ctx, symKey, topicStr); err != nil {
		t.Fatal(err)
	}
	body, err := codec.EncodeType0(ctx, topicStr, req)
	require.NoError(t, err)
	require.NoError(t, dapp.conn.Subscribe(ctx, topicStr))
	require.NoError(t, dapp.conn.Publish(ctx, topicStr, body, relay.PublishOptions{}))

	msgEvt := waitEvent(t, events, EventMessage)
	require.Equal(t, "hello", msgEvt.Message.Title)

	history, err := e.GetMessageHistory(ctx, topicStr)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

