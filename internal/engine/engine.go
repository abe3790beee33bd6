// Package engine implements the Notify Engine's protocol state machine:
// the dispatcher, handler set, reconciler, request ledger, and the public
// Engine facade (§2, §4.8). It orchestrates internal/relay,
// internal/crypto, internal/identity, internal/did, internal/claims,
// internal/envelope, and internal/store into the wallet-side half of the
// subscribe/message/update/delete/watch protocol.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/walletnotify/notify-engine/internal/claims"
	"github.com/walletnotify/notify-engine/internal/crypto"
	"github.com/walletnotify/notify-engine/internal/did"
	"github.com/walletnotify/notify-engine/internal/envelope"
	"github.com/walletnotify/notify-engine/internal/errs"
	"github.com/walletnotify/notify-engine/internal/expiry"
	"github.com/walletnotify/notify-engine/internal/identity"
	"github.com/walletnotify/notify-engine/internal/relay"
	"github.com/walletnotify/notify-engine/internal/store"
	"github.com/walletnotify/notify-engine/internal/topic"
)

// Engine is the wallet-side Notify protocol state machine. The zero value
// is not usable; construct with New.
type Engine struct {
	cfg Config

	relay    relay.Relay
	crypto   crypto.Service
	identity identity.Service
	did      *did.Resolver
	codec    *envelope.Codec

	subs *store.SubscriptionStore
	msgs *store.MessageStore
	keys *store.KeyChain
	reqs *store.RequestStore

	expirer expiry.Expirer
	ledger  *ledger
	bus     *Bus
	logger  *slog.Logger
}

// New wires an Engine from its collaborators. db backs the four
// persistent stores; call Run in its own goroutine to start dispatching.
func New(r relay.Relay, cryptoSvc crypto.Service, identitySvc identity.Service, resolver *did.Resolver, db *store.DB, expirer expiry.Expirer, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		cfg:      cfg,
		relay:    r,
		crypto:   cryptoSvc,
		identity: identitySvc,
		did:      resolver,
		codec:    envelope.NewCodec(cryptoSvc),
		subs:     store.NewSubscriptionStore(db),
		msgs:     store.NewMessageStore(db),
		keys:     store.NewKeyChain(db),
		reqs:     store.NewRequestStore(db),
		expirer:  expirer,
		bus:      NewBus(),
		logger:   cfg.Logger,
	}
	e.ledger = &ledger{reqs: e.reqs, expirer: expirer}
	return e
}

// Events returns a channel of every public event this engine emits
// (§6, §9).
func (e *Engine) Events() <-chan Event {
	return e.bus.Subscribe()
}

// Register registers (or reuses) an identity key for account and kicks
// off watchSubscriptions in the background (§4.8). Registration itself
// succeeds if identity registration succeeds; watch failures are logged,
// not returned.
func (e *Engine) Register(ctx context.Context, account string, onSign identity.OnSign, isLimited bool, domain string) (string, error) {
	statement := identity.UnlimitedIdentityStatement
	if isLimited {
		statement = identity.LimitedIdentityStatement
	}

	pubHex, err := e.identity.RegisterIdentity(ctx, identity.RegisterParams{
		Account:   account,
		OnSign:    onSign,
		Statement: statement,
		Domain:    domain,
	})
	if err != nil {
		return "", err
	}

	go func() {
		wctx := context.Background()
		if err := e.watchSubscriptions(wctx, account); err != nil {
			e.logger.Warn("register: watchSubscriptions failed", "account", account, "err", err)
		}
	}()

	return pubHex, nil
}

// watchSubscriptions establishes the cross-device sync channel with the
// notify server (§4.8 private helper). The watch keypair kY is tagged
// Persistent in the key chain, but a fresh keypair is generated on every
// call, so the response topic is not reused across calls or restarts.
func (e *Engine) watchSubscriptions(ctx context.Context, account string) error {
	serverURL := domainURL(e.cfg.NotifyServerDomain)
	serverKeys, err := e.did.ResolveKeys(ctx, serverURL)
	if err != nil {
		return err
	}

	watchTopic, err := topic.FromPublicKey(serverKeys.KeyAgreementHex)
	if err != nil {
		return err
	}

	kYPub, err := e.crypto.GenerateKeyPair(ctx)
	if err != nil {
		return err
	}
	responseTopic, err := e.crypto.GenerateSharedKey(ctx, kYPub, serverKeys.KeyAgreementHex)
	if err != nil {
		return err
	}
	if err := e.relay.Subscribe(ctx, responseTopic); err != nil {
		return err
	}
	if err := e.keys.Set(ctx, store.KeyEntry{PubKey: kYPub, Topic: responseTopic, Persistent: true}); err != nil {
		return err
	}

	identityPubHex, err := e.identity.GetIdentity(ctx, account)
	if err != nil {
		return err
	}
	c := claims.BuildWatchSubscriptions(identityPubHex, serverKeys.AuthenticationHex, account, e.cfg.KeyserverURL, e.cfg.RequestTTL)
	jws, err := e.identity.GenerateIdAuth(ctx, account, c)
	if err != nil {
		return err
	}

	id, err := newRequestID()
	if err != nil {
		return err
	}
	if err := e.ledger.record(ctx, id, responseTopic, MethodWatchSubscriptions, nil, e.cfg.RequestTTL); err != nil {
		return err
	}

	req, err := envelope.NewRequest(id, MethodWatchSubscriptions, watchSubscriptionsParams{WatchSubscriptionsAuth: jws})
	if err != nil {
		return err
	}
	// The envelope is sealed under responseTopic, the only topic
	// GenerateSharedKey bound a symKey to, and routed to watchTopic, the
	// topic the notify server listens on (§4.4: encryption key and relay
	// routing key are derived independently).
	body, err := e.codec.EncodeType1(ctx, responseTopic, req, kYPub, serverKeys.KeyAgreementHex)
	if err != nil {
		return err
	}
	return e.relay.Publish(ctx, watchTopic, body, relay.PublishOptions{TTL: e.cfg.RequestTTL, Tag: relay.TagWatchRequest, Prompt: false})
}

// SubscribeResult is the outcome of a successful Subscribe call (§4.8).
type SubscribeResult struct {
	ID               int64
	SubscriptionAuth string
}

// Subscribe establishes a subscription to appDomain for account (§4.8).
func (e *Engine) Subscribe(ctx context.Context, appDomain, account string) (SubscribeResult, error) {
	dappURL := domainURL(appDomain)
	dappKeys, err := e.did.ResolveKeys(ctx, dappURL)
	if err != nil {
		return SubscribeResult{}, err
	}
	cfg, err := e.did.ResolveNotifyConfig(ctx, dappURL)
	if err != nil {
		return SubscribeResult{}, err
	}

	subscribeTopic, err := topic.FromPublicKey(dappKeys.KeyAgreementHex)
	if err != nil {
		return SubscribeResult{}, err
	}

	yPub, err := e.crypto.GenerateKeyPair(ctx)
	if err != nil {
		return SubscribeResult{}, err
	}
	responseTopic, err := e.crypto.GenerateSharedKey(ctx, yPub, dappKeys.KeyAgreementHex)
	if err != nil {
		return SubscribeResult{}, err
	}
	if err := e.relay.Subscribe(ctx, responseTopic); err != nil {
		return SubscribeResult{}, err
	}
	// Y is ephemeral: recorded so keyChain.has(responseTopic) holds until
	// onNotifySubscribeResponse deletes it (§9).
	if err := e.keys.Set(ctx, store.KeyEntry{PubKey: yPub, Topic: responseTopic, Persistent: false}); err != nil {
		return SubscribeResult{}, err
	}

	identityPubHex, err := e.identity.GetIdentity(ctx, account)
	if err != nil {
		return SubscribeResult{}, err
	}
	c := claims.BuildSubscription(identityPubHex, dappKeys.AuthenticationHex, account, e.cfg.KeyserverURL, appDomain, cfg.TypeNames(), e.cfg.RequestTTL)
	jws, err := e.identity.GenerateIdAuth(ctx, account, c)
	if err != nil {
		return SubscribeResult{}, err
	}

	id, err := newRequestID()
	if err != nil {
		return SubscribeResult{}, err
	}
	// §8 invariant 7: record before the request is observed on the wire.
	if err := e.ledger.record(ctx, id, responseTopic, MethodSubscribe, nil, e.cfg.RequestTTL); err != nil {
		return SubscribeResult{}, err
	}

	req, err := envelope.NewRequest(id, MethodSubscribe, subscribeParams{SubscriptionAuth: jws})
	if err != nil {
		return SubscribeResult{}, err
	}
	// Sealed under responseTopic (where GenerateSharedKey bound the
	// symKey), routed to subscribeTopic (where the dapp listens), per the
	// same split as watchSubscriptions above.
	body, err := e.codec.EncodeType1(ctx, responseTopic, req, yPub, dappKeys.KeyAgreementHex)
	if err != nil {
		return SubscribeResult{}, err
	}
	if err := e.relay.Publish(ctx, subscribeTopic, body, relay.PublishOptions{TTL: e.cfg.RequestTTL, Tag: relay.TagSubscribeRequest, Prompt: true}); err != nil {
		return SubscribeResult{}, err
	}

	return SubscribeResult{ID: id, SubscriptionAuth: jws}, nil
}

// Update signs and sends a scope-update request for topic (§4.8).
func (e *Engine) Update(ctx context.Context, topicStr string, scope []string) (bool, error) {
	sub, err := e.subs.Get(ctx, topicStr)
	if err != nil {
		return false, err
	}

	identityPubHex, err := e.identity.GetIdentity(ctx, sub.Account)
	if err != nil {
		return false, err
	}
	dappKeys, err := e.did.ResolveKeys(ctx, domainURL(sub.Metadata.AppDomain))
	if err != nil {
		return false, err
	}
	c := claims.BuildUpdate(identityPubHex, dappKeys.AuthenticationHex, sub.Account, e.cfg.KeyserverURL, sub.Metadata.AppDomain, scope, e.cfg.RequestTTL)
	jws, err := e.identity.GenerateIdAuth(ctx, sub.Account, c)
	if err != nil {
		return false, err
	}

	id, err := newRequestID()
	if err != nil {
		return false, err
	}
	if err := e.ledger.record(ctx, id, topicStr, MethodUpdate, nil, e.cfg.RequestTTL); err != nil {
		return false, err
	}

	req, err := envelope.NewRequest(id, MethodUpdate, updateParams{UpdateAuth: jws})
	if err != nil {
		return false, err
	}
	body, err := e.codec.EncodeType0(ctx, topicStr, req)
	if err != nil {
		return false, err
	}
	if err := e.relay.Publish(ctx, topicStr, body, relay.PublishOptions{TTL: e.cfg.RequestTTL, Tag: relay.TagUpdateRequest, Prompt: true}); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteSubscription signs and sends a delete request for topic (§4.8).
// Local state is torn down only when the server confirms with a
// subscriptions_changed — unless forceCleanupAfter (or, if zero, the
// engine's configured default) is positive, in which case the engine
// runs cleanupSubscription locally if no such confirmation arrives in
// time (§9 Open Question, decided).
func (e *Engine) DeleteSubscription(ctx context.Context, topicStr string, forceCleanupAfter time.Duration) error {
	sub, err := e.subs.Get(ctx, topicStr)
	if err != nil {
		return err
	}

	identityPubHex, err := e.identity.GetIdentity(ctx, sub.Account)
	if err != nil {
		return err
	}
	dappKeys, err := e.did.ResolveKeys(ctx, domainURL(sub.Metadata.AppDomain))
	if err != nil {
		return err
	}
	c := claims.BuildDelete(identityPubHex, dappKeys.AuthenticationHex, sub.Account, e.cfg.KeyserverURL, sub.Metadata.AppDomain, e.cfg.RequestTTL)
	jws, err := e.identity.GenerateIdAuth(ctx, sub.Account, c)
	if err != nil {
		return err
	}

	id, err := newRequestID()
	if err != nil {
		return err
	}
	if err := e.ledger.record(ctx, id, topicStr, MethodDelete, nil, e.cfg.RequestTTL); err != nil {
		return err
	}

	req, err := envelope.NewRequest(id, MethodDelete, deleteParams{DeleteAuth: jws})
	if err != nil {
		return err
	}
	body, err := e.codec.EncodeType0(ctx, topicStr, req)
	if err != nil {
		return err
	}
	if err := e.relay.Publish(ctx, topicStr, body, relay.PublishOptions{TTL: e.cfg.RequestTTL, Tag: relay.TagDeleteRequest, Prompt: true}); err != nil {
		return err
	}

	window := forceCleanupAfter
	if window == 0 {
		window = e.cfg.ForceCleanupAfter
	}
	if window > 0 {
		go e.forceCleanupIfUnreconciled(topicStr, window)
	}
	return nil
}

func (e *Engine) forceCleanupIfUnreconciled(topicStr string, window time.Duration) {
	time.Sleep(window)
	ctx := context.Background()
	if !e.subs.Has(ctx, topicStr) {
		return
	}
	e.logger.Warn("delete: no subscriptions_changed received within force-cleanup window, cleaning up locally", "topic", topicStr)
	if err := e.cleanupSubscription(ctx, topicStr, "force_cleanup"); err != nil {
		e.logger.Warn("delete: force cleanup failed", "topic", topicStr, "err", err)
	}
}

// DecryptMessage decodes and validates an inbound notify_message envelope
// without mutating any store (§4.8: "purely functional").
func (e *Engine) DecryptMessage(ctx context.Context, topicStr string, ciphertext []byte) (claims.MessageBody, error) {
	var raw rawMessage
	if err := e.codec.Decode(ctx, topicStr, ciphertext, &raw); err != nil {
		return claims.MessageBody{}, err
	}

	var params messageParams
	if err := json.Unmarshal(raw.Params, &params); err != nil {
		return claims.MessageBody{}, errs.Wrap("DecryptMessage", errs.InvalidMessagePayload, err)
	}
	if params.MessageAuth == "" {
		return claims.MessageBody{}, errs.New("DecryptMessage", errs.InvalidMessagePayload)
	}

	var mc claims.MessageClaims
	if err := claims.DecodeInto(params.MessageAuth, claims.ActMessage, &mc); err != nil {
		return claims.MessageBody{}, err
	}
	return mc.Msg, nil
}

// GetMessageHistory returns every message recorded for topic.
func (e *Engine) GetMessageHistory(ctx context.Context, topicStr string) (map[uint64]store.MessageRecord, error) {
	return e.msgs.GetAll(ctx, topicStr)
}

// GetActiveSubscriptions returns every subscription matching filter.
func (e *Engine) GetActiveSubscriptions(ctx context.Context, filter store.SubscriptionFilter) (map[string]store.Subscription, error) {
	return e.subs.GetAll(ctx, filter)
}

// DeleteNotifyMessage removes a single message by id from topic's history.
func (e *Engine) DeleteNotifyMessage(ctx context.Context, topicStr string, id uint64) error {
	return e.msgs.DeleteOne(ctx, topicStr, id)
}

func domainURL(domain string) string {
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}
