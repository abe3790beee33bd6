// Handler set (§4.7): one function per inbound method/response.
package engine

import (
	"context"
	"encoding/json"

	"github.com/walletnotify/notify-engine/internal/claims"
	"github.com/walletnotify/notify-engine/internal/envelope"
	"github.com/walletnotify/notify-engine/internal/errs"
	"github.com/walletnotify/notify-engine/internal/relay"
	"github.com/walletnotify/notify-engine/internal/store"
)

// errCodeRequestFailed is the generic JSON-RPC error code this engine
// sends back when inbound claim validation fails.
const errCodeRequestFailed = 1001

func (e *Engine) onNotifySubscribeResponse(ctx context.Context, pending store.PendingRequest, raw rawMessage) {
	// The ephemeral subscribe keypair's job ends once a response (success
	// or failure) arrives on its responseTopic (§9 ephemeral-keypair note).
	defer func() {
		if err := e.keys.DeleteByTopic(ctx, pending.ResponseTopic, "response_received"); err != nil {
			e.logger.Warn("onNotifySubscribeResponse: ephemeral key cleanup failed", "topic", pending.ResponseTopic, "err", err)
		}
	}()

	if raw.Error != nil {
		e.bus.Emit(Event{Kind: EventSubscription, ID: raw.ID, ResponseTopic: pending.ResponseTopic, Err: errs.New("onNotifySubscribeResponse", errs.RelayFailure)})
		return
	}
	// Subscription body is intentionally empty (§9 Open Question, decided):
	// the authoritative subscription arrives via the next
	// subscriptions_changed, emitted from the reconciler.
	e.bus.Emit(Event{Kind: EventSubscription, ID: raw.ID, ResponseTopic: pending.ResponseTopic})
}

func (e *Engine) onNotifyMessageRequest(ctx context.Context, subTopic string, raw rawMessage, publishedAtMillis int64) {
	var params messageParams
	if err := json.Unmarshal(raw.Params, &params); err != nil {
		e.sendError(ctx, subTopic, raw.ID, err)
		return
	}

	var mc claims.MessageClaims
	if err := claims.DecodeInto(params.MessageAuth, claims.ActMessage, &mc); err != nil {
		e.sendError(ctx, subTopic, raw.ID, err)
		return
	}

	// Auto-create tolerates archived messages arriving before local
	// subscription sync (§4.7).
	if err := e.msgs.EnsureTopic(ctx, subTopic); err != nil {
		e.logger.Warn("onNotifyMessageRequest: ensure topic failed", "topic", subTopic, "err", err)
		return
	}

	iat := int64(0)
	if mc.IssuedAt != nil {
		iat = mc.IssuedAt.Unix() * 1000
	} else {
		iat = publishedAtMillis
	}
	rec := store.MessageRecord{ID: uint64(raw.ID), Topic: subTopic, Message: mc.Msg, PublishedAt: iat}
	if err := e.msgs.Append(ctx, subTopic, uint64(raw.ID), rec); err != nil {
		e.logger.Warn("onNotifyMessageRequest: append failed", "topic", subTopic, "err", err)
		return
	}

	if err := e.sendMessageResponse(ctx, subTopic, raw.ID, mc.Sub); err != nil {
		e.logger.Warn("onNotifyMessageRequest: send response failed", "topic", subTopic, "err", err)
		return
	}

	e.bus.Emit(Event{Kind: EventMessage, ID: raw.ID, Topic: subTopic, Message: mc.Msg})
}

func (e *Engine) sendMessageResponse(ctx context.Context, topicStr string, id int64, account string) error {
	sub, err := e.subs.Get(ctx, topicStr)
	if err != nil {
		return err
	}
	identityPubHex, err := e.identity.GetIdentity(ctx, account)
	if err != nil {
		return err
	}
	keys, err := e.did.ResolveKeys(ctx, domainURL(sub.Metadata.AppDomain))
	if err != nil {
		return err
	}

	respClaims := claims.BuildMessageResponse(identityPubHex, keys.AuthenticationHex, account, e.cfg.KeyserverURL, sub.Metadata.AppDomain, e.cfg.RequestTTL)
	jws, err := e.identity.GenerateIdAuth(ctx, account, respClaims)
	if err != nil {
		return err
	}

	resp, err := envelope.NewResult(id, resultAuth{ResponseAuth: jws})
	if err != nil {
		return err
	}
	body, err := e.codec.EncodeType0(ctx, topicStr, resp)
	if err != nil {
		return err
	}
	return e.relay.Publish(ctx, topicStr, body, relay.PublishOptions{TTL: e.cfg.RequestTTL, Tag: relay.TagMessageResponse, Prompt: false})
}

func (e *Engine) onNotifyDeleteRequest(ctx context.Context, topicStr string, raw rawMessage) {
	var params deleteParams
	if err := json.Unmarshal(raw.Params, &params); err != nil {
		e.sendError(ctx, topicStr, raw.ID, err)
		return
	}

	var dc claims.DeleteClaims
	if err := claims.DecodeInto(params.DeleteAuth, claims.ActDelete, &dc); err != nil {
		e.sendError(ctx, topicStr, raw.ID, err)
		return
	}

	// Local cleanup is driven by the subsequent subscriptions_changed, not
	// by this handler (§4.7).
	e.bus.Emit(Event{Kind: EventDelete, ID: raw.ID, Topic: topicStr})
}

func (e *Engine) onNotifyUpdateResponse(ctx context.Context, pending store.PendingRequest, raw rawMessage) {
	if raw.Error != nil {
		e.bus.Emit(Event{Kind: EventUpdate, ID: raw.ID, Topic: pending.ResponseTopic, Err: errs.New("onNotifyUpdateResponse", errs.RelayFailure)})
		return
	}
	// The scope change itself surfaces via reconciliation (§4.7).
	e.bus.Emit(Event{Kind: EventUpdate, ID: raw.ID, Topic: pending.ResponseTopic})
}

func (e *Engine) onNotifyWatchSubscriptionsResponse(ctx context.Context, pending store.PendingRequest, raw rawMessage) {
	if raw.Error != nil {
		e.logger.Warn("onNotifyWatchSubscriptionsResponse: error result", "err", raw.Error.Message)
		return
	}

	var result resultAuth
	if err := json.Unmarshal(raw.Result, &result); err != nil {
		e.logger.Warn("onNotifyWatchSubscriptionsResponse: decode result failed", "err", err)
		return
	}

	var wc claims.WatchSubscriptionsResponseClaims
	if err := claims.DecodeInto(result.ResponseAuth, claims.ActWatchSubscriptionsResp, &wc); err != nil {
		e.logger.Warn("onNotifyWatchSubscriptionsResponse: claim validation failed", "err", err)
		return
	}

	e.reconcileAndEmit(ctx, wc.Sub, wc.Sbs)
}

func (e *Engine) onNotifySubscriptionsChangedRequest(ctx context.Context, topicStr string, raw rawMessage) {
	var params subscriptionsChangedParams
	if err := json.Unmarshal(raw.Params, &params); err != nil {
		e.logger.Warn("onNotifySubscriptionsChangedRequest: decode params failed", "topic", topicStr, "err", err)
		return
	}

	var cc claims.SubscriptionsChangedClaims
	if err := claims.DecodeInto(params.SubscriptionsChangedAuth, claims.ActSubscriptionsChanged, &cc); err != nil {
		// Fire-and-forget notification: no sendError on failure (§4.7).
		e.logger.Warn("onNotifySubscriptionsChangedRequest: claim validation failed", "topic", topicStr, "err", err)
		return
	}

	e.reconcileAndEmit(ctx, cc.Sub, cc.Sbs)
}

func (e *Engine) reconcileAndEmit(ctx context.Context, account string, sbs []claims.SubscriptionEntry) {
	if err := e.reconcile(ctx, account, sbs); err != nil {
		e.logger.Warn("reconcile failed", "account", account, "err", err)
	}
	all, err := e.subs.GetAll(ctx, store.SubscriptionFilter{Account: account})
	if err != nil {
		e.logger.Warn("reconcile: read back failed", "account", account, "err", err)
		return
	}
	e.bus.Emit(Event{Kind: EventSubscriptionsChanged, Subscriptions: all})
}

// sendError publishes a JSON-RPC error response for a request whose claim
// validation failed, and logs it at Warn with the topic/id as structured
// fields (§7).
func (e *Engine) sendError(ctx context.Context, topicStr string, id int64, cause error) {
	e.logger.Warn("sendError", "topic", topicStr, "id", id, "err", cause)
	resp := envelope.NewError(id, errCodeRequestFailed, cause.Error())
	body, err := e.codec.EncodeType0(ctx, topicStr, resp)
	if err != nil {
		e.logger.Warn("sendError: encode failed", "topic", topicStr, "err", err)
		return
	}
	if err := e.relay.Publish(ctx, topicStr, body, relay.PublishOptions{TTL: e.cfg.RequestTTL, Tag: relay.TagMessageResponse, Prompt: false}); err != nil {
		e.logger.Warn("sendError: publish failed", "topic", topicStr, "err", err)
	}
}
