// Protocol dispatcher (§4.7): one relay listener decoding every inbound
// envelope and routing it to a typed handler by method (requests) or by
// the ledger's recorded method (responses).
package engine

import (
	"context"
	"encoding/json"

	"github.com/walletnotify/notify-engine/internal/envelope"
	"github.com/walletnotify/notify-engine/internal/relay"
)

// rawMessage is the superset of an inbound request or response, decoded
// once so the dispatcher can branch on which shape arrived.
type rawMessage struct {
	JSONRPC string               `json:"jsonrpc"`
	ID      int64                `json:"id"`
	Method  string               `json:"method,omitempty"`
	Params  json.RawMessage      `json:"params,omitempty"`
	Result  json.RawMessage      `json:"result,omitempty"`
	Error   *envelope.RPCError   `json:"error,omitempty"`
}

// Run drives the dispatcher until ctx is cancelled or the relay's event
// channel closes. Each inbound message is handled from its own goroutine
// (§5: "handlers execute concurrently across distinct topics"); expirer
// events are handled the same way.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-e.relay.Events():
			if !ok {
				return nil
			}
			go e.handleRelayEvent(ctx, evt)
		case exp, ok := <-e.expirer.Events():
			if !ok {
				continue
			}
			go e.handleExpiry(ctx, exp.Target)
		}
	}
}

func (e *Engine) handleRelayEvent(ctx context.Context, evt relay.Event) {
	var raw rawMessage
	if err := e.codec.Decode(ctx, evt.Topic, evt.Message, &raw); err != nil {
		e.logger.Warn("dispatcher: envelope decode failed", "topic", evt.Topic, "err", err)
		return
	}

	if raw.Method != "" {
		e.dispatchRequest(ctx, evt.Topic, raw, evt.PublishedAt.UnixMilli())
		return
	}
	e.dispatchResponse(ctx, raw)
}

func (e *Engine) dispatchRequest(ctx context.Context, topicStr string, raw rawMessage, publishedAtMillis int64) {
	switch raw.Method {
	case MethodMessage:
		e.onNotifyMessageRequest(ctx, topicStr, raw, publishedAtMillis)
	case MethodDelete:
		e.onNotifyDeleteRequest(ctx, topicStr, raw)
	case MethodSubscriptionsChanged:
		e.onNotifySubscriptionsChangedRequest(ctx, topicStr, raw)
	default:
		e.logger.Warn("dispatcher: unknown request method", "topic", topicStr, "method", raw.Method)
	}
}

func (e *Engine) dispatchResponse(ctx context.Context, raw rawMessage) {
	pending, err := e.ledger.resolve(ctx, raw.ID)
	if err != nil {
		e.logger.Warn("dispatcher: response for unknown or expired request", "id", raw.ID, "err", err)
		return
	}

	switch pending.Method {
	case MethodSubscribe:
		e.onNotifySubscribeResponse(ctx, pending, raw)
	case MethodUpdate:
		e.onNotifyUpdateResponse(ctx, pending, raw)
	case MethodWatchSubscriptions:
		e.onNotifyWatchSubscriptionsResponse(ctx, pending, raw)
	case MethodDelete:
		// Local cleanup is driven by the ensuing subscriptions_changed,
		// not by the delete response itself (§4.8 deleteSubscription).
		if raw.Error != nil {
			e.logger.Warn("dispatcher: delete request rejected", "topic", pending.ResponseTopic, "err", raw.Error.Message)
		}
	default:
		e.logger.Warn("dispatcher: response for unhandled method", "id", raw.ID, "method", pending.Method)
	}
}

func (e *Engine) handleExpiry(ctx context.Context, target string) {
	id, ok := e.ledger.expire(ctx, target)
	if !ok {
		return
	}
	e.bus.Emit(Event{Kind: EventRequestExpire, ID: id})
}
