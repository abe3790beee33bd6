// Reconciler (§4.6): applies a server-authoritative sbs[] list to the
// local stores, subscribing/unsubscribing relay topics as needed.
package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/walletnotify/notify-engine/internal/claims"
	"github.com/walletnotify/notify-engine/internal/store"
	"github.com/walletnotify/notify-engine/internal/topic"
)

// reconcile brings the local subscription set for account into line with
// sbs. Step 1 (cleanup of stale topics) completes serialized before steps
// 2-3 (upsert of current topics) run concurrently, per §4.6's ordering
// note (avoids double-subscribe races if a subscription briefly "moves").
func (e *Engine) reconcile(ctx context.Context, account string, sbs []claims.SubscriptionEntry) error {
	existing, err := e.subs.GetAll(ctx, store.SubscriptionFilter{Account: account})
	if err != nil {
		return err
	}

	want := make(map[string]claims.SubscriptionEntry, len(sbs))
	for _, sb := range sbs {
		t, err := topic.FromSymKey(sb.SymKey)
		if err != nil {
			e.logger.Warn("reconcile: bad symKey, skipping entry", "account", account, "err", err)
			continue
		}
		want[t] = sb
	}

	for t := range existing {
		if _, ok := want[t]; ok {
			continue
		}
		if err := e.cleanupSubscription(ctx, t, "reconcile"); err != nil {
			// §7: the reconciler never aborts the whole batch on a single
			// subscription failure.
			e.logger.Warn("reconcile: cleanup failed", "topic", t, "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for t, sb := range want {
		t, sb := t, sb
		g.Go(func() error {
			if err := e.upsertSubscription(gctx, t, account, sb); err != nil {
				e.logger.Warn("reconcile: upsert failed", "topic", t, "account", account, "err", err)
			}
			return nil // per-subscription errors are logged, not fatal to the batch
		})
	}
	return g.Wait()
}

func (e *Engine) upsertSubscription(ctx context.Context, topicStr, account string, sb claims.SubscriptionEntry) error {
	cfg, err := e.did.ResolveNotifyConfig(ctx, domainURL(sb.AppDomain))
	if err != nil {
		return err
	}

	enabled := make(map[string]bool, len(sb.Scope))
	for _, name := range sb.Scope {
		enabled[name] = true
	}
	scope := make(map[string]store.ScopeSetting, len(cfg.Types))
	for _, t := range cfg.Types {
		scope[t.Name] = store.ScopeSetting{Description: t.Description, Enabled: enabled[t.Name]}
	}

	isNew := !e.subs.Has(ctx, topicStr)

	sub := store.Subscription{
		Topic:   topicStr,
		Account: account,
		Expiry:  sb.Expiry,
		SymKey:  sb.SymKey,
		Scope:   scope,
		Metadata: store.Metadata{
			Name:        cfg.Name,
			Description: cfg.Description,
			Icons:       cfg.Icons,
			AppDomain:   sb.AppDomain,
		},
		Relay: store.Relay{Protocol: "irn"},
	}
	if err := e.subs.Set(ctx, sub); err != nil {
		return err
	}

	if !isNew {
		return nil
	}

	// New topic: subscribe, install an empty message record, and bind the
	// symKey so the envelope codec can decrypt traffic on it (§4.6 step 3).
	if err := e.relay.Subscribe(ctx, topicStr); err != nil {
		return err
	}
	if err := e.msgs.EnsureTopic(ctx, topicStr); err != nil {
		return err
	}
	if err := e.crypto.SetSymKey(ctx, sb.SymKey, topicStr); err != nil {
		return err
	}
	// The key chain's raw-private-material ownership (§3) covers X25519
	// keypairs; a live subscription's symKey is recorded here too so that
	// keyChain.has(topic) holds for every subscribed topic (§8 invariant 2).
	return e.keys.Set(ctx, store.KeyEntry{
		PubKey:     topicStr,
		Topic:      topicStr,
		PrivKey:    sb.SymKey,
		Persistent: true,
	})
}

// cleanupSubscription tears down every trace of topicStr: unsubscribe the
// relay first (so symKey is still present for any in-flight decrypt),
// then delete the subscription, message, and key-chain records
// concurrently (§4.6 step 1, §8 invariant 3).
func (e *Engine) cleanupSubscription(ctx context.Context, topicStr, reason string) error {
	if err := e.relay.Unsubscribe(ctx, topicStr); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error { return e.subs.Delete(ctx, topicStr, reason) })
	g.Go(func() error { return e.msgs.Delete(ctx, topicStr, reason) })
	g.Go(func() error {
		if err := e.keys.DeleteByTopic(ctx, topicStr, reason); err != nil {
			return err
		}
		return e.crypto.DeleteSymKey(ctx, topicStr)
	})
	return g.Wait()
}
