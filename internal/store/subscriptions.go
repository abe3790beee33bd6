package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/walletnotify/notify-engine/internal/errs"
)

// ScopeSetting is one entry of a Subscription's scope map (§3).
type ScopeSetting struct {
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Metadata is a subscription's dapp-supplied display info (§3).
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icons       []string `json:"icons"`
	AppDomain   string   `json:"appDomain"`
}

// Relay names the relay protocol a subscription was established over.
type Relay struct {
	Protocol string `json:"protocol"`
}

// Subscription is the persisted record described in §3. Invariant:
// Topic == SHA256(SymKey) (internal/topic.FromSymKey).
type Subscription struct {
	Topic    string                  `json:"topic"`
	Account  string                  `json:"account"`
	Expiry   int64                   `json:"expiry"`
	SymKey   string                  `json:"symKey"`
	Scope    map[string]ScopeSetting `json:"scope"`
	Metadata Metadata                `json:"metadata"`
	Relay    Relay                   `json:"relay"`
}

// SubscriptionFilter narrows GetAll results.
type SubscriptionFilter struct {
	Account string // empty matches every account
}

// SubscriptionStore is the authoritative local mirror of active
// subscriptions (§3, §4.6), keyed by derived topic.
type SubscriptionStore struct {
	db *DB
	bus
}

// NewSubscriptionStore wraps db with the subscription table's CRUD and
// lifecycle-event surface.
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Get(ctx context.Context, topic string) (Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT topic, account, expiry, sym_key, scope, metadata, relay FROM subscriptions WHERE topic = ?`, topic)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, errs.New("Get", errs.UnknownSubscription)
	}
	if err != nil {
		return Subscription{}, errs.Wrap("Get", errs.StoreFailure, err)
	}
	return sub, nil
}

func (s *SubscriptionStore) Has(ctx context.Context, topic string) bool {
	_, err := s.Get(ctx, topic)
	return err == nil
}

// Set inserts or fully replaces the subscription record for sub.Topic
// (used by the reconciler's upsert step, §4.6 step 2).
func (s *SubscriptionStore) Set(ctx context.Context, sub Subscription) error {
	scope, err := json.Marshal(sub.Scope)
	if err != nil {
		return errs.Wrap("Set", errs.StoreFailure, err)
	}
	metadata, err := json.Marshal(sub.Metadata)
	if err != nil {
		return errs.Wrap("Set", errs.StoreFailure, err)
	}
	relay, err := json.Marshal(sub.Relay)
	if err != nil {
		return errs.Wrap("Set", errs.StoreFailure, err)
	}

	_, existed := s.peekExists(ctx, sub.Topic)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (topic, account, expiry, sym_key, scope, metadata, relay, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(topic) DO UPDATE SET
			account = excluded.account,
			expiry = excluded.expiry,
			sym_key = excluded.sym_key,
			scope = excluded.scope,
			metadata = excluded.metadata,
			relay = excluded.relay,
			updated_at = CURRENT_TIMESTAMP
	`, sub.Topic, sub.Account, sub.Expiry, sub.SymKey, string(scope), string(metadata), string(relay))
	if err != nil {
		return errs.Wrap("Set", errs.StoreFailure, err)
	}

	kind := EventSet
	if existed {
		kind = EventUpdate
	}
	s.emit(Event{Kind: kind, Key: sub.Topic})
	return nil
}

// Update is an alias for Set: subscriptions have no partial-update API,
// every mutation replaces the full record (mirrors Subscription's
// immutable-except-via-reconciler invariant, §3).
func (s *SubscriptionStore) Update(ctx context.Context, sub Subscription) error {
	return s.Set(ctx, sub)
}

func (s *SubscriptionStore) Delete(ctx context.Context, topic, reason string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE topic = ?`, topic)
	if err != nil {
		return errs.Wrap("Delete", errs.StoreFailure, err)
	}
	s.emit(Event{Kind: EventDelete, Key: topic, Reason: reason})
	return nil
}

func (s *SubscriptionStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topic FROM subscriptions`)
	if err != nil {
		return nil, errs.Wrap("Keys", errs.StoreFailure, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, errs.Wrap("Keys", errs.StoreFailure, err)
		}
		keys = append(keys, topic)
	}
	return keys, rows.Err()
}

// GetAll returns every subscription matching filter, keyed by topic.
func (s *SubscriptionStore) GetAll(ctx context.Context, filter SubscriptionFilter) (map[string]Subscription, error) {
	query := `SELECT topic, account, expiry, sym_key, scope, metadata, relay FROM subscriptions`
	args := []interface{}{}
	if filter.Account != "" {
		query += ` WHERE account = ?`
		args = append(args, filter.Account)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
	}
	defer rows.Close()

	out := make(map[string]Subscription)
	for rows.Next() {
		sub, err := scanSubscriptionRows(rows)
		if err != nil {
			return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
		}
		out[sub.Topic] = sub
	}
	return out, rows.Err()
}

func (s *SubscriptionStore) peekExists(ctx context.Context, topic string) (Subscription, bool) {
	sub, err := s.Get(ctx, topic)
	return sub, err == nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row *sql.Row) (Subscription, error) {
	return scanSubscriptionScanner(row)
}

func scanSubscriptionRows(rows *sql.Rows) (Subscription, error) {
	return scanSubscriptionScanner(rows)
}

func scanSubscriptionScanner(sc rowScanner) (Subscription, error) {
	var (
		sub                          Subscription
		scope, metadata, relayBlob   string
	)
	if err := sc.Scan(&sub.Topic, &sub.Account, &sub.Expiry, &sub.SymKey, &scope, &metadata, &relayBlob); err != nil {
		return Subscription{}, err
	}
	if err := json.Unmarshal([]byte(scope), &sub.Scope); err != nil {
		return Subscription{}, err
	}
	if err := json.Unmarshal([]byte(metadata), &sub.Metadata); err != nil {
		return Subscription{}, err
	}
	if err := json.Unmarshal([]byte(relayBlob), &sub.Relay); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}
