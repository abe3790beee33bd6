package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/walletnotify/notify-engine/internal/errs"
)

// KeyEntry is one X25519 keypair held by the key chain, keyed by its hex
// public key (§3 Keypair entry). Persistent carries the ephemeral-vs-
// persistent distinction described in §9: ephemeral entries are deleted
// once their responseTopic stops being needed, persistent entries (e.g.
// the watch-subscriptions keypair) survive across restarts.
type KeyEntry struct {
	PubKey     string
	PrivKey    string
	Topic      string // derived response topic, if any, for lookup by topic
	Persistent bool
}

// KeyChainFilter narrows GetAll results.
type KeyChainFilter struct {
	Topic string // empty matches every entry
}

// KeyChain records key entries keyed by hex pubkey. The X25519 keypairs
// the engine generates are recorded with an empty PrivKey: their private
// scalars stay inside the crypto.Service that generated them and are not
// stored here. Subscription entries written by the reconciler carry the
// subscription's symKey in PrivKey.
type KeyChain struct {
	db *DB
	bus
}

// NewKeyChain wraps db with the key_chain table's CRUD and lifecycle-event
// surface.
func NewKeyChain(db *DB) *KeyChain {
	return &KeyChain{db: db}
}

func (k *KeyChain) Get(ctx context.Context, pubKey string) (KeyEntry, error) {
	row := k.db.QueryRowContext(ctx,
		`SELECT pub_key, topic, priv_key, persistent FROM key_chain WHERE pub_key = ?`, pubKey)
	entry, err := scanKeyEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return KeyEntry{}, errs.New("Get", errs.UnknownSubscription)
	}
	if err != nil {
		return KeyEntry{}, errs.Wrap("Get", errs.StoreFailure, err)
	}
	return entry, nil
}

// GetByTopic looks an entry up by its topic (used by DeleteByTopic).
func (k *KeyChain) GetByTopic(ctx context.Context, topic string) (KeyEntry, error) {
	row := k.db.QueryRowContext(ctx,
		`SELECT pub_key, topic, priv_key, persistent FROM key_chain WHERE topic = ?`, topic)
	entry, err := scanKeyEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return KeyEntry{}, errs.New("GetByTopic", errs.UnknownSubscription)
	}
	if err != nil {
		return KeyEntry{}, errs.Wrap("GetByTopic", errs.StoreFailure, err)
	}
	return entry, nil
}

func (k *KeyChain) Has(ctx context.Context, pubKeyOrTopic string) bool {
	var n int
	err := k.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM key_chain WHERE pub_key = ? OR topic = ?`, pubKeyOrTopic, pubKeyOrTopic).Scan(&n)
	return err == nil && n > 0
}

// Set inserts or replaces entry, keyed by PubKey.
func (k *KeyChain) Set(ctx context.Context, entry KeyEntry) error {
	_, existed := k.peekExists(ctx, entry.PubKey)

	_, err := k.db.ExecContext(ctx, `
		INSERT INTO key_chain (pub_key, topic, priv_key, persistent)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pub_key) DO UPDATE SET
			topic = excluded.topic,
			priv_key = excluded.priv_key,
			persistent = excluded.persistent
	`, entry.PubKey, entry.Topic, entry.PrivKey, boolToInt(entry.Persistent))
	if err != nil {
		return errs.Wrap("Set", errs.StoreFailure, err)
	}

	kind := EventSet
	if existed {
		kind = EventUpdate
	}
	k.emit(Event{Kind: kind, Key: entry.PubKey})
	return nil
}

func (k *KeyChain) Update(ctx context.Context, entry KeyEntry) error {
	return k.Set(ctx, entry)
}

// Delete removes the entry for pubKey. Per §9, ephemeral entries are
// deleted by the engine once their responseTopic is no longer needed;
// persistent entries are deleted only alongside deleteSubscription (S5).
func (k *KeyChain) Delete(ctx context.Context, pubKey, reason string) error {
	_, err := k.db.ExecContext(ctx, `DELETE FROM key_chain WHERE pub_key = ?`, pubKey)
	if err != nil {
		return errs.Wrap("Delete", errs.StoreFailure, err)
	}
	k.emit(Event{Kind: EventDelete, Key: pubKey, Reason: reason})
	return nil
}

// DeleteByTopic removes whichever entry (if any) is keyed under topic,
// used by deleteSubscription to satisfy keyChain.has(T) == false (S5).
func (k *KeyChain) DeleteByTopic(ctx context.Context, topic, reason string) error {
	entry, err := k.GetByTopic(ctx, topic)
	if err != nil {
		if errs.Of(err) == errs.UnknownSubscription {
			return nil
		}
		return err
	}
	return k.Delete(ctx, entry.PubKey, reason)
}

func (k *KeyChain) Keys(ctx context.Context) ([]string, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT pub_key FROM key_chain`)
	if err != nil {
		return nil, errs.Wrap("Keys", errs.StoreFailure, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var pubKey string
		if err := rows.Scan(&pubKey); err != nil {
			return nil, errs.Wrap("Keys", errs.StoreFailure, err)
		}
		keys = append(keys, pubKey)
	}
	return keys, rows.Err()
}

func (k *KeyChain) GetAll(ctx context.Context, filter KeyChainFilter) (map[string]KeyEntry, error) {
	query := `SELECT pub_key, topic, priv_key, persistent FROM key_chain`
	args := []interface{}{}
	if filter.Topic != "" {
		query += ` WHERE topic = ?`
		args = append(args, filter.Topic)
	}

	rows, err := k.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
	}
	defer rows.Close()

	out := make(map[string]KeyEntry)
	for rows.Next() {
		entry, err := scanKeyEntryRows(rows)
		if err != nil {
			return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
		}
		out[entry.PubKey] = entry
	}
	return out, rows.Err()
}

func (k *KeyChain) peekExists(ctx context.Context, pubKey string) (KeyEntry, bool) {
	entry, err := k.Get(ctx, pubKey)
	return entry, err == nil
}

type keyEntryScanner interface {
	Scan(dest ...interface{}) error
}

func scanKeyEntry(row *sql.Row) (KeyEntry, error)   { return scanKeyEntryScanner(row) }
func scanKeyEntryRows(rows *sql.Rows) (KeyEntry, error) { return scanKeyEntryScanner(rows) }

func scanKeyEntryScanner(sc keyEntryScanner) (KeyEntry, error) {
	var (
		entry      KeyEntry
		persistent int
	)
	if err := sc.Scan(&entry.PubKey, &entry.Topic, &entry.PrivKey, &persistent); err != nil {
		return KeyEntry{}, err
	}
	entry.Persistent = persistent != 0
	return entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
