package store

import (
	"context"
	"encoding/json"

	"github.com/walletnotify/notify-engine/internal/claims"
	"github.com/walletnotify/notify-engine/internal/errs"
)

// MessageRecord is one stored notification (§3 Message Record).
type MessageRecord struct {
	ID          uint64            `json:"id"`
	Topic       string            `json:"topic"`
	Message     claims.MessageBody `json:"message"`
	PublishedAt int64             `json:"publishedAt"` // millis
}

// MessageStore is the per-subscription append-only map of received
// messages (§3, §4.7).
type MessageStore struct {
	db *DB
	bus
}

// NewMessageStore wraps db with the message table's CRUD surface.
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

// EnsureTopic installs an empty message record for topic if one doesn't
// already exist (§4.6 step 3, §4.7 auto-create-on-archived-message). A
// topic present here with zero rows in `messages` still satisfies §8
// invariant 2 (messages.has(topic)).
func (m *MessageStore) EnsureTopic(ctx context.Context, topic string) error {
	_, err := m.db.ExecContext(ctx, `INSERT OR IGNORE INTO message_topics (topic) VALUES (?)`, topic)
	if err != nil {
		return errs.Wrap("EnsureTopic", errs.StoreFailure, err)
	}
	return nil
}

// Append inserts or overwrites the message stored under (topic, id) —
// idempotent redelivery per §5 ("same payload.id overwrites the prior
// record"). Implicitly ensures the topic exists.
func (m *MessageStore) Append(ctx context.Context, topic string, id uint64, rec MessageRecord) error {
	if err := m.EnsureTopic(ctx, topic); err != nil {
		return err
	}
	body, err := json.Marshal(rec.Message)
	if err != nil {
		return errs.Wrap("Append", errs.StoreFailure, err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO messages (topic, message_id, message, published_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(topic, message_id) DO UPDATE SET
			message = excluded.message,
			published_at = excluded.published_at
	`, topic, id, string(body), rec.PublishedAt)
	if err != nil {
		return errs.Wrap("Append", errs.StoreFailure, err)
	}
	m.emit(Event{Kind: EventSet, Key: topic})
	return nil
}

// GetAll returns every message recorded for topic, keyed by message id
// (§4.8 getMessageHistory).
func (m *MessageStore) GetAll(ctx context.Context, topic string) (map[uint64]MessageRecord, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT message_id, message, published_at FROM messages WHERE topic = ?`, topic)
	if err != nil {
		return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
	}
	defer rows.Close()

	out := make(map[uint64]MessageRecord)
	for rows.Next() {
		var (
			id          uint64
			body        string
			publishedAt int64
		)
		if err := rows.Scan(&id, &body, &publishedAt); err != nil {
			return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
		}
		var msg claims.MessageBody
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
		}
		out[id] = MessageRecord{ID: id, Topic: topic, Message: msg, PublishedAt: publishedAt}
	}
	return out, rows.Err()
}

// DeleteOne removes a single message by id from topic, leaving the
// topic's (possibly now-empty) message record in place.
func (m *MessageStore) DeleteOne(ctx context.Context, topic string, id uint64) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM messages WHERE topic = ? AND message_id = ?`, topic, id)
	if err != nil {
		return errs.Wrap("DeleteOne", errs.StoreFailure, err)
	}
	m.emit(Event{Kind: EventDelete, Key: topic})
	return nil
}

// Has reports whether a message record (possibly empty) has been
// installed for topic (§8 invariant 2).
func (m *MessageStore) Has(ctx context.Context, topic string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_topics WHERE topic = ?`, topic).Scan(&n)
	if err != nil {
		return false, errs.Wrap("Has", errs.StoreFailure, err)
	}
	return n > 0, nil
}

// Delete removes topic's message record entirely, including the empty
// placeholder row (§4.6 cleanupSubscription).
func (m *MessageStore) Delete(ctx context.Context, topic, reason string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM messages WHERE topic = ?`, topic); err != nil {
		return errs.Wrap("Delete", errs.StoreFailure, err)
	}
	if _, err := m.db.ExecContext(ctx, `DELETE FROM message_topics WHERE topic = ?`, topic); err != nil {
		return errs.Wrap("Delete", errs.StoreFailure, err)
	}
	m.emit(Event{Kind: EventDelete, Key: topic, Reason: reason})
	return nil
}

// Keys returns every topic with an installed message record, including
// ones with zero messages.
func (m *MessageStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT topic FROM message_topics`)
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
