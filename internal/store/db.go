// Package store implements the persistent collaborators declared in §6:
// the subscription store, message store, key chain, and request ledger.
// All four share one SQLite database, opened and migrated by Open.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB with the notify engine's schema applied.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies migrations. Pass ":memory:" for tests.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	d := &DB{sqldb}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS subscriptions (
	topic       TEXT PRIMARY KEY,
	account     TEXT NOT NULL,
	expiry      INTEGER NOT NULL,
	sym_key     TEXT NOT NULL,
	scope       TEXT NOT NULL DEFAULT '{}',
	metadata    TEXT NOT NULL DEFAULT '{}',
	relay       TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS message_topics (
	topic TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS messages (
	topic        TEXT NOT NULL,
	message_id   INTEGER NOT NULL,
	message      TEXT NOT NULL,
	published_at INTEGER NOT NULL,
	PRIMARY KEY (topic, message_id)
);

CREATE TABLE IF NOT EXISTS key_chain (
	pub_key    TEXT PRIMARY KEY,
	topic      TEXT NOT NULL DEFAULT '',
	priv_key   TEXT NOT NULL,
	persistent INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pending_requests (
	id            INTEGER PRIMARY KEY,
	response_topic TEXT NOT NULL,
	request       TEXT NOT NULL,
	method        TEXT NOT NULL,
	created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_account ON subscriptions(account);
CREATE INDEX IF NOT EXISTS idx_messages_topic ON messages(topic);
`
	_, err := d.Exec(schema)
	return err
}

// NewID mints a random 8-byte hex identifier.
func NewID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
