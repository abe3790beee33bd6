package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/walletnotify/notify-engine/internal/errs"
)

// PendingRequest is a sent-but-unanswered JSON-RPC request (§3 Pending
// Request), keyed by its JSON-RPC id. The request ledger (internal/engine)
// inserts one on send and removes it on response or on expiry — never
// both for the same id (§8 invariant 4).
type PendingRequest struct {
	ID            int64
	ResponseTopic string
	Method        string
	Request       []byte // opaque JSON-encoded request body
}

// RequestStore is the persisted half of the request ledger: the in-memory
// expiry registration lives in internal/engine (via internal/expiry), but
// the id -> (responseTopic, method, request) correlation itself is
// durable, matching this codebase's convention of giving every
// long-lived map a SQLite-backed store rather than a bare Go map.
type RequestStore struct {
	db *DB
	bus
}

// NewRequestStore wraps db with the pending_requests table's CRUD surface.
func NewRequestStore(db *DB) *RequestStore {
	return &RequestStore{db: db}
}

func (r *RequestStore) Get(ctx context.Context, id int64) (PendingRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, response_topic, method, request FROM pending_requests WHERE id = ?`, id)
	req, err := scanPendingRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingRequest{}, errs.New("Get", errs.UnknownSubscription)
	}
	if err != nil {
		return PendingRequest{}, errs.Wrap("Get", errs.StoreFailure, err)
	}
	return req, nil
}

func (r *RequestStore) Has(ctx context.Context, id int64) bool {
	_, err := r.Get(ctx, id)
	return err == nil
}

// Set records req, keyed by req.ID (§4.5: "inserted on send").
func (r *RequestStore) Set(ctx context.Context, req PendingRequest) error {
	_, existed := r.peekExists(ctx, req.ID)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_requests (id, response_topic, method, request)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			response_topic = excluded.response_topic,
			method = excluded.method,
			request = excluded.request
	`, req.ID, req.ResponseTopic, req.Method, string(req.Request))
	if err != nil {
		return errs.Wrap("Set", errs.StoreFailure, err)
	}

	kind := EventSet
	if existed {
		kind = EventUpdate
	}
	r.emit(Event{Kind: kind, Key: formatID(req.ID)})
	return nil
}

func (r *RequestStore) Update(ctx context.Context, req PendingRequest) error {
	return r.Set(ctx, req)
}

// Delete removes the pending request for id. reason is "response" or
// "expired" (§4.5: "removed on response OR on expiry").
func (r *RequestStore) Delete(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap("Delete", errs.StoreFailure, err)
	}
	r.emit(Event{Kind: EventDelete, Key: formatID(id), Reason: reason})
	return nil
}

func (r *RequestStore) Keys(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM pending_requests`)
	if err != nil {
		return nil, errs.Wrap("Keys", errs.StoreFailure, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap("Keys", errs.StoreFailure, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RequestStore) GetAll(ctx context.Context) (map[int64]PendingRequest, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, response_topic, method, request FROM pending_requests`)
	if err != nil {
		return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
	}
	defer rows.Close()

	out := make(map[int64]PendingRequest)
	for rows.Next() {
		req, err := scanPendingRequestRows(rows)
		if err != nil {
			return nil, errs.Wrap("GetAll", errs.StoreFailure, err)
		}
		out[req.ID] = req
	}
	return out, rows.Err()
}

func (r *RequestStore) peekExists(ctx context.Context, id int64) (PendingRequest, bool) {
	req, err := r.Get(ctx, id)
	return req, err == nil
}

type pendingRequestScanner interface {
	Scan(dest ...interface{}) error
}

func scanPendingRequest(row *sql.Row) (PendingRequest, error)     { return scanPendingRequestScanner(row) }
func scanPendingRequestRows(rows *sql.Rows) (PendingRequest, error) { return scanPendingRequestScanner(rows) }

func scanPendingRequestScanner(sc pendingRequestScanner) (PendingRequest, error) {
	var (
		req     PendingRequest
		request string
	)
	if err := sc.Scan(&req.ID, &req.ResponseTopic, &req.Method, &request); err != nil {
		return PendingRequest{}, err
	}
	req.Request = []byte(request)
	return req, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
