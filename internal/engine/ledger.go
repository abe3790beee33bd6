// Request ledger orchestration (§4.5, §9): the durable id -> PendingRequest
// mapping lives in internal/store.RequestStore; this file owns the
// in-memory coordination between that store and the expirer collaborator,
// since it is the only caller that needs both at once.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/walletnotify/notify-engine/internal/expiry"
	"github.com/walletnotify/notify-engine/internal/store"
)

type ledger struct {
	reqs    *store.RequestStore
	expirer expiry.Expirer
}

// newRequestID mints a random positive 64-bit JSON-RPC id (§4.5).
func newRequestID() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	id := int64(binary.BigEndian.Uint64(b[:]) &^ (1 << 63))
	if id == 0 {
		id = 1
	}
	return id, nil
}

// record inserts a pending request and arms its expiry, in that order —
// satisfies §8 invariant 7 ("subscribe places the ledger entry before the
// request is observed on the wire") when the caller records before
// publishing.
func (l *ledger) record(ctx context.Context, id int64, responseTopic, method string, body []byte, ttl time.Duration) error {
	if err := l.reqs.Set(ctx, store.PendingRequest{
		ID:            id,
		ResponseTopic: responseTopic,
		Method:        method,
		Request:       body,
	}); err != nil {
		return err
	}
	l.expirer.Set(ledgerTarget(id), time.Now().Add(ttl))
	return nil
}

// resolve removes the pending request matching a received response and
// cancels its expiry — §4.5 "on response, the ledger entry is removed
// before any user-facing event is emitted"; §8 invariant 4 (removed on
// response OR expiry, never both).
func (l *ledger) resolve(ctx context.Context, id int64) (store.PendingRequest, error) {
	req, err := l.reqs.Get(ctx, id)
	if err != nil {
		return store.PendingRequest{}, err
	}
	l.expirer.Del(ledgerTarget(id))
	if err := l.reqs.Delete(ctx, id, "response"); err != nil {
		return store.PendingRequest{}, err
	}
	return req, nil
}

// expire removes a pending request whose deadline fired without a
// response. Returns false if the id is no longer present (already
// resolved by a racing response).
func (l *ledger) expire(ctx context.Context, target string) (int64, bool) {
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return 0, false
	}
	if !l.reqs.Has(ctx, id) {
		return 0, false
	}
	if err := l.reqs.Delete(ctx, id, "expired"); err != nil {
		return 0, false
	}
	return id, true
}

func ledgerTarget(id int64) string {
	return strconv.FormatInt(id, 10)
}
