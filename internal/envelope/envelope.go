// Package envelope wraps JSON-RPC payloads in the type-0/type-1 encrypted
// frames the relay carries (§4.4), delegating all cryptographic work to
// internal/crypto.Service. The engine never touches cipher bytes outside
// this package.
package envelope

import (
	"context"
	"encoding/json"

	"github.com/walletnotify/notify-engine/internal/crypto"
	"github.com/walletnotify/notify-engine/internal/errs"
)

// Codec seals and opens JSON-RPC payloads for relay transport.
type Codec struct {
	svc crypto.Service
}

// NewCodec returns a Codec backed by svc.
func NewCodec(svc crypto.Service) *Codec {
	return &Codec{svc: svc}
}

// EncodeType0 seals payload for topic using the symKey already bound to
// it — the default for published responses and established-subscription
// messages.
func (c *Codec) EncodeType0(ctx context.Context, topic string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap("EncodeType0", errs.InvalidMessagePayload, err)
	}
	out, err := c.svc.Encode(ctx, topic, raw, &crypto.EncodeOptions{Type: crypto.Type0})
	if err != nil {
		return nil, errs.Wrap("EncodeType0", errs.CryptoFailure, err)
	}
	return out, nil
}

// EncodeType1 seals payload for topic and attaches senderPubHex, used for
// the first message from an initiator to a known-pubkey recipient (§4.4).
func (c *Codec) EncodeType1(ctx context.Context, topic string, payload interface{}, senderPubHex, receiverPubHex string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap("EncodeType1", errs.InvalidMessagePayload, err)
	}
	out, err := c.svc.Encode(ctx, topic, raw, &crypto.EncodeOptions{
		Type:              crypto.Type1,
		SenderPublicKey:   senderPubHex,
		ReceiverPublicKey: receiverPubHex,
	})
	if err != nil {
		return nil, errs.Wrap("EncodeType1", errs.CryptoFailure, err)
	}
	return out, nil
}

// Decode opens data received on topic and unmarshals it into out.
func (c *Codec) Decode(ctx context.Context, topic string, data []byte, out interface{}) error {
	plain, err := c.svc.Decode(ctx, topic, data)
	if err != nil {
		return errs.Wrap("Decode", errs.CryptoFailure, err)
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return errs.Wrap("Decode", errs.InvalidMessagePayload, err)
	}
	return nil
}
