// Package crypto declares the cryptographic collaborator the notify engine
// consumes (§6: X25519 key agreement, ChaCha20-Poly1305 envelope sealing,
// SHA-256 topic hashing, Ed25519 signing) and ships a reference adapter.
//
// The engine never sees cipher bytes directly outside this package and
// internal/envelope — it calls Service methods and treats the results as
// opaque hex strings / byte slices.
package crypto

import "context"

// EnvelopeType selects the wire framing used by Encode/Decode.
type EnvelopeType int

const (
	// Type0 is symmetric-only: used once both peers share a symKey bound
	// to the topic.
	Type0 EnvelopeType = 0
	// Type1 additionally carries the sender's X25519 public key, used for
	// the first message from an initiator to a known-pubkey recipient.
	Type1 EnvelopeType = 1
)

// EncodeOptions configures Encode for a Type1 envelope. Senders must supply
// both keys; Type0 envelopes ignore this struct (pass nil).
type EncodeOptions struct {
	Type             EnvelopeType
	SenderPublicKey  string
	ReceiverPublicKey string
}

// Service is the crypto collaborator declared in §6. A reference
// implementation lives in this package (Default); production deployments
// may swap in a hardware-backed or remote implementation behind the same
// interface.
type Service interface {
	// GenerateKeyPair mints an X25519 keypair, persists the private half
	// internally keyed by the returned public key, and returns the public
	// key as lowercase hex.
	GenerateKeyPair(ctx context.Context) (pubHex string, err error)

	// GenerateSharedKey performs X25519 agreement between the private key
	// behind selfPubHex and peerPubHex, hashes the raw shared secret with
	// SHA-256, and returns the result as a topic-grade lowercase hex
	// string (the responseTopic of §4.1).
	GenerateSharedKey(ctx context.Context, selfPubHex, peerPubHex string) (topic string, err error)

	// SetSymKey binds a subscription's symmetric key to a topic so future
	// Encode/Decode calls on that topic use it.
	SetSymKey(ctx context.Context, symKeyHex, topic string) error

	// DeleteSymKey removes a topic's symmetric key. Callers must have
	// already unsubscribed the topic on the relay (§4.6, §5).
	DeleteSymKey(ctx context.Context, topic string) error

	// Encode seals payload for topic. opts is required (and must name
	// Type1 with both keys) the first time an initiator addresses a peer
	// whose symKey isn't yet established; nil or Type0 otherwise.
	Encode(ctx context.Context, topic string, payload []byte, opts *EncodeOptions) ([]byte, error)

	// Decode opens data received on topic using that topic's symKey.
	Decode(ctx context.Context, topic string, data []byte) ([]byte, error)
}
