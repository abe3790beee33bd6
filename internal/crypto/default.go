package crypto

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/walletnotify/notify-engine/internal/errs"
)

// Default is the reference Service implementation: real X25519 agreement
// and ChaCha20-Poly1305 sealing, with private key material held only in
// process memory (never serialized by this package).
type Default struct {
	mu       sync.RWMutex
	privKeys map[string][]byte // pubHex -> 32-byte X25519 scalar
	symKeys  map[string][]byte // topic -> 32-byte AEAD key
}

// NewDefault returns a ready-to-use reference crypto adapter.
func NewDefault() *Default {
	return &Default{
		privKeys: make(map[string][]byte),
		symKeys:  make(map[string][]byte),
	}
}

func (d *Default) GenerateKeyPair(ctx context.Context) (string, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return "", errs.Wrap("GenerateKeyPair", errs.CryptoFailure, err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return "", errs.Wrap("GenerateKeyPair", errs.CryptoFailure, err)
	}
	pubHex := hex.EncodeToString(pub)

	d.mu.Lock()
	d.privKeys[pubHex] = append([]byte(nil), priv[:]...)
	d.mu.Unlock()

	return pubHex, nil
}

// GenerateSharedKey derives the shared secret and binds it as the
// resulting topic's symKey in the same step, since the topic is itself
// SHA256(sharedSecret) — callers never see the raw secret, only a
// topic already wired for Encode/Decode (§4.4).
func (d *Default) GenerateSharedKey(ctx context.Context, selfPubHex, peerPubHex string) (string, error) {
	d.mu.RLock()
	priv, ok := d.privKeys[selfPubHex]
	d.mu.RUnlock()
	if !ok {
		return "", errs.New("GenerateSharedKey", errs.CryptoFailure)
	}
	peerPub, err := hex.DecodeString(peerPubHex)
	if err != nil {
		return "", errs.Wrap("GenerateSharedKey", errs.CryptoFailure, err)
	}
	shared, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return "", errs.Wrap("GenerateSharedKey", errs.CryptoFailure, err)
	}
	sum := sha256.Sum256(shared)
	topicStr := hex.EncodeToString(sum[:])

	d.mu.Lock()
	d.symKeys[topicStr] = append([]byte(nil), shared...)
	d.mu.Unlock()

	return topicStr, nil
}

func (d *Default) SetSymKey(ctx context.Context, symKeyHex, topic string) error {
	raw, err := hex.DecodeString(symKeyHex)
	if err != nil {
		return errs.Wrap("SetSymKey", errs.CryptoFailure, err)
	}
	if len(raw) != chacha20poly1305.KeySize {
		return errs.New("SetSymKey", errs.CryptoFailure)
	}
	d.mu.Lock()
	d.symKeys[topic] = raw
	d.mu.Unlock()
	return nil
}

func (d *Default) DeleteSymKey(ctx context.Context, topic string) error {
	d.mu.Lock()
	delete(d.symKeys, topic)
	d.mu.Unlock()
	return nil
}

// Encode frames the envelope as:
//
//	type(1 byte) || [senderPubKey(32 bytes) if type-1] || nonce(12 bytes) || ciphertext+tag
//
// matching the WalletConnect-style envelope layout named in §4.4.
func (d *Default) Encode(ctx context.Context, topicStr string, payload []byte, opts *EncodeOptions) ([]byte, error) {
	envType := Type0
	if opts != nil {
		envType = opts.Type
	}

	var senderPub []byte
	if envType == Type1 {
		if opts == nil || opts.SenderPublicKey == "" || opts.ReceiverPublicKey == "" {
			return nil, errs.New("Encode", errs.CryptoFailure)
		}
		var err error
		senderPub, err = hex.DecodeString(opts.SenderPublicKey)
		if err != nil {
			return nil, errs.Wrap("Encode", errs.CryptoFailure, err)
		}
	}

	d.mu.RLock()
	key, ok := d.symKeys[topicStr]
	d.mu.RUnlock()
	if !ok {
		return nil, errs.New("Encode", errs.CryptoFailure)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.Wrap("Encode", errs.CryptoFailure, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errs.Wrap("Encode", errs.CryptoFailure, err)
	}
	sealed := aead.Seal(nil, nonce, payload, nil)

	out := make([]byte, 0, 1+len(senderPub)+len(nonce)+len(sealed))
	out = append(out, byte(envType))
	out = append(out, senderPub...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

func (d *Default) Decode(ctx context.Context, topicStr string, data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, errs.New("Decode", errs.CryptoFailure)
	}
	envType := EnvelopeType(data[0])
	rest := data[1:]
	if envType == Type1 {
		if len(rest) < 32 {
			return nil, errs.New("Decode", errs.CryptoFailure)
		}
		rest = rest[32:] // sender pubkey is informational only at decode time
	}

	d.mu.RLock()
	key, ok := d.symKeys[topicStr]
	d.mu.RUnlock()
	if !ok {
		return nil, errs.New("Decode", errs.CryptoFailure)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.Wrap("Decode", errs.CryptoFailure, err)
	}
	if len(rest) < aead.NonceSize() {
		return nil, errs.New("Decode", errs.CryptoFailure)
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.Wrap("Decode", errs.CryptoFailure, err)
	}
	return plain, nil
}

// GenerateEd25519 mints an Ed25519 keypair, returned as lowercase hex. The
// private half is returned directly; this package does not keep it.
func GenerateEd25519() (pubHex, privHex string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ed25519 key: %w", err)
	}
	return hex.EncodeToString(pub), hex.EncodeToString(priv), nil
}
