// Package topic derives the 32-byte hex relay routing keys used throughout
// the notify engine from public keys and symmetric keys.
package topic

import (
	"crypto/sha256"
	"encoding/hex"
)

// FromPublicKey returns the topic both peers derive from a known X25519
// public key: subscribeTopic(dappPubKey) and notifyServerWatchTopic alike.
func FromPublicKey(pubKeyHex string) (string, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return "", err
	}
	return hashHex(raw), nil
}

// FromSharedSecret returns the responseTopic derived from an X25519 shared
// secret already computed by the crypto service.
func FromSharedSecret(sharedSecretHex string) (string, error) {
	raw, err := hex.DecodeString(sharedSecretHex)
	if err != nil {
		return "", err
	}
	return hashHex(raw), nil
}

// FromSymKey returns subscriptionTopic(symKey) — every live subscription's
// routing key is the hash of its symmetric key.
func FromSymKey(symKeyHex string) (string, error) {
	raw, err := hex.DecodeString(symKeyHex)
	if err != nil {
		return "", err
	}
	return hashHex(raw), nil
}

func hashHex(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
