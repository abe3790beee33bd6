package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/walletnotify/notify-engine/internal/errs"
)

// Default is a reference Service: it mints and holds Ed25519 identity keys
// locally (standing in for a remote keyserver registration round-trip) and
// signs claim sets with SigningMethodEdDSA using the account's Ed25519
// identity key.
type Default struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey // account -> private key
}

// NewDefault returns a ready-to-use local identity adapter.
func NewDefault() *Default {
	return &Default{keys: make(map[string]ed25519.PrivateKey)}
}

func (d *Default) RegisterIdentity(ctx context.Context, params RegisterParams) (string, error) {
	if existing, err := d.GetIdentity(ctx, params.Account); err == nil {
		return existing, nil
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", errs.Wrap("RegisterIdentity", errs.IdentityFailure, err)
	}

	if params.OnSign != nil {
		if _, err := params.OnSign(ctx, params.Statement); err != nil {
			return "", errs.Wrap("RegisterIdentity", errs.IdentityFailure, err)
		}
	}

	d.mu.Lock()
	d.keys[params.Account] = priv
	d.mu.Unlock()

	return hex.EncodeToString(pub), nil
}

func (d *Default) GetIdentity(ctx context.Context, account string) (string, error) {
	d.mu.RLock()
	priv, ok := d.keys[account]
	d.mu.RUnlock()
	if !ok {
		return "", errs.New("GetIdentity", errs.IdentityFailure)
	}
	pub := priv.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), nil
}

func (d *Default) GenerateIdAuth(ctx context.Context, account string, c jwt.Claims) (string, error) {
	d.mu.RLock()
	priv, ok := d.keys[account]
	d.mu.RUnlock()
	if !ok {
		return "", errs.New("GenerateIdAuth", errs.IdentityFailure)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", errs.Wrap("GenerateIdAuth", errs.IdentityFailure, err)
	}
	return signed, nil
}
