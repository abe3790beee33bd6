// Package identity declares the identity-keys collaborator (§6) — the
// external service that registers a wallet account's identity key with a
// keyserver and signs JWTs on its behalf — and ships a local reference
// adapter suitable for tests and single-process wiring.
package identity

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Statement strings are the user-visible text a wallet signs to attest its
// identity key binding. Exact strings must match the keyserver's
// expectations (§6).
const (
	LimitedIdentityStatement = "I further authorize this app to send me notifications for this specific app. " +
		"This authorization is scoped only to this app."
	UnlimitedIdentityStatement = "I further authorize this app to send me notifications. " +
		"Read more at https://walletconnect.com/notify-signature"
)

// OnSign is invoked by the identity service when it needs the wallet to
// produce a signature over a statement (e.g. SIWE) binding the identity
// key to the account. The engine supplies this from its own signing UI.
type OnSign func(ctx context.Context, message string) (signature string, err error)

// RegisterParams carries the arguments to RegisterIdentity.
type RegisterParams struct {
	Account   string
	OnSign    OnSign
	Statement string
	Domain    string // only meaningful when Statement is scoped (limited)
}

// Service is the identity-keys collaborator declared in §6.
type Service interface {
	// RegisterIdentity registers (or reuses) an identity key for
	// params.Account, returning its Ed25519 public key as lowercase hex.
	RegisterIdentity(ctx context.Context, params RegisterParams) (identityPubHex string, err error)

	// GetIdentity returns the already-registered identity key for
	// account, or an IdentityFailure if none exists.
	GetIdentity(ctx context.Context, account string) (identityPubHex string, err error)

	// GenerateIdAuth signs claims with the identity key registered for
	// account and returns the compact JWS, EdDSA over Ed25519 (§4.3).
	GenerateIdAuth(ctx context.Context, account string, claims jwt.Claims) (jws string, err error)
}
