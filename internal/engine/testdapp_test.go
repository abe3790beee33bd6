package engine

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/golang-jwt/jwt/v5"

	"github.com/walletnotify/notify-engine/internal/claims"
	"github.com/walletnotify/notify-engine/internal/crypto"
	"github.com/walletnotify/notify-engine/internal/did"
	"github.com/walletnotify/notify-engine/internal/envelope"
	"github.com/walletnotify/notify-engine/internal/relay"
	"github.com/walletnotify/notify-engine/internal/topic"
)

// testDapp simulates the counterparty side of the protocol: it serves its
// own did.json/wc-notify-config.json and holds the X25519/Ed25519 keys a
// real dapp backend would hold, so engine tests can drive a full
// wallet<->dapp round trip over a shared MemRelay without a real network.
type testDapp struct {
	crypto   crypto.Service
	authPub  string
	authPriv string
	kaPub    string

	conn   *relay.Conn
	server *httptest.Server
	types  []did.NotifyType
}

func newTestDapp(r *relay.MemRelay, types []did.NotifyType) *testDapp {
	svc := crypto.NewDefault()
	kaPub, err := svc.GenerateKeyPair(context.Background())
	if err != nil {
		panic(err)
	}
	authPub, authPriv, err := crypto.GenerateEd25519()
	if err != nil {
		panic(err)
	}

	d := &testDapp{
		crypto:   svc,
		authPub:  authPub,
		authPriv: authPriv,
		kaPub:    kaPub,
		conn:     r.Connect(),
		types:    types,
	}
	d.server = httptest.NewServer(http.HandlerFunc(d.handle))

	subscribeTopic, err := topic.FromPublicKey(kaPub)
	if err != nil {
		panic(err)
	}
	if err := d.conn.Subscribe(context.Background(), subscribeTopic); err != nil {
		panic(err)
	}

	return d
}

func (d *testDapp) Close() { d.server.Close() }

func (d *testDapp) handle(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/.well-known/did.json":
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "did:web:dapp.test",
			"keyAgreement":   []string{"did:web:dapp.test#ka"},
			"authentication": []string{"did:web:dapp.test#auth"},
			"verificationMethod": []map[string]interface{}{
				{"id": "did:web:dapp.test#ka", "type": "JsonWebKey2020", "publicKeyJwk": map[string]string{"x": hexToB64URL(d.kaPub)}},
				{"id": "did:web:dapp.test#auth", "type": "JsonWebKey2020", "publicKeyJwk": map[string]string{"x": hexToB64URL(d.authPub)}},
			},
		})
	case "/.well-known/wc-notify-config.json":
		json.NewEncoder(w).Encode(did.Config{
			Name:        "Test Dapp",
			Description: "a dapp used for tests",
			Types:       d.types,
		})
	default:
		http.NotFound(w, req)
	}
}

// decodeInboundType1 opens a Type1 envelope addressed to the dapp and
// returns both the decoded rawMessage and the responseTopic derived from
// the sender's attached public key, so the caller can reply on it.
func (d *testDapp) decodeInboundType1(ctx context.Context, data []byte) (rawMessage, string, error) {
	var raw rawMessage
	if len(data) < 33 {
		return rawMessage{}, "", errShortEnvelope
	}
	senderPubHex := hex.EncodeToString(data[1:33])
	topicStr, err := d.crypto.GenerateSharedKey(ctx, d.kaPub, senderPubHex)
	if err != nil {
		return rawMessage{}, "", err
	}
	plain, err := d.crypto.Decode(ctx, topicStr, data)
	if err != nil {
		return rawMessage{}, "", err
	}
	if err := json.Unmarshal(plain, &raw); err != nil {
		return rawMessage{}, "", err
	}
	return raw, topicStr, nil
}

// respondToSubscribe decodes an inbound Type1 subscribe envelope addressed
// to the dapp and publishes a success response back on responseTopic.
func (d *testDapp) respondToSubscribe(ctx context.Context, evt relay.Event) error {
	raw, responseTopic, err := d.decodeInboundType1(ctx, evt.Message)
	if err != nil {
		return err
	}
	var params subscribeParams
	if err := json.Unmarshal(raw.Params, &params); err != nil {
		return err
	}
	var sc claims.SubscriptionClaims
	if err := claims.DecodeInto(params.SubscriptionAuth, claims.ActSubscription, &sc); err != nil {
		return err
	}

	resp, err := envelope.NewResult(raw.ID, resultAuth{ResponseAuth: "ignored-in-tests"})
	if err != nil {
		return err
	}
	codec := envelope.NewCodec(d.crypto)
	body, err := codec.EncodeType0(ctx, responseTopic, resp)
	if err != nil {
		return err
	}
	return d.conn.Publish(ctx, responseTopic, body, relay.PublishOptions{})
}

var errShortEnvelope = &shortEnvelopeErr{}

type shortEnvelopeErr struct{}

func (*shortEnvelopeErr) Error() string { return "envelope too short to contain a sender pubkey" }

// signMessageClaims signs c with the dapp's Ed25519 authentication key,
// the same way internal/identity.Default signs outgoing wallet claims.
func (d *testDapp) signMessageClaims(c claims.MessageClaims) (string, error) {
	raw, err := hex.DecodeString(d.authPriv)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	return token.SignedString(ed25519.PrivateKey(raw))
}

// hexToB64URL converts a hex-encoded public key into the base64url string
// a did.json's publicKeyJwk.x field carries, matching internal/did's
// decode side (jwkXToHex).
func hexToB64URL(hexStr string) string {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}
