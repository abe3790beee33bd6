package claims

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/walletnotify/notify-engine/internal/errs"
)

// actPeek is the minimal shape needed to read `act` before unmarshalling
// into the fully-typed claim set — the discriminator check §9 requires
// happening before any other field access.
type actPeek struct {
	Act Act `json:"act"`
}

// Decode parses an unverified JWS (trust derives from the encrypted
// channel per §4.3, not from the signature) and returns the raw claims
// map plus the act discriminator, without yet asserting which act was
// expected.
func Decode(jws string) (Act, jwt.MapClaims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(jws, jwt.MapClaims{})
	if err != nil {
		return "", nil, errs.Wrap("Decode", errs.JwtDecodeFailed, err)
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, errs.New("Decode", errs.JwtDecodeFailed)
	}

	raw, err := json.Marshal(mc)
	if err != nil {
		return "", nil, errs.Wrap("Decode", errs.JwtDecodeFailed, err)
	}
	var peek actPeek
	if err := json.Unmarshal(raw, &peek); err != nil {
		return "", nil, errs.Wrap("Decode", errs.JwtDecodeFailed, err)
	}
	return peek.Act, mc, nil
}

// DecodeInto decodes jws, asserts act == want (JwtActMismatch otherwise),
// checks expiry (JwtExpired), and unmarshals the full claim set into out.
func DecodeInto(jws string, want Act, out interface{}) error {
	act, mc, err := Decode(jws)
	if err != nil {
		return err
	}
	if act != want {
		return errs.New("DecodeInto", errs.JwtActMismatch)
	}

	raw, err := json.Marshal(mc)
	if err != nil {
		return errs.Wrap("DecodeInto", errs.JwtDecodeFailed, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errs.Wrap("DecodeInto", errs.JwtDecodeFailed, err)
	}

	common, err := extractCommon(out)
	if err != nil {
		return err
	}
	return checkExpiry(common)
}

// extractCommon pulls the embedded Common out of any of this package's
// claim structs via a small type switch — cheaper and clearer than
// reflection for a closed set of known types.
func extractCommon(v interface{}) (Common, error) {
	switch c := v.(type) {
	case *SubscriptionClaims:
		return c.Common, nil
	case *DeleteClaims:
		return c.Common, nil
	case *MessageResponseClaims:
		return c.Common, nil
	case *WatchSubscriptionsClaims:
		return c.Common, nil
	case *WatchSubscriptionsResponseClaims:
		return c.Common, nil
	case *SubscriptionsChangedClaims:
		return c.Common, nil
	case *MessageClaims:
		return c.Common, nil
	default:
		return Common{}, errs.New("extractCommon", errs.JwtDecodeFailed)
	}
}

func checkExpiry(c Common) error {
	now := time.Now()
	if c.IssuedAt != nil && c.IssuedAt.Time.After(now.Add(Skew)) {
		return errs.New("checkExpiry", errs.JwtExpired)
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Time.Before(now) {
		return errs.New("checkExpiry", errs.JwtExpired)
	}
	return nil
}
