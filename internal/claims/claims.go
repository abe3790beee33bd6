// Package claims models every JWT claim set the notify protocol signs and
// validates (§4.3), one Go struct per `act`, with the act string itself as
// the tagged-union discriminator (§9: checked before any other field
// access).
package claims

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Act names the protocol action a claim set authorizes.
type Act string

const (
	ActSubscription             Act = "notify_subscription"
	ActUpdate                   Act = "notify_update"
	ActDelete                   Act = "notify_delete"
	ActMessageResponse          Act = "notify_message_response"
	ActWatchSubscriptions       Act = "notify_watch_subscriptions"
	ActWatchSubscriptionsResp   Act = "notify_watch_subscriptions_response"
	ActSubscriptionsChanged     Act = "notify_subscriptions_changed"
	ActMessage                  Act = "notify_message"
)

// Skew is the wall-clock tolerance applied to iat/exp checks (§4.3).
const Skew = 5 * time.Second

// DidWebPrefix and the scope separator are the two protocol-level string
// constants named in §6.
const (
	DidWebPrefix    = "did:web:"
	ScopeSeparator  = " "
)

// Common carries the claims present on every protocol action (§4.3).
type Common struct {
	Act Act    `json:"act"`
	Iss string `json:"iss"` // did:key of identity pub
	Aud string `json:"aud"` // did:key of dapp auth key
	Sub string `json:"sub"` // account, as the bare CAIP-10 string (no did:pkh: prefix is added)
	Ksu string `json:"ksu"` // keyserver URL
	jwt.RegisteredClaims
}

// SubscriptionClaims authorizes an outgoing subscribe or update request.
type SubscriptionClaims struct {
	Common
	Scp string `json:"scp"` // space-separated scope type names
	App string `json:"app"` // did:web:{domain}
}

// DeleteClaims authorizes an outgoing delete request.
type DeleteClaims struct {
	Common
	App string `json:"app"`
}

// MessageResponseClaims authorizes the wallet's response to an inbound
// notify_message request.
type MessageResponseClaims struct {
	Common
	App string `json:"app"`
}

// WatchSubscriptionsClaims authorizes an outgoing watch request; it carries
// no claims beyond Common.
type WatchSubscriptionsClaims struct {
	Common
}

// SubscriptionEntry is one element of an `sbs[]` array (§4.3): the
// notify server's authoritative view of a single subscription.
type SubscriptionEntry struct {
	Account   string   `json:"account"`
	SymKey    string   `json:"symKey"`
	Scope     []string `json:"scope"`
	Expiry    int64    `json:"expiry"`
	AppDomain string   `json:"appDomain"`
}

// WatchSubscriptionsResponseClaims is carried by an inbound
// notify_watch_subscriptions_response.
type WatchSubscriptionsResponseClaims struct {
	Common
	Sbs []SubscriptionEntry `json:"sbs"`
}

// SubscriptionsChangedClaims is carried by an inbound
// notify_subscriptions_changed request.
type SubscriptionsChangedClaims struct {
	Common
	Sbs []SubscriptionEntry `json:"sbs"`
}

// MessageBody is the dapp-supplied notification content (§4.3/§8 S2).
type MessageBody struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

// MessageClaims is carried by an inbound notify_message request.
type MessageClaims struct {
	Common
	Msg MessageBody `json:"msg"`
}
