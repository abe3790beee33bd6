package claims

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// commonClaims fills in the shared fields of every outgoing claim set.
func commonClaims(act Act, identityPubHex, dappAuthPubHex, account, keyserverURL string, ttl time.Duration) Common {
	now := time.Now()
	return Common{
		Act: act,
		Iss: "did:key:" + identityPubHex,
		Aud: "did:key:" + dappAuthPubHex,
		Sub: account,
		Ksu: keyserverURL,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// BuildSubscription builds the notify_subscription claims for an outgoing
// subscribe request (§4.8 step 5): scp is every allowed type name joined by
// JWT_SCP_SEPARATOR.
func BuildSubscription(identityPubHex, dappAuthPubHex, account, keyserverURL, domain string, types []string, ttl time.Duration) SubscriptionClaims {
	return SubscriptionClaims{
		Common: commonClaims(ActSubscription, identityPubHex, dappAuthPubHex, account, keyserverURL, ttl),
		Scp:    strings.Join(types, ScopeSeparator),
		App:    DidWebPrefix + domain,
	}
}

// BuildUpdate builds the notify_update claims for an outgoing scope-update
// request (§4.8 update).
func BuildUpdate(identityPubHex, dappAuthPubHex, account, keyserverURL, domain string, scope []string, ttl time.Duration) SubscriptionClaims {
	return SubscriptionClaims{
		Common: commonClaims(ActUpdate, identityPubHex, dappAuthPubHex, account, keyserverURL, ttl),
		Scp:    strings.Join(scope, ScopeSeparator),
		App:    DidWebPrefix + domain,
	}
}

// BuildDelete builds the notify_delete claims for an outgoing delete
// request.
func BuildDelete(identityPubHex, dappAuthPubHex, account, keyserverURL, domain string, ttl time.Duration) DeleteClaims {
	return DeleteClaims{
		Common: commonClaims(ActDelete, identityPubHex, dappAuthPubHex, account, keyserverURL, ttl),
		App:    DidWebPrefix + domain,
	}
}

// BuildMessageResponse builds the notify_message_response claims sent back
// to a dapp after a notify_message request validates.
func BuildMessageResponse(identityPubHex, dappAuthPubHex, account, keyserverURL, domain string, ttl time.Duration) MessageResponseClaims {
	return MessageResponseClaims{
		Common: commonClaims(ActMessageResponse, identityPubHex, dappAuthPubHex, account, keyserverURL, ttl),
		App:    DidWebPrefix + domain,
	}
}

// BuildWatchSubscriptions builds the notify_watch_subscriptions claims for
// the private watchSubscriptions helper (§4.8).
func BuildWatchSubscriptions(identityPubHex, notifyServerAuthPubHex, account, keyserverURL string, ttl time.Duration) WatchSubscriptionsClaims {
	return WatchSubscriptionsClaims{
		Common: commonClaims(ActWatchSubscriptions, identityPubHex, notifyServerAuthPubHex, account, keyserverURL, ttl),
	}
}
