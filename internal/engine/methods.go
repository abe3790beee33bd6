package engine

// JSON-RPC method names carried in Request.Method (§4.7). Response
// messages carry no method of their own; the dispatcher recovers it from
// the request ledger entry the id was recorded under.
const (
	MethodSubscribe            = "wc_notifySubscribe"
	MethodMessage               = "wc_notifyMessage"
	MethodDelete                = "wc_notifyDelete"
	MethodUpdate                = "wc_notifyUpdate"
	MethodWatchSubscriptions    = "wc_notifyWatchSubscriptions"
	MethodSubscriptionsChanged  = "wc_notifySubscriptionsChanged"
)

// Per-method request param shapes: each one carries exactly one JWS field
// (§4.3's per-act claim sets, wrapped for wire transport).
type subscribeParams struct {
	SubscriptionAuth string `json:"subscriptionAuth"`
}

type updateParams struct {
	UpdateAuth string `json:"updateAuth"`
}

type deleteParams struct {
	DeleteAuth string `json:"deleteAuth"`
}

type messageParams struct {
	MessageAuth string `json:"messageAuth"`
}

type watchSubscriptionsParams struct {
	WatchSubscriptionsAuth string `json:"watchSubscriptionsAuth"`
}

type subscriptionsChangedParams struct {
	SubscriptionsChangedAuth string `json:"subscriptionsChangedAuth"`
}

// resultAuth is the shared response shape: every successful JSON-RPC
// result this protocol sends back is a single signed JWS.
type resultAuth struct {
	ResponseAuth string `json:"responseAuth"`
}
