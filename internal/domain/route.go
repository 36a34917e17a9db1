/**
 * @description
 * The route gate's decision type. The legacy portal encoded this cascade as a
 * chain of boolean guards inside the protected-route component; here it is an
 * explicit closed enumeration produced by a single resolver so the priority
 * order is testable in isolation.
 */
package domain

// RouteDecision is the screen the portal client must render for a protected
// navigation. The set is closed; resolvers never invent new values.
type RouteDecision string

const (
	RouteLoading            RouteDecision = "loading"
	RouteSessionRepair      RouteDecision = "session_repair"
	RouteSignIn             RouteDecision = "sign_in"
	RouteError              RouteDecision = "error"
	RouteUnderReview        RouteDecision = "under_review"
	RouteUnlinkedMember     RouteDecision = "unlinked_member"
	RouteActivationRequired RouteDecision = "activation_required"
	RoutePaymentRequired    RouteDecision = "payment_required"
	RouteContent            RouteDecision = "content"
)

// RouteResolution is the gate's full answer: the decision plus whatever
// payload the decided screen needs.
type RouteResolution struct {
	Decision   RouteDecision     `json:"decision"`
	Resolution *StatusResolution `json:"resolution,omitempty"`
	// Retryable marks error decisions the client may retry without
	// re-authenticating.
	Retryable bool   `json:"retryable,omitempty"`
	Message   string `json:"message,omitempty"`
}
