/**
 * @description
 * The route gate: a single authoritative resolver that decides which screen
 * a protected navigation renders. The legacy portal expressed this as a
 * chain of boolean guards; here the cascade is an explicit ordered function
 * over a closed decision type so the priority order is testable on its own.
 *
 * Priority, fixed: loading, session repair, sign-in, status loading, error,
 * then by application status: under review, unlinked member, activation,
 * payment required, content. A member simultaneously pending activation and
 * payment-blocked always sees activation first.
 */
package app

import (
	"context"
	"strings"

	"github.com/stormwellnessclub/member-portal/internal/domain"
)

// PaymentExemptPathPrefixes are the routes a payment-blocked member may still
// reach (settling the balance, talking to support).
var PaymentExemptPathPrefixes = []string{
	"/portal/payments",
	"/portal/support",
}

// GateInput is everything the pure resolver needs to decide.
type GateInput struct {
	AuthLoading   bool
	SessionState  domain.SessionState
	User          *domain.User
	StatusLoading bool
	StatusErr     error
	Resolution    *domain.StatusResolution
	Path          string
}

// ResolveRoute is the authoritative cascade. Pure; no I/O.
func ResolveRoute(in GateInput) domain.RouteResolution {
	if in.AuthLoading {
		return domain.RouteResolution{Decision: domain.RouteLoading}
	}
	if in.SessionState == domain.SessionValidating {
		return domain.RouteResolution{Decision: domain.RouteLoading}
	}
	if in.SessionState == domain.SessionNeedsRepair {
		return domain.RouteResolution{Decision: domain.RouteSessionRepair}
	}
	if in.SessionState == domain.SessionInvalid || in.User == nil {
		return domain.RouteResolution{Decision: domain.RouteSignIn}
	}
	if in.StatusLoading {
		return domain.RouteResolution{Decision: domain.RouteLoading}
	}
	if in.StatusErr != nil {
		return domain.RouteResolution{
			Decision:  domain.RouteError,
			Retryable: true,
			Message:   "We couldn't load your membership details. Please try again.",
		}
	}

	res := in.Resolution
	if res == nil {
		return domain.RouteResolution{
			Decision:  domain.RouteError,
			Retryable: true,
			Message:   "We couldn't load your membership details. Please try again.",
		}
	}

	switch res.Status {
	case domain.StatusPendingApplication:
		return domain.RouteResolution{Decision: domain.RouteUnderReview, Resolution: res}
	case domain.StatusUnlinkedMember:
		return domain.RouteResolution{Decision: domain.RouteUnlinkedMember, Resolution: res}
	case domain.StatusPendingActivation:
		return domain.RouteResolution{Decision: domain.RouteActivationRequired, Resolution: res}
	}

	if paymentBlocked(res) && !pathIsPaymentExempt(in.Path) {
		return domain.RouteResolution{Decision: domain.RoutePaymentRequired, Resolution: res}
	}
	return domain.RouteResolution{Decision: domain.RouteContent, Resolution: res}
}

func paymentBlocked(res *domain.StatusResolution) bool {
	return res.MemberData != nil && res.MemberData.PaymentBlocked
}

func pathIsPaymentExempt(path string) bool {
	for _, prefix := range PaymentExemptPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RouteGate composes the session validator and status resolver into the
// one-call evaluation the portal client hits on every protected navigation.
type RouteGate struct {
	validator *SessionValidator
	resolver  *StatusResolver
}

// NewRouteGate creates a gate.
func NewRouteGate(validator *SessionValidator, resolver *StatusResolver) *RouteGate {
	return &RouteGate{validator: validator, resolver: resolver}
}

// Evaluation is the gate's answer plus the validated session the caller
// should continue with (rotated when a refresh happened mid-pass).
type Evaluation struct {
	Route   domain.RouteResolution
	Session *domain.Session
	User    *domain.User
}

// Evaluate runs a full gate pass: validate the session, resolve the status,
// apply the cascade.
func (g *RouteGate) Evaluate(ctx context.Context, session *domain.Session, path string) Evaluation {
	validation := g.validator.Validate(ctx, session)

	in := GateInput{
		SessionState: validation.State,
		User:         validation.User,
		Path:         path,
	}

	if validation.State == domain.SessionValid {
		resolution, err := g.resolver.Resolve(ctx, validation.User)
		in.Resolution = resolution
		in.StatusErr = err
	}

	route := ResolveRoute(in)
	routeDecisions.WithLabelValues(string(route.Decision)).Inc()

	return Evaluation{Route: route, Session: validation.Session, User: validation.User}
}
