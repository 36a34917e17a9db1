/**
 * @description
 * Internal event payloads published to RabbitMQ and the reconciliation task
 * model backing the retry queue. A partial failure (payment captured but
 * subscription-record creation failed) is deliberately reported to the member
 * as success; these types are what makes that branch observable off-stage.
 */
package domain

import "time"

// Exchange and routing keys for portal events.
const (
	PortalEventsExchange = "portal.events"

	RoutingKeyPartialFailure     = "activation.partial_failure"
	RoutingKeyActivationComplete = "activation.completed"
)

// ActivationPartialFailure is published when a payment was captured but the
// subscription-creation handoff failed.
type ActivationPartialFailure struct {
	EventID         string    `json:"event_id"`
	MemberID        string    `json:"member_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	PaymentMethodID string    `json:"payment_method_id"`
	AmountCents     int64     `json:"amount_cents"`
	Reason          string    `json:"reason"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// ActivationCompleted is published when the full activation flow, including
// subscription creation, finished.
type ActivationCompleted struct {
	EventID         string    `json:"event_id"`
	MemberID        string    `json:"member_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// ReconciliationTask is a row in the activation_reconciliation queue. Tasks
// are inserted on partial failure and retried by the scheduler until the
// subscription-creation call succeeds or attempts are exhausted.
type ReconciliationTask struct {
	ID               int64          `json:"id"`
	MemberID         string         `json:"member_id"`
	Tier             MembershipTier `json:"tier"`
	Gender           Gender         `json:"gender"`
	IsFoundingMember bool           `json:"is_founding_member"`
	StartDate        time.Time      `json:"start_date"`
	SkipAnnualFee    bool           `json:"skip_annual_fee"`
	PaymentMethodID  string         `json:"payment_method_id"`
	PaymentIntentID  string         `json:"payment_intent_id"`
	Attempts         int            `json:"attempts"`
	LastError        string         `json:"last_error,omitempty"`
	Status           string         `json:"status"`
	NextAttemptAt    time.Time      `json:"next_attempt_at"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Reconciliation task states. A claimed task sits in processing until the
// replay resolves it or releases it back to pending.
const (
	ReconciliationPending    = "pending"
	ReconciliationProcessing = "processing"
	ReconciliationResolved   = "resolved"
	ReconciliationFailed     = "failed"
)
