/**
 * @description
 * Prometheus instrumentation for the portal. Counters cover session
 * validation outcomes, route-gate decisions and activation results; the
 * partial-failure counter is the primary signal the reconciliation process
 * watches alongside the published events.
 */
package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_session_validations_total",
		Help: "Session validation passes by resulting state.",
	}, []string{"state"})

	routeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_route_decisions_total",
		Help: "Route gate decisions by rendered screen.",
	}, []string{"decision"})

	activationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_activation_outcomes_total",
		Help: "Activation confirmations by outcome (completed, partial_failure, pending_webhook, declined).",
	}, []string{"outcome"})

	reconciliationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_activation_reconciliation_retries_total",
		Help: "Reconciliation retry attempts by result.",
	}, []string{"result"})
)
