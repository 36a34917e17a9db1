/**
 * @description
 * Membership activation payment orchestration. Walks a pending member through
 * pricing, start-date rules, payment-intent creation, server-side
 * confirmation and the subscription-creation handoff.
 *
 * Partial failures are the delicate branch: once the payment is captured, a
 * failed subscription-creation call must not alarm the member. The flow still
 * reports success, enqueues a reconciliation task and publishes a
 * distinguishable event so staff tooling and the scheduler can finish the job.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/internal/store"
	"github.com/stormwellnessclub/member-portal/pkg/edgeclient"
	"github.com/stormwellnessclub/member-portal/pkg/rabbitmq"
	"github.com/stormwellnessclub/member-portal/pkg/stripeclient"
)

// Errors the API layer branches on.
var (
	ErrAuthRequired        = errors.New("authentication required")
	ErrStartDateRequired   = errors.New("a start date must be chosen")
	ErrStartDateOutOfRange = errors.New("start date must be between today and the activation deadline")
)

// SuccessMessage is the user-visible outcome for every activation that
// captured funds, including the partial-failure branch.
const SuccessMessage = "Your membership is active. Welcome to Storm Wellness Club."

// ActivationRepository is the slice of the data layer the flow consumes for
// the annual-fee check.
type ActivationRepository interface {
	GetApprovedApplicationByEmail(ctx context.Context, email string) (*domain.MembershipApplication, error)
	HasSucceededAnnualFeeCharge(ctx context.Context, memberID string) (bool, error)
}

// EdgeAPI is the pair of backend edge functions the flow invokes.
type EdgeAPI interface {
	CreateSubscriptionPaymentIntent(ctx context.Context, accessToken string, req edgeclient.PaymentIntentRequest) (*edgeclient.PaymentIntentResponse, error)
	CreateSubscriptionFromPayment(ctx context.Context, accessToken string, req edgeclient.SubscriptionRequest) (*edgeclient.SubscriptionResponse, error)
}

// PaymentAPI is the payment provider operation the flow consumes.
type PaymentAPI interface {
	ConfirmPaymentIntent(ctx context.Context, clientSecret, paymentMethodID string) (*stripeclient.PaymentIntent, error)
}

// ReconciliationQueue accepts tasks for payments whose subscription creation
// must be retried.
type ReconciliationQueue interface {
	InsertTask(ctx context.Context, task domain.ReconciliationTask) error
}

// ActivationService orchestrates the activation payment flow.
type ActivationService struct {
	repo      ActivationRepository
	edge      EdgeAPI
	payments  PaymentAPI
	queue     ReconciliationQueue
	publisher rabbitmq.Publisher
	now       func() time.Time
}

// NewActivationService creates the service.
func NewActivationService(repo ActivationRepository, edge EdgeAPI, payments PaymentAPI, queue ReconciliationQueue, publisher rabbitmq.Publisher) *ActivationService {
	return &ActivationService{
		repo:      repo,
		edge:      edge,
		payments:  payments,
		queue:     queue,
		publisher: publisher,
		now:       time.Now,
	}
}

// Quote computes the activation price for the member and billing choice. The
// annual fee is skipped when any of three sources, checked in order with
// short-circuiting, shows it already settled: the member record's paid-at
// stamp, a matching approved application's fee status, or a succeeded manual
// charge described as an annual fee.
func (s *ActivationService) Quote(ctx context.Context, member *domain.Member, billing domain.BillingChoice) (*PriceQuote, error) {
	gender := member.PricingGender()
	rates, err := LookupRates(member.MembershipType, gender)
	if err != nil {
		return nil, err
	}

	skipFee, err := s.annualFeeAlreadyPaid(ctx, member)
	if err != nil {
		return nil, err
	}

	if member.IsFoundingMember && billing == "" {
		billing = domain.BillingAnnual
	}
	if billing == "" {
		billing = domain.BillingMonthly
	}

	quote := buildQuote(member.MembershipType, gender, billing, rates, skipFee)
	return &quote, nil
}

func (s *ActivationService) annualFeeAlreadyPaid(ctx context.Context, member *domain.Member) (bool, error) {
	if member.AnnualFeePaidAt != nil {
		return true, nil
	}

	application, err := s.repo.GetApprovedApplicationByEmail(ctx, member.Email)
	if err == nil && application.AnnualFeeStatus == domain.AnnualFeeStatusPaid {
		return true, nil
	}
	if err != nil && !errors.Is(err, store.ErrApplicationNotFound) {
		return false, err
	}

	return s.repo.HasSucceededAnnualFeeCharge(ctx, member.ID)
}

// ResolveStartDate applies the start-date rules: an admin-locked date is
// immutable and wins over whatever was submitted; otherwise the chosen date
// must fall between today and the activation deadline.
func (s *ActivationService) ResolveStartDate(member *domain.Member, requested time.Time) (time.Time, error) {
	if member.LockedStartDate != nil {
		return *member.LockedStartDate, nil
	}
	if requested.IsZero() {
		return time.Time{}, ErrStartDateRequired
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	deadline := member.ActivationDeadlineOrDefault(now)
	day := time.Date(requested.Year(), requested.Month(), requested.Day(), 0, 0, 0, 0, time.UTC)

	if day.Before(today) || day.After(deadline) {
		return time.Time{}, ErrStartDateOutOfRange
	}
	return day, nil
}

// ActivationRequest is the member's activation choices.
type ActivationRequest struct {
	Billing   domain.BillingChoice `json:"billing"`
	StartDate time.Time            `json:"start_date"`
}

// CreateIntent prices the activation and asks the backend for a payment
// intent. The resulting draft pins the amount: later changes to gender or
// billing are not re-priced against an already-created intent.
func (s *ActivationService) CreateIntent(ctx context.Context, accessToken string, member *domain.Member, req ActivationRequest) (*domain.PaymentIntentDraft, error) {
	quote, err := s.Quote(ctx, member, req.Billing)
	if err != nil {
		return nil, err
	}

	startDate, err := s.ResolveStartDate(member, req.StartDate)
	if err != nil {
		return nil, err
	}

	resp, err := s.edge.CreateSubscriptionPaymentIntent(ctx, accessToken, edgeclient.PaymentIntentRequest{
		MemberID:         member.ID,
		Tier:             string(quote.Tier),
		Gender:           string(quote.Gender),
		IsFoundingMember: member.IsFoundingMember,
		StartDate:        startDate.Format("2006-01-02"),
		SkipAnnualFee:    quote.SkipAnnualFee,
		Amount:           quote.TotalCents,
	})
	if err != nil {
		var fnErr *edgeclient.FunctionError
		if errors.As(err, &fnErr) && fnErr.IsAuthError() {
			return nil, ErrAuthRequired
		}
		return nil, err
	}

	return &domain.PaymentIntentDraft{
		ClientSecret:     resp.ClientSecret,
		AmountCents:      quote.TotalCents,
		Tier:             quote.Tier,
		Gender:           quote.Gender,
		IsFoundingMember: member.IsFoundingMember,
		StartDate:        startDate,
		SkipAnnualFee:    quote.SkipAnnualFee,
	}, nil
}

// ActivationResult is the flow's terminal report.
type ActivationResult struct {
	Succeeded       bool   `json:"succeeded"`
	Message         string `json:"message"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	// PendingWebhook means no payment method id came back from confirmation;
	// the provider's webhook will complete setup.
	PendingWebhook bool `json:"pending_webhook,omitempty"`
}

// CardDeclinedError wraps a provider card error so the API layer can render
// it inline. The intent stays valid; the member may retry without a new one.
type CardDeclinedError struct {
	Underlying *stripeclient.CardError
}

func (e *CardDeclinedError) Error() string { return e.Underlying.Error() }

// Confirm confirms the payment intent and hands off to subscription creation.
// A subscription-creation failure after a captured payment is reported as
// success to the member; the discrepancy is queued for reconciliation and
// published as a partial-failure event.
func (s *ActivationService) Confirm(ctx context.Context, accessToken string, member *domain.Member, draft domain.PaymentIntentDraft, paymentMethodID string) (*ActivationResult, error) {
	intent, err := s.payments.ConfirmPaymentIntent(ctx, draft.ClientSecret, paymentMethodID)
	if err != nil {
		var cardErr *stripeclient.CardError
		if errors.As(err, &cardErr) {
			activationOutcomes.WithLabelValues("declined").Inc()
			return nil, &CardDeclinedError{Underlying: cardErr}
		}
		return nil, err
	}

	if intent.Status != stripeclient.IntentStatusSucceeded && intent.Status != stripeclient.IntentStatusProcessing {
		return nil, fmt.Errorf("payment not completed (status %s)", intent.Status)
	}

	if intent.PaymentMethod == "" {
		// No payment method back from confirmation: the provider's webhook
		// will finish the subscription setup.
		activationOutcomes.WithLabelValues("pending_webhook").Inc()
		return &ActivationResult{
			Succeeded:       true,
			Message:         SuccessMessage,
			PaymentIntentID: intent.ID,
			PendingWebhook:  true,
		}, nil
	}

	subReq := edgeclient.SubscriptionRequest{
		MemberID:         member.ID,
		Tier:             string(draft.Tier),
		Gender:           string(draft.Gender),
		IsFoundingMember: draft.IsFoundingMember,
		StartDate:        draft.StartDate.Format("2006-01-02"),
		SkipAnnualFee:    draft.SkipAnnualFee,
		PaymentMethodID:  intent.PaymentMethod,
		PaymentIntentID:  intent.ID,
	}

	if _, err := s.edge.CreateSubscriptionFromPayment(ctx, accessToken, subReq); err != nil {
		// Funds are captured; do not fail the member. Queue the retry and
		// make the discrepancy observable.
		log.Printf("Subscription creation failed after captured payment (intent %s, member %s): %v", intent.ID, member.ID, err)
		s.recordPartialFailure(ctx, member, draft, intent, err)
		activationOutcomes.WithLabelValues("partial_failure").Inc()
		return &ActivationResult{
			Succeeded:       true,
			Message:         SuccessMessage,
			PaymentIntentID: intent.ID,
		}, nil
	}

	s.publish(ctx, domain.RoutingKeyActivationComplete, domain.ActivationCompleted{
		EventID:         uuid.NewString(),
		MemberID:        member.ID,
		PaymentIntentID: intent.ID,
		OccurredAt:      s.now(),
	})
	activationOutcomes.WithLabelValues("completed").Inc()

	return &ActivationResult{
		Succeeded:       true,
		Message:         SuccessMessage,
		PaymentIntentID: intent.ID,
	}, nil
}

func (s *ActivationService) recordPartialFailure(ctx context.Context, member *domain.Member, draft domain.PaymentIntentDraft, intent *stripeclient.PaymentIntent, cause error) {
	task := domain.ReconciliationTask{
		MemberID:         member.ID,
		Tier:             draft.Tier,
		Gender:           draft.Gender,
		IsFoundingMember: draft.IsFoundingMember,
		StartDate:        draft.StartDate,
		SkipAnnualFee:    draft.SkipAnnualFee,
		PaymentMethodID:  intent.PaymentMethod,
		PaymentIntentID:  intent.ID,
	}
	if err := s.queue.InsertTask(ctx, task); err != nil {
		log.Printf("Failed to enqueue reconciliation task for intent %s: %v", intent.ID, err)
	}

	s.publish(ctx, domain.RoutingKeyPartialFailure, domain.ActivationPartialFailure{
		EventID:         uuid.NewString(),
		MemberID:        member.ID,
		PaymentIntentID: intent.ID,
		PaymentMethodID: intent.PaymentMethod,
		AmountCents:     intent.Amount,
		Reason:          cause.Error(),
		OccurredAt:      s.now(),
	})
}

func (s *ActivationService) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, domain.PortalEventsExchange, routingKey, body); err != nil {
		log.Printf("Failed to publish %s event: %v", routingKey, err)
	}
}
