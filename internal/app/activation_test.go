package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/internal/store"
	"github.com/stormwellnessclub/member-portal/pkg/edgeclient"
	"github.com/stormwellnessclub/member-portal/pkg/stripeclient"
)

type activationRepoStub struct {
	application      *domain.MembershipApplication
	applicationCalls int
	chargeExists     bool
	chargeCalls      int
}

func (s *activationRepoStub) GetApprovedApplicationByEmail(ctx context.Context, email string) (*domain.MembershipApplication, error) {
	s.applicationCalls++
	if s.application == nil {
		return nil, store.ErrApplicationNotFound
	}
	return s.application, nil
}

func (s *activationRepoStub) HasSucceededAnnualFeeCharge(ctx context.Context, memberID string) (bool, error) {
	s.chargeCalls++
	return s.chargeExists, nil
}

type edgeStub struct {
	intentReq    *edgeclient.PaymentIntentRequest
	intentErr    error
	intentCalls  int
	subReq       *edgeclient.SubscriptionRequest
	subErr       error
	subCalls     int
	clientSecret string
}

func (s *edgeStub) CreateSubscriptionPaymentIntent(ctx context.Context, accessToken string, req edgeclient.PaymentIntentRequest) (*edgeclient.PaymentIntentResponse, error) {
	s.intentCalls++
	s.intentReq = &req
	if s.intentErr != nil {
		return nil, s.intentErr
	}
	secret := s.clientSecret
	if secret == "" {
		secret = "pi_123_secret_abc"
	}
	return &edgeclient.PaymentIntentResponse{ClientSecret: secret}, nil
}

func (s *edgeStub) CreateSubscriptionFromPayment(ctx context.Context, accessToken string, req edgeclient.SubscriptionRequest) (*edgeclient.SubscriptionResponse, error) {
	s.subCalls++
	s.subReq = &req
	if s.subErr != nil {
		return nil, s.subErr
	}
	return &edgeclient.SubscriptionResponse{Success: true}, nil
}

type paymentsStub struct {
	confirmErr   error
	intent       *stripeclient.PaymentIntent
	gotSecret    string
	gotMethod    string
	confirmCalls int
}

func (s *paymentsStub) ConfirmPaymentIntent(ctx context.Context, clientSecret, paymentMethodID string) (*stripeclient.PaymentIntent, error) {
	s.confirmCalls++
	s.gotSecret = clientSecret
	s.gotMethod = paymentMethodID
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	if s.intent != nil {
		return s.intent, nil
	}
	return &stripeclient.PaymentIntent{
		ID:            "pi_123",
		Status:        stripeclient.IntentStatusSucceeded,
		Amount:        55000,
		PaymentMethod: "pm_123",
	}, nil
}

type queueStub struct {
	tasks []domain.ReconciliationTask
}

func (s *queueStub) InsertTask(ctx context.Context, task domain.ReconciliationTask) error {
	s.tasks = append(s.tasks, task)
	return nil
}

type publisherStub struct {
	routingKeys []string
	bodies      []interface{}
}

func (s *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	s.routingKeys = append(s.routingKeys, routingKey)
	s.bodies = append(s.bodies, body)
	return nil
}

func (s *publisherStub) Close() {}

func goldMember() *domain.Member {
	return &domain.Member{
		ID:             "mem-1",
		UserID:         "user-1",
		Email:          "member@example.com",
		MembershipType: domain.TierGold,
		Status:         domain.MemberStatusPendingActivation,
	}
}

func newTestActivation(repo *activationRepoStub, edge *edgeStub, payments *paymentsStub, queue *queueStub, publisher *publisherStub) *ActivationService {
	svc := NewActivationService(repo, edge, payments, queue, publisher)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestQuote_GoldMonthlyWithUnpaidFee(t *testing.T) {
	// Gold member, gender unset (women's pricing), nothing showing the fee
	// as paid: total = 25000 monthly + 30000 fee.
	repo := &activationRepoStub{}
	svc := newTestActivation(repo, &edgeStub{}, &paymentsStub{}, &queueStub{}, &publisherStub{})

	quote, err := svc.Quote(context.Background(), goldMember(), domain.BillingMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.TotalCents != 55000 {
		t.Fatalf("expected total 55000, got %d", quote.TotalCents)
	}
	if quote.SkipAnnualFee {
		t.Fatal("expected skipAnnualFee=false with no paid markers")
	}
	if quote.Gender != domain.GenderFemale {
		t.Fatalf("expected unset gender to default to female pricing, got %q", quote.Gender)
	}
}

func TestQuote_AnnualFeeShortCircuit(t *testing.T) {
	// A paid-at stamp on the member record must short-circuit: neither the
	// application lookup nor the charge lookup may run.
	paidAt := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	member := goldMember()
	member.AnnualFeePaidAt = &paidAt

	repo := &activationRepoStub{}
	svc := newTestActivation(repo, &edgeStub{}, &paymentsStub{}, &queueStub{}, &publisherStub{})

	quote, err := svc.Quote(context.Background(), member, domain.BillingMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.TotalCents != 25000 {
		t.Fatalf("expected total 25000 with fee skipped, got %d", quote.TotalCents)
	}
	if repo.applicationCalls != 0 {
		t.Fatalf("expected application fee check to be skipped, got %d calls", repo.applicationCalls)
	}
	if repo.chargeCalls != 0 {
		t.Fatalf("expected charge lookup to be skipped, got %d calls", repo.chargeCalls)
	}
}

func TestQuote_FeeSettledByApplicationSkipsChargeLookup(t *testing.T) {
	repo := &activationRepoStub{
		application: &domain.MembershipApplication{
			Status:          domain.ApplicationStatusApproved,
			AnnualFeeStatus: domain.AnnualFeeStatusPaid,
		},
	}
	svc := newTestActivation(repo, &edgeStub{}, &paymentsStub{}, &queueStub{}, &publisherStub{})

	quote, err := svc.Quote(context.Background(), goldMember(), domain.BillingMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !quote.SkipAnnualFee {
		t.Fatal("expected application fee status to settle the fee")
	}
	if repo.chargeCalls != 0 {
		t.Fatalf("expected charge lookup to be skipped, got %d calls", repo.chargeCalls)
	}
}

func TestQuote_FeeSettledByManualCharge(t *testing.T) {
	repo := &activationRepoStub{chargeExists: true}
	svc := newTestActivation(repo, &edgeStub{}, &paymentsStub{}, &queueStub{}, &publisherStub{})

	quote, err := svc.Quote(context.Background(), goldMember(), domain.BillingMonthly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !quote.SkipAnnualFee {
		t.Fatal("expected succeeded annual-fee charge to settle the fee")
	}
}

func TestQuote_DiamondMenRejected(t *testing.T) {
	member := goldMember()
	member.MembershipType = domain.TierDiamond
	member.Gender = domain.GenderMale

	svc := newTestActivation(&activationRepoStub{}, &edgeStub{}, &paymentsStub{}, &queueStub{}, &publisherStub{})
	_, err := svc.Quote(context.Background(), member, domain.BillingMonthly)
	if !errors.Is(err, ErrNoPriceForSelection) {
		t.Fatalf("expected ErrNoPriceForSelection for diamond men's pricing, got %v", err)
	}
}

func TestResolveStartDate_LockedDateIsImmutable(t *testing.T) {
	locked := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	member := goldMember()
	member.LockedStartDate = &locked

	svc := newTestActivation(&activationRepoStub{}, &edgeStub{}, &paymentsStub{}, &queueStub{}, &publisherStub{})

	// A submitted date, even a valid one, must not override the lock.
	got, err := svc.ResolveStartDate(member, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(locked) {
		t.Fatalf("expected locked date %v, got %v", locked, got)
	}
}

func TestResolveStartDate_Rules(t *testing.T) {
	deadline := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		deadline  *time.Time
		requested time.Time
		wantErr   error
	}{
		{
			name:      "missing date",
			requested: time.Time{},
			wantErr:   ErrStartDateRequired,
		},
		{
			name:      "date before today",
			requested: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			wantErr:   ErrStartDateOutOfRange,
		},
		{
			name:      "date past the deadline",
			deadline:  &deadline,
			requested: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			wantErr:   ErrStartDateOutOfRange,
		},
		{
			name:      "date inside the window",
			deadline:  &deadline,
			requested: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			// No deadline recorded: the window defaults to seven days out.
			name:      "default deadline window",
			requested: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "past the default deadline window",
			requested: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
			wantErr:   ErrStartDateOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			member := goldMember()
			member.ActivationDeadline = tt.deadline

			svc := newTestActivation(&activationRepoStub{}, &edgeStub{}, &paymentsStub{}, &queueStub{}, &publisherStub{})
			_, err := svc.ResolveStartDate(member, tt.requested)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateIntent_RequestBodyCarriesSkipAnnualFee(t *testing.T) {
	edge := &edgeStub{}
	svc := newTestActivation(&activationRepoStub{}, edge, &paymentsStub{}, &queueStub{}, &publisherStub{})

	draft, err := svc.CreateIntent(context.Background(), "token", goldMember(), ActivationRequest{
		Billing:   domain.BillingMonthly,
		StartDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.AmountCents != 55000 {
		t.Fatalf("expected draft amount 55000, got %d", draft.AmountCents)
	}
	if edge.intentReq == nil {
		t.Fatal("expected a payment intent request")
	}
	if edge.intentReq.SkipAnnualFee {
		t.Fatal("expected skipAnnualFee:false in the intent request")
	}
	if edge.intentReq.Amount != 55000 {
		t.Fatalf("expected intent amount 55000, got %d", edge.intentReq.Amount)
	}
}

func TestCreateIntent_PaidFeeCarriesSkipFlag(t *testing.T) {
	paidAt := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	member := goldMember()
	member.AnnualFeePaidAt = &paidAt

	edge := &edgeStub{}
	svc := newTestActivation(&activationRepoStub{}, edge, &paymentsStub{}, &queueStub{}, &publisherStub{})

	draft, err := svc.CreateIntent(context.Background(), "token", member, ActivationRequest{
		Billing:   domain.BillingMonthly,
		StartDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.AmountCents != 25000 {
		t.Fatalf("expected draft amount 25000, got %d", draft.AmountCents)
	}
	if !edge.intentReq.SkipAnnualFee {
		t.Fatal("expected skipAnnualFee:true in the intent request")
	}
}

func TestCreateIntent_AuthFailureRedirectsToSignIn(t *testing.T) {
	edge := &edgeStub{intentErr: &edgeclient.FunctionError{
		Function:   "create_subscription_payment_intent",
		StatusCode: 401,
	}}
	svc := newTestActivation(&activationRepoStub{}, edge, &paymentsStub{}, &queueStub{}, &publisherStub{})

	_, err := svc.CreateIntent(context.Background(), "token", goldMember(), ActivationRequest{
		Billing:   domain.BillingMonthly,
		StartDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func testDraft() domain.PaymentIntentDraft {
	return domain.PaymentIntentDraft{
		ClientSecret:  "pi_123_secret_abc",
		AmountCents:   55000,
		Tier:          domain.TierGold,
		Gender:        domain.GenderFemale,
		StartDate:     time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		SkipAnnualFee: false,
	}
}

func TestConfirm_FullSuccess(t *testing.T) {
	edge := &edgeStub{}
	queue := &queueStub{}
	publisher := &publisherStub{}
	svc := newTestActivation(&activationRepoStub{}, edge, &paymentsStub{}, queue, publisher)

	result, err := svc.Confirm(context.Background(), "token", goldMember(), testDraft(), "pm_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded || result.Message != SuccessMessage {
		t.Fatalf("expected success result, got %+v", result)
	}
	if edge.subCalls != 1 {
		t.Fatalf("expected one subscription creation call, got %d", edge.subCalls)
	}
	if edge.subReq.PaymentIntentID != "pi_123" || edge.subReq.PaymentMethodID != "pm_123" {
		t.Fatalf("expected payment ids forwarded, got %+v", edge.subReq)
	}
	if len(queue.tasks) != 0 {
		t.Fatalf("expected no reconciliation task on full success, got %d", len(queue.tasks))
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != domain.RoutingKeyActivationComplete {
		t.Fatalf("expected a completion event, got %v", publisher.routingKeys)
	}
}

// Payment captured but subscription creation failed: the member still sees
// the exact success message, and the discrepancy becomes a queued task plus
// a distinguishable event.
func TestConfirm_PartialFailureReportsSuccess(t *testing.T) {
	edge := &edgeStub{subErr: errors.New("edge function unavailable")}
	queue := &queueStub{}
	publisher := &publisherStub{}
	svc := newTestActivation(&activationRepoStub{}, edge, &paymentsStub{}, queue, publisher)

	result, err := svc.Confirm(context.Background(), "token", goldMember(), testDraft(), "pm_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded {
		t.Fatal("expected the partial-failure branch to report success")
	}
	if result.Message != SuccessMessage {
		t.Fatalf("expected the standard success message, got %q", result.Message)
	}
	if len(queue.tasks) != 1 {
		t.Fatalf("expected one reconciliation task, got %d", len(queue.tasks))
	}
	if queue.tasks[0].PaymentIntentID != "pi_123" {
		t.Fatalf("expected task to carry the intent id, got %+v", queue.tasks[0])
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != domain.RoutingKeyPartialFailure {
		t.Fatalf("expected a partial-failure event, got %v", publisher.routingKeys)
	}
}

func TestConfirm_CardDeclinedIsInlineRetryable(t *testing.T) {
	payments := &paymentsStub{confirmErr: &stripeclient.CardError{Code: "card_declined", Message: "Your card was declined."}}
	queue := &queueStub{}
	edge := &edgeStub{}
	svc := newTestActivation(&activationRepoStub{}, edge, payments, queue, &publisherStub{})

	_, err := svc.Confirm(context.Background(), "token", goldMember(), testDraft(), "pm_123")
	var declined *CardDeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("expected CardDeclinedError, got %v", err)
	}
	if edge.subCalls != 0 {
		t.Fatal("expected no subscription creation after a decline")
	}
	if len(queue.tasks) != 0 {
		t.Fatal("expected no reconciliation task after a decline")
	}
}

func TestConfirm_NoPaymentMethodDefersToWebhook(t *testing.T) {
	payments := &paymentsStub{intent: &stripeclient.PaymentIntent{
		ID:     "pi_123",
		Status: stripeclient.IntentStatusSucceeded,
		Amount: 55000,
	}}
	edge := &edgeStub{}
	svc := newTestActivation(&activationRepoStub{}, edge, payments, &queueStub{}, &publisherStub{})

	result, err := svc.Confirm(context.Background(), "token", goldMember(), testDraft(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.PendingWebhook {
		t.Fatal("expected pending-webhook result when no payment method id returns")
	}
	if edge.subCalls != 0 {
		t.Fatal("expected subscription creation to be deferred to the webhook")
	}
}

// The intent amount is fixed at creation. Confirming after a pricing input
// changed must reuse the original client secret untouched, with no re-pricing
// and no new intent. This pins the current behavior.
func TestConfirm_ReusesIntentCreatedBeforePricingChange(t *testing.T) {
	edge := &edgeStub{}
	payments := &paymentsStub{}
	svc := newTestActivation(&activationRepoStub{}, edge, payments, &queueStub{}, &publisherStub{})

	member := goldMember()
	draft, err := svc.CreateIntent(context.Background(), "token", member, ActivationRequest{
		Billing:   domain.BillingMonthly,
		StartDate: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The member's pricing inputs change after the intent exists.
	member.Gender = domain.GenderMale

	if _, err := svc.Confirm(context.Background(), "token", member, *draft, "pm_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payments.gotSecret != draft.ClientSecret {
		t.Fatalf("expected confirmation to reuse the original client secret, got %q", payments.gotSecret)
	}
	if edge.intentCalls != 1 {
		t.Fatalf("expected no second intent creation, got %d", edge.intentCalls)
	}
}
