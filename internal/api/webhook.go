/**
 * @description
 * This file contains the HTTP handler for webhooks from the payment provider.
 * Activations whose confirmation returned no payment method id finish here:
 * when the provider reports the intent succeeded, any pending reconciliation
 * row for that intent is resolved and an internal event is published.
 *
 * Key features:
 * - Security: validates the HMAC signature of incoming webhooks.
 * - Idempotency: event ids are deduplicated for a rolling window.
 */
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/pkg/rabbitmq"
)

// webhookTolerance rejects signatures whose timestamp drifted too far.
const webhookTolerance = 5 * time.Minute

// ReconciliationResolver resolves pending tasks by payment intent.
type ReconciliationResolver interface {
	ResolveByPaymentIntent(ctx context.Context, paymentIntentID string) (bool, error)
}

// WebhookHandler processes incoming webhooks from the payment provider.
type WebhookHandler struct {
	producer        rabbitmq.Publisher
	resolver        ReconciliationResolver
	secret          string
	now             func() time.Time
	processedEvents map[string]time.Time
	mutex           sync.Mutex
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(producer rabbitmq.Publisher, resolver ReconciliationResolver, secret string) *WebhookHandler {
	return &WebhookHandler{
		producer:        producer,
		resolver:        resolver,
		secret:          secret,
		now:             time.Now,
		processedEvents: make(map[string]time.Time),
	}
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			Amount        int64  `json:"amount"`
			PaymentMethod string `json:"payment_method"`
			Metadata      struct {
				MemberID string `json:"member_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ServeHTTP validates, dedupes and routes the event.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := h.verifySignature(r.Header.Get("Stripe-Signature"), body); err != nil {
		log.Printf("Webhook signature rejected: %v", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if event.ID != "" && h.alreadyProcessed(event.ID) {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		if err := h.handleIntentSucceeded(r.Context(), event); err != nil {
			// A 5xx makes the provider redeliver; the event is not marked
			// processed, so the retry gets a real second chance.
			log.Printf("Webhook handling failed for event %s: %v", event.ID, err)
			http.Error(w, "handling failed", http.StatusInternalServerError)
			return
		}
	default:
		// Unhandled event types are acknowledged so the provider stops
		// redelivering them.
	}

	if event.ID != "" {
		h.markProcessed(event.ID)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleIntentSucceeded(ctx context.Context, event webhookEvent) error {
	intentID := event.Data.Object.ID
	if intentID == "" {
		return nil
	}

	resolved, err := h.resolver.ResolveByPaymentIntent(ctx, intentID)
	if err != nil {
		return fmt.Errorf("resolve reconciliation for intent %s: %w", intentID, err)
	}
	if !resolved {
		return nil
	}

	log.Printf("Webhook resolved pending activation for intent %s", intentID)
	if h.producer != nil {
		err := h.producer.Publish(ctx, domain.PortalEventsExchange, domain.RoutingKeyActivationComplete, domain.ActivationCompleted{
			EventID:         uuid.NewString(),
			MemberID:        event.Data.Object.Metadata.MemberID,
			PaymentIntentID: intentID,
			OccurredAt:      h.now(),
		})
		if err != nil {
			// Publishing is best-effort; the delivery is still acknowledged.
			log.Printf("Failed to publish webhook activation event: %v", err)
		}
	}
	return nil
}

// verifySignature checks the provider's "t=<ts>,v1=<hex hmac>" header against
// an HMAC-SHA256 of "<ts>.<body>".
func (h *WebhookHandler) verifySignature(header string, body []byte) error {
	if h.secret == "" {
		return fmt.Errorf("webhook secret not configured")
	}
	if header == "" {
		return fmt.Errorf("missing signature header")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("malformed signature header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed signature timestamp")
	}
	drift := h.now().Sub(time.Unix(ts, 0))
	if drift > webhookTolerance || drift < -webhookTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return nil
		}
	}
	return fmt.Errorf("no matching signature")
}

// alreadyProcessed reports whether the event id was handled inside the
// rolling window. Ids are recorded only after a delivery is handled, so a
// failed delivery stays eligible for the provider's retry.
func (h *WebhookHandler) alreadyProcessed(eventID string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	cutoff := h.now().Add(-24 * time.Hour)
	for id, seen := range h.processedEvents {
		if seen.Before(cutoff) {
			delete(h.processedEvents, id)
		}
	}

	_, seen := h.processedEvents[eventID]
	return seen
}

func (h *WebhookHandler) markProcessed(eventID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.processedEvents[eventID] = h.now()
}
