/**
 * @description
 * This package provides a thin client for the payment provider's REST API.
 * The portal only needs two calls: confirming a payment intent server-side
 * (the hosted-element equivalent of confirmPayment with redirect disabled)
 * and fetching an intent's current state for webhook reconciliation.
 *
 * @dependencies
 * - context, encoding/json, net/http, net/url, time: Standard Go libraries.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the payment provider API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new payment provider client.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PaymentIntent is the subset of the provider's intent object the portal reads.
type PaymentIntent struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	ClientSecret  string `json:"client_secret"`
}

// Payment intent status values the portal branches on.
const (
	IntentStatusSucceeded       = "succeeded"
	IntentStatusProcessing      = "processing"
	IntentStatusRequiresAction  = "requires_action"
	IntentStatusRequiresPayment = "requires_payment_method"
	IntentStatusRequiresConfirm = "requires_confirmation"
)

// CardError is a decline or validation failure from the provider. These are
// user-facing and retryable without recreating the intent.
type CardError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

func (e *CardError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "your card could not be charged"
}

// APIError is any other provider failure.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment api error (%d, %s): %s", e.StatusCode, e.Type, e.Message)
}

// ConfirmPaymentIntent confirms an intent using the payment method already
// attached by the hosted element. The intent id is derived from its client
// secret (the provider encodes it as "<id>_secret_<nonce>").
func (c *Client) ConfirmPaymentIntent(ctx context.Context, clientSecret, paymentMethodID string) (*PaymentIntent, error) {
	intentID := IntentIDFromClientSecret(clientSecret)
	if intentID == "" {
		return nil, &APIError{StatusCode: 0, Type: "invalid_request", Message: "malformed client secret"}
	}

	form := url.Values{}
	form.Set("client_secret", clientSecret)
	if paymentMethodID != "" {
		form.Set("payment_method", paymentMethodID)
	}

	endpoint := fmt.Sprintf("%s/v1/payment_intents/%s/confirm", c.BaseURL, intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doIntent(req)
}

// GetPaymentIntent fetches the current state of an intent.
func (c *Client) GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	endpoint := fmt.Sprintf("%s/v1/payment_intents/%s", c.BaseURL, intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	return c.doIntent(req)
}

// IntentIDFromClientSecret extracts the intent id from a client secret.
func IntentIDFromClientSecret(clientSecret string) string {
	idx := strings.Index(clientSecret, "_secret_")
	if idx <= 0 {
		return ""
	}
	return clientSecret[:idx]
}

func (c *Client) doIntent(req *http.Request) (*PaymentIntent, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payment api response read failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error struct {
				Type        string `json:"type"`
				Code        string `json:"code"`
				DeclineCode string `json:"decline_code"`
				Message     string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error.Type == "card_error" {
			return nil, &CardError{
				Code:        payload.Error.Code,
				DeclineCode: payload.Error.DeclineCode,
				Message:     payload.Error.Message,
			}
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Type:       payload.Error.Type,
			Message:    payload.Error.Message,
		}
	}

	var intent PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, fmt.Errorf("payment api response decode failed: %w", err)
	}
	return &intent, nil
}
