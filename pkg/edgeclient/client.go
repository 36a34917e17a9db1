/**
 * @description
 * This package provides a client for the club backend's serverless edge
 * functions. The portal invokes exactly two of them: one to create a
 * subscription payment intent for membership activation, and one to create
 * the subscription after a confirmed payment.
 *
 * @dependencies
 * - bytes, context, encoding/json, net/http, time: Standard Go libraries.
 */
package edgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client invokes named edge functions over HTTP.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new edge-function client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PaymentIntentRequest is the body for create_subscription_payment_intent.
type PaymentIntentRequest struct {
	MemberID         string `json:"memberId"`
	Tier             string `json:"tier"`
	Gender           string `json:"gender"`
	IsFoundingMember bool   `json:"isFoundingMember"`
	StartDate        string `json:"startDate"`
	SkipAnnualFee    bool   `json:"skipAnnualFee"`
	Amount           int64  `json:"amount"`
}

// PaymentIntentResponse carries the client secret for the hosted payment
// element, or an error message.
type PaymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
	Error        string `json:"error,omitempty"`
}

// SubscriptionRequest is the body for create_subscription_from_payment.
type SubscriptionRequest struct {
	MemberID         string `json:"memberId"`
	Tier             string `json:"tier"`
	Gender           string `json:"gender"`
	IsFoundingMember bool   `json:"isFoundingMember"`
	StartDate        string `json:"startDate"`
	SkipAnnualFee    bool   `json:"skipAnnualFee"`
	PaymentMethodID  string `json:"paymentMethodId"`
	PaymentIntentID  string `json:"paymentIntentId"`
}

// SubscriptionResponse reports whether the subscription record was created.
type SubscriptionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FunctionError represents a non-2xx response from an edge function.
type FunctionError struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("edge function %s failed (%d): %s", e.Function, e.StatusCode, e.Message)
}

// IsAuthError reports whether the function rejected the caller's credentials.
func (e *FunctionError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// CreateSubscriptionPaymentIntent invokes create_subscription_payment_intent
// on behalf of the member identified by the access token.
func (c *Client) CreateSubscriptionPaymentIntent(ctx context.Context, accessToken string, req PaymentIntentRequest) (*PaymentIntentResponse, error) {
	var out PaymentIntentResponse
	if err := c.invoke(ctx, "create_subscription_payment_intent", accessToken, req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, &FunctionError{Function: "create_subscription_payment_intent", StatusCode: http.StatusOK, Message: out.Error}
	}
	if out.ClientSecret == "" {
		return nil, &FunctionError{Function: "create_subscription_payment_intent", StatusCode: http.StatusOK, Message: "missing client secret"}
	}
	return &out, nil
}

// CreateSubscriptionFromPayment invokes create_subscription_from_payment.
func (c *Client) CreateSubscriptionFromPayment(ctx context.Context, accessToken string, req SubscriptionRequest) (*SubscriptionResponse, error) {
	var out SubscriptionResponse
	if err := c.invoke(ctx, "create_subscription_from_payment", accessToken, req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, &FunctionError{Function: "create_subscription_from_payment", StatusCode: http.StatusOK, Message: out.Error}
	}
	return &out, nil
}

func (c *Client) invoke(ctx context.Context, name, accessToken string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+name, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.APIKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("edge function %s request failed: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("edge function %s response read failed: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fnErr := &FunctionError{Function: name, StatusCode: resp.StatusCode, Message: string(raw)}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			fnErr.Message = payload.Error
		}
		return fnErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("edge function %s response decode failed: %w", name, err)
	}
	return nil
}
