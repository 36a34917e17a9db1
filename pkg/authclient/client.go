/**
 * @description
 * This package provides a client for the club backend's GoTrue-compatible
 * auth API. It encapsulates the three session operations the portal consumes
 * (get current user, refresh session, sign out) and classifies failures into
 * JWT-class errors versus everything else, which is the distinction the
 * session validator's state table is built on.
 *
 * @dependencies
 * - encoding/json, net/http, time: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: local structural classification of tokens.
 */
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Client is a client for the auth provider's REST API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new auth API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// User is the identity payload returned by the auth provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a token pair issued by the auth provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user,omitempty"`
}

// APIError represents an error response from the auth provider.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("auth api error (%d)", e.StatusCode)
}

// jwtErrorMarkers are message fragments the provider uses for token-level
// failures. Matched case-insensitively.
var jwtErrorMarkers = []string{
	"jwt",
	"token is expired",
	"invalid token",
	"signature is invalid",
	"malformed",
}

// IsJWTError reports whether err is a JWT-class failure: an expired or
// structurally broken token, as opposed to a transient provider error.
func IsJWTError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenMalformed) ||
		errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return true
		}
		msg := strings.ToLower(apiErr.Message)
		for _, marker := range jwtErrorMarkers {
			if strings.Contains(msg, marker) {
				return true
			}
		}
	}
	return false
}

// ClassifyAccessToken inspects a raw access token locally, without a network
// round-trip. It returns jwt.ErrTokenMalformed for structurally broken tokens
// and jwt.ErrTokenExpired for tokens past their exp claim; nil otherwise.
// Signature validity is the provider's job, not ours.
func ClassifyAccessToken(tokenString string, now time.Time) error {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return jwt.ErrTokenMalformed
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if now.After(exp.Time) {
		return jwt.ErrTokenExpired
	}
	return nil
}

// SubjectFromToken extracts the sub claim from a token without verifying it.
// Suitable only for choosing cache keys, never for authorization.
func SubjectFromToken(tokenString string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// GetUser asks the provider for the user behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/user", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth get user request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	if user.ID == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "user payload missing id"}
	}
	return &user, nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	url := c.BaseURL + "/token?grant_type=refresh_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if session.AccessToken == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "refresh response missing access token"}
	}
	return &session, nil
}

// SignOut revokes the session behind an access token. A 404 from the provider
// means the session is already gone, which is fine for our purposes.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/logout", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth sign out request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return &APIError{StatusCode: resp.StatusCode, Message: "sign out rejected"}
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("apikey", c.APIKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && len(raw) > 0 {
		// GoTrue error bodies vary between {"msg": ...} and {"error_description": ...}.
		var payload struct {
			Msg              string `json:"msg"`
			ErrorCode        string `json:"error_code"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code = payload.ErrorCode
			apiErr.Message = payload.Msg
			if apiErr.Message == "" {
				apiErr.Message = payload.ErrorDescription
			}
		}
	}
	return apiErr
}
