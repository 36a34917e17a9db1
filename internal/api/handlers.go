/**
 * @description
 * HTTP handlers for the portal. Handlers parse requests, validate the
 * caller's session through the route gate or validator, call the application
 * layer and shape the response. User-facing error messages stay short and
 * non-technical; details go to the logs.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stormwellnessclub/member-portal/internal/app"
	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/internal/store"
)

// MemberLinker attaches unlinked member records to auth accounts.
type MemberLinker interface {
	LinkMemberToUser(ctx context.Context, memberID, userID string) error
	GetMemberByUserID(ctx context.Context, userID string) (*domain.Member, error)
}

// Handler holds the application services the routes dispatch to.
type Handler struct {
	gate       *app.RouteGate
	validator  *app.SessionValidator
	activation *app.ActivationService
	drafts     *app.DraftService
	members    MemberLinker
}

// NewHandler creates a new Handler.
func NewHandler(gate *app.RouteGate, validator *app.SessionValidator, activation *app.ActivationService, drafts *app.DraftService, members MemberLinker) *Handler {
	return &Handler{
		gate:       gate,
		validator:  validator,
		activation: activation,
		drafts:     drafts,
		members:    members,
	}
}

// handleGate answers the route-gate question for a protected navigation.
func (h *Handler) handleGate(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	path := r.URL.Query().Get("path")

	eval := h.gate.Evaluate(r.Context(), session, path)
	respondWithJSON(w, http.StatusOK, eval.Route)
}

// handleSessionRetry is the soft repair action: re-run a validation pass.
func (h *Handler) handleSessionRetry(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	result := h.validator.Validate(r.Context(), session)
	respondWithJSON(w, http.StatusOK, result)
}

// handleSessionReset is the hard repair action: wipe the cached session and
// revoke it with the provider. Idempotent; always sends the caller to sign-in.
func (h *Handler) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	h.validator.HardReset(r.Context(), session)
	respondWithJSON(w, http.StatusOK, map[string]string{"next": string(domain.RouteSignIn)})
}

// requireMember validates the session and loads the caller's member record.
func (h *Handler) requireMember(w http.ResponseWriter, r *http.Request) (*domain.Member, *domain.Session, bool) {
	session := SessionFromContext(r.Context())
	result := h.validator.Validate(r.Context(), session)
	if result.State != domain.SessionValid {
		respondWithError(w, http.StatusUnauthorized, "Please sign in again.")
		return nil, nil, false
	}

	member, err := h.members.GetMemberByUserID(r.Context(), result.User.ID)
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			respondWithError(w, http.StatusNotFound, "No membership found for this account.")
			return nil, nil, false
		}
		respondWithError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return nil, nil, false
	}
	return member, result.Session, true
}

type createIntentRequest struct {
	Billing   string `json:"billing"`
	StartDate string `json:"start_date"`
}

// handleCreateIntent prices the activation and creates a payment intent.
func (h *Handler) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	member, session, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	var startDate time.Time
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Start date must look like 2006-01-02.")
			return
		}
		startDate = parsed
	}

	draft, err := h.activation.CreateIntent(r.Context(), session.AccessToken, member, app.ActivationRequest{
		Billing:   domain.BillingChoice(req.Billing),
		StartDate: startDate,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrAuthRequired):
			respondWithJSON(w, http.StatusUnauthorized, map[string]string{"next": string(domain.RouteSignIn)})
		case errors.Is(err, app.ErrStartDateRequired), errors.Is(err, app.ErrStartDateOutOfRange), errors.Is(err, app.ErrNoPriceForSelection):
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			respondWithError(w, http.StatusBadGateway, "We couldn't start your payment. Please try again.")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, draft)
}

type confirmRequest struct {
	ClientSecret     string `json:"client_secret"`
	PaymentMethodID  string `json:"payment_method_id"`
	Tier             string `json:"tier"`
	Gender           string `json:"gender"`
	IsFoundingMember bool   `json:"is_founding_member"`
	StartDate        string `json:"start_date"`
	SkipAnnualFee    bool   `json:"skip_annual_fee"`
}

// handleConfirm confirms the previously created intent. Confirmation errors
// come back inline; the intent stays valid for a retry.
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	member, session, ok := h.requireMember(w, r)
	if !ok {
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if req.ClientSecret == "" {
		respondWithError(w, http.StatusBadRequest, "Missing payment details.")
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Start date must look like 2006-01-02.")
		return
	}

	draft := domain.PaymentIntentDraft{
		ClientSecret:     req.ClientSecret,
		Tier:             domain.MembershipTier(req.Tier),
		Gender:           domain.Gender(req.Gender),
		IsFoundingMember: req.IsFoundingMember,
		StartDate:        startDate,
		SkipAnnualFee:    req.SkipAnnualFee,
	}

	result, err := h.activation.Confirm(r.Context(), session.AccessToken, member, draft, req.PaymentMethodID)
	if err != nil {
		var declined *app.CardDeclinedError
		if errors.As(err, &declined) {
			respondWithError(w, http.StatusPaymentRequired, declined.Error())
			return
		}
		respondWithError(w, http.StatusBadGateway, "Your payment could not be completed. Please try again.")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// handleLinkMember attaches an unlinked member record to the caller's
// account; the client re-resolves the gate on success.
func (h *Handler) handleLinkMember(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	result := h.validator.Validate(r.Context(), session)
	if result.State != domain.SessionValid {
		respondWithError(w, http.StatusUnauthorized, "Please sign in again.")
		return
	}

	var req struct {
		MemberID string `json:"member_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MemberID == "" {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if err := h.members.LinkMemberToUser(r.Context(), req.MemberID, result.User.ID); err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			respondWithError(w, http.StatusConflict, "This membership is already linked.")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"linked": true})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
