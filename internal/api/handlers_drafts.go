/**
 * @description
 * Draft endpoints for the application funnel. Edits land through the
 * debounced save; the flush endpoint is called immediately before the
 * redirect to the payment provider; the customer endpoint adopts the id
 * carried back by the return redirect.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stormwellnessclub/member-portal/internal/domain"
	"github.com/stormwellnessclub/member-portal/internal/store"
)

// requireUser validates the session without needing a member record; the
// application funnel runs before a member exists.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	session := SessionFromContext(r.Context())
	result := h.validator.Validate(r.Context(), session)
	if result.State != domain.SessionValid {
		respondWithError(w, http.StatusUnauthorized, "Please sign in again.")
		return nil, false
	}
	return result.User, true
}

type saveDraftRequest struct {
	FormData json.RawMessage `json:"form_data"`
}

// handleSaveDraft records a form edit (debounced write-behind).
func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req saveDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	h.drafts.Save(r.Context(), domain.ApplicationDraft{
		UserID:   user.ID,
		FormData: req.FormData,
	})
	w.WriteHeader(http.StatusAccepted)
}

// handleFlushDraft forces the pending draft to storage before a redirect.
func (h *Handler) handleFlushDraft(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.drafts.Flush(r.Context(), user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDraft hydrates the saved draft, if any survives the expiry rule.
func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	draft, err := h.drafts.Load(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, store.ErrDraftNotFound) {
			respondWithJSON(w, http.StatusOK, map[string]interface{}{"draft": nil})
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"draft": draft})
}

// handleAdoptCustomer attaches the payment customer id from the provider's
// return redirect without disturbing the latest typed form values.
func (h *Handler) handleAdoptCustomer(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == "" {
		respondWithError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if err := h.drafts.AdoptCustomerID(r.Context(), user.ID, req.CustomerID); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearDraft deletes the draft after a successful submission.
func (h *Handler) handleClearDraft(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	h.drafts.Clear(r.Context(), user.ID)
	w.WriteHeader(http.StatusNoContent)
}
