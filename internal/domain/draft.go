/**
 * @description
 * Application draft model. Drafts preserve in-progress application form state
 * across the redirect to the payment provider's hosted card-setup page and
 * back. They live in two independent stores (session-scoped and persistent)
 * and expire after 24 hours.
 */
package domain

import (
	"encoding/json"
	"time"
)

// DraftTTL is how long a saved draft stays hydratable.
const DraftTTL = 24 * time.Hour

// ApplicationDraft is the serialized form state written to both draft stores.
// FormData is kept opaque: the portal never interprets individual fields, it
// only round-trips them, so a raw JSON document avoids lockstep schema churn
// with the application form.
type ApplicationDraft struct {
	UserID           string          `json:"user_id"`
	FormData         json.RawMessage `json:"form_data"`
	StripeCustomerID string          `json:"stripe_customer_id,omitempty"`
	SavedAt          time.Time       `json:"saved_at"`
}

// Expired reports whether the draft is older than the TTL at the given time.
func (d *ApplicationDraft) Expired(now time.Time) bool {
	return now.Sub(d.SavedAt) > DraftTTL
}
