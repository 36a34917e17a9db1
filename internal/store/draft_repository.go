/**
 * @description
 * Persistent half of the dual draft store, backed by Postgres. The volatile
 * half lives in Redis (redis_draft_store.go); the two are written and cleared
 * independently so a failure of one never blocks the other.
 */
package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stormwellnessclub/member-portal/internal/domain"
)

// DraftRepository stores application drafts durably.
type DraftRepository struct {
	db *pgxpool.Pool
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(db *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{db: db}
}

// Save upserts the user's draft.
func (r *DraftRepository) Save(ctx context.Context, draft domain.ApplicationDraft) error {
	formData := draft.FormData
	if formData == nil {
		formData = json.RawMessage("{}")
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO application_drafts (user_id, form_data, stripe_customer_id, saved_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE SET
            form_data = EXCLUDED.form_data,
            stripe_customer_id = EXCLUDED.stripe_customer_id,
            saved_at = EXCLUDED.saved_at
    `, draft.UserID, []byte(formData), draft.StripeCustomerID, draft.SavedAt)
	return err
}

// Get loads the user's draft, or ErrDraftNotFound.
func (r *DraftRepository) Get(ctx context.Context, userID string) (*domain.ApplicationDraft, error) {
	var draft domain.ApplicationDraft
	var formData []byte
	err := r.db.QueryRow(ctx, `
        SELECT user_id, form_data, COALESCE(stripe_customer_id, ''), saved_at
        FROM application_drafts
        WHERE user_id = $1
    `, userID).Scan(&draft.UserID, &formData, &draft.StripeCustomerID, &draft.SavedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	draft.FormData = json.RawMessage(formData)
	return &draft, nil
}

// Delete removes the user's draft. Deleting a missing draft is not an error.
func (r *DraftRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM application_drafts WHERE user_id = $1`, userID)
	return err
}
