/**
 * @description
 * Data access layer for the portal. The tables live in the club's managed
 * Postgres backend; the portal connects directly with pgx the same way the
 * rest of the platform does, reading the handful of rows that drive route
 * gating and activation pricing.
 */
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stormwellnessclub/member-portal/internal/domain"
)

// Sentinel errors for callers to branch on.
var (
	ErrMemberNotFound      = errors.New("member not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrDraftNotFound       = errors.New("draft not found")
)

// Repository handles database operations for members and applications.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetMemberByUserID retrieves the member record linked to an auth user.
func (r *Repository) GetMemberByUserID(ctx context.Context, userID string) (*domain.Member, error) {
	var m domain.Member
	var gender *string
	query := `
        SELECT id, user_id, full_name, email, membership_type, status, gender,
               is_founding_member, annual_fee_paid_at, activation_deadline,
               locked_start_date, payment_blocked
        FROM members
        WHERE user_id = $1
    `
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&m.ID,
		&m.UserID,
		&m.FullName,
		&m.Email,
		&m.MembershipType,
		&m.Status,
		&gender,
		&m.IsFoundingMember,
		&m.AnnualFeePaidAt,
		&m.ActivationDeadline,
		&m.LockedStartDate,
		&m.PaymentBlocked,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	if gender != nil {
		m.Gender = domain.Gender(strings.ToLower(*gender))
	}
	return &m, nil
}

// GetUnlinkedMemberByEmail finds a member record matching the email that has
// not been linked to any auth account yet.
func (r *Repository) GetUnlinkedMemberByEmail(ctx context.Context, email string) (*domain.UnlinkedMember, error) {
	var m domain.UnlinkedMember
	query := `
        SELECT id, email, full_name, membership_type
        FROM members
        WHERE lower(email) = lower($1) AND user_id IS NULL
    `
	err := r.db.QueryRow(ctx, query, email).Scan(
		&m.ID,
		&m.Email,
		&m.FullName,
		&m.MembershipType,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetPendingApplication retrieves the user's membership application while it
// is still under review.
func (r *Repository) GetPendingApplication(ctx context.Context, userID string) (*domain.MembershipApplication, error) {
	return r.getApplication(ctx, `
        SELECT id, user_id, email, full_name, membership_type, status, annual_fee_status, submitted_at
        FROM membership_applications
        WHERE user_id = $1 AND status = $2
        ORDER BY submitted_at DESC
        LIMIT 1
    `, userID, domain.ApplicationStatusPending)
}

// GetApprovedApplicationByEmail retrieves the most recent approved application
// matching the email. Used only for the annual-fee check.
func (r *Repository) GetApprovedApplicationByEmail(ctx context.Context, email string) (*domain.MembershipApplication, error) {
	return r.getApplication(ctx, `
        SELECT id, user_id, email, full_name, membership_type, status, annual_fee_status, submitted_at
        FROM membership_applications
        WHERE lower(email) = lower($1) AND status = $2
        ORDER BY submitted_at DESC
        LIMIT 1
    `, email, domain.ApplicationStatusApproved)
}

func (r *Repository) getApplication(ctx context.Context, query string, args ...interface{}) (*domain.MembershipApplication, error) {
	var a domain.MembershipApplication
	var userID *string
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&userID,
		&a.Email,
		&a.FullName,
		&a.MembershipType,
		&a.Status,
		&a.AnnualFeeStatus,
		&a.SubmittedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	if userID != nil {
		a.UserID = *userID
	}
	return &a, nil
}

// HasSucceededAnnualFeeCharge reports whether a succeeded manual charge whose
// description mentions both "annual" and "fee" exists for the member.
func (r *Repository) HasSucceededAnnualFeeCharge(ctx context.Context, memberID string) (bool, error) {
	var exists bool
	query := `
        SELECT EXISTS (
            SELECT 1 FROM manual_charges
            WHERE member_id = $1
              AND status = $2
              AND description ILIKE '%annual%'
              AND description ILIKE '%fee%'
        )
    `
	if err := r.db.QueryRow(ctx, query, memberID, domain.ChargeStatusSucceeded).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// LinkMemberToUser attaches an unlinked member record to an auth account.
// Used by the unlinked-member fix screen; the gate re-resolves afterwards.
func (r *Repository) LinkMemberToUser(ctx context.Context, memberID, userID string) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE members SET user_id = $2, updated_at = NOW()
        WHERE id = $1 AND user_id IS NULL
    `, memberID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// TouchMemberActivation stamps the member active with the chosen start date.
// The authoritative transition happens in the backend's edge function; this
// is only the local mirror used when webhooks lag.
func (r *Repository) TouchMemberActivation(ctx context.Context, memberID string, startDate time.Time) error {
	_, err := r.db.Exec(ctx, `
        UPDATE members SET status = $2, start_date = $3, updated_at = NOW()
        WHERE id = $1
    `, memberID, domain.MemberStatusActive, startDate)
	return err
}
