/**
 * @description
 * This file defines the core member models shared across the portal service.
 * Members are owned by the club's managed backend (Supabase Postgres); the
 * portal only reads the fields it needs to drive activation and route gating.
 */
package domain

import "time"

// MembershipTier identifies one of the club's fixed membership tiers.
type MembershipTier string

const (
	TierSilver   MembershipTier = "Silver Membership"
	TierGold     MembershipTier = "Gold Membership"
	TierPlatinum MembershipTier = "Platinum Membership"
	TierDiamond  MembershipTier = "Diamond Membership"
)

// Gender selects the pricing column for a tier. Members without a recorded
// gender fall back to women's pricing.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// Member is the subset of the members table relevant to activation.
type Member struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	FullName           string         `json:"full_name"`
	Email              string         `json:"email"`
	MembershipType     MembershipTier `json:"membership_type"`
	Status             string         `json:"status"`
	Gender             Gender         `json:"gender,omitempty"`
	IsFoundingMember   bool           `json:"is_founding_member"`
	AnnualFeePaidAt    *time.Time     `json:"annual_fee_paid_at,omitempty"`
	ActivationDeadline *time.Time     `json:"activation_deadline,omitempty"`
	LockedStartDate    *time.Time     `json:"locked_start_date,omitempty"`
	PaymentBlocked     bool           `json:"payment_blocked"`
}

// Member status values as stored by the backend.
const (
	MemberStatusPendingActivation = "pending_activation"
	MemberStatusActive            = "active"
	MemberStatusFrozen            = "frozen"
)

// ActivationDeadlineOrDefault returns the admin-set deadline, or the fallback
// window of seven days from now when no deadline was recorded.
func (m *Member) ActivationDeadlineOrDefault(now time.Time) time.Time {
	if m.ActivationDeadline != nil {
		return *m.ActivationDeadline
	}
	return now.AddDate(0, 0, 7)
}

// PricingGender resolves the pricing column for the member, defaulting to
// women's pricing when gender was never recorded.
func (m *Member) PricingGender() Gender {
	if m.Gender == GenderMale {
		return GenderMale
	}
	return GenderFemale
}
