/**
 * @description
 * Models for membership applications and the derived application status that
 * drives the portal's route gate. Exactly one status applies to a user at a
 * time, and each status carries only the payload its screen needs.
 */
package domain

import "time"

// ApplicationStatus is the member lifecycle phase resolved from backend tables.
type ApplicationStatus string

const (
	StatusPendingApplication ApplicationStatus = "pending_application"
	StatusUnlinkedMember     ApplicationStatus = "unlinked_member"
	StatusPendingActivation  ApplicationStatus = "pending_activation"
	StatusActive             ApplicationStatus = "active"
)

// MembershipApplication is a row from the membership_applications table.
type MembershipApplication struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Email           string         `json:"email"`
	FullName        string         `json:"full_name"`
	MembershipType  MembershipTier `json:"membership_type"`
	Status          string         `json:"status"`
	AnnualFeeStatus string         `json:"annual_fee_status"`
	SubmittedAt     time.Time      `json:"submitted_at"`
}

// Application status values as stored by the backend.
const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusApproved = "approved"
	ApplicationStatusRejected = "rejected"
)

// AnnualFeeStatusPaid marks an approved application whose joining fee was
// settled during the application funnel.
const AnnualFeeStatusPaid = "paid"

// UnlinkedMember is a member record that matches the user's email but has not
// been linked to an auth account yet.
type UnlinkedMember struct {
	ID             string         `json:"id"`
	Email          string         `json:"email"`
	FullName       string         `json:"full_name"`
	MembershipType MembershipTier `json:"membership_type"`
}

// ManualCharge is a staff-recorded charge against a member. Used only to
// detect an already-settled annual fee.
type ManualCharge struct {
	ID          string    `json:"id"`
	MemberID    string    `json:"member_id"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChargeStatusSucceeded is the terminal success state of a manual charge.
const ChargeStatusSucceeded = "succeeded"

// StatusResolution pairs the resolved status with its status-specific payload.
// Only the field matching Status is populated; reading any other payload field
// is a programming error.
type StatusResolution struct {
	Status          ApplicationStatus      `json:"status"`
	ApplicationData *MembershipApplication `json:"application_data,omitempty"`
	UnlinkedData    *UnlinkedMember        `json:"unlinked_member_data,omitempty"`
	MemberData      *Member                `json:"member_data,omitempty"`
}
