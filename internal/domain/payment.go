/**
 * @description
 * Payment intent draft for membership activation. Created once per activation
 * attempt and reused across confirmation retries; the amount is fixed at
 * creation time.
 */
package domain

import "time"

// BillingChoice selects monthly billing or the founding-member annual plan.
type BillingChoice string

const (
	BillingMonthly BillingChoice = "monthly"
	BillingAnnual  BillingChoice = "annual"
)

// PaymentIntentDraft is the transient projection of a created payment intent.
type PaymentIntentDraft struct {
	ClientSecret     string         `json:"client_secret"`
	AmountCents      int64          `json:"amount_cents"`
	Tier             MembershipTier `json:"tier"`
	Gender           Gender         `json:"gender"`
	IsFoundingMember bool           `json:"is_founding_member"`
	StartDate        time.Time      `json:"start_date"`
	SkipAnnualFee    bool           `json:"skip_annual_fee"`
}
