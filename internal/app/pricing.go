/**
 * @description
 * The static membership pricing table and quote computation. Four tiers with
 * per-gender rates; the Diamond tier has no men's price, so men cannot select
 * it. The annual joining fee is flat across tiers and is skipped when any of
 * three sources shows it was already settled.
 */
package app

import (
	"errors"

	"github.com/stormwellnessclub/member-portal/internal/domain"
)

// AnnualFeeCents is the flat joining fee charged once per membership.
const AnnualFeeCents int64 = 30000

// ErrNoPriceForSelection means the tier has no rate for the chosen gender.
var ErrNoPriceForSelection = errors.New("no price defined for this membership selection")

// TierRates holds the monthly and founding-member annual rates in cents.
type TierRates struct {
	MonthlyCents int64
	AnnualCents  int64
}

// priceTable maps tier and gender to rates. Diamond intentionally has no
// men's entry.
var priceTable = map[domain.MembershipTier]map[domain.Gender]TierRates{
	domain.TierSilver: {
		domain.GenderFemale: {MonthlyCents: 15000, AnnualCents: 150000},
		domain.GenderMale:   {MonthlyCents: 18000, AnnualCents: 180000},
	},
	domain.TierGold: {
		domain.GenderFemale: {MonthlyCents: 25000, AnnualCents: 250000},
		domain.GenderMale:   {MonthlyCents: 30000, AnnualCents: 300000},
	},
	domain.TierPlatinum: {
		domain.GenderFemale: {MonthlyCents: 40000, AnnualCents: 400000},
		domain.GenderMale:   {MonthlyCents: 48000, AnnualCents: 480000},
	},
	domain.TierDiamond: {
		domain.GenderFemale: {MonthlyCents: 60000, AnnualCents: 600000},
	},
}

// LookupRates returns the rates for a tier/gender pair.
func LookupRates(tier domain.MembershipTier, gender domain.Gender) (TierRates, error) {
	genders, ok := priceTable[tier]
	if !ok {
		return TierRates{}, ErrNoPriceForSelection
	}
	rates, ok := genders[gender]
	if !ok {
		return TierRates{}, ErrNoPriceForSelection
	}
	return rates, nil
}

// PriceQuote is the full activation price breakdown shown to the member and
// used to create the payment intent.
type PriceQuote struct {
	Tier           domain.MembershipTier `json:"tier"`
	Gender         domain.Gender         `json:"gender"`
	Billing        domain.BillingChoice  `json:"billing"`
	BaseCents      int64                 `json:"base_cents"`
	AnnualFeeCents int64                 `json:"annual_fee_cents"`
	TotalCents     int64                 `json:"total_cents"`
	SkipAnnualFee  bool                  `json:"skip_annual_fee"`
}

// buildQuote computes the quote for the given rates and fee decision.
func buildQuote(tier domain.MembershipTier, gender domain.Gender, billing domain.BillingChoice, rates TierRates, skipAnnualFee bool) PriceQuote {
	base := rates.MonthlyCents
	if billing == domain.BillingAnnual {
		base = rates.AnnualCents
	}
	quote := PriceQuote{
		Tier:          tier,
		Gender:        gender,
		Billing:       billing,
		BaseCents:     base,
		SkipAnnualFee: skipAnnualFee,
		TotalCents:    base,
	}
	if !skipAnnualFee {
		quote.AnnualFeeCents = AnnualFeeCents
		quote.TotalCents += AnnualFeeCents
	}
	return quote
}
