package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Plan is a catalog entry. It is read-only to the billing core.
// Price is the monthly price in major currency units (e.g. 50 means 50.00 EUR).
type Plan struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency,omitempty"`
	Price         decimal.Decimal `json:"price"`
	DurationDays  int             `json:"duration_days"`
	OfferMonths   int             `json:"offer_months,omitempty"`   // bundled offer length, 0 when the plan has none
	OfferDiscount decimal.Decimal `json:"offer_discount,omitempty"` // percent off the bundled offer
}

// Validate checks the plan is usable for charging.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPlan)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: plan %s has non-positive price %s", ErrInvalidPlan, p.ID, p.Price)
	}
	if p.DurationDays < 0 {
		return fmt.Errorf("%w: plan %s has negative duration", ErrInvalidPlan, p.ID)
	}
	if p.OfferMonths < 0 {
		return fmt.Errorf("%w: plan %s has negative offer months", ErrInvalidPlan, p.ID)
	}
	if p.OfferDiscount.IsNegative() || p.OfferDiscount.GreaterThan(hundred) {
		return fmt.Errorf("%w: plan %s discount must be within 0..100", ErrInvalidPlan, p.ID)
	}
	return nil
}

// MinorPrice converts the monthly price to minor units, rounding half up.
func (p Plan) MinorPrice() int64 {
	return ToMinor(p.Price)
}

// BaseDuration returns the plan duration in days, falling back to the platform default.
func (p Plan) BaseDuration() int {
	if p.DurationDays > 0 {
		return p.DurationDays
	}
	return DefaultDurationDays
}

// SpecialOffer quotes the plan's bundled offer.
func (p Plan) SpecialOffer() OfferQuote {
	return SpecialOffer(p.Price, p.OfferMonths, p.OfferDiscount)
}

// AnnualOffer quotes twelve months with the plan's discount.
func (p Plan) AnnualOffer() OfferQuote {
	return AnnualOffer(p.Price, p.OfferDiscount)
}

// OfferKind selects how a plan is bought.
type OfferKind string

const (
	OfferNone    OfferKind = ""
	OfferSpecial OfferKind = "special"
	OfferAnnual  OfferKind = "annual"
)

// ParseOfferKind accepts the wire names of offer kinds.
func ParseOfferKind(s string) (OfferKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "monthly":
		return OfferNone, nil
	case "special", "offer":
		return OfferSpecial, nil
	case "annual", "yearly":
		return OfferAnnual, nil
	default:
		return OfferNone, fmt.Errorf("unknown offer kind %q", s)
	}
}

// PlanSelection is a plan explicitly chosen for one transaction.
type PlanSelection struct {
	Plan  Plan
	Offer OfferKind
}

// OfferQuote is a discounted multi-month block. Amounts are in major units.
type OfferQuote struct {
	Months          int             `json:"months"`
	PricePerMonth   decimal.Decimal `json:"price_per_month"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	FullPrice       decimal.Decimal `json:"full_price"`
	DiscountedTotal decimal.Decimal `json:"discounted_offer"`
	Savings         decimal.Decimal `json:"savings"`
	PerMonth        decimal.Decimal `json:"per_month"`
}

// MinorAmount returns the discounted total in minor units.
func (q OfferQuote) MinorAmount() int64 {
	return ToMinor(q.DiscountedTotal)
}

// SpecialOffer computes round(pricePerMonth * months * (1 - discount/100)).
// Only the final discounted total is rounded (half up); savings are taken against the unrounded subtotal.
func SpecialOffer(pricePerMonth decimal.Decimal, months int, discountPercent decimal.Decimal) OfferQuote {
	if months < 0 {
		months = 0
	}
	m := decimal.NewFromInt(int64(months))
	full := pricePerMonth.Mul(m)
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	total := full.Mul(factor).Round(0)

	perMonth := decimal.Zero
	if months > 0 {
		perMonth = total.DivRound(m, 2)
	}

	return OfferQuote{
		Months:          months,
		PricePerMonth:   pricePerMonth,
		DiscountPercent: discountPercent,
		FullPrice:       full,
		DiscountedTotal: total,
		Savings:         full.Sub(total),
		PerMonth:        perMonth,
	}
}

// AnnualOffer is SpecialOffer over twelve months.
func AnnualOffer(pricePerMonth, discountPercent decimal.Decimal) OfferQuote {
	return SpecialOffer(pricePerMonth, 12, discountPercent)
}

// ToMinor converts a major-unit amount to minor units, rounding half up.
func ToMinor(major decimal.Decimal) int64 {
	return major.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts minor units to a major-unit decimal.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
