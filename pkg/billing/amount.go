package billing

import (
	"fmt"
	"time"
)

// ChargeType classifies a charge relative to the account's current subscription.
type ChargeType string

const (
	ChargeNew          ChargeType = "new"
	ChargeRenewal      ChargeType = "renewal"
	ChargeEarlyRenewal ChargeType = "early_renewal"
)

// AmountQuote is what a charge would cost and buy.
type AmountQuote struct {
	Amount   int64         `json:"amount"` // minor units
	Price    int64         `json:"price"`  // monthly price in minor units, before any offer
	Currency string        `json:"currency"`
	Type     ChargeType    `json:"type"`
	Message  string        `json:"message"`
	Duration int           `json:"duration"` // days bought by Amount
	PlanID   string        `json:"plan_id,omitempty"`
	PlanName string        `json:"plan_name,omitempty"`
	Offer    *OfferQuote   `json:"offer,omitempty"`
	Status   DerivedStatus `json:"status"`

	// BaseDuration is the period Price pays for. It differs from Duration only under an offer.
	BaseDuration int `json:"base_duration"`
}

// Economics returns the price and duration pair persisted as the account's plan terms.
// Offers are excluded so the next unattended renewal bills one base period.
func (q AmountQuote) Economics() (price int64, duration int) {
	if q.BaseDuration > 0 {
		return q.Price, q.BaseDuration
	}
	return q.Price, q.Duration
}

// Calculator resolves charge amounts with configurable platform defaults.
type Calculator struct {
	defaultAmount   int64
	defaultDuration int
	currency        string
}

// CalculatorOption configures a Calculator.
type CalculatorOption func(*Calculator)

// WithDefaultAmount sets the fallback monthly amount in minor units.
func WithDefaultAmount(minor int64) CalculatorOption {
	return func(c *Calculator) {
		if minor > 0 {
			c.defaultAmount = minor
		}
	}
}

// WithDefaultDuration sets the fallback duration in days.
func WithDefaultDuration(days int) CalculatorOption {
	return func(c *Calculator) {
		if days > 0 {
			c.defaultDuration = days
		}
	}
}

// WithCurrency sets the currency used when a plan does not name one.
func WithCurrency(currency string) CalculatorOption {
	return func(c *Calculator) {
		if currency != "" {
			c.currency = currency
		}
	}
}

// NewCalculator returns a Calculator with platform defaults.
func NewCalculator(opts ...CalculatorOption) Calculator {
	c := Calculator{
		defaultAmount:   DefaultMonthlyAmount,
		defaultDuration: DefaultDurationDays,
		currency:        DefaultCurrency,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// CalculateAmount quotes a charge using platform defaults at the current time.
func CalculateAmount(a *Account, sel *PlanSelection) AmountQuote {
	return NewCalculator().Quote(a, sel, time.Now().UTC())
}

// Quote resolves amount and duration, highest priority first:
// the selected plan, the account, the most recent payment, the platform default.
func (c Calculator) Quote(a *Account, sel *PlanSelection, now time.Time) AmountQuote {
	st := EvaluateAt(a, now)

	q := AmountQuote{
		Currency: c.currency,
		Status:   st,
	}
	q.Amount, q.Duration = c.resolve(a, sel)
	q.Price, q.BaseDuration = q.Amount, q.Duration

	if sel != nil {
		q.PlanID = sel.Plan.ID
		q.PlanName = sel.Plan.Name
		if sel.Plan.Currency != "" {
			q.Currency = sel.Plan.Currency
		}
	} else if a != nil && a.SubscriptionID != "" {
		q.PlanID = a.SubscriptionID
		q.PlanName = a.SubscriptionName
	}
	if sel != nil {
		switch sel.Offer {
		case OfferSpecial:
			if sel.Plan.OfferMonths > 0 {
				offer := sel.Plan.SpecialOffer()
				q.Offer = &offer
				q.Amount = offer.MinorAmount()
				q.BaseDuration = sel.Plan.BaseDuration()
				q.Duration = offer.Months * q.BaseDuration
			}
		case OfferAnnual:
			offer := sel.Plan.AnnualOffer()
			q.Offer = &offer
			q.Amount = offer.MinorAmount()
			q.BaseDuration = sel.Plan.BaseDuration()
			q.Duration = offer.Months * q.BaseDuration
		}
	}

	switch {
	case st.IsActive():
		q.Type = ChargeEarlyRenewal
		q.Message = fmt.Sprintf(
			"Early renewal: %d %s left on your current subscription, the new %d-day period starts when it ends.",
			st.DaysRemaining, plural(st.DaysRemaining, "day", "days"), q.Duration)
	case a.HasSubscriptionHistory():
		q.Type = ChargeRenewal
		q.Message = fmt.Sprintf(
			"Renewal: your subscription expired %d %s ago, the new %d-day period starts today.",
			st.DaysOverdue, plural(st.DaysOverdue, "day", "days"), q.Duration)
	default:
		q.Type = ChargeNew
		q.Message = fmt.Sprintf("New subscription: %d days starting today.", q.Duration)
	}

	return q
}

func (c Calculator) resolve(a *Account, sel *PlanSelection) (amount int64, duration int) {
	var last *Payment
	if a != nil {
		last = a.LastPayment()
	}

	switch {
	case sel != nil && sel.Plan.Price.IsPositive():
		amount = sel.Plan.MinorPrice()
	case a != nil && a.SubscriptionPrice > 0:
		amount = a.SubscriptionPrice
	case last != nil && last.SubscriptionPrice > 0:
		amount = last.SubscriptionPrice
	default:
		amount = c.defaultAmount
	}

	switch {
	case sel != nil && sel.Plan.DurationDays > 0:
		duration = sel.Plan.DurationDays
	case a != nil && a.SubscriptionDuration > 0:
		duration = a.SubscriptionDuration
	case last != nil && last.SubscriptionDuration > 0:
		duration = last.SubscriptionDuration
	default:
		duration = c.defaultDuration
	}

	return amount, duration
}
