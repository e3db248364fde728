package billing

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const day = 24 * time.Hour

// ExpirySource tells where the evaluated expiry came from.
type ExpirySource string

const (
	SourceNone    ExpirySource = "none"
	SourceAccount ExpirySource = "account"
	SourcePayment ExpirySource = "payment"
)

// DerivedStatus is computed from an account and never stored.
// DaysRemaining is signed: positive while active, zero or negative once lapsed.
type DerivedStatus struct {
	Status        SubscriptionStatus `json:"status"`
	DaysRemaining int                `json:"days_remaining"`
	DaysOverdue   int                `json:"days_overdue"`
	IsExpired     bool               `json:"is_expired"`
	NeedsRenewal  bool               `json:"needs_renewal"`
	NeedsUpdate   bool               `json:"needs_update"`
	ExpiryDate    *time.Time         `json:"expiry_date,omitempty"`
	Source        ExpirySource       `json:"source"`
	Message       string             `json:"message"`
}

// IsActive reports whether paid-for time remains.
func (s DerivedStatus) IsActive() bool {
	return s.Status == StatusActive
}

// Evaluate derives the subscription status of an account at the current time.
func Evaluate(a *Account) DerivedStatus {
	return EvaluateAt(a, time.Now().UTC())
}

// EvaluateAt derives the subscription status of an account at the given instant.
// It never fails: missing data resolves to Expired.
// Precedence: the account expiry, then the newest successful payment carrying an expiry.
func EvaluateAt(a *Account, now time.Time) DerivedStatus {
	if a == nil {
		return DerivedStatus{
			Status:       StatusExpired,
			IsExpired:    true,
			NeedsRenewal: true,
			Source:       SourceNone,
			Message:      "no user data",
		}
	}

	var ds DerivedStatus
	switch {
	case a.SubscriptionExpiry != nil:
		ds = fromExpiry(*a.SubscriptionExpiry, now, SourceAccount)
	default:
		if p := latestPaidExpiry(a.Payments); p != nil {
			ds = fromExpiry(*p.SubscriptionExpiry, now, SourcePayment)
		} else {
			ds = DerivedStatus{
				Status:       StatusExpired,
				IsExpired:    true,
				NeedsRenewal: true,
				Source:       SourceNone,
				Message:      "no subscription found",
			}
		}
	}

	ds.NeedsUpdate = needsUpdate(a.SubscriptionStatus, ds.Status)
	return ds
}

// DaysUntil returns ceil((expiry - now) / 1 day).
func DaysUntil(expiry, now time.Time) int {
	return int(math.Ceil(float64(expiry.Sub(now)) / float64(day)))
}

func fromExpiry(expiry, now time.Time, src ExpirySource) DerivedStatus {
	exp := expiry.UTC()
	days := DaysUntil(exp, now)

	// Day zero is lapsed: the active window is exclusive of its boundary.
	if days > 0 {
		return DerivedStatus{
			Status:        StatusActive,
			DaysRemaining: days,
			ExpiryDate:    &exp,
			Source:        src,
			Message:       fmt.Sprintf("subscription active, %d %s remaining", days, plural(days, "day", "days")),
		}
	}

	overdue := -days
	return DerivedStatus{
		Status:        StatusExpired,
		DaysRemaining: days,
		DaysOverdue:   overdue,
		IsExpired:     true,
		NeedsRenewal:  true,
		ExpiryDate:    &exp,
		Source:        src,
		Message:       fmt.Sprintf("subscription expired %d %s ago", overdue, plural(overdue, "day", "days")),
	}
}

// latestPaidExpiry picks the newest successful payment, by date, that carries an expiry.
func latestPaidExpiry(payments []Payment) *Payment {
	paid := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if p.Status == PaymentSucceeded {
			paid = append(paid, p)
		}
	}
	sort.SliceStable(paid, func(i, j int) bool {
		return paid[i].Date.After(paid[j].Date)
	})
	for i := range paid {
		if paid[i].SubscriptionExpiry != nil {
			return &paid[i]
		}
	}
	return nil
}

// needsUpdate reports whether the cached status disagrees with the derived one.
// Cancelled is never overwritten, whether or not paid time remains.
func needsUpdate(cached, derived SubscriptionStatus) bool {
	if cached == StatusCancelled {
		return false
	}
	return cached != derived
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
