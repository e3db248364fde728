package billing

import "time"

// ProjectExpiry computes the expiry produced by a payment made at paymentDate.
// An account with time remaining is extended from its current expiry so an early
// renewal never shortens paid-for time; a lapsed or new account is extended from
// paymentDate so lost time is not credited back.
func ProjectExpiry(a *Account, paymentDate time.Time, durationDays int) time.Time {
	if durationDays <= 0 {
		durationDays = DefaultDurationDays
	}
	paymentDate = paymentDate.UTC()

	st := EvaluateAt(a, paymentDate)
	if st.IsActive() && st.ExpiryDate != nil {
		return st.ExpiryDate.AddDate(0, 0, durationDays)
	}
	return paymentDate.AddDate(0, 0, durationDays)
}
