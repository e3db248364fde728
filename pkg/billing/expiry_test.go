package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
)

func TestProjectExpiry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		account  *billing.Account
		duration int
		want     int // days from testNow
	}{
		{name: "early renewal keeps remaining time", account: &billing.Account{SubscriptionExpiry: at(days(10))}, duration: 30, want: 40},
		{name: "lapsed starts from payment", account: &billing.Account{SubscriptionExpiry: at(-days(5))}, duration: 30, want: 30},
		{name: "boundary counts as lapsed", account: &billing.Account{SubscriptionExpiry: at(0)}, duration: 30, want: 30},
		{name: "new account", account: &billing.Account{}, duration: 90, want: 90},
		{name: "nil account", duration: 14, want: 14},
		{name: "non-positive duration uses default", account: &billing.Account{}, duration: 0, want: billing.DefaultDurationDays},
		{name: "negative duration uses default", account: &billing.Account{SubscriptionExpiry: at(days(2))}, duration: -3, want: 2 + billing.DefaultDurationDays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := billing.ProjectExpiry(tt.account, testNow, tt.duration)
			assert.Equal(t, testNow.AddDate(0, 0, tt.want), got)
		})
	}
}

func TestProjectExpiry_PaymentFallback(t *testing.T) {
	t.Parallel()

	a := &billing.Account{Payments: []billing.Payment{
		{PaymentID: "p1", Status: billing.PaymentSucceeded, Date: testNow.Add(-days(20)), SubscriptionExpiry: at(days(10))},
	}}

	got := billing.ProjectExpiry(a, testNow, 30)
	assert.Equal(t, testNow.AddDate(0, 0, 40), got)
}

func TestProjectExpiry_NeverShortensPaidTime(t *testing.T) {
	t.Parallel()

	for remaining := 1; remaining <= 60; remaining += 7 {
		a := &billing.Account{SubscriptionExpiry: at(days(remaining))}
		got := billing.ProjectExpiry(a, testNow, 30)
		assert.False(t, got.Before(*a.SubscriptionExpiry), "remaining %d", remaining)
		assert.Equal(t, a.SubscriptionExpiry.AddDate(0, 0, 30), got)
	}
}
