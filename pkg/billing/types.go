package billing

import (
	"time"
)

// Role identifies what an account does on the marketplace.
// Only sellers are subject to subscription billing.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
	RoleAdmin  Role = "admin"
)

// SubscriptionStatus is the lifecycle state of a seller subscription.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusPending   SubscriptionStatus = "pending"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// PaymentStatus is the processor-reported state of a single payment.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
)

const (
	// DefaultDurationDays is used when neither a plan, the account nor a prior payment carries a duration.
	DefaultDurationDays = 30
	// DefaultMonthlyAmount is the platform fallback price in minor units.
	DefaultMonthlyAmount int64 = 1000
	// DefaultCurrency is an ISO 4217 code in the lowercase form the processor expects.
	DefaultCurrency = "eur"
)

// PaymentInstrument references a card saved at the processor.
// Card data never crosses this boundary, only tokenized references.
type PaymentInstrument struct {
	CustomerID      string `bson:"customerId,omitempty" json:"customer_id,omitempty"`
	PaymentMethodID string `bson:"paymentMethodId,omitempty" json:"payment_method_id,omitempty"`
}

// Complete reports whether both halves of the reference are present.
func (p PaymentInstrument) Complete() bool {
	return p.CustomerID != "" && p.PaymentMethodID != ""
}

// Account is a marketplace user who may hold a seller subscription.
// SubscriptionStatus is a cached projection and may be stale; SubscriptionExpiry is authoritative.
type Account struct {
	ID                   string             `bson:"_id" json:"id"`
	Email                string             `bson:"email,omitempty" json:"email,omitempty"`
	Name                 string             `bson:"name,omitempty" json:"name,omitempty"`
	Role                 Role               `bson:"role" json:"role"`
	SubscriptionID       string             `bson:"subscriptionId,omitempty" json:"subscription_id,omitempty"`
	SubscriptionName     string             `bson:"subscriptionName,omitempty" json:"subscription_name,omitempty"`
	SubscriptionExpiry   *time.Time         `bson:"subscriptionExpiry,omitempty" json:"subscription_expiry,omitempty"`
	SubscriptionStatus   SubscriptionStatus `bson:"subscriptionStatus,omitempty" json:"subscription_status,omitempty"`
	SubscriptionPrice    int64              `bson:"subscriptionPrice,omitempty" json:"subscription_price,omitempty"` // minor units
	SubscriptionDuration int                `bson:"subscriptionDuration,omitempty" json:"subscription_duration,omitempty"`
	AutoRenewalEnabled   bool               `bson:"autoRenewalEnabled" json:"auto_renewal_enabled"`
	PaymentInstrument    PaymentInstrument  `bson:"paymentInstrument,omitempty" json:"payment_instrument"`
	Payments             []Payment          `bson:"payments,omitempty" json:"payments,omitempty"`
}

// IsSeller reports whether the account participates in billing.
func (a *Account) IsSeller() bool {
	return a != nil && a.Role == RoleSeller
}

// AutoRenewalEligible reports whether the account may be charged without the user present.
func (a *Account) AutoRenewalEligible() bool {
	return a.IsSeller() && a.AutoRenewalEnabled && a.PaymentInstrument.Complete()
}

// LastPayment returns the most recently appended payment, or nil.
func (a *Account) LastPayment() *Payment {
	if a == nil || len(a.Payments) == 0 {
		return nil
	}
	return &a.Payments[len(a.Payments)-1]
}

// HasSubscriptionHistory reports whether the account was ever subscribed.
func (a *Account) HasSubscriptionHistory() bool {
	if a == nil {
		return false
	}
	if a.SubscriptionExpiry != nil {
		return true
	}
	for _, p := range a.Payments {
		if p.Status == PaymentSucceeded {
			return true
		}
	}
	return false
}

// Payment is an immutable record created once at charge confirmation.
type Payment struct {
	PaymentID            string             `bson:"paymentId" json:"payment_id"`
	Amount               int64              `bson:"amount" json:"amount"` // minor units
	Currency             string             `bson:"currency" json:"currency"`
	Status               PaymentStatus      `bson:"status" json:"status"`
	Date                 time.Time          `bson:"date" json:"date"`
	SubscriptionID       string             `bson:"subscriptionId,omitempty" json:"subscription_id,omitempty"`
	SubscriptionName     string             `bson:"subscriptionName,omitempty" json:"subscription_name,omitempty"`
	SubscriptionPrice    int64              `bson:"subscriptionPrice,omitempty" json:"subscription_price,omitempty"`
	SubscriptionDuration int                `bson:"subscriptionDuration,omitempty" json:"subscription_duration,omitempty"`
	SubscriptionExpiry   *time.Time         `bson:"subscriptionExpiry,omitempty" json:"subscription_expiry,omitempty"`
	SubscriptionStatus   SubscriptionStatus `bson:"subscriptionStatus,omitempty" json:"subscription_status,omitempty"`
}

// AccountUpdate carries a partial update. Nil fields are left untouched by the store.
type AccountUpdate struct {
	SubscriptionStatus   *SubscriptionStatus
	SubscriptionExpiry   *time.Time
	SubscriptionID       *string
	SubscriptionName     *string
	SubscriptionPrice    *int64
	SubscriptionDuration *int
	AutoRenewalEnabled   *bool
	CustomerID           *string
	PaymentMethodID      *string
}

// IsEmpty reports whether the update would change nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.SubscriptionStatus == nil &&
		u.SubscriptionExpiry == nil &&
		u.SubscriptionID == nil &&
		u.SubscriptionName == nil &&
		u.SubscriptionPrice == nil &&
		u.SubscriptionDuration == nil &&
		u.AutoRenewalEnabled == nil &&
		u.CustomerID == nil &&
		u.PaymentMethodID == nil
}

// Apply writes the non-nil fields onto a copy of the account.
func (u AccountUpdate) Apply(a Account) Account {
	if u.SubscriptionStatus != nil {
		a.SubscriptionStatus = *u.SubscriptionStatus
	}
	if u.SubscriptionExpiry != nil {
		exp := *u.SubscriptionExpiry
		a.SubscriptionExpiry = &exp
	}
	if u.SubscriptionID != nil {
		a.SubscriptionID = *u.SubscriptionID
	}
	if u.SubscriptionName != nil {
		a.SubscriptionName = *u.SubscriptionName
	}
	if u.SubscriptionPrice != nil {
		a.SubscriptionPrice = *u.SubscriptionPrice
	}
	if u.SubscriptionDuration != nil {
		a.SubscriptionDuration = *u.SubscriptionDuration
	}
	if u.AutoRenewalEnabled != nil {
		a.AutoRenewalEnabled = *u.AutoRenewalEnabled
	}
	if u.CustomerID != nil {
		a.PaymentInstrument.CustomerID = *u.CustomerID
	}
	if u.PaymentMethodID != nil {
		a.PaymentInstrument.PaymentMethodID = *u.PaymentMethodID
	}
	return a
}

// ptr returns a pointer to a copy of v.
func ptr[T any](v T) *T {
	return &v
}
