package billing

import "context"

// AccountStore is the persistence collaborator owning accounts.
// Implementations must apply partial updates without clobbering unrelated fields.
type AccountStore interface {
	// ListAccounts returns every account. Filtering to sellers is done by the caller.
	ListAccounts(ctx context.Context) ([]Account, error)

	// GetAccount returns ErrAccountNotFound when no account has the id.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// UpdateAccount applies the non-nil fields and returns the updated account.
	UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (*Account, error)
}

// PaymentRecorder appends payment records. Records are never updated or deleted.
type PaymentRecorder interface {
	AppendPayment(ctx context.Context, accountID string, p Payment) error
}

// PaymentProcessor is the external payment collaborator.
// Only tokenized references cross this boundary.
type PaymentProcessor interface {
	// ChargeSavedInstrument charges the stored instrument for an amount the core has already decided.
	// A declined charge is reported through ChargeResult.Success, not as an error.
	ChargeSavedInstrument(ctx context.Context, req ChargeRequest) (*ChargeResult, error)

	// CreateOrGetCustomer returns the processor customer reference for the account.
	CreateOrGetCustomer(ctx context.Context, accountID, email, name string) (string, error)

	// SavePaymentMethod attaches a tokenized method to the customer.
	SavePaymentMethod(ctx context.Context, accountID, customerID, methodID string, makeDefault bool) error
}

// ChargeRequest describes one off-session charge.
type ChargeRequest struct {
	AccountID       string
	CustomerID      string
	PaymentMethodID string
	Amount          int64 // minor units
	Currency        string
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

// ChargeResult is the processor's answer to a charge attempt.
type ChargeResult struct {
	Success   bool
	PaymentID string
	Status    PaymentStatus
	Message   string
}

// Locker serializes operations that move money for the same account.
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NonceStore records single-use values.
type NonceStore interface {
	// Consume returns true the first time a nonce is seen and false afterwards.
	Consume(ctx context.Context, nonce string) (bool, error)
}

// Notifier tells account holders about unattended billing events.
type Notifier interface {
	Notify(ctx context.Context, a Account, res AccountResult) error
}

// ReportArchiver keeps a copy of each reconciliation run report.
type ReportArchiver interface {
	Archive(ctx context.Context, report *RunReport) error
}

// PlanCatalog resolves plans by id.
type PlanCatalog interface {
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context) ([]Plan, error)
}
