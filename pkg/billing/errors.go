package billing

import "errors"

var (
	ErrFetchAccounts   = errors.New("billing: failed to fetch accounts")
	ErrAccountNotFound = errors.New("billing: account not found")
	ErrNotSeller       = errors.New("billing: account is not a seller")
	ErrPlanNotFound    = errors.New("billing: subscription plan not found")
	ErrInvalidPlan     = errors.New("billing: invalid subscription plan")

	ErrNoPaymentInstrument = errors.New("billing: no saved payment instrument")
	ErrChargeDeclined      = errors.New("billing: charge was not successful")
	ErrProcessor           = errors.New("billing: payment processor error")
	ErrPersistPayment      = errors.New("billing: failed to persist payment")
	ErrAccountLocked       = errors.New("billing: account is locked by another operation")

	ErrInvalidProposal = errors.New("billing: invalid charge proposal")
	ErrProposalExpired = errors.New("billing: charge proposal has expired")
	ErrProposalUsed    = errors.New("billing: charge proposal was already confirmed")

	ErrTrialNotAvailable = errors.New("billing: trial not available for this account")
	ErrInvalidDuration   = errors.New("billing: duration must be positive")
)
