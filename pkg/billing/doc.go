// Package billing implements the seller subscription lifecycle: deriving
// subscription status from stored expiry data, pricing renewals and bundled
// offers, projecting new expiry dates, and reconciling expired subscriptions by
// charging the saved payment instrument of every eligible seller.
//
// # Pure core
//
// EvaluateAt, Calculator.Quote, SpecialOffer, AnnualOffer and ProjectExpiry
// are pure functions of their inputs and the supplied instant. Amounts are int64
// minor units; offer arithmetic uses shopspring/decimal and rounds half up on the
// final discounted total only.
//
// # Reconciliation
//
// Reconciler.Run makes one pass over every seller:
//
//	pending -> active-noop | ineligible | renewed | renewal-failed
//
// A failing account never aborts the pass. Only a failed initial account fetch
// fails the run, with ErrFetchAccounts. Charges for one account are serialised
// through a Locker and the account is re-read under the lock, so concurrent runs
// charge a lapsed period at most once. Each charge carries an idempotency key
// derived from the lapsed expiry, letting the processor deduplicate retries.
//
// # User-present flows
//
// Checkout quotes plans, signs proposals into single-use tokens
// (ProposeCharge / ConfirmCharge), starts trials and onboards payment
// instruments. Confirmed charges go through the same commit path as renewals.
//
// # Collaborators
//
// Storage, payment processing, locking, notification and archiving are
// interfaces. The package ships MongoDB, Postgres, Stripe, Redis, Postmark and S3
// implementations next to in-memory ones used by tests and local runs.
package billing
