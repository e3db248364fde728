package billing

import (
	"sort"
	"time"
)

// Outcome is where an account ended up within one reconciliation run.
type Outcome string

const (
	OutcomePending       Outcome = "pending"
	OutcomeActive        Outcome = "active-noop"
	OutcomeIneligible    Outcome = "ineligible"
	OutcomeRenewed       Outcome = "renewed"
	OutcomeRenewalFailed Outcome = "renewal-failed"
	OutcomeSkipped       Outcome = "skipped" // not a seller
)

// Terminal reports whether no further transition is allowed.
func (o Outcome) Terminal() bool {
	return o != OutcomePending && o != ""
}

// AccountResult records what a run did to one account.
type AccountResult struct {
	AccountID string        `json:"account_id"`
	Outcome   Outcome       `json:"outcome"`
	Synced    bool          `json:"synced"`
	Status    DerivedStatus `json:"status"`
	Amount    int64         `json:"amount,omitempty"`
	Currency  string        `json:"currency,omitempty"`
	PaymentID string        `json:"payment_id,omitempty"`
	NewExpiry *time.Time    `json:"new_expiry,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Err       error         `json:"-"`
}

func newAccountResult(id string) *AccountResult {
	return &AccountResult{AccountID: id, Outcome: OutcomePending}
}

// finish moves a pending result to a terminal outcome. Later calls are ignored
// so the first terminal classification wins.
func (r *AccountResult) finish(o Outcome, reason string) {
	if r.Outcome.Terminal() {
		return
	}
	r.Outcome = o
	if reason != "" {
		r.Reason = reason
	}
}

func (r *AccountResult) fail(reason string, err error) {
	r.Err = err
	if err != nil && reason != "" {
		reason = reason + ": " + err.Error()
	}
	r.finish(OutcomeRenewalFailed, reason)
}

// RunReport summarises one reconciliation run.
type RunReport struct {
	RunID      string          `json:"run_id"`
	Trigger    string          `json:"trigger,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Accounts   int             `json:"accounts"`
	Sellers    int             `json:"sellers"`
	Synced     int             `json:"synced"`
	Counts     map[Outcome]int `json:"counts"`
	Results    []AccountResult `json:"results"`
	Cancelled  bool            `json:"cancelled"`
}

// Count returns how many accounts ended with the outcome.
func (r *RunReport) Count(o Outcome) int {
	if r == nil || r.Counts == nil {
		return 0
	}
	return r.Counts[o]
}

// Result returns the result for an account id.
func (r *RunReport) Result(accountID string) (AccountResult, bool) {
	if r == nil {
		return AccountResult{}, false
	}
	for _, res := range r.Results {
		if res.AccountID == accountID {
			return res, true
		}
	}
	return AccountResult{}, false
}

func (r *RunReport) add(res AccountResult) {
	if r.Counts == nil {
		r.Counts = make(map[Outcome]int)
	}
	r.Results = append(r.Results, res)
	r.Counts[res.Outcome]++
	if res.Synced {
		r.Synced++
	}
}

// sortResults orders results by account id so reports are stable under parallel runs.
func (r *RunReport) sortResults() {
	sort.SliceStable(r.Results, func(i, j int) bool {
		return r.Results[i].AccountID < r.Results[j].AccountID
	})
}
