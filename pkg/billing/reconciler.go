package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kdprince200-netizen/equiherds/pkg/logger"
)

// Reconciler evaluates seller subscriptions and renews lapsed ones through
// the saved payment instrument. Each run is independent and safe to re-trigger.
type Reconciler struct {
	store       AccountStore
	processor   PaymentProcessor
	recorder    PaymentRecorder
	mirrors     []PaymentRecorder
	locker      Locker
	notifier    Notifier
	archiver    ReportArchiver
	calc        Calculator
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// NewReconciler creates a Reconciler.
// Panics if store or processor is nil, or if no PaymentRecorder can be resolved.
func NewReconciler(store AccountStore, processor PaymentProcessor, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("billing: AccountStore is required")
	}
	if processor == nil {
		panic("billing: PaymentProcessor is required")
	}

	r := &Reconciler{
		store:       store,
		processor:   processor,
		locker:      NewMemoryLocker(),
		calc:        NewCalculator(),
		concurrency: 1,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	if rec, ok := store.(PaymentRecorder); ok {
		r.recorder = rec
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.recorder == nil {
		panic("billing: PaymentRecorder is required when the store does not record payments")
	}
	r.logger = r.logger.With(logger.Component("billing.reconciler"))

	return r
}

// Calculator returns the calculator used for every charge decision.
func (r *Reconciler) Calculator() Calculator {
	return r.calc
}

// Now returns the reconciler's current time.
func (r *Reconciler) Now() time.Time {
	return r.now()
}

// Run performs one reconciliation pass over every seller account.
// It fails only when the initial account fetch fails; per-account failures are
// recorded in the report. Cancelling ctx stops the run between accounts.
func (r *Reconciler) Run(ctx context.Context) (*RunReport, error) {
	runID := uuid.NewString()
	ctx = WithRunID(ctx, runID)

	report := &RunReport{
		RunID:     runID,
		Trigger:   TriggerFromContext(ctx),
		StartedAt: r.now(),
		Counts:    make(map[Outcome]int),
	}

	r.logger.InfoContext(ctx, "reconciliation started", slog.String("trigger", report.Trigger))

	accounts, err := r.store.ListAccounts(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "reconciliation aborted: account fetch failed", logger.Error(err))
		return nil, errors.Join(ErrFetchAccounts, err)
	}

	sellers := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.IsSeller() {
			sellers = append(sellers, a)
		}
	}
	report.Accounts = len(accounts)
	report.Sellers = len(sellers)

	results := make([]*AccountResult, len(sellers))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i := range sellers {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		g.Go(func() error {
			// A slot may free up after cancellation; skip accounts not yet started.
			if ctx.Err() != nil {
				return nil
			}
			results[i] = r.reconcile(ctx, &sellers[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res == nil {
			report.Cancelled = true
			continue
		}
		report.add(*res)
	}
	report.sortResults()
	report.FinishedAt = r.now()

	r.logger.InfoContext(ctx, "reconciliation finished",
		slog.Int("accounts", report.Accounts),
		slog.Int("sellers", report.Sellers),
		slog.Int("synced", report.Synced),
		slog.Int("renewed", report.Count(OutcomeRenewed)),
		slog.Int("renewal_failed", report.Count(OutcomeRenewalFailed)),
		slog.Int("ineligible", report.Count(OutcomeIneligible)),
		slog.Int("active", report.Count(OutcomeActive)),
		slog.Bool("cancelled", report.Cancelled),
		logger.Duration(report.FinishedAt.Sub(report.StartedAt)),
	)

	if r.archiver != nil {
		if err := r.archiver.Archive(context.WithoutCancel(ctx), report); err != nil {
			r.logger.WarnContext(ctx, "failed to archive run report", logger.Error(err))
		}
	}

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// ReconcileAccount is the single-account variant of Run, used when a user
// toggles auto-renewal or opens the billing page.
func (r *Reconciler) ReconcileAccount(ctx context.Context, accountID string) (AccountResult, error) {
	if _, ok := RunIDFromContext(ctx); !ok {
		ctx = WithRunID(ctx, uuid.NewString())
	}

	a, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return AccountResult{AccountID: accountID, Outcome: OutcomePending, Err: err}, err
	}
	if !a.IsSeller() {
		res := newAccountResult(accountID)
		res.finish(OutcomeSkipped, "account is not a seller")
		return *res, nil
	}
	return *r.reconcile(ctx, a), nil
}

// SetAutoRenewal records the user's consent and reconciles the account right away.
func (r *Reconciler) SetAutoRenewal(ctx context.Context, accountID string, enabled bool) (AccountResult, error) {
	if _, err := r.store.UpdateAccount(ctx, accountID, AccountUpdate{AutoRenewalEnabled: ptr(enabled)}); err != nil {
		return AccountResult{AccountID: accountID, Outcome: OutcomePending, Err: err}, err
	}
	r.logger.InfoContext(ctx, "auto-renewal toggled", logger.AccountID(accountID), slog.Bool("enabled", enabled))
	return r.ReconcileAccount(WithTrigger(ctx, TriggerSettings), accountID)
}

// SyncResult is the answer of a status-sync request.
type SyncResult struct {
	Updated bool               `json:"updated"`
	Status  SubscriptionStatus `json:"status"`
	Derived DerivedStatus      `json:"derived"`
}

// SyncStatus reconciles the cached subscription status with the evaluated one. Idempotent.
func (r *Reconciler) SyncStatus(ctx context.Context, accountID string) (SyncResult, error) {
	a, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return SyncResult{}, err
	}
	st := EvaluateAt(a, r.now())
	if !st.NeedsUpdate {
		return SyncResult{Status: a.SubscriptionStatus, Derived: st}, nil
	}
	if err := r.syncAccount(ctx, a, st); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Updated: true, Status: st.Status, Derived: st}, nil
}

// Status evaluates a single account without side effects.
func (r *Reconciler) Status(ctx context.Context, accountID string) (*Account, DerivedStatus, error) {
	a, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, DerivedStatus{}, err
	}
	return a, EvaluateAt(a, r.now()), nil
}

func (r *Reconciler) syncAccount(ctx context.Context, a *Account, st DerivedStatus) error {
	if _, err := r.store.UpdateAccount(ctx, a.ID, AccountUpdate{SubscriptionStatus: ptr(st.Status)}); err != nil {
		return fmt.Errorf("sync status of account %s: %w", a.ID, err)
	}
	r.logger.DebugContext(ctx, "subscription status synced",
		logger.AccountID(a.ID),
		slog.String("from", string(a.SubscriptionStatus)),
		slog.String("to", string(st.Status)),
	)
	return nil
}

// reconcile runs the per-account state machine. It never returns an error:
// every failure ends in a terminal outcome on the result.
func (r *Reconciler) reconcile(ctx context.Context, a *Account) *AccountResult {
	res := newAccountResult(a.ID)
	st := EvaluateAt(a, r.now())
	res.Status = st

	if st.NeedsUpdate {
		if err := r.syncAccount(ctx, a, st); err != nil {
			r.logger.WarnContext(ctx, "status sync failed", logger.AccountID(a.ID), logger.Error(err))
		} else {
			res.Synced = true
		}
	}

	if !st.IsExpired {
		res.finish(OutcomeActive, st.Message)
		return res
	}

	if !a.AutoRenewalEligible() {
		res.finish(OutcomeIneligible, ineligibleReason(a))
		r.logger.InfoContext(ctx, "expired subscription cannot auto-renew",
			logger.AccountID(a.ID), slog.String("reason", res.Reason))
		return res
	}

	r.renew(ctx, a.ID, res)

	switch res.Outcome {
	case OutcomeRenewed:
		r.logger.InfoContext(ctx, "subscription renewed",
			logger.AccountID(a.ID),
			logger.PaymentID(res.PaymentID),
			logger.Amount(res.Amount),
			slog.String("currency", res.Currency),
			slog.Time("new_expiry", *res.NewExpiry),
		)
	case OutcomeRenewalFailed:
		r.logger.ErrorContext(ctx, "subscription renewal failed",
			logger.AccountID(a.ID), slog.String("reason", res.Reason), logger.Error(res.Err))
	}

	if res.Outcome == OutcomeRenewed || res.Outcome == OutcomeRenewalFailed {
		r.notify(ctx, a, res)
	}
	return res
}

// renew charges an expired, eligible account. The account is re-read under the
// lock so a renewal made by a concurrent operation is never charged twice.
func (r *Reconciler) renew(ctx context.Context, accountID string, res *AccountResult) {
	if err := ctx.Err(); err != nil {
		res.fail("run cancelled before charge", err)
		return
	}

	unlock, err := r.locker.Lock(ctx, lockKey(accountID))
	if err != nil {
		res.fail("acquire account lock", err)
		return
	}
	defer unlock()

	fresh, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		res.fail("reload account", err)
		return
	}

	now := r.now()
	st := EvaluateAt(fresh, now)
	res.Status = st
	if !st.IsExpired {
		res.finish(OutcomeActive, "already renewed")
		return
	}
	if !fresh.AutoRenewalEligible() {
		res.finish(OutcomeIneligible, ineligibleReason(fresh))
		return
	}

	quote := r.calc.Quote(fresh, nil, now)
	res.Amount = quote.Amount
	res.Currency = quote.Currency

	// From here on the account must not be left half-processed.
	opCtx := context.WithoutCancel(ctx)

	cr, err := r.processor.ChargeSavedInstrument(opCtx, ChargeRequest{
		AccountID:       fresh.ID,
		CustomerID:      fresh.PaymentInstrument.CustomerID,
		PaymentMethodID: fresh.PaymentInstrument.PaymentMethodID,
		Amount:          quote.Amount,
		Currency:        quote.Currency,
		Description:     fmt.Sprintf("Subscription renewal (%d days)", quote.Duration),
		IdempotencyKey:  renewalKey(fresh.ID, st.ExpiryDate, fresh.PaymentInstrument.PaymentMethodID, quote.Amount, quote.Currency),
		Metadata: map[string]string{
			"account_id": fresh.ID,
			"type":       string(quote.Type),
			"duration":   strconv.Itoa(quote.Duration),
		},
	})
	if err != nil {
		res.fail("charge", errors.Join(ErrProcessor, err))
		return
	}
	if cr == nil || !cr.Success {
		msg := "declined"
		if cr != nil && cr.Message != "" {
			msg = cr.Message
		}
		res.fail("charge", fmt.Errorf("%w: %s", ErrChargeDeclined, msg))
		return
	}
	res.PaymentID = cr.PaymentID

	p, err := r.commit(opCtx, fresh, quote, cr.PaymentID, r.now())
	if err != nil {
		res.fail("persist payment "+cr.PaymentID, err)
		return
	}

	res.NewExpiry = p.SubscriptionExpiry
	res.finish(OutcomeRenewed, quote.Message)
}

// commit appends the payment and flips the account to Active with the projected expiry.
// Every money-moving path goes through here so the projection rule never diverges.
func (r *Reconciler) commit(ctx context.Context, a *Account, q AmountQuote, paymentID string, paidAt time.Time) (*Payment, error) {
	newExpiry := ProjectExpiry(a, paidAt, q.Duration)
	price, duration := q.Economics()

	p := Payment{
		PaymentID:            paymentID,
		Amount:               q.Amount,
		Currency:             q.Currency,
		Status:               PaymentSucceeded,
		Date:                 paidAt,
		SubscriptionID:       q.PlanID,
		SubscriptionName:     q.PlanName,
		SubscriptionPrice:    price,
		SubscriptionDuration: duration,
		SubscriptionExpiry:   &newExpiry,
		SubscriptionStatus:   StatusActive,
	}

	if err := r.recorder.AppendPayment(ctx, a.ID, p); err != nil {
		return nil, errors.Join(ErrPersistPayment, err)
	}

	upd := AccountUpdate{
		SubscriptionStatus:   ptr(StatusActive),
		SubscriptionExpiry:   &newExpiry,
		SubscriptionPrice:    ptr(price),
		SubscriptionDuration: ptr(duration),
	}
	if q.PlanID != "" {
		upd.SubscriptionID = ptr(q.PlanID)
		upd.SubscriptionName = ptr(q.PlanName)
	}
	if _, err := r.store.UpdateAccount(ctx, a.ID, upd); err != nil {
		return nil, errors.Join(ErrPersistPayment, err)
	}

	for _, m := range r.mirrors {
		if err := m.AppendPayment(ctx, a.ID, p); err != nil {
			r.logger.WarnContext(ctx, "reporting ledger append failed",
				logger.AccountID(a.ID), logger.PaymentID(p.PaymentID), logger.Error(err))
		}
	}

	return &p, nil
}

func (r *Reconciler) notify(ctx context.Context, a *Account, res *AccountResult) {
	if r.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := r.notifier.Notify(nctx, *a, *res); err != nil {
		r.logger.WarnContext(ctx, "renewal notification failed", logger.AccountID(a.ID), logger.Error(err))
	}
}

func ineligibleReason(a *Account) string {
	switch {
	case !a.IsSeller():
		return "account is not a seller"
	case !a.AutoRenewalEnabled:
		return "auto-renewal disabled"
	case a.PaymentInstrument.CustomerID == "":
		return "no processor customer reference"
	case a.PaymentInstrument.PaymentMethodID == "":
		return "no default payment method"
	default:
		return ""
	}
}

// notifyTimeout bounds a single notification.
const notifyTimeout = 10 * time.Second

func lockKey(accountID string) string {
	return "billing:account:" + accountID
}

// renewalKey is stable for one lapsed period and one set of charge terms, so the
// processor deduplicates retries of the same charge. A new card or a new amount
// yields a new key and therefore a fresh attempt.
func renewalKey(accountID string, lapsed *time.Time, methodID string, amount int64, currency string) string {
	period := "initial"
	if lapsed != nil {
		period = strconv.FormatInt(lapsed.Unix(), 10)
	}
	return strings.Join([]string{
		"renewal", accountID, period, methodID,
		strconv.FormatInt(amount, 10) + strings.ToLower(currency),
	}, ":")
}
