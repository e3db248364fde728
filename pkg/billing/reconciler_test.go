package billing_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
)

func newReconciler(store billing.AccountStore, proc billing.PaymentProcessor, opts ...billing.ReconcilerOption) *billing.Reconciler {
	opts = append([]billing.ReconcilerOption{billing.WithClock(clock), billing.WithLogger(discardLogger())}, opts...)
	return billing.NewReconciler(store, proc, opts...)
}

type recordingLedger struct {
	mu       sync.Mutex
	payments map[string][]billing.Payment
	err      error
}

func (l *recordingLedger) AppendPayment(_ context.Context, accountID string, p billing.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.payments == nil {
		l.payments = make(map[string][]billing.Payment)
	}
	l.payments[accountID] = append(l.payments[accountID], p)
	return nil
}

func TestNewReconciler_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { billing.NewReconciler(nil, &mockProcessor{}) })
	assert.Panics(t, func() { billing.NewReconciler(billing.NewMemoryStore(), nil) })
}

func TestRun_RenewsExpiredEligibleSeller(t *testing.T) {
	t.Parallel()

	lapsed := at(-days(3))
	store := billing.NewMemoryStore(eligibleSeller("s1", lapsed))
	proc := &mockProcessor{}
	proc.On("ChargeSavedInstrument", mock.Anything, mock.MatchedBy(func(req billing.ChargeRequest) bool {
		return req.AccountID == "s1" &&
			req.CustomerID == "cus_s1" &&
			req.PaymentMethodID == "pm_s1" &&
			req.Amount == 1200 &&
			req.Currency == billing.DefaultCurrency &&
			req.IdempotencyKey == "renewal:s1:"+strconv.FormatInt(lapsed.Unix(), 10)+":pm_s1:1200eur"
	})).Return(succeeded("pi_1"), nil).Once()

	report, err := newReconciler(store, proc).Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 1, report.Sellers)
	assert.Equal(t, 1, report.Count(billing.OutcomeRenewed))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, billing.TriggerManual, report.Trigger)

	res, ok := report.Result("s1")
	require.True(t, ok)
	assert.Equal(t, "pi_1", res.PaymentID)
	assert.Equal(t, int64(1200), res.Amount)
	require.NotNil(t, res.NewExpiry)
	assert.Equal(t, testNow.AddDate(0, 0, 30), *res.NewExpiry)

	a, err := store.GetAccount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, a.SubscriptionStatus)
	assert.Equal(t, testNow.AddDate(0, 0, 30), *a.SubscriptionExpiry)
	require.Len(t, a.Payments, 1)
	p := a.Payments[0]
	assert.Equal(t, "pi_1", p.PaymentID)
	assert.Equal(t, billing.PaymentSucceeded, p.Status)
	assert.Equal(t, int64(1200), p.Amount)
	assert.Equal(t, 30, p.SubscriptionDuration)
	assert.Equal(t, testNow, p.Date)

	proc.AssertExpectations(t)
}

func TestRun_IneligibleSellerIsNotCharged(t *testing.T) {
	t.Parallel()

	seller := eligibleSeller("s1", at(-days(3)))
	seller.AutoRenewalEnabled = false
	noMethod := eligibleSeller("s2", at(-days(1)))
	noMethod.PaymentInstrument.PaymentMethodID = ""
	noCustomer := eligibleSeller("s3", at(-days(1)))
	noCustomer.PaymentInstrument.CustomerID = ""

	store := billing.NewMemoryStore(seller, noMethod, noCustomer)
	proc := &mockProcessor{}

	report, err := newReconciler(store, proc).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Count(billing.OutcomeIneligible))
	assert.Equal(t, 3, report.Synced)

	res, _ := report.Result("s1")
	assert.Equal(t, "auto-renewal disabled", res.Reason)
	res, _ = report.Result("s2")
	assert.Equal(t, "no default payment method", res.Reason)
	res, _ = report.Result("s3")
	assert.Equal(t, "no processor customer reference", res.Reason)

	a, err := store.GetAccount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusExpired, a.SubscriptionStatus)
	assert.Empty(t, a.Payments)

	proc.AssertNotCalled(t, "ChargeSavedInstrument", mock.Anything, mock.Anything)
}

func TestRun_ActiveSellerAndNonSeller(t *testing.T) {
	t.Parallel()

	active := eligibleSeller("s1", at(days(5)))
	active.SubscriptionStatus = billing.StatusExpired
	buyer := billing.Account{ID: "b1", Role: billing.RoleBuyer, SubscriptionExpiry: at(-days(5))}

	store := billing.NewMemoryStore(active, buyer)
	proc := &mockProcessor{}

	report, err := newReconciler(store, proc).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Accounts)
	assert.Equal(t, 1, report.Sellers)
	assert.Equal(t, 1, report.Count(billing.OutcomeActive))
	assert.Equal(t, 1, report.Synced)
	_, ok := report.Result("b1")
	assert.False(t, ok)

	a, err := store.GetAccount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, a.SubscriptionStatus)

	proc.AssertNotCalled(t, "ChargeSavedInstrument", mock.Anything, mock.Anything)
}

func TestRun_SecondRunDoesNotChargeAgain(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore(eligibleSeller("s1", at(-days(1))))
	proc := &mockProcessor{}
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s1")).Return(succeeded("pi_1"), nil).Once()

	r := newReconciler(store, proc)

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Count(billing.OutcomeRenewed))

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Count(billing.OutcomeActive))
	assert.Zero(t, second.Synced)
	assert.NotEqual(t, first.RunID, second.RunID)

	a, err := store.GetAccount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, a.Payments, 1)

	proc.AssertNumberOfCalls(t, "ChargeSavedInstrument", 1)
}

func TestRun_FailureIsIsolatedPerAccount(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore(
		eligibleSeller("s1", at(-days(2))),
		eligibleSeller("s2", at(-days(2))),
		eligibleSeller("s3", at(-days(2))),
	)
	proc := &mockProcessor{}
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s1")).Return(nil, errors.New("connection reset"))
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s2")).
		Return(&billing.ChargeResult{Success: false, Status: billing.PaymentFailed, Message: "card_declined"}, nil)
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s3")).Return(succeeded("pi_3"), nil)

	report, err := newReconciler(store, proc).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Count(billing.OutcomeRenewalFailed))
	assert.Equal(t, 1, report.Count(billing.OutcomeRenewed))

	res, _ := report.Result("s1")
	assert.ErrorIs(t, res.Err, billing.ErrProcessor)
	res, _ = report.Result("s2")
	assert.ErrorIs(t, res.Err, billing.ErrChargeDeclined)
	assert.Contains(t, res.Reason, "card_declined")

	for _, id := range []string{"s1", "s2"} {
		a, err := store.GetAccount(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusExpired, a.SubscriptionStatus, id)
		assert.Empty(t, a.Payments, id)
	}

	ids := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		ids = append(ids, r.AccountID)
	}
	assert.Equal(t, []string{"s1", "s2", "s3"}, ids)
}

func TestRun_PersistFailureAfterCharge(t *testing.T) {
	t.Parallel()

	store := &failingStore{
		MemoryStore: billing.NewMemoryStore(eligibleSeller("s1", at(-days(2)))),
		appendErr:   errors.New("write conflict"),
	}
	proc := &mockProcessor{}
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s1")).Return(succeeded("pi_1"), nil)

	report, err := newReconciler(store, proc).Run(context.Background())
	require.NoError(t, err)

	res, _ := report.Result("s1")
	assert.Equal(t, billing.OutcomeRenewalFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, billing.ErrPersistPayment)
	assert.Equal(t, "pi_1", res.PaymentID)
	assert.Contains(t, res.Reason, "pi_1")
}

func TestRun_FetchFailure(t *testing.T) {
	t.Parallel()

	store := &failingStore{MemoryStore: billing.NewMemoryStore(), listErr: errors.New("connection refused")}
	report, err := newReconciler(store, &mockProcessor{}).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrFetchAccounts)
	assert.Nil(t, report)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore(eligibleSeller("s1", at(-days(2))), eligibleSeller("s2", at(-days(2))))
	proc := &mockProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newReconciler(store, proc).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Results)

	proc.AssertNotCalled(t, "ChargeSavedInstrument", mock.Anything, mock.Anything)
}

func TestRun_Concurrent(t *testing.T) {
	t.Parallel()

	const n = 25
	store := billing.NewMemoryStore()
	proc := &mockProcessor{}
	for i := range n {
		id := fmt.Sprintf("s%02d", i)
		store.Put(eligibleSeller(id, at(-days(i+1))))
		proc.On("ChargeSavedInstrument", mock.Anything, chargeFor(id)).Return(succeeded("pi_"+id), nil).Once()
	}

	report, err := newReconciler(store, proc, billing.WithConcurrency(8)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, n, report.Count(billing.OutcomeRenewed))
	require.Len(t, report.Results, n)
	assert.Equal(t, "s00", report.Results[0].AccountID)
	assert.Equal(t, "s24", report.Results[n-1].AccountID)
	proc.AssertExpectations(t)
}

func TestRun_NeverSubscribedSeller(t *testing.T) {
	t.Parallel()

	seller := eligibleSeller("s1", nil)
	seller.SubscriptionStatus = ""
	seller.SubscriptionPrice = 0
	seller.SubscriptionDuration = 0

	store := billing.NewMemoryStore(seller)
	proc := &mockProcessor{}
	proc.On("ChargeSavedInstrument", mock.Anything, mock.MatchedBy(func(req billing.ChargeRequest) bool {
		return req.IdempotencyKey == "renewal:s1:initial:pm_s1:1000eur" && req.Amount == billing.DefaultMonthlyAmount
	})).Return(succeeded("pi_1"), nil).Once()

	report, err := newReconciler(store, proc).Run(context.Background())
	require.NoError(t, err)

	res, _ := report.Result("s1")
	assert.Equal(t, billing.OutcomeRenewed, res.Outcome)
	assert.Equal(t, testNow.AddDate(0, 0, billing.DefaultDurationDays), *res.NewExpiry)
	proc.AssertExpectations(t)
}

func TestRun_NotifiesArchivesAndMirrors(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore(
		eligibleSeller("s1", at(-days(2))),
		eligibleSeller("s2", at(-days(2))),
		eligibleSeller("s3", at(days(2))),
	)
	proc := &mockProcessor{}
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s1")).Return(succeeded("pi_1"), nil)
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s2")).Return(&billing.ChargeResult{Status: billing.PaymentFailed}, nil)

	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything,
		mock.MatchedBy(func(a billing.Account) bool { return a.ID == "s1" }),
		mock.MatchedBy(func(res billing.AccountResult) bool { return res.Outcome == billing.OutcomeRenewed }),
	).Return(nil).Once()
	notifier.On("Notify", mock.Anything,
		mock.MatchedBy(func(a billing.Account) bool { return a.ID == "s2" }),
		mock.MatchedBy(func(res billing.AccountResult) bool { return res.Outcome == billing.OutcomeRenewalFailed }),
	).Return(errors.New("smtp down")).Once()

	archiver := &mockArchiver{}
	archiver.On("Archive", mock.Anything, mock.MatchedBy(func(r *billing.RunReport) bool {
		return r.Count(billing.OutcomeRenewed) == 1 && r.Count(billing.OutcomeRenewalFailed) == 1
	})).Return(errors.New("bucket missing")).Once()

	ledger := &recordingLedger{}
	broken := &recordingLedger{err: errors.New("pg down")}

	report, err := newReconciler(store, proc,
		billing.WithNotifier(notifier),
		billing.WithArchiver(archiver),
		billing.WithReportingLedger(ledger, broken, nil),
	).Run(billing.WithTrigger(context.Background(), billing.TriggerSchedule))
	require.NoError(t, err)

	assert.Equal(t, billing.TriggerSchedule, report.Trigger)
	assert.Equal(t, 1, report.Count(billing.OutcomeRenewed))
	require.Len(t, ledger.payments["s1"], 1)
	assert.Equal(t, "pi_1", ledger.payments["s1"][0].PaymentID)
	assert.Empty(t, ledger.payments["s2"])

	notifier.AssertExpectations(t)
	archiver.AssertExpectations(t)
}

func TestRun_RunIDPropagatesToCollaborators(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore(eligibleSeller("s1", at(-days(2))))
	proc := &mockProcessor{}

	var seen string
	proc.On("ChargeSavedInstrument", mock.MatchedBy(func(ctx context.Context) bool {
		id, ok := billing.RunIDFromContext(ctx)
		seen = id
		return ok && id != ""
	}), chargeFor("s1")).Return(succeeded("pi_1"), nil)

	report, err := newReconciler(store, proc).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.RunID, seen)
}

func TestReconcileAccount(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore(
		eligibleSeller("s1", at(-days(2))),
		billing.Account{ID: "b1", Role: billing.RoleBuyer},
	)
	proc := &mockProcessor{}
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s1")).Return(succeeded("pi_1"), nil).Once()
	r := newReconciler(store, proc)

	res, err := r.ReconcileAccount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeRenewed, res.Outcome)

	res, err = r.ReconcileAccount(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeSkipped, res.Outcome)

	_, err = r.ReconcileAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
}

func TestSetAutoRenewal_RenewsImmediately(t *testing.T) {
	t.Parallel()

	seller := eligibleSeller("s1", at(-days(4)))
	seller.AutoRenewalEnabled = false
	store := billing.NewMemoryStore(seller)
	proc := &mockProcessor{}
	proc.On("ChargeSavedInstrument", mock.Anything, chargeFor("s1")).Return(succeeded("pi_1"), nil).Once()
	r := newReconciler(store, proc)

	res, err := r.SetAutoRenewal(context.Background(), "s1", true)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeRenewed, res.Outcome)

	a, err := store.GetAccount(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, a.AutoRenewalEnabled)

	res, err = r.SetAutoRenewal(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeActive, res.Outcome)

	_, err = r.SetAutoRenewal(context.Background(), "missing", true)
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
	proc.AssertExpectations(t)
}

func TestSyncStatus(t *testing.T) {
	t.Parallel()

	stale := eligibleSeller("s1", at(-days(2)))
	cancelled := eligibleSeller("s2", at(-days(2)))
	cancelled.SubscriptionStatus = billing.StatusCancelled
	cancelledPaid := eligibleSeller("s3", at(days(5)))
	cancelledPaid.SubscriptionStatus = billing.StatusCancelled
	store := billing.NewMemoryStore(stale, cancelled, cancelledPaid)
	r := newReconciler(store, &mockProcessor{})

	got, err := r.SyncStatus(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, got.Updated)
	assert.Equal(t, billing.StatusExpired, got.Status)
	assert.Equal(t, 2, got.Derived.DaysOverdue)

	again, err := r.SyncStatus(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, again.Updated)
	assert.Equal(t, billing.StatusExpired, again.Status)

	kept, err := r.SyncStatus(context.Background(), "s2")
	require.NoError(t, err)
	assert.False(t, kept.Updated)
	assert.Equal(t, billing.StatusCancelled, kept.Status)

	keptPaid, err := r.SyncStatus(context.Background(), "s3")
	require.NoError(t, err)
	assert.False(t, keptPaid.Updated)
	assert.Equal(t, billing.StatusCancelled, keptPaid.Status)

	_, err = r.SyncStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
}

func TestStatus_HasNoSideEffects(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore(eligibleSeller("s1", at(-days(2))))
	r := newReconciler(store, &mockProcessor{})

	a, st, err := r.Status(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, st.IsExpired)
	assert.True(t, st.NeedsUpdate)
	assert.Equal(t, billing.StatusActive, a.SubscriptionStatus)

	stored, err := store.GetAccount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, stored.SubscriptionStatus)
}
