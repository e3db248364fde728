package billing_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kdprince200-netizen/equiherds/pkg/billing"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func at(d time.Duration) *time.Time {
	t := testNow.Add(d)
	return &t
}

func clock() time.Time { return testNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) ChargeSavedInstrument(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ChargeResult), args.Error(1)
}

func (m *mockProcessor) CreateOrGetCustomer(ctx context.Context, accountID, email, name string) (string, error) {
	args := m.Called(ctx, accountID, email, name)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) SavePaymentMethod(ctx context.Context, accountID, customerID, methodID string, makeDefault bool) error {
	args := m.Called(ctx, accountID, customerID, methodID, makeDefault)
	return args.Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, a billing.Account, res billing.AccountResult) error {
	args := m.Called(ctx, a, res)
	return args.Error(0)
}

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Archive(ctx context.Context, report *billing.RunReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

type failingStore struct {
	*billing.MemoryStore
	listErr   error
	updateErr error
	appendErr error
}

func (s *failingStore) ListAccounts(ctx context.Context) ([]billing.Account, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MemoryStore.ListAccounts(ctx)
}

func (s *failingStore) UpdateAccount(ctx context.Context, id string, upd billing.AccountUpdate) (*billing.Account, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.MemoryStore.UpdateAccount(ctx, id, upd)
}

func (s *failingStore) AppendPayment(ctx context.Context, id string, p billing.Payment) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.MemoryStore.AppendPayment(ctx, id, p)
}

// eligibleSeller returns a seller that can be charged without the user present.
func eligibleSeller(id string, expiry *time.Time) billing.Account {
	return billing.Account{
		ID:                   id,
		Email:                id + "@example.com",
		Role:                 billing.RoleSeller,
		SubscriptionExpiry:   expiry,
		SubscriptionStatus:   billing.StatusActive,
		SubscriptionPrice:    1200,
		SubscriptionDuration: 30,
		AutoRenewalEnabled:   true,
		PaymentInstrument: billing.PaymentInstrument{
			CustomerID:      "cus_" + id,
			PaymentMethodID: "pm_" + id,
		},
	}
}

func succeeded(paymentID string) *billing.ChargeResult {
	return &billing.ChargeResult{Success: true, PaymentID: paymentID, Status: billing.PaymentSucceeded}
}

func chargeFor(accountID string) any {
	return mock.MatchedBy(func(req billing.ChargeRequest) bool { return req.AccountID == accountID })
}
