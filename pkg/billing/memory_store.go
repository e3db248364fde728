package billing

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements AccountStore and PaymentRecorder for tests and local development.
// Accounts are deep-copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryStore returns a store seeded with the given accounts.
func NewMemoryStore(accounts ...Account) *MemoryStore {
	s := &MemoryStore{accounts: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		s.accounts[a.ID] = cloneAccount(a)
	}
	return s
}

// Put inserts or replaces an account.
func (s *MemoryStore) Put(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = cloneAccount(a)
}

// ListAccounts implements AccountStore. Accounts are ordered by id.
func (s *MemoryStore) ListAccounts(_ context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAccount implements AccountStore.
func (s *MemoryStore) GetAccount(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	c := cloneAccount(a)
	return &c, nil
}

// UpdateAccount implements AccountStore.
func (s *MemoryStore) UpdateAccount(_ context.Context, id string, upd AccountUpdate) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	a = upd.Apply(a)
	s.accounts[id] = a
	c := cloneAccount(a)
	return &c, nil
}

// AppendPayment implements PaymentRecorder. A payment id already on the account is ignored.
func (s *MemoryStore) AppendPayment(_ context.Context, accountID string, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	for _, existing := range a.Payments {
		if existing.PaymentID == p.PaymentID {
			return nil
		}
	}
	a.Payments = append(a.Payments, clonePayment(p))
	s.accounts[accountID] = a
	return nil
}

func cloneAccount(a Account) Account {
	a.SubscriptionExpiry = cloneTime(a.SubscriptionExpiry)
	a.Payments = slices.Clone(a.Payments)
	for i := range a.Payments {
		a.Payments[i] = clonePayment(a.Payments[i])
	}
	return a
}

func clonePayment(p Payment) Payment {
	p.SubscriptionExpiry = cloneTime(p.SubscriptionExpiry)
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
