package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kdprince200-netizen/equiherds/pkg/logger"
	"github.com/kdprince200-netizen/equiherds/pkg/token"
)

const (
	// DefaultProposalTTL bounds how long a user may take to confirm a quoted charge.
	DefaultProposalTTL = 15 * time.Minute
	// DefaultTrialDays is the trial length when the caller does not pick one.
	DefaultTrialDays = 14
)

// Checkout is the user-present side of billing: quotes, two-phase charges,
// trials and payment-instrument onboarding. It shares the reconciler's store,
// processor, lock and commit path so both entry points project expiry the same way.
type Checkout struct {
	r         *Reconciler
	catalog   PlanCatalog
	secret    string
	nonces    NonceStore
	ttl       time.Duration
	trialDays int
	logger    *slog.Logger
}

// CheckoutOption configures a Checkout.
type CheckoutOption func(*Checkout)

// WithNonceStore sets where consumed proposal nonces are recorded.
func WithNonceStore(s NonceStore) CheckoutOption {
	return func(c *Checkout) {
		if s != nil {
			c.nonces = s
		}
	}
}

// WithProposalTTL sets how long a proposal stays confirmable.
func WithProposalTTL(ttl time.Duration) CheckoutOption {
	return func(c *Checkout) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithTrialDays sets the default trial length.
func WithTrialDays(days int) CheckoutOption {
	return func(c *Checkout) {
		if days > 0 {
			c.trialDays = days
		}
	}
}

// NewCheckout creates a Checkout. Panics if r is nil or secret is empty.
// A nil catalog limits quotes to the account's own economics.
func NewCheckout(r *Reconciler, catalog PlanCatalog, secret string, opts ...CheckoutOption) *Checkout {
	if r == nil {
		panic("billing: Reconciler is required")
	}
	if secret == "" {
		panic("billing: proposal secret is required")
	}

	c := &Checkout{
		r:         r,
		catalog:   catalog,
		secret:    secret,
		ttl:       DefaultProposalTTL,
		trialDays: DefaultTrialDays,
		logger:    r.logger.With(logger.Component("billing.checkout")),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.nonces == nil {
		c.nonces = NewMemoryNonceStore(c.ttl)
	}
	return c
}

// Quote prices a charge for the account, optionally for a catalog plan and offer.
func (c *Checkout) Quote(ctx context.Context, accountID, planID string, offer OfferKind) (AmountQuote, error) {
	a, err := c.r.store.GetAccount(ctx, accountID)
	if err != nil {
		return AmountQuote{}, err
	}
	if !a.IsSeller() {
		return AmountQuote{}, ErrNotSeller
	}

	sel, err := c.selection(ctx, planID, offer)
	if err != nil {
		return AmountQuote{}, err
	}
	return c.r.calc.Quote(a, sel, c.r.now()), nil
}

// Plans lists the catalog, or nothing when no catalog is configured.
func (c *Checkout) Plans(ctx context.Context) ([]Plan, error) {
	if c.catalog == nil {
		return nil, nil
	}
	return c.catalog.ListPlans(ctx)
}

func (c *Checkout) selection(ctx context.Context, planID string, offer OfferKind) (*PlanSelection, error) {
	if planID == "" {
		if offer != OfferNone {
			return nil, fmt.Errorf("%w: an offer requires a plan", ErrInvalidPlan)
		}
		return nil, nil
	}
	if c.catalog == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	p, err := c.catalog.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if offer == OfferSpecial && p.OfferMonths <= 0 {
		return nil, fmt.Errorf("%w: plan %s has no special offer", ErrInvalidPlan, planID)
	}
	return &PlanSelection{Plan: *p, Offer: offer}, nil
}

// Proposal is the first half of a two-phase charge. The token carries the
// quoted terms; nothing is charged until it is confirmed.
type Proposal struct {
	Token     string      `json:"token"`
	Quote     AmountQuote `json:"quote"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type proposalClaims struct {
	Nonce     string     `json:"n"`
	AccountID string     `json:"a"`
	PlanID    string     `json:"p,omitempty"`
	PlanName  string     `json:"pn,omitempty"`
	Type      ChargeType `json:"t"`
	Amount    int64      `json:"amt"`
	Price     int64      `json:"pr"`
	Currency  string     `json:"cur"`
	Duration  int        `json:"d"`
	Base      int        `json:"bd,omitempty"`
	Exp       int64      `json:"exp"`
}

// ExpiresAt implements token.Expirer.
func (p proposalClaims) ExpiresAt() time.Time {
	return time.Unix(p.Exp, 0).UTC()
}

func (p proposalClaims) quote() AmountQuote {
	return AmountQuote{
		Amount:   p.Amount,
		Price:    p.Price,
		Currency: p.Currency,
		Type:     p.Type,
		Duration: p.Duration,
		PlanID:   p.PlanID,
		PlanName: p.PlanName,

		BaseDuration: p.Base,
	}
}

// ProposeCharge quotes a charge and signs the terms into a single-use confirmation token.
func (c *Checkout) ProposeCharge(ctx context.Context, accountID, planID string, offer OfferKind) (*Proposal, error) {
	q, err := c.Quote(ctx, accountID, planID, offer)
	if err != nil {
		return nil, err
	}

	exp := c.r.now().Add(c.ttl)
	claims := proposalClaims{
		Nonce:     uuid.NewString(),
		AccountID: accountID,
		PlanID:    q.PlanID,
		PlanName:  q.PlanName,
		Type:      q.Type,
		Amount:    q.Amount,
		Price:     q.Price,
		Currency:  q.Currency,
		Duration:  q.Duration,
		Base:      q.BaseDuration,
		Exp:       exp.Unix(),
	}
	tok, err := token.GenerateToken(claims, c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign proposal: %w", err)
	}

	return &Proposal{Token: tok, Quote: q, ExpiresAt: time.Unix(claims.Exp, 0).UTC()}, nil
}

// ConfirmResult is the outcome of a confirmed charge.
type ConfirmResult struct {
	AccountID string     `json:"account_id"`
	PaymentID string     `json:"payment_id"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	Type      ChargeType `json:"type"`
	NewExpiry time.Time  `json:"new_expiry"`
}

// ConfirmCharge executes a proposal. Each token can be confirmed at most once,
// including after a failed charge.
func (c *Checkout) ConfirmCharge(ctx context.Context, tok string) (*ConfirmResult, error) {
	claims, err := token.ParseTokenAt[proposalClaims](tok, c.secret, c.r.now())
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return nil, ErrProposalExpired
		}
		return nil, errors.Join(ErrInvalidProposal, err)
	}
	if claims.Nonce == "" || claims.AccountID == "" || claims.Amount <= 0 || claims.Duration <= 0 {
		return nil, ErrInvalidProposal
	}

	fresh, err := c.consume(ctx, claims.Nonce)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, ErrProposalUsed
	}

	unlock, err := c.r.locker.Lock(ctx, lockKey(claims.AccountID))
	if err != nil {
		return nil, errors.Join(ErrAccountLocked, err)
	}
	defer unlock()

	a, err := c.r.store.GetAccount(ctx, claims.AccountID)
	if err != nil {
		return nil, err
	}
	if !a.IsSeller() {
		return nil, ErrNotSeller
	}
	if !a.PaymentInstrument.Complete() {
		return nil, ErrNoPaymentInstrument
	}

	q := claims.quote()
	opCtx := context.WithoutCancel(ctx)

	cr, err := c.r.processor.ChargeSavedInstrument(opCtx, ChargeRequest{
		AccountID:       a.ID,
		CustomerID:      a.PaymentInstrument.CustomerID,
		PaymentMethodID: a.PaymentInstrument.PaymentMethodID,
		Amount:          q.Amount,
		Currency:        q.Currency,
		Description:     fmt.Sprintf("Subscription payment (%d days)", q.Duration),
		IdempotencyKey:  "proposal:" + claims.Nonce,
		Metadata: map[string]string{
			"account_id": a.ID,
			"type":       string(q.Type),
			"duration":   strconv.Itoa(q.Duration),
			"plan_id":    q.PlanID,
		},
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "confirmed charge failed", logger.AccountID(a.ID), logger.Error(err))
		return nil, errors.Join(ErrProcessor, err)
	}
	if cr == nil || !cr.Success {
		msg := "declined"
		if cr != nil && cr.Message != "" {
			msg = cr.Message
		}
		c.logger.WarnContext(ctx, "confirmed charge declined", logger.AccountID(a.ID), slog.String("reason", msg))
		return nil, fmt.Errorf("%w: %s", ErrChargeDeclined, msg)
	}

	p, err := c.r.commit(opCtx, a, q, cr.PaymentID, c.r.now())
	if err != nil {
		c.logger.ErrorContext(ctx, "confirmed charge not persisted",
			logger.AccountID(a.ID), logger.PaymentID(cr.PaymentID), logger.Error(err))
		return nil, err
	}

	c.logger.InfoContext(ctx, "subscription payment confirmed",
		logger.AccountID(a.ID),
		logger.PaymentID(p.PaymentID),
		logger.Amount(p.Amount),
		slog.String("type", string(q.Type)),
		slog.Time("new_expiry", *p.SubscriptionExpiry),
	)

	return &ConfirmResult{
		AccountID: a.ID,
		PaymentID: p.PaymentID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Type:      q.Type,
		NewExpiry: *p.SubscriptionExpiry,
	}, nil
}

func (c *Checkout) consume(ctx context.Context, nonce string) (bool, error) {
	ok, err := c.nonces.Consume(ctx, nonce)
	if err != nil {
		return false, fmt.Errorf("consume proposal nonce: %w", err)
	}
	return ok, nil
}

// StartTrial activates a free trial for a seller who was never subscribed.
func (c *Checkout) StartTrial(ctx context.Context, accountID string, days int) (*Account, error) {
	if days < 0 {
		return nil, ErrInvalidDuration
	}
	if days == 0 {
		days = c.trialDays
	}

	unlock, err := c.r.locker.Lock(ctx, lockKey(accountID))
	if err != nil {
		return nil, errors.Join(ErrAccountLocked, err)
	}
	defer unlock()

	a, err := c.r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !a.IsSeller() {
		return nil, ErrNotSeller
	}
	if a.HasSubscriptionHistory() {
		return nil, ErrTrialNotAvailable
	}

	// The trial length is not plan economics; the first paid renewal bills the default period.
	expiry := c.r.now().AddDate(0, 0, days)
	updated, err := c.r.store.UpdateAccount(ctx, accountID, AccountUpdate{
		SubscriptionStatus: ptr(StatusActive),
		SubscriptionExpiry: &expiry,
	})
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "trial started",
		logger.AccountID(accountID), slog.Int("days", days), slog.Time("expiry", expiry))
	return updated, nil
}

// SavePaymentInstrument registers a tokenized payment method with the processor
// and stores both references on the account.
func (c *Checkout) SavePaymentInstrument(ctx context.Context, accountID, email, name, methodID string, makeDefault bool) (*Account, error) {
	if methodID == "" {
		return nil, ErrNoPaymentInstrument
	}

	a, err := c.r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if email == "" {
		email = a.Email
	}
	if name == "" {
		name = a.Name
	}

	customerID := a.PaymentInstrument.CustomerID
	if customerID == "" {
		customerID, err = c.r.processor.CreateOrGetCustomer(ctx, accountID, email, name)
		if err != nil {
			return nil, errors.Join(ErrProcessor, err)
		}
	}

	if err := c.r.processor.SavePaymentMethod(ctx, accountID, customerID, methodID, makeDefault); err != nil {
		return nil, errors.Join(ErrProcessor, err)
	}

	upd := AccountUpdate{CustomerID: ptr(customerID)}
	if makeDefault || a.PaymentInstrument.PaymentMethodID == "" {
		upd.PaymentMethodID = ptr(methodID)
	}
	updated, err := c.r.store.UpdateAccount(ctx, accountID, upd)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "payment instrument saved",
		logger.AccountID(accountID), slog.Bool("default", makeDefault))
	return updated, nil
}
