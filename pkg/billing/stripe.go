package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeConfig holds processor credentials.
type StripeConfig struct {
	SecretKey string `env:"STRIPE_SECRET_KEY,required"`
}

// StripeProcessor implements PaymentProcessor with off-session PaymentIntents.
type StripeProcessor struct {
	api *client.API
}

// NewStripeProcessor creates a processor bound to one secret key.
// The per-client key keeps the package-level stripe.Key untouched.
func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	if cfg.SecretKey == "" {
		return nil, errors.Join(ErrProcessor, errors.New("stripe secret key is empty"))
	}
	return &StripeProcessor{api: client.New(cfg.SecretKey, nil)}, nil
}

// ChargeSavedInstrument implements PaymentProcessor.
func (p *StripeProcessor) ChargeSavedInstrument(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return chargeResultFromError(err)
	}
	return chargeResultFromIntent(pi), nil
}

// CreateOrGetCustomer implements PaymentProcessor. Customers are looked up by
// the account_id metadata before a new one is created.
func (p *StripeProcessor) CreateOrGetCustomer(ctx context.Context, accountID, email, name string) (string, error) {
	search := &stripe.CustomerSearchParams{}
	search.Context = ctx
	search.Query = fmt.Sprintf("metadata['account_id']:'%s'", accountID)
	search.Limit = stripe.Int64(1)

	iter := p.api.Customers.Search(search)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", errors.Join(ErrProcessor, err)
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.AddMetadata("account_id", accountID)
	params.SetIdempotencyKey("customer:" + accountID)

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", errors.Join(ErrProcessor, err)
	}
	return c.ID, nil
}

// SavePaymentMethod implements PaymentProcessor.
func (p *StripeProcessor) SavePaymentMethod(ctx context.Context, accountID, customerID, methodID string, makeDefault bool) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = ctx
	if _, err := p.api.PaymentMethods.Attach(methodID, attach); err != nil {
		return errors.Join(ErrProcessor, fmt.Errorf("attach payment method for account %s: %w", accountID, err))
	}

	if !makeDefault {
		return nil
	}

	upd := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(methodID),
		},
	}
	upd.Context = ctx
	if _, err := p.api.Customers.Update(customerID, upd); err != nil {
		return errors.Join(ErrProcessor, fmt.Errorf("set default payment method for account %s: %w", accountID, err))
	}
	return nil
}

func chargeResultFromIntent(pi *stripe.PaymentIntent) *ChargeResult {
	res := &ChargeResult{PaymentID: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Success = true
		res.Status = PaymentSucceeded
	case stripe.PaymentIntentStatusProcessing:
		res.Status = PaymentPending
		res.Message = "payment is processing"
	case stripe.PaymentIntentStatusRequiresAction:
		res.Status = PaymentFailed
		res.Message = "payment requires customer authentication"
	default:
		res.Status = PaymentFailed
		res.Message = "payment intent status " + string(pi.Status)
	}
	return res
}

// chargeResultFromError separates card declines, which are business outcomes,
// from transport and API failures.
func chargeResultFromError(err error) (*ChargeResult, error) {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
		res := &ChargeResult{Status: PaymentFailed, Message: serr.Msg}
		if serr.DeclineCode != "" {
			res.Message = fmt.Sprintf("%s (%s)", serr.Msg, serr.DeclineCode)
		}
		if serr.PaymentIntent != nil {
			res.PaymentID = serr.PaymentIntent.ID
		}
		return res, nil
	}
	return nil, err
}
