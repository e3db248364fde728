package billing

import (
	"context"
	"errors"
	"time"
)

// Webhook event types.
const (
	EventRenewed       = "subscription.renewed"
	EventRenewalFailed = "subscription.renewal_failed"
)

// WebhookConfig enables outbound renewal events when URL is set.
type WebhookConfig struct {
	URL        string `env:"BILLING_WEBHOOK_URL"`
	Secret     string `env:"BILLING_WEBHOOK_SECRET"`
	MaxRetries int    `env:"BILLING_WEBHOOK_MAX_RETRIES" envDefault:"3"`
}

// Enabled reports whether an endpoint is configured.
func (c WebhookConfig) Enabled() bool { return c.URL != "" }

// WebhookEvent is the JSON body posted for each renewal attempt.
type WebhookEvent struct {
	Type       string     `json:"type"`
	RunID      string     `json:"run_id,omitempty"`
	Trigger    string     `json:"trigger"`
	AccountID  string     `json:"account_id"`
	Amount     int64      `json:"amount,omitempty"`
	Currency   string     `json:"currency,omitempty"`
	PaymentID  string     `json:"payment_id,omitempty"`
	NewExpiry  *time.Time `json:"new_expiry,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// EventSender delivers one JSON event. *webhook.Sender satisfies it.
type EventSender interface {
	Send(ctx context.Context, data any) error
}

// WebhookNotifier posts renewal outcomes to an external endpoint.
type WebhookNotifier struct {
	sender EventSender
	now    func() time.Time
}

func NewWebhookNotifier(sender EventSender) *WebhookNotifier {
	if sender == nil {
		panic("billing: event sender is required")
	}
	return &WebhookNotifier{sender: sender, now: func() time.Time { return time.Now().UTC() }}
}

// Notify implements Notifier. Outcomes other than renewed and renewal-failed are ignored.
func (n *WebhookNotifier) Notify(ctx context.Context, a Account, res AccountResult) error {
	var typ string
	switch res.Outcome {
	case OutcomeRenewed:
		typ = EventRenewed
	case OutcomeRenewalFailed:
		typ = EventRenewalFailed
	default:
		return nil
	}

	runID, _ := RunIDFromContext(ctx)
	return n.sender.Send(ctx, WebhookEvent{
		Type:       typ,
		RunID:      runID,
		Trigger:    TriggerFromContext(ctx),
		AccountID:  a.ID,
		Amount:     res.Amount,
		Currency:   res.Currency,
		PaymentID:  res.PaymentID,
		NewExpiry:  res.NewExpiry,
		Reason:     res.Reason,
		OccurredAt: n.now(),
	})
}

// Notifiers fans one outcome out to every notifier, joining their errors.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, a Account, res AccountResult) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, a, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
