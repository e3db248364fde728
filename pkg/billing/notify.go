package billing

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kdprince200-netizen/equiherds/pkg/email"
)

// EmailNotifier mails sellers after an unattended renewal attempt.
type EmailNotifier struct {
	sender  email.EmailSender
	printer *message.Printer
}

// NewEmailNotifier formats amounts for lang (English when undefined).
func NewEmailNotifier(sender email.EmailSender, lang language.Tag) *EmailNotifier {
	if sender == nil {
		panic("billing: email sender is required")
	}
	if lang == language.Und {
		lang = language.English
	}
	return &EmailNotifier{sender: sender, printer: message.NewPrinter(lang)}
}

var (
	renewedTemplate = template.Must(template.New("renewed").Parse(
		`<p>Hello {{.Name}},</p>` +
			`<p>Your seller subscription was renewed automatically. We charged {{.Amount}} to your saved card.</p>` +
			`<p>Your subscription is now active until {{.Expiry}}.</p>` +
			`<p>Payment reference: {{.PaymentID}}</p>`))

	failedTemplate = template.Must(template.New("failed").Parse(
		`<p>Hello {{.Name}},</p>` +
			`<p>We could not renew your seller subscription automatically.</p>` +
			`<p>Reason: {{.Reason}}</p>` +
			`<p>Your subscription stays expired until you renew it from the billing page.</p>`))
)

type notificationData struct {
	Name      string
	Amount    string
	Expiry    string
	PaymentID string
	Reason    string
}

// Notify implements Notifier. Accounts without an e-mail address are skipped.
func (n *EmailNotifier) Notify(ctx context.Context, a Account, res AccountResult) error {
	if strings.TrimSpace(a.Email) == "" {
		return nil
	}

	data := notificationData{
		Name:      a.Name,
		Amount:    n.FormatAmount(res.Amount, res.Currency),
		PaymentID: res.PaymentID,
		Reason:    res.Reason,
	}
	if data.Name == "" {
		data.Name = "there"
	}
	if res.NewExpiry != nil {
		data.Expiry = res.NewExpiry.UTC().Format("2 January 2006")
	}

	var (
		tpl     *template.Template
		subject string
		tag     string
	)
	switch res.Outcome {
	case OutcomeRenewed:
		tpl, subject, tag = renewedTemplate, "Your subscription was renewed", "renewal-succeeded"
	case OutcomeRenewalFailed:
		tpl, subject, tag = failedTemplate, "We could not renew your subscription", "renewal-failed"
	default:
		return nil
	}

	var body bytes.Buffer
	if err := tpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s notification: %w", tag, err)
	}

	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   a.Email,
		Subject:  subject,
		BodyHTML: body.String(),
		Tag:      tag,
	})
}

// FormatAmount renders minor units with the currency symbol, e.g. "€ 12.00".
// Unknown currency codes fall back to the upper-cased code.
func (n *EmailNotifier) FormatAmount(minor int64, code string) string {
	return formatAmount(n.printer, minor, code)
}

func formatAmount(p *message.Printer, minor int64, code string) string {
	major, _ := FromMinor(minor).Float64()
	unit, err := currency.ParseISO(code)
	if err != nil {
		return p.Sprintf("%.2f %s", major, strings.ToUpper(code))
	}
	return p.Sprint(currency.Symbol(unit.Amount(major)))
}
