package email

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// EmailSender sends a single transactional message.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams describes one outgoing message.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Validate checks the recipient, subject and body.
func (p SendEmailParams) Validate() error {
	to := strings.TrimSpace(p.SendTo)
	switch {
	case to == "":
		return fmt.Errorf("%w: SendTo is required", ErrInvalidParams)
	case !emailRegex.MatchString(to):
		return fmt.Errorf("%w: SendTo must be a valid email address", ErrInvalidParams)
	case strings.TrimSpace(p.Subject) == "":
		return fmt.Errorf("%w: Subject is required", ErrInvalidParams)
	case strings.TrimSpace(p.BodyHTML) == "" && strings.TrimSpace(p.BodyText) == "":
		return fmt.Errorf("%w: a body is required", ErrInvalidParams)
	}
	return nil
}

// New returns a Postmark sender when tokens are configured and a DevSender otherwise.
func New(cfg Config) (EmailSender, error) {
	if cfg.PostmarkServerToken == "" && cfg.PostmarkAccountToken == "" {
		return NewDevSender(cfg.DevOutputDir), nil
	}
	return NewPostmarkClient(cfg)
}
