package email

import "fmt"

// Config holds email delivery settings. Without Postmark tokens messages are
// written to DevOutputDir instead of being sent.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
	DevOutputDir         string `env:"EMAIL_DEV_OUTPUT_DIR" envDefault:"./tmp/emails"`
}

func (c Config) validatePostmark() error {
	checks := []struct {
		name, value string
		address     bool
	}{
		{"PostmarkServerToken", c.PostmarkServerToken, false},
		{"PostmarkAccountToken", c.PostmarkAccountToken, false},
		{"SenderEmail", c.SenderEmail, true},
		{"SupportEmail", c.SupportEmail, true},
	}
	for _, ch := range checks {
		if ch.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, ch.name)
		}
		if ch.address && !emailRegex.MatchString(ch.value) {
			return fmt.Errorf("%w: %s must be a valid email address", ErrInvalidConfig, ch.name)
		}
	}
	return nil
}
