package billing

import "time"

// Config holds billing settings shared by the daemon and the CLI.
type Config struct {
	Currency           string        `env:"BILLING_CURRENCY" envDefault:"eur"`
	DefaultAmount      int64         `env:"BILLING_DEFAULT_AMOUNT" envDefault:"1000"` // minor units
	DefaultDuration    int           `env:"BILLING_DEFAULT_DURATION_DAYS" envDefault:"30"`
	Schedule           string        `env:"BILLING_RECONCILE_SCHEDULE" envDefault:"@every 1h"`
	RunOnStart         bool          `env:"BILLING_RECONCILE_ON_START" envDefault:"true"`
	Concurrency        int           `env:"BILLING_CONCURRENCY" envDefault:"4"`
	LockTTL            time.Duration `env:"BILLING_LOCK_TTL" envDefault:"2m"`
	ProposalTTL        time.Duration `env:"BILLING_PROPOSAL_TTL" envDefault:"15m"`
	ProposalSecret     string        `env:"BILLING_PROPOSAL_SECRET"`
	TrialDays          int           `env:"BILLING_TRIAL_DAYS" envDefault:"14"`
	CatalogPath        string        `env:"BILLING_CATALOG_PATH"`
	AccountsCollection string        `env:"BILLING_ACCOUNTS_COLLECTION" envDefault:"users"`
	NotifyLanguage     string        `env:"BILLING_NOTIFY_LANGUAGE" envDefault:"en"`
	LedgerEnabled      bool          `env:"BILLING_LEDGER_ENABLED" envDefault:"true"`
}

// CalculatorOptions returns the pricing defaults as calculator options.
func (c Config) CalculatorOptions() []CalculatorOption {
	return []CalculatorOption{
		WithDefaultAmount(c.DefaultAmount),
		WithDefaultDuration(c.DefaultDuration),
		WithCurrency(c.Currency),
	}
}

// CheckoutOptions returns proposal and trial settings as checkout options.
func (c Config) CheckoutOptions() []CheckoutOption {
	return []CheckoutOption{
		WithProposalTTL(c.ProposalTTL),
		WithTrialDays(c.TrialDays),
	}
}
