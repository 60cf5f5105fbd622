package email

// Config holds email sending configuration. Tokens are optional so the
// service can run with the noop sender in environments where outbound email
// is disabled.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"billing@draftcoach.app"`
	BillingOpsEmail      string `env:"BILLING_OPS_EMAIL" envDefault:"billing-ops@draftcoach.app"`
}

// Enabled reports whether a real provider is configured.
func (c Config) Enabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
