package config

import (
	"strings"
	"time"
)

// Transport names accepted by DELIVERY_TRANSPORT.
const (
	TransportGmail = "gmail"
	TransportLog   = "log"
)

// DeliveryConfig controls how messages are composed, sent and reported.
type DeliveryConfig struct {
	// Transport selects the provider: gmail or log.
	Transport string `env:"DELIVERY_TRANSPORT" envDefault:"gmail"`

	// RatePerSecond caps sends per sender identity in this process. Zero disables the cap.
	RatePerSecond float64 `env:"DELIVERY_RATE_PER_SECOND" envDefault:"0"`
	RateBurst     int     `env:"DELIVERY_RATE_BURST"      envDefault:"1"`

	// GmailClientID and GmailClientSecret are used when a stored token does not carry them.
	GmailClientID     string `env:"GMAIL_CLIENT_ID"`
	GmailClientSecret string `env:"GMAIL_CLIENT_SECRET"`
	GmailAPIBase      string `env:"GMAIL_API_BASE"`
	GmailTokenURL     string `env:"GMAIL_TOKEN_URL"`

	// MessageIDDomain is the right-hand side of generated Message-ID headers.
	MessageIDDomain string `env:"MESSAGE_ID_DOMAIN" envDefault:"bulkmailer.local"`

	// AssetsRoot is the directory holding uploaded images, attachments and tenant template files.
	AssetsRoot string `env:"ASSETS_ROOT" envDefault:"./data"`

	// DefaultLanguage is used when a recipient's language has no template.
	DefaultLanguage string `env:"DEFAULT_LANGUAGE" envDefault:"en"`

	// WebhookTimeout bounds a single progress webhook POST.
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`

	// WebhookSigningSecret signs webhook bodies with HMAC-SHA256 when set.
	WebhookSigningSecret string `env:"WEBHOOK_SIGNING_SECRET"`
}

// Sanitize applies guardrails to delivery configuration values.
func (d *DeliveryConfig) Sanitize() {
	d.Transport = strings.ToLower(strings.TrimSpace(d.Transport))
	if d.Transport != TransportLog {
		d.Transport = TransportGmail
	}
	if d.RatePerSecond < 0 {
		d.RatePerSecond = 0
	}
	if d.RateBurst < 1 {
		d.RateBurst = 1
	}
	d.AssetsRoot = strings.TrimSpace(d.AssetsRoot)
	d.DefaultLanguage = strings.ToLower(strings.TrimSpace(d.DefaultLanguage))
	if d.DefaultLanguage == "" {
		d.DefaultLanguage = "en"
	}
	if d.WebhookTimeout <= 0 {
		d.WebhookTimeout = 5 * time.Second
	}
	if d.WebhookTimeout > time.Minute {
		d.WebhookTimeout = time.Minute
	}
}
