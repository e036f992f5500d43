package goVerify

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines a public type used by goVerify APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise. Start from
// [DefaultConfig] and override fields; [Builder.WithConfig] clones the value.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Expiry    ExpiryConfig    `yaml:"expiry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Receipt   ReceiptConfig   `yaml:"receipt"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds a single verification session.
type SessionConfig struct {
	CodeDigits  int           `yaml:"code_digits"`
	TTL         time.Duration `yaml:"ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	// SuccessGrace keeps a verified session readable through Status before
	// it is removed.
	SuccessGrace time.Duration `yaml:"success_grace"`
}

/*
====================================
DELIVERY CONFIG
====================================
*/

// DeliveryConfig controls gateway retries and message rendering.
type DeliveryConfig struct {
	MaxRetries     int             `yaml:"max_retries"`
	Backoff        []time.Duration `yaml:"backoff"`
	AttemptTimeout time.Duration   `yaml:"attempt_timeout"`
	// MessageTemplate is a text/template with .Code, .ExpiresInMinutes and .Method.
	MessageTemplate string `yaml:"message_template"`
	DefaultMethod   Method `yaml:"default_method"`
	// DiscardOnResendFailure removes the session when a resend cannot be
	// delivered. By default the session stays pending with the new code.
	DiscardOnResendFailure bool `yaml:"discard_on_resend_failure"`
}

/*
====================================
EXPIRY CONFIG
====================================
*/

// ExpiryConfig controls the periodic sweep.
type ExpiryConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// DisableSweeper skips the background job; Engine.Sweep can still be
	// called directly.
	DisableSweeper bool `yaml:"disable_sweeper"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig sets Redis fixed-window budgets. Requires WithRedis when
// enabled. A zero budget disables that dimension.
type RateLimitConfig struct {
	Enabled          bool          `yaml:"enabled"`
	RedisPrefix      string        `yaml:"redis_prefix"`
	InitiatePerPhone int           `yaml:"initiate_per_phone"`
	InitiatePerIP    int           `yaml:"initiate_per_ip"`
	ResendPerSession int           `yaml:"resend_per_session"`
	Window           time.Duration `yaml:"window"`
}

/*
====================================
RECEIPT CONFIG
====================================
*/

// ReceiptConfig controls signed verification receipts. Keys are never read
// from YAML; set them in code.
type ReceiptConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SigningMethod string        `yaml:"signing_method"` // "ed25519" (default), "hs256" optional
	PrivateKey    []byte        `yaml:"-"`
	PublicKey     []byte        `yaml:"-"`
	TTL           time.Duration `yaml:"ttl"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	KeyID         string        `yaml:"key_id"`
	Leeway        time.Duration `yaml:"leeway"`
}

/*
====================================
AUDIT AND METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

const defaultMessageTemplate = "Your verification code is: {{.Code}}. This code will expire in {{.ExpiresInMinutes}} minutes."

// DefaultConfig returns production defaults: 6-digit codes valid for 10
// minutes, 3 attempts, 3 delivery retries at 30s/60s/120s, a 5 minute sweep.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			CodeDigits:   6,
			TTL:          10 * time.Minute,
			MaxAttempts:  3,
			SuccessGrace: 5 * time.Second,
		},
		Delivery: DeliveryConfig{
			MaxRetries:      3,
			Backoff:         []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second},
			AttemptTimeout:  30 * time.Second,
			MessageTemplate: defaultMessageTemplate,
			DefaultMethod:   MethodWhatsApp,
		},
		Expiry: ExpiryConfig{
			SweepInterval: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:          false,
			RedisPrefix:      "gv",
			InitiatePerPhone: 5,
			InitiatePerIP:    20,
			ResendPerSession: 3,
			Window:           time.Hour,
		},
		Receipt: ReceiptConfig{
			Enabled:       false,
			SigningMethod: "ed25519",
			TTL:           5 * time.Minute,
			Issuer:        "goverify",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// LoadConfigYAML decodes r over [DefaultConfig] and validates the result.
// Durations use Go syntax ("90s", "10m").
func LoadConfigYAML(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Delivery.Backoff = append([]time.Duration(nil), cfg.Delivery.Backoff...)
	out.Receipt.PrivateKey = cloneBytes(cfg.Receipt.PrivateKey)
	out.Receipt.PublicKey = cloneBytes(cfg.Receipt.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	// Session
	if c.Session.CodeDigits < 4 || c.Session.CodeDigits > 10 {
		return errors.New("Session CodeDigits must be between 4 and 10")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.MaxAttempts <= 0 {
		return errors.New("Session MaxAttempts must be > 0")
	}
	if c.Session.SuccessGrace < 0 {
		return errors.New("Session SuccessGrace must be >= 0")
	}

	// Delivery
	if c.Delivery.MaxRetries < 0 || c.Delivery.MaxRetries > 10 {
		return errors.New("Delivery MaxRetries must be between 0 and 10")
	}
	if c.Delivery.MaxRetries > 0 && len(c.Delivery.Backoff) == 0 {
		return errors.New("Delivery Backoff must be set when MaxRetries > 0")
	}
	for _, d := range c.Delivery.Backoff {
		if d < 0 {
			return errors.New("Delivery Backoff entries must be >= 0")
		}
	}
	if c.Delivery.AttemptTimeout <= 0 {
		return errors.New("Delivery AttemptTimeout must be > 0")
	}
	if !c.Delivery.DefaultMethod.Valid() {
		return errors.New("Delivery DefaultMethod must be whatsapp or sms")
	}
	if !strings.Contains(c.Delivery.MessageTemplate, ".Code") {
		return errors.New("Delivery MessageTemplate must reference .Code")
	}
	if _, err := template.New("message").Option("missingkey=error").Parse(c.Delivery.MessageTemplate); err != nil {
		return fmt.Errorf("Delivery MessageTemplate invalid: %w", err)
	}

	// Expiry
	if c.Expiry.SweepInterval <= 0 {
		return errors.New("Expiry SweepInterval must be > 0")
	}

	// Rate limits
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if c.RateLimit.InitiatePerPhone < 0 || c.RateLimit.InitiatePerIP < 0 || c.RateLimit.ResendPerSession < 0 {
			return errors.New("RateLimit budgets must be >= 0")
		}
	}

	// Receipts
	if c.Receipt.Enabled {
		if c.Receipt.TTL <= 0 {
			return errors.New("Receipt TTL must be > 0")
		}
		switch c.Receipt.SigningMethod {
		case "ed25519":
			if len(c.Receipt.PrivateKey) == 0 || len(c.Receipt.PublicKey) == 0 {
				return errors.New("ed25519 receipts require PrivateKey and PublicKey")
			}
		case "hs256":
			if len(c.Receipt.PrivateKey) == 0 {
				return errors.New("hs256 receipts require PrivateKey")
			}
		default:
			return errors.New("unsupported Receipt signing method")
		}
		if c.Receipt.Leeway < 0 || c.Receipt.Leeway > 2*time.Minute {
			return errors.New("Receipt Leeway must be between 0 and 2m")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a non-fatal configuration concern.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult lists warnings in a stable order.
type LintResult []LintWarning

// Codes returns the warning codes.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but likely unintended in production.
func (c Config) Lint() LintResult {
	var out LintResult
	add := func(code, msg string) {
		out = append(out, LintWarning{Code: code, Message: msg})
	}

	if c.Session.CodeDigits < 6 {
		add("code_digits_short", "codes shorter than 6 digits are easy to guess within the attempt budget")
	}
	if c.Session.TTL > 15*time.Minute {
		add("session_ttl_long", "sessions live longer than 15 minutes")
	}
	if c.Session.MaxAttempts > 5 {
		add("max_attempts_high", "more than 5 verify attempts per code")
	}
	if !c.RateLimit.Enabled {
		add("rate_limits_disabled", "initiate and resend are not rate limited")
	}
	if c.Expiry.DisableSweeper {
		add("sweeper_disabled", "abandoned sessions rely on per-session timers only")
	} else if c.Expiry.SweepInterval > c.Session.TTL {
		add("sweep_interval_long", "sweep runs less often than a session lives")
	}
	if retryWindow(c.Delivery) >= c.Session.TTL {
		add("retry_window_exceeds_ttl", "delivery retries outlast the session they deliver for")
	}
	if c.Receipt.Enabled && c.Receipt.TTL > 15*time.Minute {
		add("receipt_ttl_long", "receipts stay valid longer than 15 minutes")
	}
	return out
}

// retryWindow is the total backoff a delivery can spend before giving up.
func retryWindow(d DeliveryConfig) time.Duration {
	if len(d.Backoff) == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < d.MaxRetries; i++ {
		idx := i
		if idx >= len(d.Backoff) {
			idx = len(d.Backoff) - 1
		}
		total += d.Backoff[idx]
	}
	return total
}
