package goRecovery

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/MrEthical07/goRecovery/channel"
)

// AuthType selects how the recovered contact gets a new password.
type AuthType string

const (
	// AuthUserPassword lets the contact choose a new password after confirming.
	AuthUserPassword AuthType = "user_password"
	// AuthGeneratePassword sends a generated password after confirming.
	AuthGeneratePassword AuthType = "generate_password"
	// AuthOneTimePassword has no password to recover; the flow answers 404.
	AuthOneTimePassword AuthType = "onetime_password"
)

// Config is the root engine configuration. Obtain a populated value with
// DefaultConfig or LoadConfig and adjust it before passing it to
// Builder.WithConfig.
type Config struct {
	Env      string         `yaml:"env"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Site     SiteConfig     `yaml:"site"`
	Email    EmailConfig    `yaml:"email"`
	SMS      SMSConfig      `yaml:"sms"`
	Session  SessionConfig  `yaml:"session"`
	Password PasswordConfig `yaml:"password"`
	JWT      JWTConfig      `yaml:"jwt"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Messages MessagesConfig `yaml:"messages"`
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RecoveryConfig controls the recovery flow itself.
//
// Channels lists the enabled channel types in default priority order. A
// login that looks like an email address or phone number moves the
// matching channel to the front.
type RecoveryConfig struct {
	AuthType             AuthType      `yaml:"auth_type"`
	NeedCaptcha          bool          `yaml:"need_captcha"`
	RequireIsUser        bool          `yaml:"require_is_user"`
	VerifyCodeTriesCount int           `yaml:"verify_code_tries_count"`
	Timeout              time.Duration `yaml:"timeout"`
	Channels             []string      `yaml:"channels"`
	Redirects            bool          `yaml:"redirects"`
}

/*
====================================
SITE CONFIG
====================================
*/

// SiteConfig carries the URLs and names rendered into messages and used as
// redirect targets.
type SiteConfig struct {
	URL            string `yaml:"url"`
	Name           string `yaml:"name"`
	LoginURL       string `yaml:"login_url"`
	SetPasswordURL string `yaml:"set_password_url"`
	HomeURL        string `yaml:"home_url"`
}

/*
====================================
CHANNEL CONFIG
====================================
*/

// EmailConfig configures the email channel and its SMTP transport. SMTP is
// only used when no Mailer is passed to the builder.
type EmailConfig struct {
	TokenTTL    time.Duration `yaml:"token_ttl"`
	RedisPrefix string        `yaml:"redis_prefix"`
	SMTP        SMTPConfig    `yaml:"smtp"`
}

type SMTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// SMSConfig configures the SMS channel and its HTTP gateway transport. The
// gateway is only used when no SMSSender is passed to the builder.
type SMSConfig struct {
	CodeTTL     time.Duration    `yaml:"code_ttl"`
	CodeDigits  int              `yaml:"code_digits"`
	MaxAttempts int              `yaml:"max_attempts"`
	RedisPrefix string           `yaml:"redis_prefix"`
	Gateway     SMSGatewayConfig `yaml:"gateway"`
}

type SMSGatewayConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Sender   string        `yaml:"sender"`
	Timeout  time.Duration `yaml:"timeout"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis hash holding per-session recovery state.
type SessionConfig struct {
	RedisPrefix       string        `yaml:"redis_prefix"`
	TTL               time.Duration `yaml:"ttl"`
	SlidingExpiration bool          `yaml:"sliding_expiration"`
	JitterEnabled     bool          `yaml:"jitter_enabled"`
	JitterRange       time.Duration `yaml:"jitter_range"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id parameters used to hash new passwords,
// the minimum length for user-chosen passwords and the length of
// generated ones.
type PasswordConfig struct {
	Memory          uint32 `yaml:"memory"` // in KB
	Time            uint32 `yaml:"time"`
	Parallelism     uint8  `yaml:"parallelism"`
	SaltLength      uint32 `yaml:"salt_length"`
	KeyLength       uint32 `yaml:"key_length"`
	MinLength       int    `yaml:"min_length"`
	GeneratedLength int    `yaml:"generated_length"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls the access token issued when a session is
// authenticated after the password was set. Disabled means the session is
// marked authenticated without a token.
type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	AccessTTL      time.Duration `yaml:"access_ttl"`
	SigningMethod  string        `yaml:"signing_method"` // "ed25519" (default), "hs256" optional
	Issuer         string        `yaml:"issuer"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	PrivateKey     []byte        `yaml:"-"`
	PublicKey      []byte        `yaml:"-"`
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig is a fixed-window limit on recovery sends per login and
// per client IP, on top of the per-session cooldown.
type ThrottleConfig struct {
	EnableIdentifierThrottle bool          `yaml:"enable_identifier_throttle"`
	EnableIPThrottle         bool          `yaml:"enable_ip_throttle"`
	Window                   time.Duration `yaml:"window"`
	MaxRequests              int           `yaml:"max_requests"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Env: "production",
		Recovery: RecoveryConfig{
			AuthType:             AuthUserPassword,
			NeedCaptcha:          false,
			RequireIsUser:        true,
			VerifyCodeTriesCount: 3,
			Timeout:              60 * time.Second,
			Channels:             []string{string(channel.TypeEmail), string(channel.TypeSMS)},
			Redirects:            false,
		},
		Site: SiteConfig{
			URL:            "http://localhost:8080/",
			Name:           "goRecovery",
			LoginURL:       "/login/",
			SetPasswordURL: "/forgotpassword/set/",
			HomeURL:        "/",
		},
		Email: EmailConfig{
			TokenTTL:    24 * time.Hour,
			RedisPrefix: "grt",
			SMTP: SMTPConfig{
				Port: 587,
			},
		},
		SMS: SMSConfig{
			CodeTTL:     10 * time.Minute,
			CodeDigits:  6,
			MaxAttempts: 3,
			RedisPrefix: "grs",
			Gateway: SMSGatewayConfig{
				Timeout: 10 * time.Second,
			},
		},
		Session: SessionConfig{
			RedisPrefix:       "grss",
			TTL:               24 * time.Hour,
			SlidingExpiration: true,
			JitterEnabled:     true,
			JitterRange:       30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:          65536,
			Time:            3,
			Parallelism:     2,
			SaltLength:      16,
			KeyLength:       32,
			MinLength:       0,
			GeneratedLength: 11,
		},
		JWT: JWTConfig{
			Enabled:       false,
			AccessTTL:     5 * time.Minute,
			SigningMethod: "ed25519",
		},
		Throttle: ThrottleConfig{
			EnableIdentifierThrottle: false,
			EnableIPThrottle:         false,
			Window:                   time.Hour,
			MaxRequests:              10,
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
		Messages: defaultMessages(),
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Recovery.Channels = append([]string(nil), cfg.Recovery.Channels...)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
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

// Validate reports the first configuration problem found, or nil.
func (c *Config) Validate() error {
	// Recovery
	switch c.Recovery.AuthType {
	case AuthUserPassword, AuthGeneratePassword, AuthOneTimePassword:
		// valid
	default:
		return errors.New("Recovery AuthType is invalid")
	}
	if c.Recovery.Timeout < 0 {
		return errors.New("Recovery Timeout must be >= 0")
	}
	if c.Recovery.VerifyCodeTriesCount < 0 {
		return errors.New("Recovery VerifyCodeTriesCount must be >= 0")
	}
	if len(c.Recovery.Channels) == 0 {
		return errors.New("Recovery Channels must not be empty")
	}
	seen := make(map[channel.Type]bool, len(c.Recovery.Channels))
	for _, name := range c.Recovery.Channels {
		t, ok := channel.ParseType(name)
		if !ok {
			return errors.New("Recovery Channels contains unknown channel type " + name)
		}
		if seen[t] {
			return errors.New("Recovery Channels contains duplicate channel type " + name)
		}
		seen[t] = true
	}

	// Site
	if seen[channel.TypeEmail] && strings.TrimSpace(c.Site.SetPasswordURL) == "" {
		return errors.New("Site SetPasswordURL is required for the email channel")
	}

	// Channels
	if seen[channel.TypeEmail] && c.Email.TokenTTL <= 0 {
		return errors.New("Email TokenTTL must be > 0")
	}
	if seen[channel.TypeSMS] {
		if c.SMS.CodeTTL <= 0 {
			return errors.New("SMS CodeTTL must be > 0")
		}
		if c.SMS.CodeDigits < 4 || c.SMS.CodeDigits > 10 {
			return errors.New("SMS CodeDigits must be between 4 and 10")
		}
		if c.SMS.MaxAttempts < 0 {
			return errors.New("SMS MaxAttempts must be >= 0")
		}
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 0 {
		return errors.New("Password MinLength must be >= 0")
	}
	if c.Password.GeneratedLength < 8 {
		return errors.New("Password GeneratedLength must be >= 8")
	}

	// JWT
	if c.JWT.Enabled {
		if c.JWT.AccessTTL <= 0 {
			return errors.New("JWT AccessTTL must be > 0")
		}
		if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
			return errors.New("unsupported JWT signing method")
		}
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New(c.JWT.SigningMethod + " requires PrivateKey")
		}
		if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	}

	// Throttle
	if c.Throttle.EnableIdentifierThrottle || c.Throttle.EnableIPThrottle {
		if c.Throttle.Window <= 0 {
			return errors.New("Throttle Window must be > 0")
		}
		if c.Throttle.MaxRequests <= 0 {
			return errors.New("Throttle MaxRequests must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
