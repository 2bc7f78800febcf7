package goRecovery

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "GORECOVERY_"

// LoadConfig builds a Config from defaults, then the YAML file at path (if
// path is non-empty), then GORECOVERY_* environment variables. Environment
// values take priority. Key files named in the JWT section are read after
// all overrides are applied.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Messages = cfg.Messages.withDefaults()

	if cfg.JWT.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read jwt private key: %w", err)
		}
		cfg.JWT.PrivateKey = key
	}
	if cfg.JWT.PublicKeyFile != "" {
		key, err := os.ReadFile(cfg.JWT.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read jwt public key: %w", err)
		}
		cfg.JWT.PublicKey = key
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var firstErr error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			return
		}
		*dst = n
	}
	boolean := func(name string, dst *bool) {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			return
		}
		*dst = b
	}
	duration := func(name string, dst *time.Duration) {
		v, ok := os.LookupEnv(envPrefix + name)
		if !ok {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			return
		}
		*dst = d
	}

	str("ENV", &cfg.Env)

	authType := string(cfg.Recovery.AuthType)
	str("AUTH_TYPE", &authType)
	cfg.Recovery.AuthType = AuthType(authType)
	boolean("NEED_CAPTCHA", &cfg.Recovery.NeedCaptcha)
	boolean("REQUIRE_IS_USER", &cfg.Recovery.RequireIsUser)
	integer("VERIFY_CODE_TRIES_COUNT", &cfg.Recovery.VerifyCodeTriesCount)
	duration("TIMEOUT", &cfg.Recovery.Timeout)
	boolean("REDIRECTS", &cfg.Recovery.Redirects)
	if v, ok := os.LookupEnv(envPrefix + "CHANNELS"); ok {
		cfg.Recovery.Channels = splitList(v)
	}

	str("SITE_URL", &cfg.Site.URL)
	str("SITE_NAME", &cfg.Site.Name)
	str("LOGIN_URL", &cfg.Site.LoginURL)
	str("SET_PASSWORD_URL", &cfg.Site.SetPasswordURL)
	str("HOME_URL", &cfg.Site.HomeURL)

	duration("EMAIL_TOKEN_TTL", &cfg.Email.TokenTTL)
	str("SMTP_HOST", &cfg.Email.SMTP.Host)
	integer("SMTP_PORT", &cfg.Email.SMTP.Port)
	str("SMTP_USERNAME", &cfg.Email.SMTP.Username)
	str("SMTP_PASSWORD", &cfg.Email.SMTP.Password)
	str("SMTP_FROM_EMAIL", &cfg.Email.SMTP.FromEmail)
	str("SMTP_FROM_NAME", &cfg.Email.SMTP.FromName)

	duration("SMS_CODE_TTL", &cfg.SMS.CodeTTL)
	integer("SMS_CODE_DIGITS", &cfg.SMS.CodeDigits)
	integer("SMS_MAX_ATTEMPTS", &cfg.SMS.MaxAttempts)
	str("SMS_GATEWAY_ENDPOINT", &cfg.SMS.Gateway.Endpoint)
	str("SMS_GATEWAY_API_KEY", &cfg.SMS.Gateway.APIKey)
	str("SMS_GATEWAY_SENDER", &cfg.SMS.Gateway.Sender)

	duration("SESSION_TTL", &cfg.Session.TTL)
	str("SESSION_REDIS_PREFIX", &cfg.Session.RedisPrefix)

	integer("PASSWORD_MIN_LENGTH", &cfg.Password.MinLength)

	boolean("JWT_ENABLED", &cfg.JWT.Enabled)
	str("JWT_SIGNING_METHOD", &cfg.JWT.SigningMethod)
	str("JWT_PRIVATE_KEY_FILE", &cfg.JWT.PrivateKeyFile)
	str("JWT_PUBLIC_KEY_FILE", &cfg.JWT.PublicKeyFile)

	boolean("THROTTLE_IDENTIFIER", &cfg.Throttle.EnableIdentifierThrottle)
	boolean("THROTTLE_IP", &cfg.Throttle.EnableIPThrottle)
	duration("THROTTLE_WINDOW", &cfg.Throttle.Window)
	integer("THROTTLE_MAX_REQUESTS", &cfg.Throttle.MaxRequests)

	boolean("AUDIT_ENABLED", &cfg.Audit.Enabled)
	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)

	return firstErr
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
