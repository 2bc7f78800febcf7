package goRecovery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goRecovery/channel"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// LintWarning is a configuration that passes Validate but weakens the
// recovery flow.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintResult []LintWarning

func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins every warning at or above min into one error, or returns
// nil if there is none.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return errors.New("config lint: " + strings.Join(parts, "; "))
}

// Lint reports risky but valid settings. It does not call Validate.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	sms, email := false, false
	for _, name := range c.Recovery.Channels {
		switch t, _ := channel.ParseType(name); t {
		case channel.TypeSMS:
			sms = true
		case channel.TypeEmail:
			email = true
		}
	}
	throttled := c.Throttle.EnableIdentifierThrottle || c.Throttle.EnableIPThrottle

	if c.Recovery.Timeout == 0 && !throttled {
		add("rate_limits_disabled", LintHigh, "no cooldown and no throttle: recovery messages can be sent without limit")
	} else if !throttled {
		add("throttle_disabled", LintInfo, "only the per-session cooldown limits sends; a new session bypasses it")
	}

	if sms && c.Recovery.VerifyCodeTriesCount == 0 {
		add("code_tries_unlimited", LintHigh, "SMS codes can be guessed without an attempt cap")
	}
	if sms && c.SMS.CodeDigits < 6 {
		add("sms_code_short", LintWarn, fmt.Sprintf("%d-digit SMS codes are easy to guess", c.SMS.CodeDigits))
	}
	if sms && c.SMS.CodeTTL > 30*time.Minute {
		add("sms_code_ttl_long", LintWarn, "SMS codes stay valid for more than 30 minutes")
	}
	if email && c.Email.TokenTTL > 72*time.Hour {
		add("email_token_ttl_long", LintWarn, "recovery links stay valid for more than 72 hours")
	}
	if email && c.Session.TTL < c.Email.TokenTTL {
		add("session_shorter_than_token", LintWarn, "recovery links outlive the session holding their send details")
	}

	if !c.Recovery.NeedCaptcha {
		add("captcha_disabled", LintInfo, "the forgot form is not protected by a captcha")
	}
	if !c.Recovery.RequireIsUser {
		add("non_users_recoverable", LintInfo, "contacts that are not users can request recovery")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "recovery decisions are not audited")
	}

	if c.JWT.Enabled && strings.EqualFold(c.JWT.SigningMethod, "hs256") {
		add("signing_hs256", LintWarn, "HS256 shares the signing key with every verifier")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, fmt.Sprintf("argon2 memory %d KB is below 64 MB", c.Password.Memory))
	}
	if c.Recovery.AuthType == AuthUserPassword && c.Password.MinLength == 0 {
		add("password_min_length_unset", LintInfo, "any non-empty password is accepted")
	}

	return ws
}
