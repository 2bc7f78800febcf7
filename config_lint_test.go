package goRecovery

import (
	"testing"
	"time"
)

func TestLintDefaultConfigHasNoHighWarnings(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Lint().AsError(LintHigh); err != nil {
		t.Fatalf("default config should not fail AsError(LintHigh): %v", err)
	}
	if !containsCode(cfg.Lint().Codes(), "throttle_disabled") {
		t.Error("expected throttle_disabled info with the default config")
	}
}

func TestLintWarnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
		sev    LintSeverity
	}{
		{"no limits", func(c *Config) { c.Recovery.Timeout = 0 }, "rate_limits_disabled", LintHigh},
		{"unlimited tries", func(c *Config) { c.Recovery.VerifyCodeTriesCount = 0 }, "code_tries_unlimited", LintHigh},
		{"short code", func(c *Config) { c.SMS.CodeDigits = 4 }, "sms_code_short", LintWarn},
		{"long code ttl", func(c *Config) { c.SMS.CodeTTL = time.Hour }, "sms_code_ttl_long", LintWarn},
		{"long token ttl", func(c *Config) { c.Email.TokenTTL = 96 * time.Hour; c.Session.TTL = 96 * time.Hour }, "email_token_ttl_long", LintWarn},
		{"session shorter than token", func(c *Config) { c.Session.TTL = time.Hour }, "session_shorter_than_token", LintWarn},
		{"hs256", func(c *Config) { c.JWT.Enabled = true; c.JWT.SigningMethod = "hs256" }, "signing_hs256", LintWarn},
		{"argon2 memory", func(c *Config) { c.Password.Memory = 16 * 1024 }, "argon2_memory_low", LintWarn},
		{"audit off", func(c *Config) { c.Audit.Enabled = false }, "audit_disabled", LintInfo},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			found := false
			for _, w := range cfg.Lint() {
				if w.Code == tc.code {
					found = true
					if w.Severity != tc.sev {
						t.Fatalf("%s: expected %s, got %s", tc.code, tc.sev, w.Severity)
					}
				}
			}
			if !found {
				t.Fatalf("expected %s warning", tc.code)
			}
		})
	}
}

func TestLintScopedToEnabledChannels(t *testing.T) {
	cfg := defaultConfig()
	cfg.Recovery.Channels = []string{"email"}
	cfg.Recovery.VerifyCodeTriesCount = 0
	cfg.SMS.CodeDigits = 4

	codes := cfg.Lint().Codes()
	if containsCode(codes, "code_tries_unlimited") || containsCode(codes, "sms_code_short") {
		t.Fatalf("SMS warnings reported without the SMS channel: %v", codes)
	}
}

func TestLintNoWarningForGoodArgon2(t *testing.T) {
	cfg := defaultConfig()
	cfg.Password.Memory = 64 * 1024
	if containsCode(cfg.Lint().Codes(), "argon2_memory_low") {
		t.Error("should not warn when memory == 64 MB")
	}
}

func TestLintBySeverity(t *testing.T) {
	cfg := defaultConfig()
	cfg.Recovery.Timeout = 0
	ws := cfg.Lint()

	high := ws.BySeverity(LintHigh)
	if len(high) == 0 {
		t.Fatal("expected at least one HIGH severity warning")
	}
	for _, w := range high {
		if w.Severity < LintHigh {
			t.Errorf("BySeverity(LintHigh) returned warning with severity %s", w.Severity)
		}
	}
	if err := ws.AsError(LintHigh); err == nil {
		t.Fatal("expected AsError(LintHigh) to fail")
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
