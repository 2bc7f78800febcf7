package goRecovery

import (
	"testing"
	"time"
)

func TestSecurityReportReflectsPosture(t *testing.T) {
	cfg := recoveryTestConfig()
	cfg.Recovery.Timeout = 90 * time.Second
	cfg.Throttle.EnableIPThrottle = true
	cfg.JWT.Enabled = true
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	env := newRecoveryTestEngine(t, cfg)

	r := env.engine.SecurityReport()
	if r.AuthType != AuthUserPassword || !r.UsersOnly {
		t.Fatalf("unexpected flow posture: %+v", r)
	}
	if len(r.Channels) != 2 || r.Channels[0] != "email" {
		t.Fatalf("unexpected channels: %v", r.Channels)
	}
	if r.Cooldown != 90*time.Second || !r.ThrottleActive {
		t.Fatalf("unexpected limits: cooldown=%v throttle=%v", r.Cooldown, r.ThrottleActive)
	}
	if !r.AccessTokensEnabled || r.SigningAlgorithm != "hs256" {
		t.Fatalf("unexpected token posture: %+v", r)
	}
	if r.Argon2.Memory != 8*1024 || r.Argon2.Time != 1 {
		t.Fatalf("unexpected argon2 report: %+v", r.Argon2)
	}
}

func TestSecurityReportWithoutTokens(t *testing.T) {
	env := newRecoveryTestEngine(t, recoveryTestConfig())

	r := env.engine.SecurityReport()
	if r.AccessTokensEnabled || r.SigningAlgorithm != "" {
		t.Fatalf("tokens reported while disabled: %+v", r)
	}
	if r.ThrottleActive {
		t.Fatal("throttle reported active by default")
	}

	var nilEngine *Engine
	if got := nilEngine.SecurityReport(); got.AuthType != "" {
		t.Fatalf("nil engine should report zero value, got %+v", got)
	}
}
