package goRecovery

import "time"

// SecurityReport summarizes the recovery posture of a built engine.
type SecurityReport struct {
	Env                 string
	AuthType            AuthType
	Channels            []string
	CaptchaRequired     bool
	UsersOnly           bool
	Cooldown            time.Duration
	ThrottleActive      bool
	CodeTriesCount      int
	EmailTokenTTL       time.Duration
	SMSCodeTTL          time.Duration
	AccessTokensEnabled bool
	SigningAlgorithm    string
	AuditEnabled        bool
	Argon2              PasswordConfigReport
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		Env:             e.config.Env,
		AuthType:        e.config.Recovery.AuthType,
		Channels:        e.Channels(),
		CaptchaRequired: e.config.Recovery.NeedCaptcha,
		UsersOnly:       e.config.Recovery.RequireIsUser,
		Cooldown:        e.config.Recovery.Timeout,
		ThrottleActive: e.throttle != nil &&
			(e.config.Throttle.EnableIdentifierThrottle || e.config.Throttle.EnableIPThrottle),
		CodeTriesCount:      e.config.Recovery.VerifyCodeTriesCount,
		EmailTokenTTL:       e.config.Email.TokenTTL,
		SMSCodeTTL:          e.config.SMS.CodeTTL,
		AccessTokensEnabled: e.tokens != nil,
		AuditEnabled:        e.config.Audit.Enabled,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
	}
	if r.AccessTokensEnabled {
		r.SigningAlgorithm = e.config.JWT.SigningMethod
	}
	return r
}
