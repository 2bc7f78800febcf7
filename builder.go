package goRecovery

import (
	"errors"

	"github.com/MrEthical07/goRecovery/channel"
	"github.com/MrEthical07/goRecovery/internal/limiters"
	"github.com/MrEthical07/goRecovery/password"
	"github.com/MrEthical07/goRecovery/session"
	"github.com/MrEthical07/goRecovery/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder is single-use: Build fails on the
// second call.
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	contacts     ContactProvider
	mailer       channel.Mailer
	smsSender    channel.SMSSender
	channels     []channel.Channel
	sessionStore session.Store
	captcha      CaptchaVerifier
	auditSink    AuditSink
	logger       Logger
	built        bool
}

// New returns a Builder holding the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for secret stores, the session store and
// the throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithContactProvider(cp ContactProvider) *Builder {
	b.contacts = cp
	return b
}

// WithMailer replaces the SMTP transport configured in Email.SMTP.
func (b *Builder) WithMailer(m channel.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithSMSSender replaces the HTTP gateway configured in SMS.Gateway.
func (b *Builder) WithSMSSender(s channel.SMSSender) *Builder {
	b.smsSender = s
	return b
}

// WithChannel registers a ready-made channel. It takes the place of the
// built-in channel of the same type.
func (b *Builder) WithChannel(ch channel.Channel) *Builder {
	if ch != nil {
		b.channels = append(b.channels, ch)
	}
	return b
}

// WithSessionStore replaces the Redis session store, e.g. with the host
// application's own session backend.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

func (b *Builder) WithCaptcha(cv CaptchaVerifier) *Builder {
	b.captcha = cv
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.Messages = cfg.Messages.withDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.contacts == nil {
		return nil, errors.New("contact provider required")
	}
	if b.redis == nil && b.sessionStore == nil {
		return nil, errors.New("redis client or session store required")
	}
	if cfg.Recovery.NeedCaptcha && b.captcha == nil {
		return nil, errors.New("captcha verifier required when NeedCaptcha is set")
	}

	// -------- CHANNELS --------
	channels, err := b.buildChannels(cfg)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 && cfg.Recovery.AuthType != AuthOneTimePassword {
		return nil, ErrChannelMissing
	}

	// -------- SESSION STATE --------
	store := b.sessionStore
	if store == nil {
		store = session.NewRedisStore(
			b.redis,
			cfg.Session.RedisPrefix,
			cfg.Session.TTL,
			cfg.Session.SlidingExpiration,
			cfg.Session.JitterEnabled,
			cfg.Session.JitterRange,
		)
	}
	state := session.NewState(store)

	engine := &Engine{
		config:   cloneConfig(cfg),
		channels: channels,
		state:    state,
		contacts: b.contacts,
		captcha:  b.captcha,
		logger:   b.logger,
	}
	if engine.logger == nil {
		engine.logger = defaultLogger()
	}

	engine.cooldown = limiters.NewCooldown(state, cfg.Recovery.Timeout)
	if b.redis != nil {
		engine.throttle = limiters.NewRecoveryLimiter(b.redis, limiters.RecoveryConfig{
			EnableIdentifierThrottle: cfg.Throttle.EnableIdentifierThrottle,
			EnableIPThrottle:         cfg.Throttle.EnableIPThrottle,
			Window:                   cfg.Throttle.Window,
			MaxRequests:              cfg.Throttle.MaxRequests,
		})
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, engine.logger)
	engine.metrics = NewMetrics(cfg.Metrics, engine.Channels()...)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	if cfg.JWT.Enabled {
		tm, err := token.NewManager(token.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: token.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
			PublicKey:     cloneBytes(cfg.JWT.PublicKey),
			Issuer:        cfg.JWT.Issuer,
		})
		if err != nil {
			return nil, err
		}
		engine.tokens = tm
	}

	b.built = true

	return engine, nil
}

// buildChannels returns the channels named in Recovery.Channels, in that
// order. Registered channels win over built-in ones; a built-in channel
// whose transport is not configured is skipped.
func (b *Builder) buildChannels(cfg Config) ([]channel.Channel, error) {
	custom := make(map[channel.Type]channel.Channel, len(b.channels))
	for _, ch := range b.channels {
		custom[ch.Type()] = ch
	}

	var out []channel.Channel
	for _, name := range cfg.Recovery.Channels {
		t, _ := channel.ParseType(name)
		if ch, ok := custom[t]; ok {
			out = append(out, ch)
			continue
		}
		if b.redis == nil {
			continue
		}

		switch t {
		case channel.TypeEmail:
			mailer := b.mailer
			if mailer == nil && cfg.Email.SMTP.Host != "" {
				mailer = channel.NewSMTPMailer(channel.SMTPConfig{
					Host:      cfg.Email.SMTP.Host,
					Port:      cfg.Email.SMTP.Port,
					Username:  cfg.Email.SMTP.Username,
					Password:  cfg.Email.SMTP.Password,
					FromEmail: cfg.Email.SMTP.FromEmail,
					FromName:  cfg.Email.SMTP.FromName,
				})
			}
			if mailer == nil {
				continue
			}
			ch, err := channel.NewEmailChannel(b.redis, mailer, channel.EmailConfig{
				TokenTTL:    cfg.Email.TokenTTL,
				RedisPrefix: cfg.Email.RedisPrefix,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, ch)
		case channel.TypeSMS:
			sender := b.smsSender
			if sender == nil && cfg.SMS.Gateway.Endpoint != "" {
				sender = channel.NewHTTPSMSSender(channel.HTTPSMSConfig{
					Endpoint: cfg.SMS.Gateway.Endpoint,
					APIKey:   cfg.SMS.Gateway.APIKey,
					Sender:   cfg.SMS.Gateway.Sender,
					Timeout:  cfg.SMS.Gateway.Timeout,
				}, nil)
			}
			if sender == nil {
				continue
			}
			ch, err := channel.NewSMSChannel(b.redis, sender, channel.SMSConfig{
				CodeTTL:     cfg.SMS.CodeTTL,
				CodeDigits:  cfg.SMS.CodeDigits,
				MaxAttempts: cfg.SMS.MaxAttempts,
				RedisPrefix: cfg.SMS.RedisPrefix,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, ch)
		}
	}
	return out, nil
}
