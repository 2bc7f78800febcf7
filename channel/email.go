package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/MrEthical07/goRecovery/internal"
	"github.com/MrEthical07/goRecovery/internal/stores"
	"github.com/redis/go-redis/v9"
)

// EmailConfig tunes [EmailChannel].
type EmailConfig struct {
	TokenTTL    time.Duration
	RedisPrefix string
	Templates   Templates
}

// EmailChannel mails a recovery link whose secret is a random token. The
// token itself is the recovery hash; only its SHA-256 digest is stored.
type EmailChannel struct {
	tokens    *stores.EmailTokenStore
	mailer    Mailer
	templates *compiledTemplates
	ttl       time.Duration
	now       func() time.Time
}

// NewEmailChannel builds an email channel storing tokens in redisClient.
func NewEmailChannel(redisClient redis.UniversalClient, mailer Mailer, cfg EmailConfig) (*EmailChannel, error) {
	if redisClient == nil {
		return nil, errors.New("channel: email channel requires redis")
	}
	if mailer == nil {
		return nil, errors.New("channel: email channel requires a mailer")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	templates, err := compileTemplates(cfg.Templates)
	if err != nil {
		return nil, err
	}
	return &EmailChannel{
		tokens:    stores.NewEmailTokenStore(redisClient, cfg.RedisPrefix),
		mailer:    mailer,
		templates: templates,
		ttl:       cfg.TokenTTL,
		now:       time.Now,
	}, nil
}

func (c *EmailChannel) Type() Type { return TypeEmail }

// SendRecoveryMessage issues a token, stores its digest and mails the
// recovery link. The token is discarded again if the mail fails.
func (c *EmailChannel) SendRecoveryMessage(ctx context.Context, to Recipient, opts SendOptions) error {
	address := NormalizeEmail(to.Email)
	if address == "" {
		return ErrNoAddress
	}

	token, err := internal.NewToken()
	if err != nil {
		return err
	}
	tokenHash := internal.HashSecret(token)

	if err := c.tokens.Save(ctx, tokenHash, &stores.EmailTokenRecord{
		ContactID: to.ContactID,
		Address:   address,
		ExpiresAt: c.now().Add(c.ttl).Unix(),
	}, c.ttl); err != nil {
		return err
	}

	data := messageData(to, address, opts)
	data.RecoveryURL = strings.ReplaceAll(opts.RecoveryURL, SecretPlaceholder, url.QueryEscape(token))

	if err := c.deliver(ctx, address, c.templates.recoverySubject, c.templates.recoveryBody, data); err != nil {
		_ = c.tokens.Delete(ctx, tokenHash)
		return err
	}
	return nil
}

func (c *EmailChannel) SendPassword(ctx context.Context, to Recipient, password string, opts SendOptions) error {
	address := NormalizeEmail(to.Email)
	if address == "" {
		return ErrNoAddress
	}
	data := messageData(to, address, opts)
	data.Password = password
	return c.deliver(ctx, address, c.templates.passwordSubject, c.templates.passwordBody, data)
}

// ValidateSecret looks the token up without consuming it. Tries are not
// tracked for tokens.
func (c *EmailChannel) ValidateSecret(ctx context.Context, secret string, opts ValidateOptions) Result {
	if secret == "" {
		return failed(ErrorInvalid, ErrInvalidSecret)
	}

	record, err := c.tokens.Get(ctx, internal.HashSecret(secret))
	if err != nil {
		if errors.Is(err, stores.ErrEmailTokenNotFound) {
			return failed(ErrorInvalid, ErrInvalidSecret)
		}
		return failed(ErrorInvalid, err)
	}

	if opts.Recipient != "" && NormalizeEmail(opts.Recipient) != record.Address {
		return failed(ErrorInvalid, fmt.Errorf("%w: recipient mismatch", ErrInvalidSecret))
	}

	return Result{OK: true, Address: record.Address, ContactID: record.ContactID}
}

func (c *EmailChannel) InvalidateSecret(ctx context.Context, secret, _ string) error {
	if secret == "" {
		return nil
	}
	return c.tokens.Delete(ctx, internal.HashSecret(secret))
}

func (c *EmailChannel) deliver(ctx context.Context, address string, subjectTpl, bodyTpl *template.Template, data MessageData) error {
	subject, err := render(subjectTpl, data)
	if err != nil {
		return err
	}
	body, err := render(bodyTpl, data)
	if err != nil {
		return err
	}
	if err := c.mailer.Send(ctx, Message{To: address, Subject: strings.TrimSpace(subject), Body: body}); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

func messageData(to Recipient, address string, opts SendOptions) MessageData {
	return MessageData{
		Name:     to.Name,
		Address:  address,
		SiteName: opts.SiteName,
		SiteURL:  opts.SiteURL,
		LoginURL: opts.LoginURL,
	}
}
