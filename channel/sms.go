package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/MrEthical07/goRecovery/internal"
	"github.com/MrEthical07/goRecovery/internal/stores"
	"github.com/redis/go-redis/v9"
)

// SMSConfig tunes [SMSChannel].
type SMSConfig struct {
	CodeTTL     time.Duration
	CodeDigits  int
	MaxAttempts int
	RedisPrefix string
	Templates   Templates
}

// SMSChannel texts a numeric confirmation code. Pending codes are keyed by
// phone number, so a new send replaces the previous code and its attempts.
type SMSChannel struct {
	codes       *stores.SMSCodeStore
	sender      SMSSender
	templates   *compiledTemplates
	ttl         time.Duration
	digits      int
	maxAttempts int
	now         func() time.Time
}

// NewSMSChannel builds an SMS channel storing codes in redisClient.
func NewSMSChannel(redisClient redis.UniversalClient, sender SMSSender, cfg SMSConfig) (*SMSChannel, error) {
	if redisClient == nil {
		return nil, errors.New("channel: sms channel requires redis")
	}
	if sender == nil {
		return nil, errors.New("channel: sms channel requires a sender")
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.CodeDigits == 0 {
		cfg.CodeDigits = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	templates, err := compileTemplates(cfg.Templates)
	if err != nil {
		return nil, err
	}
	return &SMSChannel{
		codes:       stores.NewSMSCodeStore(redisClient, cfg.RedisPrefix),
		sender:      sender,
		templates:   templates,
		ttl:         cfg.CodeTTL,
		digits:      cfg.CodeDigits,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}, nil
}

func (c *SMSChannel) Type() Type { return TypeSMS }

func codeHash(phone, code string) [32]byte {
	return internal.HashSecret(phone + ":" + code)
}

// SendRecoveryMessage issues a fresh code for the recipient's phone.
func (c *SMSChannel) SendRecoveryMessage(ctx context.Context, to Recipient, opts SendOptions) error {
	phone := NormalizePhone(to.Phone)
	if phone == "" {
		return ErrNoAddress
	}

	code, err := internal.NewNumericCode(c.digits)
	if err != nil {
		return err
	}

	if err := c.codes.Save(ctx, &stores.SMSCodeRecord{
		ContactID: to.ContactID,
		Phone:     phone,
		CodeHash:  codeHash(phone, code),
		ExpiresAt: c.now().Add(c.ttl).Unix(),
	}, c.ttl); err != nil {
		return err
	}

	data := messageData(to, phone, opts)
	data.Code = code
	if err := c.deliver(ctx, phone, c.templates.smsRecovery, data); err != nil {
		_ = c.codes.Delete(ctx, phone)
		return err
	}
	return nil
}

func (c *SMSChannel) SendPassword(ctx context.Context, to Recipient, password string, opts SendOptions) error {
	phone := NormalizePhone(to.Phone)
	if phone == "" {
		return ErrNoAddress
	}
	data := messageData(to, phone, opts)
	data.Password = password
	return c.deliver(ctx, phone, c.templates.smsPassword, data)
}

// ValidateSecret checks a code against the pending code for
// opts.Recipient. A match does not consume the code.
func (c *SMSChannel) ValidateSecret(ctx context.Context, secret string, opts ValidateOptions) Result {
	phone := NormalizePhone(opts.Recipient)
	code := strings.TrimSpace(secret)
	if phone == "" || code == "" {
		return failed(ErrorInvalid, ErrInvalidSecret)
	}

	budget, clean := c.maxAttempts, true
	if opts.Tries != nil {
		budget, clean = opts.Tries.Count, opts.Tries.Clean
	}

	record, err := c.codes.Check(ctx, phone, codeHash(phone, code), budget, clean)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrSMSCodeOutOfTries):
			return failed(ErrorOutOfTries, ErrOutOfTries)
		case errors.Is(err, stores.ErrSMSCodeNotFound), errors.Is(err, stores.ErrSMSCodeMismatch):
			return failed(ErrorInvalid, ErrInvalidSecret)
		default:
			return failed(ErrorInvalid, err)
		}
	}

	return Result{OK: true, Address: record.Phone, ContactID: record.ContactID}
}

// InvalidateSecret drops the pending code for recipient. Without a
// recipient there is nothing to address and the call is a no-op.
func (c *SMSChannel) InvalidateSecret(ctx context.Context, _ string, recipient string) error {
	phone := NormalizePhone(recipient)
	if phone == "" {
		return nil
	}
	return c.codes.Delete(ctx, phone)
}

func (c *SMSChannel) deliver(ctx context.Context, phone string, tpl *template.Template, data MessageData) error {
	text, err := render(tpl, data)
	if err != nil {
		return err
	}
	if err := c.sender.SendSMS(ctx, phone, strings.TrimSpace(text)); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}
