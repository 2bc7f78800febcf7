package goRecovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/MrEthical07/goRecovery/internal"
	"github.com/MrEthical07/goRecovery/internal/flows"
	"github.com/MrEthical07/goRecovery/internal/limiters"
	"github.com/MrEthical07/goRecovery/password"
	"github.com/MrEthical07/goRecovery/session"
)

// Handle processes one request of the recovery flow: it shows the form,
// sends a recovery message, confirms a code or sets a new password,
// depending on the parameters. Field-level problems are reported in
// Outcome.Errors. A non-nil error is ErrNotFound (answer 404),
// ErrSessionUnavailable or ErrUnavailable.
//
//	Flow (forgot): captcha -> contact lookup -> ban check -> cooldown ->
//	               throttle -> channels by priority -> send details saved
//	Flow (set):    hash -> session send details -> channel check ->
//	               password update -> hash invalidated -> session auth
//	Performance: 2-6 session round-trips plus channel I/O.
func (e *Engine) Handle(ctx context.Context, req Request) (*Outcome, error) {
	if e == nil || e.state == nil || e.contacts == nil {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricHandleLatency, time.Since(start))
		}()
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		sessionID = sid
	}

	out, err := flows.RunRecovery(ctx, flows.RecoveryRequest{
		SessionID: sessionID,
		Post:      req.Post,
		Params:    req.Params,
		Redirects: req.Redirects || e.config.Recovery.Redirects,
	}, e.recoveryFlowDeps())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricNotFound)
		}
		return nil, err
	}

	outcome := toOutcome(out)
	outcome.SessionID = sessionID
	return outcome, nil
}

func (e *Engine) recoveryFlowDeps() flows.RecoveryDeps {
	cfg := e.config
	return flows.RecoveryDeps{
		AuthType:             string(cfg.Recovery.AuthType),
		NeedCaptcha:          cfg.Recovery.NeedCaptcha,
		RequireIsUser:        cfg.Recovery.RequireIsUser,
		VerifyCodeTriesCount: cfg.Recovery.VerifyCodeTriesCount,
		PasswordMinLength:    cfg.Password.MinLength,
		Timeout:              cfg.Recovery.Timeout,
		Channels:             e.channels,
		SiteURL:              cfg.Site.URL,
		SiteName:             cfg.Site.Name,
		LoginURL:             cfg.Site.LoginURL,
		SetPasswordURL:       cfg.Site.SetPasswordURL,
		HomeURL:              cfg.Site.HomeURL,
		Env:                  cfg.Env,
		Messages:             cfg.Messages.flowMessages(),

		ClientIPFromContext: clientIPFromContext,
		ClassifyLogin: func(login string) string {
			return string(ClassifyLogin(login))
		},

		CheckCaptcha: func(ctx context.Context, params url.Values) (bool, error) {
			if e.captcha == nil {
				return false, nil
			}
			return e.captcha.Verify(ctx, params)
		},
		CheckCooldown: e.cooldown.Check,
		CheckThrottle: func(ctx context.Context, login, ip string) error {
			if e.throttle == nil {
				return nil
			}
			return e.throttle.CheckSend(ctx, login, ip)
		},
		ThrottleLimit: func(err error) (time.Duration, bool) {
			if e.throttle == nil || !errors.Is(err, limiters.ErrRecoveryRateLimited) {
				return 0, false
			}
			return e.throttle.Window(), true
		},

		FindContact: func(ctx context.Context, login, priority string) (flows.RecoveryContact, bool, error) {
			lt := LoginType(priority)
			if lt == "" {
				lt = LoginOther
			}
			c, ok, err := e.contacts.GetContactByLogin(ctx, login, lt)
			return toRecoveryContact(c), ok, err
		},
		GetContactByID: func(ctx context.Context, id string) (flows.RecoveryContact, bool, error) {
			c, ok, err := e.contacts.GetContactByID(ctx, id)
			return toRecoveryContact(c), ok, err
		},
		GetContactWithPasswordByPhone: func(ctx context.Context, phone string) (flows.RecoveryContact, bool, error) {
			c, ok, err := e.contacts.GetContactWithPasswordByPhone(ctx, phone)
			return toRecoveryContact(c), ok, err
		},
		ContactHasEmail: e.contacts.HasEmail,
		UpdatePassword: func(ctx context.Context, contactID, plain string) error {
			hash, err := e.passwordHash.Hash(plain)
			if err != nil {
				return err
			}
			return e.contacts.UpdatePasswordHash(ctx, contactID, hash)
		},
		GeneratePassword: func() (string, error) {
			return password.Generate(cfg.Password.GeneratedLength)
		},
		AuthContact: func(ctx context.Context, sessionID string, c flows.RecoveryContact) (string, error) {
			if err := e.state.SetAuthContact(ctx, sessionID, c.ID); err != nil {
				return "", err
			}
			if e.tokens == nil {
				return "", nil
			}
			return e.tokens.Issue(c.ID, sessionID, c.Locale)
		},

		LoadSendDetails: e.state.SendDetails,
		SaveSendDetails: func(ctx context.Context, sessionID string, details *session.SendDetails) error {
			return e.state.SetSendDetails(ctx, sessionID, details)
		},
		SetLocale: e.state.SetLocale,
		SaveLastResponse: func(ctx context.Context, sessionID string, out flows.RecoveryOutcome) error {
			data, err := json.Marshal(toOutcome(out))
			if err != nil {
				return err
			}
			return e.state.SetLastResponse(ctx, sessionID, data)
		},

		Logf: e.logf,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		ChannelDelivery: e.observeDelivery,
		EmitAudit:       e.emitAudit,

		Metrics: flows.RecoveryMetrics{
			RecoveryRequest:   int(MetricRecoveryRequest),
			RecoverySent:      int(MetricRecoverySent),
			ChannelFailure:    int(MetricChannelFailure),
			AllChannelsFailed: int(MetricAllChannelsFailed),
			RateLimited:       int(MetricRateLimited),
			CodeInvalid:       int(MetricCodeInvalid),
			CodeOutOfTries:    int(MetricCodeOutOfTries),
			HashInvalid:       int(MetricHashInvalid),
			PasswordSet:       int(MetricPasswordSet),
			PasswordGenerated: int(MetricPasswordGenerated),
			Banned:            int(MetricBanned),
			ContactNotFound:   int(MetricContactNotFound),
		},
		Events: flows.RecoveryEvents{
			RecoveryRequest:   auditEventRecoveryRequest,
			RecoverySent:      auditEventRecoverySent,
			RecoveryFailed:    auditEventRecoveryFailed,
			CodeConfirm:       auditEventCodeConfirm,
			HashInvalid:       auditEventHashInvalid,
			PasswordSet:       auditEventPasswordSet,
			PasswordGenerated: auditEventPasswordGenerated,
		},
		Errors: flows.RecoveryErrors{
			NotFound:           ErrNotFound,
			EngineNotReady:     ErrEngineNotReady,
			SessionUnavailable: ErrSessionUnavailable,
			Unavailable:        ErrUnavailable,
		},
	}
}

func (m MessagesConfig) flowMessages() flows.RecoveryMessages {
	return flows.RecoveryMessages{
		Required:                 m.Required,
		InvalidCaptcha:           m.InvalidCaptcha,
		CodeRequired:             m.CodeRequired,
		ContactNotFound:          m.ContactNotFound,
		Banned:                   m.Banned,
		CannotRecover:            m.CannotRecover,
		OutOfTries:               m.OutOfTries,
		InvalidOrExpiredCode:     m.InvalidOrExpiredCode,
		InvalidCode:              m.InvalidCode,
		PasswordEmpty:            m.PasswordEmpty,
		PasswordTooShort:         m.PasswordTooShort,
		PasswordMismatch:         m.PasswordMismatch,
		TimeoutError:             m.TimeoutError,
		TimeoutInfo:              m.TimeoutInfo,
		SentEmail:                m.SentEmail,
		SentEmailGenerate:        m.SentEmailGenerate,
		SentEmailHidden:          m.SentEmailHidden,
		SentEmailHiddenGenerate:  m.SentEmailHiddenGenerate,
		SentSMS:                  m.SentSMS,
		GeneratedPasswordByEmail: m.GeneratedPasswordByEmail,
		GeneratedPasswordBySMS:   m.GeneratedPasswordBySMS,
	}
}

func toRecoveryContact(c Contact) flows.RecoveryContact {
	return flows.RecoveryContact{
		ID:     c.ID,
		Name:   c.Name,
		Email:  c.Email,
		Phone:  c.Phone,
		Locale: c.Locale,
		Banned: c.Banned,
		IsUser: c.IsUser,
	}
}

func toOutcome(in flows.RecoveryOutcome) *Outcome {
	out := &Outcome{
		Errors:                       make(FieldErrors, len(in.Errors)),
		Login:                        in.Login,
		Address:                      in.Address,
		ChannelType:                  in.ChannelType,
		SetPassword:                  in.SetPassword,
		SentOK:                       in.SentOK,
		SentMessage:                  in.SentMessage,
		TimeoutMessage:               in.TimeoutMessage,
		Timeout:                      in.Timeout,
		GeneratedPasswordSent:        in.GeneratedPasswordSent,
		UsedAddress:                  in.UsedAddress,
		GeneratedPasswordSentMessage: in.GeneratedPasswordSentMessage,
		CodeConfirmed:                in.CodeConfirmed,
		Hash:                         in.Hash,
		AccessToken:                  in.AccessToken,
		Locale:                       in.Locale,
		Redirect:                     in.Redirect,
	}
	for field, fe := range in.Errors {
		out.Errors[field] = FieldError{Message: fe.Message, Code: fe.Code, Timeout: fe.Timeout}
	}
	if in.Options != nil {
		out.Options = &Options{
			AuthType:       AuthType(in.Options.AuthType),
			NeedCaptcha:    in.Options.NeedCaptcha,
			IsUser:         in.Options.IsUser,
			Channels:       append([]string(nil), in.Options.Channels...),
			LoginURL:       in.Options.LoginURL,
			SetPasswordURL: in.Options.SetPasswordURL,
		}
	}
	if in.Contact != nil {
		out.Contact = &ContactView{
			ID:     in.Contact.ID,
			Name:   in.Contact.Name,
			Email:  in.Contact.Email,
			Phone:  in.Contact.Phone,
			Locale: in.Contact.Locale,
		}
	}
	return out
}
