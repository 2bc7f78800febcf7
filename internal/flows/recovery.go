package flows

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goRecovery/channel"
	"github.com/MrEthical07/goRecovery/secret"
	"github.com/MrEthical07/goRecovery/session"
)

const (
	AuthTypeUserPassword     = "user_password"
	AuthTypeGeneratePassword = "generate_password"
	AuthTypeOneTimePassword  = "onetime_password"
)

const (
	LoginTypeEmail = "email"
	LoginTypePhone = "phone"
	LoginTypeLogin = "login"
)

type RecoveryContact struct {
	ID     string
	Name   string
	Email  string
	Phone  string
	Locale string
	Banned bool
	IsUser bool
}

type RecoveryRequest struct {
	SessionID string
	Post      bool
	Params    url.Values
	Redirects bool
}

type RecoveryFieldError struct {
	Message string
	Code    string
	Timeout int64
}

type RecoveryOptions struct {
	AuthType       string
	NeedCaptcha    bool
	IsUser         bool
	Channels       []string
	LoginURL       string
	SetPasswordURL string
}

type RecoveryOutcome struct {
	Errors  map[string]RecoveryFieldError
	Options *RecoveryOptions

	Login       string
	Address     string
	ChannelType string
	SetPassword bool

	SentOK         bool
	SentMessage    string
	TimeoutMessage string
	Timeout        int64

	GeneratedPasswordSent        bool
	UsedAddress                  string
	GeneratedPasswordSentMessage string

	CodeConfirmed bool
	Hash          string

	Contact     *RecoveryContact
	AccessToken string
	Locale      string
	Redirect    string
}

type RecoveryMessages struct {
	Required                 string
	InvalidCaptcha           string
	CodeRequired             string
	ContactNotFound          string
	Banned                   string
	CannotRecover            string
	OutOfTries               string
	InvalidOrExpiredCode     string
	InvalidCode              string
	PasswordEmpty            string
	PasswordTooShort         string
	PasswordMismatch         string
	TimeoutError             string
	TimeoutInfo              string
	SentEmail                string
	SentEmailGenerate        string
	SentEmailHidden          string
	SentEmailHiddenGenerate  string
	SentSMS                  string
	GeneratedPasswordByEmail string
	GeneratedPasswordBySMS   string
}

type RecoveryMetrics struct {
	RecoveryRequest   int
	RecoverySent      int
	ChannelFailure    int
	AllChannelsFailed int
	RateLimited       int
	CodeInvalid       int
	CodeOutOfTries    int
	HashInvalid       int
	PasswordSet       int
	PasswordGenerated int
	Banned            int
	ContactNotFound   int
}

type RecoveryEvents struct {
	RecoveryRequest   string
	RecoverySent      string
	RecoveryFailed    string
	CodeConfirm       string
	HashInvalid       string
	PasswordSet       string
	PasswordGenerated string
}

type RecoveryErrors struct {
	NotFound           error
	EngineNotReady     error
	SessionUnavailable error
	Unavailable        error
}

type RecoveryDeps struct {
	AuthType             string
	NeedCaptcha          bool
	RequireIsUser        bool
	VerifyCodeTriesCount int
	PasswordMinLength    int
	Timeout              time.Duration

	// Channels are the configured channels in default priority order.
	Channels []channel.Channel

	SiteURL        string
	SiteName       string
	LoginURL       string
	SetPasswordURL string
	HomeURL        string
	Env            string

	Messages RecoveryMessages

	ClientIPFromContext func(context.Context) string
	ClassifyLogin       func(string) string

	CheckCaptcha  func(context.Context, url.Values) (bool, error)
	CheckCooldown func(context.Context, string) (bool, error)
	CheckThrottle func(context.Context, string, string) error
	ThrottleLimit func(error) (time.Duration, bool)

	FindContact                   func(context.Context, string, string) (RecoveryContact, bool, error)
	GetContactByID                func(context.Context, string) (RecoveryContact, bool, error)
	GetContactWithPasswordByPhone func(context.Context, string) (RecoveryContact, bool, error)
	ContactHasEmail               func(context.Context, string, string) (bool, error)
	UpdatePassword                func(context.Context, string, string) error
	GeneratePassword              func() (string, error)
	AuthContact                   func(context.Context, string, RecoveryContact) (string, error)

	LoadSendDetails  func(context.Context, string) (*session.SendDetails, error)
	SaveSendDetails  func(context.Context, string, *session.SendDetails) error
	SetLocale        func(context.Context, string, string) error
	SaveLastResponse func(context.Context, string, RecoveryOutcome) error

	Logf      func(string, ...any)
	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)

	// ChannelDelivery reports one delivery attempt: channel type, whether
	// the message was a generated password and whether it went out.
	ChannelDelivery func(channelType string, password, delivered bool)

	Metrics RecoveryMetrics
	Events  RecoveryEvents
	Errors  RecoveryErrors
}

// hashDetails is what a validated hash resolves to.
type hashDetails struct {
	contact     RecoveryContact
	address     string
	channel     channel.Channel
	channelType channel.Type
}

// RunRecovery handles one request of the password recovery flow. A
// non-nil error means the whole request must be answered as not found or
// unavailable; field-level problems are reported in the outcome.
func RunRecovery(ctx context.Context, req RecoveryRequest, deps RecoveryDeps) (RecoveryOutcome, error) {
	normalizeRecoveryDeps(&deps)

	if deps.AuthType == AuthTypeOneTimePassword {
		return RecoveryOutcome{}, deps.Errors.NotFound
	}
	if deps.FindContact == nil || deps.LoadSendDetails == nil || deps.SaveSendDetails == nil || deps.UpdatePassword == nil {
		return RecoveryOutcome{}, deps.Errors.EngineNotReady
	}
	if req.Params == nil {
		req.Params = url.Values{}
	}

	var (
		out RecoveryOutcome
		err error
	)
	if hash := RecoveryHashParam(req.Params); hash != "" {
		if deps.AuthType == AuthTypeGeneratePassword {
			out, err = runSetGeneratedPassword(ctx, req, hash, deps)
		} else {
			out, err = runSetPassword(ctx, req, hash, deps)
		}
	} else {
		out, err = runForgotPassword(ctx, req, deps)
	}
	if err != nil {
		return RecoveryOutcome{}, err
	}

	if err := deps.SaveLastResponse(ctx, req.SessionID, out); err != nil {
		deps.Logf("save last response: %v", err)
	}
	return out, nil
}

// RecoveryHashParam returns the recovery hash from the request. The legacy
// "key" parameter wins over "hash".
func RecoveryHashParam(params url.Values) string {
	if values, ok := params["key"]; ok {
		if len(values) == 0 {
			return ""
		}
		return values[0]
	}
	return params.Get("hash")
}

func runForgotPassword(ctx context.Context, req RecoveryRequest, deps RecoveryDeps) (RecoveryOutcome, error) {
	out := RecoveryOutcome{Errors: map[string]RecoveryFieldError{}}
	out.Options = recoveryOptions(deps)

	if _, ignore := req.Params["ignore"]; !req.Post || ignore {
		return out, nil
	}

	login := strings.TrimSpace(req.Params.Get("login"))
	_, codePresented := req.Params["confirmation_code"]
	code := strings.TrimSpace(req.Params.Get("confirmation_code"))
	sessionID := req.SessionID
	out.Login = login

	deps.MetricInc(deps.Metrics.RecoveryRequest)

	fieldErrors, err := validateForgotPassword(ctx, req, login, codePresented, code, deps)
	if err != nil {
		return RecoveryOutcome{}, err
	}
	if len(fieldErrors) > 0 {
		out.Errors = fieldErrors
		deps.EmitAudit(ctx, deps.Events.RecoveryRequest, false, "", sessionID, nil, func() map[string]string {
			return map[string]string{"login": login, "reason": firstErrorKey(fieldErrors)}
		})
		return out, nil
	}

	if codePresented {
		wrapped, err := secret.WrapCode(code)
		if err != nil {
			return RecoveryOutcome{}, deps.Errors.NotFound
		}
		hash := wrapped.String()

		deps.EmitAudit(ctx, deps.Events.CodeConfirm, true, "", sessionID, nil, func() map[string]string {
			return map[string]string{"login": login}
		})

		if deps.AuthType == AuthTypeGeneratePassword {
			return runSetGeneratedPassword(ctx, req, hash, deps)
		}

		if req.Redirects {
			out.Redirect = withQuery(deps.SetPasswordURL, "key", hash)
			return out, nil
		}
		out.CodeConfirmed = true
		out.Hash = hash
		return out, nil
	}

	contact, found, err := findRecoveryContact(ctx, login, deps)
	if err != nil {
		deps.Logf("find contact for recovery: %v", err)
		return RecoveryOutcome{}, deps.Errors.Unavailable
	}
	if !found {
		deps.MetricInc(deps.Metrics.ContactNotFound)
		out.Errors["login"] = RecoveryFieldError{Message: deps.Messages.ContactNotFound}
		deps.EmitAudit(ctx, deps.Events.RecoveryRequest, false, "", sessionID, nil, func() map[string]string {
			return map[string]string{"login": login, "reason": "contact_not_found"}
		})
		return out, nil
	}
	if contact.Banned {
		deps.MetricInc(deps.Metrics.Banned)
		out.Errors["ban"] = RecoveryFieldError{Message: fmt.Sprintf(deps.Messages.Banned, login)}
		deps.EmitAudit(ctx, deps.Events.RecoveryRequest, false, contact.ID, sessionID, nil, func() map[string]string {
			return map[string]string{"login": login, "reason": "banned"}
		})
		return out, nil
	}

	details, sendErrors, err := sendRecoveryMessage(ctx, req, contact, login, deps)
	if err != nil {
		return RecoveryOutcome{}, err
	}
	if len(sendErrors) > 0 {
		out.Errors = sendErrors
		return out, nil
	}

	details.SentOK = true
	if err := deps.SaveSendDetails(ctx, sessionID, details); err != nil {
		deps.Logf("save send details: %v", err)
		return RecoveryOutcome{}, deps.Errors.SessionUnavailable
	}

	out.SentOK = true
	out.ChannelType = details.ChannelType
	out.Address = details.Address
	out.SentMessage = details.SentMessage
	out.TimeoutMessage = details.TimeoutMessage
	out.Timeout = details.Timeout
	return out, nil
}

func validateForgotPassword(ctx context.Context, req RecoveryRequest, login string, codePresented bool, code string, deps RecoveryDeps) (map[string]RecoveryFieldError, error) {
	errs := map[string]RecoveryFieldError{}
	if login == "" {
		errs["login"] = RecoveryFieldError{Message: deps.Messages.Required}
	}
	if deps.NeedCaptcha && !captchaValid(ctx, req.Params, deps) {
		errs["captcha"] = RecoveryFieldError{Message: deps.Messages.InvalidCaptcha}
	}
	if len(errs) > 0 {
		return errs, nil
	}

	if !codePresented {
		return errs, nil
	}
	if code == "" {
		errs["confirmation_code"] = RecoveryFieldError{Message: deps.Messages.CodeRequired}
		return errs, nil
	}

	if fieldErr, ok := validateCode(ctx, req.SessionID, code, login, deps); !ok {
		errs["confirmation_code"] = fieldErr
	}
	return errs, nil
}

func validateCode(ctx context.Context, sessionID, code, login string, deps RecoveryDeps) (RecoveryFieldError, bool) {
	sms := channelByType(deps.Channels, channel.TypeSMS)
	if sms == nil {
		deps.MetricInc(deps.Metrics.CodeInvalid)
		return RecoveryFieldError{Code: string(channel.ErrorInvalid), Message: deps.Messages.InvalidCode}, false
	}

	recipient := login
	if deps.ClassifyLogin(login) != LoginTypePhone {
		if details, err := deps.LoadSendDetails(ctx, sessionID); err == nil && details != nil && details.ChannelType == string(channel.TypeSMS) {
			recipient = details.Address
		}
	}

	res := sms.ValidateSecret(ctx, code, channel.ValidateOptions{
		Recipient: recipient,
		Tries: &channel.Tries{
			Count: deps.VerifyCodeTriesCount,
			Clean: true,
		},
	})
	if res.OK {
		return RecoveryFieldError{}, true
	}

	if res.Code == channel.ErrorOutOfTries {
		deps.MetricInc(deps.Metrics.CodeOutOfTries)
		deps.EmitAudit(ctx, deps.Events.CodeConfirm, false, "", sessionID, res.Err, func() map[string]string {
			return map[string]string{"login": login, "reason": string(channel.ErrorOutOfTries)}
		})
		return RecoveryFieldError{Code: string(channel.ErrorOutOfTries), Message: deps.Messages.OutOfTries}, false
	}

	deps.MetricInc(deps.Metrics.CodeInvalid)
	deps.EmitAudit(ctx, deps.Events.CodeConfirm, false, "", sessionID, res.Err, func() map[string]string {
		return map[string]string{"login": login, "reason": string(channel.ErrorInvalid)}
	})
	errCode := res.Code
	if errCode == "" {
		errCode = channel.ErrorInvalid
	}
	return RecoveryFieldError{Code: string(errCode), Message: deps.Messages.InvalidOrExpiredCode}, false
}

func findRecoveryContact(ctx context.Context, login string, deps RecoveryDeps) (RecoveryContact, bool, error) {
	if login == "" {
		return RecoveryContact{}, false, nil
	}
	priority := deps.ClassifyLogin(login)
	if priority == LoginTypeLogin {
		priority = ""
	}
	contact, found, err := deps.FindContact(ctx, login, priority)
	if err != nil || !found {
		return RecoveryContact{}, false, err
	}
	if deps.RequireIsUser && !contact.IsUser {
		return RecoveryContact{}, false, nil
	}
	return contact, true, nil
}

// channelsByPriority puts the channel matching the login shape first and
// keeps the configured order for the rest.
func channelsByPriority(channels []channel.Channel, loginType string) []channel.Channel {
	var preferred channel.Type
	switch loginType {
	case LoginTypeEmail:
		preferred = channel.TypeEmail
	case LoginTypePhone:
		preferred = channel.TypeSMS
	default:
		return channels
	}

	ordered := make([]channel.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.Type() == preferred {
			ordered = append(ordered, ch)
		}
	}
	for _, ch := range channels {
		if ch.Type() != preferred {
			ordered = append(ordered, ch)
		}
	}
	return ordered
}

func sendRecoveryMessage(ctx context.Context, req RecoveryRequest, contact RecoveryContact, login string, deps RecoveryDeps) (*session.SendDetails, map[string]RecoveryFieldError, error) {
	sessionID := req.SessionID
	loginType := deps.ClassifyLogin(login)

	allowed, err := deps.CheckCooldown(ctx, sessionID)
	if err != nil {
		deps.Logf("recovery cooldown check: %v", err)
		return nil, nil, deps.Errors.SessionUnavailable
	}
	if !allowed {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RecoveryRequest, false, contact.ID, sessionID, nil, func() map[string]string {
			return map[string]string{"login": login, "reason": "timeout"}
		})
		return nil, timeoutError(deps, ceilSeconds(deps.Timeout)), nil
	}

	if err := deps.CheckThrottle(ctx, login, deps.ClientIPFromContext(ctx)); err != nil {
		window, limited := deps.ThrottleLimit(err)
		if !limited {
			deps.Logf("recovery throttle check: %v", err)
			return nil, nil, deps.Errors.Unavailable
		}
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RecoveryRequest, false, contact.ID, sessionID, err, func() map[string]string {
			return map[string]string{"login": login, "reason": "throttled"}
		})
		return nil, timeoutError(deps, ceilSeconds(window)), nil
	}

	to := recipientOf(contact)
	var used channel.Channel
	for _, ch := range channelsByPriority(deps.Channels, loginType) {
		opts := baseSendOptions(deps)
		if ch.Type() == channel.TypeEmail {
			opts.RecoveryURL = withRawQuery(deps.SetPasswordURL, "key="+channel.SecretPlaceholder)
		} else {
			opts.UseSession = true
		}

		err := ch.SendRecoveryMessage(ctx, to, opts)
		deps.ChannelDelivery(string(ch.Type()), false, err == nil)
		if err == nil {
			used = ch
			break
		}

		deps.MetricInc(deps.Metrics.ChannelFailure)
		switch ch.Type() {
		case channel.TypeEmail:
			deps.Logf("Couldn't send recovery password email message. Check email settings.\n%v", err)
		case channel.TypeSMS:
			deps.Logf("Couldn't send recovery password sms message. Check SMS gateway settings.\n%v", err)
		default:
			deps.Logf("Couldn't send recovery password.\n%v", err)
		}
	}

	if used == nil {
		deps.MetricInc(deps.Metrics.AllChannelsFailed)
		deps.Logf("Couldn't send recovery password.\nLooks like there is no any working channel in system. Check auth settings for this env=%s and site=%s", deps.Env, deps.SiteURL)
		deps.EmitAudit(ctx, deps.Events.RecoveryFailed, false, contact.ID, sessionID, nil, func() map[string]string {
			return map[string]string{"login": login, "reason": "all_channels_failed"}
		})
		return nil, map[string]RecoveryFieldError{"sent": {Message: deps.Messages.CannotRecover}}, nil
	}

	details := &session.SendDetails{ChannelType: string(used.Type())}
	switch used.Type() {
	case channel.TypeEmail:
		generate := deps.AuthType == AuthTypeGeneratePassword
		if loginType == LoginTypeEmail {
			msg := deps.Messages.SentEmail
			if generate {
				msg = deps.Messages.SentEmailGenerate
			}
			details.SentMessage = fmt.Sprintf(msg, contact.Email)
		} else {
			details.SentMessage = deps.Messages.SentEmailHidden
			if generate {
				details.SentMessage = deps.Messages.SentEmailHiddenGenerate
			}
		}
		details.Address = contact.Email
	case channel.TypeSMS:
		details.SentMessage = deps.Messages.SentSMS
		details.TimeoutMessage = deps.Messages.TimeoutInfo
		details.Timeout = ceilSeconds(deps.Timeout)
		details.Address = contact.Phone
	}

	deps.MetricInc(deps.Metrics.RecoverySent)
	deps.EmitAudit(ctx, deps.Events.RecoverySent, true, contact.ID, sessionID, nil, func() map[string]string {
		return map[string]string{"login": login, "channel": details.ChannelType}
	})
	return details, nil, nil
}

// ceilSeconds rounds d up to whole seconds, so a positive wait never reads
// as zero.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

func timeoutError(deps RecoveryDeps, seconds int64) map[string]RecoveryFieldError {
	return map[string]RecoveryFieldError{
		"timeout": {Message: deps.Messages.TimeoutError, Timeout: seconds},
	}
}

// resolveHashChannel picks the channel governing a hash from the session's
// last send details. No details, or an email type, means email.
func resolveHashChannel(ctx context.Context, sessionID string, deps RecoveryDeps) (channel.Channel, *session.SendDetails, bool, error) {
	details, err := deps.LoadSendDetails(ctx, sessionID)
	if err != nil {
		return nil, nil, false, err
	}

	channelType := ""
	if details != nil {
		channelType = details.ChannelType
	}

	var ch channel.Channel
	switch {
	case channelType == "" || channelType == string(channel.TypeEmail):
		ch = channelByType(deps.Channels, channel.TypeEmail)
	case channelType == string(channel.TypeSMS):
		ch = channelByType(deps.Channels, channel.TypeSMS)
	default:
		return nil, details, false, nil
	}
	return ch, details, true, nil
}

// hashSecret returns the part of hash the channel validates. A malformed
// hash yields "", which no channel accepts.
func hashSecret(hash string, t channel.Type) string {
	kind := secret.KindEmailToken
	if t == channel.TypeSMS {
		kind = secret.KindSMSCode
	}
	parsed, err := secret.Parse(hash, kind)
	if err != nil {
		return ""
	}
	return parsed.Secret()
}

func validateHash(ctx context.Context, sessionID, hash string, deps RecoveryDeps) (hashDetails, bool, error) {
	ch, details, known, err := resolveHashChannel(ctx, sessionID, deps)
	if err != nil {
		deps.Logf("validate hash: load send details: %v", err)
		return hashDetails{}, false, deps.Errors.SessionUnavailable
	}
	if !known {
		deps.Logf("Validate hash failed. Get unknown verification channel of type %s", details.ChannelType)
		return hashDetails{}, false, nil
	}
	if ch == nil {
		deps.Logf("Validate hash failed. Verification channel is not configured")
		return hashDetails{}, false, nil
	}

	opts := channel.ValidateOptions{}
	if details != nil {
		opts.Recipient = details.Address
	}

	res := ch.ValidateSecret(ctx, hashSecret(hash, ch.Type()), opts)
	if !res.OK {
		return hashDetails{}, false, nil
	}

	var (
		contact RecoveryContact
		found   bool
	)
	if ch.Type() == channel.TypeSMS {
		contact, found, err = deps.GetContactWithPasswordByPhone(ctx, res.Address)
		if err != nil {
			return hashDetails{}, false, deps.Errors.Unavailable
		}
		if !found {
			deps.Logf("Validate hash failed. Contact not found by phone")
			return hashDetails{}, false, nil
		}
	} else {
		contact, found, err = deps.GetContactByID(ctx, res.ContactID)
		if err != nil {
			return hashDetails{}, false, deps.Errors.Unavailable
		}
		if !found {
			deps.Logf("Validate hash failed. There is no contact associated with that hash - contact not exists or hash is invalid")
			return hashDetails{}, false, nil
		}
		attached, err := deps.ContactHasEmail(ctx, contact.ID, res.Address)
		if err != nil {
			return hashDetails{}, false, deps.Errors.Unavailable
		}
		if !attached {
			deps.Logf("Validate hash failed. Email row doesn't exist in DB")
			return hashDetails{}, false, nil
		}
	}

	if contact.Locale != "" {
		if err := deps.SetLocale(ctx, sessionID, contact.Locale); err != nil {
			deps.Logf("set session locale: %v", err)
		}
	}

	return hashDetails{
		contact:     contact,
		address:     res.Address,
		channel:     ch,
		channelType: ch.Type(),
	}, true, nil
}

func invalidateHash(ctx context.Context, sessionID, hash string, deps RecoveryDeps) {
	ch, details, known, err := resolveHashChannel(ctx, sessionID, deps)
	if err != nil {
		deps.Logf("invalidate hash: load send details: %v", err)
		return
	}
	if !known || ch == nil {
		return
	}
	recipient := ""
	if details != nil {
		recipient = details.Address
	}
	if err := ch.InvalidateSecret(ctx, hashSecret(hash, ch.Type()), recipient); err != nil {
		deps.Logf("invalidate recovery secret: %v", err)
	}
}

func runSetGeneratedPassword(ctx context.Context, req RecoveryRequest, hash string, deps RecoveryDeps) (RecoveryOutcome, error) {
	sessionID := req.SessionID

	details, ok, err := validateHash(ctx, sessionID, hash, deps)
	if err != nil {
		return RecoveryOutcome{}, err
	}
	if !ok {
		deps.MetricInc(deps.Metrics.HashInvalid)
		deps.EmitAudit(ctx, deps.Events.HashInvalid, false, "", sessionID, deps.Errors.NotFound, nil)
		return RecoveryOutcome{}, deps.Errors.NotFound
	}

	invalidateHash(ctx, sessionID, hash, deps)

	if err := sendGeneratedPassword(ctx, details, deps); err != nil {
		deps.EmitAudit(ctx, deps.Events.PasswordGenerated, false, details.contact.ID, sessionID, err, nil)
		return RecoveryOutcome{}, deps.Errors.NotFound
	}

	msg := deps.Messages.GeneratedPasswordBySMS
	if details.channelType == channel.TypeEmail {
		msg = deps.Messages.GeneratedPasswordByEmail
	}

	out := RecoveryOutcome{
		Errors:                       map[string]RecoveryFieldError{},
		GeneratedPasswordSent:        true,
		UsedAddress:                  details.address,
		GeneratedPasswordSentMessage: fmt.Sprintf(msg, details.address),
		Locale:                       details.contact.Locale,
	}
	if req.Redirects {
		out.Redirect = deps.LoginURL
	}

	deps.MetricInc(deps.Metrics.PasswordGenerated)
	deps.EmitAudit(ctx, deps.Events.PasswordGenerated, true, details.contact.ID, sessionID, nil, func() map[string]string {
		return map[string]string{"channel": string(details.channelType)}
	})
	return out, nil
}

func sendGeneratedPassword(ctx context.Context, details hashDetails, deps RecoveryDeps) error {
	password, err := deps.GeneratePassword()
	if err != nil {
		deps.Logf("generate password: %v", err)
		return err
	}

	err = details.channel.SendPassword(ctx, recipientOf(details.contact), password, baseSendOptions(deps))
	deps.ChannelDelivery(string(details.channelType), true, err == nil)
	if err != nil {
		deps.MetricInc(deps.Metrics.ChannelFailure)
		switch details.channelType {
		case channel.TypeEmail:
			deps.Logf("Couldn't send email message with generated password. Check email settings.\n%v", err)
		case channel.TypeSMS:
			deps.Logf("Couldn't send SMS with generated password. Check SMS gateway settings.\n%v", err)
		default:
			deps.Logf("Couldn't send message with generated password.\n%v", err)
		}
		return err
	}

	if err := deps.UpdatePassword(ctx, details.contact.ID, password); err != nil {
		deps.Logf("save generated password: %v", err)
		return err
	}
	return nil
}

func runSetPassword(ctx context.Context, req RecoveryRequest, hash string, deps RecoveryDeps) (RecoveryOutcome, error) {
	sessionID := req.SessionID

	details, ok, err := validateHash(ctx, sessionID, hash, deps)
	if err != nil {
		return RecoveryOutcome{}, err
	}
	if !ok {
		deps.MetricInc(deps.Metrics.HashInvalid)
		deps.EmitAudit(ctx, deps.Events.HashInvalid, false, "", sessionID, deps.Errors.NotFound, nil)
		return RecoveryOutcome{}, deps.Errors.NotFound
	}

	out := RecoveryOutcome{
		Errors: map[string]RecoveryFieldError{},
		Locale: details.contact.Locale,
	}

	if req.Post {
		password := req.Params.Get("password")
		confirm := req.Params.Get("password_confirm")
		out.Errors = validateSetPassword(ctx, req.Params, password, confirm, deps)

		if len(out.Errors) == 0 {
			if err := deps.UpdatePassword(ctx, details.contact.ID, password); err != nil {
				deps.Logf("save new password: %v", err)
				deps.EmitAudit(ctx, deps.Events.PasswordSet, false, details.contact.ID, sessionID, err, nil)
				return RecoveryOutcome{}, deps.Errors.Unavailable
			}

			invalidateHash(ctx, sessionID, hash, deps)

			token, err := deps.AuthContact(ctx, sessionID, details.contact)
			if err != nil {
				deps.Logf("authenticate recovered contact: %v", err)
				return RecoveryOutcome{}, deps.Errors.SessionUnavailable
			}
			contact := details.contact
			out.Contact = &contact
			out.AccessToken = token

			if req.Redirects {
				out.Redirect = deps.HomeURL
			}

			deps.MetricInc(deps.Metrics.PasswordSet)
			deps.EmitAudit(ctx, deps.Events.PasswordSet, true, contact.ID, sessionID, nil, func() map[string]string {
				return map[string]string{"channel": string(details.channelType)}
			})
		}
	}

	out.Login = details.address
	out.Address = details.address
	out.ChannelType = string(details.channelType)
	out.SetPassword = true
	return out, nil
}

func validateSetPassword(ctx context.Context, params url.Values, password, confirm string, deps RecoveryDeps) map[string]RecoveryFieldError {
	errs := map[string]RecoveryFieldError{}
	switch {
	case len(password) == 0:
		errs["password"] = RecoveryFieldError{Message: deps.Messages.PasswordEmpty}
	case deps.PasswordMinLength > 0 && len([]rune(password)) < deps.PasswordMinLength:
		errs["password"] = RecoveryFieldError{Message: fmt.Sprintf(deps.Messages.PasswordTooShort, deps.PasswordMinLength)}
	}
	if password != confirm {
		errs["password_confirm"] = RecoveryFieldError{Message: deps.Messages.PasswordMismatch}
	}
	if deps.NeedCaptcha && !captchaValid(ctx, params, deps) {
		errs["captcha"] = RecoveryFieldError{Message: deps.Messages.InvalidCaptcha}
	}
	return errs
}

func captchaValid(ctx context.Context, params url.Values, deps RecoveryDeps) bool {
	if deps.CheckCaptcha == nil {
		return false
	}
	ok, err := deps.CheckCaptcha(ctx, params)
	if err != nil {
		deps.Logf("captcha verification: %v", err)
		return false
	}
	return ok
}

func recoveryOptions(deps RecoveryDeps) *RecoveryOptions {
	opts := &RecoveryOptions{
		AuthType:       deps.AuthType,
		NeedCaptcha:    deps.NeedCaptcha,
		IsUser:         deps.RequireIsUser,
		LoginURL:       deps.LoginURL,
		SetPasswordURL: deps.SetPasswordURL,
	}
	for _, ch := range deps.Channels {
		opts.Channels = append(opts.Channels, string(ch.Type()))
	}
	return opts
}

func baseSendOptions(deps RecoveryDeps) channel.SendOptions {
	return channel.SendOptions{
		SiteURL:  deps.SiteURL,
		SiteName: deps.SiteName,
		LoginURL: deps.LoginURL,
	}
}

func recipientOf(c RecoveryContact) channel.Recipient {
	return channel.Recipient{
		ContactID: c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Locale:    c.Locale,
	}
}

func channelByType(channels []channel.Channel, t channel.Type) channel.Channel {
	for _, ch := range channels {
		if ch != nil && ch.Type() == t {
			return ch
		}
	}
	return nil
}

func withQuery(base, key, value string) string {
	return withRawQuery(base, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

// withRawQuery appends query without escaping it, so placeholders survive.
func withRawQuery(base, query string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + query
}

func firstErrorKey(errs map[string]RecoveryFieldError) string {
	for _, key := range []string{"login", "captcha", "confirmation_code"} {
		if _, ok := errs[key]; ok {
			return key
		}
	}
	for key := range errs {
		return key
	}
	return ""
}

func normalizeRecoveryDeps(deps *RecoveryDeps) {
	if deps.AuthType == "" {
		deps.AuthType = AuthTypeUserPassword
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.ClassifyLogin == nil {
		deps.ClassifyLogin = func(string) string { return LoginTypeLogin }
	}
	if deps.CheckCooldown == nil {
		deps.CheckCooldown = func(context.Context, string) (bool, error) { return true, nil }
	}
	if deps.CheckThrottle == nil {
		deps.CheckThrottle = func(context.Context, string, string) error { return nil }
	}
	if deps.ThrottleLimit == nil {
		deps.ThrottleLimit = func(error) (time.Duration, bool) { return 0, false }
	}
	if deps.GetContactByID == nil {
		deps.GetContactByID = func(context.Context, string) (RecoveryContact, bool, error) { return RecoveryContact{}, false, nil }
	}
	if deps.GetContactWithPasswordByPhone == nil {
		deps.GetContactWithPasswordByPhone = func(context.Context, string) (RecoveryContact, bool, error) { return RecoveryContact{}, false, nil }
	}
	if deps.ContactHasEmail == nil {
		deps.ContactHasEmail = func(context.Context, string, string) (bool, error) { return false, nil }
	}
	if deps.GeneratePassword == nil {
		deps.GeneratePassword = func() (string, error) { return "", errors.New("password generator not configured") }
	}
	if deps.AuthContact == nil {
		deps.AuthContact = func(context.Context, string, RecoveryContact) (string, error) { return "", nil }
	}
	if deps.SetLocale == nil {
		deps.SetLocale = func(context.Context, string, string) error { return nil }
	}
	if deps.SaveLastResponse == nil {
		deps.SaveLastResponse = func(context.Context, string, RecoveryOutcome) error { return nil }
	}
	if deps.Logf == nil {
		deps.Logf = func(string, ...any) {}
	}
	if deps.ChannelDelivery == nil {
		deps.ChannelDelivery = func(string, bool, bool) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Errors.NotFound == nil {
		deps.Errors.NotFound = errors.New("not found")
	}
	if deps.Errors.EngineNotReady == nil {
		deps.Errors.EngineNotReady = errors.New("engine not ready")
	}
	if deps.Errors.SessionUnavailable == nil {
		deps.Errors.SessionUnavailable = errors.New("session unavailable")
	}
	if deps.Errors.Unavailable == nil {
		deps.Errors.Unavailable = errors.New("recovery backend unavailable")
	}
}
