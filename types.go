package goRecovery

import (
	"context"
	"errors"
	"net/url"
	"sort"

	"github.com/goccy/go-json"
)

// Contact is a person who may recover a password. Email and Phone are
// optional; a contact reachable by neither cannot recover.
type Contact struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Locale       string
	PasswordHash string
	Banned       bool
	IsUser       bool
}

// ContactProvider is the contact storage layer. Lookups report a missing
// contact with found=false and a nil error; a non-nil error means the
// backend failed.
type ContactProvider interface {
	// GetContactByLogin resolves a login. priority hints which field the
	// login most likely matches; LoginOther means no preference.
	GetContactByLogin(ctx context.Context, login string, priority LoginType) (Contact, bool, error)
	GetContactByID(ctx context.Context, id string) (Contact, bool, error)
	// GetContactWithPasswordByPhone returns the contact owning phone,
	// restricted to contacts that have a password hash set.
	GetContactWithPasswordByPhone(ctx context.Context, phone string) (Contact, bool, error)
	// HasEmail reports whether email is still attached to the contact.
	HasEmail(ctx context.Context, contactID, email string) (bool, error)
	UpdatePasswordHash(ctx context.Context, contactID, passwordHash string) error
}

// CaptchaVerifier checks the captcha fields of a submitted form.
type CaptchaVerifier interface {
	Verify(ctx context.Context, params url.Values) (bool, error)
}

// Request is one HTTP request of the recovery flow, stripped of transport.
// An empty SessionID makes Handle start a new session.
type Request struct {
	SessionID string
	Post      bool
	Params    url.Values
	// Redirects asks for redirect targets instead of inline results, as a
	// browser form submission expects.
	Redirects bool
}

// Options describes the recovery settings a form needs to render.
type Options struct {
	AuthType       AuthType `json:"auth_type"`
	NeedCaptcha    bool     `json:"need_captcha"`
	IsUser         bool     `json:"is_user"`
	Channels       []string `json:"channels"`
	LoginURL       string   `json:"login_url,omitempty"`
	SetPasswordURL string   `json:"set_password_url,omitempty"`
}

// ContactView is the part of a contact exposed after a password was set.
type ContactView struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// Outcome is the result of Handle. Errors is always present; the other
// fields depend on the mode and step reached.
type Outcome struct {
	SessionID string `json:"-"`

	Errors  FieldErrors `json:"errors"`
	Options *Options    `json:"options,omitempty"`

	Login       string `json:"login,omitempty"`
	Address     string `json:"address,omitempty"`
	ChannelType string `json:"channel_type,omitempty"`
	SetPassword bool   `json:"set_password,omitempty"`

	SentOK         bool   `json:"sent_ok,omitempty"`
	SentMessage    string `json:"sent_message,omitempty"`
	TimeoutMessage string `json:"timeout_message,omitempty"`
	Timeout        int64  `json:"timeout,omitempty"`

	GeneratedPasswordSent        bool   `json:"generated_password_sent,omitempty"`
	UsedAddress                  string `json:"used_address,omitempty"`
	GeneratedPasswordSentMessage string `json:"generated_password_sent_message,omitempty"`

	CodeConfirmed bool   `json:"code_confirmed,omitempty"`
	Hash          string `json:"hash,omitempty"`

	Contact     *ContactView `json:"contact,omitempty"`
	AccessToken string       `json:"access_token,omitempty"`
	Locale      string       `json:"locale,omitempty"`
	Redirect    string       `json:"redirect,omitempty"`
}

// FieldErrors maps a form field (or "timeout", "ban", "sent") to its error.
type FieldErrors map[string]FieldError

// FieldError is a user-facing validation error. On the wire a plain error
// is a string, an error with a Code is {"<code>": "<message>"} and a
// timeout error is {"message": ..., "timeout": seconds}.
type FieldError struct {
	Message string
	Code    string
	Timeout int64
}

func (e FieldError) MarshalJSON() ([]byte, error) {
	switch {
	case e.Code != "":
		return json.Marshal(map[string]string{e.Code: e.Message})
	case e.Timeout > 0:
		return json.Marshal(struct {
			Message string `json:"message"`
			Timeout int64  `json:"timeout"`
		}{e.Message, e.Timeout})
	default:
		return json.Marshal(e.Message)
	}
}

func (e *FieldError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		*e = FieldError{Message: msg}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if _, ok := obj["timeout"]; ok {
		var timeout struct {
			Message string `json:"message"`
			Timeout int64  `json:"timeout"`
		}
		if err := json.Unmarshal(data, &timeout); err != nil {
			return err
		}
		*e = FieldError{Message: timeout.Message, Timeout: timeout.Timeout}
		return nil
	}
	if len(obj) != 1 {
		return errors.New("field error must have exactly one code")
	}
	for code, raw := range obj {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		*e = FieldError{Message: text, Code: code}
	}
	return nil
}

// Keys returns the field names in sorted order.
func (f FieldErrors) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
