package channel

import (
	"context"
	"errors"
	"strings"
)

// Type identifies a channel variant.
type Type string

const (
	TypeEmail Type = "email"
	TypeSMS   Type = "sms"
)

// ParseType maps a stored channel type string to a [Type]. The boolean is
// false for unknown values.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeEmail:
		return TypeEmail, true
	case TypeSMS:
		return TypeSMS, true
	default:
		return "", false
	}
}

func (t Type) String() string { return string(t) }

var (
	// ErrDelivery wraps transport failures while sending a message.
	ErrDelivery = errors.New("channel delivery failed")
	// ErrNoAddress is returned when the recipient has no address for the channel.
	ErrNoAddress = errors.New("recipient has no address for channel")
	// ErrInvalidSecret is the generic validation failure.
	ErrInvalidSecret = errors.New("invalid or expired secret")
	// ErrOutOfTries is returned when the tries budget for a code is exhausted.
	ErrOutOfTries = errors.New("out of tries")
)

// ErrorCode classifies a failed validation for user-facing copy.
type ErrorCode string

const (
	ErrorInvalid    ErrorCode = "invalid"
	ErrorOutOfTries ErrorCode = "out_of_tries"
)

// Recipient is the contact a message is addressed to.
type Recipient struct {
	ContactID string
	Name      string
	Email     string
	Phone     string
	Locale    string
}

// SendOptions carries the site context rendered into messages.
//
// RecoveryURL is only used by the email channel; the substring
// [SecretPlaceholder] is replaced with the issued token. UseSession marks
// SMS codes that are validated against the session that requested them.
type SendOptions struct {
	SiteURL     string
	SiteName    string
	LoginURL    string
	RecoveryURL string
	UseSession  bool
}

// SecretPlaceholder is substituted with the recovery token in RecoveryURL.
const SecretPlaceholder = "{$secret_hash}"

// Tries bounds the number of failed validations for one secret. When Clean
// is set, exhausting the budget removes the pending secret.
type Tries struct {
	Count int
	Clean bool
}

// ValidateOptions narrows validation. Recipient, when set, must match the
// address the secret was issued to. A nil Tries uses the channel default.
type ValidateOptions struct {
	Recipient string
	Tries     *Tries
}

// Result is the outcome of [Channel.ValidateSecret].
type Result struct {
	OK        bool
	Address   string
	ContactID string
	Code      ErrorCode
	Err       error
}

func failed(code ErrorCode, err error) Result {
	return Result{Code: code, Err: err}
}

// Channel is the capability set of a recovery delivery mechanism.
type Channel interface {
	Type() Type
	SendRecoveryMessage(ctx context.Context, to Recipient, opts SendOptions) error
	SendPassword(ctx context.Context, to Recipient, password string, opts SendOptions) error
	ValidateSecret(ctx context.Context, secret string, opts ValidateOptions) Result
	// InvalidateSecret forgets secret. recipient is the address the secret
	// was issued to, when known. Invalidating twice is not an error.
	InvalidateSecret(ctx context.Context, secret, recipient string) error
}

// NormalizeEmail lowercases and trims an address for comparison.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone strips formatting characters, keeping digits and a
// leading plus sign.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
