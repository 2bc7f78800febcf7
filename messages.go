package goRecovery

/*
====================================
MESSAGES CONFIG
====================================
*/

// MessagesConfig holds the user-facing copy returned in field errors and
// sent notices. Entries with a %s verb receive the login or address;
// PasswordTooShort receives the minimum length.
type MessagesConfig struct {
	Required                 string `yaml:"required"`
	InvalidCaptcha           string `yaml:"invalid_captcha"`
	CodeRequired             string `yaml:"code_required"`
	ContactNotFound          string `yaml:"contact_not_found"`
	Banned                   string `yaml:"banned"`
	CannotRecover            string `yaml:"cannot_recover"`
	OutOfTries               string `yaml:"out_of_tries"`
	InvalidOrExpiredCode     string `yaml:"invalid_or_expired_code"`
	InvalidCode              string `yaml:"invalid_code"`
	PasswordEmpty            string `yaml:"password_empty"`
	PasswordTooShort         string `yaml:"password_too_short"`
	PasswordMismatch         string `yaml:"password_mismatch"`
	TimeoutError             string `yaml:"timeout_error"`
	TimeoutInfo              string `yaml:"timeout_info"`
	SentEmail                string `yaml:"sent_email"`
	SentEmailGenerate        string `yaml:"sent_email_generate"`
	SentEmailHidden          string `yaml:"sent_email_hidden"`
	SentEmailHiddenGenerate  string `yaml:"sent_email_hidden_generate"`
	SentSMS                  string `yaml:"sent_sms"`
	GeneratedPasswordByEmail string `yaml:"generated_password_by_email"`
	GeneratedPasswordBySMS   string `yaml:"generated_password_by_sms"`
}

func defaultMessages() MessagesConfig {
	return MessagesConfig{
		Required:                 "Required",
		InvalidCaptcha:           "Invalid captcha",
		CodeRequired:             "Enter a confirmation code to complete the operation.",
		ContactNotFound:          "No user with this login name has been found.",
		Banned:                   "Password recovery for “%s” has been banned.",
		CannotRecover:            "Sorry, we cannot recover password for this login name or email. Please refer to your system administrator.",
		OutOfTries:               "You have run out of available attempts. Please request a new code.",
		InvalidOrExpiredCode:     "Incorrect or expired confirmation code. Try again or request a new code.",
		InvalidCode:              "Incorrect confirmation code. Try again or request a new code.",
		PasswordEmpty:            "Password can not be empty.",
		PasswordTooShort:         "Password must be at least %d characters long.",
		PasswordMismatch:         "Passwords do not match",
		TimeoutError:             "Password recovery was requested recently. Please wait before requesting it again.",
		TimeoutInfo:              "You can request a new code after the timeout expires.",
		SentEmail:                "Please check new mail at <strong>%s</strong>, we have sent you a message with a password recovery link.",
		SentEmailGenerate:        "Please check new mail at <strong>%s</strong>, we have sent you a message with a password recovery link to confirm the password change. After confirmation, we will send you your password in the next message.",
		SentEmailHidden:          "Please check new mail, we have sent you a message with a password recovery link.",
		SentEmailHiddenGenerate:  "Please check new mail, we have sent you a message with a link to confirm the password change. After confirmation, we will send you your password in the next message.",
		SentSMS:                  "Confirm your phone number",
		GeneratedPasswordByEmail: "Done! A message with a new password has been sent to email address <strong>%s</strong>.",
		GeneratedPasswordBySMS:   "Done! An SMS message with a new password has been sent to phone number <strong>%s</strong>.",
	}
}

// withDefaults fills empty entries from the default copy so a partial
// override in YAML does not blank the rest.
func (m MessagesConfig) withDefaults() MessagesConfig {
	d := defaultMessages()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.Required, d.Required)
	fill(&m.InvalidCaptcha, d.InvalidCaptcha)
	fill(&m.CodeRequired, d.CodeRequired)
	fill(&m.ContactNotFound, d.ContactNotFound)
	fill(&m.Banned, d.Banned)
	fill(&m.CannotRecover, d.CannotRecover)
	fill(&m.OutOfTries, d.OutOfTries)
	fill(&m.InvalidOrExpiredCode, d.InvalidOrExpiredCode)
	fill(&m.InvalidCode, d.InvalidCode)
	fill(&m.PasswordEmpty, d.PasswordEmpty)
	fill(&m.PasswordTooShort, d.PasswordTooShort)
	fill(&m.PasswordMismatch, d.PasswordMismatch)
	fill(&m.TimeoutError, d.TimeoutError)
	fill(&m.TimeoutInfo, d.TimeoutInfo)
	fill(&m.SentEmail, d.SentEmail)
	fill(&m.SentEmailGenerate, d.SentEmailGenerate)
	fill(&m.SentEmailHidden, d.SentEmailHidden)
	fill(&m.SentEmailHiddenGenerate, d.SentEmailHiddenGenerate)
	fill(&m.SentSMS, d.SentSMS)
	fill(&m.GeneratedPasswordByEmail, d.GeneratedPasswordByEmail)
	fill(&m.GeneratedPasswordBySMS, d.GeneratedPasswordBySMS)
	return m
}
