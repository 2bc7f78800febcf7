package channel

import (
	"bytes"
	"fmt"
	"text/template"
)

// MessageData is the value every message template is executed with.
type MessageData struct {
	Name        string
	Address     string
	SiteName    string
	SiteURL     string
	LoginURL    string
	RecoveryURL string
	Code        string
	Password    string
}

// Templates holds the text/template sources for every outgoing message.
// Empty fields fall back to the defaults.
type Templates struct {
	RecoverySubject string
	RecoveryBody    string
	PasswordSubject string
	PasswordBody    string
	SMSRecovery     string
	SMSPassword     string
}

// DefaultTemplates returns the built-in message copy.
func DefaultTemplates() Templates {
	return Templates{
		RecoverySubject: `{{.SiteName}}: password recovery`,
		RecoveryBody: `Hello{{if .Name}}, {{.Name}}{{end}}!

Someone requested a password recovery for your account at {{.SiteName}}.
To continue, open this link:

{{.RecoveryURL}}

If you did not request this, ignore this message.
`,
		PasswordSubject: `{{.SiteName}}: your new password`,
		PasswordBody: `Hello{{if .Name}}, {{.Name}}{{end}}!

Your new password for {{.SiteName}} is: {{.Password}}

Log in at {{.LoginURL}}
`,
		SMSRecovery: `{{.SiteName}} confirmation code: {{.Code}}`,
		SMSPassword: `{{.SiteName}} new password: {{.Password}}`,
	}
}

type compiledTemplates struct {
	recoverySubject *template.Template
	recoveryBody    *template.Template
	passwordSubject *template.Template
	passwordBody    *template.Template
	smsRecovery     *template.Template
	smsPassword     *template.Template
}

func compileTemplates(t Templates) (*compiledTemplates, error) {
	def := DefaultTemplates()
	pick := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}

	out := &compiledTemplates{}
	for _, item := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"recovery_subject", pick(t.RecoverySubject, def.RecoverySubject), &out.recoverySubject},
		{"recovery_body", pick(t.RecoveryBody, def.RecoveryBody), &out.recoveryBody},
		{"password_subject", pick(t.PasswordSubject, def.PasswordSubject), &out.passwordSubject},
		{"password_body", pick(t.PasswordBody, def.PasswordBody), &out.passwordBody},
		{"sms_recovery", pick(t.SMSRecovery, def.SMSRecovery), &out.smsRecovery},
		{"sms_password", pick(t.SMSPassword, def.SMSPassword), &out.smsPassword},
	} {
		tpl, err := template.New(item.name).Option("missingkey=zero").Parse(item.src)
		if err != nil {
			return nil, fmt.Errorf("channel: parse %s template: %w", item.name, err)
		}
		*item.dst = tpl
	}
	return out, nil
}

func render(tpl *template.Template, data MessageData) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("channel: render %s: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
