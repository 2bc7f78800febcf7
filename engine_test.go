package goRecovery

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRecovery/channel"
	"github.com/MrEthical07/goRecovery/password"
)

type memContacts struct {
	mu       sync.Mutex
	contacts map[string]Contact

	updatePasswordCalls int
}

func newMemContacts() *memContacts {
	return &memContacts{
		contacts: map[string]Contact{
			"c1": {ID: "c1", Name: "Ann", Email: "ann@example.com", Phone: "+15551234567", Locale: "en_US", PasswordHash: "$argon2id$old", IsUser: true},
			"c2": {ID: "c2", Name: "Bob", Email: "bob@example.com", Banned: true, IsUser: true},
			"c3": {ID: "c3", Name: "Eve", Email: "eve@example.com", IsUser: false},
		},
	}
}

func (m *memContacts) GetContactByLogin(_ context.Context, login string, _ LoginType) (Contact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if strings.EqualFold(c.Email, login) || (c.Phone != "" && c.Phone == login) || c.ID == login {
			return c, true, nil
		}
	}
	return Contact{}, false, nil
}

func (m *memContacts) GetContactByID(_ context.Context, id string) (Contact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	return c, ok, nil
}

func (m *memContacts) GetContactWithPasswordByPhone(_ context.Context, phone string) (Contact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.Phone == phone && c.PasswordHash != "" {
			return c, true, nil
		}
	}
	return Contact{}, false, nil
}

func (m *memContacts) add(c Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.ID] = c
}

func (m *memContacts) HasEmail(_ context.Context, contactID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[contactID]
	return ok && strings.EqualFold(c.Email, email), nil
}

func (m *memContacts) UpdatePasswordHash(_ context.Context, contactID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.contacts[contactID]
	c.PasswordHash = hash
	m.contacts[contactID] = c
	m.updatePasswordCalls++
	return nil
}

func (m *memContacts) passwordHash(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contacts[id].PasswordHash
}

type staticCaptcha bool

func (s staticCaptcha) Verify(context.Context, url.Values) (bool, error) {
	return bool(s), nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	return mr, client
}

func recoveryTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Site.URL = "https://example.com/"
	cfg.Site.Name = "Example"
	cfg.Site.LoginURL = "https://example.com/login/"
	cfg.Site.SetPasswordURL = "https://example.com/forgotpassword/set/"
	cfg.Site.HomeURL = "https://example.com/"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testEnv struct {
	engine    *Engine
	contacts  *memContacts
	transport *channel.DevTransport
	mr        *miniredis.Miniredis
}

func newRecoveryTestEngine(t *testing.T, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	contacts := newMemContacts()
	transport := channel.NewDevTransport(nil)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithContactProvider(contacts).
		WithMailer(transport).
		WithSMSSender(transport)
	for _, opt := range opts {
		opt(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		mr.Close()
	})

	return &testEnv{engine: engine, contacts: contacts, transport: transport, mr: mr}
}

func form(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

var recoveryKeyPattern = regexp.MustCompile(`key=([A-Za-z0-9_\-%]+)`)

func lastMailKey(t *testing.T, tr *channel.DevTransport) string {
	t.Helper()

	mail := tr.Mail()
	if len(mail) == 0 {
		t.Fatal("expected a recovery mail")
	}
	m := recoveryKeyPattern.FindStringSubmatch(mail[len(mail)-1].Body)
	if m == nil {
		t.Fatalf("recovery link missing from mail body: %q", mail[len(mail)-1].Body)
	}
	key, err := url.QueryUnescape(m[1])
	if err != nil {
		t.Fatalf("unescape key: %v", err)
	}
	return key
}

func lastSMSCode(t *testing.T, tr *channel.DevTransport) string {
	t.Helper()

	sms := tr.SMS()
	if len(sms) == 0 {
		t.Fatal("expected a recovery sms")
	}
	fields := strings.Fields(sms[len(sms)-1].Body)
	return fields[len(fields)-1]
}

func TestBuildRequiresContactProvider(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without contact provider")
	}
}

func TestBuildWithoutTransportsHasNoChannels(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	_, err := New().
		WithConfig(recoveryTestConfig()).
		WithRedis(rdb).
		WithContactProvider(newMemContacts()).
		Build()
	if err != ErrChannelMissing {
		t.Fatalf("expected ErrChannelMissing, got %v", err)
	}
}

func TestBuildIsSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	tr := channel.NewDevTransport(nil)
	b := New().
		WithConfig(recoveryTestConfig()).
		WithRedis(rdb).
		WithContactProvider(newMemContacts()).
		WithMailer(tr)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
	if got := engine.Channels(); len(got) != 1 || got[0] != "email" {
		t.Fatalf("expected only the email channel, got %v", got)
	}
}

func TestBuildRequiresCaptchaVerifier(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	cfg := recoveryTestConfig()
	cfg.Recovery.NeedCaptcha = true
	_, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithContactProvider(newMemContacts()).
		WithMailer(channel.NewDevTransport(nil)).
		Build()
	if err == nil {
		t.Fatal("expected error without captcha verifier")
	}
}

func TestHandleFormRender(t *testing.T) {
	env := newRecoveryTestEngine(t, recoveryTestConfig())

	out, err := env.engine.Handle(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.SessionID == "" {
		t.Fatal("expected a new session id")
	}
	if out.Options == nil || out.Options.AuthType != AuthUserPassword {
		t.Fatalf("unexpected options: %+v", out.Options)
	}
	if strings.Join(out.Options.Channels, ",") != "email,sms" {
		t.Fatalf("unexpected channels: %v", out.Options.Channels)
	}
	if len(out.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", out.Errors)
	}
}

func TestHandleOneTimePasswordIsNotFound(t *testing.T) {
	cfg := recoveryTestConfig()
	cfg.Recovery.AuthType = AuthOneTimePassword
	env := newRecoveryTestEngine(t, cfg, func(b *Builder) { b.WithMetricsEnabled(true) })

	if _, err := env.engine.Handle(context.Background(), Request{SessionID: "s1"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricNotFound]; got != 1 {
		t.Fatalf("expected not found metric 1, got %d", got)
	}
}

func TestHandleEmailRecoveryEndToEnd(t *testing.T) {
	env := newRecoveryTestEngine(t, recoveryTestConfig())
	ctx := context.Background()

	out, err := env.engine.Handle(ctx, Request{SessionID: "s1", Post: true, Params: form("login", "ann@example.com")})
	if err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	if !out.SentOK || out.ChannelType != "email" || out.Address != "ann@example.com" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !strings.Contains(out.SentMessage, "ann@example.com") {
		t.Fatalf("sent message should name the address: %q", out.SentMessage)
	}

	key := lastMailKey(t, env.transport)
	if !strings.Contains(env.transport.Mail()[0].Body, "https://example.com/forgotpassword/set/?key=") {
		t.Fatalf("unexpected recovery link: %q", env.transport.Mail()[0].Body)
	}

	out, err = env.engine.Handle(ctx, Request{SessionID: "s1", Params: form("key", key)})
	if err != nil {
		t.Fatalf("open link failed: %v", err)
	}
	if !out.SetPassword || out.Address != "ann@example.com" || out.Locale != "en_US" {
		t.Fatalf("unexpected set form outcome: %+v", out)
	}

	out, err = env.engine.Handle(ctx, Request{SessionID: "s1", Post: true, Params: form("key", key, "password", "a", "password_confirm", "b")})
	if err != nil {
		t.Fatalf("set password failed: %v", err)
	}
	if out.Errors["password_confirm"].Message != defaultMessages().PasswordMismatch {
		t.Fatalf("expected mismatch error, got %v", out.Errors)
	}

	out, err = env.engine.Handle(ctx, Request{SessionID: "s1", Post: true, Params: form("key", key, "password", "n3w-secret", "password_confirm", "n3w-secret")})
	if err != nil {
		t.Fatalf("set password failed: %v", err)
	}
	if len(out.Errors) != 0 || out.Contact == nil || out.Contact.ID != "c1" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	hasher, _ := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	ok, err := hasher.Verify("n3w-secret", env.contacts.passwordHash("c1"))
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}

	id, err := env.engine.AuthenticatedContact(ctx, "s1")
	if err != nil || id != "c1" {
		t.Fatalf("expected session authenticated as c1, got %q err=%v", id, err)
	}

	if _, err := env.engine.Handle(ctx, Request{SessionID: "s1", Params: form("key", key)}); err != ErrNotFound {
		t.Fatalf("expected used key to be rejected, got %v", err)
	}
}

func TestHandleSMSRecoveryEndToEnd(t *testing.T) {
	env := newRecoveryTestEngine(t, recoveryTestConfig())
	ctx := context.Background()

	out, err := env.engine.Handle(ctx, Request{SessionID: "s2", Post: true, Params: form("login", "+15551234567")})
	if err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	if out.ChannelType != "sms" || out.Timeout != 60 || out.TimeoutMessage == "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(env.transport.Mail()) != 0 {
		t.Fatal("phone login must try sms first")
	}

	code := lastSMSCode(t, env.transport)

	out, err = env.engine.Handle(ctx, Request{SessionID: "s2", Post: true, Params: form("login", "+15551234567", "confirmation_code", "000000x")})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if out.Errors["confirmation_code"].Code == "" {
		t.Fatalf("expected coded confirmation error, got %v", out.Errors)
	}

	out, err = env.engine.Handle(ctx, Request{SessionID: "s2", Post: true, Params: form("login", "+15551234567", "confirmation_code", code)})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !out.CodeConfirmed || out.Hash == "" {
		t.Fatalf("expected confirmed code, got %+v", out)
	}

	out, err = env.engine.Handle(ctx, Request{SessionID: "s2", Post: true, Params: form("hash", out.Hash, "password", "fresh-pass", "password_confirm", "fresh-pass")})
	if err != nil {
		t.Fatalf("set password failed: %v", err)
	}
	if out.Contact == nil || out.Contact.ID != "c1" || out.ChannelType != "sms" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if env.contacts.passwordHash("c1") == "" {
		t.Fatal("expected password hash to be stored")
	}
}

func TestHandleSMSRecoveryPhoneLookupNeedsPassword(t *testing.T) {
	tests := []struct {
		name    string
		contact Contact
		wantSet bool
	}{
		{
			name:    "non-user with password recovers",
			contact: Contact{ID: "cust", Phone: "+15550001111", PasswordHash: "$argon2id$old", IsUser: false},
			wantSet: true,
		},
		{
			name:    "user without password is rejected",
			contact: Contact{ID: "nopw", Phone: "+15550002222", IsUser: true},
			wantSet: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := recoveryTestConfig()
			cfg.Recovery.RequireIsUser = false
			env := newRecoveryTestEngine(t, cfg)
			env.contacts.add(tc.contact)
			ctx := context.Background()

			if _, err := env.engine.Handle(ctx, Request{SessionID: "p1", Post: true, Params: form("login", tc.contact.Phone)}); err != nil {
				t.Fatalf("forgot failed: %v", err)
			}
			code := lastSMSCode(t, env.transport)

			out, err := env.engine.Handle(ctx, Request{SessionID: "p1", Post: true, Params: form("login", tc.contact.Phone, "confirmation_code", code)})
			if err != nil || !out.CodeConfirmed {
				t.Fatalf("confirm failed: %+v %v", out, err)
			}

			out, err = env.engine.Handle(ctx, Request{SessionID: "p1", Post: true, Params: form("hash", out.Hash, "password", "fresh-pass", "password_confirm", "fresh-pass")})
			if !tc.wantSet {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %+v %v", out, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("set password failed: %v", err)
			}
			if out.Contact == nil || out.Contact.ID != tc.contact.ID {
				t.Fatalf("unexpected outcome: %+v", out)
			}
			if got := env.contacts.passwordHash(tc.contact.ID); got == "" || got == tc.contact.PasswordHash {
				t.Fatalf("expected a new password hash, got %q", got)
			}
		})
	}
}

func TestHandleRedirectsOnCodeConfirm(t *testing.T) {
	cfg := recoveryTestConfig()
	cfg.Recovery.Redirects = true
	env := newRecoveryTestEngine(t, cfg)
	ctx := context.Background()

	if _, err := env.engine.Handle(ctx, Request{SessionID: "s3", Post: true, Params: form("login", "+15551234567")}); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	code := lastSMSCode(t, env.transport)

	out, err := env.engine.Handle(ctx, Request{SessionID: "s3", Post: true, Params: form("login", "+15551234567", "confirmation_code", code)})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !strings.HasPrefix(out.Redirect, "https://example.com/forgotpassword/set/?key=") {
		t.Fatalf("unexpected redirect %q", out.Redirect)
	}
}

func TestHandleCooldown(t *testing.T) {
	env := newRecoveryTestEngine(t, recoveryTestConfig())
	ctx := context.Background()
	req := Request{SessionID: "s4", Post: true, Params: form("login", "ann@example.com")}

	if _, err := env.engine.Handle(ctx, req); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	out, err := env.engine.Handle(ctx, req)
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	fe, ok := out.Errors["timeout"]
	if !ok || fe.Timeout != 60 {
		t.Fatalf("expected timeout error, got %v", out.Errors)
	}
	if len(env.transport.Mail()) != 1 {
		t.Fatalf("expected a single mail, got %d", len(env.transport.Mail()))
	}
}

func TestHandleSubSecondCooldownKeepsTimeoutShape(t *testing.T) {
	cfg := recoveryTestConfig()
	cfg.Recovery.Timeout = 500 * time.Millisecond
	env := newRecoveryTestEngine(t, cfg)
	ctx := context.Background()
	req := Request{SessionID: "s4ms", Post: true, Params: form("login", "ann@example.com")}

	if _, err := env.engine.Handle(ctx, req); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	out, err := env.engine.Handle(ctx, req)
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	if got := out.Errors["timeout"].Timeout; got != 1 {
		t.Fatalf("expected timeout rounded up to 1s, got %v", out.Errors)
	}

	data, err := json.Marshal(out.Errors)
	if err != nil {
		t.Fatalf("marshal errors: %v", err)
	}
	if !strings.Contains(string(data), `"timeout":{"message":`) || !strings.Contains(string(data), `"timeout":1}`) {
		t.Fatalf("timeout error lost its object shape: %s", data)
	}
}

func TestHandleThrottle(t *testing.T) {
	cfg := recoveryTestConfig()
	cfg.Recovery.Timeout = 0
	cfg.Throttle.EnableIdentifierThrottle = true
	cfg.Throttle.MaxRequests = 1
	cfg.Throttle.Window = time.Hour
	env := newRecoveryTestEngine(t, cfg)
	ctx := context.Background()

	if _, err := env.engine.Handle(ctx, Request{SessionID: "a", Post: true, Params: form("login", "ann@example.com")}); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	out, err := env.engine.Handle(ctx, Request{SessionID: "b", Post: true, Params: form("login", "ann@example.com")})
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	if got := out.Errors["timeout"].Timeout; got != 3600 {
		t.Fatalf("expected throttle window as timeout, got %v", out.Errors)
	}
}

func TestHandleContactErrors(t *testing.T) {
	env := newRecoveryTestEngine(t, recoveryTestConfig())
	ctx := context.Background()
	msgs := defaultMessages()

	out, _ := env.engine.Handle(ctx, Request{SessionID: "e1", Post: true, Params: form("login", "")})
	if out.Errors["login"].Message != msgs.Required {
		t.Fatalf("expected required error, got %v", out.Errors)
	}

	out, _ = env.engine.Handle(ctx, Request{SessionID: "e2", Post: true, Params: form("login", "nobody@example.com")})
	if out.Errors["login"].Message != msgs.ContactNotFound {
		t.Fatalf("expected not found error, got %v", out.Errors)
	}

	out, _ = env.engine.Handle(ctx, Request{SessionID: "e3", Post: true, Params: form("login", "bob@example.com")})
	if !strings.Contains(out.Errors["ban"].Message, "bob@example.com") {
		t.Fatalf("expected ban error, got %v", out.Errors)
	}

	out, _ = env.engine.Handle(ctx, Request{SessionID: "e4", Post: true, Params: form("login", "eve@example.com")})
	if out.Errors["login"].Message != msgs.ContactNotFound {
		t.Fatalf("non-users must not recover, got %v", out.Errors)
	}
}

func TestHandleCaptcha(t *testing.T) {
	cfg := recoveryTestConfig()
	cfg.Recovery.NeedCaptcha = true
	env := newRecoveryTestEngine(t, cfg, func(b *Builder) { b.WithCaptcha(staticCaptcha(false)) })

	out, err := env.engine.Handle(context.Background(), Request{SessionID: "c", Post: true, Params: form("login", "ann@example.com")})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Errors["captcha"].Message != defaultMessages().InvalidCaptcha {
		t.Fatalf("expected captcha error, got %v", out.Errors)
	}
	if len(env.transport.Mail()) != 0 {
		t.Fatal("nothing must be sent on captcha failure")
	}
}

func TestHandleAllChannelsFail(t *testing.T) {
	env := newRecoveryTestEngine(t, recoveryTestConfig())
	env.transport.FailWith(context.DeadlineExceeded)

	out, err := env.engine.Handle(context.Background(), Request{SessionID: "f", Post: true, Params: form("login", "ann@example.com")})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out.Errors["sent"].Message != defaultMessages().CannotRecover {
		t.Fatalf("expected cannot recover error, got %v", out.Errors)
	}
}

func TestHandleGeneratePassword(t *testing.T) {
	cfg := recoveryTestConfig()
	cfg.Recovery.AuthType = AuthGeneratePassword
	env := newRecoveryTestEngine(t, cfg)
	ctx := context.Background()

	out, err := env.engine.Handle(ctx, Request{SessionID: "g", Post: true, Params: form("login", "ann@example.com")})
	if err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	if !strings.Contains(out.SentMessage, "After confirmation") {
		t.Fatalf("unexpected sent message %q", out.SentMessage)
	}
	key := lastMailKey(t, env.transport)

	out, err = env.engine.Handle(ctx, Request{SessionID: "g", Params: form("key", key)})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !out.GeneratedPasswordSent || out.UsedAddress != "ann@example.com" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	mail := env.transport.Mail()
	if len(mail) != 2 || !strings.Contains(mail[1].Subject, "new password") {
		t.Fatalf("expected password mail, got %+v", mail)
	}
	if env.contacts.passwordHash("c1") == "" {
		t.Fatal("expected generated password to be stored")
	}
	if _, err := env.engine.Handle(ctx, Request{SessionID: "g", Params: form("key", key)}); err != ErrNotFound {
		t.Fatalf("expected key to be single use, got %v", err)
	}
}

func TestHandleIssuesAccessToken(t *testing.T) {
	cfg := recoveryTestConfig()
	cfg.JWT.Enabled = true
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	env := newRecoveryTestEngine(t, cfg)
	ctx := context.Background()

	if _, err := env.engine.Handle(ctx, Request{SessionID: "j", Post: true, Params: form("login", "ann@example.com")}); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	key := lastMailKey(t, env.transport)

	out, err := env.engine.Handle(ctx, Request{SessionID: "j", Post: true, Params: form("key", key, "password", "pw-123456", "password_confirm", "pw-123456")})
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	claims, err := env.engine.ParseAccessToken(out.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.CID != "c1" || claims.SID != "j" || claims.Locale != "en_US" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLastResponseRoundTrip(t *testing.T) {
	env := newRecoveryTestEngine(t, recoveryTestConfig())
	ctx := context.Background()

	if got, err := env.engine.LastResponse(ctx, "lr"); err != nil || got != nil {
		t.Fatalf("expected no last response, got %+v err=%v", got, err)
	}

	if _, err := env.engine.Handle(ctx, Request{SessionID: "lr", Post: true, Params: form("login", "nobody@example.com")}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	got, err := env.engine.LastResponse(ctx, "lr")
	if err != nil || got == nil {
		t.Fatalf("expected last response, got %+v err=%v", got, err)
	}
	if got.Login != "nobody@example.com" || got.Errors["login"].Message != defaultMessages().ContactNotFound {
		t.Fatalf("unexpected last response: %+v", got)
	}
}

func TestHandleSessionStoreFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(recoveryTestConfig()).
		WithRedis(rdb).
		WithContactProvider(newMemContacts()).
		WithMailer(channel.NewDevTransport(nil)).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	mr.Close()

	_, err = engine.Handle(context.Background(), Request{SessionID: "x", Post: true, Params: form("login", "ann@example.com")})
	if err != ErrSessionUnavailable {
		t.Fatalf("expected ErrSessionUnavailable, got %v", err)
	}
}
