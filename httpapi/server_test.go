package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goRecovery "github.com/MrEthical07/goRecovery"
	"github.com/MrEthical07/goRecovery/channel"
)

type stubContacts struct {
	mu       sync.Mutex
	contacts map[string]goRecovery.Contact
}

func newStubContacts() *stubContacts {
	return &stubContacts{contacts: map[string]goRecovery.Contact{
		"c1": {ID: "c1", Name: "Ann", Email: "ann@example.com", Phone: "+15551234567", Locale: "en_US", PasswordHash: "$argon2id$old", IsUser: true},
	}}
}

func (s *stubContacts) GetContactByLogin(_ context.Context, login string, _ goRecovery.LoginType) (goRecovery.Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if strings.EqualFold(c.Email, login) || c.Phone == login {
			return c, true, nil
		}
	}
	return goRecovery.Contact{}, false, nil
}

func (s *stubContacts) GetContactByID(_ context.Context, id string) (goRecovery.Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	return c, ok, nil
}

func (s *stubContacts) GetContactWithPasswordByPhone(_ context.Context, phone string) (goRecovery.Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.Phone == phone && c.PasswordHash != "" {
			return c, true, nil
		}
	}
	return goRecovery.Contact{}, false, nil
}

func (s *stubContacts) HasEmail(_ context.Context, id, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.EqualFold(s.contacts[id].Email, email), nil
}

func (s *stubContacts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contacts[id]
	c.PasswordHash = hash
	s.contacts[id] = c
	return nil
}

type testServer struct {
	handler   http.Handler
	transport *channel.DevTransport
	mr        *miniredis.Miniredis
}

func testConfig() goRecovery.Config {
	cfg := goRecovery.DefaultConfig()
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

func newTestServer(t *testing.T, cfg goRecovery.Config, opts Options) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	transport := channel.NewDevTransport(nil)

	engine, err := goRecovery.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithContactProvider(newStubContacts()).
		WithMailer(transport).
		WithSMSSender(transport).
		WithMetricsEnabled(true).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testServer{handler: NewRouter(engine, opts), transport: transport, mr: mr}
}

func (s *testServer) do(t *testing.T, method, target string, body url.Values, header http.Header, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == DefaultSessionCookie {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func decodeOutcome(t *testing.T, rr *httptest.ResponseRecorder) goRecovery.Outcome {
	t.Helper()
	var out goRecovery.Outcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

var jsonAccept = http.Header{"Accept": []string{"application/json"}}

var keyPattern = regexp.MustCompile(`key=([A-Za-z0-9_\-%]+)`)

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{})

	rr := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestFormRenderSetsSessionCookie(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{})

	rr := s.do(t, http.MethodGet, "/forgotpassword/", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	c := sessionCookie(t, rr)
	assert.True(t, c.HttpOnly)
	assert.Len(t, c.Value, 36)

	out := decodeOutcome(t, rr)
	require.NotNil(t, out.Options)
	assert.Equal(t, []string{"email", "sms"}, out.Options.Channels)
}

func TestEmailRecoveryOverJSON(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Enabled = true
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	s := newTestServer(t, cfg, Options{})

	rr := s.do(t, http.MethodPost, "/forgotpassword/", url.Values{"login": {"ann@example.com"}}, jsonAccept)
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookie(t, rr)
	out := decodeOutcome(t, rr)
	assert.True(t, out.SentOK)
	assert.Empty(t, out.Redirect)

	mail := s.transport.Mail()
	require.Len(t, mail, 1)
	m := keyPattern.FindStringSubmatch(mail[0].Body)
	require.NotNil(t, m)
	key, err := url.QueryUnescape(m[1])
	require.NoError(t, err)

	rr = s.do(t, http.MethodPost, "/forgotpassword/", url.Values{
		"key":              {key},
		"password":         {"pw-123456"},
		"password_confirm": {"pw-123456"},
	}, jsonAccept, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	out = decodeOutcome(t, rr)
	require.NotNil(t, out.Contact)
	assert.Equal(t, "c1", out.Contact.ID)
	require.NotEmpty(t, out.AccessToken)

	rr = s.do(t, http.MethodGet, "/forgotpassword/me", nil, http.Header{"Authorization": {"Bearer " + out.AccessToken}})
	require.Equal(t, http.StatusOK, rr.Code)
	var me map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, "c1", me["contact_id"])
	assert.Equal(t, cookie.Value, me["session_id"])

	rr = s.do(t, http.MethodGet, "/forgotpassword/last", nil, nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "c1", decodeOutcome(t, rr).Contact.ID)
}

func TestBrowserCodeConfirmRedirects(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{})

	rr := s.do(t, http.MethodPost, "/forgotpassword/", url.Values{"login": {"+15551234567"}}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookie(t, rr)

	sms := s.transport.SMS()
	require.Len(t, sms, 1)
	fields := strings.Fields(sms[0].Body)
	code := fields[len(fields)-1]

	rr = s.do(t, http.MethodPost, "/forgotpassword/", url.Values{
		"login":             {"+15551234567"},
		"confirmation_code": {code},
	}, nil, cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "https://example.com/forgotpassword/set/?key="))
}

func TestOneTimeAuthTypeIsNotFound(t *testing.T) {
	cfg := testConfig()
	cfg.Recovery.AuthType = goRecovery.AuthOneTimePassword
	s := newTestServer(t, cfg, Options{})

	rr := s.do(t, http.MethodGet, "/forgotpassword/", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rr.Body.String())
}

func TestLastResponseWithoutSession(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{})

	rr := s.do(t, http.MethodGet, "/forgotpassword/last", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGuardRejectsMissingToken(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{})

	rr := s.do(t, http.MethodGet, "/forgotpassword/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSessionBackendDownIsUnavailable(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{})
	s.mr.Close()

	rr := s.do(t, http.MethodPost, "/forgotpassword/", url.Values{"login": {"ann@example.com"}}, jsonAccept)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{ExposeMetrics: true})

	s.do(t, http.MethodPost, "/forgotpassword/", url.Values{"login": {"ann@example.com"}}, jsonAccept)

	rr := s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "gorecovery_sent_total 1")
}

func TestMetricsHiddenByDefault(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{})

	rr := s.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{AllowedOrigins: []string{"https://app.example.com"}})

	rr := s.do(t, http.MethodOptions, "/forgotpassword/", nil, http.Header{
		"Origin":                        {"https://app.example.com"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDEchoedOrAssigned(t *testing.T) {
	s := newTestServer(t, testConfig(), Options{})

	rr := s.do(t, http.MethodGet, "/health", nil, http.Header{"X-Request-Id": {"req-42"}})
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))

	rr = s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Len(t, rr.Header().Get("X-Request-ID"), 36)
}
