package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

/* ==== SMTP ==== */

// SMTPConfig configures [SMTPMailer].
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPMailer sends plain-text mail through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	cfg  SMTPConfig
	now  func() time.Time
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, now: time.Now, send: smtp.SendMail}
}

func (s *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if s.cfg.Host == "" {
		return errors.New("smtp: host not configured")
	}
	from := s.cfg.FromEmail
	if from == "" {
		from = s.cfg.Username
	}

	var buf bytes.Buffer
	if s.cfg.FromName != "" {
		buf.WriteString("From: " + s.cfg.FromName + " <" + from + ">\r\n")
	} else {
		buf.WriteString("From: " + from + "\r\n")
	}
	buf.WriteString("To: " + msg.To + "\r\n")
	buf.WriteString("Subject: " + msg.Subject + "\r\n")
	buf.WriteString("Date: " + s.now().Format(time.RFC1123Z) + "\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.Body)

	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	done := make(chan error, 1)
	go func() { done <- s.send(addr, auth, from, []string{msg.To}, buf.Bytes()) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

/* ==== HTTP SMS GATEWAY ==== */

// HTTPSMSConfig configures [HTTPSMSSender].
type HTTPSMSConfig struct {
	Endpoint string
	APIKey   string
	Sender   string
	Timeout  time.Duration
}

// HTTPSMSSender posts {"from","to","text"} as JSON to a gateway endpoint
// and treats any 2xx status as delivered.
type HTTPSMSSender struct {
	cfg    HTTPSMSConfig
	client *http.Client
}

func NewHTTPSMSSender(cfg HTTPSMSConfig, client *http.Client) *HTTPSMSSender {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSMSSender{cfg: cfg, client: client}
}

type smsGatewayRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Text string `json:"text"`
}

func (h *HTTPSMSSender) SendSMS(ctx context.Context, phone, text string) error {
	if h.cfg.Endpoint == "" {
		return errors.New("sms gateway: endpoint not configured")
	}
	payload, err := json.Marshal(smsGatewayRequest{From: h.cfg.Sender, To: phone, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

/* ==== DEV ==== */

// DevTransport implements both [Mailer] and [SMSSender] by logging and
// keeping every message in memory. It is meant for local runs and tests.
type DevTransport struct {
	mu     sync.Mutex
	logger *log.Logger
	mail   []Message
	sms    []Message
	fail   error
}

// NewDevTransport returns a DevTransport logging to logger, or silently
// when logger is nil.
func NewDevTransport(logger *log.Logger) *DevTransport {
	return &DevTransport{logger: logger}
}

// FailWith makes every subsequent send return err. A nil err restores
// normal delivery.
func (d *DevTransport) FailWith(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func (d *DevTransport) Send(_ context.Context, msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.mail = append(d.mail, msg)
	if d.logger != nil {
		d.logger.Printf("dev mail to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Body)
	}
	return nil
}

func (d *DevTransport) SendSMS(_ context.Context, phone, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.sms = append(d.sms, Message{To: phone, Body: text})
	if d.logger != nil {
		d.logger.Printf("dev sms to=%s text=%q", phone, text)
	}
	return nil
}

// Mail returns a copy of every delivered email.
func (d *DevTransport) Mail() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.mail...)
}

// SMS returns a copy of every delivered text message.
func (d *DevTransport) SMS() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Message(nil), d.sms...)
}
