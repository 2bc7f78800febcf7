package goRecovery

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/MrEthical07/goRecovery/channel"
	"github.com/MrEthical07/goRecovery/internal/limiters"
	"github.com/MrEthical07/goRecovery/password"
	"github.com/MrEthical07/goRecovery/session"
	"github.com/MrEthical07/goRecovery/token"
)

// Engine runs the password recovery flow. Build one with New().Build();
// it is safe for concurrent use.
type Engine struct {
	config       Config
	channels     []channel.Channel
	state        *session.State
	cooldown     *limiters.Cooldown
	throttle     *limiters.RecoveryLimiter
	contacts     ContactProvider
	captcha      CaptchaVerifier
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	tokens       *token.Manager
	logger       Logger
}

// Close flushes pending audit events and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByEvent breaks AuditDropped down by event type. Event types
// with no drops are absent.
func (e *Engine) AuditDroppedByEvent() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByEvent()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) observeDelivery(channelType string, password, delivered bool) {
	if e == nil || e.metrics == nil {
		return
	}
	kind := DeliveryRecovery
	if password {
		kind = DeliveryPassword
	}
	e.metrics.ObserveDelivery(channelType, kind, delivered)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Channels returns the enabled channel types in default priority order.
func (e *Engine) Channels() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.channels))
	for _, ch := range e.channels {
		out = append(out, string(ch.Type()))
	}
	return out
}

// LastResponse returns the outcome of the last request handled for the
// session, or nil if there was none.
func (e *Engine) LastResponse(ctx context.Context, sessionID string) (*Outcome, error) {
	if e == nil || e.state == nil {
		return nil, ErrEngineNotReady
	}
	data, err := e.state.LastResponse(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, nil
		}
		return nil, ErrSessionUnavailable
	}
	if len(data) == 0 {
		return nil, nil
	}

	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		e.logf("decode last response: %v", err)
		return nil, nil
	}
	out.SessionID = sessionID
	return &out, nil
}

// AuthenticatedContact returns the contact the session was authenticated
// as after a password was set, or "" if none.
func (e *Engine) AuthenticatedContact(ctx context.Context, sessionID string) (string, error) {
	if e == nil || e.state == nil {
		return "", ErrEngineNotReady
	}
	id, err := e.state.AuthContact(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return "", nil
		}
		return "", ErrSessionUnavailable
	}
	return id, nil
}

// ParseAccessToken verifies a token issued after a password was set.
func (e *Engine) ParseAccessToken(tokenStr string) (*token.Claims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	return e.tokens.Parse(tokenStr)
}
