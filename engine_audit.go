package goRecovery

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goRecovery/channel"
	"github.com/MrEthical07/goRecovery/internal/limiters"
)

const (
	auditEventRecoveryRequest   = "recovery_request"
	auditEventRecoverySent      = "recovery_sent"
	auditEventRecoveryFailed    = "recovery_failed"
	auditEventCodeConfirm       = "code_confirm"
	auditEventHashInvalid       = "hash_invalid"
	auditEventPasswordSet       = "password_set"
	auditEventPasswordGenerated = "password_generated"
)

// AuditErrorCode is the stable, non-sensitive error string carried in
// AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidSecret      AuditErrorCode = "invalid_secret"
	auditErrOutOfTries         AuditErrorCode = "out_of_tries"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrSessionUnavailable AuditErrorCode = "session_unavailable"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	contactID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ContactID: contactID,
		SessionID: sessionID,
		RequestID: requestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, limiters.ErrRecoveryRateLimited):
		return auditErrRateLimited
	case errors.Is(err, channel.ErrOutOfTries):
		return auditErrOutOfTries
	case errors.Is(err, ErrInvalidSecret),
		errors.Is(err, channel.ErrInvalidSecret):
		return auditErrInvalidSecret
	case errors.Is(err, ErrDeliveryFailed),
		errors.Is(err, channel.ErrDelivery),
		errors.Is(err, channel.ErrNoAddress):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrSessionUnavailable):
		return auditErrSessionUnavailable
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
