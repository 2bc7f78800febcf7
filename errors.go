package goRecovery

import "errors"

var (
	// ErrNotFound means the recovery flow is unavailable for this request. HTTP
	// adapters translate it to 404 without further detail.
	ErrNotFound = errors.New("not found")
	// ErrEngineNotReady is returned when the engine was not built or lacks a
	// required collaborator.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrChannelMissing is returned by Build when no verification channel can
	// be configured.
	ErrChannelMissing = errors.New("no verification channel configured")
	// ErrSessionUnavailable is returned when session state cannot be read or
	// written.
	ErrSessionUnavailable = errors.New("recovery session unavailable")
	// ErrUnavailable is returned when the contact provider or a secret store
	// fails.
	ErrUnavailable = errors.New("recovery backend unavailable")
	// ErrRateLimited is used in audit events for cooldown and throttle hits.
	ErrRateLimited = errors.New("recovery rate limited")
	// ErrInvalidSecret is used in audit events for rejected hashes and codes.
	ErrInvalidSecret = errors.New("invalid recovery secret")
	// ErrDeliveryFailed is used in audit events when no channel could deliver.
	ErrDeliveryFailed = errors.New("recovery delivery failed")
)
