// Package goRecovery provides a password recovery engine: a user who forgot
// a password receives a one-time link by email or a numeric code by SMS,
// proves control of that address and sets (or is sent) a new password.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goRecovery is the public surface. It exposes [Engine], [Builder], [Config],
// [Request] and [Outcome]. Flow orchestration, secret stores and limiters
// live under internal/ and are never exported. Delivery channels live in
// the channel package so applications can plug their own transports.
//
// # What this package must NOT do
//
//   - Store passwords, hashes or codes in clear text anywhere except the
//     outgoing message.
//   - Reveal whether a login exists beyond the field errors the flow is
//     configured to return.
//   - Import any sub-package that re-imports goRecovery (no import cycles).
//
// # Performance contract
//
// Handle performs a bounded number of session round-trips per call. Channel
// delivery (SMTP, SMS gateway) dominates latency on the send path.
package goRecovery
