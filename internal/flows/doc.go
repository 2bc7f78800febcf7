// Package flows contains the recovery state machine behind Engine.Handle.
//
// RunRecovery accepts a typed dependency struct (RecoveryDeps) of closures
// and returns a RecoveryOutcome. Contact lookups, session state, channels,
// limiters, audit and metrics all arrive through that struct, so the flow can
// be tested with plain fakes.
//
// # Architecture boundaries
//
// The flow decides what a request means: show the form, send a secret,
// confirm a code, set or generate a password. It does NOT own the session
// store, the channels or the contact storage. Ownership stays with the
// Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goRecovery (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through RecoveryDeps.
package flows
