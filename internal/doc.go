// Package internal contains helpers private to goRecovery, mainly secure
// random generation for tokens, confirmation codes and session ids.
//
// # Sub-packages
//
//   - flows: the recovery state machine, fed by a dependency struct
//   - limiters: per-session cooldown and per-identifier throttle
//   - stores: Redis records for email tokens and SMS codes
//
// # What this package must NOT do
//
//   - Export types that appear in the public goRecovery API.
//   - Be imported by any package outside the goRecovery module.
package internal
