// Package limiters bounds how often recovery messages can be sent.
//
// # Limiters
//
//   - [Cooldown]: one send per session per timeout, backed by the session's
//     last-send timestamp.
//   - [RecoveryLimiter]: optional fixed-window throttle per login and per
//     client IP, Redis INCR + EXPIRE on first hit.
//
// Both are nil-safe: a nil receiver allows every request.
//
// # What this package must NOT do
//
//   - Import goRecovery or any sibling internal package.
//   - Decide what a limit means to the user. The flow turns limit errors
//     into the timeout field error.
package limiters
