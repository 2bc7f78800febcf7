// Package session provides per-visitor recovery state keyed by a session id,
// with a Redis-backed [RedisStore] for production and a [MemoryStore] for tests
// and single-process deployments.
//
// # Binary encoding
//
// Structured values such as [SendDetails] are stored as a compact versioned
// binary format. The encoder is append-only: new versions add fields but
// never reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] contract and the typed accessors in [State].
// It does NOT decide when the cooldown applies, which channel was used or
// what a recovery response looks like; those belong to the Engine and to
// internal/flows.
//
// # What this package must NOT do
//
//   - Import goRecovery or any channel implementation.
//   - Store plaintext recovery secrets.
package session
