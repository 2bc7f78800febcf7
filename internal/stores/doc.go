// Package stores provides Redis-backed, short-lived secret records for the
// recovery channels: email recovery tokens and SMS confirmation codes.
//
// # Design
//
// Each store persists a versioned, binary-encoded record with a TTL. Keys and
// stored values carry SHA-256 digests of the secret, never the plaintext. The
// SMS store checks codes with a Lua script so that the tries budget, the
// comparison and the attempt bump happen in one atomic step.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for pending secrets.
// It does NOT generate tokens or codes, deliver messages, or decide what a
// failed check means to the user; that belongs to package channel and to the
// flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import goRecovery or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
