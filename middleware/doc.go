// Package middleware exposes an HTTP guard for routes that require the
// access token issued when a password is set through recovery.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// parse tokens itself; decisions are delegated to Engine.ParseAccessToken.
//
// # What this package must NOT do
//
//   - Create tokens.
//   - Access Redis (Engine handles I/O).
package middleware
