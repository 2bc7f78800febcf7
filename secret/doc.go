// Package secret implements the recovery hash codec.
//
// A recovery hash is the opaque string a client presents to prove that a
// verification channel has accepted its recovery attempt. It has two shapes:
//
//   - email: the token issued by the email channel, used as-is.
//   - sms: prefix(16) + confirmation code + suffix(16), where the affixes are
//     cut from a digest of random material.
//
// [Hash] keeps the shape as a tagged value so callers never re-slice the
// string at each use site.
//
// # Compatibility
//
// The SMS affixes are not derived from the code, so the wrapping hides the
// code's position and length but does not bind it. Links issued in this
// format stay valid; do not change the layout without migrating them.
//
// # What this package must NOT do
//
//   - Validate a code against a channel. That belongs to package channel.
//   - Store hashes.
package secret
