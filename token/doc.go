// Package token issues the short-lived access token handed to a contact
// whose session was authenticated after setting a new password, and
// verifies it for downstream services.
//
// Ed25519 is the default signing method; HS256 is available for
// single-service deployments.
package token
