// Package channel implements the out-of-band delivery and verification
// mechanisms used by password recovery: an [EmailChannel] that mails a
// recovery link carrying an opaque token, and an [SMSChannel] that texts a
// short numeric confirmation code.
//
// # Architecture boundaries
//
// A [Channel] owns its own secret storage and expiry. Callers only see the
// capability set on the interface: send a recovery message, send a generated
// password, validate a secret and invalidate it. Message transport is
// injected through [Mailer] and [SMSSender] so that SMTP, an HTTP SMS
// gateway, or the logging [DevTransport] can be swapped freely.
//
// # What this package must NOT do
//
//   - Import goRecovery.
//   - Decide channel priority or build user-facing copy beyond the message
//     templates it renders.
//   - Log plaintext secrets.
package channel
