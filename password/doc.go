// Package password hashes passwords set through recovery with Argon2id and
// generates random passwords for the generate-password mode.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Architecture boundaries
//
// This package owns hashing and generation only. Minimum length and
// confirmation checks happen in the recovery flow before Hash is called.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goRecovery package.
//   - Log plaintext passwords.
package password
