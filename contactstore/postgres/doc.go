// Package postgres is a goRecovery.ContactProvider backed by a Postgres
// contacts table.
//
// The schema ships with the package and is applied with Migrate. Emails are
// matched case-insensitively; phones are stored and matched in E.164 form
// with formatting characters removed.
package postgres
