package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	goRecovery "github.com/MrEthical07/goRecovery"
)

const contactCols = `id, name, COALESCE(email,''), COALESCE(phone,''), locale, password_hash, banned, is_user`

// Store implements goRecovery.ContactProvider.
type Store struct {
	pool *pgxpool.Pool
}

var _ goRecovery.ContactProvider = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses dsn, connects a pool and pings it.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

func scanContact(row pgx.Row) (goRecovery.Contact, bool, error) {
	var c goRecovery.Contact
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Locale, &c.PasswordHash, &c.Banned, &c.IsUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return goRecovery.Contact{}, false, nil
		}
		return goRecovery.Contact{}, false, err
	}
	return c, true, nil
}

// GetContactByLogin matches login against id, email and phone. priority
// decides which column is tried first.
func (s *Store) GetContactByLogin(ctx context.Context, login string, priority goRecovery.LoginType) (goRecovery.Contact, bool, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return goRecovery.Contact{}, false, nil
	}

	lookups := []func(context.Context, string) (goRecovery.Contact, bool, error){s.byEmail, s.byPhone, s.GetContactByID}
	switch priority {
	case goRecovery.LoginPhone:
		lookups = []func(context.Context, string) (goRecovery.Contact, bool, error){s.byPhone, s.byEmail, s.GetContactByID}
	case goRecovery.LoginOther:
		lookups = []func(context.Context, string) (goRecovery.Contact, bool, error){s.GetContactByID, s.byEmail, s.byPhone}
	}

	for _, lookup := range lookups {
		c, ok, err := lookup(ctx, login)
		if err != nil || ok {
			return c, ok, err
		}
	}
	return goRecovery.Contact{}, false, nil
}

func (s *Store) GetContactByID(ctx context.Context, id string) (goRecovery.Contact, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+contactCols+` FROM contacts WHERE id = $1`, id)
	c, ok, err := scanContact(row)
	if err != nil {
		return c, false, fmt.Errorf("contacts.GetContactByID: %w", err)
	}
	return c, ok, nil
}

// GetContactWithPasswordByPhone only returns contacts that have a password
// set. Whether non-users may recover is decided by the engine, not here.
func (s *Store) GetContactWithPasswordByPhone(ctx context.Context, phone string) (goRecovery.Contact, bool, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return goRecovery.Contact{}, false, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+contactCols+` FROM contacts WHERE phone = $1 AND password_hash <> '' ORDER BY created_at LIMIT 1`, phone)
	c, ok, err := scanContact(row)
	if err != nil {
		return c, false, fmt.Errorf("contacts.GetContactWithPasswordByPhone: %w", err)
	}
	return c, ok, nil
}

func (s *Store) HasEmail(ctx context.Context, contactID, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM contacts WHERE id = $1 AND LOWER(email) = LOWER($2))`,
		contactID, strings.TrimSpace(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("contacts.HasEmail: %w", err)
	}
	return exists, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, contactID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		contactID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("contacts.UpdatePasswordHash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contacts.UpdatePasswordHash: contact %q not found", contactID)
	}
	return nil
}

// Upsert inserts or replaces a contact. The password hash is left alone on
// update when c.PasswordHash is empty.
func (s *Store) Upsert(ctx context.Context, c goRecovery.Contact) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (id, name, email, phone, locale, password_hash, banned, is_user)
		 VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   email = EXCLUDED.email,
		   phone = EXCLUDED.phone,
		   locale = EXCLUDED.locale,
		   password_hash = CASE WHEN EXCLUDED.password_hash = '' THEN contacts.password_hash ELSE EXCLUDED.password_hash END,
		   banned = EXCLUDED.banned,
		   is_user = EXCLUDED.is_user,
		   updated_at = NOW()`,
		c.ID, c.Name, strings.TrimSpace(c.Email), NormalizePhone(c.Phone), c.Locale, c.PasswordHash, c.Banned, c.IsUser,
	)
	if err != nil {
		return fmt.Errorf("contacts.Upsert: %w", err)
	}
	return nil
}

func (s *Store) byEmail(ctx context.Context, email string) (goRecovery.Contact, bool, error) {
	if !strings.Contains(email, "@") {
		return goRecovery.Contact{}, false, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+contactCols+` FROM contacts WHERE LOWER(email) = LOWER($1)`, email)
	c, ok, err := scanContact(row)
	if err != nil {
		return c, false, fmt.Errorf("contacts.byEmail: %w", err)
	}
	return c, ok, nil
}

func (s *Store) byPhone(ctx context.Context, phone string) (goRecovery.Contact, bool, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return goRecovery.Contact{}, false, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT `+contactCols+` FROM contacts WHERE phone = $1 ORDER BY created_at LIMIT 1`, phone)
	c, ok, err := scanContact(row)
	if err != nil {
		return c, false, fmt.Errorf("contacts.byPhone: %w", err)
	}
	return c, ok, nil
}

// NormalizePhone strips formatting characters, keeping digits and a
// leading plus. Anything with fewer than seven digits yields "".
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	b.Grow(len(phone))
	digits := 0
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return ""
		}
	}
	if digits < 7 {
		return ""
	}
	return b.String()
}
