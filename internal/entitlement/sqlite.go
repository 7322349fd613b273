package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id       TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	is_premium    INTEGER NOT NULL DEFAULT 0,
	premium_until INTEGER,
	updated_at    INTEGER NOT NULL
);
`

// SQLiteStore keeps entitlement records in a SQLite database.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:" is
// accepted for tests and ephemeral deployments.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open entitlement db: %w", err)
	}
	// One connection keeps the pragmas below in effect and makes ":memory:"
	// a single database. Entitlement lookups are rare enough for this.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure entitlement db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (Record, error) {
	var (
		rec       Record
		premium   int64
		until     sql.NullInt64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, is_premium, premium_until, updated_at FROM users WHERE user_id = ?`,
		userID,
	).Scan(&rec.UserID, &rec.Email, &premium, &until, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("query user %q: %w", userID, err)
	}
	rec.IsPremium = premium != 0
	if until.Valid {
		t := time.UnixMilli(until.Int64).UTC()
		rec.PremiumUntil = &t
	}
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return rec, nil
}

// Upsert creates or replaces the record for rec.UserID.
func (s *SQLiteStore) Upsert(ctx context.Context, rec Record) error {
	if rec.UserID == "" {
		return errors.New("user id is required")
	}
	var until sql.NullInt64
	if rec.PremiumUntil != nil {
		until = sql.NullInt64{Int64: rec.PremiumUntil.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, email, is_premium, premium_until, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			is_premium = excluded.is_premium,
			premium_until = excluded.premium_until,
			updated_at = excluded.updated_at
	`, rec.UserID, rec.Email, boolToInt(rec.IsPremium), until, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", rec.UserID, err)
	}
	return nil
}

// Revoke clears the premium flag of an existing user.
func (s *SQLiteStore) Revoke(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_premium = 0, premium_until = NULL, updated_at = ? WHERE user_id = ?`,
		s.now().UnixMilli(), userID,
	)
	if err != nil {
		return fmt.Errorf("revoke user %q: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke user %q: %w", userID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsEntitled reports whether userID currently holds premium. Unknown users
// are not entitled.
func (s *SQLiteStore) IsEntitled(ctx context.Context, userID string) (bool, error) {
	rec, err := s.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.EntitledAt(s.now()), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
