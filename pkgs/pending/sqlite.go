package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pending_submission (
    account      TEXT PRIMARY KEY,
    tx_hash      TEXT NOT NULL,
    submitted_at INTEGER NOT NULL
)`

// SQLiteStore keeps one slot per account in a SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	account string
}

// OpenSQLite creates or opens the database at path and scopes the store to
// account.
func OpenSQLite(path, account string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if account == "" {
		account = "local"
	}
	return &SQLiteStore{db: db, account: account}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (Submission, bool, error) {
	var txHash string
	var submittedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT tx_hash, submitted_at FROM pending_submission WHERE account = ?`, s.account,
	).Scan(&txHash, &submittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, false, nil
	}
	if err != nil {
		return Submission{}, false, fmt.Errorf("failed to read pending submission: %w", err)
	}

	sub := Submission{TxHash: txHash}
	if submittedAt > 0 {
		sub.SubmittedAt = time.Unix(submittedAt, 0).UTC()
	}
	return sub, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, sub Submission) error {
	var submittedAt int64
	if !sub.SubmittedAt.IsZero() {
		submittedAt = sub.SubmittedAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO pending_submission (account, tx_hash, submitted_at) VALUES (?, ?, ?)
ON CONFLICT(account) DO UPDATE SET tx_hash = excluded.tx_hash, submitted_at = excluded.submitted_at`,
		s.account, sub.TxHash, submittedAt)
	if err != nil {
		return fmt.Errorf("failed to save pending submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_submission WHERE account = ?`, s.account); err != nil {
		return fmt.Errorf("failed to clear pending submission: %w", err)
	}
	return nil
}
