package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inboxd/inboxd/internal/model"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS emails (
	id         TEXT NOT NULL,
	account_id TEXT NOT NULL,
	from_text  TEXT NOT NULL DEFAULT '',
	to_text    TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	body_text  TEXT NOT NULL DEFAULT '',
	folder     TEXT NOT NULL DEFAULT 'INBOX',
	date       DATETIME,
	category   TEXT NOT NULL DEFAULT 'inbox',
	preview    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_emails_account ON emails(account_id);
CREATE INDEX IF NOT EXISTS idx_emails_category ON emails(category);
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date);
`

// SQLiteStore implements EmailStore on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the email database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open email db: %w", err)
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init email db: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Upsert inserts the record or, when (id, account_id) already exists,
// updates every mutable column and bumps updated_at.
func (s *SQLiteStore) Upsert(ctx context.Context, doc model.EmailDocument) (model.EmailDocument, error) {
	now := s.now().UTC()
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (id, account_id, from_text, to_text, subject, body_text, folder, date, category, preview, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, account_id) DO UPDATE SET
			from_text  = excluded.from_text,
			to_text    = excluded.to_text,
			subject    = excluded.subject,
			body_text  = excluded.body_text,
			folder     = excluded.folder,
			date       = excluded.date,
			category   = excluded.category,
			preview    = excluded.preview,
			updated_at = excluded.updated_at`,
		doc.ID, doc.AccountID, doc.From, doc.To, doc.Subject, doc.BodyText,
		doc.Folder, doc.Date, doc.Category, doc.Preview, now, now,
	)
	if err != nil {
		return model.EmailDocument{}, fmt.Errorf("upsert email %s: %w", doc.ID, err)
	}

	merged, err := s.Get(ctx, doc.ID, doc.AccountID)
	if err != nil {
		return model.EmailDocument{}, err
	}
	return *merged, nil
}

// Get returns the record for (id, accountID), or nil if absent.
func (s *SQLiteStore) Get(ctx context.Context, id, accountID string) (*model.EmailDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, from_text, to_text, subject, body_text, folder, date, category, preview, created_at, updated_at
		 FROM emails WHERE id = ? AND account_id = ?`, id, accountID)
	doc, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get email %s: %w", id, err)
	}
	return &doc, nil
}

// List returns records matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.EmailDocument, error) {
	query := `SELECT id, account_id, from_text, to_text, subject, body_text, folder, date, category, preview, created_at, updated_at FROM emails WHERE 1=1`
	var args []any
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.Folder != "" {
		query += ` AND folder = ?`
		args = append(args, f.Folder)
	}
	query += ` ORDER BY date DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	return s.queryEmails(ctx, query, args...)
}

// All returns every stored record, newest first.
func (s *SQLiteStore) All(ctx context.Context) ([]model.EmailDocument, error) {
	return s.queryEmails(ctx,
		`SELECT id, account_id, from_text, to_text, subject, body_text, folder, date, category, preview, created_at, updated_at
		 FROM emails ORDER BY date DESC`)
}

// Stats reports stored totals per category and per account.
func (s *SQLiteStore) Stats(ctx context.Context) (model.EmailStats, error) {
	stats := model.EmailStats{
		ByCategory: make(map[string]int),
		ByAccount:  make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails`).Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("count emails: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM emails GROUP BY category`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return stats, err
		}
		stats.ByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT account_id, COUNT(*) FROM emails GROUP BY account_id`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var acct string
		var n int
		if err := rows.Scan(&acct, &n); err != nil {
			return stats, err
		}
		stats.ByAccount[acct] = n
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) queryEmails(ctx context.Context, query string, args ...any) ([]model.EmailDocument, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query emails: %w", err)
	}
	defer rows.Close()

	var docs []model.EmailDocument
	for rows.Next() {
		doc, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(r rowScanner) (model.EmailDocument, error) {
	var doc model.EmailDocument
	var date sql.NullTime
	err := r.Scan(&doc.ID, &doc.AccountID, &doc.From, &doc.To, &doc.Subject,
		&doc.BodyText, &doc.Folder, &date, &doc.Category, &doc.Preview,
		&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return doc, err
	}
	if date.Valid {
		doc.Date = date.Time
	}
	return doc, nil
}
