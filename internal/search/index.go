// Package search provides the DuckDB-backed search index over ingested
// messages, persisted as Parquet (zstd). Index writes are best-effort from
// the pipeline's point of view: a failed upsert is logged, never fatal.
package search

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/inboxd/inboxd/internal/model"
)

// Index stores message metadata in an in-memory DuckDB database, optionally
// persisted to a Parquet file with zstd compression.
type Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	indexPath string
	updatedAt time.Time
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS emails (
	doc_key    VARCHAR NOT NULL,
	id         VARCHAR NOT NULL,
	account_id VARCHAR NOT NULL,
	from_addr  VARCHAR NOT NULL DEFAULT '',
	to_addr    VARCHAR NOT NULL DEFAULT '',
	subject    VARCHAR NOT NULL DEFAULT '',
	body_text  VARCHAR NOT NULL DEFAULT '',
	folder     VARCHAR NOT NULL DEFAULT 'INBOX',
	category   VARCHAR NOT NULL DEFAULT 'inbox',
	preview    VARCHAR NOT NULL DEFAULT '',
	date       TIMESTAMP
)`

// New creates an index. If indexPath points to an existing Parquet file the
// index is loaded from it; pass "" for a purely in-memory index.
func New(indexPath string) (*Index, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := &Index{db: db, indexPath: indexPath}

	if indexPath != "" {
		if info, statErr := os.Stat(indexPath); statErr == nil && info.Size() > 0 {
			if n, loadErr := idx.loadParquet(); loadErr == nil {
				idx.updatedAt = info.ModTime()
				log.Printf("INFO: loaded %d indexed emails from %s", n, indexPath)
				return idx, nil
			} else {
				log.Printf("WARN: could not load %s: %v, starting empty", indexPath, loadErr)
			}
		}
	}

	if _, err := idx.db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return idx, nil
}

// Close releases the DuckDB connection.
func (idx *Index) Close() error {
	if idx.db != nil {
		return idx.db.Close()
	}
	return nil
}

// Upsert indexes one message, replacing any previous entry for the same
// (id, account) pair.
func (idx *Index) Upsert(doc model.EmailDocument) error {
	key := docKey(doc.AccountID, doc.ID)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.db.Exec(`DELETE FROM emails WHERE doc_key = ?`, key); err != nil {
		return fmt.Errorf("index delete %s: %w", key, err)
	}
	_, err := idx.db.Exec(`
		INSERT INTO emails (doc_key, id, account_id, from_addr, to_addr, subject, body_text, folder, category, preview, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, doc.ID, doc.AccountID, doc.From, doc.To, doc.Subject,
		doc.BodyText, doc.Folder, doc.Category, doc.Preview, doc.Date)
	if err != nil {
		return fmt.Errorf("index insert %s: %w", key, err)
	}
	idx.updatedAt = time.Now()
	return nil
}

// Filter narrows search results.
type Filter struct {
	AccountID string
	Folder    string
	Limit     int
	Offset    int
}

// SearchResult wraps matched emails with metadata.
type SearchResult struct {
	Query     string                `json:"query"`
	Total     int                   `json:"total"`
	Hits      []model.EmailDocument `json:"hits"`
	IndexedAt time.Time             `json:"indexed_at"`
}

// Search returns emails whose subject, body or sender contains the query
// (case-insensitive), newest first.
func (idx *Index) Search(query string, f Filter) (SearchResult, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	where := `WHERE (contains(LOWER(subject), ?) OR contains(LOWER(body_text), ?) OR contains(LOWER(from_addr), ?))`
	args := []any{q, q, q}
	if f.AccountID != "" {
		where += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.Folder != "" {
		where += ` AND folder = ?`
		args = append(args, f.Folder)
	}

	var total int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM emails `+where, args...).Scan(&total); err != nil {
		return SearchResult{}, fmt.Errorf("count matches: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := idx.db.Query(
		`SELECT id, account_id, from_addr, to_addr, subject, body_text, folder, category, preview, date
		 FROM emails `+where+` ORDER BY date DESC LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return SearchResult{}, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	hits := make([]model.EmailDocument, 0)
	for rows.Next() {
		var doc model.EmailDocument
		var date sql.NullTime
		if err := rows.Scan(&doc.ID, &doc.AccountID, &doc.From, &doc.To, &doc.Subject,
			&doc.BodyText, &doc.Folder, &doc.Category, &doc.Preview, &date); err != nil {
			log.Printf("WARN: scan hit: %v", err)
			continue
		}
		if date.Valid {
			doc.Date = date.Time
		}
		hits = append(hits, doc)
	}

	return SearchResult{
		Query:     query,
		Total:     total,
		Hits:      hits,
		IndexedAt: idx.updatedAt,
	}, rows.Err()
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var n int
	_ = idx.db.QueryRow(`SELECT COUNT(*) FROM emails`).Scan(&n)
	return n
}

// Save persists the index to its Parquet path, if one is configured.
func (idx *Index) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.saveParquet()
}

func (idx *Index) loadParquet() (int, error) {
	escaped := strings.ReplaceAll(idx.indexPath, "'", "''")
	if _, err := idx.db.Exec(
		fmt.Sprintf("CREATE TABLE emails AS SELECT * FROM read_parquet('%s')", escaped),
	); err != nil {
		return 0, fmt.Errorf("load parquet: %w", err)
	}
	var n int
	if err := idx.db.QueryRow("SELECT COUNT(*) FROM emails").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (idx *Index) saveParquet() error {
	if idx.indexPath == "" {
		return nil
	}
	if dir := filepath.Dir(idx.indexPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// COPY TO won't overwrite.
	os.Remove(idx.indexPath)
	escaped := strings.ReplaceAll(idx.indexPath, "'", "''")
	_, err := idx.db.Exec(
		fmt.Sprintf("COPY emails TO '%s' (FORMAT PARQUET, CODEC 'ZSTD')", escaped))
	return err
}

func docKey(accountID, id string) string {
	return accountID + "_" + id
}
