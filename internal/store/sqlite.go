// Package store persists classified emails in a local SQLite database
// with an FTS5 full-text index over subject, body, and sender.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailindex/internal/model"
)

// defaultLimit bounds query results when the caller does not set one.
const defaultLimit = 50

// docColumns is the explicit column list scanned into EmailDocument.
const docColumns = "id, subject, sender, recipients, date, body, folder, account, category, indexed_at"

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// enables WAL mode. EnsureSchema must run before the first write.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// WAL mode for concurrent readers while supervisors write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureSchema checks the current schema version and applies any
// outstanding migrations in order. Safe to call repeatedly; concurrent
// callers racing on the create statements are tolerated because every
// statement is IF NOT EXISTS.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	currentVersion := 0

	var tableCount int
	err := s.db.GetContext(
		ctx, &tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Upsert inserts or replaces a document keyed by its deterministic ID.
func (s *SQLiteStore) Upsert(ctx context.Context, doc model.EmailDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("upserting email: empty document id")
	}
	if doc.Account == "" || doc.Folder == "" {
		return fmt.Errorf("upserting email %s: account and folder are required", doc.ID)
	}
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = time.Now()
	}

	// ON CONFLICT DO UPDATE (rather than INSERT OR REPLACE) keeps the
	// row's rowid stable so the FTS triggers see a plain update.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (
			id, subject, sender, recipients, date, body,
			folder, account, category, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject    = excluded.subject,
			sender     = excluded.sender,
			recipients = excluded.recipients,
			date       = excluded.date,
			body       = excluded.body,
			folder     = excluded.folder,
			account    = excluded.account,
			category   = excluded.category,
			indexed_at = excluded.indexed_at`,
		doc.ID, doc.Subject, doc.From, doc.To, doc.Date.UTC(), doc.Body,
		doc.Folder, doc.Account, string(doc.Category), doc.IndexedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting email %s: %w", doc.ID, err)
	}

	return nil
}

// Search runs a full-text match over subject, body, and sender,
// intersected with the folder/account filters when supplied. Results
// are ordered by bm25 relevance.
func (s *SQLiteStore) Search(ctx context.Context, q SearchQuery) ([]model.EmailDocument, error) {
	match := ftsQuery(q.Text)
	if match == "" {
		return nil, nil
	}

	query := `
		SELECT ` + prefixColumns("e") + `
		FROM emails e
		JOIN emails_fts ON emails_fts.rowid = e.rowid
		WHERE emails_fts MATCH ?`
	args := []interface{}{match}

	if q.Folder != "" {
		query += " AND e.folder = ?"
		args = append(args, q.Folder)
	}
	if q.Account != "" {
		query += " AND e.account = ?"
		args = append(args, q.Account)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	query += fmt.Sprintf(" ORDER BY bm25(emails_fts) LIMIT %d", limit)

	return s.queryDocuments(ctx, query, args...)
}

// Recent returns documents dated within the last rangeDays days,
// newest first.
func (s *SQLiteStore) Recent(ctx context.Context, rangeDays, limit int) ([]model.EmailDocument, error) {
	if rangeDays <= 0 {
		rangeDays = 30
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -rangeDays)
	query := fmt.Sprintf(
		"SELECT %s FROM emails WHERE date >= ? ORDER BY date DESC LIMIT %d",
		docColumns, limit,
	)

	return s.queryDocuments(ctx, query, cutoff)
}

// GetByID returns a single document, or nil when absent.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*model.EmailDocument, error) {
	var doc model.EmailDocument
	err := s.db.GetContext(
		ctx, &doc,
		"SELECT "+docColumns+" FROM emails WHERE id = ?", id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting email %s: %w", id, err)
	}
	return &doc, nil
}

// queryDocuments runs a document query and scans the result set.
func (s *SQLiteStore) queryDocuments(
	ctx context.Context, query string, args ...interface{},
) ([]model.EmailDocument, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	defer rows.Close()

	var docs []model.EmailDocument
	for rows.Next() {
		var doc model.EmailDocument
		if err := rows.StructScan(&doc); err != nil {
			return nil, fmt.Errorf("scanning email row: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// ftsQuery sanitizes free text into an FTS5 match expression: each
// term is quoted so user input cannot inject FTS syntax, and terms
// combine with implicit AND.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		quoted = append(quoted, `"`+f+`"`)
	}

	return strings.Join(quoted, " ")
}

// prefixColumns qualifies the document column list with a table alias.
func prefixColumns(alias string) string {
	cols := strings.Split(docColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
