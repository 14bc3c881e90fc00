package store

import (
	"context"

	"github.com/nhle/mailindex/internal/model"
)

// SearchQuery controls a full-text search over the index.
type SearchQuery struct {
	// Text is matched against subject, body, and sender.
	Text string

	// Folder, when non-empty, restricts matches to one folder.
	Folder string

	// Account, when non-empty, restricts matches to one account.
	Account string

	// Limit caps the result count; zero applies the default.
	Limit int
}

// Store is the persistence contract for the email search index.
// Implementations must be safe for concurrent writers: Upsert is keyed
// and overwrite-safe, so supervisors for different accounts may write
// at the same time.
type Store interface {
	// EnsureSchema creates the index schema if absent. Idempotent and
	// tolerant of concurrent callers.
	EnsureSchema(ctx context.Context) error

	// Upsert writes a document keyed by its ID; a repeated write with
	// the same ID overwrites rather than duplicates.
	Upsert(ctx context.Context, doc model.EmailDocument) error

	// Search returns documents matching the query, ordered by the
	// store's relevance scoring.
	Search(ctx context.Context, q SearchQuery) ([]model.EmailDocument, error)

	// Recent returns documents dated within the last rangeDays days,
	// newest first.
	Recent(ctx context.Context, rangeDays, limit int) ([]model.EmailDocument, error)

	// GetByID returns a single document, or nil when absent.
	GetByID(ctx context.Context, id string) (*model.EmailDocument, error)

	Close() error
}
