package testutil

import (
	"context"
	"testing"

	"github.com/nhle/mailindex/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with the schema
// applied. It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensuring test schema: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
