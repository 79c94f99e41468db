// Package testutil provides shared helpers for tests that need a real database.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/storage"
	"github.com/Veraticus/dre-classifier/internal/testutil/categories"
)

// SetupTestDB creates a migrated in-memory database seeded with cats.
// The database is closed when the test ends.
//
// Example:
//
//	store := testutil.SetupTestDB(t, categories.Standard("t1")...)
func SetupTestDB(t *testing.T, cats ...model.Category) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for i := range cats {
		if err := store.UpsertCategory(ctx, &cats[i]); err != nil {
			t.Fatalf("failed to seed category %q: %v", cats[i].Name, err)
		}
	}
	return store
}

// SetupTestDBWithBuilder creates a test database seeded by a category builder.
//
// Example:
//
//	store, cats := testutil.SetupTestDBWithBuilder(t, "t1", func(b *categories.Builder) *categories.Builder {
//		return b.WithStandardChart()
//	})
func SetupTestDBWithBuilder(t *testing.T, tenantID string, configure func(*categories.Builder) *categories.Builder) (*storage.SQLiteStorage, categories.Categories) {
	t.Helper()

	builder := categories.NewBuilder(tenantID)
	if configure != nil {
		builder = configure(builder)
	}
	cats := builder.Build()
	return SetupTestDB(t, cats...), cats
}
