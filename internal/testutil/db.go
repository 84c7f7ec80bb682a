package testutil

import (
	"testing"

	"github.com/ahmetk3436/duochat/internal/database"
	"gorm.io/gorm"
)

// NewTestDB returns a migrated in-memory sqlite database closed at test end.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	return db
}
