package testsupport

import (
	"context"
	"testing"

	"libris/internal/config"
	"libris/internal/storage"
	"libris/internal/users"
)

// MustOpenDB opens the shared database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// NewUser creates a user row for tests using the provided store.
func NewUser(t testing.TB, store *users.Store, username, role string) *users.User {
	t.Helper()

	user, err := store.Create(context.Background(), username, role)
	if err != nil {
		t.Fatalf("users.Create: %v", err)
	}
	return user
}
