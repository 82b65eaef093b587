package storage_test

import (
	"context"
	"testing"

	"libris/internal/storage"
	"libris/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, table := range []string{"users", "requests", "activity_log", "activity_dismissals"} {
		var count int
		err := db.Handle().QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer again.Close()
}

func TestParseTimeRoundTrip(t *testing.T) {
	db, err := storage.Open(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := storage.ParseTime(""); err == nil {
		t.Fatal("expected error for empty timestamp")
	}
}
