package activity_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"libris/internal/activity"
	"libris/internal/requests"
)

func newRequest(t *testing.T, f *fixture) *requests.Request {
	t.Helper()
	data, _ := json.Marshal(map[string]string{
		"title":       "Dune",
		"author":      "Frank Herbert",
		"provider":    "openlibrary",
		"provider_id": "OL123",
	})
	request, err := f.requests.Create(context.Background(), requests.CreateParams{
		UserID:      f.user.ID,
		Level:       requests.LevelBook,
		ContentType: "book",
		PolicyMode:  "request_book",
		BookData:    data,
	})
	if err != nil {
		t.Fatalf("requests.Create: %v", err)
	}
	return request
}

func cancelRequest(t *testing.T, f *fixture, id int64) {
	t.Helper()
	cancelled := requests.StatusCancelled
	if _, err := f.requests.Apply(context.Background(), id, requests.Update{Status: &cancelled}); err != nil {
		t.Fatalf("cancel request: %v", err)
	}
}

func TestHistoryReturnsLedgerSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	request := newRequest(t, f)
	cancelRequest(t, f, request.ID)
	key, err := activity.RequestKey(request.ID)
	if err != nil {
		t.Fatalf("RequestKey: %v", err)
	}
	id := request.ID
	recorded, err := f.store.RecordTerminalSnapshot(ctx, activity.RecordParams{
		UserID:      f.user.ID,
		ItemType:    activity.ItemTypeRequest,
		ItemKey:     key,
		RequestID:   &id,
		Origin:      activity.OriginRequest,
		FinalStatus: activity.FinalCancelled,
		Snapshot:    json.RawMessage(`{"title":"Dune"}`),
		TerminalAt:  base,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeRequest,
		ItemKey:  key,
	}); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	history, err := f.store.History(ctx, f.user.ID, 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.Reconstructed {
		t.Fatal("expected ledger-backed entry, not a reconstruction")
	}
	if entry.Entry == nil || entry.Entry.ID != recorded.ID {
		t.Fatal("expected history to carry the recorded snapshot")
	}
}

func TestHistoryReconstructsLegacyDismissals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	request := newRequest(t, f)
	cancelRequest(t, f, request.ID)
	key, err := activity.RequestKey(request.ID)
	if err != nil {
		t.Fatalf("RequestKey: %v", err)
	}
	if _, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeRequest,
		ItemKey:  key,
	}); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	history, err := f.store.History(ctx, f.user.ID, 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	entry := history[0]
	if !entry.Reconstructed {
		t.Fatal("expected reconstructed entry for legacy dismissal")
	}
	if entry.Entry == nil || entry.Entry.FinalStatus != activity.FinalCancelled {
		t.Fatalf("expected cancelled outcome, got %+v", entry.Entry)
	}
	if entry.Entry.ID != 0 {
		t.Fatal("reconstructed entries must not claim a ledger id")
	}

	// Reconstruction is view-only; the ledger stays empty.
	newest, err := f.store.NewestEntryForKey(ctx, activity.ItemTypeRequest, key)
	if err != nil {
		t.Fatalf("NewestEntryForKey failed: %v", err)
	}
	if newest != nil {
		t.Fatal("expected no ledger row to be written")
	}
}

func TestHistorySkipsNonTerminalRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	request := newRequest(t, f)
	key, err := activity.RequestKey(request.ID)
	if err != nil {
		t.Fatalf("RequestKey: %v", err)
	}
	if _, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeRequest,
		ItemKey:  key,
	}); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	history, err := f.store.History(ctx, f.user.ID, 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	if history[0].Entry != nil {
		t.Fatal("expected no snapshot for a still-pending request")
	}
}

func TestHistoryOrdersByDismissalTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeDownload,
		ItemKey:  "download:task-1",
	}); err != nil {
		t.Fatalf("first dismiss: %v", err)
	}
	if _, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeDownload,
		ItemKey:  "download:task-2",
	}); err != nil {
		t.Fatalf("second dismiss: %v", err)
	}

	history, err := f.store.History(ctx, f.user.ID, 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two history entries, got %d", len(history))
	}
	if history[0].Dismissal.ItemKey != "download:task-2" {
		t.Fatalf("expected newest dismissal first, got %q", history[0].Dismissal.ItemKey)
	}

	page, err := f.store.History(ctx, f.user.ID, 1, 1)
	if err != nil {
		t.Fatalf("paged History failed: %v", err)
	}
	if len(page) != 1 || page[0].Dismissal.ItemKey != "download:task-1" {
		t.Fatal("expected offset to skip the newest dismissal")
	}
}
