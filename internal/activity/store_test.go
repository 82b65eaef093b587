package activity_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"libris/internal/activity"
	"libris/internal/requests"
	"libris/internal/services"
	"libris/internal/storage"
	"libris/internal/testsupport"
	"libris/internal/users"
)

type fixture struct {
	db       *storage.DB
	store    *activity.Store
	requests *requests.Store
	user     *users.User
	admin    *users.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.MustOpenDB(t, testsupport.NewConfig(t))
	userStore := users.NewStore(db)
	requestStore := requests.NewStore(db)
	return &fixture{
		db:       db,
		store:    activity.NewStore(db, requestStore),
		requests: requestStore,
		user:     testsupport.NewUser(t, userStore, "reader", users.RoleUser),
		admin:    testsupport.NewUser(t, userStore, "librarian", users.RoleAdmin),
	}
}

func downloadParams(userID int64, taskID string, final activity.FinalStatus, terminalAt time.Time) activity.RecordParams {
	key, _ := activity.DownloadKey(taskID)
	return activity.RecordParams{
		UserID:      userID,
		ItemType:    activity.ItemTypeDownload,
		ItemKey:     key,
		SourceID:    taskID,
		Origin:      activity.OriginDirect,
		FinalStatus: final,
		Snapshot:    json.RawMessage(`{"title":"Dune"}`),
		TerminalAt:  terminalAt,
	}
}

func TestRecordTerminalSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalComplete, time.Time{}))
	if err != nil {
		t.Fatalf("RecordTerminalSnapshot failed: %v", err)
	}
	if entry.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if entry.ItemKey != "download:task-1" {
		t.Fatalf("unexpected item key %q", entry.ItemKey)
	}
	if entry.TerminalAt.IsZero() || entry.CreatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestRecordValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*activity.RecordParams)
	}{
		{"unknown item type", func(p *activity.RecordParams) { p.ItemType = "torrent" }},
		{"malformed item key", func(p *activity.RecordParams) { p.ItemKey = "task-1" }},
		{"unknown origin", func(p *activity.RecordParams) { p.Origin = "manual" }},
		{"unknown final status", func(p *activity.RecordParams) { p.FinalStatus = "done" }},
		{"zero user id", func(p *activity.RecordParams) { p.UserID = 0 }},
		{"invalid snapshot", func(p *activity.RecordParams) { p.Snapshot = json.RawMessage(`{`) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := downloadParams(f.user.ID, "task-1", activity.FinalComplete, time.Time{})
			tc.mutate(&params)
			if _, err := f.store.RecordTerminalSnapshot(ctx, params); !errors.Is(err, services.ErrInvalidPayload) {
				t.Fatalf("expected invalid payload error, got %v", err)
			}
		})
	}
}

func TestDismissResolvesNewestEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	if _, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalError, base)); err != nil {
		t.Fatalf("record first run: %v", err)
	}
	second, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalComplete, base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("record retry: %v", err)
	}

	dismissal, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeDownload,
		ItemKey:  "download:task-1",
	})
	if err != nil {
		t.Fatalf("DismissItem failed: %v", err)
	}
	if dismissal.ActivityLogID == nil || *dismissal.ActivityLogID != second.ID {
		t.Fatalf("expected dismissal to link newest entry %d, got %v", second.ID, dismissal.ActivityLogID)
	}
}

func TestDismissWithoutLedgerEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dismissal, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeRequest,
		ItemKey:  "request:42",
	})
	if err != nil {
		t.Fatalf("DismissItem failed: %v", err)
	}
	if dismissal.ActivityLogID != nil {
		t.Fatalf("expected nil ledger link, got %v", *dismissal.ActivityLogID)
	}
}

func TestDismissUpsertKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	first, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalError, base))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeDownload,
		ItemKey:  "download:task-1",
	}); err != nil {
		t.Fatalf("first dismiss: %v", err)
	}

	second, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalComplete, base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("record retry: %v", err)
	}
	dismissal, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeDownload,
		ItemKey:  "download:task-1",
	})
	if err != nil {
		t.Fatalf("second dismiss: %v", err)
	}
	if dismissal.ActivityLogID == nil || *dismissal.ActivityLogID != second.ID {
		t.Fatalf("expected re-dismiss to move link from %d to %d", first.ID, second.ID)
	}

	set, err := f.store.DismissalSet(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("DismissalSet failed: %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("expected one dismissal row, got %d", len(set))
	}
}

func TestDismissManyIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.DismissMany(ctx, f.user.ID, []activity.DismissParams{
		{ItemType: activity.ItemTypeRequest, ItemKey: "request:1"},
		{ItemType: activity.ItemTypeRequest, ItemKey: "bogus"},
	})
	if !errors.Is(err, services.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload error, got %v", err)
	}

	set, err := f.store.DismissalSet(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("DismissalSet failed: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected no dismissals after failed batch, got %d", len(set))
	}
}

func TestDismissalsArePerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalComplete, time.Time{})); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeDownload,
		ItemKey:  "download:task-1",
	}); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	adminView, err := f.store.UndismissedTerminalDownloads(ctx, f.admin.ID, nil, 10)
	if err != nil {
		t.Fatalf("admin view: %v", err)
	}
	if len(adminView) != 1 {
		t.Fatalf("expected admin to still see the item, got %d entries", len(adminView))
	}

	userView, err := f.store.UndismissedTerminalDownloads(ctx, f.user.ID, nil, 10)
	if err != nil {
		t.Fatalf("user view: %v", err)
	}
	if len(userView) != 0 {
		t.Fatalf("expected dismissed item hidden for user, got %d entries", len(userView))
	}
}

func TestUndismissedTerminalDownloads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	if _, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalError, base)); err != nil {
		t.Fatalf("record first run: %v", err)
	}
	retry, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalComplete, base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("record retry: %v", err)
	}
	other, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.admin.ID, "task-2", activity.FinalCancelled, base.Add(2*time.Minute)))
	if err != nil {
		t.Fatalf("record other owner: %v", err)
	}

	entries, err := f.store.UndismissedTerminalDownloads(ctx, f.user.ID, nil, 10)
	if err != nil {
		t.Fatalf("UndismissedTerminalDownloads failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected newest-per-key across owners, got %d entries", len(entries))
	}
	if entries[0].ID != other.ID || entries[1].ID != retry.ID {
		t.Fatalf("unexpected ordering: got %d then %d", entries[0].ID, entries[1].ID)
	}

	owner := f.user.ID
	scoped, err := f.store.UndismissedTerminalDownloads(ctx, f.user.ID, &owner, 10)
	if err != nil {
		t.Fatalf("owner-scoped view failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != retry.ID {
		t.Fatalf("expected only the user's own newest entry, got %d entries", len(scoped))
	}
}

func TestClearDismissalsForItemKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.DismissMany(ctx, f.user.ID, []activity.DismissParams{
		{ItemType: activity.ItemTypeDownload, ItemKey: "download:task-1"},
		{ItemType: activity.ItemTypeDownload, ItemKey: "download:task-2"},
	}); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	cleared, err := f.store.ClearDismissalsForItemKeys(ctx, f.user.ID, activity.ItemTypeDownload, []string{"download:task-1"})
	if err != nil {
		t.Fatalf("ClearDismissalsForItemKeys failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected one cleared dismissal, got %d", cleared)
	}

	set, err := f.store.DismissalSet(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("DismissalSet failed: %v", err)
	}
	if _, ok := set[activity.DismissalKey{ItemType: activity.ItemTypeDownload, ItemKey: "download:task-2"}]; !ok {
		t.Fatal("expected untouched dismissal to remain")
	}
	if len(set) != 1 {
		t.Fatalf("expected one remaining dismissal, got %d", len(set))
	}
}

func TestClearHistoryKeepsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.store.RecordTerminalSnapshot(ctx, downloadParams(f.user.ID, "task-1", activity.FinalComplete, time.Time{}))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := f.store.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeDownload,
		ItemKey:  entry.ItemKey,
	}); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	cleared, err := f.store.ClearHistory(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected one cleared dismissal, got %d", cleared)
	}

	kept, err := f.store.NewestEntryForKey(ctx, activity.ItemTypeDownload, entry.ItemKey)
	if err != nil {
		t.Fatalf("NewestEntryForKey failed: %v", err)
	}
	if kept == nil || kept.ID != entry.ID {
		t.Fatal("expected ledger row to survive history clear")
	}
}
