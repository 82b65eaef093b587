package deliverysync_test

import (
	"context"
	"encoding/json"
	"testing"

	"libris/internal/activity"
	"libris/internal/approvals"
	"libris/internal/deliverysync"
	"libris/internal/downloads"
	"libris/internal/requests"
	"libris/internal/storage"
	"libris/internal/testsupport"
	"libris/internal/users"
)

type okQueue struct{}

func (okQueue) QueueRelease(context.Context, json.RawMessage, int, int64, string) error {
	return nil
}

type fixture struct {
	db       *storage.DB
	sync     *deliverysync.Synchronizer
	service  *approvals.Service
	requests *requests.Store
	ledger   *activity.Store
	user     *users.User
	admin    *users.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	userStore := users.NewStore(db)
	requestStore := requests.NewStore(db)
	ledger := activity.NewStore(db, requestStore)
	return &fixture{
		db:       db,
		sync:     deliverysync.New(requestStore, ledger, nil),
		service:  approvals.NewService(cfg.Requests, requestStore, userStore, ledger, okQueue{}, nil),
		requests: requestStore,
		ledger:   ledger,
		user:     testsupport.NewUser(t, userStore, "reader", users.RoleUser),
		admin:    testsupport.NewUser(t, userStore, "librarian", users.RoleAdmin),
	}
}

func fulfilledRequest(t *testing.T, f *fixture, userID int64, title, sourceID string) *requests.Request {
	t.Helper()
	ctx := context.Background()
	book, _ := json.Marshal(map[string]string{
		"title":       title,
		"author":      "Frank Herbert",
		"provider":    "openlibrary",
		"provider_id": "OL123",
	})
	created, err := f.service.Create(ctx, approvals.CreateParams{
		UserID:      userID,
		Level:       requests.LevelBook,
		ContentType: "book",
		PolicyMode:  "request_book",
		BookData:    book,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	release, _ := json.Marshal(map[string]string{"source_id": sourceID})
	fulfilled, err := f.service.Fulfil(ctx, created.ID, f.admin, approvals.FulfilParams{ReleaseData: release})
	if err != nil {
		t.Fatalf("fulfil: %v", err)
	}
	return fulfilled
}

func snapshotOf(buckets map[downloads.Bucket][]string) downloads.Snapshot {
	snapshot := make(downloads.Snapshot, len(buckets))
	for bucket, ids := range buckets {
		entries := make(map[string]json.RawMessage, len(ids))
		for _, id := range ids {
			entries[id] = json.RawMessage(`{}`)
		}
		snapshot[bucket] = entries
	}
	return snapshot
}

func TestSyncTracksDeliveryToCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	request := fulfilledRequest(t, f, f.user.ID, "Dune", "src-1")
	if request.DeliveryState != requests.DeliveryQueued {
		t.Fatalf("expected queued after fulfil, got %s", request.DeliveryState)
	}

	changed, err := f.sync.Sync(ctx, snapshotOf(map[downloads.Bucket][]string{
		downloads.BucketDownloading: {"src-1"},
	}), deliverysync.Options{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(changed) != 1 || changed[0].DeliveryState != requests.DeliveryDownloading {
		t.Fatalf("expected one row moved to downloading, got %+v", changed)
	}

	changed, err = f.sync.Sync(ctx, snapshotOf(map[downloads.Bucket][]string{
		downloads.BucketComplete: {"src-1"},
	}), deliverysync.Options{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(changed) != 1 || changed[0].DeliveryState != requests.DeliveryComplete {
		t.Fatalf("expected one row moved to complete, got %+v", changed)
	}
	if changed[0].DeliveryUpdatedAt == nil {
		t.Fatal("expected delivery_updated_at stamped")
	}

	key, _ := activity.RequestKey(request.ID)
	entry, err := f.ledger.NewestEntryForKey(ctx, activity.ItemTypeRequest, key)
	if err != nil {
		t.Fatalf("NewestEntryForKey: %v", err)
	}
	if entry == nil || entry.FinalStatus != activity.FinalComplete {
		t.Fatalf("expected complete ledger snapshot, got %+v", entry)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fulfilledRequest(t, f, f.user.ID, "Dune", "src-1")
	snapshot := snapshotOf(map[downloads.Bucket][]string{
		downloads.BucketDownloading: {"src-1"},
	})

	first, err := f.sync.Sync(ctx, snapshot, deliverysync.Options{})
	if err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected one change on first pass, got %d", len(first))
	}

	second, err := f.sync.Sync(ctx, snapshot, deliverysync.Options{})
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no changes on second pass, got %d", len(second))
	}
}

func TestSyncScopesToOneUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine := fulfilledRequest(t, f, f.user.ID, "Dune", "src-1")
	fulfilledRequest(t, f, f.admin.ID, "Hyperion", "src-2")

	snapshot := snapshotOf(map[downloads.Bucket][]string{
		downloads.BucketComplete: {"src-1", "src-2"},
	})
	owner := f.user.ID
	changed, err := f.sync.Sync(ctx, snapshot, deliverysync.Options{UserID: &owner})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(changed) != 1 || changed[0].ID != mine.ID {
		t.Fatalf("expected only the scoped user's row, got %+v", changed)
	}
}

func TestSyncIgnoresUnknownIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fulfilledRequest(t, f, f.user.ID, "Dune", "src-1")
	changed, err := f.sync.Sync(ctx, snapshotOf(map[downloads.Bucket][]string{
		downloads.BucketComplete: {"src-unrelated"},
	}), deliverysync.Options{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("expected no changes for unrelated ids, got %d", len(changed))
	}
}

func TestSyncClearsDismissalWhenDeliveryResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	request := fulfilledRequest(t, f, f.user.ID, "Dune", "src-1")
	if _, err := f.sync.Sync(ctx, snapshotOf(map[downloads.Bucket][]string{
		downloads.BucketError: {"src-1"},
	}), deliverysync.Options{}); err != nil {
		t.Fatalf("sync to error: %v", err)
	}

	key, _ := activity.RequestKey(request.ID)
	if _, err := f.ledger.DismissItem(ctx, f.user.ID, activity.DismissParams{
		ItemType: activity.ItemTypeRequest,
		ItemKey:  key,
	}); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	// The queue retried the delivery; the old dismissal must not hide it.
	if _, err := f.sync.Sync(ctx, snapshotOf(map[downloads.Bucket][]string{
		downloads.BucketDownloading: {"src-1"},
	}), deliverysync.Options{}); err != nil {
		t.Fatalf("sync to downloading: %v", err)
	}

	set, err := f.ledger.DismissalSet(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("DismissalSet: %v", err)
	}
	if _, ok := set[activity.DismissalKey{ItemType: activity.ItemTypeRequest, ItemKey: key}]; ok {
		t.Fatal("expected stale dismissal cleared")
	}
}
