package api_test

import (
	"encoding/json"
	"testing"
	"time"

	"libris/internal/activity"
	"libris/internal/api"
	"libris/internal/requests"
)

func TestFromRequest(t *testing.T) {
	reviewedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	reviewer := int64(2)
	record := &requests.Request{
		ID:            7,
		UserID:        1,
		Status:        requests.StatusFulfilled,
		DeliveryState: requests.DeliveryQueued,
		Level:         requests.LevelBook,
		ContentType:   "book",
		PolicyMode:    "request_book",
		BookData:      json.RawMessage(`{"title":"Dune"}`),
		ReleaseData:   json.RawMessage(`{"source_id":"src-1"}`),
		ReviewedBy:    &reviewer,
		ReviewedAt:    &reviewedAt,
		CreatedAt:     time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC),
	}

	dto := api.FromRequest(record)
	if dto.Status != "fulfilled" || dto.DeliveryState != "queued" {
		t.Fatalf("unexpected status fields: %s/%s", dto.Status, dto.DeliveryState)
	}
	if dto.ReviewedAt != "2026-03-14T09:30:00.000Z" {
		t.Fatalf("unexpected reviewedAt %q", dto.ReviewedAt)
	}
	if string(dto.ReleaseData) != `{"source_id":"src-1"}` {
		t.Fatalf("expected raw release passthrough, got %s", dto.ReleaseData)
	}

	encoded, err := json.Marshal(dto)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["deliveryUpdatedAt"]; ok {
		t.Fatal("expected empty deliveryUpdatedAt omitted")
	}
	if decoded["contentType"] != "book" {
		t.Fatalf("expected camelCase keys, got %v", decoded)
	}
}

func TestFromRequestNil(t *testing.T) {
	if dto := api.FromRequest(nil); dto.ID != 0 {
		t.Fatalf("expected zero DTO for nil record, got %+v", dto)
	}
}

func TestFromHistoryEntryCarriesReconstruction(t *testing.T) {
	entry := activity.HistoryEntry{
		Dismissal: activity.Dismissal{
			ItemType:    activity.ItemTypeRequest,
			ItemKey:     "request:7",
			DismissedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		},
		Entry: &activity.LogEntry{
			ItemType:    activity.ItemTypeRequest,
			ItemKey:     "request:7",
			Origin:      activity.OriginRequest,
			FinalStatus: activity.FinalCancelled,
		},
		Reconstructed: true,
	}

	dto := api.FromHistoryEntry(entry)
	if !dto.Reconstructed {
		t.Fatal("expected reconstruction flag carried through")
	}
	if dto.Entry == nil || dto.Entry.FinalStatus != "cancelled" {
		t.Fatalf("expected embedded entry, got %+v", dto.Entry)
	}
	if dto.DismissedAt != "2026-03-14T10:00:00.000Z" {
		t.Fatalf("unexpected dismissedAt %q", dto.DismissedAt)
	}
}
