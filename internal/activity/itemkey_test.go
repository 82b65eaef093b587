package activity_test

import (
	"errors"
	"testing"

	"libris/internal/activity"
	"libris/internal/services"
)

func TestRequestKeyRoundTrip(t *testing.T) {
	key, err := activity.RequestKey(42)
	if err != nil {
		t.Fatalf("RequestKey failed: %v", err)
	}
	if key != "request:42" {
		t.Fatalf("unexpected key %q", key)
	}
	id, ok := activity.RequestIDFromKey(key)
	if !ok || id != 42 {
		t.Fatalf("round trip failed: id=%d ok=%v", id, ok)
	}
}

func TestRequestKeyRejectsNonPositiveIDs(t *testing.T) {
	if _, err := activity.RequestKey(0); !errors.Is(err, services.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload error, got %v", err)
	}
}

func TestRequestIDFromKeyRejectsMalformedKeys(t *testing.T) {
	for _, key := range []string{"", "request:", "request:abc", "request:-3", "download:42"} {
		if _, ok := activity.RequestIDFromKey(key); ok {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}

func TestParseItemKey(t *testing.T) {
	itemType, key, err := activity.ParseItemKey(" request:7 ")
	if err != nil {
		t.Fatalf("ParseItemKey failed: %v", err)
	}
	if itemType != activity.ItemTypeRequest || key != "request:7" {
		t.Fatalf("unexpected parse result: %s %q", itemType, key)
	}

	itemType, key, err = activity.ParseItemKey("download:task-9")
	if err != nil {
		t.Fatalf("ParseItemKey failed: %v", err)
	}
	if itemType != activity.ItemTypeDownload || key != "download:task-9" {
		t.Fatalf("unexpected parse result: %s %q", itemType, key)
	}

	for _, bad := range []string{"", "bogus", "request:", "download: "} {
		if _, _, err := activity.ParseItemKey(bad); !errors.Is(err, services.ErrInvalidPayload) {
			t.Fatalf("expected %q rejected, got %v", bad, err)
		}
	}
}

func TestDownloadKey(t *testing.T) {
	key, err := activity.DownloadKey("abc-123")
	if err != nil {
		t.Fatalf("DownloadKey failed: %v", err)
	}
	if key != "download:abc-123" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := activity.DownloadKey("   "); !errors.Is(err, services.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload error, got %v", err)
	}
}
