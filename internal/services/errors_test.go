package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"libris/internal/services"
)

func TestWrapPreservesMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrQueueFailed, "approvals", "fulfil", "enqueue release", base)
	if !errors.Is(err, services.ErrQueueFailed) {
		t.Fatalf("expected marker to survive wrapping, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected cause to survive wrapping, got %v", err)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{services.ErrInvalidPayload, http.StatusBadRequest},
		{services.ErrPayloadTooLarge, http.StatusBadRequest},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrStaleTransition, http.StatusConflict},
		{services.ErrDuplicatePending, http.StatusConflict},
		{services.ErrMaxPendingReached, http.StatusConflict},
		{services.ErrQueueFailed, http.StatusConflict},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if got := services.HTTPStatus(wrapped); got != tc.status {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestKindForUnclassified(t *testing.T) {
	if got := services.Kind(errors.New("nope")); got != "internal" {
		t.Fatalf("expected internal, got %s", got)
	}
	if got := services.Kind(services.Wrap(services.ErrStaleTransition, "requests", "apply", "status changed", nil)); got != "stale_transition" {
		t.Fatalf("expected stale_transition, got %s", got)
	}
}

func TestContextRoundTrips(t *testing.T) {
	ctx := services.WithUserID(context.Background(), 7)
	ctx = services.WithRequestID(ctx, 42)
	ctx = services.WithItemKey(ctx, "request:42")
	ctx = services.WithCorrelationID(ctx, "abc-123")

	if id, ok := services.UserIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("user id round trip failed: %d %v", id, ok)
	}
	if id, ok := services.RequestIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("request id round trip failed: %d %v", id, ok)
	}
	if key, ok := services.ItemKeyFromContext(ctx); !ok || key != "request:42" {
		t.Fatalf("item key round trip failed: %q %v", key, ok)
	}
	if cid, ok := services.CorrelationIDFromContext(ctx); !ok || cid != "abc-123" {
		t.Fatalf("correlation id round trip failed: %q %v", cid, ok)
	}
}
