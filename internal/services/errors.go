package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidPayload marks malformed input: bad shape, missing required
	// fields, unknown enum values, oversized notes.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrForbidden marks an actor lacking ownership or role for the target.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks a missing entity, including rows removed by a
	// cascaded owner deletion.
	ErrNotFound = errors.New("not found")
	// ErrStaleTransition marks a tripped optimistic-concurrency guard or an
	// attempt to mutate a terminal request.
	ErrStaleTransition = errors.New("stale transition")
	// ErrDuplicatePending marks a pending request that duplicates one the
	// caller already has open.
	ErrDuplicatePending = errors.New("duplicate pending request")
	// ErrMaxPendingReached marks the per-user pending-request ceiling.
	ErrMaxPendingReached = errors.New("pending request limit reached")
	// ErrPayloadTooLarge marks a serialized blob exceeding the size cap.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrQueueFailed marks a failed external enqueue; the request stays
	// pending and the operation is safe to retry.
	ErrQueueFailed = errors.New("external queue failed")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later status mapping. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrInvalidPayload
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPStatus maps a classified error onto the status code the edge layer
// should surface. Unclassified errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrPayloadTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStaleTransition),
		errors.Is(err, ErrDuplicatePending),
		errors.Is(err, ErrMaxPendingReached),
		errors.Is(err, ErrQueueFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns the machine-readable code for a classified error, or "internal"
// when the error carries no known marker.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStaleTransition):
		return "stale_transition"
	case errors.Is(err, ErrDuplicatePending):
		return "duplicate_pending"
	case errors.Is(err, ErrMaxPendingReached):
		return "max_pending_reached"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrQueueFailed):
		return "queue_failed"
	default:
		return "internal"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
