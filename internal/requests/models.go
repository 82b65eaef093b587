package requests

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the request lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{StatusPending, StatusFulfilled, StatusRejected, StatusCancelled}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Terminal reports whether no further status transition is permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// DeliveryState tracks the external download queue's view of a fulfilled
// request. Only meaningful once the request is fulfilled.
type DeliveryState string

const (
	DeliveryNone        DeliveryState = "none"
	DeliveryUnknown     DeliveryState = "unknown"
	DeliveryQueued      DeliveryState = "queued"
	DeliveryResolving   DeliveryState = "resolving"
	DeliveryLocating    DeliveryState = "locating"
	DeliveryDownloading DeliveryState = "downloading"
	DeliveryComplete    DeliveryState = "complete"
	DeliveryError       DeliveryState = "error"
	DeliveryCancelled   DeliveryState = "cancelled"
)

var allDeliveryStates = []DeliveryState{
	DeliveryNone,
	DeliveryUnknown,
	DeliveryQueued,
	DeliveryResolving,
	DeliveryLocating,
	DeliveryDownloading,
	DeliveryComplete,
	DeliveryError,
	DeliveryCancelled,
}

var deliveryStateSet = func() map[DeliveryState]struct{} {
	set := make(map[DeliveryState]struct{}, len(allDeliveryStates))
	for _, state := range allDeliveryStates {
		set[state] = struct{}{}
	}
	return set
}()

// Terminal reports whether the delivery reached a final outcome.
func (d DeliveryState) Terminal() bool {
	switch d {
	case DeliveryComplete, DeliveryError, DeliveryCancelled:
		return true
	default:
		return false
	}
}

// ParseDeliveryState converts a string into a known DeliveryState.
func ParseDeliveryState(value string) (DeliveryState, bool) {
	normalized := DeliveryState(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := deliveryStateSet[normalized]
	return normalized, ok
}

// Level distinguishes work-level requests from concrete-release requests.
type Level string

const (
	LevelBook    Level = "book"
	LevelRelease Level = "release"
)

// ParseLevel converts a string into a known Level.
func ParseLevel(value string) (Level, bool) {
	normalized := Level(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case LevelBook, LevelRelease:
		return normalized, true
	default:
		return "", false
	}
}

// Request represents an acquisition request persisted in SQLite.
type Request struct {
	ID                int64
	UserID            int64
	Status            Status
	DeliveryState     DeliveryState
	Level             Level
	SourceHint        string
	ContentType       string
	PolicyMode        string
	BookData          json.RawMessage
	ReleaseData       json.RawMessage
	Note              string
	AdminNote         string
	ReviewedBy        *int64
	ReviewedAt        *time.Time
	CreatedAt         time.Time
	DeliveryUpdatedAt *time.Time
	LastFailureReason string
}

// HasRelease reports whether the request carries concrete release data.
func (r *Request) HasRelease() bool {
	return len(r.ReleaseData) > 0
}

// ReleaseSourceID extracts the external delivery identifier from the release
// payload, or "" when absent.
func (r *Request) ReleaseSourceID() string {
	if !r.HasRelease() {
		return ""
	}
	var payload struct {
		SourceID string `json:"source_id"`
	}
	if err := json.Unmarshal(r.ReleaseData, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.SourceID)
}
