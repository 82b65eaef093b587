package activity

import (
	"encoding/json"
	"strings"
	"time"
)

// ItemType distinguishes ledger items.
type ItemType string

const (
	ItemTypeDownload ItemType = "download"
	ItemTypeRequest  ItemType = "request"
)

// ParseItemType converts a string into a known ItemType.
func ParseItemType(value string) (ItemType, bool) {
	normalized := ItemType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ItemTypeDownload, ItemTypeRequest:
		return normalized, true
	default:
		return "", false
	}
}

// Origin records how an item entered the system.
type Origin string

const (
	OriginDirect  Origin = "direct"
	OriginRequest Origin = "request"
	// OriginRequested is the legacy spelling of OriginRequest still present
	// in older rows.
	OriginRequested Origin = "requested"
)

// ParseOrigin converts a string into a known Origin.
func ParseOrigin(value string) (Origin, bool) {
	normalized := Origin(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case OriginDirect, OriginRequest, OriginRequested:
		return normalized, true
	default:
		return "", false
	}
}

// FinalStatus is the terminal outcome frozen into a ledger row.
type FinalStatus string

const (
	FinalComplete  FinalStatus = "complete"
	FinalError     FinalStatus = "error"
	FinalCancelled FinalStatus = "cancelled"
	FinalRejected  FinalStatus = "rejected"
)

// ParseFinalStatus converts a string into a known FinalStatus.
func ParseFinalStatus(value string) (FinalStatus, bool) {
	normalized := FinalStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case FinalComplete, FinalError, FinalCancelled, FinalRejected:
		return normalized, true
	default:
		return "", false
	}
}

// LogEntry is an immutable terminal snapshot.
type LogEntry struct {
	ID          int64
	UserID      int64
	ItemType    ItemType
	ItemKey     string
	RequestID   *int64
	SourceID    string
	Origin      Origin
	FinalStatus FinalStatus
	Snapshot    json.RawMessage
	TerminalAt  time.Time
	CreatedAt   time.Time
}

// Dismissal is one user's dismissal of one item.
type Dismissal struct {
	ID            int64
	UserID        int64
	ItemType      ItemType
	ItemKey       string
	ActivityLogID *int64
	DismissedAt   time.Time
}

// DismissalKey identifies a dismissed item within a user's dismissal set.
type DismissalKey struct {
	ItemType ItemType
	ItemKey  string
}

// HistoryEntry pairs a dismissal with the snapshot it was dismissed against.
// Entry is nil when no ledger row exists and no reconstruction was possible;
// Reconstructed marks entries rebuilt from the live request row.
type HistoryEntry struct {
	Dismissal     Dismissal
	Entry         *LogEntry
	Reconstructed bool
}
