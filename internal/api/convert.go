package api

import (
	"time"

	"libris/internal/activity"
	"libris/internal/requests"
	"libris/internal/users"
)

// FromRequest converts a request record to its API representation.
func FromRequest(request *requests.Request) Request {
	if request == nil {
		return Request{}
	}

	dto := Request{
		ID:                request.ID,
		UserID:            request.UserID,
		Status:            string(request.Status),
		DeliveryState:     string(request.DeliveryState),
		Level:             string(request.Level),
		SourceHint:        request.SourceHint,
		ContentType:       request.ContentType,
		PolicyMode:        request.PolicyMode,
		BookData:          request.BookData,
		ReleaseData:       request.ReleaseData,
		Note:              request.Note,
		AdminNote:         request.AdminNote,
		ReviewedBy:        request.ReviewedBy,
		LastFailureReason: request.LastFailureReason,
	}
	if request.ReviewedAt != nil {
		dto.ReviewedAt = FormatTime(*request.ReviewedAt)
	}
	dto.CreatedAt = FormatTime(request.CreatedAt)
	if request.DeliveryUpdatedAt != nil {
		dto.DeliveryUpdatedAt = FormatTime(*request.DeliveryUpdatedAt)
	}
	return dto
}

// FromRequests converts a slice of request records into API DTOs.
func FromRequests(records []*requests.Request) []Request {
	if len(records) == 0 {
		return nil
	}
	out := make([]Request, 0, len(records))
	for _, record := range records {
		out = append(out, FromRequest(record))
	}
	return out
}

// FromActivityEntry converts a ledger row to its API representation.
func FromActivityEntry(entry *activity.LogEntry) ActivityEntry {
	if entry == nil {
		return ActivityEntry{}
	}
	return ActivityEntry{
		ID:          entry.ID,
		UserID:      entry.UserID,
		ItemType:    string(entry.ItemType),
		ItemKey:     entry.ItemKey,
		RequestID:   entry.RequestID,
		SourceID:    entry.SourceID,
		Origin:      string(entry.Origin),
		FinalStatus: string(entry.FinalStatus),
		Snapshot:    entry.Snapshot,
		TerminalAt:  FormatTime(entry.TerminalAt),
		CreatedAt:   FormatTime(entry.CreatedAt),
	}
}

// FromActivityEntries converts a slice of ledger rows into API DTOs.
func FromActivityEntries(entries []*activity.LogEntry) []ActivityEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]ActivityEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromActivityEntry(entry))
	}
	return out
}

// FromHistoryEntry converts one history row, carrying the reconstruction flag
// through so consumers can mark best-effort snapshots.
func FromHistoryEntry(entry activity.HistoryEntry) HistoryEntry {
	dto := HistoryEntry{
		ItemType:      string(entry.Dismissal.ItemType),
		ItemKey:       entry.Dismissal.ItemKey,
		DismissedAt:   FormatTime(entry.Dismissal.DismissedAt),
		Reconstructed: entry.Reconstructed,
	}
	if entry.Entry != nil {
		converted := FromActivityEntry(entry.Entry)
		dto.Entry = &converted
	}
	return dto
}

// FromHistory converts a page of history rows into API DTOs.
func FromHistory(entries []activity.HistoryEntry) []HistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromHistoryEntry(entry))
	}
	return out
}

// FromUser converts an account record to its API representation.
func FromUser(user *users.User) User {
	if user == nil {
		return User{}
	}
	return User{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: FormatTime(user.CreatedAt),
	}
}

// FromUsers converts a slice of account records into API DTOs.
func FromUsers(records []*users.User) []User {
	if len(records) == 0 {
		return nil
	}
	out := make([]User, 0, len(records))
	for _, record := range records {
		out = append(out, FromUser(record))
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
