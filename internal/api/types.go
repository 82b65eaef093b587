package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Request describes an acquisition request in a transport-friendly format.
type Request struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"userId"`
	Status            string          `json:"status"`
	DeliveryState     string          `json:"deliveryState"`
	Level             string          `json:"level"`
	SourceHint        string          `json:"sourceHint,omitempty"`
	ContentType       string          `json:"contentType"`
	PolicyMode        string          `json:"policyMode"`
	BookData          json.RawMessage `json:"bookData,omitempty"`
	ReleaseData       json.RawMessage `json:"releaseData,omitempty"`
	Note              string          `json:"note,omitempty"`
	AdminNote         string          `json:"adminNote,omitempty"`
	ReviewedBy        *int64          `json:"reviewedBy,omitempty"`
	ReviewedAt        string          `json:"reviewedAt,omitempty"`
	CreatedAt         string          `json:"createdAt,omitempty"`
	DeliveryUpdatedAt string          `json:"deliveryUpdatedAt,omitempty"`
	LastFailureReason string          `json:"lastFailureReason,omitempty"`
}

// ActivityEntry describes a terminal ledger snapshot.
type ActivityEntry struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	ItemType    string          `json:"itemType"`
	ItemKey     string          `json:"itemKey"`
	RequestID   *int64          `json:"requestId,omitempty"`
	SourceID    string          `json:"sourceId,omitempty"`
	Origin      string          `json:"origin"`
	FinalStatus string          `json:"finalStatus"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"`
	TerminalAt  string          `json:"terminalAt,omitempty"`
	CreatedAt   string          `json:"createdAt,omitempty"`
}

// HistoryEntry pairs a dismissal with the snapshot it was dismissed against.
type HistoryEntry struct {
	ItemType      string         `json:"itemType"`
	ItemKey       string         `json:"itemKey"`
	DismissedAt   string         `json:"dismissedAt,omitempty"`
	Entry         *ActivityEntry `json:"entry,omitempty"`
	Reconstructed bool           `json:"reconstructed,omitempty"`
}

// User describes an account in a transport-friendly format.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// RequestListResponse wraps a collection of requests for API responses.
type RequestListResponse struct {
	Requests []Request `json:"requests"`
}

// RequestResponse wraps a single request.
type RequestResponse struct {
	Request Request `json:"request"`
}

// ActivityListResponse wraps a collection of ledger entries.
type ActivityListResponse struct {
	Entries []ActivityEntry `json:"entries"`
}

// HistoryResponse wraps a page of dismissal history.
type HistoryResponse struct {
	History []HistoryEntry `json:"history"`
}

// UserListResponse wraps a collection of accounts.
type UserListResponse struct {
	Users []User `json:"users"`
}
