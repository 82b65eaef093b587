package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"libris/internal/requests"
	"libris/internal/storage"
)

// History returns the user's dismissed items, newest dismissal first. Each
// entry carries the ledger snapshot it was dismissed against; dismissals that
// predate the ledger get a best-effort snapshot rebuilt from the live request
// row when one still exists.
func (s *Store) History(ctx context.Context, userID int64, limit, offset int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Handle().QueryContext(ctx,
		`SELECT d.id, d.user_id, d.item_type, d.item_key, d.activity_log_id, d.dismissed_at,
                `+nullableEntryColumns("a")+`
         FROM activity_dismissals d
         LEFT JOIN activity_log a ON a.id = d.activity_log_id
         WHERE d.user_id = ?
         ORDER BY d.dismissed_at DESC, d.id DESC
         LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range history {
		if history[i].Entry != nil {
			continue
		}
		reconstructed, err := s.reconstruct(ctx, history[i].Dismissal)
		if err != nil {
			return nil, err
		}
		if reconstructed != nil {
			history[i].Entry = reconstructed
			history[i].Reconstructed = true
		}
	}
	return history, nil
}

// reconstruct rebuilds a view-only snapshot from the live request row for a
// dismissal with no ledger link. Returns nil when the item key isn't a
// request key, the request is gone, or it never reached a terminal status.
func (s *Store) reconstruct(ctx context.Context, dismissal Dismissal) (*LogEntry, error) {
	if s.requests == nil || dismissal.ItemType != ItemTypeRequest {
		return nil, nil
	}
	requestID, ok := RequestIDFromKey(dismissal.ItemKey)
	if !ok {
		return nil, nil
	}
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("reconstruct history entry: %w", err)
	}
	if request == nil || !request.Status.Terminal() {
		return nil, nil
	}
	final, ok := inferFinalStatus(request)
	if !ok {
		return nil, nil
	}

	snapshot, err := json.Marshal(map[string]any{
		"request_id":   request.ID,
		"content_type": request.ContentType,
		"level":        request.Level,
		"status":       request.Status,
		"book_data":    request.BookData,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reconstructed snapshot: %w", err)
	}

	id := request.ID
	entry := &LogEntry{
		UserID:      request.UserID,
		ItemType:    ItemTypeRequest,
		ItemKey:     dismissal.ItemKey,
		RequestID:   &id,
		SourceID:    request.ReleaseSourceID(),
		Origin:      OriginRequest,
		FinalStatus: final,
		Snapshot:    snapshot,
		TerminalAt:  terminalTimeFor(request),
		CreatedAt:   request.CreatedAt,
	}
	return entry, nil
}

// inferFinalStatus maps a terminal request row onto a ledger outcome.
func inferFinalStatus(request *requests.Request) (FinalStatus, bool) {
	switch request.Status {
	case requests.StatusRejected:
		return FinalRejected, true
	case requests.StatusCancelled:
		return FinalCancelled, true
	case requests.StatusFulfilled:
		switch request.DeliveryState {
		case requests.DeliveryError:
			return FinalError, true
		case requests.DeliveryCancelled:
			return FinalCancelled, true
		default:
			return FinalComplete, true
		}
	default:
		return "", false
	}
}

// terminalTimeFor approximates when a request reached its terminal state.
func terminalTimeFor(request *requests.Request) time.Time {
	if request.DeliveryUpdatedAt != nil {
		return *request.DeliveryUpdatedAt
	}
	if request.ReviewedAt != nil {
		return *request.ReviewedAt
	}
	return request.CreatedAt
}

func nullableEntryColumns(alias string) string {
	return alias + ".id, " + alias + ".user_id, " + alias + ".item_type, " + alias + ".item_key, " +
		alias + ".request_id, " + alias + ".source_id, " + alias + ".origin, " + alias + ".final_status, " +
		alias + ".snapshot, " + alias + ".terminal_at, " + alias + ".created_at"
}

func scanHistoryRow(scanner interface{ Scan(dest ...any) error }) (HistoryEntry, error) {
	var (
		dismissal    Dismissal
		itemType     string
		itemKey      string
		logID        sql.NullInt64
		dismissedRaw string

		entryID     sql.NullInt64
		entryUser   sql.NullInt64
		entryType   sql.NullString
		entryKey    sql.NullString
		entryReq    sql.NullInt64
		entrySource sql.NullString
		entryOrigin sql.NullString
		entryFinal  sql.NullString
		entrySnap   sql.NullString
		entryTerm   sql.NullString
		entryMade   sql.NullString
	)
	if err := scanner.Scan(
		&dismissal.ID,
		&dismissal.UserID,
		&itemType,
		&itemKey,
		&logID,
		&dismissedRaw,
		&entryID,
		&entryUser,
		&entryType,
		&entryKey,
		&entryReq,
		&entrySource,
		&entryOrigin,
		&entryFinal,
		&entrySnap,
		&entryTerm,
		&entryMade,
	); err != nil {
		return HistoryEntry{}, err
	}

	dismissal.ItemType = ItemType(itemType)
	dismissal.ItemKey = itemKey
	if logID.Valid {
		v := logID.Int64
		dismissal.ActivityLogID = &v
	}
	if dismissed, err := storage.ParseTime(dismissedRaw); err == nil {
		dismissal.DismissedAt = dismissed
	}

	history := HistoryEntry{Dismissal: dismissal}
	if entryID.Valid {
		entry := &LogEntry{
			ID:          entryID.Int64,
			UserID:      entryUser.Int64,
			ItemType:    ItemType(entryType.String),
			ItemKey:     entryKey.String,
			SourceID:    entrySource.String,
			Origin:      Origin(entryOrigin.String),
			FinalStatus: FinalStatus(entryFinal.String),
			Snapshot:    json.RawMessage(entrySnap.String),
		}
		if entryReq.Valid {
			v := entryReq.Int64
			entry.RequestID = &v
		}
		if terminal, err := storage.ParseTime(entryTerm.String); err == nil {
			entry.TerminalAt = terminal
		}
		if created, err := storage.ParseTime(entryMade.String); err == nil {
			entry.CreatedAt = created
		}
		history.Entry = entry
	}
	return history, nil
}
