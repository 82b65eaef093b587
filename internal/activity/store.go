package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"libris/internal/requests"
	"libris/internal/services"
	"libris/internal/storage"
)

// RequestReader is the narrow view of the request store the ledger needs for
// legacy history reconstruction.
type RequestReader interface {
	GetByID(ctx context.Context, id int64) (*requests.Request, error)
}

// Store manages ledger and dismissal persistence.
type Store struct {
	db       *storage.DB
	requests RequestReader
	mu       sync.Mutex
}

// NewStore wraps the shared database handle. The request reader may be nil;
// legacy history reconstruction is then skipped.
func NewStore(db *storage.DB, requests RequestReader) *Store {
	return &Store{db: db, requests: requests}
}

// RecordParams carries the fields of a new terminal snapshot.
type RecordParams struct {
	UserID      int64
	ItemType    ItemType
	ItemKey     string
	RequestID   *int64
	SourceID    string
	Origin      Origin
	FinalStatus FinalStatus
	Snapshot    json.RawMessage
	// TerminalAt is the authoritative ordering timestamp; zero means now.
	TerminalAt time.Time
}

// RecordTerminalSnapshot appends one immutable ledger row.
func (s *Store) RecordTerminalSnapshot(ctx context.Context, params RecordParams) (*LogEntry, error) {
	itemType, ok := ParseItemType(string(params.ItemType))
	if !ok {
		return nil, services.Wrap(services.ErrInvalidPayload, "activity", "record",
			fmt.Sprintf("unknown item type %q", params.ItemType), nil)
	}
	key := strings.TrimSpace(params.ItemKey)
	if err := validateItemKey(itemType, key); err != nil {
		return nil, err
	}
	origin, ok := ParseOrigin(string(params.Origin))
	if !ok {
		return nil, services.Wrap(services.ErrInvalidPayload, "activity", "record",
			fmt.Sprintf("unknown origin %q", params.Origin), nil)
	}
	final, ok := ParseFinalStatus(string(params.FinalStatus))
	if !ok {
		return nil, services.Wrap(services.ErrInvalidPayload, "activity", "record",
			fmt.Sprintf("unknown final status %q", params.FinalStatus), nil)
	}
	if params.UserID <= 0 {
		return nil, services.Wrap(services.ErrInvalidPayload, "activity", "record", "user id must be positive", nil)
	}

	snapshot := params.Snapshot
	if len(snapshot) == 0 {
		snapshot = json.RawMessage("{}")
	} else if !json.Valid(snapshot) {
		return nil, services.Wrap(services.ErrInvalidPayload, "activity", "record", "snapshot must be valid JSON", nil)
	}

	terminalAt := params.TerminalAt
	if terminalAt.IsZero() {
		terminalAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecWithRetry(
		ctx,
		`INSERT INTO activity_log (
            user_id, item_type, item_key, request_id, source_id,
            origin, final_status, snapshot, terminal_at, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.UserID,
		itemType,
		key,
		storage.NullableInt64(params.RequestID),
		storage.NullableString(strings.TrimSpace(params.SourceID)),
		origin,
		final,
		string(snapshot),
		storage.FormatTime(terminalAt),
		storage.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger row: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.getEntry(ctx, id)
}

// NewestEntryForKey returns the most recent ledger row for an item key, or
// nil when none exists.
func (s *Store) NewestEntryForKey(ctx context.Context, itemType ItemType, itemKey string) (*LogEntry, error) {
	row := s.db.Handle().QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM activity_log
         WHERE item_type = ? AND item_key = ?
         ORDER BY terminal_at DESC, id DESC LIMIT 1`,
		itemType, itemKey)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("newest entry for key: %w", err)
	}
	return entry, nil
}

// DismissParams identifies one item to dismiss. A nil ActivityLogID resolves
// to the newest matching ledger entry, which may not exist for legacy items.
type DismissParams struct {
	ItemType      ItemType
	ItemKey       string
	ActivityLogID *int64
}

// DismissItem upserts the per-user dismissal row for one item.
func (s *Store) DismissItem(ctx context.Context, userID int64, params DismissParams) (*Dismissal, error) {
	dismissals, err := s.DismissMany(ctx, userID, []DismissParams{params})
	if err != nil {
		return nil, err
	}
	return dismissals[0], nil
}

// DismissMany upserts dismissal rows for several items as one transaction.
func (s *Store) DismissMany(ctx context.Context, userID int64, items []DismissParams) ([]*Dismissal, error) {
	if userID <= 0 {
		return nil, services.Wrap(services.ErrInvalidPayload, "activity", "dismiss", "user id must be positive", nil)
	}
	if len(items) == 0 {
		return nil, services.Wrap(services.ErrInvalidPayload, "activity", "dismiss", "no items supplied", nil)
	}

	type resolved struct {
		itemType ItemType
		itemKey  string
		logID    *int64
	}
	prepared := make([]resolved, 0, len(items))
	for _, item := range items {
		itemType, ok := ParseItemType(string(item.ItemType))
		if !ok {
			return nil, services.Wrap(services.ErrInvalidPayload, "activity", "dismiss",
				fmt.Sprintf("unknown item type %q", item.ItemType), nil)
		}
		key := strings.TrimSpace(item.ItemKey)
		if err := validateItemKey(itemType, key); err != nil {
			return nil, err
		}
		logID := item.ActivityLogID
		if logID == nil {
			entry, err := s.NewestEntryForKey(ctx, itemType, key)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				logID = &entry.ID
			}
		}
		prepared = append(prepared, resolved{itemType: itemType, itemKey: key, logID: logID})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin dismiss tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := storage.FormatTime(time.Now())
	for _, item := range prepared {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO activity_dismissals (user_id, item_type, item_key, activity_log_id, dismissed_at)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(user_id, item_type, item_key)
             DO UPDATE SET activity_log_id = excluded.activity_log_id, dismissed_at = excluded.dismissed_at`,
			userID,
			item.itemType,
			item.itemKey,
			storage.NullableInt64(item.logID),
			now,
		); err != nil {
			return nil, fmt.Errorf("upsert dismissal: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dismissals: %w", err)
	}

	out := make([]*Dismissal, 0, len(prepared))
	for _, item := range prepared {
		dismissal, err := s.getDismissal(ctx, userID, item.itemType, item.itemKey)
		if err != nil {
			return nil, err
		}
		out = append(out, dismissal)
	}
	return out, nil
}

// DismissalSet returns every item the user has dismissed.
func (s *Store) DismissalSet(ctx context.Context, userID int64) (map[DismissalKey]struct{}, error) {
	rows, err := s.db.Handle().QueryContext(ctx,
		`SELECT item_type, item_key FROM activity_dismissals WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("load dismissal set: %w", err)
	}
	defer rows.Close()

	set := make(map[DismissalKey]struct{})
	for rows.Next() {
		var (
			itemType string
			itemKey  string
		)
		if err := rows.Scan(&itemType, &itemKey); err != nil {
			return nil, err
		}
		set[DismissalKey{ItemType: ItemType(itemType), ItemKey: itemKey}] = struct{}{}
	}
	return set, rows.Err()
}

// ClearDismissalsForItemKeys removes a user's dismissals for item keys that
// became active again, so stale dismissals don't hide new activity.
func (s *Store) ClearDismissalsForItemKeys(ctx context.Context, userID int64, itemType ItemType, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := makePlaceholders(len(keys))
	args := make([]any, 0, len(keys)+2)
	args = append(args, userID, itemType)
	for _, key := range keys {
		args = append(args, key)
	}
	res, err := s.db.ExecWithRetry(
		ctx,
		`DELETE FROM activity_dismissals
         WHERE user_id = ? AND item_type = ? AND item_key IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear dismissals: %w", err)
	}
	return res.RowsAffected()
}

// ClearHistory deletes all dismissal rows for a user. Ledger rows are
// untouched.
func (s *Store) ClearHistory(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecWithRetry(ctx,
		`DELETE FROM activity_dismissals WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

// UndismissedTerminalDownloads returns the newest terminal ledger row per
// download item key, excluding keys the viewer has dismissed. A nil owner
// returns rows across all owners (dismissals remain personal to the viewer).
func (s *Store) UndismissedTerminalDownloads(ctx context.Context, viewerID int64, ownerID *int64, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + entryColumnsPrefixed("a") + ` FROM activity_log a
        WHERE a.item_type = ?
          AND a.final_status IN (?, ?, ?)
          AND (? IS NULL OR a.user_id = ?)
          AND NOT EXISTS (
              SELECT 1 FROM activity_log b
              WHERE b.item_type = a.item_type AND b.item_key = a.item_key
                AND (b.terminal_at > a.terminal_at
                     OR (b.terminal_at = a.terminal_at AND b.id > a.id))
          )
          AND NOT EXISTS (
              SELECT 1 FROM activity_dismissals d
              WHERE d.user_id = ? AND d.item_type = a.item_type AND d.item_key = a.item_key
          )
        ORDER BY a.terminal_at DESC, a.id DESC
        LIMIT ?`

	owner := storage.NullableInt64(ownerID)
	rows, err := s.db.Handle().QueryContext(ctx, query,
		ItemTypeDownload,
		FinalComplete, FinalError, FinalCancelled,
		owner, owner,
		viewerID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("undismissed terminal downloads: %w", err)
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) getEntry(ctx context.Context, id int64) (*LogEntry, error) {
	row := s.db.Handle().QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM activity_log WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger row: %w", err)
	}
	return entry, nil
}

func (s *Store) getDismissal(ctx context.Context, userID int64, itemType ItemType, itemKey string) (*Dismissal, error) {
	row := s.db.Handle().QueryRowContext(ctx,
		`SELECT id, user_id, item_type, item_key, activity_log_id, dismissed_at
         FROM activity_dismissals WHERE user_id = ? AND item_type = ? AND item_key = ?`,
		userID, itemType, itemKey)
	dismissal, err := scanDismissal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dismissal: %w", err)
	}
	return dismissal, nil
}

const entryColumns = "id, user_id, item_type, item_key, request_id, source_id, origin, final_status, snapshot, terminal_at, created_at"

func entryColumnsPrefixed(alias string) string {
	parts := strings.Split(entryColumns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*LogEntry, error) {
	var (
		id          int64
		userID      int64
		itemType    string
		itemKey     string
		requestID   sql.NullInt64
		sourceID    sql.NullString
		origin      string
		finalStatus string
		snapshot    string
		terminalRaw string
		createdRaw  string
	)
	if err := scanner.Scan(
		&id,
		&userID,
		&itemType,
		&itemKey,
		&requestID,
		&sourceID,
		&origin,
		&finalStatus,
		&snapshot,
		&terminalRaw,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	entry := &LogEntry{
		ID:          id,
		UserID:      userID,
		ItemType:    ItemType(itemType),
		ItemKey:     itemKey,
		SourceID:    sourceID.String,
		Origin:      Origin(origin),
		FinalStatus: FinalStatus(finalStatus),
		Snapshot:    json.RawMessage(snapshot),
	}
	if requestID.Valid {
		v := requestID.Int64
		entry.RequestID = &v
	}
	if terminal, err := storage.ParseTime(terminalRaw); err == nil {
		entry.TerminalAt = terminal
	}
	if created, err := storage.ParseTime(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

func scanDismissal(scanner interface{ Scan(dest ...any) error }) (*Dismissal, error) {
	var (
		id           int64
		userID       int64
		itemType     string
		itemKey      string
		logID        sql.NullInt64
		dismissedRaw string
	)
	if err := scanner.Scan(&id, &userID, &itemType, &itemKey, &logID, &dismissedRaw); err != nil {
		return nil, err
	}
	dismissal := &Dismissal{
		ID:       id,
		UserID:   userID,
		ItemType: ItemType(itemType),
		ItemKey:  itemKey,
	}
	if logID.Valid {
		v := logID.Int64
		dismissal.ActivityLogID = &v
	}
	if dismissed, err := storage.ParseTime(dismissedRaw); err == nil {
		dismissal.DismissedAt = dismissed
	}
	return dismissal, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
