package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"libris/internal/services"
	"libris/internal/storage"
)

// Store manages request persistence.
type Store struct {
	db *storage.DB
	mu sync.Mutex
}

// NewStore wraps the shared database handle.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// CreateParams carries the fields of a new request.
type CreateParams struct {
	UserID      int64
	Level       Level
	SourceHint  string
	ContentType string
	PolicyMode  string
	BookData    json.RawMessage
	ReleaseData json.RawMessage
	Note        string
}

// Create persists a new pending request with delivery state none.
func (s *Store) Create(ctx context.Context, params CreateParams) (*Request, error) {
	if err := validateCreate(params); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecWithRetry(
		ctx,
		`INSERT INTO requests (
            user_id, status, delivery_state, request_level, source_hint,
            content_type, policy_mode, book_data, release_data, note, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.UserID,
		StatusPending,
		DeliveryNone,
		params.Level,
		storage.NullableString(strings.TrimSpace(params.SourceHint)),
		strings.TrimSpace(params.ContentType),
		params.PolicyMode,
		string(params.BookData),
		nullableBlob(params.ReleaseData),
		storage.NullableString(params.Note),
		storage.FormatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a request by identifier. Missing rows return nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Request, error) {
	row := s.db.Handle().QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	request, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return request, nil
}

// Filter narrows List results.
type Filter struct {
	UserID *int64
	Status *Status
	Limit  int
	Offset int
}

// List returns requests newest-first by (created_at, id).
func (s *Store) List(ctx context.Context, filter Filter) ([]*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != nil {
		clauses = append(clauses, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *filter.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.Handle().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, request)
	}
	return out, rows.Err()
}

// CountPending returns the number of open requests a user holds.
func (s *Store) CountPending(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.Handle().QueryRowContext(ctx,
		`SELECT COUNT(1) FROM requests WHERE user_id = ? AND status = ?`,
		userID, StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return count, nil
}

func validateCreate(params CreateParams) error {
	if params.UserID <= 0 {
		return services.Wrap(services.ErrInvalidPayload, "requests", "create", "user id must be positive", nil)
	}
	if strings.TrimSpace(params.ContentType) == "" {
		return services.Wrap(services.ErrInvalidPayload, "requests", "create", "content type must not be empty", nil)
	}
	if _, ok := ParseLevel(string(params.Level)); !ok {
		return services.Wrap(services.ErrInvalidPayload, "requests", "create", fmt.Sprintf("unknown request level %q", params.Level), nil)
	}
	if strings.TrimSpace(params.PolicyMode) == "" {
		return services.Wrap(services.ErrInvalidPayload, "requests", "create", "policy mode must not be empty", nil)
	}
	if !isJSONObject(params.BookData) {
		return services.Wrap(services.ErrInvalidPayload, "requests", "create", "book data must be a JSON object", nil)
	}
	if len(params.ReleaseData) > 0 && !isJSONObject(params.ReleaseData) {
		return services.Wrap(services.ErrInvalidPayload, "requests", "create", "release data must be a JSON object", nil)
	}
	return validateCoupling(params.Level, StatusPending, params.ReleaseData)
}

// validateCoupling enforces the request_level/release_data invariant: a
// release-level request always carries release data, and a book-level request
// carries none until it is fulfilled.
func validateCoupling(level Level, status Status, release json.RawMessage) error {
	if level == LevelRelease && len(release) == 0 {
		return services.Wrap(services.ErrInvalidPayload, "requests", "validate",
			"release-level request requires release data", nil)
	}
	if level == LevelBook && status != StatusFulfilled && len(release) > 0 {
		return services.Wrap(services.ErrInvalidPayload, "requests", "validate",
			"book-level request must not carry release data before fulfilment", nil)
	}
	return nil
}

func isJSONObject(data json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed[0] != '{' {
		return false
	}
	return json.Valid(data)
}

func nullableBlob(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

const requestColumns = "id, user_id, status, delivery_state, request_level, source_hint, content_type, policy_mode, book_data, release_data, note, admin_note, reviewed_by, reviewed_at, created_at, delivery_updated_at, last_failure_reason"

func scanRequest(scanner interface{ Scan(dest ...any) error }) (*Request, error) {
	var (
		id            int64
		userID        int64
		statusStr     string
		deliveryStr   string
		levelStr      string
		sourceHint    sql.NullString
		contentType   string
		policyMode    string
		bookData      string
		releaseData   sql.NullString
		note          sql.NullString
		adminNote     sql.NullString
		reviewedBy    sql.NullInt64
		reviewedRaw   sql.NullString
		createdRaw    string
		deliveryRaw   sql.NullString
		failureReason sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&userID,
		&statusStr,
		&deliveryStr,
		&levelStr,
		&sourceHint,
		&contentType,
		&policyMode,
		&bookData,
		&releaseData,
		&note,
		&adminNote,
		&reviewedBy,
		&reviewedRaw,
		&createdRaw,
		&deliveryRaw,
		&failureReason,
	); err != nil {
		return nil, err
	}

	request := &Request{
		ID:                id,
		UserID:            userID,
		Status:            Status(statusStr),
		DeliveryState:     DeliveryState(deliveryStr),
		Level:             Level(levelStr),
		SourceHint:        sourceHint.String,
		ContentType:       contentType,
		PolicyMode:        policyMode,
		BookData:          json.RawMessage(bookData),
		Note:              note.String,
		AdminNote:         adminNote.String,
		LastFailureReason: failureReason.String,
	}
	if releaseData.Valid && releaseData.String != "" {
		request.ReleaseData = json.RawMessage(releaseData.String)
	}
	if reviewedBy.Valid {
		v := reviewedBy.Int64
		request.ReviewedBy = &v
	}
	if reviewedRaw.Valid {
		if reviewed, err := storage.ParseTime(reviewedRaw.String); err == nil {
			request.ReviewedAt = &reviewed
		}
	}
	if created, err := storage.ParseTime(createdRaw); err == nil {
		request.CreatedAt = created
	}
	if deliveryRaw.Valid {
		if updated, err := storage.ParseTime(deliveryRaw.String); err == nil {
			request.DeliveryUpdatedAt = &updated
		}
	}
	return request, nil
}
