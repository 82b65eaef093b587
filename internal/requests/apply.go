package requests

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"libris/internal/services"
	"libris/internal/storage"
)

// Update describes a conditional mutation of one request row. Nil pointer
// fields are left untouched; Clear* flags null a column out.
type Update struct {
	// ExpectedStatus, when set, fails the whole write with a stale-transition
	// error if the row's current status no longer matches.
	ExpectedStatus *Status

	// Reopen permits the one sanctioned exception to terminal immutability:
	// resetting a fulfilled row whose delivery failed back to pending.
	Reopen bool

	Status            *Status
	DeliveryState     *DeliveryState
	ReleaseData       json.RawMessage
	ClearReleaseData  bool
	AdminNote         *string
	ReviewedBy        *int64
	ReviewedAt        *time.Time
	ClearReview       bool
	LastFailureReason *string
}

// Apply performs a single read-modify-write under the store lock. The row is
// re-read inside the transaction, the expected-status guard and every field
// invariant are checked against the resulting row, and only then is the
// update written.
func (s *Store) Apply(ctx context.Context, id int64, update Update) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	current, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "requests", "apply", fmt.Sprintf("request %d does not exist", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}

	if update.ExpectedStatus != nil && current.Status != *update.ExpectedStatus {
		return nil, services.Wrap(services.ErrStaleTransition, "requests", "apply",
			fmt.Sprintf("request %d is %s, expected %s", id, current.Status, *update.ExpectedStatus), nil)
	}

	result := *current
	if update.Status != nil {
		if _, ok := ParseStatus(string(*update.Status)); !ok {
			return nil, services.Wrap(services.ErrInvalidPayload, "requests", "apply",
				fmt.Sprintf("unknown status %q", *update.Status), nil)
		}
		if *update.Status != current.Status {
			reopening := update.Reopen && current.Status == StatusFulfilled && *update.Status == StatusPending
			if current.Status.Terminal() && !reopening {
				return nil, services.Wrap(services.ErrStaleTransition, "requests", "apply",
					fmt.Sprintf("request %d already resolved as %s", id, current.Status), nil)
			}
			result.Status = *update.Status
		}
	}
	if update.DeliveryState != nil {
		if _, ok := ParseDeliveryState(string(*update.DeliveryState)); !ok {
			return nil, services.Wrap(services.ErrInvalidPayload, "requests", "apply",
				fmt.Sprintf("unknown delivery state %q", *update.DeliveryState), nil)
		}
		if *update.DeliveryState != current.DeliveryState {
			result.DeliveryState = *update.DeliveryState
			now := time.Now().UTC()
			result.DeliveryUpdatedAt = &now
		}
	}
	if update.ClearReleaseData {
		result.ReleaseData = nil
	} else if len(update.ReleaseData) > 0 {
		if !isJSONObject(update.ReleaseData) {
			return nil, services.Wrap(services.ErrInvalidPayload, "requests", "apply",
				"release data must be a JSON object", nil)
		}
		result.ReleaseData = update.ReleaseData
	}
	if update.AdminNote != nil {
		result.AdminNote = strings.TrimSpace(*update.AdminNote)
	}
	if update.ClearReview {
		result.ReviewedBy = nil
		result.ReviewedAt = nil
	} else {
		if update.ReviewedBy != nil {
			result.ReviewedBy = update.ReviewedBy
		}
		if update.ReviewedAt != nil {
			result.ReviewedAt = update.ReviewedAt
		}
	}
	if update.LastFailureReason != nil {
		result.LastFailureReason = strings.TrimSpace(*update.LastFailureReason)
	}

	if strings.TrimSpace(result.ContentType) == "" {
		return nil, services.Wrap(services.ErrInvalidPayload, "requests", "apply", "content type must not be empty", nil)
	}
	if err := validateCoupling(result.Level, result.Status, result.ReleaseData); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE requests
         SET status = ?, delivery_state = ?, release_data = ?, admin_note = ?,
             reviewed_by = ?, reviewed_at = ?, delivery_updated_at = ?, last_failure_reason = ?
         WHERE id = ?`,
		result.Status,
		result.DeliveryState,
		nullableBlob(result.ReleaseData),
		storage.NullableString(result.AdminNote),
		storage.NullableInt64(result.ReviewedBy),
		storage.NullableTime(result.ReviewedAt),
		storage.NullableTime(result.DeliveryUpdatedAt),
		storage.NullableString(result.LastFailureReason),
		id,
	); err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return &result, nil
}
