package approvals

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"libris/internal/activity"
	"libris/internal/config"
	"libris/internal/downloads"
	"libris/internal/logging"
	"libris/internal/requests"
	"libris/internal/services"
	"libris/internal/users"
)

// Service drives the request lifecycle.
type Service struct {
	limits   config.Requests
	requests *requests.Store
	users    *users.Store
	ledger   *activity.Store
	queue    downloads.ReleaseQueuer
	logger   *slog.Logger
}

// NewService assembles the lifecycle orchestrator. The ledger and queue may
// be nil in contexts that never fulfil (ledger writes are best-effort and
// skipped when absent).
func NewService(limits config.Requests, requestStore *requests.Store, userStore *users.Store, ledger *activity.Store, queue downloads.ReleaseQueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		limits:   limits,
		requests: requestStore,
		users:    userStore,
		ledger:   ledger,
		queue:    queue,
		logger:   logger.With(logging.FieldComponent, "approvals"),
	}
}

// CreateParams carries the caller-supplied fields of a new request.
type CreateParams struct {
	UserID      int64
	Level       requests.Level
	SourceHint  string
	ContentType string
	PolicyMode  string
	BookData    json.RawMessage
	ReleaseData json.RawMessage
	Note        string
}

// Create validates, quota-checks, duplicate-checks, and inserts a pending
// request. The quota and duplicate reads precede the insert; concurrent
// creates can both pass (see the package comment).
func (s *Service) Create(ctx context.Context, params CreateParams) (*requests.Request, error) {
	identity, err := parseBook(params.BookData)
	if err != nil {
		return nil, err
	}
	note, err := normalizeNote("create", params.Note, s.limits.NoteMaxLength)
	if err != nil {
		return nil, err
	}
	if err := checkPayloadSize("create", "book data", params.BookData, s.limits.PayloadMaxBytes); err != nil {
		return nil, err
	}
	if err := checkPayloadSize("create", "release data", params.ReleaseData, s.limits.PayloadMaxBytes); err != nil {
		return nil, err
	}

	pending, err := s.requests.CountPending(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("count pending requests: %w", err)
	}
	if s.limits.MaxPending > 0 && pending >= s.limits.MaxPending {
		return nil, services.Wrap(services.ErrMaxPendingReached, "approvals", "create",
			fmt.Sprintf("user %d already has %d pending requests", params.UserID, pending), nil)
	}

	duplicate, err := s.findDuplicatePending(ctx, params.UserID, params.ContentType, identity)
	if err != nil {
		return nil, err
	}
	if duplicate != nil {
		return nil, services.Wrap(services.ErrDuplicatePending, "approvals", "create",
			fmt.Sprintf("request %d is already pending for the same title", duplicate.ID), nil)
	}

	created, err := s.requests.Create(ctx, requests.CreateParams{
		UserID:      params.UserID,
		Level:       params.Level,
		SourceHint:  params.SourceHint,
		ContentType: params.ContentType,
		PolicyMode:  params.PolicyMode,
		BookData:    params.BookData,
		ReleaseData: params.ReleaseData,
		Note:        note,
	})
	if err != nil {
		return nil, err
	}

	logging.WithContext(ctx, s.logger).Info("request created",
		logging.FieldRequestID, created.ID,
		logging.FieldUserID, created.UserID,
		"content_type", created.ContentType)
	return created, nil
}

// Cancel withdraws the owner's own pending request.
func (s *Service) Cancel(ctx context.Context, id int64, actor *users.User) (*requests.Request, error) {
	request, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || actor.ID != request.UserID {
		return nil, services.Wrap(services.ErrForbidden, "approvals", "cancel",
			fmt.Sprintf("request %d belongs to another user", id), nil)
	}

	pending := requests.StatusPending
	cancelled := requests.StatusCancelled
	updated, err := s.requests.Apply(ctx, id, requests.Update{
		ExpectedStatus: &pending,
		Status:         &cancelled,
	})
	if err != nil {
		return nil, err
	}

	s.recordTerminal(ctx, updated, activity.FinalCancelled)
	logging.WithContext(ctx, s.logger).Info("request cancelled", logging.FieldRequestID, id)
	return updated, nil
}

// Reject resolves a pending request negatively and records the review.
func (s *Service) Reject(ctx context.Context, id int64, admin *users.User, adminNote string) (*requests.Request, error) {
	if err := s.requireAdmin(admin, "reject"); err != nil {
		return nil, err
	}
	if _, err := s.mustGet(ctx, id); err != nil {
		return nil, err
	}
	note, err := normalizeNote("reject", adminNote, s.limits.NoteMaxLength)
	if err != nil {
		return nil, err
	}

	pending := requests.StatusPending
	rejected := requests.StatusRejected
	now := time.Now().UTC()
	updated, err := s.requests.Apply(ctx, id, requests.Update{
		ExpectedStatus: &pending,
		Status:         &rejected,
		AdminNote:      &note,
		ReviewedBy:     &admin.ID,
		ReviewedAt:     &now,
	})
	if err != nil {
		return nil, err
	}

	s.recordTerminal(ctx, updated, activity.FinalRejected)
	logging.WithContext(ctx, s.logger).Info("request rejected",
		logging.FieldRequestID, id, "reviewed_by", admin.ID)
	return updated, nil
}

// FulfilParams carries the admin-supplied inputs to Fulfil.
type FulfilParams struct {
	// ReleaseData overrides the release stored on the request; nil keeps it.
	ReleaseData    json.RawMessage
	AdminNote      string
	ManualApproval bool
}

// Fulfil approves a pending request. With ManualApproval and no release the
// row jumps straight to fulfilled/complete; otherwise the release is enqueued
// with the external queue before the fulfilled/queued row is written under an
// expected-status guard. A failed enqueue leaves the row pending; a failed
// guard after a successful enqueue means the item was enqueued anyway.
func (s *Service) Fulfil(ctx context.Context, id int64, admin *users.User, params FulfilParams) (*requests.Request, error) {
	if err := s.requireAdmin(admin, "fulfil"); err != nil {
		return nil, err
	}
	request, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != requests.StatusPending {
		return nil, services.Wrap(services.ErrStaleTransition, "approvals", "fulfil",
			fmt.Sprintf("request %d is %s, expected pending", id, request.Status), nil)
	}
	note, err := normalizeNote("fulfil", params.AdminNote, s.limits.NoteMaxLength)
	if err != nil {
		return nil, err
	}

	release := params.ReleaseData
	if len(release) == 0 {
		release = request.ReleaseData
	}

	pending := requests.StatusPending
	fulfilled := requests.StatusFulfilled
	now := time.Now().UTC()

	if params.ManualApproval && len(release) == 0 {
		complete := requests.DeliveryComplete
		updated, err := s.requests.Apply(ctx, id, requests.Update{
			ExpectedStatus: &pending,
			Status:         &fulfilled,
			DeliveryState:  &complete,
			AdminNote:      &note,
			ReviewedBy:     &admin.ID,
			ReviewedAt:     &now,
		})
		if err != nil {
			return nil, err
		}
		s.recordTerminal(ctx, updated, activity.FinalComplete)
		logging.WithContext(ctx, s.logger).Info("request manually completed",
			logging.FieldRequestID, id, "reviewed_by", admin.ID)
		return updated, nil
	}

	if len(release) == 0 {
		return nil, services.Wrap(services.ErrInvalidPayload, "approvals", "fulfil",
			fmt.Sprintf("request %d has no release data to enqueue", id), nil)
	}
	if err := checkPayloadSize("fulfil", "release data", release, s.limits.PayloadMaxBytes); err != nil {
		return nil, err
	}

	owner, err := s.users.GetByID(ctx, request.UserID)
	if err != nil {
		return nil, fmt.Errorf("look up request owner: %w", err)
	}
	if owner == nil {
		return nil, services.Wrap(services.ErrNotFound, "approvals", "fulfil",
			fmt.Sprintf("user %d no longer exists", request.UserID), nil)
	}

	// External side effect outside the store lock. Not rolled back if the
	// guarded write below loses a race.
	if err := s.queue.QueueRelease(ctx, release, s.limits.QueuePriority, owner.ID, owner.Username); err != nil {
		return nil, services.Wrap(services.ErrQueueFailed, "approvals", "fulfil",
			fmt.Sprintf("external queue refused release for request %d", id), err)
	}

	queued := requests.DeliveryQueued
	updated, err := s.requests.Apply(ctx, id, requests.Update{
		ExpectedStatus: &pending,
		Status:         &fulfilled,
		DeliveryState:  &queued,
		ReleaseData:    release,
		AdminNote:      &note,
		ReviewedBy:     &admin.ID,
		ReviewedAt:     &now,
	})
	if err != nil {
		return nil, err
	}

	logging.WithContext(ctx, s.logger).Info("request fulfilled",
		logging.FieldRequestID, id, "reviewed_by", admin.ID)
	return updated, nil
}

// ReopenFailed resets a fulfilled request whose delivery failed back to
// pending. A completed delivery is never reopened; the call is a no-op then
// and the second return value reports false.
func (s *Service) ReopenFailed(ctx context.Context, id int64, failureReason string) (*requests.Request, bool, error) {
	request, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if request.Status != requests.StatusFulfilled {
		return nil, false, services.Wrap(services.ErrStaleTransition, "approvals", "reopen",
			fmt.Sprintf("request %d is %s, only fulfilled requests reopen", id, request.Status), nil)
	}
	if request.DeliveryState == requests.DeliveryComplete {
		return request, false, nil
	}
	reason := failureReason
	switch request.DeliveryState {
	case requests.DeliveryError, requests.DeliveryCancelled:
		// Always eligible.
	default:
		if reason == "" {
			return nil, false, services.Wrap(services.ErrStaleTransition, "approvals", "reopen",
				fmt.Sprintf("request %d delivery is %s and no failure reason was given", id, request.DeliveryState), nil)
		}
	}
	if reason == "" {
		reason = fmt.Sprintf("delivery ended as %s", request.DeliveryState)
	}

	fulfilled := requests.StatusFulfilled
	pending := requests.StatusPending
	none := requests.DeliveryNone
	updated, err := s.requests.Apply(ctx, id, requests.Update{
		ExpectedStatus: &fulfilled,
		Reopen:         true,
		Status:         &pending,
		DeliveryState:  &none,
		// A release-level request keeps its release: the level requires one.
		ClearReleaseData:  request.Level == requests.LevelBook,
		ClearReview:       true,
		LastFailureReason: &reason,
	})
	if err != nil {
		return nil, false, err
	}

	s.clearStaleDismissal(ctx, updated)
	logging.WithContext(ctx, s.logger).Info("request reopened",
		logging.FieldRequestID, id, "failure_reason", reason)
	return updated, true, nil
}

func (s *Service) mustGet(ctx context.Context, id int64) (*requests.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, services.Wrap(services.ErrNotFound, "approvals", "get",
			fmt.Sprintf("request %d does not exist", id), nil)
	}
	return request, nil
}

func (s *Service) requireAdmin(actor *users.User, operation string) error {
	if actor == nil || !actor.IsAdmin() {
		return services.Wrap(services.ErrForbidden, "approvals", operation,
			"operation requires an admin", nil)
	}
	return nil
}

// findDuplicatePending scans the caller's own pending rows for a normalized
// (title, author, content_type) match.
func (s *Service) findDuplicatePending(ctx context.Context, userID int64, contentType string, identity bookIdentity) (*requests.Request, error) {
	pending := requests.StatusPending
	rows, err := s.requests.List(ctx, requests.Filter{UserID: &userID, Status: &pending})
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	wantType := foldKey(contentType)
	for _, row := range rows {
		if foldKey(row.ContentType) != wantType {
			continue
		}
		existing, err := parseBook(row.BookData)
		if err != nil {
			continue
		}
		if existing.title == identity.title && existing.author == identity.author {
			return row, nil
		}
	}
	return nil, nil
}

// recordTerminal appends a ledger snapshot for a terminal transition.
// Failures are logged and swallowed; the lifecycle write already committed.
func (s *Service) recordTerminal(ctx context.Context, request *requests.Request, final activity.FinalStatus) {
	if s.ledger == nil {
		return
	}
	key, err := activity.RequestKey(request.ID)
	if err != nil {
		return
	}
	snapshot, err := json.Marshal(map[string]any{
		"request_id":   request.ID,
		"content_type": request.ContentType,
		"level":        request.Level,
		"status":       request.Status,
		"book_data":    request.BookData,
	})
	if err != nil {
		return
	}
	id := request.ID
	if _, err := s.ledger.RecordTerminalSnapshot(ctx, activity.RecordParams{
		UserID:      request.UserID,
		ItemType:    activity.ItemTypeRequest,
		ItemKey:     key,
		RequestID:   &id,
		SourceID:    request.ReleaseSourceID(),
		Origin:      activity.OriginRequest,
		FinalStatus: final,
		Snapshot:    snapshot,
	}); err != nil {
		logging.WithContext(ctx, s.logger).Warn("ledger snapshot not recorded",
			logging.FieldRequestID, request.ID, "error", err)
	}
}

// clearStaleDismissal drops the owner's dismissal for a reopened request so
// the next terminal outcome is not hidden by the old one.
func (s *Service) clearStaleDismissal(ctx context.Context, request *requests.Request) {
	if s.ledger == nil {
		return
	}
	key, err := activity.RequestKey(request.ID)
	if err != nil {
		return
	}
	if _, err := s.ledger.ClearDismissalsForItemKeys(ctx, request.UserID, activity.ItemTypeRequest, []string{key}); err != nil {
		logging.WithContext(ctx, s.logger).Warn("stale dismissal not cleared",
			logging.FieldRequestID, request.ID, "error", err)
	}
}
