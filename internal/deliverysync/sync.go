package deliverysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"libris/internal/activity"
	"libris/internal/downloads"
	"libris/internal/logging"
	"libris/internal/requests"
	"libris/internal/services"
)

// Synchronizer merges external delivery-queue snapshots back into persisted
// request rows.
type Synchronizer struct {
	requests *requests.Store
	ledger   *activity.Store
	logger   *slog.Logger
}

// New assembles a synchronizer. The ledger may be nil; terminal snapshots are
// then skipped.
func New(requestStore *requests.Store, ledger *activity.Store, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synchronizer{
		requests: requestStore,
		ledger:   ledger,
		logger:   logger.With(logging.FieldComponent, "deliverysync"),
	}
}

// Options scopes a sync pass.
type Options struct {
	// UserID restricts the pass to one owner's requests.
	UserID *int64
}

// Sync walks every fulfilled request whose release source id appears in the
// snapshot and writes the mapped delivery state where it differs. The pass is
// idempotent; it returns the rows it changed so callers can fan out
// notifications.
func (s *Synchronizer) Sync(ctx context.Context, snapshot downloads.Snapshot, opts Options) ([]*requests.Request, error) {
	states := reverseMap(snapshot, s.logger)
	if len(states) == 0 {
		return nil, nil
	}

	fulfilled := requests.StatusFulfilled
	rows, err := s.requests.List(ctx, requests.Filter{UserID: opts.UserID, Status: &fulfilled})
	if err != nil {
		return nil, fmt.Errorf("list fulfilled requests: %w", err)
	}

	var changed []*requests.Request
	for _, row := range rows {
		sourceID := row.ReleaseSourceID()
		if sourceID == "" {
			continue
		}
		target, ok := states[sourceID]
		if !ok || target == row.DeliveryState {
			continue
		}

		wasTerminal := row.DeliveryState.Terminal()
		updated, err := s.requests.Apply(ctx, row.ID, requests.Update{
			ExpectedStatus: &fulfilled,
			DeliveryState:  &target,
		})
		if errors.Is(err, services.ErrStaleTransition) {
			// Someone reopened or re-resolved the row mid-pass; the next
			// pass will see the fresh state.
			logging.WithContext(ctx, s.logger).Debug("skipping stale row",
				logging.FieldRequestID, row.ID)
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("update delivery state for request %d: %w", row.ID, err)
		}
		changed = append(changed, updated)

		if target.Terminal() {
			s.recordTerminal(ctx, updated)
		} else if wasTerminal {
			s.clearStaleDismissal(ctx, updated)
		}
	}
	return changed, nil
}

// reverseMap flattens bucket → ids into id → delivery state, dropping
// unparseable bucket names.
func reverseMap(snapshot downloads.Snapshot, logger *slog.Logger) map[string]requests.DeliveryState {
	states := make(map[string]requests.DeliveryState)
	for bucket, ids := range snapshot {
		parsed, ok := downloads.ParseBucket(string(bucket))
		if !ok {
			logger.Warn("ignoring unknown delivery bucket", "bucket", string(bucket))
			continue
		}
		state, ok := requests.ParseDeliveryState(string(parsed))
		if !ok {
			continue
		}
		for id := range ids {
			states[id] = state
		}
	}
	return states
}

func finalStatusFor(state requests.DeliveryState) (activity.FinalStatus, bool) {
	switch state {
	case requests.DeliveryComplete:
		return activity.FinalComplete, true
	case requests.DeliveryError:
		return activity.FinalError, true
	case requests.DeliveryCancelled:
		return activity.FinalCancelled, true
	default:
		return "", false
	}
}

// recordTerminal appends a ledger snapshot for a delivery that just ended.
// Best-effort: the delivery-state write already committed.
func (s *Synchronizer) recordTerminal(ctx context.Context, request *requests.Request) {
	if s.ledger == nil {
		return
	}
	final, ok := finalStatusFor(request.DeliveryState)
	if !ok {
		return
	}
	key, err := activity.RequestKey(request.ID)
	if err != nil {
		return
	}
	snapshot, err := json.Marshal(map[string]any{
		"request_id":     request.ID,
		"content_type":   request.ContentType,
		"delivery_state": request.DeliveryState,
		"book_data":      request.BookData,
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

// clearStaleDismissal drops the owner's dismissal for an item that left a
// terminal state, so the retry's outcome is not hidden by the old dismissal.
func (s *Synchronizer) clearStaleDismissal(ctx context.Context, request *requests.Request) {
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
