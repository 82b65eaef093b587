package activity

import (
	"fmt"
	"strconv"
	"strings"

	"libris/internal/services"
)

const (
	requestKeyPrefix  = "request:"
	downloadKeyPrefix = "download:"
)

// RequestKey builds the stable item key for a request row.
func RequestKey(id int64) (string, error) {
	if id <= 0 {
		return "", services.Wrap(services.ErrInvalidPayload, "activity", "item key",
			fmt.Sprintf("request id must be positive, got %d", id), nil)
	}
	return requestKeyPrefix + strconv.FormatInt(id, 10), nil
}

// DownloadKey builds the stable item key for an external download task.
func DownloadKey(taskID string) (string, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return "", services.Wrap(services.ErrInvalidPayload, "activity", "item key",
			"download task id must not be empty", nil)
	}
	return downloadKeyPrefix + taskID, nil
}

// ParseItemKey infers the item type from a full item key and validates it.
func ParseItemKey(key string) (ItemType, string, error) {
	key = strings.TrimSpace(key)
	var itemType ItemType
	switch {
	case strings.HasPrefix(key, requestKeyPrefix):
		itemType = ItemTypeRequest
	case strings.HasPrefix(key, downloadKeyPrefix):
		itemType = ItemTypeDownload
	default:
		return "", "", services.Wrap(services.ErrInvalidPayload, "activity", "item key",
			fmt.Sprintf("unrecognized item key %q", key), nil)
	}
	if err := validateItemKey(itemType, key); err != nil {
		return "", "", err
	}
	return itemType, key, nil
}

// RequestIDFromKey extracts the request id from a request item key.
func RequestIDFromKey(key string) (int64, bool) {
	raw, ok := strings.CutPrefix(key, requestKeyPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func validateItemKey(itemType ItemType, key string) error {
	switch itemType {
	case ItemTypeRequest:
		if _, ok := RequestIDFromKey(key); !ok {
			return services.Wrap(services.ErrInvalidPayload, "activity", "item key",
				fmt.Sprintf("malformed request item key %q", key), nil)
		}
	case ItemTypeDownload:
		raw, ok := strings.CutPrefix(key, downloadKeyPrefix)
		if !ok || strings.TrimSpace(raw) == "" {
			return services.Wrap(services.ErrInvalidPayload, "activity", "item key",
				fmt.Sprintf("malformed download item key %q", key), nil)
		}
	default:
		return services.Wrap(services.ErrInvalidPayload, "activity", "item key",
			fmt.Sprintf("unknown item type %q", itemType), nil)
	}
	return nil
}
