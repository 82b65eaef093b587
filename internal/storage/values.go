package storage

import (
	"errors"
	"time"
)

// FormatTime renders a timestamp the way the stores persist it. RFC3339Nano
// in UTC sorts lexicographically, which the newest-first queries rely on.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime reads a timestamp persisted by FormatTime.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// NullableString maps an empty string to NULL for insertion.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime maps a nil time to NULL for insertion.
func NullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return FormatTime(*value)
}

// NullableInt64 maps a nil int64 to NULL for insertion.
func NullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}
