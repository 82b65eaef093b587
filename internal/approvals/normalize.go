package approvals

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"libris/internal/services"
)

var requiredBookFields = []string{"title", "author", "provider", "provider_id"}

var caseFolder = cases.Fold()

// foldKey lowercases via Unicode case folding and collapses interior
// whitespace, so "  Frank  HERBERT " and "frank herbert" compare equal.
func foldKey(value string) string {
	return strings.Join(strings.Fields(caseFolder.String(value)), " ")
}

// bookIdentity is the normalized duplicate-detection tuple extracted from a
// book payload.
type bookIdentity struct {
	title  string
	author string
}

// parseBook validates the required book fields and returns the normalized
// identity used for duplicate detection. Field names match
// case/whitespace-insensitively.
func parseBook(data json.RawMessage) (bookIdentity, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return bookIdentity{}, services.Wrap(services.ErrInvalidPayload, "approvals", "create",
			"book data must be a JSON object", err)
	}

	normalized := make(map[string]string, len(fields))
	for key, raw := range fields {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		normalized[foldKey(key)] = strings.TrimSpace(value)
	}

	for _, field := range requiredBookFields {
		if normalized[foldKey(field)] == "" {
			return bookIdentity{}, services.Wrap(services.ErrInvalidPayload, "approvals", "create",
				fmt.Sprintf("book data is missing required field %q", field), nil)
		}
	}

	return bookIdentity{
		title:  foldKey(normalized[foldKey("title")]),
		author: foldKey(normalized[foldKey("author")]),
	}, nil
}

// normalizeNote trims a user note and enforces the configured length cap.
// Whitespace-only notes become absent. The operation names the caller in the
// wrapped error.
func normalizeNote(operation, note string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(note)
	if trimmed == "" {
		return "", nil
	}
	if maxLength > 0 && len(trimmed) > maxLength {
		return "", services.Wrap(services.ErrInvalidPayload, "approvals", operation,
			fmt.Sprintf("note exceeds %d characters", maxLength), nil)
	}
	return trimmed, nil
}

// checkPayloadSize enforces the byte cap on a serialized blob.
func checkPayloadSize(operation, name string, data json.RawMessage, maxBytes int) error {
	if maxBytes > 0 && len(data) > maxBytes {
		return services.Wrap(services.ErrPayloadTooLarge, "approvals", operation,
			fmt.Sprintf("%s exceeds %d bytes", name, maxBytes), nil)
	}
	return nil
}
