package policy

import "strings"

// Mode is the permission level computed for a source/content-type/user
// combination.
type Mode string

const (
	// ModeDownload lets the user trigger delivery directly.
	ModeDownload Mode = "download"
	// ModeRequestRelease requires an admin-approved request for a concrete release.
	ModeRequestRelease Mode = "request_release"
	// ModeRequestBook requires an admin-approved request at the work level.
	ModeRequestBook Mode = "request_book"
	// ModeBlocked denies acquisition entirely.
	ModeBlocked Mode = "blocked"
)

// FallbackMode applies when neither rules nor defaults match.
const FallbackMode = ModeRequestBook

// rank orders modes by restrictiveness, strictest highest.
var rank = map[Mode]int{
	ModeDownload:       0,
	ModeRequestRelease: 1,
	ModeRequestBook:    2,
	ModeBlocked:        3,
}

// Modes returns the known modes ordered least restrictive first.
func Modes() []Mode {
	return []Mode{ModeDownload, ModeRequestRelease, ModeRequestBook, ModeBlocked}
}

// ParseMode converts a string into a known Mode.
func ParseMode(value string) (Mode, bool) {
	normalized := Mode(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := rank[normalized]
	return normalized, ok
}

// LessRestrictive reports whether a permits more than b.
func LessRestrictive(a, b Mode) bool {
	return rank[a] < rank[b]
}

// Rule declares a (source, content type) mode override.
type Rule struct {
	Source      string
	ContentType string
	Mode        Mode
}

// Source describes a release source and the content types it serves.
type Source struct {
	ID           string
	ContentTypes []string
}

// Supports reports whether the source declares the content type.
func (s Source) Supports(contentType string) bool {
	contentType = normalizeToken(contentType)
	for _, ct := range s.ContentTypes {
		if normalizeToken(ct) == contentType {
			return true
		}
	}
	return false
}

// Settings holds a default mode per content type plus an ordered rule list.
// The zero value matches nothing.
type Settings struct {
	Defaults map[string]Mode
	Rules    []Rule
}

// Resolve yields the mode for a source/content-type pair given global
// settings and optional per-user settings. User-level rules and defaults win
// over their global counterparts.
func Resolve(source, contentType string, global Settings, user *Settings) Mode {
	source = normalizeToken(source)
	contentType = normalizeToken(contentType)

	if user != nil {
		if mode, ok := matchRule(user.Rules, source, contentType); ok {
			return mode
		}
	}
	if mode, ok := matchRule(global.Rules, source, contentType); ok {
		return mode
	}
	if user != nil {
		if mode, ok := user.Defaults[contentType]; ok {
			return mode
		}
	}
	if mode, ok := global.Defaults[contentType]; ok {
		return mode
	}
	return FallbackMode
}

// DefaultFor returns the applicable default mode for a content type,
// considering an optional user override, falling back to FallbackMode.
func DefaultFor(contentType string, global Settings, user *Settings) Mode {
	contentType = normalizeToken(contentType)
	if user != nil {
		if mode, ok := user.Defaults[contentType]; ok {
			return mode
		}
	}
	if mode, ok := global.Defaults[contentType]; ok {
		return mode
	}
	return FallbackMode
}

func matchRule(rules []Rule, source, contentType string) (Mode, bool) {
	for _, rule := range rules {
		if normalizeToken(rule.Source) == source && normalizeToken(rule.ContentType) == contentType {
			return rule.Mode, true
		}
	}
	return "", false
}

func normalizeToken(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
