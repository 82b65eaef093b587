package policy

import (
	"fmt"

	"libris/internal/services"
)

// ValidateRules checks declarative override rules against the sources they
// reference and the applicable defaults. A rule may never be less restrictive
// than the default it overrides; that is a product invariant enforced
// wherever rules are written, not a UI hint.
func ValidateRules(rules []Rule, sources []Source, defaults map[string]Mode) error {
	byID := make(map[string]Source, len(sources))
	for _, source := range sources {
		byID[normalizeToken(source.ID)] = source
	}

	for i, rule := range rules {
		source := normalizeToken(rule.Source)
		contentType := normalizeToken(rule.ContentType)
		if source == "" {
			return services.Wrap(services.ErrInvalidPayload, "policy", "validate rules",
				fmt.Sprintf("rule %d: source must not be empty", i), nil)
		}
		if contentType == "" {
			return services.Wrap(services.ErrInvalidPayload, "policy", "validate rules",
				fmt.Sprintf("rule %d: content type must not be empty", i), nil)
		}
		mode, ok := ParseMode(string(rule.Mode))
		if !ok {
			return services.Wrap(services.ErrInvalidPayload, "policy", "validate rules",
				fmt.Sprintf("rule %d: unknown mode %q", i, rule.Mode), nil)
		}

		declared, ok := byID[source]
		if !ok {
			return services.Wrap(services.ErrInvalidPayload, "policy", "validate rules",
				fmt.Sprintf("rule %d: unknown source %q", i, rule.Source), nil)
		}
		if !declared.Supports(contentType) {
			return services.Wrap(services.ErrInvalidPayload, "policy", "validate rules",
				fmt.Sprintf("rule %d: source %q does not support content type %q", i, rule.Source, rule.ContentType), nil)
		}

		applicable := FallbackMode
		if def, ok := defaults[contentType]; ok {
			applicable = def
		}
		if LessRestrictive(mode, applicable) {
			return services.Wrap(services.ErrInvalidPayload, "policy", "validate rules",
				fmt.Sprintf("rule %d: mode %q is less restrictive than the default %q for %q", i, mode, applicable, rule.ContentType), nil)
		}
	}
	return nil
}
