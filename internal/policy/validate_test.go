package policy_test

import (
	"errors"
	"strings"
	"testing"

	"libris/internal/policy"
	"libris/internal/services"
)

func testSources() []policy.Source {
	return []policy.Source{
		{ID: "annas", ContentTypes: []string{"book", "audiobook"}},
		{ID: "libgen", ContentTypes: []string{"book"}},
	}
}

func TestValidateRulesAccepts(t *testing.T) {
	defaults := map[string]policy.Mode{"book": policy.ModeRequestRelease}
	rules := []policy.Rule{
		{Source: "annas", ContentType: "book", Mode: policy.ModeBlocked},
		{Source: "libgen", ContentType: "book", Mode: policy.ModeRequestRelease},
	}
	if err := policy.ValidateRules(rules, testSources(), defaults); err != nil {
		t.Fatalf("expected rules to validate: %v", err)
	}
}

func TestValidateRulesRejections(t *testing.T) {
	defaults := map[string]policy.Mode{"book": policy.ModeRequestRelease}
	cases := []struct {
		name string
		rule policy.Rule
		want string
	}{
		{"empty source", policy.Rule{ContentType: "book", Mode: policy.ModeBlocked}, "source must not be empty"},
		{"empty content type", policy.Rule{Source: "annas", Mode: policy.ModeBlocked}, "content type must not be empty"},
		{"unknown mode", policy.Rule{Source: "annas", ContentType: "book", Mode: "always"}, "unknown mode"},
		{"unknown source", policy.Rule{Source: "zlib", ContentType: "book", Mode: policy.ModeBlocked}, "unknown source"},
		{"unsupported content type", policy.Rule{Source: "libgen", ContentType: "audiobook", Mode: policy.ModeBlocked}, "does not support"},
		{"less restrictive than default", policy.Rule{Source: "annas", ContentType: "book", Mode: policy.ModeDownload}, "less restrictive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.ValidateRules([]policy.Rule{tc.rule}, testSources(), defaults)
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			if !errors.Is(err, services.ErrInvalidPayload) {
				t.Fatalf("expected invalid payload classification, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateRulesUsesFallbackDefault(t *testing.T) {
	// No default declared for audiobook; the fixed fallback applies.
	rules := []policy.Rule{{Source: "annas", ContentType: "audiobook", Mode: policy.ModeRequestRelease}}
	err := policy.ValidateRules(rules, testSources(), nil)
	if err == nil {
		t.Fatal("expected rule below the fallback default to fail")
	}
	rules[0].Mode = policy.ModeBlocked
	if err := policy.ValidateRules(rules, testSources(), nil); err != nil {
		t.Fatalf("expected stricter rule to validate: %v", err)
	}
}
