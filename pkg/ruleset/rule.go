// Package ruleset defines versioned, immutable compliance rule snapshots and
// the predicate matchers that evaluate them against interaction content.
//
// Rulesets are loaded as whole validated bundles and never patched in place:
// a historical proof can always be re-validated against the exact ruleset
// version that was active when it was issued.
package ruleset

import (
	"fmt"
	"regexp"
)

// Severity is the ordinal seriousness of a finding.
type Severity string

const (
	SeverityInfo      Severity = "Info"
	SeverityWarning   Severity = "Warning"
	SeverityViolation Severity = "Violation"
	SeverityCritical  Severity = "Critical"
)

// Rank returns the ordering used for outcome aggregation:
// Critical > Violation > Warning > Info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityViolation:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Category is the predicate kind of a rule.
type Category string

const (
	CategoryDisclosureRequired Category = "disclosure-required"
	CategoryPhraseForbidden    Category = "phrase-forbidden"
	CategoryPatternForbidden   Category = "pattern-forbidden"
	// CategoryPredicate is a structured CEL predicate over content and locale.
	CategoryPredicate Category = "predicate"
	// CategorySemantic is a pluggable matcher delivered as a sandboxed WASM
	// module; it may report confidence below 1.0.
	CategorySemantic Category = "semantic"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryDisclosureRequired, CategoryPhraseForbidden,
		CategoryPatternForbidden, CategoryPredicate, CategorySemantic:
		return true
	}
	return false
}

// RuleDefinition is a single compliance rule as declared in a bundle.
// Immutable once its ruleset is registered.
type RuleDefinition struct {
	ID          string   `json:"id" yaml:"id"`
	Category    Category `json:"category" yaml:"category"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Pattern     string   `json:"pattern" yaml:"pattern"`
	Languages   []string `json:"languages" yaml:"languages"`
	Remediation string   `json:"remediation,omitempty" yaml:"remediation,omitempty"`
	// ModulePath points at the WASM module for semantic rules.
	ModulePath string `json:"module_path,omitempty" yaml:"module_path,omitempty"`
}

// AppliesTo reports whether the rule is declared for the given locale.
func (r *RuleDefinition) AppliesTo(locale string) bool {
	for _, l := range r.Languages {
		if l == locale {
			return true
		}
	}
	return false
}

// compiledRule pairs a declaration with its matcher, built at load time so
// evaluation is total: a malformed pattern fails loading, never a call.
type compiledRule struct {
	def     RuleDefinition
	matcher Matcher
}

// RuleSet is an immutable snapshot of compiled rules for one version.
type RuleSet struct {
	version string
	locales map[string]struct{}
	rules   []compiledRule // declaration order preserved for tie-breaking
}

// Version returns the ruleset version identifier.
func (rs *RuleSet) Version() string { return rs.version }

// SupportsLocale reports whether any rule in the set declares the locale.
func (rs *RuleSet) SupportsLocale(locale string) bool {
	_, ok := rs.locales[locale]
	return ok
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Rules returns the rule definitions in declaration order.
func (rs *RuleSet) Rules() []RuleDefinition {
	out := make([]RuleDefinition, len(rs.rules))
	for i, cr := range rs.rules {
		out[i] = cr.def
	}
	return out
}

// ForLocale returns the compiled rules applying to locale, in declaration order.
func (rs *RuleSet) ForLocale(locale string) []CompiledRule {
	var out []CompiledRule
	for _, cr := range rs.rules {
		if cr.def.AppliesTo(locale) {
			out = append(out, CompiledRule{Def: cr.def, Matcher: cr.matcher})
		}
	}
	return out
}

// CompiledRule is the evaluation view of a rule.
type CompiledRule struct {
	Def     RuleDefinition
	Matcher Matcher
}

func compileRule(def RuleDefinition, opts loadOptions) (compiledRule, error) {
	if def.ID == "" {
		return compiledRule{}, fmt.Errorf("rule with empty id")
	}
	if !def.Category.Valid() {
		return compiledRule{}, fmt.Errorf("rule %s: unknown category %q", def.ID, def.Category)
	}
	if !def.Severity.Valid() {
		return compiledRule{}, fmt.Errorf("rule %s: unknown severity %q", def.ID, def.Severity)
	}
	if len(def.Languages) == 0 {
		return compiledRule{}, fmt.Errorf("rule %s: no languages declared", def.ID)
	}

	var (
		m   Matcher
		err error
	)
	switch def.Category {
	case CategoryPhraseForbidden:
		m, err = newPhraseMatcher(def.Pattern)
	case CategoryPatternForbidden:
		var re *regexp.Regexp
		re, err = regexp.Compile(def.Pattern)
		if err == nil {
			m = &patternMatcher{re: re}
		}
	case CategoryDisclosureRequired:
		m, err = newDisclosureMatcher(def.Pattern)
	case CategoryPredicate:
		m, err = newPredicateMatcher(def.Pattern)
	case CategorySemantic:
		m, err = newSemanticMatcher(def, opts)
	}
	if err != nil {
		return compiledRule{}, fmt.Errorf("rule %s: %w", def.ID, err)
	}
	return compiledRule{def: def, matcher: m}, nil
}
