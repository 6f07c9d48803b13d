package ruleset

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
)

// Span is a half-open byte range into the matched content copy. Spans are
// persisted instead of the content itself.
//
// Which copy a span indexes depends on the rule category: phrase-forbidden
// spans point into the normalized content (matching runs after whitespace
// collapse and diacritic stripping shift byte offsets), pattern-forbidden
// and predicate spans point into the raw content, and disclosure-required
// spans are empty since absence has no location.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Match is a successful predicate application.
type Match struct {
	Span       Span
	Confidence float64
}

// Matcher is the uniform capability over predicate variants. A nil *Match
// with a nil error means the rule did not fire. New matcher kinds plug in
// here without touching outcome aggregation.
type Matcher interface {
	Match(c Content) (*Match, error)
}

// --- phrase-forbidden ---

type phraseMatcher struct {
	phrase string // pre-normalized
}

func newPhraseMatcher(pattern string) (Matcher, error) {
	p := Normalize(pattern)
	if p == "" {
		return nil, fmt.Errorf("empty phrase pattern")
	}
	return &phraseMatcher{phrase: p}, nil
}

// Match reports a span into c.Normalized; the phrase only exists there.
func (m *phraseMatcher) Match(c Content) (*Match, error) {
	idx := strings.Index(c.Normalized, m.phrase)
	if idx < 0 {
		return nil, nil
	}
	return &Match{
		Span:       Span{Start: idx, End: idx + len(m.phrase)},
		Confidence: 1.0,
	}, nil
}

// --- pattern-forbidden ---

type patternMatcher struct {
	re *regexp.Regexp
}

// Match reports a span into c.Raw so regex anchors and case classes see
// the content exactly as submitted.
func (m *patternMatcher) Match(c Content) (*Match, error) {
	loc := m.re.FindStringIndex(c.Raw)
	if loc == nil {
		return nil, nil
	}
	return &Match{
		Span:       Span{Start: loc[0], End: loc[1]},
		Confidence: 1.0,
	}, nil
}

// --- disclosure-required ---

// disclosureMatcher fires only when the required companion phrase is absent.
type disclosureMatcher struct {
	phrase string // pre-normalized
}

func newDisclosureMatcher(pattern string) (Matcher, error) {
	p := Normalize(pattern)
	if p == "" {
		return nil, fmt.Errorf("empty disclosure pattern")
	}
	return &disclosureMatcher{phrase: p}, nil
}

func (m *disclosureMatcher) Match(c Content) (*Match, error) {
	if strings.Contains(c.Normalized, m.phrase) {
		return nil, nil
	}
	// Missing disclosure: there is no text to point at, so the span is empty.
	return &Match{Span: Span{}, Confidence: 1.0}, nil
}

// --- predicate (CEL) ---

// predicateMatcher evaluates a CEL boolean expression over the content.
// Compilation happens at load time; a bad expression rejects the bundle.
type predicateMatcher struct {
	prg cel.Program
}

func newPredicateMatcher(expr string) (Matcher, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("empty predicate expression")
	}
	env, err := cel.NewEnv(
		cel.Variable("content", cel.StringType),
		cel.Variable("normalized", cel.StringType),
		cel.Variable("locale", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &predicateMatcher{prg: prg}, nil
}

func (m *predicateMatcher) Match(c Content) (*Match, error) {
	out, _, err := m.prg.Eval(map[string]any{
		"content":    c.Raw,
		"normalized": c.Normalized,
		"locale":     c.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("cel eval: %w", err)
	}
	fired, ok := out.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("cel result is %T, want bool", out.Value())
	}
	if !fired {
		return nil, nil
	}
	return &Match{Span: Span{Start: 0, End: len(c.Raw)}, Confidence: 1.0}, nil
}
