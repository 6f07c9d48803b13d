// Package classifier evaluates interaction content against a versioned
// ruleset and aggregates findings into a single compliance outcome.
//
// Evaluation is pure: identical content, locale, and ruleset version always
// produce identical findings and outcome. Nothing is persisted here.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigillum/core/pkg/ruleset"
)

// Outcome is the aggregated compliance decision for one interaction.
type Outcome string

const (
	OutcomeClean          Outcome = "clean"
	OutcomeWarned         Outcome = "warned"
	OutcomeRequiresReview Outcome = "requires_review"
	OutcomeBlocked        Outcome = "blocked"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeClean, OutcomeWarned, OutcomeRequiresReview, OutcomeBlocked:
		return true
	}
	return false
}

// ErrUnsupportedLocale is returned when the ruleset declares no rules for the
// requested locale.
var ErrUnsupportedLocale = errors.New("classifier: unsupported locale")

// ErrRulesetNotFound is returned when the referenced version is not loaded.
var ErrRulesetNotFound = errors.New("classifier: ruleset not found")

// Finding is one rule firing against one evaluation. Immutable once created;
// the matched span is persisted in place of the content it points into.
// The span's coordinate space is category-specific, see ruleset.Span.
type Finding struct {
	RuleID      string          `json:"rule_id"`
	Severity    ruleset.Severity `json:"severity"`
	MatchedSpan ruleset.Span    `json:"matched_span"`
	Confidence  float64         `json:"confidence"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Classifier evaluates content against registered rulesets.
type Classifier struct {
	registry *ruleset.Registry
	clock    func() time.Time
	logger   *slog.Logger
}

// New creates a classifier over the given registry.
func New(registry *ruleset.Registry) *Classifier {
	return &Classifier{
		registry: registry,
		clock:    time.Now,
		logger:   slog.Default().With("component", "classifier"),
	}
}

// WithClock overrides the finding timestamp source for tests.
func (c *Classifier) WithClock(clock func() time.Time) *Classifier {
	c.clock = clock
	return c
}

// Evaluate applies every rule for the locale, in declaration order, and
// aggregates the highest severity present into the outcome.
//
// Rules fire independently; each finding keeps its own confidence and no
// averaging happens across rules.
func (c *Classifier) Evaluate(ctx context.Context, content, locale, rulesetVersion string) (Outcome, []Finding, error) {
	rs, err := c.registry.Get(rulesetVersion)
	if err != nil {
		if errors.Is(err, ruleset.ErrNotFound) {
			return "", nil, fmt.Errorf("%w: %q", ErrRulesetNotFound, rulesetVersion)
		}
		return "", nil, err
	}
	if !rs.SupportsLocale(locale) {
		return "", nil, fmt.Errorf("%w: %q (ruleset %s)", ErrUnsupportedLocale, locale, rulesetVersion)
	}

	normalized := ruleset.NewContent(content, locale)
	now := c.clock().UTC()

	var findings []Finding
	for _, cr := range rs.ForLocale(locale) {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		match, err := cr.Matcher.Match(normalized)
		if err != nil {
			// Rulesets are validated at load time; a matcher error here means
			// an external plugin misbehaved, which fails the whole call.
			return "", nil, fmt.Errorf("classifier: rule %s: %w", cr.Def.ID, err)
		}
		if match == nil {
			continue
		}
		findings = append(findings, Finding{
			RuleID:      cr.Def.ID,
			Severity:    cr.Def.Severity,
			MatchedSpan: match.Span,
			Confidence:  match.Confidence,
			CreatedAt:   now,
		})
	}

	outcome := Aggregate(findings)
	c.logger.DebugContext(ctx, "evaluated interaction",
		"ruleset", rulesetVersion,
		"locale", locale,
		"findings", len(findings),
		"outcome", string(outcome))
	return outcome, findings, nil
}

// Aggregate maps the highest severity present to an outcome. Findings are
// already in rule declaration order, which breaks ties deterministically.
//
//	Critical  -> blocked
//	Violation -> requires_review
//	Warning   -> warned
//	Info      -> clean (informational findings do not change the decision)
//	none      -> clean
func Aggregate(findings []Finding) Outcome {
	highest := ruleset.Severity("")
	for _, f := range findings {
		if f.Severity.Rank() > highest.Rank() {
			highest = f.Severity
		}
	}
	switch highest {
	case ruleset.SeverityCritical:
		return OutcomeBlocked
	case ruleset.SeverityViolation:
		return OutcomeRequiresReview
	case ruleset.SeverityWarning:
		return OutcomeWarned
	default:
		return OutcomeClean
	}
}
