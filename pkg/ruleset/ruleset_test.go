package ruleset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBundleYAML = `
version: "1.0.0"
name: advisory-baseline
rules:
  - id: forbid-guaranteed-returns
    category: phrase-forbidden
    severity: Critical
    pattern: "guaranteed returns"
    languages: [en-IN, en-US]
    remediation: disclosure.market_risk
  - id: forbid-percent-promise
    category: pattern-forbidden
    severity: Violation
    pattern: "returns? of [0-9]+%"
    languages: [en-IN]
  - id: require-market-risk-disclosure
    category: disclosure-required
    severity: Warning
    pattern: "subject to market risk"
    languages: [en-IN]
  - id: short-content-advisory
    category: predicate
    severity: Info
    pattern: "normalized.size() < 10 && locale == 'en-IN'"
    languages: [en-IN]
`

func loadTestSet(t *testing.T) *RuleSet {
	t.Helper()
	reg := NewRegistry()
	rs, err := reg.Load([]byte(validBundleYAML), false, t.TempDir())
	require.NoError(t, err)
	return rs
}

func TestLoad_ValidBundle(t *testing.T) {
	rs := loadTestSet(t)
	assert.Equal(t, "1.0.0", rs.Version())
	assert.Equal(t, 4, rs.Len())
	assert.True(t, rs.SupportsLocale("en-IN"))
	assert.True(t, rs.SupportsLocale("en-US"))
	assert.False(t, rs.SupportsLocale("fr-FR"))

	// Declaration order preserved.
	rules := rs.ForLocale("en-IN")
	require.Len(t, rules, 4)
	assert.Equal(t, "forbid-guaranteed-returns", rules[0].Def.ID)
}

func TestLoad_FailsClosed(t *testing.T) {
	cases := map[string]string{
		"bad regex": `
version: "1.0.0"
rules:
  - {id: r1, category: pattern-forbidden, severity: Critical, pattern: "([unclosed", languages: [en-IN]}
`,
		"unknown severity": `
version: "1.0.0"
rules:
  - {id: r1, category: phrase-forbidden, severity: Fatal, pattern: "x", languages: [en-IN]}
`,
		"unknown category": `
version: "1.0.0"
rules:
  - {id: r1, category: vibes-forbidden, severity: Critical, pattern: "x", languages: [en-IN]}
`,
		"not semver": `
version: "march-release"
rules:
  - {id: r1, category: phrase-forbidden, severity: Critical, pattern: "x", languages: [en-IN]}
`,
		"duplicate id": `
version: "1.0.0"
rules:
  - {id: r1, category: phrase-forbidden, severity: Critical, pattern: "x", languages: [en-IN]}
  - {id: r1, category: phrase-forbidden, severity: Critical, pattern: "y", languages: [en-IN]}
`,
		"no languages": `
version: "1.0.0"
rules:
  - {id: r1, category: phrase-forbidden, severity: Critical, pattern: "x", languages: []}
`,
		"empty phrase": `
version: "1.0.0"
rules:
  - {id: r1, category: phrase-forbidden, severity: Critical, pattern: "   ", languages: [en-IN]}
`,
		"bad cel": `
version: "1.0.0"
rules:
  - {id: r1, category: predicate, severity: Critical, pattern: "content ++ locale", languages: [en-IN]}
`,
	}

	for name, bundle := range cases {
		t.Run(name, func(t *testing.T) {
			reg := NewRegistry()
			_, err := reg.Load([]byte(bundle), false, t.TempDir())
			assert.Error(t, err)
			assert.Empty(t, reg.Versions(), "nothing may be partially applied")
		})
	}
}

func TestRegistry_GetAndDuplicates(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Load([]byte(validBundleYAML), false, t.TempDir())
	require.NoError(t, err)

	rs, err := reg.Get("1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rs.Version())

	_, err = reg.Get("9.9.9")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Load([]byte(validBundleYAML), false, t.TempDir())
	assert.ErrorIs(t, err, ErrDuplicateVersion)
}

func TestLoadDir_ReloadPicksUpNewVersions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-baseline.yaml"), []byte(validBundleYAML), 0o644))

	reg := NewRegistry()
	require.NoError(t, reg.LoadDir(dir))
	require.Equal(t, []string{"1.0.0"}, reg.Versions())

	// A new bundle appears behind a file that sorts after the existing one;
	// the already-registered version must not stop it from loading.
	next := `
version: "1.1.0"
rules:
  - {id: r1, category: phrase-forbidden, severity: Critical, pattern: "x", languages: [en-IN]}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-next.yaml"), []byte(next), 0o644))

	require.NoError(t, reg.LoadDir(dir))
	assert.ElementsMatch(t, []string{"1.0.0", "1.1.0"}, reg.Versions())

	// Malformed bundles still fail the reload.
	bad := `
version: "2.0.0"
rules:
  - {id: r1, category: pattern-forbidden, severity: Critical, pattern: "([unclosed", languages: [en-IN]}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c-bad.yaml"), []byte(bad), 0o644))
	assert.Error(t, reg.LoadDir(dir))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "guaranteed returns", Normalize("  Guaranteed\t\nRETURNS "))
	assert.Equal(t, "garantie de rendement", Normalize("Garantie   de rendement"))
	// Diacritics are stripped before matching.
	assert.Equal(t, "resume", Normalize("Résumé")[:6])
}

func TestPhraseMatcher(t *testing.T) {
	m, err := newPhraseMatcher("Guaranteed Returns")
	require.NoError(t, err)

	c := NewContent("We promise GUARANTEED   returns on this fund", "en-IN")
	match, err := m.Match(c)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 1.0, match.Confidence)
	assert.Equal(t, "guaranteed returns", c.Normalized[match.Span.Start:match.Span.End])

	clean := NewContent("Mutual funds are subject to market risk", "en-IN")
	match, err = m.Match(clean)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestPatternMatcher_FirstMatchSpan(t *testing.T) {
	rs := loadTestSet(t)
	var pm Matcher
	for _, cr := range rs.ForLocale("en-IN") {
		if cr.Def.ID == "forbid-percent-promise" {
			pm = cr.Matcher
		}
	}
	require.NotNil(t, pm)

	c := NewContent("expect returns of 20% or returns of 30%", "en-IN")
	match, err := pm.Match(c)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "returns of 20%", c.Raw[match.Span.Start:match.Span.End])
}

func TestDisclosureMatcher_FiresOnAbsence(t *testing.T) {
	m, err := newDisclosureMatcher("subject to market risk")
	require.NoError(t, err)

	missing := NewContent("Buy this fund today", "en-IN")
	match, err := m.Match(missing)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, 1.0, match.Confidence)
	assert.Equal(t, Span{}, match.Span)

	present := NewContent("Mutual funds are SUBJECT TO MARKET RISK, read the documents", "en-IN")
	match, err = m.Match(present)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestPredicateMatcher(t *testing.T) {
	m, err := newPredicateMatcher(`normalized.contains("free money") && locale == "en-IN"`)
	require.NoError(t, err)

	match, err := m.Match(NewContent("Get FREE money now", "en-IN"))
	require.NoError(t, err)
	assert.NotNil(t, match)

	match, err = m.Match(NewContent("Get FREE money now", "de-DE"))
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestCompile_SemanticRequiresModulePath(t *testing.T) {
	_, err := Compile(Bundle{
		Version: "1.0.0",
		Rules: []RuleDefinition{{
			ID: "sem", Category: CategorySemantic, Severity: SeverityWarning,
			Languages: []string{"en-IN"},
		}},
	}, t.TempDir())
	assert.ErrorContains(t, err, "module_path")
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityViolation.Rank())
	assert.Greater(t, SeverityViolation.Rank(), SeverityWarning.Rank())
	assert.Greater(t, SeverityWarning.Rank(), SeverityInfo.Rank())
	assert.False(t, Severity("Fatal").Valid())
}
