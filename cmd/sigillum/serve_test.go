package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigillum/core/pkg/config"
	"github.com/sigillum/core/pkg/ruleset"
)

const profileTestBundle = `
version: "1.0.0"
rules:
  - {id: r1, category: phrase-forbidden, severity: Critical, pattern: "guaranteed returns", languages: [en-IN]}
`

func TestCheckProfile(t *testing.T) {
	reg := ruleset.NewRegistry()
	_, err := reg.Load([]byte(profileTestBundle), false, t.TempDir())
	require.NoError(t, err)

	base := config.JurisdictionProfile{
		Code:           "in",
		Locales:        []string{"en-IN"},
		RulesetVersion: "1.0.0",
	}

	t.Run("satisfied", func(t *testing.T) {
		p := base
		assert.NoError(t, checkProfile(&p, reg, &config.Config{AnchorFile: "anchors.jsonl"}))
	})

	t.Run("pinned version missing", func(t *testing.T) {
		p := base
		p.RulesetVersion = "9.9.9"
		assert.ErrorContains(t, checkProfile(&p, reg, &config.Config{}), "not loaded")
	})

	t.Run("locale not covered by pinned ruleset", func(t *testing.T) {
		p := base
		p.Locales = []string{"fr-FR"}
		assert.ErrorContains(t, checkProfile(&p, reg, &config.Config{}), "no rules for locale")
	})

	t.Run("anchoring required without target", func(t *testing.T) {
		p := base
		p.Anchoring.Required = true
		assert.ErrorContains(t, checkProfile(&p, reg, &config.Config{}), "anchoring is required")
		assert.NoError(t, checkProfile(&p, reg, &config.Config{AnchorFile: "anchors.jsonl"}))
	})

	t.Run("external s3 required without bucket", func(t *testing.T) {
		p := base
		p.Anchoring.ExternalS3 = true
		assert.ErrorContains(t, checkProfile(&p, reg, &config.Config{AnchorFile: "a"}), "ANCHOR_S3_BUCKET")
		assert.NoError(t, checkProfile(&p, reg, &config.Config{AnchorFile: "a", S3Bucket: "roots"}))
	})

	t.Run("local export required without file", func(t *testing.T) {
		p := base
		p.Anchoring.LocalExport = true
		assert.ErrorContains(t, checkProfile(&p, reg, &config.Config{S3Bucket: "roots"}), "ANCHOR_FILE")
	})
}
