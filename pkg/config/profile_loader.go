package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// JurisdictionProfile pins the operating parameters a regulator expects for
// one deployment: which locales are served, which ruleset version is active,
// and how long evidence must be retained.
type JurisdictionProfile struct {
	Name           string          `yaml:"name" json:"name"`
	Code           string          `yaml:"code" json:"code"`
	Locales        []string        `yaml:"locales" json:"locales"`
	RulesetVersion string          `yaml:"ruleset_version" json:"ruleset_version"`
	Retention      RetentionConfig `yaml:"retention" json:"retention"`
	Anchoring      AnchoringConfig `yaml:"anchoring" json:"anchoring"`
}

// RetentionConfig defines evidence retention policies.
type RetentionConfig struct {
	ProofDays    int `yaml:"proof_days" json:"proof_days"`
	AuditLogDays int `yaml:"audit_log_days" json:"audit_log_days"`
}

// AnchoringConfig declares where batch roots must be published.
type AnchoringConfig struct {
	Required    bool `yaml:"required" json:"required"`
	ExternalS3  bool `yaml:"external_s3,omitempty" json:"external_s3,omitempty"`
	LocalExport bool `yaml:"local_export,omitempty" json:"local_export,omitempty"`
}

// LoadProfile loads a jurisdiction profile YAML by code.
// It searches the profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*JurisdictionProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile JurisdictionProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*JurisdictionProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*JurisdictionProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile JurisdictionProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_in.yaml -> in
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// ServesLocale reports whether the profile covers a locale. An empty locale
// list means the profile does not restrict locales.
func (p *JurisdictionProfile) ServesLocale(locale string) bool {
	if len(p.Locales) == 0 {
		return true
	}
	for _, l := range p.Locales {
		if strings.EqualFold(l, locale) {
			return true
		}
	}
	return false
}
