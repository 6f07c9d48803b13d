package ruleset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a ruleset version is not registered.
var ErrNotFound = errors.New("ruleset: version not found")

// ErrDuplicateVersion is returned when registering an already-loaded version.
var ErrDuplicateVersion = errors.New("ruleset: version already registered")

var compiledSchema = jsonschema.MustCompileString("bundle.schema.json", bundleSchema)

// Bundle is the on-disk declaration of one ruleset version.
type Bundle struct {
	Version string           `json:"version" yaml:"version"`
	Name    string           `json:"name,omitempty" yaml:"name,omitempty"`
	Rules   []RuleDefinition `json:"rules" yaml:"rules"`
}

type loadOptions struct {
	baseDir string
}

// Registry holds immutable ruleset snapshots indexed by version.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]*RuleSet
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]*RuleSet)}
}

// Get returns the ruleset for version, or ErrNotFound.
func (r *Registry) Get(version string) (*RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.sets[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, version)
	}
	return rs, nil
}

// Versions returns the registered version identifiers.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for v := range r.sets {
		out = append(out, v)
	}
	return out
}

// LoadFile parses, validates, and registers a bundle from a YAML or JSON file.
// Any malformed rule rejects the entire bundle; nothing is partially applied.
func (r *Registry) LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ruleset: read %s: %w", path, err)
	}
	return r.Load(data, filepath.Ext(path) == ".json", filepath.Dir(path))
}

// LoadDir loads every .yaml/.yml/.json bundle in dir. Bundles whose version
// is already registered are skipped, so reloading a directory picks up new
// versions without disturbing the ones already served. A malformed bundle
// still fails the whole call.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("ruleset: read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		if _, err := r.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			if errors.Is(err, ErrDuplicateVersion) {
				continue
			}
			return fmt.Errorf("ruleset: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Load validates and registers a bundle from raw bytes.
func (r *Registry) Load(data []byte, isJSON bool, baseDir string) (*RuleSet, error) {
	jsonBytes := data
	if !isJSON {
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("ruleset: parse yaml: %w", err)
		}
		var err error
		jsonBytes, err = json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("ruleset: yaml to json: %w", err)
		}
	}

	// Schema validation before any compilation.
	var instance any
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("ruleset: parse bundle: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("ruleset: bundle schema validation failed: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(jsonBytes, &bundle); err != nil {
		return nil, fmt.Errorf("ruleset: decode bundle: %w", err)
	}

	rs, err := Compile(bundle, baseDir)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sets[rs.version]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateVersion, rs.version)
	}
	r.sets[rs.version] = rs
	return rs, nil
}

// Compile validates a bundle and builds the immutable snapshot. Rule ids must
// be unique; the version must parse as strict semver.
func Compile(bundle Bundle, baseDir string) (*RuleSet, error) {
	if _, err := semver.StrictNewVersion(bundle.Version); err != nil {
		return nil, fmt.Errorf("ruleset: version %q is not semver: %w", bundle.Version, err)
	}

	opts := loadOptions{baseDir: baseDir}
	rs := &RuleSet{
		version: bundle.Version,
		locales: make(map[string]struct{}),
		rules:   make([]compiledRule, 0, len(bundle.Rules)),
	}

	seen := make(map[string]struct{}, len(bundle.Rules))
	for _, def := range bundle.Rules {
		id := strings.TrimSpace(def.ID)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("ruleset: duplicate rule id %q", id)
		}
		seen[id] = struct{}{}

		cr, err := compileRule(def, opts)
		if err != nil {
			return nil, fmt.Errorf("ruleset: %w", err)
		}
		rs.rules = append(rs.rules, cr)
		for _, l := range def.Languages {
			rs.locales[l] = struct{}{}
		}
	}
	return rs, nil
}
