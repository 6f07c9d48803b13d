package ruleset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// semanticMatcher runs a pluggable matcher as a sandboxed WASM module.
// Deny-by-default: no filesystem, no network, no environment, bounded memory
// and CPU time. The module reads a JSON request on stdin and writes a JSON
// verdict on stdout.
type semanticMatcher struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	timeout  time.Duration
	seq      atomic.Uint64
}

// semanticRequest is the stdin payload handed to the module.
type semanticRequest struct {
	Content    string `json:"content"`
	Normalized string `json:"normalized"`
	Locale     string `json:"locale"`
}

// semanticVerdict is the stdout payload expected from the module.
type semanticVerdict struct {
	Matched    bool    `json:"matched"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

const (
	semanticMemoryPages = 256 // 16 MiB
	semanticTimeout     = 2 * time.Second
)

func newSemanticMatcher(def RuleDefinition, opts loadOptions) (Matcher, error) {
	if def.ModulePath == "" {
		return nil, fmt.Errorf("semantic rule requires module_path")
	}
	path := def.ModulePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.baseDir, path)
	}
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wasm module: %w", err)
	}

	ctx := context.Background()
	runtimeCfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(semanticMemoryPages).
		WithCloseOnContextDone(true)
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("compile wasm module: %w", err)
	}

	return &semanticMatcher{runtime: r, compiled: compiled, timeout: semanticTimeout}, nil
}

func (m *semanticMatcher) Match(c Content) (*Match, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	input, err := json.Marshal(semanticRequest{
		Content:    c.Raw,
		Normalized: c.Normalized,
		Locale:     c.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: marshal request: %w", err)
	}

	var stdout bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(fmt.Sprintf("semantic-%d", m.seq.Add(1))).
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStartFunctions("_start")
	// No WithFSConfig, WithEnv, WithRandSource: the module gets no ambient
	// authority beyond its stdio pipes.

	mod, err := m.runtime.InstantiateModule(ctx, m.compiled, modCfg)
	if err != nil {
		// Exit code 0 surfaces as an ExitError from _start.
		if exitErr, ok := err.(*sys.ExitError); !ok || exitErr.ExitCode() != 0 {
			return nil, fmt.Errorf("semantic: module run failed: %w", err)
		}
	}
	if mod != nil {
		_ = mod.Close(ctx)
	}

	var verdict semanticVerdict
	if err := json.Unmarshal(stdout.Bytes(), &verdict); err != nil {
		return nil, fmt.Errorf("semantic: invalid module output: %w", err)
	}
	if !verdict.Matched {
		return nil, nil
	}
	// Semantic matchers report confidence in [0,1).
	conf := verdict.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf >= 1 {
		conf = 0.99
	}
	return &Match{
		Span:       Span{Start: verdict.Start, End: verdict.End},
		Confidence: conf,
	}, nil
}

// Close releases the WASM runtime owned by the matcher.
func (m *semanticMatcher) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}
