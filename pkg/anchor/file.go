package anchor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sigillum/core/pkg/auditlog"
)

// FilePublisher appends anchor records to a local JSON-lines file. Meant for
// single-node deployments where the operator ships the file to cold storage.
type FilePublisher struct {
	mu   sync.Mutex
	file *os.File
	seen map[string]bool
}

func NewFilePublisher(path string) (*FilePublisher, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("anchor: anchor dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("anchor: open anchor file: %w", err)
	}
	return &FilePublisher{file: f, seen: make(map[string]bool)}, nil
}

func (p *FilePublisher) PublishRoot(_ context.Context, b *auditlog.Batch) error {
	data, err := marshalRecord(b)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen[b.BatchID] {
		return nil
	}
	if _, err := p.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("anchor: write anchor file: %w", err)
	}
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("anchor: sync anchor file: %w", err)
	}
	p.seen[b.BatchID] = true
	return nil
}

func (p *FilePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}
