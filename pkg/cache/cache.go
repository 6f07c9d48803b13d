// Package cache holds recently served inclusion proofs. Inclusion proofs are
// derived data, so a miss is never an error: the audit log regenerates the
// path and the cache is repopulated on the way out.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sigillum/core/pkg/merkle"
)

// ProofCache is the lookup contract. Get returns (nil, nil) on a miss; Set
// failures are advisory and must not fail the request.
type ProofCache interface {
	Get(ctx context.Context, proofID string) (*merkle.InclusionProof, error)
	Set(ctx context.Context, p *merkle.InclusionProof) error
}

// MemoryCache is the single-node ProofCache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	proof     *merkle.InclusionProof
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, proofID string) (*merkle.InclusionProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[proofID]
	if !ok {
		return nil, nil
	}
	if c.clock().After(e.expiresAt) {
		delete(c.entries, proofID)
		return nil, nil
	}
	return e.proof, nil
}

func (c *MemoryCache) Set(_ context.Context, p *merkle.InclusionProof) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[p.ProofID] = memoryEntry{proof: p, expiresAt: c.clock().Add(c.ttl)}
	return nil
}
