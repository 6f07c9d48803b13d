package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigillum/core/pkg/merkle"
	"github.com/sigillum/core/pkg/proof"
)

// Config sets the batch close thresholds. Both are configuration, never
// hard-coded at call sites.
type Config struct {
	// MaxBatchSize closes the open batch when it reaches this many leaves.
	MaxBatchSize int
	// MaxBatchAge closes the open batch once it has been open this long.
	MaxBatchAge time.Duration
	// WALPath is the write-ahead log location.
	WALPath string
}

// Storage is the durable persistence boundary for anchored batches and their
// proofs. Implementations must dedup idempotently by proof id.
type Storage interface {
	SaveProof(ctx context.Context, p *proof.Object) error
	SaveBatch(ctx context.Context, b *Batch) error
}

// Publisher optionally pushes an anchored root to an external bulletin.
type Publisher interface {
	PublishRoot(ctx context.Context, b *Batch) error
}

// openBatch is the only mutable state in the subsystem. All access goes
// through Log.mu.
type openBatch struct {
	batchID  string
	openedAt time.Time
	state    State
	leaves   []string
	proofs   map[string]*proof.Object
	receipts map[string]*PendingReceipt
}

// Log is the append-only Merkle audit log.
type Log struct {
	cfg       Config
	wal       *WAL
	storage   Storage
	publisher Publisher
	logger    *slog.Logger
	clock     func() time.Time

	// Lock order when nesting: closeMu, then mu, then idxMu. Never the
	// reverse; appends take mu and may peek at the index, closes take
	// closeMu and briefly take the other two one at a time.

	// mu is the single serialization point for the open batch pointer.
	// Closing swaps in a fresh open batch under the same critical section,
	// so no append is ever lost in the handoff. closing holds the swapped-out
	// batch until its leaves reach the anchored index, keeping dedup airtight
	// while a close is in flight.
	mu      sync.Mutex
	open    *openBatch
	closing *openBatch

	// closeMu serializes tree building and anchoring so batch roots chain in
	// close order.
	closeMu sync.Mutex

	// idxMu guards the anchored index.
	idxMu    sync.Mutex
	anchored map[string]*Batch
	chain    []string // batch ids in anchor order
	byProof  map[string]proofLocation
	lastRoot string
}

type proofLocation struct {
	batchID string
	index   int
}

const maxAppendRetries = 8

// New creates a log, replaying any unanchored appends from the WAL into the
// initial open batch.
func New(cfg Config, storage Storage, publisher Publisher) (*Log, error) {
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("auditlog: MaxBatchSize must be positive, got %d", cfg.MaxBatchSize)
	}
	if cfg.MaxBatchAge <= 0 {
		return nil, fmt.Errorf("auditlog: MaxBatchAge must be positive, got %v", cfg.MaxBatchAge)
	}

	replayed, err := ReplayWAL(cfg.WALPath)
	if err != nil {
		return nil, err
	}
	wal, err := OpenWAL(cfg.WALPath)
	if err != nil {
		return nil, err
	}

	l := &Log{
		cfg:       cfg,
		wal:       wal,
		storage:   storage,
		publisher: publisher,
		logger:    slog.Default().With("component", "auditlog"),
		clock:     time.Now,
		anchored:  make(map[string]*Batch),
		byProof:   make(map[string]proofLocation),
	}
	l.open = l.newOpenBatch()

	for _, p := range replayed {
		// Already durably logged; rebuild the pending queue without
		// re-writing the WAL.
		l.open.append(p, l.clock())
	}
	if len(replayed) > 0 {
		l.logger.Info("replayed unanchored appends from wal", "count", len(replayed))
	}
	return l, nil
}

// WithClock overrides the time source for tests.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

func (l *Log) newOpenBatch() *openBatch {
	return &openBatch{
		batchID:  uuid.New().String(),
		openedAt: l.clock().UTC(),
		state:    StateOpen,
		proofs:   make(map[string]*proof.Object),
		receipts: make(map[string]*PendingReceipt),
	}
}

func (b *openBatch) append(p *proof.Object, now time.Time) *PendingReceipt {
	r := &PendingReceipt{
		ProofID:    p.ProofID,
		BatchID:    b.batchID,
		LeafIndex:  len(b.leaves),
		AppendedAt: now.UTC(),
	}
	b.leaves = append(b.leaves, p.ProofID)
	b.proofs[p.ProofID] = p
	b.receipts[p.ProofID] = r
	return r
}

// Append durably logs the proof and assigns it a leaf position in the
// current open batch. Appending an already-known proof id returns the
// original receipt (idempotent dedup, at-least-once callers are expected).
//
// Once the WAL record is written the append cannot be cancelled; partial
// cancellation after durability would break the append-only guarantee.
func (l *Log) Append(ctx context.Context, p *proof.Object) (*PendingReceipt, error) {
	if p == nil || p.ProofID == "" {
		return nil, fmt.Errorf("auditlog: append requires a proof with a proof id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		receipt, err := l.appendOnce(p)
		if err == nil {
			return receipt, nil
		}
		if err != ErrBatchFull {
			return nil, err
		}
		// Size threshold reached: close the full batch and route the append
		// to the fresh open batch on the next attempt.
		if _, err := l.CloseBatch(ctx); err != nil && err != ErrNothingToClose {
			return nil, err
		}
	}
	return nil, ErrConcurrencyConflict
}

func (l *Log) appendOnce(p *proof.Object) (*PendingReceipt, error) {
	l.mu.Lock()

	if existing, ok := l.open.receipts[p.ProofID]; ok {
		l.mu.Unlock()
		return existing, nil
	}
	if l.closing != nil {
		// A close is in flight; its leaves are not in the anchored index yet.
		if existing, ok := l.closing.receipts[p.ProofID]; ok {
			l.mu.Unlock()
			return existing, nil
		}
	}
	if loc, ok := l.lookupAnchored(p.ProofID); ok {
		receipt := &PendingReceipt{ProofID: p.ProofID, BatchID: loc.batchID, LeafIndex: loc.index}
		l.mu.Unlock()
		return receipt, nil
	}
	if len(l.open.leaves) >= l.cfg.MaxBatchSize {
		l.mu.Unlock()
		return nil, ErrBatchFull
	}

	// Durably log before acknowledging. Holding mu keeps WAL order identical
	// to leaf order.
	if err := l.wal.LogAppend(p); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	receipt := l.open.append(p, l.clock())
	l.mu.Unlock()
	return receipt, nil
}

func (l *Log) lookupAnchored(proofID string) (proofLocation, bool) {
	l.idxMu.Lock()
	defer l.idxMu.Unlock()
	loc, ok := l.byProof[proofID]
	return loc, ok
}

// CloseBatch atomically retires the current open batch and swaps in a new
// one, then builds the Merkle tree, chains the root, persists, and publishes.
// Writers are only blocked for the pointer swap.
func (l *Log) CloseBatch(ctx context.Context) (*Batch, error) {
	// Serialize closes so roots chain in close order.
	l.closeMu.Lock()
	defer l.closeMu.Unlock()

	l.mu.Lock()
	if len(l.open.leaves) == 0 {
		l.mu.Unlock()
		return nil, ErrNothingToClose
	}
	closing := l.open
	closing.state = StateClosing
	l.open = l.newOpenBatch()
	l.closing = closing
	l.mu.Unlock()

	// Keep the closing batch visible to dedup until its leaves reach the
	// anchored index (or the close fails and its appends are replayed from
	// the WAL on restart).
	defer func() {
		l.mu.Lock()
		l.closing = nil
		l.mu.Unlock()
	}()

	// closing is now exclusively owned; no appends can reach it.
	tree, err := merkle.Build(closing.leaves)
	if err != nil {
		return nil, fmt.Errorf("auditlog: build tree for batch %s: %w", closing.batchID, err)
	}

	l.idxMu.Lock()
	prevRoot := l.lastRoot
	l.idxMu.Unlock()

	batch := &Batch{
		BatchID:           closing.batchID,
		State:             StateAnchored,
		LeafProofIDs:      append([]string(nil), closing.leaves...),
		RootHash:          tree.Root(),
		PreviousBatchRoot: prevRoot,
		OpenedAt:          closing.openedAt,
		AnchoredAt:        l.clock().UTC(),
	}

	if l.storage != nil {
		for _, p := range closing.proofs {
			if err := l.storage.SaveProof(ctx, p); err != nil {
				return nil, fmt.Errorf("auditlog: persist proof %s: %w", p.ProofID, err)
			}
		}
		if err := l.storage.SaveBatch(ctx, batch); err != nil {
			return nil, fmt.Errorf("auditlog: persist batch %s: %w", batch.BatchID, err)
		}
	}
	if err := l.wal.LogAnchored(batch.BatchID, batch.LeafProofIDs); err != nil {
		return nil, err
	}

	l.idxMu.Lock()
	l.anchored[batch.BatchID] = batch
	l.chain = append(l.chain, batch.BatchID)
	for i, id := range batch.LeafProofIDs {
		l.byProof[id] = proofLocation{batchID: batch.BatchID, index: i}
	}
	l.lastRoot = batch.RootHash
	l.idxMu.Unlock()

	if l.publisher != nil {
		// External anchoring is a retryable side effect after the logical
		// close; a publish failure never rolls back the batch.
		if err := l.publisher.PublishRoot(ctx, batch); err != nil {
			l.logger.Error("root publication failed", "batch", batch.BatchID, "err", err)
		}
	}

	l.logger.Info("batch anchored",
		"batch", batch.BatchID,
		"leaves", len(batch.LeafProofIDs),
		"root", batch.RootHash)
	return batch, nil
}

// Run closes the open batch whenever it exceeds the configured age.
// It returns when ctx is cancelled.
func (l *Log) Run(ctx context.Context) {
	interval := l.cfg.MaxBatchAge / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			stale := len(l.open.leaves) > 0 && l.clock().Sub(l.open.openedAt) >= l.cfg.MaxBatchAge
			l.mu.Unlock()
			if stale {
				if _, err := l.CloseBatch(ctx); err != nil && err != ErrNothingToClose {
					l.logger.Error("age-based batch close failed", "err", err)
				}
			}
		}
	}
}

// Batch returns an anchored batch by id.
func (l *Log) Batch(batchID string) (*Batch, bool) {
	l.idxMu.Lock()
	defer l.idxMu.Unlock()
	b, ok := l.anchored[batchID]
	return b, ok
}

// Batches returns anchored batches in anchor order.
func (l *Log) Batches() []*Batch {
	l.idxMu.Lock()
	defer l.idxMu.Unlock()
	out := make([]*Batch, 0, len(l.chain))
	for _, id := range l.chain {
		out = append(out, l.anchored[id])
	}
	return out
}

// LatestRoot returns the most recently anchored root, empty before the
// first close.
func (l *Log) LatestRoot() string {
	l.idxMu.Lock()
	defer l.idxMu.Unlock()
	return l.lastRoot
}

// PendingProof returns a proof still waiting in the open batch. Anchored
// proofs are persisted at close and served from Storage instead.
func (l *Log) PendingProof(proofID string) (*proof.Object, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.open.proofs[proofID]
	return p, ok
}

// InclusionProof regenerates the inclusion path for an anchored proof.
// Derived data: always recomputable from the batch's immutable leaf list.
func (l *Log) InclusionProof(proofID string) (*merkle.InclusionProof, *Batch, error) {
	l.idxMu.Lock()
	loc, ok := l.byProof[proofID]
	batch := l.anchored[loc.batchID]
	l.idxMu.Unlock()
	if !ok {
		l.mu.Lock()
		_, pending := l.open.receipts[proofID]
		if !pending && l.closing != nil {
			_, pending = l.closing.receipts[proofID]
		}
		l.mu.Unlock()
		if pending {
			return nil, nil, fmt.Errorf("%w: %s", ErrProofPending, proofID)
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProof, proofID)
	}

	tree, err := merkle.Build(batch.LeafProofIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("auditlog: rebuild tree for batch %s: %w", batch.BatchID, err)
	}
	ip, err := tree.Proof(loc.index)
	if err != nil {
		return nil, nil, err
	}
	ip.BatchID = batch.BatchID
	return ip, batch, nil
}

// Pending returns the number of leaves in the current open batch.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open.leaves)
}

// Close flushes and closes the WAL. The open batch stays replayable.
func (l *Log) Close() error {
	return l.wal.Close()
}
