// Package engine wires classification, proof issuance, and audit logging
// into the single submission pipeline the API exposes. Raw content lives
// only on the stack of Process; everything that leaves the engine carries
// digests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sigillum/core/pkg/auditlog"
	"github.com/sigillum/core/pkg/cache"
	"github.com/sigillum/core/pkg/classifier"
	"github.com/sigillum/core/pkg/digest"
	"github.com/sigillum/core/pkg/merkle"
	"github.com/sigillum/core/pkg/proof"
	"github.com/sigillum/core/pkg/store"
)

// ErrEmptyContent rejects submissions with nothing to classify.
var ErrEmptyContent = errors.New("engine: empty content")

// Submission is one interaction presented for compliance processing.
type Submission struct {
	InteractionID   string // assigned when empty
	Content         string
	Locale          string
	RulesetVersion  string
	ParticipantRole string // optional, hashed before it is recorded
}

// Decision is the full result of processing one submission. Findings are
// returned to the caller for remediation but are never part of the proof.
type Decision struct {
	Record   proof.InteractionRecord `json:"record"`
	Outcome  classifier.Outcome      `json:"outcome"`
	Findings []classifier.Finding    `json:"findings,omitempty"`
	Proof    *proof.Object           `json:"proof"`
	Receipt  *auditlog.PendingReceipt `json:"receipt"`
}

// Engine runs the classify, prove, append pipeline.
type Engine struct {
	classifier *classifier.Classifier
	generator  *proof.Generator
	log        *auditlog.Log
	store      store.Store
	cache      cache.ProofCache
	roleKey    []byte
	clock      func() time.Time
	logger     *slog.Logger
}

// Config assembles an engine from its parts. Store and Cache are optional;
// without a store only pending proofs are readable, without a cache every
// inclusion proof is regenerated.
type Config struct {
	Classifier *classifier.Classifier
	Generator  *proof.Generator
	Log        *auditlog.Log
	Store      store.Store
	Cache      cache.ProofCache
	RoleKey    []byte
}

func New(cfg Config) *Engine {
	return &Engine{
		classifier: cfg.Classifier,
		generator:  cfg.Generator,
		log:        cfg.Log,
		store:      cfg.Store,
		cache:      cfg.Cache,
		roleKey:    cfg.RoleKey,
		clock:      time.Now,
		logger:     slog.Default().With("component", "engine"),
	}
}

// WithClock overrides the record timestamp source for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Process classifies the submission, issues a signed proof for the outcome,
// and appends it to the audit log. The returned decision is complete: the
// proof is durably logged before Process returns.
func (e *Engine) Process(ctx context.Context, sub Submission) (*Decision, error) {
	if sub.Content == "" {
		return nil, ErrEmptyContent
	}

	contentDigest, err := digest.Content(digest.SHA256, []byte(sub.Content))
	if err != nil {
		return nil, fmt.Errorf("engine: digest content: %w", err)
	}

	rec := proof.InteractionRecord{
		InteractionID: sub.InteractionID,
		ContentDigest: contentDigest,
		Locale:        sub.Locale,
		Timestamp:     e.clock().UTC(),
	}
	if rec.InteractionID == "" {
		rec.InteractionID = uuid.New().String()
	}
	if sub.ParticipantRole != "" && len(e.roleKey) > 0 {
		rec.ParticipantRoleHash = digest.ParticipantRole(e.roleKey, sub.ParticipantRole)
	}

	outcome, findings, err := e.classifier.Evaluate(ctx, sub.Content, sub.Locale, sub.RulesetVersion)
	if err != nil {
		return nil, err
	}

	p, err := e.generator.Generate(rec, outcome, findings, sub.RulesetVersion)
	if err != nil {
		return nil, err
	}

	receipt, err := e.log.Append(ctx, p)
	if err != nil {
		return nil, err
	}

	e.logger.Info("interaction processed",
		"interaction", rec.InteractionID,
		"outcome", outcome,
		"findings", len(findings),
		"proof", p.ProofID)

	return &Decision{
		Record:   rec,
		Outcome:  outcome,
		Findings: findings,
		Proof:    p,
		Receipt:  receipt,
	}, nil
}

// GetProof reads a proof by id: anchored proofs from the store, pending ones
// from the open batch.
func (e *Engine) GetProof(ctx context.Context, proofID string) (*proof.Object, error) {
	if e.store != nil {
		p, err := e.store.GetProof(ctx, proofID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if p, ok := e.log.PendingProof(proofID); ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", auditlog.ErrUnknownProof, proofID)
}

// GetInclusionProof returns the inclusion path and anchored batch for a
// proof, consulting the cache first. Paths are regenerated, never stored.
func (e *Engine) GetInclusionProof(ctx context.Context, proofID string) (*merkle.InclusionProof, *auditlog.Batch, error) {
	if e.cache != nil {
		if cached, err := e.cache.Get(ctx, proofID); err == nil && cached != nil {
			if batch, ok := e.log.Batch(cached.BatchID); ok {
				return cached, batch, nil
			}
		}
	}

	ip, batch, err := e.log.InclusionProof(proofID)
	if err != nil {
		// The in-memory index starts empty after a restart; anchored batches
		// are still in the store.
		if errors.Is(err, auditlog.ErrUnknownProof) && e.store != nil {
			return e.inclusionFromStore(ctx, proofID)
		}
		return nil, nil, err
	}

	e.cacheInclusion(ctx, ip)
	return ip, batch, nil
}

func (e *Engine) inclusionFromStore(ctx context.Context, proofID string) (*merkle.InclusionProof, *auditlog.Batch, error) {
	batch, index, err := e.store.GetBatchForProof(ctx, proofID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", auditlog.ErrUnknownProof, proofID)
		}
		return nil, nil, err
	}
	tree, err := merkle.Build(batch.LeafProofIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: rebuild tree for batch %s: %w", batch.BatchID, err)
	}
	ip, err := tree.Proof(index)
	if err != nil {
		return nil, nil, err
	}
	ip.BatchID = batch.BatchID
	e.cacheInclusion(ctx, ip)
	return ip, batch, nil
}

func (e *Engine) cacheInclusion(ctx context.Context, ip *merkle.InclusionProof) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, ip); err != nil {
		e.logger.Warn("inclusion proof cache write failed", "proof", ip.ProofID, "err", err)
	}
}

// GetBatch reads an anchored batch, preferring the store so restarts do not
// lose history.
func (e *Engine) GetBatch(ctx context.Context, batchID string) (*auditlog.Batch, error) {
	if e.store != nil {
		b, err := e.store.GetBatch(ctx, batchID)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if b, ok := e.log.Batch(batchID); ok {
		return b, nil
	}
	return nil, store.ErrNotFound
}
