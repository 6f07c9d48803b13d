// Package anchor publishes anchored batch roots to external, append-only
// locations. An attacker who rewrites local storage still cannot rewrite a
// root that a third party already holds; publication is what makes the chain
// independently checkable.
package anchor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sigillum/core/pkg/auditlog"
)

// Record is the published form of one anchored root.
type Record struct {
	BatchID           string    `json:"batch_id"`
	RootHash          string    `json:"root_hash"`
	PreviousBatchRoot string    `json:"previous_batch_root,omitempty"`
	LeafCount         int       `json:"leaf_count"`
	AnchoredAt        time.Time `json:"anchored_at"`
}

// Publisher pushes one anchored batch to an external location. Publishing is
// retryable and idempotent by batch id.
type Publisher interface {
	PublishRoot(ctx context.Context, b *auditlog.Batch) error
}

func recordFor(b *auditlog.Batch) Record {
	return Record{
		BatchID:           b.BatchID,
		RootHash:          b.RootHash,
		PreviousBatchRoot: b.PreviousBatchRoot,
		LeafCount:         len(b.LeafProofIDs),
		AnchoredAt:        b.AnchoredAt,
	}
}

func marshalRecord(b *auditlog.Batch) ([]byte, error) {
	data, err := json.Marshal(recordFor(b))
	if err != nil {
		return nil, fmt.Errorf("anchor: marshal record: %w", err)
	}
	return data, nil
}

// Noop discards roots. Used when no external anchor is configured; the
// chained batch roots remain verifiable locally.
type Noop struct{}

func (Noop) PublishRoot(context.Context, *auditlog.Batch) error { return nil }

// Multi fans one root out to several publishers. Every publisher is attempted;
// the first error is returned after all have run.
type Multi struct {
	publishers []Publisher
	logger     *slog.Logger
}

func NewMulti(publishers ...Publisher) *Multi {
	return &Multi{
		publishers: publishers,
		logger:     slog.Default().With("component", "anchor"),
	}
}

func (m *Multi) PublishRoot(ctx context.Context, b *auditlog.Batch) error {
	var first error
	for _, p := range m.publishers {
		if err := p.PublishRoot(ctx, b); err != nil {
			m.logger.Error("anchor publication failed", "batch", b.BatchID, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
