// Package store persists anchored proofs and batches behind a driver-neutral
// interface. SQLite serves single-node deployments, Postgres shared ones; the
// audit log and API depend only on the interface.
package store

import (
	"context"
	"errors"

	"github.com/sigillum/core/pkg/auditlog"
	"github.com/sigillum/core/pkg/proof"
)

// ErrNotFound is returned when a proof or batch id is unknown.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract. SaveProof and SaveBatch are idempotent
// by primary key: re-saving an existing proof id or batch id is a no-op, so
// the audit log can replay safely after a crash.
type Store interface {
	SaveProof(ctx context.Context, p *proof.Object) error
	GetProof(ctx context.Context, proofID string) (*proof.Object, error)
	GetProofByInteraction(ctx context.Context, interactionID string) (*proof.Object, error)

	SaveBatch(ctx context.Context, b *auditlog.Batch) error
	GetBatch(ctx context.Context, batchID string) (*auditlog.Batch, error)
	GetBatchForProof(ctx context.Context, proofID string) (*auditlog.Batch, int, error)
	LatestBatch(ctx context.Context) (*auditlog.Batch, error)
	ListBatches(ctx context.Context, limit int) ([]*auditlog.Batch, error)

	Close() error
}
