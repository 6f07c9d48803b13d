// Package auditlog maintains the append-only, tamper-evident log of proof
// commitments. Pending proofs accumulate in the current open batch; closing
// a batch builds a Merkle tree over its ordered leaves, chains the root to
// the previous batch, and freezes it forever.
package auditlog

import (
	"errors"
	"time"
)

// State is the lifecycle position of a batch: Open accepts appends, Closing
// is building its tree, Anchored is immutable.
type State string

const (
	StateOpen     State = "open"
	StateClosing  State = "closing"
	StateAnchored State = "anchored"
)

// Batch is one anchored segment of the audit log. The first batch in a
// deployment has an empty PreviousBatchRoot; every later batch chains to its
// predecessor's root, so tampering with history breaks the chain forward.
type Batch struct {
	BatchID           string    `json:"batch_id"`
	State             State     `json:"state"`
	LeafProofIDs      []string  `json:"leaf_proof_ids"`
	RootHash          string    `json:"root_hash"`
	PreviousBatchRoot string    `json:"previous_batch_root,omitempty"`
	OpenedAt          time.Time `json:"opened_at"`
	AnchoredAt        time.Time `json:"anchored_at,omitempty"`
}

// PendingReceipt acknowledges a durably logged append. The leaf index is
// assigned by the log at append time; the log, not the caller, is the
// arbiter of order.
type PendingReceipt struct {
	ProofID    string    `json:"proof_id"`
	BatchID    string    `json:"batch_id"`
	LeafIndex  int       `json:"leaf_index"`
	AppendedAt time.Time `json:"appended_at"`
}

var (
	// ErrBatchFull signals that the open batch reached its size threshold;
	// Append resolves it internally by closing and retrying, bounded.
	ErrBatchFull = errors.New("auditlog: open batch full")

	// ErrConcurrencyConflict is surfaced after bounded retries are exhausted.
	ErrConcurrencyConflict = errors.New("auditlog: append conflicted with batch close")

	// ErrUnknownProof is returned for a proof id the log has never seen.
	ErrUnknownProof = errors.New("auditlog: unknown proof id")

	// ErrProofPending is returned when an inclusion proof is requested for a
	// proof whose batch has not anchored yet.
	ErrProofPending = errors.New("auditlog: proof not yet anchored")

	// ErrNothingToClose is returned when closing an empty open batch.
	ErrNothingToClose = errors.New("auditlog: open batch is empty")
)
