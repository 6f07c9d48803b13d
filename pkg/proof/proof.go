// Package proof issues signed, privacy-preserving compliance proofs.
//
// A proof object binds an interaction's content digest, its compliance
// outcome, and the ruleset version under a keyed signature. Raw interaction
// content never appears in a proof; re-deriving it from the digest must stay
// computationally infeasible, which is why only cryptographic hashes are
// accepted as digests.
package proof

import (
	"errors"
	"fmt"
	"time"

	"github.com/sigillum/core/pkg/canonical"
	"github.com/sigillum/core/pkg/classifier"
	"github.com/sigillum/core/pkg/digest"
	"github.com/sigillum/core/pkg/keyring"
)

// ErrInvalidProofInput is returned when a record or outcome cannot be
// canonicalized (unknown enum value, missing or malformed field).
var ErrInvalidProofInput = errors.New("proof: invalid proof input")

// InteractionRecord is the classification-time view of one interaction.
// Created once, immutable thereafter.
type InteractionRecord struct {
	InteractionID       string    `json:"interaction_id"`
	ContentDigest       string    `json:"content_digest"`
	Locale              string    `json:"locale"`
	ParticipantRoleHash string    `json:"participant_role_hash"`
	Timestamp           time.Time `json:"timestamp"`
}

// Object is an issued compliance proof. Immutable once signed.
type Object struct {
	InteractionID  string             `json:"interaction_id"`
	ContentDigest  string             `json:"content_digest"`
	Outcome        classifier.Outcome `json:"outcome"`
	RulesetVersion string             `json:"ruleset_version"`
	IssuedAt       time.Time          `json:"issued_at"`
	KeyVersion     string             `json:"key_version"`
	Signature      string             `json:"signature"`
	ProofID        string             `json:"proof_id"`
}

// payload is the exact signed tuple in canonical field order. IssuedAt is a
// fixed-format string so independent verifiers recompute identical bytes.
type payload struct {
	ContentDigest  string `json:"content_digest"`
	InteractionID  string `json:"interaction_id"`
	IssuedAt       string `json:"issued_at"`
	Outcome        string `json:"outcome"`
	RulesetVersion string `json:"ruleset_version"`
}

// CanonicalPayload returns the deterministic byte serialization that both
// proof_id and signature are computed over.
func CanonicalPayload(o *Object) ([]byte, error) {
	if err := validateFields(o.InteractionID, o.ContentDigest, o.Outcome, o.RulesetVersion); err != nil {
		return nil, err
	}
	if o.IssuedAt.IsZero() {
		return nil, fmt.Errorf("%w: zero issued_at", ErrInvalidProofInput)
	}
	return canonical.Marshal(payload{
		ContentDigest:  o.ContentDigest,
		InteractionID:  o.InteractionID,
		IssuedAt:       o.IssuedAt.UTC().Format(time.RFC3339Nano),
		Outcome:        string(o.Outcome),
		RulesetVersion: o.RulesetVersion,
	})
}

func validateFields(interactionID, contentDigest string, outcome classifier.Outcome, rulesetVersion string) error {
	if interactionID == "" {
		return fmt.Errorf("%w: empty interaction_id", ErrInvalidProofInput)
	}
	if _, _, err := digest.Parse(contentDigest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProofInput, err)
	}
	if !outcome.Valid() {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidProofInput, outcome)
	}
	if rulesetVersion == "" {
		return fmt.Errorf("%w: empty ruleset_version", ErrInvalidProofInput)
	}
	return nil
}

// Generator issues proofs with the keyring's active key.
type Generator struct {
	ring  *keyring.KeyRing
	clock func() time.Time
}

// NewGenerator creates a generator over the given keyring.
func NewGenerator(ring *keyring.KeyRing) *Generator {
	return &Generator{ring: ring, clock: time.Now}
}

// WithClock overrides the issuance timestamp source for tests.
func (g *Generator) WithClock(clock func() time.Time) *Generator {
	g.clock = clock
	return g
}

// Generate issues a signed proof for one classified interaction.
//
// Findings are validated but never embedded: the proof carries the aggregated
// outcome only. Fails with keyring.ErrSigningKeyUnavailable when no active
// key is configured; the caller must not substitute a stale key.
func (g *Generator) Generate(rec InteractionRecord, outcome classifier.Outcome, findings []classifier.Finding, rulesetVersion string) (*Object, error) {
	if err := validateFields(rec.InteractionID, rec.ContentDigest, outcome, rulesetVersion); err != nil {
		return nil, err
	}
	for _, f := range findings {
		if !f.Severity.Valid() {
			return nil, fmt.Errorf("%w: finding %s has unknown severity %q", ErrInvalidProofInput, f.RuleID, f.Severity)
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			return nil, fmt.Errorf("%w: finding %s confidence %v out of range", ErrInvalidProofInput, f.RuleID, f.Confidence)
		}
	}

	keyVersion, signer, err := g.ring.Active()
	if err != nil {
		return nil, err
	}

	obj := &Object{
		InteractionID:  rec.InteractionID,
		ContentDigest:  rec.ContentDigest,
		Outcome:        outcome,
		RulesetVersion: rulesetVersion,
		IssuedAt:       g.clock().UTC(),
		KeyVersion:     keyVersion,
	}

	canonicalBytes, err := CanonicalPayload(obj)
	if err != nil {
		return nil, err
	}

	obj.ProofID = canonical.HashBytes(canonicalBytes)
	obj.Signature, err = signer.Sign(canonicalBytes)
	if err != nil {
		return nil, fmt.Errorf("proof: signing failed: %w", err)
	}
	return obj, nil
}
