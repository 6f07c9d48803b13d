// Package verify performs independent verification of compliance proofs.
//
// This package is intentionally minimal with no server, store, or network
// dependencies. It trusts only the cryptographic primitives (Ed25519,
// SHA-256, JCS) and the published batch roots; it does NOT trust the engine
// that issued the proof.
package verify

import (
	"fmt"
	"time"

	"github.com/sigillum/core/pkg/canonical"
	"github.com/sigillum/core/pkg/digest"
	"github.com/sigillum/core/pkg/keyring"
	"github.com/sigillum/core/pkg/merkle"
	"github.com/sigillum/core/pkg/proof"
)

// Status is the overall verdict of a verification run.
type Status string

const (
	StatusValid             Status = "valid"
	StatusMalformedProof    Status = "malformed_proof"
	StatusInvalidProofID    Status = "invalid_proof_id"
	StatusUnknownKeyVersion Status = "unknown_key_version"
	StatusInvalidSignature  Status = "invalid_signature"
	StatusInvalidInclusion  Status = "invalid_inclusion"
	StatusRootMismatch      Status = "root_mismatch"
)

// Check is one verification step. Every step runs; a failed step records a
// reason instead of aborting, so the report shows the full picture.
type Check struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Report is the structured output of verification. Status reflects the first
// failing check in execution order.
type Report struct {
	ProofID   string    `json:"proof_id"`
	Status    Status    `json:"status"`
	Verified  bool      `json:"verified"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
	Summary   string    `json:"summary"`
}

// KeySource resolves historical verification keys by version tag. The key
// ring satisfies it; offline verifiers can back it with a published key file.
type KeySource interface {
	Verifier(versionTag string) (keyring.Signer, error)
}

// Input bundles everything the verifier needs. BatchRoot is the root the
// batch record claims; TrustedRoot is the same root obtained out of band
// (published anchor, mirrored chain). Inclusion may be nil to verify the
// proof object alone, TrustedRoot may be empty to skip the anchor check.
type Input struct {
	Proof       *proof.Object
	Inclusion   *merkle.InclusionProof
	BatchRoot   string
	TrustedRoot string
}

// Verifier re-derives every claim a proof makes. Pure computation, safe for
// untrusted inputs.
type Verifier struct {
	keys KeySource
}

func New(keys KeySource) *Verifier {
	return &Verifier{keys: keys}
}

// Verify runs all checks against in and returns the report. It never returns
// an error for a bad proof; malformed or tampered inputs produce a failing
// report.
func (v *Verifier) Verify(in Input) *Report {
	r := &Report{
		Status:    StatusValid,
		Verified:  true,
		Timestamp: time.Now().UTC(),
	}
	if in.Proof != nil {
		r.ProofID = in.Proof.ProofID
	}

	payload, c, status := checkShape(in.Proof)
	r.add(c, status)
	if payload != nil {
		r.add(checkProofID(in.Proof, payload))
		r.add(v.checkSignature(in.Proof, payload))
	}
	if in.Inclusion != nil {
		r.add(checkInclusion(in.Proof, in.Inclusion, in.BatchRoot))
	}
	if in.TrustedRoot != "" {
		r.add(checkAnchoredRoot(in.BatchRoot, in.TrustedRoot))
	}

	failed := 0
	for _, c := range r.Checks {
		if !c.Pass {
			failed++
		}
	}
	if failed > 0 {
		r.Summary = fmt.Sprintf("FAIL: %d/%d checks failed", failed, len(r.Checks))
	} else {
		r.Summary = fmt.Sprintf("PASS: %d/%d checks passed", len(r.Checks), len(r.Checks))
	}
	return r
}

// add records a check and, on the first failure, pins the report status.
func (r *Report) add(c Check, status Status) {
	r.Checks = append(r.Checks, c)
	if !c.Pass && r.Verified {
		r.Verified = false
		r.Status = status
	}
}

// checkShape validates the proof's structural claims and returns the
// canonical payload bytes used by the later checks.
func checkShape(p *proof.Object) ([]byte, Check, Status) {
	name := "proof_shape"
	if p == nil {
		return nil, Check{Name: name, Pass: false, Reason: "no proof supplied"}, StatusMalformedProof
	}
	if p.InteractionID == "" || p.ProofID == "" || p.Signature == "" {
		return nil, Check{Name: name, Pass: false, Reason: "missing required field"}, StatusMalformedProof
	}
	if _, _, err := digest.Parse(p.ContentDigest); err != nil {
		return nil, Check{Name: name, Pass: false, Reason: fmt.Sprintf("content digest: %v", err)}, StatusMalformedProof
	}
	payload, err := proof.CanonicalPayload(p)
	if err != nil {
		return nil, Check{Name: name, Pass: false, Reason: fmt.Sprintf("canonical payload: %v", err)}, StatusMalformedProof
	}
	return payload, Check{Name: name, Pass: true, Detail: "structure valid"}, StatusValid
}

// checkProofID recomputes the proof id from the canonical payload.
func checkProofID(p *proof.Object, payload []byte) (Check, Status) {
	name := "proof_id"
	got := canonical.HashBytes(payload)
	if got != p.ProofID {
		return Check{
			Name: name, Pass: false,
			Reason: fmt.Sprintf("recomputed %s, proof claims %s", got, p.ProofID),
		}, StatusInvalidProofID
	}
	return Check{Name: name, Pass: true, Detail: "proof id matches canonical payload"}, StatusValid
}

// checkSignature resolves the historical key and verifies the signature over
// the canonical payload.
func (v *Verifier) checkSignature(p *proof.Object, payload []byte) (Check, Status) {
	name := "signature"
	signer, err := v.keys.Verifier(p.KeyVersion)
	if err != nil {
		return Check{Name: name, Pass: false, Reason: fmt.Sprintf("key %s: %v", p.KeyVersion, err)}, StatusUnknownKeyVersion
	}
	ok, err := signer.Verify(payload, p.Signature)
	if err != nil {
		return Check{Name: name, Pass: false, Reason: fmt.Sprintf("signature: %v", err)}, StatusInvalidSignature
	}
	if !ok {
		return Check{Name: name, Pass: false, Reason: "signature does not verify over canonical payload"}, StatusInvalidSignature
	}
	return Check{Name: name, Pass: true, Detail: fmt.Sprintf("verified with key %s", p.KeyVersion)}, StatusValid
}

// checkInclusion walks the sibling path and compares the derived root to the
// root the batch record claims.
func checkInclusion(p *proof.Object, ip *merkle.InclusionProof, batchRoot string) (Check, Status) {
	name := "inclusion"
	if batchRoot == "" {
		return Check{Name: name, Pass: false, Reason: "no batch root supplied"}, StatusInvalidInclusion
	}
	if p != nil && ip.ProofID != p.ProofID {
		return Check{
			Name: name, Pass: false,
			Reason: fmt.Sprintf("inclusion path is for %s, not %s", ip.ProofID, p.ProofID),
		}, StatusInvalidInclusion
	}
	if !ip.Verify(batchRoot) {
		return Check{Name: name, Pass: false, Reason: "sibling path does not reproduce batch root"}, StatusInvalidInclusion
	}
	return Check{Name: name, Pass: true, Detail: fmt.Sprintf("path reproduces root of batch %s", ip.BatchID)}, StatusValid
}

// checkAnchoredRoot compares the batch's claimed root against the same root
// obtained from an independent source.
func checkAnchoredRoot(batchRoot, trustedRoot string) (Check, Status) {
	name := "anchored_root"
	if batchRoot != trustedRoot {
		return Check{
			Name: name, Pass: false,
			Reason: fmt.Sprintf("batch claims root %s, trusted source has %s", batchRoot, trustedRoot),
		}, StatusRootMismatch
	}
	return Check{Name: name, Pass: true, Detail: "batch root matches independently published root"}, StatusValid
}
