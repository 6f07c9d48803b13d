package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigillum/core/pkg/classifier"
	"github.com/sigillum/core/pkg/digest"
	"github.com/sigillum/core/pkg/keyring"
	"github.com/sigillum/core/pkg/merkle"
	"github.com/sigillum/core/pkg/proof"
)

type fixture struct {
	ring      *keyring.KeyRing
	verifier  *Verifier
	proofs    []*proof.Object
	tree      *merkle.Tree
	batchRoot string
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	signer, err := keyring.NewEd25519Signer()
	require.NoError(t, err)
	ring := keyring.New()
	require.NoError(t, ring.Add(1, signer, true))

	gen := proof.NewGenerator(ring).WithClock(func() time.Time {
		return time.Unix(1700000000, 0).UTC()
	})

	var proofs []*proof.Object
	var leaves []string
	for i := 0; i < n; i++ {
		cd, err := digest.Content(digest.SHA256, []byte{byte(i), 'x'})
		require.NoError(t, err)
		p, err := gen.Generate(proof.InteractionRecord{
			InteractionID: "interaction-" + string(rune('a'+i)),
			ContentDigest: cd,
		}, classifier.OutcomeClean, nil, "1.0.0")
		require.NoError(t, err)
		proofs = append(proofs, p)
		leaves = append(leaves, p.ProofID)
	}
	tree, err := merkle.Build(leaves)
	require.NoError(t, err)

	return &fixture{
		ring:      ring,
		verifier:  New(ring),
		proofs:    proofs,
		tree:      tree,
		batchRoot: tree.Root(),
	}
}

func (f *fixture) inclusion(t *testing.T, i int) *merkle.InclusionProof {
	t.Helper()
	ip, err := f.tree.Proof(i)
	require.NoError(t, err)
	return ip
}

func TestVerify_ValidProof(t *testing.T) {
	f := newFixture(t, 4)

	report := f.verifier.Verify(Input{
		Proof:       f.proofs[2],
		Inclusion:   f.inclusion(t, 2),
		BatchRoot:   f.batchRoot,
		TrustedRoot: f.batchRoot,
	})

	assert.True(t, report.Verified)
	assert.Equal(t, StatusValid, report.Status)
	assert.Len(t, report.Checks, 5)
	for _, c := range report.Checks {
		assert.True(t, c.Pass, c.Name)
	}
	assert.Contains(t, report.Summary, "PASS")
}

func TestVerify_ProofObjectAlone(t *testing.T) {
	f := newFixture(t, 1)

	report := f.verifier.Verify(Input{Proof: f.proofs[0]})
	assert.True(t, report.Verified)
	assert.Len(t, report.Checks, 3)
}

func TestVerify_TamperedOutcome(t *testing.T) {
	f := newFixture(t, 1)

	// Flipping the outcome after issuance invalidates the proof id first:
	// the id commits to the canonical payload.
	tampered := *f.proofs[0]
	tampered.Outcome = classifier.OutcomeBlocked

	report := f.verifier.Verify(Input{Proof: &tampered})
	assert.False(t, report.Verified)
	assert.Equal(t, StatusInvalidProofID, report.Status)
}

func TestVerify_TamperedSignature(t *testing.T) {
	f := newFixture(t, 1)

	tampered := *f.proofs[0]
	sig := []byte(tampered.Signature)
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	tampered.Signature = string(sig)

	report := f.verifier.Verify(Input{Proof: &tampered})
	assert.False(t, report.Verified)
	assert.Equal(t, StatusInvalidSignature, report.Status)
}

func TestVerify_UnknownKeyVersion(t *testing.T) {
	f := newFixture(t, 1)

	tampered := *f.proofs[0]
	tampered.KeyVersion = "v99"

	report := f.verifier.Verify(Input{Proof: &tampered})
	assert.False(t, report.Verified)
	// The id does not commit to the key version, so the shape and id checks
	// pass and the key lookup is the first failure.
	assert.Equal(t, StatusUnknownKeyVersion, report.Status)
}

func TestVerify_TamperedSibling(t *testing.T) {
	f := newFixture(t, 4)

	ip := f.inclusion(t, 1)
	ip.Siblings[0].Hash = merkle.LeafHash("sha256:forged")

	report := f.verifier.Verify(Input{
		Proof:     f.proofs[1],
		Inclusion: ip,
		BatchRoot: f.batchRoot,
	})
	assert.False(t, report.Verified)
	assert.Equal(t, StatusInvalidInclusion, report.Status)
}

func TestVerify_InclusionForDifferentProof(t *testing.T) {
	f := newFixture(t, 4)

	report := f.verifier.Verify(Input{
		Proof:     f.proofs[0],
		Inclusion: f.inclusion(t, 1),
		BatchRoot: f.batchRoot,
	})
	assert.False(t, report.Verified)
	assert.Equal(t, StatusInvalidInclusion, report.Status)
}

func TestVerify_RootMismatch(t *testing.T) {
	f := newFixture(t, 4)

	report := f.verifier.Verify(Input{
		Proof:       f.proofs[0],
		Inclusion:   f.inclusion(t, 0),
		BatchRoot:   f.batchRoot,
		TrustedRoot: merkle.LeafHash("sha256:somewhere-else"),
	})
	assert.False(t, report.Verified)
	assert.Equal(t, StatusRootMismatch, report.Status)
}

func TestVerify_MalformedProof(t *testing.T) {
	f := newFixture(t, 1)

	report := f.verifier.Verify(Input{Proof: nil})
	assert.False(t, report.Verified)
	assert.Equal(t, StatusMalformedProof, report.Status)

	missing := *f.proofs[0]
	missing.ContentDigest = "not-a-digest"
	report = f.verifier.Verify(Input{Proof: &missing})
	assert.False(t, report.Verified)
	assert.Equal(t, StatusMalformedProof, report.Status)
}

func TestVerify_KeyRotationKeepsOldProofsVerifiable(t *testing.T) {
	f := newFixture(t, 1)

	next, err := keyring.NewEd25519Signer()
	require.NoError(t, err)
	require.NoError(t, f.ring.Add(2, next, true))

	report := f.verifier.Verify(Input{Proof: f.proofs[0]})
	assert.True(t, report.Verified, "proof signed with v1 must verify after rotation to v2")
}
