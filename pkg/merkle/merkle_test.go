package merkle

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("sha256:%064d", i)
	}
	return out
}

func TestBuild_EmptyRejected(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmptyTree)
}

func TestBuild_SingleLeaf(t *testing.T) {
	tree, err := Build(ids(1))
	require.NoError(t, err)
	assert.Equal(t, LeafHash(ids(1)[0]), tree.Root())

	proof, err := tree.Proof(0)
	require.NoError(t, err)
	assert.Empty(t, proof.Siblings)
	assert.True(t, proof.Verify(tree.Root()))
}

func TestBuild_OddLeafDuplication(t *testing.T) {
	leaves := ids(3)
	tree, err := Build(leaves)
	require.NoError(t, err)

	// With 3 leaves the last is duplicated:
	// root = node(node(h0,h1), node(h2,h2))
	h0, h1, h2 := LeafHash(leaves[0]), LeafHash(leaves[1]), LeafHash(leaves[2])
	want := nodeHash(nodeHash(h0, h1), nodeHash(h2, h2))
	assert.Equal(t, want, tree.Root())
}

func TestProof_AllLeavesVerify(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 16, 33} {
		tree, err := Build(ids(n))
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			proof, err := tree.Proof(i)
			require.NoError(t, err)
			assert.True(t, proof.Verify(tree.Root()), "n=%d leaf=%d", n, i)
		}
	}
}

func TestProof_IndexOutOfRange(t *testing.T) {
	tree, err := Build(ids(4))
	require.NoError(t, err)
	_, err = tree.Proof(-1)
	assert.Error(t, err)
	_, err = tree.Proof(4)
	assert.Error(t, err)
}

func TestProof_TamperedSiblingFails(t *testing.T) {
	tree, err := Build(ids(8))
	require.NoError(t, err)
	proof, err := tree.Proof(3)
	require.NoError(t, err)

	for i := range proof.Siblings {
		tampered := *proof
		tampered.Siblings = append([]Sibling(nil), proof.Siblings...)
		tampered.Siblings[i].Hash = LeafHash("sha256:not-a-real-leaf")
		assert.False(t, tampered.Verify(tree.Root()), "sibling %d", i)
	}
}

func TestProof_WrongLeafFails(t *testing.T) {
	tree, err := Build(ids(8))
	require.NoError(t, err)
	proof, err := tree.Proof(3)
	require.NoError(t, err)

	proof.ProofID = "sha256:0000000000000000000000000000000000000000000000000000000000009999"
	assert.False(t, proof.Verify(tree.Root()))
}

func TestLeafAndNodeDomainSeparation(t *testing.T) {
	// A leaf hash over node-like input must differ from a node hash: the
	// prefixes guarantee a leaf cannot be replayed as an interior node.
	l := LeafHash("abc")
	n := nodeHash(LeafHash("a"), LeafHash("b"))
	assert.NotEqual(t, l, n)
	assert.Len(t, l, 64)
	assert.Len(t, n, 64)
}

func TestBuild_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("same leaves give same root", prop.ForAll(
		func(raw []string) bool {
			if len(raw) == 0 {
				return true
			}
			a, err1 := Build(raw)
			b, err2 := Build(raw)
			if err1 != nil || err2 != nil {
				return false
			}
			return a.Root() == b.Root()
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("generated proofs always verify", prop.ForAll(
		func(raw []string) bool {
			if len(raw) == 0 {
				return true
			}
			tree, err := Build(raw)
			if err != nil {
				return false
			}
			for i := 0; i < tree.Len(); i++ {
				proof, err := tree.Proof(i)
				if err != nil || !proof.Verify(tree.Root()) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
