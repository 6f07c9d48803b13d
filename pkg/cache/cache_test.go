package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigillum/core/pkg/merkle"
)

func sampleProof(id string) *merkle.InclusionProof {
	return &merkle.InclusionProof{
		ProofID:   id,
		BatchID:   "batch-1",
		LeafIndex: 3,
		Siblings: []merkle.Sibling{
			{Side: merkle.SideLeft, Hash: merkle.LeafHash("a")},
			{Side: merkle.SideRight, Hash: merkle.LeafHash("b")},
		},
	}
}

func TestMemoryCache_MissIsNotAnError(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	got, err := c.Get(context.Background(), "sha256:unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCache_RoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	want := sampleProof("sha256:abc")
	require.NoError(t, c.Set(ctx, want))

	got, err := c.Get(ctx, "sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Unix(1700000000, 0)
	c.clock = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, sampleProof("sha256:abc")))

	now = now.Add(2 * time.Minute)
	got, err := c.Get(ctx, "sha256:abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}
