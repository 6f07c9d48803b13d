package digest

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_RoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{SHA256, SHA3_256} {
		d, err := Content(alg, []byte("mutual funds are subject to market risk"))
		require.NoError(t, err)

		ok, err := Verify(d, []byte("mutual funds are subject to market risk"))
		require.NoError(t, err)
		assert.True(t, ok, "alg %s", alg)

		ok, err = Verify(d, []byte("tampered content"))
		require.NoError(t, err)
		assert.False(t, ok, "alg %s", alg)
	}
}

func TestContent_UnknownAlgorithm(t *testing.T) {
	_, err := Content(Algorithm("crc32"), []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestParse_Malformed(t *testing.T) {
	for _, bad := range []string{"", "sha-256", "sha-256:", ":abcd", "sha-256:zz", "sha-256:abcd"} {
		_, _, err := Parse(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

// No collisions observed across a randomized corpus; a practical stand-in for
// the one-wayness property of the underlying hash.
func TestContent_NoObservedCollisions(t *testing.T) {
	seen := make(map[string]string, 2000)
	buf := make([]byte, 64)
	for i := 0; i < 2000; i++ {
		_, err := rand.Read(buf)
		require.NoError(t, err)
		d, err := Content(SHA256, buf)
		require.NoError(t, err)
		if prev, dup := seen[d]; dup {
			t.Fatalf("collision between %q and %q", prev, string(buf))
		}
		seen[d] = string(buf)
	}
}

func TestParticipantRole_KeyedAndStable(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	a := ParticipantRole(key, "advisor:alice@example.com")
	b := ParticipantRole(key, "advisor:alice@example.com")
	assert.Equal(t, a, b)

	other := ParticipantRole([]byte("another-key-another-key-another!"), "advisor:alice@example.com")
	assert.NotEqual(t, a, other, "role hash must depend on the key")

	assert.NotContains(t, a, "alice")
}
