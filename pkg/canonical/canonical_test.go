package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	in := map[string]any{"b": 1, "a": 2, "c": 3}
	out, err := Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(out))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	out, err := Marshal(map[string]string{"k": "<guaranteed> & 'returns'"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "<guaranteed> & 'returns'")
}

func TestMarshal_StructTagsRespected(t *testing.T) {
	type payload struct {
		ZField string `json:"z_field"`
		AField string `json:"a_field"`
	}
	out, err := Marshal(payload{ZField: "z", AField: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"a_field":"a","z_field":"z"}`, string(out))
}

func TestMarshal_Deterministic(t *testing.T) {
	in := map[string]any{
		"interaction_id": "int-42",
		"outcome":        "blocked",
		"nested":         map[string]any{"y": 1, "x": 2},
	}
	first, err := Marshal(in)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := Marshal(in)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestHash_Prefixed(t *testing.T) {
	h, err := Hash(map[string]string{"a": "b"})
	require.NoError(t, err)
	assert.Len(t, h, len("sha256:")+64)
	assert.Equal(t, "sha256:", h[:7])
}

func TestHashBytes_KnownVector(t *testing.T) {
	// SHA-256 of the empty string.
	assert.Equal(t,
		"sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
}
