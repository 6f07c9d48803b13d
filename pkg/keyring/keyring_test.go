package keyring

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd25519Signer_RoundTrip(t *testing.T) {
	s, err := NewEd25519Signer()
	require.NoError(t, err)

	sig, err := s.Sign([]byte("canonical payload"))
	require.NoError(t, err)

	ok, err := s.Verify([]byte("canonical payload"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Verify([]byte("tampered payload"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEd25519Verifier_FromPublicKey(t *testing.T) {
	s, err := NewEd25519Signer()
	require.NoError(t, err)
	sig, err := s.Sign([]byte("data"))
	require.NoError(t, err)

	v, err := NewEd25519Verifier(s.PublicKey())
	require.NoError(t, err)
	ok, err := v.Verify([]byte("data"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = v.Sign([]byte("data"))
	assert.Error(t, err, "verify-only key must not sign")
}

func TestHMACSigner_RoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	s, err := NewHMACSigner(secret)
	require.NoError(t, err)

	sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)
	ok, err := s.Verify([]byte("payload"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := NewHMACSigner([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	ok, err = other.Verify([]byte("payload"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHMACSigner_RejectsShortSecret(t *testing.T) {
	_, err := NewHMACSigner([]byte("short"))
	assert.Error(t, err)
}

func TestKeyRing_ActiveAndRotation(t *testing.T) {
	kr := New()

	_, _, err := kr.Active()
	assert.ErrorIs(t, err, ErrSigningKeyUnavailable)

	s1, err := NewEd25519Signer()
	require.NoError(t, err)
	require.NoError(t, kr.Add(1, s1, true))

	tag, active, err := kr.Active()
	require.NoError(t, err)
	assert.Equal(t, "v1", tag)
	assert.Same(t, Signer(s1), active)

	s2, err := NewEd25519Signer()
	require.NoError(t, err)
	require.NoError(t, kr.Add(2, s2, true))

	tag, _, err = kr.Active()
	require.NoError(t, err)
	assert.Equal(t, "v2", tag)

	// Old version stays verifiable.
	v, err := kr.Verifier("v1")
	require.NoError(t, err)
	assert.Same(t, Signer(s1), v)

	_, err = kr.Verifier("v9")
	assert.ErrorIs(t, err, ErrUnknownKeyVersion)
	_, err = kr.Verifier("version-nine")
	assert.ErrorIs(t, err, ErrUnknownKeyVersion)
}

func TestKeyRing_RetireWithoutReplacement(t *testing.T) {
	kr := New()
	s1, err := NewEd25519Signer()
	require.NoError(t, err)
	require.NoError(t, kr.Add(1, s1, true))

	kr.Retire(1)

	_, _, err = kr.Active()
	assert.ErrorIs(t, err, ErrSigningKeyUnavailable)

	// Retired keys still verify historical proofs.
	_, err = kr.Verifier("v1")
	assert.NoError(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("v12")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	for _, bad := range []string{"", "12", "v", "v0", "v-1", "vx"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestFileKeyRing_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "keystore.json")

	fk, err := OpenFileKeyRing(path)
	require.NoError(t, err)
	assert.Equal(t, 1, fk.ActiveVersion())

	sig, err := mustActive(t, fk.KeyRing).Sign([]byte("data"))
	require.NoError(t, err)

	v2, err := fk.Rotate()
	require.NoError(t, err)
	assert.Equal(t, 2, v2)

	// Reload from disk: both versions present, v2 active.
	reloaded, err := OpenFileKeyRing(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.ActiveVersion())

	v1, err := reloaded.Verifier("v1")
	require.NoError(t, err)
	ok, err := v1.Verify([]byte("data"), sig)
	require.NoError(t, err)
	assert.True(t, ok, "v1 signature must verify after rotation and reload")
}

func mustActive(t *testing.T, kr *KeyRing) Signer {
	t.Helper()
	_, s, err := kr.Active()
	require.NoError(t, err)
	return s
}
