// Package digest computes one-way content commitments.
//
// Raw interaction content is never stored by this subsystem; only digests
// produced here leave the classification path. All algorithms are
// cryptographic hashes (preimage-resistant) — fast non-cryptographic hashes
// are deliberately not registered.
package digest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Algorithm identifies a registered digest algorithm.
type Algorithm string

const (
	SHA256   Algorithm = "sha-256"
	SHA3_256 Algorithm = "sha3-256"
)

// ErrUnknownAlgorithm is returned for an unregistered algorithm tag.
var ErrUnknownAlgorithm = fmt.Errorf("digest: unknown algorithm")

func sum(alg Algorithm, data []byte) ([]byte, error) {
	switch alg {
	case SHA256:
		h := sha256.Sum256(data)
		return h[:], nil
	case SHA3_256:
		h := sha3.Sum256(data)
		return h[:], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
}

// Content returns the digest of raw content as "<alg>:<hex>".
func Content(alg Algorithm, content []byte) (string, error) {
	d, err := sum(alg, content)
	if err != nil {
		return "", err
	}
	return string(alg) + ":" + hex.EncodeToString(d), nil
}

// Verify recomputes the digest of content and compares it against encoded.
func Verify(encoded string, content []byte) (bool, error) {
	alg, want, err := Parse(encoded)
	if err != nil {
		return false, err
	}
	got, err := sum(alg, content)
	if err != nil {
		return false, err
	}
	return hmac.Equal(got, want), nil
}

// Parse splits "<alg>:<hex>" into algorithm and raw digest bytes.
func Parse(encoded string) (Algorithm, []byte, error) {
	idx := strings.LastIndex(encoded, ":")
	if idx <= 0 || idx == len(encoded)-1 {
		return "", nil, fmt.Errorf("digest: malformed digest %q", encoded)
	}
	alg := Algorithm(encoded[:idx])
	switch alg {
	case SHA256, SHA3_256:
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	raw, err := hex.DecodeString(encoded[idx+1:])
	if err != nil {
		return "", nil, fmt.Errorf("digest: invalid hex in %q: %w", encoded, err)
	}
	if len(raw) != sha256.Size {
		return "", nil, fmt.Errorf("digest: unexpected length %d in %q", len(raw), encoded)
	}
	return alg, raw, nil
}

// ParticipantRole derives a keyed, non-reversible identifier for a participant
// identity. The key never leaves the deployment, so the hash cannot be
// dictionary-attacked by an external verifier holding only proof objects.
func ParticipantRole(key []byte, identity string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(identity))
	return "role:" + hex.EncodeToString(mac.Sum(nil))
}
