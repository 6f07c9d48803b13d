// Package keyring provides versioned signing keys for proof issuance.
//
// Long-term key material is supplied externally (file keystore or KMS
// import); this package only references keys by version. Rotated keys stay
// available for verification of historical proofs, never for new signatures.
package keyring

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Algorithm identifies the signature scheme of a key.
type Algorithm string

const (
	AlgEd25519    Algorithm = "ed25519"
	AlgHMACSHA256 Algorithm = "hmac-sha256"
)

// Signer signs and verifies canonical payload bytes. Signatures are hex.
type Signer interface {
	Algorithm() Algorithm
	Sign(data []byte) (string, error)
	Verify(data []byte, sigHex string) (bool, error)
	// PublicKey returns the hex public key for asymmetric schemes, empty for
	// shared-secret schemes.
	PublicKey() string
}

// Ed25519Signer signs with an Ed25519 private key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keyring: key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// NewEd25519SignerFromSeed rebuilds a signer from a 32-byte seed.
func NewEd25519SignerFromSeed(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keyring: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// NewEd25519Verifier builds a verify-only signer from a hex public key.
func NewEd25519Verifier(pubHex string) (*Ed25519Signer, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("keyring: invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keyring: invalid public key size %d", len(pub))
	}
	return &Ed25519Signer{pub: pub}, nil
}

func (s *Ed25519Signer) Algorithm() Algorithm { return AlgEd25519 }

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	if s.priv == nil {
		return "", fmt.Errorf("keyring: verify-only key cannot sign")
	}
	return hex.EncodeToString(ed25519.Sign(s.priv, data)), nil
}

func (s *Ed25519Signer) Verify(data []byte, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("keyring: invalid signature hex: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(s.pub, data, sig), nil
}

func (s *Ed25519Signer) PublicKey() string { return hex.EncodeToString(s.pub) }

// Seed exposes the private seed for keystore persistence.
func (s *Ed25519Signer) Seed() []byte {
	if s.priv == nil {
		return nil
	}
	return s.priv.Seed()
}

// HMACSigner signs with a shared secret. Verifiers holding the same secret
// recompute the tag; there is no public key.
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner wraps a shared secret of at least 32 bytes.
func NewHMACSigner(secret []byte) (*HMACSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("keyring: hmac secret must be at least 32 bytes, got %d", len(secret))
	}
	return &HMACSigner{secret: secret}, nil
}

func (s *HMACSigner) Algorithm() Algorithm { return AlgHMACSHA256 }

func (s *HMACSigner) Sign(data []byte) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) Verify(data []byte, sigHex string) (bool, error) {
	want, err := s.Sign(data)
	if err != nil {
		return false, err
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("keyring: invalid signature hex: %w", err)
	}
	wantRaw, _ := hex.DecodeString(want)
	return hmac.Equal(wantRaw, got), nil
}

func (s *HMACSigner) PublicKey() string { return "" }
