// Package merkle builds batch trees over ordered proof-id leaves and issues
// compact inclusion proofs against their roots.
//
// Hashing rules, fixed so any third party can recompute a root:
//
//	leaf_hash = SHA-256("sigillum:leaf:v1\0" || proof_id_bytes)
//	node_hash = SHA-256("sigillum:node:v1\0" || left_hash || right_hash)
//
// Leaf and node hashing are domain-separated, so a leaf can never be
// reinterpreted as an interior node. When a level has an odd number of
// hashes, the last hash is duplicated.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	leafPrefix = "sigillum:leaf:v1"
	nodePrefix = "sigillum:node:v1"
)

// ErrEmptyTree is returned when building a tree over zero leaves.
var ErrEmptyTree = errors.New("merkle: cannot build tree over zero leaves")

// Tree is an immutable Merkle tree over an ordered leaf list.
type Tree struct {
	leaves []string   // proof ids in append order
	levels [][]string // levels[0] = leaf hashes, last level = [root]
}

// Build constructs the tree for the given ordered proof ids.
func Build(proofIDs []string) (*Tree, error) {
	if len(proofIDs) == 0 {
		return nil, ErrEmptyTree
	}

	leaves := make([]string, len(proofIDs))
	copy(leaves, proofIDs)

	level := make([]string, len(leaves))
	for i, id := range leaves {
		level[i] = LeafHash(id)
	}

	levels := [][]string{level}
	for len(level) > 1 {
		level = nextLevel(level)
		levels = append(levels, level)
	}

	return &Tree{leaves: leaves, levels: levels}, nil
}

// Root returns the hex root hash.
func (t *Tree) Root() string { return t.levels[len(t.levels)-1][0] }

// Len returns the number of leaves.
func (t *Tree) Len() int { return len(t.leaves) }

// LeafHash computes the domain-separated hash of one proof id.
func LeafHash(proofID string) string {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(proofID)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

func nextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		hashes = append(hashes, hashes[count-1])
		count++
	}
	next := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func hexToBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		// Interior hashes are produced locally; invalid hex means corrupted
		// input and hashes to a value that can never verify.
		return []byte(s)
	}
	return b
}

// Proof generates the inclusion proof for the leaf at index.
func (t *Tree) Proof(index int) (*InclusionProof, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, len(t.leaves))
	}

	proof := &InclusionProof{
		ProofID:   t.leaves[index],
		LeafIndex: index,
	}

	idx := index
	for _, level := range t.levels[:len(t.levels)-1] {
		// Odd levels behave as if the last hash were duplicated.
		padded := level
		if len(padded)%2 != 0 {
			padded = append(append([]string(nil), padded...), padded[len(padded)-1])
		}
		if idx%2 == 0 {
			proof.Siblings = append(proof.Siblings, Sibling{Side: SideRight, Hash: padded[idx+1]})
		} else {
			proof.Siblings = append(proof.Siblings, Sibling{Side: SideLeft, Hash: padded[idx-1]})
		}
		idx /= 2
	}
	return proof, nil
}
