package merkle

// Side says which side of the running hash a sibling sits on.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
)

// Sibling is one step of an inclusion path.
type Sibling struct {
	Side Side   `json:"side"`
	Hash string `json:"hash"`
}

// InclusionProof is the sibling path from one proof-id leaf to a batch root.
// Derived data: always regenerable from an anchored batch's leaf list.
type InclusionProof struct {
	ProofID   string    `json:"proof_id"`
	BatchID   string    `json:"batch_id,omitempty"`
	LeafIndex int       `json:"leaf_index"`
	Siblings  []Sibling `json:"sibling_hashes"`
}

// Verify walks the sibling path up from the leaf and reports whether it
// reproduces expectedRoot. Pure computation, safe for untrusted callers.
func (p *InclusionProof) Verify(expectedRoot string) bool {
	current := LeafHash(p.ProofID)
	for _, step := range p.Siblings {
		if step.Side == SideLeft {
			current = nodeHash(step.Hash, current)
		} else {
			current = nodeHash(current, step.Hash)
		}
	}
	return current == expectedRoot
}
