package tree

import (
	"fmt"
	"math/big"
)

// Path is the membership proof of a leaf. Bit i of Indices is the side of
// the node at level i (0 when it is the left child) and Elements[i] is its
// sibling, from the leaf level up to the level below the root. Since leaves
// are filled left to right, Indices is the leaf position.
type Path struct {
	Indices  uint64
	Elements []*big.Int
}

// ZeroPath returns the path used for dummy inputs: indices 0 and depth zero
// siblings.
func ZeroPath(depth int) *Path {
	p := &Path{Elements: make([]*big.Int, depth)}
	for i := range p.Elements {
		p.Elements[i] = big.NewInt(0)
	}
	return p
}

// IndicesBig returns the path indices as a field element, as the nullifier
// and the circuit inputs expect it.
func (p *Path) IndicesBig() *big.Int {
	return new(big.Int).SetUint64(p.Indices)
}

// ComputeRoot recomputes the root of the tree from a leaf and its path.
func ComputeRoot(leaf *big.Int, p *Path) (*big.Int, error) {
	if len(p.Elements) == 0 || len(p.Elements) > MaxDepth {
		return nil, fmt.Errorf("%w: path of %d elements", ErrInvalidDepth, len(p.Elements))
	}
	if p.Indices>>len(p.Elements) != 0 {
		return nil, fmt.Errorf("path indices %d out of range for depth %d", p.Indices, len(p.Elements))
	}
	current := leaf
	for l, sibling := range p.Elements {
		var err error
		if (p.Indices>>l)&1 == 0 {
			current, err = hashNodes(current, sibling)
		} else {
			current, err = hashNodes(sibling, current)
		}
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// Verify reports whether the path proves the membership of leaf under root.
func (p *Path) Verify(leaf, root *big.Int) bool {
	computed, err := ComputeRoot(leaf, p)
	if err != nil {
		return false
	}
	return computed.Cmp(root) == 0
}
