// Package tree implements the incremental, fixed depth, append-only Merkle
// tree that mirrors the note commitments of the pool. Internal nodes are
// Poseidon(left, right) and unused positions hold the zero leaf, whose
// subtree hashes are precomputed per level.
//
// A tree has a single writer at a time: inserts take the write lock and swap
// in the updated levels only once every node and the persisted leaves are
// ready, so readers never observe a partial batch.
package tree

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/log"
	"go.vocdoni.io/dvote/db"
)

// MaxDepth is the deepest tree supported. Leaf positions and path indices
// must fit in an uint64 and protocol deployments use 8 to 16 levels.
const MaxDepth = 32

var (
	// ErrCapacityExceeded is returned when an insertion would exceed the
	// 2^depth leaves of the tree. The tree stays unchanged.
	ErrCapacityExceeded = fmt.Errorf("tree capacity exceeded")
	// ErrLeafNotFound is returned when a proof is requested for a leaf that
	// has not been inserted.
	ErrLeafNotFound = fmt.Errorf("leaf not found in the tree")
	// ErrInvalidDepth is returned when the tree depth is out of bounds.
	ErrInvalidDepth = fmt.Errorf("invalid tree depth")
)

// Reader is the read-only view of a tree.
type Reader interface {
	Depth() int
	Size() uint64
	Root() *big.Int
	GenerateProof(leaf *big.Int) (*Path, error)
}

// Viewer provides a consistent view of a tree during the execution of fn:
// no insertion can happen while fn runs.
type Viewer interface {
	View(fn func(Reader) error) error
}

// Tree is an incremental Merkle tree safe for concurrent use.
type Tree struct {
	mu     sync.RWMutex
	depth  int
	zeros  []*big.Int
	levels [][]*big.Int
	// index maps the encoded leaf to its first position
	index map[[field.ElementSize]byte]uint64
	db    db.Database
}

// New creates an empty in-memory tree of the given depth.
func New(depth int) (*Tree, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidDepth, depth, MaxDepth)
	}
	zeros, err := zeroHashes(depth)
	if err != nil {
		return nil, err
	}
	return &Tree{
		depth:  depth,
		zeros:  zeros,
		levels: make([][]*big.Int, depth+1),
		index:  make(map[[field.ElementSize]byte]uint64),
	}, nil
}

// zeroHashes returns the root of an all-zero subtree for every height, from
// the zero leaf (height 0) to the empty tree root (height depth).
func zeroHashes(depth int) ([]*big.Int, error) {
	zeros := make([]*big.Int, depth+1)
	zeros[0] = big.NewInt(0)
	for l := 1; l <= depth; l++ {
		h, err := hashNodes(zeros[l-1], zeros[l-1])
		if err != nil {
			return nil, err
		}
		zeros[l] = h
	}
	return zeros, nil
}

func hashNodes(left, right *big.Int) (*big.Int, error) {
	h, err := poseidon.Hash([]*big.Int{left, right})
	if err != nil {
		return nil, fmt.Errorf("cannot hash tree nodes: %w", err)
	}
	return h, nil
}

// EmptyRoot returns the root of an empty tree of the given depth.
func EmptyRoot(depth int) (*big.Int, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	zeros, err := zeroHashes(depth)
	if err != nil {
		return nil, err
	}
	return zeros[depth], nil
}

// Depth returns the number of levels of the tree.
func (t *Tree) Depth() int {
	return t.depth
}

// Capacity returns the maximum number of leaves, 2^depth.
func (t *Tree) Capacity() uint64 {
	return uint64(1) << t.depth
}

// Size returns the number of leaves inserted so far, which is also the
// position of the next insertion.
func (t *Tree) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size()
}

// Root returns the current root of the tree.
func (t *Tree) Root() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root()
}

// GenerateProof returns the membership path of the first occurrence of the
// leaf. It returns ErrLeafNotFound if the leaf is not in the tree.
func (t *Tree) GenerateProof(leaf *big.Int) (*Path, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.generateProof(leaf)
}

// Leaves returns a copy of the inserted leaves in insertion order.
func (t *Tree) Leaves() []*big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	leaves := make([]*big.Int, len(t.levels[0]))
	for i, l := range t.levels[0] {
		leaves[i] = new(big.Int).Set(l)
	}
	return leaves
}

// View runs fn holding the read lock, so the root and every proof generated
// through the Reader belong to the same tree state.
func (t *Tree) View(fn func(Reader) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(&snapshot{t})
}

// InsertLeaves appends the leaves at the current position and returns the
// new root. The batch is applied entirely or not at all.
func (t *Tree) InsertLeaves(leaves []*big.Int) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insert(leaves, true)
}

func (t *Tree) insert(leaves []*big.Int, persist bool) (*big.Int, error) {
	size := t.size()
	if uint64(len(leaves)) > t.Capacity()-size {
		return nil, fmt.Errorf("%w: %d leaves inserted, %d more requested, capacity %d",
			ErrCapacityExceeded, size, len(leaves), t.Capacity())
	}
	if len(leaves) == 0 {
		return t.root(), nil
	}
	for i, leaf := range leaves {
		if err := field.Check(leaf); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
	}

	// build the updated levels on the side, the current ones stay untouched
	// until the batch is complete
	next := make([][]*big.Int, t.depth+1)
	next[0] = make([]*big.Int, 0, int(size)+len(leaves))
	next[0] = append(next[0], t.levels[0]...)
	for _, leaf := range leaves {
		next[0] = append(next[0], new(big.Int).Set(leaf))
	}
	from := size
	for l := 0; l < t.depth; l++ {
		from >>= 1
		count := (uint64(len(next[l])) + 1) / 2
		parents := make([]*big.Int, count)
		copy(parents, t.levels[l+1][:from])
		for i := from; i < count; i++ {
			left := next[l][2*i]
			right := t.zeros[l]
			if 2*i+1 < uint64(len(next[l])) {
				right = next[l][2*i+1]
			}
			h, err := hashNodes(left, right)
			if err != nil {
				return nil, err
			}
			parents[i] = h
		}
		next[l+1] = parents
	}

	if persist && t.db != nil {
		if err := t.storeLeaves(size, leaves); err != nil {
			return nil, fmt.Errorf("cannot persist leaves: %w", err)
		}
	}

	t.levels = next
	for i, leaf := range leaves {
		key := field.Bytes32(leaf)
		if _, ok := t.index[key]; !ok {
			t.index[key] = size + uint64(i)
		}
	}
	root := t.root()
	log.Debugw("tree leaves inserted", "count", len(leaves), "size", t.size(), "root", root.String())
	return root, nil
}

func (t *Tree) size() uint64 {
	return uint64(len(t.levels[0]))
}

func (t *Tree) root() *big.Int {
	if len(t.levels[t.depth]) == 0 {
		return new(big.Int).Set(t.zeros[t.depth])
	}
	return new(big.Int).Set(t.levels[t.depth][0])
}

func (t *Tree) node(level int, pos uint64) *big.Int {
	if pos < uint64(len(t.levels[level])) {
		return t.levels[level][pos]
	}
	return t.zeros[level]
}

func (t *Tree) generateProof(leaf *big.Int) (*Path, error) {
	if !field.IsCanonical(leaf) {
		return nil, fmt.Errorf("%w: %v", ErrLeafNotFound, leaf)
	}
	pos, ok := t.index[field.Bytes32(leaf)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLeafNotFound, leaf.String())
	}
	path := &Path{
		Indices:  pos,
		Elements: make([]*big.Int, t.depth),
	}
	for l := 0; l < t.depth; l++ {
		path.Elements[l] = new(big.Int).Set(t.node(l, pos^1))
		pos >>= 1
	}
	return path, nil
}

// snapshot is the Reader handed to View callbacks. Its methods run without
// locking since the caller already holds the read lock.
type snapshot struct {
	t *Tree
}

func (s *snapshot) Depth() int {
	return s.t.depth
}

func (s *snapshot) Size() uint64 {
	return s.t.size()
}

func (s *snapshot) Root() *big.Int {
	return s.t.root()
}

func (s *snapshot) GenerateProof(leaf *big.Int) (*Path, error) {
	return s.t.generateProof(leaf)
}
