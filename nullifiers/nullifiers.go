// Package nullifiers keeps the set of nullifiers published by the pool
// contract in an arbo sparse Merkle tree, so spent notes can be rejected
// before wasting proving time and the set can be proven against its root.
package nullifiers

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/arbo"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// MaxLevels is the depth of the sparse tree, enough to use the whole
// nullifier as key.
const MaxLevels = 256

const keyLen = MaxLevels / 8

var prefix = []byte("n/")

// ErrAlreadySpent is returned when a nullifier is added twice.
var ErrAlreadySpent = fmt.Errorf("nullifier already spent")

// SpentSet is the set of published nullifiers. Each nullifier maps to the
// block number where it was published.
type SpentSet struct {
	mu   sync.Mutex
	db   db.Database
	tree *arbo.Tree
}

// New creates or opens the set stored in database.
func New(database db.Database) (*SpentSet, error) {
	pdb := prefixeddb.NewPrefixedDatabase(database, prefix)
	t, err := arbo.NewTree(arbo.Config{
		Database:     pdb,
		MaxLevels:    MaxLevels,
		HashFunction: arbo.HashFunctionPoseidon,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open nullifier tree: %w", err)
	}
	return &SpentSet{db: pdb, tree: t}, nil
}

func key(nullifier *big.Int) ([]byte, error) {
	if err := field.Check(nullifier); err != nil {
		return nil, fmt.Errorf("invalid nullifier: %w", err)
	}
	return arbo.BigIntToBytes(keyLen, nullifier), nil
}

// Add marks the nullifiers as spent at the given block. The batch is
// written in a single transaction: if any of them is already spent, or the
// write fails, none is added.
func (s *SpentSet) Add(block uint64, nullifiers ...*big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([][]byte, len(nullifiers))
	seen := make(map[string]bool, len(nullifiers))
	for i, nf := range nullifiers {
		k, err := key(nf)
		if err != nil {
			return err
		}
		spent, err := s.isSpent(k)
		if err != nil {
			return err
		}
		if spent || seen[string(k)] {
			return fmt.Errorf("%w: %s", ErrAlreadySpent, nf.String())
		}
		seen[string(k)] = true
		keys[i] = k
	}
	value := arbo.BigIntToBytes(keyLen, new(big.Int).SetUint64(block))
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	for i, k := range keys {
		if err := s.tree.AddWithTx(wTx, k, value); err != nil {
			return fmt.Errorf("cannot add nullifier %s: %w", nullifiers[i].String(), err)
		}
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("cannot commit nullifiers: %w", err)
	}
	if len(nullifiers) > 0 {
		log.Debugw("nullifiers spent", "count", len(nullifiers), "block", block)
	}
	return nil
}

// IsSpent reports whether the nullifier has been published.
func (s *SpentSet) IsSpent(nullifier *big.Int) (bool, error) {
	k, err := key(nullifier)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isSpent(k)
}

func (s *SpentSet) isSpent(k []byte) (bool, error) {
	if _, _, err := s.tree.Get(k); err != nil {
		if errors.Is(err, arbo.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("cannot read nullifier tree: %w", err)
	}
	return true, nil
}

// SpentAt returns the block where the nullifier was published.
func (s *SpentSet) SpentAt(nullifier *big.Int) (uint64, bool, error) {
	k, err := key(nullifier)
	if err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, v, err := s.tree.Get(k)
	if err != nil {
		if errors.Is(err, arbo.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("cannot read nullifier tree: %w", err)
	}
	return arbo.BytesToBigInt(v).Uint64(), true, nil
}

// Root returns the root of the nullifier tree.
func (s *SpentSet) Root() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, err := s.tree.Root()
	if err != nil {
		return nil, err
	}
	return arbo.BytesToBigInt(root), nil
}

// Count returns the number of spent nullifiers.
func (s *SpentSet) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.GetNLeafs()
}
