package tree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys of a persistent tree in its database.
	metaPrefix = []byte("m/")
	leafPrefix = []byte("l/")

	depthKey = []byte("depth")

	// ErrDepthMismatch is returned when a persisted tree is opened with a
	// different depth than the one it was created with.
	ErrDepthMismatch = fmt.Errorf("persisted tree depth mismatch")
)

// Open loads the tree stored in the database, or creates a new one if the
// database holds no tree. Only leaves are stored, internal nodes are
// recomputed when the tree is loaded. Every later insertion is written to
// the database before it becomes visible.
func Open(database db.Database, depth int) (*Tree, error) {
	t, err := New(depth)
	if err != nil {
		return nil, err
	}
	meta := prefixeddb.NewPrefixedReader(database, metaPrefix)
	stored, err := meta.Get(depthKey)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		wTx := prefixeddb.NewPrefixedWriteTx(database.WriteTx(), metaPrefix)
		if err := wTx.Set(depthKey, []byte{byte(depth)}); err != nil {
			wTx.Discard()
			return nil, err
		}
		if err := wTx.Commit(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("cannot read tree depth: %w", err)
	case len(stored) != 1 || int(stored[0]) != depth:
		return nil, fmt.Errorf("%w: stored %v, requested %d", ErrDepthMismatch, stored, depth)
	}

	var leaves []*big.Int
	var iterErr error
	rd := prefixeddb.NewPrefixedReader(database, leafPrefix)
	if err := rd.Iterate(nil, func(k, v []byte) bool {
		if len(k) != 8 || binary.BigEndian.Uint64(k) != uint64(len(leaves)) {
			iterErr = fmt.Errorf("unexpected leaf key %x at position %d", k, len(leaves))
			return false
		}
		leaves = append(leaves, new(big.Int).SetBytes(v))
		return true
	}); err != nil {
		return nil, fmt.Errorf("cannot iterate leaves: %w", err)
	}
	if iterErr != nil {
		return nil, iterErr
	}
	if _, err := t.insert(leaves, false); err != nil {
		return nil, fmt.Errorf("cannot rebuild tree: %w", err)
	}
	t.db = database
	log.Infow("tree loaded", "depth", depth, "leaves", len(leaves), "root", t.root().String())
	return t, nil
}

// storeLeaves writes the leaves starting at position from in a single write
// transaction.
func (t *Tree) storeLeaves(from uint64, leaves []*big.Int) error {
	wTx := prefixeddb.NewPrefixedWriteTx(t.db.WriteTx(), leafPrefix)
	for i, leaf := range leaves {
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, from+uint64(i))
		value := field.Bytes32(leaf)
		if err := wTx.Set(key, value[:]); err != nil {
			wTx.Discard()
			return err
		}
	}
	return wTx.Commit()
}
