package storage

import (
	"errors"
	"fmt"
)

var syncedBlockKey = []byte("block")

// syncCheckpoint is the position of the chain sync.
type syncCheckpoint struct {
	NextBlock uint64 `cbor:"0,keyasint"`
}

// SetSyncedBlock records the next block the chain sync has to scan. Every
// block before it is applied to the tree and the nullifier set.
func (s *Storage) SetSyncedBlock(next uint64) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.setArtifact(syncPrefix, syncedBlockKey, &syncCheckpoint{NextBlock: next}); err != nil {
		return fmt.Errorf("store sync checkpoint: %w", err)
	}
	return nil
}

// SyncedBlock returns the next block the chain sync has to scan, and false
// if the sync never ran.
func (s *Storage) SyncedBlock() (uint64, bool, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	cp := &syncCheckpoint{}
	if err := s.getArtifact(syncPrefix, syncedBlockKey, cp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get sync checkpoint: %w", err)
	}
	return cp.NextBlock, true, nil
}
