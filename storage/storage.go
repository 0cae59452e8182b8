// Package storage persists the artifacts produced by the node and exposes
// them as queues for the services that consume them. The following prefixes
// are used:
//   - 'b/' for proof bundles waiting to be relayed (queued)
//   - 'br/' for the reservations of the bundles being relayed
//   - 'bd/' for the bundles already relayed
//   - 's/' for the chain sync checkpoint
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/aegis/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	bundlePrefix        = []byte("b/")
	bundleReservPrefix  = []byte("br/")
	bundleDonePrefix    = []byte("bd/")
	bundleFailedPrefix  = []byte("bf/")
	syncPrefix          = []byte("s/")
	reservationDuration = 10 * time.Minute
)

var (
	// ErrNotFound is returned when an artifact is not in the storage.
	ErrNotFound = fmt.Errorf("not found")
	// ErrNoMoreElements is returned when a queue has no unreserved
	// elements left.
	ErrNoMoreElements = fmt.Errorf("no more elements")
)

// Storage is the persistent store of the node.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance over the database.
func New(database db.Database) *Storage {
	return &Storage{db: database}
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("error closing storage", "error", err.Error())
	}
}

// getArtifact decodes the value of key into out. It returns ErrNotFound if
// the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	pr := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := pr.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// setArtifact stores the encoded artifact under key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// deleteArtifact removes key. It returns ErrNotFound if it does not exist.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	pr := prefixeddb.NewPrefixedReader(s.db, prefix)
	if _, err := pr.Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// reservation marks a queued element as taken by a consumer.
type reservation struct {
	Timestamp int64 `cbor:"0,keyasint"`
}

// isReserved reports whether key has a reservation that has not expired.
func (s *Storage) isReserved(prefix, key []byte) bool {
	var r reservation
	if err := s.getArtifact(prefix, key, &r); err != nil {
		return false
	}
	return time.Since(time.Unix(r.Timestamp, 0)) < reservationDuration
}

func (s *Storage) setReservation(prefix, key []byte) error {
	return s.setArtifact(prefix, key, reservation{Timestamp: time.Now().Unix()})
}
