package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/transaction"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// BundleStatus is the relay status of a proof bundle.
type BundleStatus string

const (
	BundlePending  BundleStatus = "pending"
	BundleRelaying BundleStatus = "relaying"
	BundleDone     BundleStatus = "done"
	BundleFailed   BundleStatus = "failed"
)

// BundleEntry is a queued proof bundle. TxHash is the hash of the
// transaction that relayed it, set once done or failed. Error is the reason
// a failed bundle was rejected by the pool.
type BundleEntry struct {
	ID        uuid.UUID           `cbor:"0,keyasint"`
	Bundle    *transaction.Bundle `cbor:"1,keyasint"`
	CreatedAt int64               `cbor:"2,keyasint"`
	TxHash    []byte              `cbor:"3,keyasint,omitempty"`
	Error     string              `cbor:"4,keyasint,omitempty"`
	Status    BundleStatus        `cbor:"-"`
}

// PushBundle queues a new bundle to be relayed and returns its id. Ids are
// time ordered so the queue is consumed in arrival order.
func (s *Storage) PushBundle(b *transaction.Bundle) (uuid.UUID, error) {
	if b == nil {
		return uuid.Nil, fmt.Errorf("nil bundle")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate bundle id: %w", err)
	}
	entry := &BundleEntry{ID: id, Bundle: b, CreatedAt: time.Now().Unix()}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.setArtifact(bundlePrefix, id[:], entry); err != nil {
		return uuid.Nil, fmt.Errorf("store bundle: %w", err)
	}
	log.Debugw("bundle queued", "id", id.String(), "circuit", b.Variant.Name())
	return id, nil
}

// Bundle returns the bundle with the given id, whether it is queued, being
// relayed, done or failed. It returns ErrNotFound if it does not exist.
func (s *Storage) Bundle(id uuid.UUID) (*BundleEntry, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	entry := &BundleEntry{}
	err := s.getArtifact(bundlePrefix, id[:], entry)
	switch {
	case err == nil:
		entry.Status = BundlePending
		if s.isReserved(bundleReservPrefix, id[:]) {
			entry.Status = BundleRelaying
		}
		return entry, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	err = s.getArtifact(bundleDonePrefix, id[:], entry)
	switch {
	case err == nil:
		entry.Status = BundleDone
		return entry, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("get done bundle: %w", err)
	}
	if err := s.getArtifact(bundleFailedPrefix, id[:], entry); err != nil {
		return nil, err
	}
	entry.Status = BundleFailed
	return entry, nil
}

// NextBundle returns the oldest bundle that is not reserved and reserves it.
// It returns ErrNoMoreElements if there is none.
func (s *Storage) NextBundle() (*BundleEntry, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	pr := prefixeddb.NewPrefixedReader(s.db, bundlePrefix)
	var chosenKey, chosenVal []byte
	if err := pr.Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(bundleReservPrefix, k) {
			return true
		}
		chosenKey = append([]byte{}, k...)
		chosenVal = append([]byte{}, v...)
		return false
	}); err != nil {
		return nil, fmt.Errorf("iterate bundles: %w", err)
	}
	if chosenVal == nil {
		return nil, ErrNoMoreElements
	}
	entry := &BundleEntry{}
	if err := decodeArtifact(chosenVal, entry); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if err := s.setReservation(bundleReservPrefix, chosenKey); err != nil {
		return nil, fmt.Errorf("reserve bundle: %w", err)
	}
	entry.Status = BundleRelaying
	return entry, nil
}

// ReleaseBundle drops the reservation of a bundle so it can be taken again,
// used when relaying failed.
func (s *Storage) ReleaseBundle(id uuid.UUID) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.deleteArtifact(bundleReservPrefix, id[:]); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// MarkBundleDone moves a relayed bundle out of the queue, recording the hash
// of the transaction that carried it.
func (s *Storage) MarkBundleDone(id uuid.UUID, txHash []byte) error {
	return s.finishBundle(id, bundleDonePrefix, txHash, "")
}

// MarkBundleFailed moves a bundle rejected by the pool out of the queue, so
// it is not retried. txHash is the reverted transaction, if any.
func (s *Storage) MarkBundleFailed(id uuid.UUID, txHash []byte, reason string) error {
	return s.finishBundle(id, bundleFailedPrefix, txHash, reason)
}

func (s *Storage) finishBundle(id uuid.UUID, prefix, txHash []byte, reason string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	entry := &BundleEntry{}
	if err := s.getArtifact(bundlePrefix, id[:], entry); err != nil {
		return fmt.Errorf("get bundle: %w", err)
	}
	entry.TxHash = txHash
	entry.Error = reason
	if err := s.setArtifact(prefix, id[:], entry); err != nil {
		return fmt.Errorf("store finished bundle: %w", err)
	}
	if err := s.deleteArtifact(bundleReservPrefix, id[:]); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if err := s.deleteArtifact(bundlePrefix, id[:]); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete pending bundle: %w", err)
	}
	return nil
}

// CountPendingBundles returns the number of bundles not relayed yet,
// reserved or not.
func (s *Storage) CountPendingBundles() int {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	pr := prefixeddb.NewPrefixedReader(s.db, bundlePrefix)
	count := 0
	if err := pr.Iterate(nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		log.Warnw("failed to count bundles", "error", err.Error())
	}
	return count
}
