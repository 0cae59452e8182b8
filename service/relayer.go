package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/web3"
)

// BundleSubmitter sends a proof bundle to the pool contract and waits for it
// to be mined. A bundle rejected by the pool returns an error wrapping
// web3.ErrReverted. *web3.Relayer implements it.
type BundleSubmitter interface {
	Submit(ctx context.Context, b *transaction.Bundle) (common.Hash, error)
}

// RelayerService consumes the bundle queue in arrival order and submits
// every bundle to the pool contract. A bundle rejected by the pool is marked
// failed, any other failure releases it to be retried on the next round.
type RelayerService struct {
	storage   *storage.Storage
	submitter BundleSubmitter
	interval  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelayer creates a new RelayerService instance.
func NewRelayer(stg *storage.Storage, submitter BundleSubmitter, interval time.Duration) *RelayerService {
	return &RelayerService{
		storage:   stg,
		submitter: submitter,
		interval:  interval,
	}
}

// Start begins relaying in the background. It returns an error if the
// service is already running.
func (rs *RelayerService) Start(ctx context.Context) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cancel != nil {
		return fmt.Errorf("relayer service already running")
	}
	ctx, rs.cancel = context.WithCancel(ctx)
	rs.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(rs.interval)
		defer ticker.Stop()
		for {
			if _, err := rs.RelayPending(ctx); err != nil && ctx.Err() == nil {
				log.Warnw("bundle relay failed, retrying", "error", err.Error())
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}(rs.done)
	return nil
}

// Stop halts the service and waits for the current round to finish.
func (rs *RelayerService) Stop() {
	rs.mu.Lock()
	cancel, done := rs.cancel, rs.done
	rs.cancel = nil
	rs.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RelayPending submits the queued bundles until the queue is empty or a
// submission fails without a receipt, and returns how many were relayed.
func (rs *RelayerService) RelayPending(ctx context.Context) (int, error) {
	relayed := 0
	for ctx.Err() == nil {
		entry, err := rs.storage.NextBundle()
		if err != nil {
			if errors.Is(err, storage.ErrNoMoreElements) {
				return relayed, nil
			}
			return relayed, err
		}
		txHash, err := rs.submitter.Submit(ctx, entry.Bundle)
		if errors.Is(err, web3.ErrReverted) {
			log.Warnw("bundle rejected by the pool", "id", entry.ID.String(), "txHash", txHash.Hex(), "error", err.Error())
			if err := rs.storage.MarkBundleFailed(entry.ID, txHash.Bytes(), err.Error()); err != nil {
				return relayed, fmt.Errorf("bundle %s reverted in %s: %w", entry.ID, txHash.Hex(), err)
			}
			continue
		}
		if err != nil {
			if rerr := rs.storage.ReleaseBundle(entry.ID); rerr != nil {
				log.Warnw("failed to release bundle", "id", entry.ID.String(), "error", rerr.Error())
			}
			return relayed, fmt.Errorf("bundle %s: %w", entry.ID, err)
		}
		if err := rs.storage.MarkBundleDone(entry.ID, txHash.Bytes()); err != nil {
			return relayed, fmt.Errorf("bundle %s relayed in %s: %w", entry.ID, txHash.Hex(), err)
		}
		relayed++
	}
	return relayed, ctx.Err()
}
