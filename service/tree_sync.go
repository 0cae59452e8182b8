package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/nullifiers"
	"github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/tree"
	"github.com/vocdoni/aegis/web3"
)

// ErrTreeDrift is returned when the leaf index announced by the contract
// does not match the size of the local tree.
var ErrTreeDrift = errors.New("local tree out of sync with the pool contract")

// TreeSync keeps the local commitment tree and spent nullifier set in sync
// with the events of the pool contract. A capacity or drift error halts the
// sync: the tree stays at the last consistent state until the operator
// intervenes.
type TreeSync struct {
	watcher  *web3.PoolWatcher
	tree     *tree.Tree
	spent    *nullifiers.SpentSet
	storage  *storage.Storage
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewTreeSync creates the sync service. The spent set and the storage are
// optional: without storage no checkpoint is saved and every restart
// begins at the watcher start block.
func NewTreeSync(watcher *web3.PoolWatcher, t *tree.Tree, spent *nullifiers.SpentSet,
	stg *storage.Storage, interval time.Duration,
) *TreeSync {
	return &TreeSync{
		watcher:  watcher,
		tree:     t,
		spent:    spent,
		storage:  stg,
		interval: interval,
	}
}

// Start begins polling the pool contract in the background. It returns an
// error if the service is already running.
func (ts *TreeSync) Start(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.cancel != nil {
		return fmt.Errorf("tree sync service already running")
	}
	ctx, ts.cancel = context.WithCancel(ctx)
	ts.done = make(chan struct{})
	ts.err = nil
	go ts.run(ctx, ts.done)
	log.Infow("tree sync started", "fromBlock", ts.watcher.NextBlock(), "interval", ts.interval.String())
	return nil
}

// Stop halts the service and waits for the current poll to finish.
func (ts *TreeSync) Stop() {
	ts.mu.Lock()
	cancel, done := ts.cancel, ts.done
	ts.cancel = nil
	ts.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Err returns the error that halted the sync, if any.
func (ts *TreeSync) Err() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.err
}

func (ts *TreeSync) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(ts.interval)
	defer ticker.Stop()
	for {
		if err := ts.SyncOnce(ctx); err != nil {
			if errors.Is(err, tree.ErrCapacityExceeded) || errors.Is(err, ErrTreeDrift) {
				log.Errorw(err, "tree sync halted")
				ts.mu.Lock()
				ts.err = err
				ts.mu.Unlock()
				return
			}
			if ctx.Err() == nil {
				log.Warnw("tree sync failed, retrying", "error", err.Error())
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// SyncOnce polls the next window of confirmed blocks and applies every
// batch in chain order. The checkpoint is saved once the whole window is
// applied.
func (ts *TreeSync) SyncOnce(ctx context.Context) error {
	for {
		from := ts.watcher.NextBlock()
		batches, err := ts.watcher.Poll(ctx)
		if err != nil {
			return err
		}
		for _, b := range batches {
			if err := ts.apply(b); err != nil {
				return fmt.Errorf("block %d tx %s: %w", b.Block, b.TxHash.Hex(), err)
			}
		}
		if ts.watcher.NextBlock() == from {
			// caught up with the confirmed head
			return nil
		}
		if ts.storage != nil {
			if err := ts.storage.SetSyncedBlock(ts.watcher.NextBlock()); err != nil {
				return err
			}
		}
	}
}

// apply records the nullifiers and inserts the commitments of a batch.
// Batches already in the tree, seen again after a restart, are skipped.
func (ts *TreeSync) apply(b *web3.Batch) error {
	if ts.spent != nil && len(b.Nullifiers) > 0 {
		if err := ts.spent.Add(b.Block, b.Nullifiers...); err != nil {
			if !errors.Is(err, nullifiers.ErrAlreadySpent) {
				return err
			}
			log.Warnw("nullifier already recorded", "block", b.Block, "txHash", b.TxHash.Hex(), "error", err.Error())
		}
	}
	if len(b.Commitments) == 0 {
		return nil
	}
	size := ts.tree.Size()
	end := b.LeafIndex + uint64(len(b.Commitments))
	switch {
	case end <= size:
		log.Debugw("commitments already in the tree", "leafIndex", b.LeafIndex, "count", len(b.Commitments))
		return nil
	case b.LeafIndex != size:
		return fmt.Errorf("%w: leaf index %d, tree size %d", ErrTreeDrift, b.LeafIndex, size)
	}
	root, err := ts.tree.InsertLeaves(b.Commitments)
	if err != nil {
		return err
	}
	log.Infow("commitments synced",
		"block", b.Block,
		"count", len(b.Commitments),
		"size", ts.tree.Size(),
		"root", root.String())
	return nil
}
