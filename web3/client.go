// Package web3 follows the pool contract on an EVM chain and turns its
// events into the batches that keep the off-chain tree and the spent
// nullifier set in sync.
package web3

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vocdoni/aegis/log"
)

const (
	// DefaultMaxWeb3ClientRetries is the default number of retries to
	// connect to a web3 provider.
	DefaultMaxWeb3ClientRetries = 5
	// dialTimeout bounds every connection attempt.
	dialTimeout = 10 * time.Second
)

// ChainReader is the part of a web3 client needed to follow the pool
// contract. *ethclient.Client implements it.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Dial connects to the web3 provider at uri, retrying up to
// DefaultMaxWeb3ClientRetries times, and returns the client and the chain id
// of the network.
func Dial(ctx context.Context, uri string) (*ethclient.Client, uint64, error) {
	var lastErr error
	for i := 0; i < DefaultMaxWeb3ClientRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(time.Duration(i) * time.Second):
			}
		}
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		client, err := ethclient.DialContext(dialCtx, uri)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		chainID, err := client.ChainID(dialCtx)
		cancel()
		if err != nil {
			client.Close()
			lastErr = err
			log.Debugw("web3 provider not ready", "uri", uri, "attempt", i+1, "error", err.Error())
			continue
		}
		return client, chainID.Uint64(), nil
	}
	return nil, 0, fmt.Errorf("error dialing web3 provider uri '%s': %w", uri, lastErr)
}
