package web3

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// MockChain is an in-memory ChainReader holding the logs of a pool
// contract, for testing.
type MockChain struct {
	mu      sync.Mutex
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
	nonce   uint64
}

// NewMockChain returns an empty chain at block 0.
func NewMockChain() *MockChain {
	return &MockChain{}
}

// BlockNumber returns the current head.
func (m *MockChain) BlockNumber(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head, nil
}

// FilterLogs returns the logs in the block range of the query. Only the
// block range and the addresses are filtered.
func (m *MockChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	var out []types.Log
	for _, l := range m.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && q.Addresses[0] != l.Address {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// Queries returns the filter queries received so far.
func (m *MockChain) Queries() []ethereum.FilterQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ethereum.FilterQuery{}, m.queries...)
}

// SetHead sets the current head of the chain.
func (m *MockChain) SetHead(head uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = head
}

// AddTx appends the logs of a pool transaction at block. Commitments get
// consecutive leaf indexes starting at leafIndex. The head moves to block if
// it is behind. It returns the transaction hash.
func (m *MockChain) AddTx(pool common.Address, block, leafIndex uint64, commitments, nullifiers []*big.Int) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonce++
	txHash := common.BytesToHash(crypto.Keccak256(new(big.Int).SetUint64(m.nonce).Bytes()))
	var txIndex uint
	for _, l := range m.logs {
		if l.BlockNumber == block && l.TxIndex >= txIndex {
			txIndex = l.TxIndex + 1
		}
	}
	var logs []types.Log
	for _, nf := range nullifiers {
		l, err := NullifierLog(nf)
		if err != nil {
			return common.Hash{}, err
		}
		logs = append(logs, l)
	}
	for i, cm := range commitments {
		l, err := CommitmentLog(cm, leafIndex+uint64(i))
		if err != nil {
			return common.Hash{}, err
		}
		logs = append(logs, l)
	}
	for i := range logs {
		logs[i].Address = pool
		logs[i].BlockNumber = block
		logs[i].TxHash = txHash
		logs[i].TxIndex = txIndex
		logs[i].Index = uint(i)
	}
	m.logs = append(m.logs, logs...)
	if block > m.head {
		m.head = block
	}
	return txHash, nil
}

// Reorg marks every log of the transaction as removed.
func (m *MockChain) Reorg(txHash common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.logs {
		if m.logs[i].TxHash == txHash {
			m.logs[i].Removed = true
		}
	}
}
