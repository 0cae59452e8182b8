package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/vocdoni/aegis/config"
	"github.com/vocdoni/aegis/log"
)

// PoolABI declares the events and the proof entry points of the pool
// contract. Every new note emits Commitment with its leaf index, every spent
// note emits Nullifier. Single note shapes use the transfer entry points,
// the others transact; the optimized variants also take the public inputs
// hash. swap takes both legs of an exchange, and the withdraw entry points
// pay out the first output instead of appending it; they take the proof as
// a tuple whose hash is ignored by the plain variants.
const PoolABI = `[
	{"type":"event","name":"Commitment","anonymous":false,"inputs":[
		{"name":"commitment","type":"uint256","indexed":false},
		{"name":"leafIndex","type":"uint256","indexed":false}]},
	{"type":"event","name":"Nullifier","anonymous":false,"inputs":[
		{"name":"nullifier","type":"uint256","indexed":false}]},
	{"type":"function","name":"transact","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
		{"name":"root","type":"uint256"},{"name":"nullifiers","type":"uint256[]"},
		{"name":"commitments","type":"uint256[]"},{"name":"message","type":"uint256"}]},
	{"type":"function","name":"transactOptimized","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
		{"name":"root","type":"uint256"},{"name":"nullifiers","type":"uint256[]"},
		{"name":"commitments","type":"uint256[]"},{"name":"message","type":"uint256"},
		{"name":"hash","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
		{"name":"root","type":"uint256"},{"name":"nullifier","type":"uint256"},
		{"name":"commitment","type":"uint256"},{"name":"message","type":"uint256"}]},
	{"type":"function","name":"transferOptimized","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
		{"name":"root","type":"uint256"},{"name":"nullifier","type":"uint256"},
		{"name":"commitment","type":"uint256"},{"name":"message","type":"uint256"},
		{"name":"hash","type":"uint256"}]},
	{"type":"function","name":"swap","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"jsParams","type":"tuple","components":[
			{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
			{"name":"root","type":"uint256"},{"name":"nullifiers","type":"uint256[]"},
			{"name":"commitments","type":"uint256[]"},{"name":"message","type":"uint256"},
			{"name":"hash","type":"uint256"}]},
		{"name":"ownParams","type":"tuple","components":[
			{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
			{"name":"root","type":"uint256"},{"name":"nullifier","type":"uint256"},
			{"name":"commitment","type":"uint256"},{"name":"message","type":"uint256"},
			{"name":"hash","type":"uint256"}]}]},
	{"type":"function","name":"swapOptimized","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"jsParams","type":"tuple","components":[
			{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
			{"name":"root","type":"uint256"},{"name":"nullifiers","type":"uint256[]"},
			{"name":"commitments","type":"uint256[]"},{"name":"message","type":"uint256"},
			{"name":"hash","type":"uint256"}]},
		{"name":"ownParams","type":"tuple","components":[
			{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
			{"name":"root","type":"uint256"},{"name":"nullifier","type":"uint256"},
			{"name":"commitment","type":"uint256"},{"name":"message","type":"uint256"},
			{"name":"hash","type":"uint256"}]}]},
	{"type":"function","name":"withdrawFunds","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"},
		{"name":"params","type":"tuple","components":[
			{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
			{"name":"root","type":"uint256"},{"name":"nullifiers","type":"uint256[]"},
			{"name":"commitments","type":"uint256[]"},{"name":"message","type":"uint256"},
			{"name":"hash","type":"uint256"}]}]},
	{"type":"function","name":"withdrawFundsOptimized","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"},
		{"name":"params","type":"tuple","components":[
			{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
			{"name":"root","type":"uint256"},{"name":"nullifiers","type":"uint256[]"},
			{"name":"commitments","type":"uint256[]"},{"name":"message","type":"uint256"},
			{"name":"hash","type":"uint256"}]}]},
	{"type":"function","name":"withdrawNFT","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"tokenId","type":"uint256"},{"name":"token","type":"address"},{"name":"recipient","type":"address"},
		{"name":"params","type":"tuple","components":[
			{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
			{"name":"root","type":"uint256"},{"name":"nullifier","type":"uint256"},
			{"name":"commitment","type":"uint256"},{"name":"message","type":"uint256"},
			{"name":"hash","type":"uint256"}]}]},
	{"type":"function","name":"withdrawNFTOptimized","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"tokenId","type":"uint256"},{"name":"token","type":"address"},{"name":"recipient","type":"address"},
		{"name":"params","type":"tuple","components":[
			{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},{"name":"c","type":"uint256[2]"},
			{"name":"root","type":"uint256"},{"name":"nullifier","type":"uint256"},
			{"name":"commitment","type":"uint256"},{"name":"message","type":"uint256"},
			{"name":"hash","type":"uint256"}]}]}
]`

var (
	poolABI         abi.ABI
	commitmentTopic common.Hash
	nullifierTopic  common.Hash
)

func init() {
	var err error
	if poolABI, err = abi.JSON(strings.NewReader(PoolABI)); err != nil {
		panic(fmt.Sprintf("invalid pool abi: %v", err))
	}
	commitmentTopic = poolABI.Events["Commitment"].ID
	nullifierTopic = poolABI.Events["Nullifier"].ID
}

// ErrMalformedEvent is returned when a pool log cannot be decoded.
var ErrMalformedEvent = errors.New("malformed pool event")

// Batch holds the events of a single transaction, in log order. Each batch
// is applied to the tree as one insertion. LeafIndex is the position of the
// first commitment of the batch.
type Batch struct {
	Block       uint64
	TxHash      common.Hash
	Commitments []*big.Int
	LeafIndex   uint64
	Nullifiers  []*big.Int
}

// PoolWatcher scans the pool contract logs in block windows, behind a
// confirmation depth so reorged blocks are rarely seen.
type PoolWatcher struct {
	client        ChainReader
	address       common.Address
	confirmations uint64
	blockRange    uint64
	next          uint64
}

// NewPoolWatcher returns a watcher of the pool at address that starts
// scanning at startBlock.
func NewPoolWatcher(client ChainReader, address common.Address, startBlock uint64) *PoolWatcher {
	return &PoolWatcher{
		client:        client,
		address:       address,
		confirmations: config.DefaultConfirmations,
		blockRange:    config.DefaultSyncBlockRange,
		next:          startBlock,
	}
}

// SetConfirmations sets how many blocks behind the head the watcher stays.
func (w *PoolWatcher) SetConfirmations(n uint64) {
	w.confirmations = n
}

// SetBlockRange sets the maximum number of blocks requested at once.
func (w *PoolWatcher) SetBlockRange(n uint64) {
	if n > 0 {
		w.blockRange = n
	}
}

// NextBlock returns the next block to scan.
func (w *PoolWatcher) NextBlock() uint64 {
	return w.next
}

// Poll scans the next window of confirmed blocks and returns its batches
// in chain order. It returns no batches when there are no new confirmed
// blocks. The cursor only moves when the whole window is decoded.
func (w *PoolWatcher) Poll(ctx context.Context) ([]*Batch, error) {
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot get block number: %w", err)
	}
	if head < w.confirmations {
		return nil, nil
	}
	safe := head - w.confirmations
	if w.next > safe {
		return nil, nil
	}
	to := safe
	if w.next+w.blockRange-1 < to {
		to = w.next + w.blockRange - 1
	}
	logs, err := w.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(w.next),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{w.address},
		Topics:    [][]common.Hash{{commitmentTopic, nullifierTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot filter logs from %d to %d: %w", w.next, to, err)
	}
	batches, err := GroupLogs(logs)
	if err != nil {
		return nil, err
	}
	log.Debugw("pool logs scanned", "from", w.next, "to", to, "logs", len(logs), "batches", len(batches))
	w.next = to + 1
	return batches, nil
}

// GroupLogs decodes the pool logs and groups them per transaction, ordered
// by block, transaction index and log index. Removed logs are skipped.
func GroupLogs(logs []types.Log) ([]*Batch, error) {
	sorted := make([]types.Log, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		sorted = append(sorted, l)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.Index < b.Index
	})

	var batches []*Batch
	var current *Batch
	for _, l := range sorted {
		if current == nil || current.TxHash != l.TxHash || current.Block != l.BlockNumber {
			current = &Batch{Block: l.BlockNumber, TxHash: l.TxHash}
			batches = append(batches, current)
		}
		if len(l.Topics) == 0 {
			return nil, fmt.Errorf("%w: log %d of tx %s has no topics", ErrMalformedEvent, l.Index, l.TxHash.Hex())
		}
		switch l.Topics[0] {
		case commitmentTopic:
			commitment, leafIndex, err := decodeCommitment(l)
			if err != nil {
				return nil, err
			}
			if len(current.Commitments) == 0 {
				current.LeafIndex = leafIndex
			} else if leafIndex != current.LeafIndex+uint64(len(current.Commitments)) {
				return nil, fmt.Errorf("%w: non consecutive leaf index %d in tx %s",
					ErrMalformedEvent, leafIndex, l.TxHash.Hex())
			}
			current.Commitments = append(current.Commitments, commitment)
		case nullifierTopic:
			nullifier, err := decodeNullifier(l)
			if err != nil {
				return nil, err
			}
			current.Nullifiers = append(current.Nullifiers, nullifier)
		default:
			log.Debugw("ignoring unknown pool log", "topic", l.Topics[0].Hex(), "tx", l.TxHash.Hex())
		}
	}
	return batches, nil
}

func decodeCommitment(l types.Log) (*big.Int, uint64, error) {
	values, err := poolABI.Unpack("Commitment", l.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: commitment log %d of tx %s: %v", ErrMalformedEvent, l.Index, l.TxHash.Hex(), err)
	}
	if len(values) != 2 {
		return nil, 0, fmt.Errorf("%w: commitment log %d of tx %s", ErrMalformedEvent, l.Index, l.TxHash.Hex())
	}
	commitment, ok1 := values[0].(*big.Int)
	leafIndex, ok2 := values[1].(*big.Int)
	if !ok1 || !ok2 || !leafIndex.IsUint64() {
		return nil, 0, fmt.Errorf("%w: commitment log %d of tx %s", ErrMalformedEvent, l.Index, l.TxHash.Hex())
	}
	return commitment, leafIndex.Uint64(), nil
}

func decodeNullifier(l types.Log) (*big.Int, error) {
	values, err := poolABI.Unpack("Nullifier", l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: nullifier log %d of tx %s: %v", ErrMalformedEvent, l.Index, l.TxHash.Hex(), err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: nullifier log %d of tx %s", ErrMalformedEvent, l.Index, l.TxHash.Hex())
	}
	nullifier, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: nullifier log %d of tx %s", ErrMalformedEvent, l.Index, l.TxHash.Hex())
	}
	return nullifier, nil
}

// CommitmentLog returns the log the pool emits for a new commitment.
func CommitmentLog(commitment *big.Int, leafIndex uint64) (types.Log, error) {
	data, err := poolABI.Events["Commitment"].Inputs.Pack(commitment, new(big.Int).SetUint64(leafIndex))
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{Topics: []common.Hash{commitmentTopic}, Data: data}, nil
}

// NullifierLog returns the log the pool emits for a spent note.
func NullifierLog(nullifier *big.Int) (types.Log, error) {
	data, err := poolABI.Events["Nullifier"].Inputs.Pack(nullifier)
	if err != nil {
		return types.Log{}, err
	}
	return types.Log{Topics: []common.Hash{nullifierTopic}, Data: data}, nil
}
