package web3

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/transaction"
	aegistypes "github.com/vocdoni/aegis/types"
)

// sendingBackend records the transactions sent and mines them at once.
// Only the methods used to sign and send with a fixed gas limit and to wait
// for the receipt are implemented.
type sendingBackend struct {
	bind.ContractBackend
	mu       sync.Mutex
	nonce    uint64
	sent     []*types.Transaction
	err      error
	reverted bool
	unmined  bool
}

func (s *sendingBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unmined {
		return nil, ethereum.NotFound
	}
	status := types.ReceiptStatusSuccessful
	if s.reverted {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{TxHash: hash, Status: status, BlockNumber: big.NewInt(101), GasUsed: 300000}, nil
}

func (s *sendingBackend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(1000)}, nil
}

func (s *sendingBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce, nil
}

func (s *sendingBackend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (s *sendingBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, tx)
	s.nonce++
	return nil
}

func testBundle(variant circuits.Variant, nullifiers, commitments int) *transaction.Bundle {
	b := &transaction.Bundle{
		Variant: variant,
		Proof: &transaction.Proof{
			A: [2]string{"1", "2"},
			B: [2][2]string{{"3", "4"}, {"5", "6"}},
			C: [2]string{"7", "8"},
		},
		Message:    aegistypes.NewInt(9),
		MerkleRoot: aegistypes.NewInt(10),
	}
	for i := 0; i < nullifiers; i++ {
		b.Nullifiers = append(b.Nullifiers, aegistypes.NewInt(int64(20+i)))
	}
	for i := 0; i < commitments; i++ {
		b.Commitments = append(b.Commitments, aegistypes.NewInt(int64(30+i)))
	}
	if variant.Optimized {
		b.Hash = aegistypes.NewInt(40)
	}
	return b
}

func TestBundleCall(t *testing.T) {
	c := qt.New(t)
	for _, tc := range []struct {
		variant circuits.Variant
		n       int
		method  string
	}{
		{circuits.Variant{Shape: circuits.JoinSplit}, 2, "transact"},
		{circuits.Variant{Shape: circuits.JoinSplit, Optimized: true}, 2, "transactOptimized"},
		{circuits.Variant{Shape: circuits.Ownership}, 1, "transfer"},
		{circuits.Variant{Shape: circuits.Ownership, Optimized: true}, 1, "transferOptimized"},
	} {
		c.Run(tc.variant.Name(), func(c *qt.C) {
			method, args, err := BundleCall(testBundle(tc.variant, tc.n, tc.n))
			c.Assert(err, qt.IsNil)
			c.Assert(method, qt.Equals, tc.method)

			data, err := poolABI.Pack(method, args...)
			c.Assert(err, qt.IsNil)
			m, err := poolABI.MethodById(data[:4])
			c.Assert(err, qt.IsNil)
			c.Assert(m.Name, qt.Equals, tc.method)
			values, err := m.Inputs.Unpack(data[4:])
			c.Assert(err, qt.IsNil)
			c.Assert(len(values), qt.Equals, len(m.Inputs))

			pb := values[1].([2][2]*big.Int)
			c.Assert(pb[0][0].String(), qt.Equals, "3")
			c.Assert(pb[1][1].String(), qt.Equals, "6")
			c.Assert(values[3].(*big.Int).String(), qt.Equals, "10")
			if tc.n == 1 {
				c.Assert(values[4].(*big.Int).String(), qt.Equals, "20")
				c.Assert(values[5].(*big.Int).String(), qt.Equals, "30")
			} else {
				nullifiers := values[4].([]*big.Int)
				c.Assert(nullifiers, qt.HasLen, 2)
				c.Assert(nullifiers[1].String(), qt.Equals, "21")
			}
			c.Assert(values[6].(*big.Int).String(), qt.Equals, "9")
			if tc.variant.Optimized {
				c.Assert(values[7].(*big.Int).String(), qt.Equals, "40")
			}
		})
	}
}

func TestBundleCallErrors(t *testing.T) {
	c := qt.New(t)
	_, _, err := BundleCall(nil)
	c.Assert(err, qt.ErrorIs, transaction.ErrMalformedProof)

	b := testBundle(circuits.Variant{Shape: circuits.JoinSplit}, 2, 2)
	b.Proof.B[1][0] = "0x12"
	_, _, err = BundleCall(b)
	c.Assert(err, qt.ErrorIs, transaction.ErrMalformedProof)

	b = testBundle(circuits.Variant{Shape: circuits.Ownership, Optimized: true}, 1, 1)
	b.Hash = nil
	_, _, err = BundleCall(b)
	c.Assert(err, qt.ErrorMatches, "optimized bundle without public inputs hash")
}

func TestRelayerSubmit(t *testing.T) {
	c := qt.New(t)
	key, err := crypto.GenerateKey()
	c.Assert(err, qt.IsNil)
	backend := &sendingBackend{nonce: 7}
	pool := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	relayer, err := NewRelayer(backend, 1337, pool, "0x"+hex.EncodeToString(crypto.FromECDSA(key)))
	c.Assert(err, qt.IsNil)
	c.Assert(relayer.AccountAddress(), qt.Equals, crypto.PubkeyToAddress(key.PublicKey))

	hash, err := relayer.Submit(context.Background(), testBundle(circuits.Variant{Shape: circuits.Ownership}, 1, 1))
	c.Assert(err, qt.IsNil)
	c.Assert(backend.sent, qt.HasLen, 1)
	tx := backend.sent[0]
	c.Assert(tx.Hash(), qt.Equals, hash)
	c.Assert(*tx.To(), qt.Equals, pool)
	c.Assert(tx.Nonce(), qt.Equals, uint64(7))
	c.Assert(tx.Gas(), qt.Equals, uint64(DefaultGasLimit))
	c.Assert(tx.GasTipCap().String(), qt.Equals, "2")

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), tx)
	c.Assert(err, qt.IsNil)
	c.Assert(sender, qt.Equals, relayer.AccountAddress())
	m, err := poolABI.MethodById(tx.Data()[:4])
	c.Assert(err, qt.IsNil)
	c.Assert(m.Name, qt.Equals, "transfer")

	relayer.SetGasLimit(500000)
	_, err = relayer.Submit(context.Background(), testBundle(circuits.Variant{Shape: circuits.JoinSplit}, 2, 2))
	c.Assert(err, qt.IsNil)
	c.Assert(backend.sent[1].Nonce(), qt.Equals, uint64(8))
	c.Assert(backend.sent[1].Gas(), qt.Equals, uint64(500000))

	backend.reverted = true
	hash, err = relayer.Submit(context.Background(), testBundle(circuits.Variant{Shape: circuits.JoinSplit}, 2, 2))
	c.Assert(err, qt.ErrorIs, ErrReverted)
	c.Assert(hash, qt.Equals, backend.sent[2].Hash())

	backend.reverted, backend.unmined = false, true
	relayer.SetReceiptTimeout(20 * time.Millisecond)
	hash, err = relayer.Submit(context.Background(), testBundle(circuits.Variant{Shape: circuits.JoinSplit}, 2, 2))
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)
	c.Assert(err, qt.Not(qt.ErrorIs), ErrReverted)
	c.Assert(hash, qt.Equals, backend.sent[3].Hash())

	backend.err = fmt.Errorf("nonce too low")
	_, err = relayer.Submit(context.Background(), testBundle(circuits.Variant{Shape: circuits.JoinSplit}, 2, 2))
	c.Assert(err, qt.ErrorMatches, ".*nonce too low")

	_, err = NewRelayer(backend, 1337, pool, "not a key")
	c.Assert(err, qt.ErrorMatches, "failed to parse private key.*")
}
