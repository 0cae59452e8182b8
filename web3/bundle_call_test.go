package web3

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/transaction"
	aegistypes "github.com/vocdoni/aegis/types"
)

var (
	testRecipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// unpackCall packs the call with the pool ABI and decodes it back.
func unpackCall(c *qt.C, method string, args []any) []any {
	data, err := poolABI.Pack(method, args...)
	c.Assert(err, qt.IsNil)
	m, err := poolABI.MethodById(data[:4])
	c.Assert(err, qt.IsNil)
	c.Assert(m.Name, qt.Equals, method)
	values, err := m.Inputs.Unpack(data[4:])
	c.Assert(err, qt.IsNil)
	c.Assert(values, qt.HasLen, len(m.Inputs))
	return values
}

func swapBundle(optimized bool) *transaction.Bundle {
	pay := testBundle(circuits.Variant{Shape: circuits.JoinSplit, Optimized: optimized}, 2, 2)
	transfer := testBundle(circuits.Variant{Shape: circuits.Ownership, Optimized: optimized}, 1, 1)
	transfer.Nullifiers[0] = aegistypes.NewInt(50)
	transfer.Message = aegistypes.NewInt(30)
	pay.Counterpart = transfer
	return pay
}

func TestBundleCallSwap(t *testing.T) {
	c := qt.New(t)
	for _, optimized := range []bool{false, true} {
		method, args, err := BundleCall(swapBundle(optimized))
		c.Assert(err, qt.IsNil)
		c.Assert(method, qt.Equals, methodName("swap", circuits.Variant{Optimized: optimized}))
		values := unpackCall(c, method, args)

		js := *abi.ConvertType(values[0], new(JoinSplitParams)).(*JoinSplitParams)
		own := *abi.ConvertType(values[1], new(OwnershipParams)).(*OwnershipParams)
		c.Assert(js.Nullifiers, qt.HasLen, 2)
		c.Assert(js.Commitments[0].String(), qt.Equals, "30")
		c.Assert(js.Message.String(), qt.Equals, "9")
		c.Assert(js.B[0][1].String(), qt.Equals, "4")
		c.Assert(own.Nullifier.String(), qt.Equals, "50")
		c.Assert(own.Message.String(), qt.Equals, "30")
		c.Assert(own.Root.String(), qt.Equals, "10")
		if optimized {
			c.Assert(js.Hash.String(), qt.Equals, "40")
			c.Assert(own.Hash.String(), qt.Equals, "40")
		} else {
			c.Assert(js.Hash.Sign(), qt.Equals, 0)
		}
	}

	// the legs may be stored in either order
	b := swapBundle(false)
	reversed := b.Counterpart
	b.Counterpart = nil
	reversed.Counterpart = b
	method, args, err := BundleCall(reversed)
	c.Assert(err, qt.IsNil)
	values := unpackCall(c, method, args)
	own := *abi.ConvertType(values[1], new(OwnershipParams)).(*OwnershipParams)
	c.Assert(own.Nullifier.String(), qt.Equals, "50")
}

func TestBundleCallSwapErrors(t *testing.T) {
	c := qt.New(t)

	b := swapBundle(false)
	b.Counterpart.Variant.Optimized = true
	b.Counterpart.Hash = aegistypes.NewInt(40)
	_, _, err := BundleCall(b)
	c.Assert(err, qt.ErrorMatches, "swap legs mix optimized and plain proofs")

	b = swapBundle(false)
	b.Counterpart = testBundle(circuits.Variant{Shape: circuits.JoinSplit}, 2, 2)
	_, _, err = BundleCall(b)
	c.Assert(err, qt.ErrorMatches, "swap needs a .*")

	b = swapBundle(false)
	b.Counterpart.Proof.A[0] = "x"
	_, _, err = BundleCall(b)
	c.Assert(err, qt.ErrorIs, transaction.ErrMalformedProof)
	c.Assert(err, qt.ErrorMatches, "transfer: .*")
}

func TestBundleCallWithdraw(t *testing.T) {
	c := qt.New(t)

	c.Run("funds", func(c *qt.C) {
		b := testBundle(circuits.Variant{Shape: circuits.JoinSplit}, 2, 2)
		b.Message = nil
		b.Withdrawal = &transaction.Withdrawal{Recipient: testRecipient, Amount: aegistypes.NewInt(25)}
		method, args, err := BundleCall(b)
		c.Assert(err, qt.IsNil)
		c.Assert(method, qt.Equals, "withdrawFunds")
		values := unpackCall(c, method, args)
		c.Assert(values[0].(*big.Int).String(), qt.Equals, "25")
		c.Assert(values[1].(common.Address), qt.Equals, testRecipient)
		params := *abi.ConvertType(values[2], new(JoinSplitParams)).(*JoinSplitParams)
		c.Assert(params.Message.Sign(), qt.Equals, 0)
		c.Assert(params.Commitments, qt.HasLen, 2)

		b.Withdrawal.Amount = nil
		_, _, err = BundleCall(b)
		c.Assert(err, qt.ErrorMatches, "funds withdrawal without amount")
	})

	c.Run("NFT", func(c *qt.C) {
		b := testBundle(circuits.Variant{Shape: circuits.Ownership, Optimized: true}, 1, 1)
		b.Withdrawal = &transaction.Withdrawal{
			Recipient: testRecipient,
			Token:     &testToken,
			TokenID:   aegistypes.NewInt(1337),
		}
		method, args, err := BundleCall(b)
		c.Assert(err, qt.IsNil)
		c.Assert(method, qt.Equals, "withdrawNFTOptimized")
		values := unpackCall(c, method, args)
		c.Assert(values[0].(*big.Int).String(), qt.Equals, "1337")
		c.Assert(values[1].(common.Address), qt.Equals, testToken)
		c.Assert(values[2].(common.Address), qt.Equals, testRecipient)
		params := *abi.ConvertType(values[3], new(OwnershipParams)).(*OwnershipParams)
		c.Assert(params.Commitment.String(), qt.Equals, "30")
		c.Assert(params.Hash.String(), qt.Equals, "40")

		b.Withdrawal.Token = nil
		_, _, err = BundleCall(b)
		c.Assert(err, qt.ErrorMatches, "NFT withdrawal without token")
	})
}
