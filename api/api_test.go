package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/circuits/vkey"
	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/crypto/note"
	"github.com/vocdoni/aegis/nullifiers"
	"github.com/vocdoni/aegis/prover"
	"github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/tree"
	"github.com/vocdoni/aegis/types"
	"github.com/vocdoni/arbo/memdb"
)

const testDepth = 8

var (
	joinSplit = circuits.Variant{Shape: circuits.JoinSplit}
	ownership = circuits.Variant{Shape: circuits.Ownership}
)

type testAPI struct {
	api     *API
	tree    *tree.Tree
	builder *transaction.Builder
	backend *prover.MockBackend
	spent   *nullifiers.SpentSet
	keys    *vkey.Keys
}

func newTestAPI(c *qt.C, writable bool) *testAPI {
	t, err := tree.New(testDepth)
	c.Assert(err, qt.IsNil)
	spent, err := nullifiers.New(memdb.New())
	c.Assert(err, qt.IsNil)
	backend := prover.NewMockBackend()
	builder := transaction.NewBuilder(backend).SetSpentChecker(spent)
	keys := vkey.NewKeys()
	a, err := newAPI(&APIConfig{
		Storage:      storage.New(memdb.New()),
		Tree:         t,
		Builder:      builder,
		Keys:         keys,
		Spent:        spent,
		WritableTree: writable,
	})
	c.Assert(err, qt.IsNil)
	return &testAPI{api: a, tree: t, builder: builder, backend: backend, spent: spent, keys: keys}
}

// request performs a request against the router and decodes the JSON
// response into out when the status is 200.
func (ta *testAPI) request(c *qt.C, method, path string, body, out any) int {
	var buf bytes.Buffer
	if body != nil {
		c.Assert(json.NewEncoder(&buf).Encode(body), qt.IsNil)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ta.api.Router().ServeHTTP(rec, req)
	if rec.Code == http.StatusOK && out != nil {
		c.Assert(json.Unmarshal(rec.Body.Bytes(), out), qt.IsNil, qt.Commentf("body: %s", rec.Body))
	}
	return rec.Code
}

// requestError performs a request expected to fail and returns the API
// error code.
func (ta *testAPI) requestError(c *qt.C, method, path string, body any, status int) int {
	var buf bytes.Buffer
	if body != nil {
		c.Assert(json.NewEncoder(&buf).Encode(body), qt.IsNil)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ta.api.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, status, qt.Commentf("body: %s", rec.Body))
	res := struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &res), qt.IsNil)
	return res.Code
}

func mustKeys(c *qt.C, sk int64) *note.KeyPair {
	keys, err := note.KeyPairFromPrivate(big.NewInt(sk))
	c.Assert(err, qt.IsNil)
	return keys
}

// deposit inserts the commitment of a note in the tree through the API.
func (ta *testAPI) deposit(c *qt.C, shape circuits.Shape, value int64, keys *note.KeyPair) *big.Int {
	return ta.depositValue(c, shape, big.NewInt(value), keys)
}

func (ta *testAPI) depositValue(c *qt.C, shape circuits.Shape, value *big.Int, keys *note.KeyPair) *big.Int {
	commitment, err := ta.builder.Deposit(shape, value, keys.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(ta.request(c, http.MethodPost, TreeLeavesEndpoint,
		&TreeLeaves{Leaves: []*types.BigInt{types.NewBigInt(commitment)}}, nil), qt.Equals, http.StatusOK)
	return commitment
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, false)
	c.Assert(ta.request(c, http.MethodGet, PingEndpoint, nil, nil), qt.Equals, http.StatusOK)
}

func TestNewAPIMissingConfig(t *testing.T) {
	c := qt.New(t)
	_, err := newAPI(nil)
	c.Assert(err, qt.ErrorMatches, "missing API configuration")
	_, err = newAPI(&APIConfig{Storage: storage.New(memdb.New())})
	c.Assert(err, qt.ErrorMatches, "missing tree instance")
}

func TestTree(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, true)

	info := &TreeInfo{}
	c.Assert(ta.request(c, http.MethodGet, TreeEndpoint, nil, info), qt.Equals, http.StatusOK)
	emptyRoot, err := tree.EmptyRoot(testDepth)
	c.Assert(err, qt.IsNil)
	c.Assert(info.Depth, qt.Equals, testDepth)
	c.Assert(info.Size, qt.Equals, uint64(0))
	c.Assert(info.Capacity, qt.Equals, uint64(1)<<testDepth)
	c.Assert(info.Root.String(), qt.Equals, emptyRoot.String())

	leaves := &TreeLeaves{Leaves: []*types.BigInt{types.NewInt(11), types.NewInt(22), types.NewInt(33)}}
	c.Assert(ta.request(c, http.MethodPost, TreeLeavesEndpoint, leaves, info), qt.Equals, http.StatusOK)
	c.Assert(info.Size, qt.Equals, uint64(3))
	c.Assert(info.Root.String(), qt.Equals, ta.tree.Root().String())

	proof := &TreeProof{}
	c.Assert(ta.request(c, http.MethodGet, "/tree/proof/22", nil, proof), qt.Equals, http.StatusOK)
	c.Assert(proof.PathIndices, qt.Equals, uint64(1))
	c.Assert(proof.PathElements, qt.HasLen, testDepth)
	c.Assert(proof.Root.String(), qt.Equals, info.Root.String())
	path := &tree.Path{Indices: proof.PathIndices, Elements: types.MathBigInts(proof.PathElements)}
	c.Assert(path.Verify(big.NewInt(22), info.Root.MathBigInt()), qt.IsTrue)

	// hexadecimal commitments are accepted too
	c.Assert(ta.request(c, http.MethodGet, "/tree/proof/0x21", nil, proof), qt.Equals, http.StatusOK)
	c.Assert(proof.PathIndices, qt.Equals, uint64(2))

	c.Assert(ta.requestError(c, http.MethodGet, "/tree/proof/44", nil, http.StatusNotFound),
		qt.Equals, ErrLeafNotFound.Code)
	c.Assert(ta.requestError(c, http.MethodGet, "/tree/proof/notanumber", nil, http.StatusBadRequest),
		qt.Equals, ErrMalformedFieldElement.Code)
	c.Assert(ta.requestError(c, http.MethodGet, "/tree/proof/"+field.Modulus.String(), nil, http.StatusBadRequest),
		qt.Equals, ErrMalformedFieldElement.Code)
}

func TestTreeLeavesErrors(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, true)

	c.Assert(ta.requestError(c, http.MethodPost, TreeLeavesEndpoint, &TreeLeaves{}, http.StatusBadRequest),
		qt.Equals, ErrMalformedBody.Code)
	c.Assert(ta.requestError(c, http.MethodPost, TreeLeavesEndpoint, map[string]any{"foo": 1}, http.StatusBadRequest),
		qt.Equals, ErrMalformedBody.Code)
	outOfField := &TreeLeaves{Leaves: []*types.BigInt{types.NewInt(1), types.NewBigInt(field.Modulus)}}
	c.Assert(ta.requestError(c, http.MethodPost, TreeLeavesEndpoint, outOfField, http.StatusBadRequest),
		qt.Equals, ErrMalformedFieldElement.Code)
	c.Assert(ta.tree.Size(), qt.Equals, uint64(0))

	full := &TreeLeaves{}
	for i := 0; i <= 1<<testDepth; i++ {
		full.Leaves = append(full.Leaves, types.NewInt(int64(i+1)))
	}
	c.Assert(ta.requestError(c, http.MethodPost, TreeLeavesEndpoint, full, http.StatusConflict),
		qt.Equals, ErrTreeFull.Code)
	c.Assert(ta.tree.Size(), qt.Equals, uint64(0))

	readOnly := newTestAPI(c, false)
	c.Assert(readOnly.requestError(c, http.MethodPost, TreeLeavesEndpoint,
		&TreeLeaves{Leaves: []*types.BigInt{types.NewInt(1)}}, http.StatusForbidden),
		qt.Equals, ErrTreeReadOnly.Code)
}

func TestTransactionOwnership(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, true)
	alice, bob := mustKeys(c, 1001), mustKeys(c, 2002)
	commitment := ta.deposit(c, circuits.Ownership, 7, alice)

	tx := &Transaction{
		Variant: ownership,
		Message: types.NewInt(99),
		Inputs:  []*NoteInput{{Value: types.NewInt(7), PrivateKey: types.NewBigInt(alice.PrivateKey)}},
		Outputs: []*NoteOutput{{Value: types.NewInt(7), PublicKey: types.NewBigInt(bob.PublicKey)}},
	}
	res := &TransactionResponse{}
	c.Assert(ta.request(c, http.MethodPost, TransactionsEndpoint, tx, res), qt.Equals, http.StatusOK)
	c.Assert(res.Status, qt.Equals, storage.BundlePending)
	c.Assert(res.Bundle.Variant, qt.Equals, ownership)
	c.Assert(res.Bundle.Message.String(), qt.Equals, "99")
	c.Assert(res.Bundle.MerkleRoot.String(), qt.Equals, ta.tree.Root().String())
	c.Assert(res.Bundle.Nullifiers, qt.HasLen, 1)
	c.Assert(res.Bundle.Commitments, qt.HasLen, 1)

	nullifier, err := note.Nullify(alice.PrivateKey, big.NewInt(0))
	c.Assert(err, qt.IsNil)
	c.Assert(res.Bundle.Nullifiers[0].String(), qt.Equals, nullifier.String())
	expected, err := ta.builder.Deposit(circuits.Ownership, big.NewInt(7), bob.PublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Bundle.Commitments[0].String(), qt.Equals, expected.String())
	c.Assert(expected.String(), qt.Not(qt.Equals), commitment.String())
	// pi_b is swapped for the verifier
	c.Assert(res.Bundle.Proof.B[0], qt.Equals, [2]string{"4", "3"})

	queued := &TransactionResponse{}
	c.Assert(ta.request(c, http.MethodGet, "/transactions/"+res.ID.String(), nil, queued), qt.Equals, http.StatusOK)
	c.Assert(queued.ID, qt.Equals, res.ID)
	c.Assert(queued.Status, qt.Equals, storage.BundlePending)
	c.Assert(queued.Bundle.Nullifiers[0].String(), qt.Equals, nullifier.String())

	// the single note layout is used on the wire
	rec := httptest.NewRecorder()
	ta.api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions/"+res.ID.String(), nil))
	c.Assert(rec.Body.String(), qt.Contains, `"nullifier":"`+nullifier.String()+`"`)
	c.Assert(rec.Body.String(), qt.Not(qt.Contains), `"nullifiers"`)
}

func TestTransactionWithdraw(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, true)
	alice := mustKeys(c, 1001)
	ta.deposit(c, circuits.JoinSplit, 10, alice)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	tx := &Transaction{
		Variant:       joinSplit,
		Inputs:        []*NoteInput{{Value: types.NewInt(10), PrivateKey: types.NewBigInt(alice.PrivateKey)}},
		Outputs:       []*NoteOutput{{Value: types.NewInt(6), PublicKey: types.NewBigInt(alice.PublicKey)}},
		Recipient:     &recipient,
		WithdrawValue: types.NewInt(4),
	}
	res := &TransactionResponse{}
	c.Assert(ta.request(c, http.MethodPost, TransactionsEndpoint, tx, res), qt.Equals, http.StatusOK)
	c.Assert(res.Bundle.Message.String(), qt.Equals, "0")
	c.Assert(res.Bundle.Withdrawal, qt.IsNotNil)
	c.Assert(res.Bundle.Withdrawal.Recipient, qt.Equals, recipient)
	c.Assert(res.Bundle.Withdrawal.Amount.String(), qt.Equals, "4")
	c.Assert(res.Bundle.Nullifiers, qt.HasLen, 2)
	c.Assert(res.Bundle.Commitments, qt.HasLen, 2)

	// the missing input was padded with a dummy note
	c.Assert(ta.backend.Inputs, qt.HasLen, 1)
	in := ta.backend.Inputs[0]
	c.Assert(in.ValuesIn[1].String(), qt.Equals, "0")
	c.Assert(in.PathIndices[1].String(), qt.Equals, "0")
	c.Assert(in.RecipientPK[0].String(), qt.Equals, field.AddressToField(recipient).String())
	c.Assert(in.ValuesOut[0].String(), qt.Equals, "4")
	c.Assert(in.ValuesOut[1].String(), qt.Equals, "6")
}

func TestTransactionWithdrawNFT(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, true)
	alice := mustKeys(c, 1001)
	token := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	nft, err := field.AssetID(big.NewInt(5), token)
	c.Assert(err, qt.IsNil)
	ta.depositValue(c, circuits.Ownership, nft, alice)

	tx := &Transaction{
		Variant:   ownership,
		Inputs:    []*NoteInput{{Value: types.NewBigInt(nft), PrivateKey: types.NewBigInt(alice.PrivateKey)}},
		Recipient: &recipient,
		Token:     &token,
		TokenID:   types.NewInt(5),
	}
	res := &TransactionResponse{}
	c.Assert(ta.request(c, http.MethodPost, TransactionsEndpoint, tx, res), qt.Equals, http.StatusOK)
	c.Assert(res.Bundle.Message.String(), qt.Equals, "0")
	c.Assert(*res.Bundle.Withdrawal.Token, qt.Equals, token)
	c.Assert(res.Bundle.Withdrawal.TokenID.String(), qt.Equals, "5")
	c.Assert(ta.backend.Inputs[0].RecipientPK[0].String(), qt.Equals, field.AddressToField(recipient).String())

	tx.TokenID = types.NewInt(6)
	c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, tx, http.StatusBadRequest),
		qt.Equals, ErrInvalidWithdrawal.Code)
	tx.TokenID = nil
	c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, tx, http.StatusBadRequest),
		qt.Equals, ErrInvalidWithdrawal.Code)
}

func TestSwap(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, true)
	buyer, seller := mustKeys(c, 1001), mustKeys(c, 2002)
	nft, err := field.AssetID(big.NewInt(1), common.HexToAddress("0x00000000000000000000000000000000000000bb"))
	c.Assert(err, qt.IsNil)
	ta.deposit(c, circuits.JoinSplit, 30, buyer)
	ta.depositValue(c, circuits.Ownership, nft, seller)

	swap := &Swap{
		Payment: &Transaction{
			Variant: joinSplit,
			Inputs:  []*NoteInput{{Value: types.NewInt(30), PrivateKey: types.NewBigInt(buyer.PrivateKey)}},
			Outputs: []*NoteOutput{
				{Value: types.NewInt(25), PublicKey: types.NewBigInt(seller.PublicKey)},
				{Value: types.NewInt(5), PublicKey: types.NewBigInt(buyer.PublicKey)},
			},
		},
		Transfer: &Transaction{
			Variant: ownership,
			Inputs:  []*NoteInput{{Value: types.NewBigInt(nft), PrivateKey: types.NewBigInt(seller.PrivateKey)}},
			Outputs: []*NoteOutput{{Value: types.NewBigInt(nft), PublicKey: types.NewBigInt(buyer.PublicKey)}},
		},
	}
	res := &TransactionResponse{}
	c.Assert(ta.request(c, http.MethodPost, SwapEndpoint, swap, res), qt.Equals, http.StatusOK)
	c.Assert(res.Bundle.Variant, qt.Equals, joinSplit)
	c.Assert(res.Bundle.Counterpart, qt.IsNotNil)
	c.Assert(res.Bundle.Counterpart.Variant, qt.Equals, ownership)
	c.Assert(res.Bundle.Message.String(), qt.Equals, res.Bundle.Counterpart.Commitments[0].String())
	c.Assert(res.Bundle.Counterpart.Message.String(), qt.Equals, res.Bundle.Commitments[0].String())
	c.Assert(ta.backend.Inputs, qt.HasLen, 2)

	queued := &TransactionResponse{}
	c.Assert(ta.request(c, http.MethodGet, "/transactions/"+res.ID.String(), nil, queued), qt.Equals, http.StatusOK)
	c.Assert(queued.Bundle.Counterpart, qt.IsNotNil)
	c.Assert(queued.Bundle.Counterpart.Nullifiers[0].String(), qt.Equals, res.Bundle.Counterpart.Nullifiers[0].String())

	c.Assert(ta.requestError(c, http.MethodPost, SwapEndpoint, &Swap{Payment: swap.Payment}, http.StatusBadRequest),
		qt.Equals, ErrInvalidSwap.Code)
	reversed := &Swap{Payment: swap.Transfer, Transfer: swap.Payment}
	c.Assert(ta.requestError(c, http.MethodPost, SwapEndpoint, reversed, http.StatusBadRequest),
		qt.Equals, ErrInvalidSwap.Code)
}

func TestTransactionErrors(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, true)
	alice, bob := mustKeys(c, 1001), mustKeys(c, 2002)
	ta.deposit(c, circuits.Ownership, 7, alice)

	transfer := func(value, outValue int64, keys *note.KeyPair) *Transaction {
		return &Transaction{
			Variant: ownership,
			Inputs:  []*NoteInput{{Value: types.NewInt(value), PrivateKey: types.NewBigInt(keys.PrivateKey)}},
			Outputs: []*NoteOutput{{Value: types.NewInt(outValue), PublicKey: types.NewBigInt(bob.PublicKey)}},
		}
	}

	c.Run("unbalanced", func(c *qt.C) {
		c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, transfer(7, 8, alice), http.StatusBadRequest),
			qt.Equals, ErrUnbalancedTransaction.Code)
	})
	c.Run("input not found", func(c *qt.C) {
		c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, transfer(7, 7, bob), http.StatusNotFound),
			qt.Equals, ErrInputNotFound.Code)
	})
	c.Run("value out of range", func(c *qt.C) {
		tx := &Transaction{
			Variant: joinSplit,
			Inputs:  []*NoteInput{{Value: types.NewBigInt(note.DefaultMaxValue), PrivateKey: types.NewBigInt(alice.PrivateKey)}},
			Outputs: []*NoteOutput{
				{Value: types.NewBigInt(note.DefaultMaxValue), PublicKey: types.NewBigInt(bob.PublicKey)},
				{Value: types.NewInt(0), PublicKey: types.NewBigInt(bob.PublicKey)},
			},
		}
		c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, tx, http.StatusBadRequest),
			qt.Equals, ErrValueOutOfRange.Code)
	})
	c.Run("too many inputs", func(c *qt.C) {
		tx := transfer(7, 7, alice)
		tx.Inputs = append(tx.Inputs, tx.Inputs[0])
		c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, tx, http.StatusBadRequest),
			qt.Equals, ErrInvalidTransaction.Code)
	})
	c.Run("unknown variant", func(c *qt.C) {
		body := map[string]any{"variant": "Mixer", "inputs": []any{}}
		c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, body, http.StatusBadRequest),
			qt.Equals, ErrMalformedBody.Code)
	})
	c.Run("proving failure", func(c *qt.C) {
		ta.backend.Err = fmt.Errorf("witness calculation failed")
		defer func() { ta.backend.Err = nil }()
		c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, transfer(7, 7, alice),
			http.StatusInternalServerError), qt.Equals, ErrProvingFailed.Code)
	})
	c.Run("spent", func(c *qt.C) {
		nullifier, err := note.Nullify(alice.PrivateKey, big.NewInt(0))
		c.Assert(err, qt.IsNil)
		c.Assert(ta.spent.Add(5, nullifier), qt.IsNil)
		calls := ta.backend.Calls()
		c.Assert(ta.requestError(c, http.MethodPost, TransactionsEndpoint, transfer(7, 7, alice), http.StatusConflict),
			qt.Equals, ErrNullifierSpent.Code)
		c.Assert(ta.backend.Calls(), qt.Equals, calls)
	})
	c.Run("transaction not found", func(c *qt.C) {
		c.Assert(ta.requestError(c, http.MethodGet, "/transactions/0190d0a2-6f8e-7c3a-9b1e-2f4a5b6c7d8e", nil,
			http.StatusNotFound), qt.Equals, ErrTransactionNotFound.Code)
		c.Assert(ta.requestError(c, http.MethodGet, "/transactions/nope", nil, http.StatusBadRequest),
			qt.Equals, ErrMalformedTransactionID.Code)
	})
}

func TestVerificationKey(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, false)
	vk := &vkey.VerificationKey{
		Alpha1: vkey.G1Point{X: "1", Y: "2"},
		Beta2:  vkey.G2Point{X: [2]string{"3", "4"}, Y: [2]string{"5", "6"}},
		Gamma2: vkey.G2Point{X: [2]string{"7", "8"}, Y: [2]string{"9", "10"}},
		Delta2: vkey.G2Point{X: [2]string{"11", "12"}, Y: [2]string{"13", "14"}},
		IC:     []vkey.G1Point{{X: "15", Y: "16"}, {X: "17", Y: "18"}},
	}
	ta.keys.Set(ownership, vk)

	got := &vkey.VerificationKey{}
	c.Assert(ta.request(c, http.MethodGet, "/vkeys/Ownership", nil, got), qt.Equals, http.StatusOK)
	c.Assert(got, qt.DeepEquals, vk)
	c.Assert(ta.request(c, http.MethodGet, "/vkeys/ownership", nil, got), qt.Equals, http.StatusOK)

	c.Assert(ta.requestError(c, http.MethodGet, "/vkeys/JoinSplitOptimized", nil, http.StatusNotFound),
		qt.Equals, ErrVKeyNotFound.Code)
	c.Assert(ta.requestError(c, http.MethodGet, "/vkeys/Mixer", nil, http.StatusBadRequest),
		qt.Equals, ErrUnknownVariant.Code)
}

func TestNullifier(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c, false)

	status := &NullifierStatus{}
	c.Assert(ta.request(c, http.MethodGet, "/nullifiers/1234", nil, status), qt.Equals, http.StatusOK)
	c.Assert(status.Spent, qt.IsFalse)
	c.Assert(status.Nullifier.String(), qt.Equals, "1234")

	c.Assert(ta.spent.Add(42, big.NewInt(1234)), qt.IsNil)
	c.Assert(ta.request(c, http.MethodGet, "/nullifiers/1234", nil, status), qt.Equals, http.StatusOK)
	c.Assert(status.Spent, qt.IsTrue)
	c.Assert(status.Block, qt.Equals, uint64(42))

	c.Assert(ta.requestError(c, http.MethodGet, "/nullifiers/-1", nil, http.StatusBadRequest),
		qt.Equals, ErrMalformedFieldElement.Code)

	ta.api.spent = nil
	c.Assert(ta.requestError(c, http.MethodGet, "/nullifiers/1234", nil, http.StatusNotFound),
		qt.Equals, ErrNullifierTrackingOff.Code)
	c.Assert(strings.HasPrefix(NullifierEndpoint, "/nullifiers/"), qt.IsTrue)
}

func TestErrorWrite(t *testing.T) {
	c := qt.New(t)
	err := ErrInputNotFound.Withf("input %d", 1)
	c.Assert(err, qt.ErrorIs, ErrInputNotFound)
	c.Assert(err, qt.Not(qt.ErrorIs), ErrLeafNotFound)
	c.Assert(err, qt.ErrorMatches, "input note not found: input 1")

	rec := httptest.NewRecorder()
	err.Write(rec)
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/json")
	res := &ErrorResponse{}
	c.Assert(json.Unmarshal(rec.Body.Bytes(), res), qt.IsNil)
	c.Assert(res.Code, qt.Equals, ErrInputNotFound.Code)
	c.Assert(res.Error, qt.Equals, "input note not found: input 1")
}
