package transaction

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/types"
)

// Bundle is everything a relayer needs to submit a transaction to the pool
// contract: the formatted proof and its public inputs. A withdrawal bundle
// also carries its payout. A swap bundle is the payment leg with the
// transfer leg as its counterpart, submitted together in one call.
type Bundle struct {
	Variant       circuits.Variant `cbor:"0,keyasint"`
	Proof         *Proof           `cbor:"1,keyasint"`
	Message       *types.BigInt    `cbor:"2,keyasint"`
	MerkleRoot    *types.BigInt    `cbor:"3,keyasint"`
	Nullifiers    []*types.BigInt  `cbor:"4,keyasint"`
	Commitments   []*types.BigInt  `cbor:"5,keyasint"`
	Hash          *types.BigInt    `cbor:"6,keyasint,omitempty"`
	PublicSignals []string         `cbor:"7,keyasint,omitempty"`
	Withdrawal    *Withdrawal      `cbor:"8,keyasint,omitempty"`
	Counterpart   *Bundle          `cbor:"9,keyasint,omitempty"`
}

// Withdrawal is the payout of a withdrawal: Amount of the native currency
// for join-split notes, or the TokenID of the Token contract for ownership
// notes. The first output note of the proof commits to the payout and the
// recipient address, and the pool pays it out instead of appending it.
type Withdrawal struct {
	Recipient common.Address  `cbor:"0,keyasint" json:"recipient"`
	Amount    *types.BigInt   `cbor:"1,keyasint,omitempty" json:"amount,omitempty"`
	Token     *common.Address `cbor:"2,keyasint,omitempty" json:"token,omitempty"`
	TokenID   *types.BigInt   `cbor:"3,keyasint,omitempty" json:"tokenId,omitempty"`
}

// check verifies that the payout matches the first output of a transaction
// of the given shape.
func (w *Withdrawal) check(shape circuits.Shape, payout Output) error {
	if payout.PublicKey.Cmp(field.AddressToField(w.Recipient)) != 0 {
		return fmt.Errorf("%w: first output is not owned by the recipient %s", ErrInvalidWithdrawal, w.Recipient.Hex())
	}
	switch shape {
	case circuits.JoinSplit:
		if w.Amount == nil || w.Token != nil || w.TokenID != nil {
			return fmt.Errorf("%w: a funds withdrawal takes an amount and no token", ErrInvalidWithdrawal)
		}
		if w.Amount.MathBigInt().Cmp(payout.Value) != 0 {
			return fmt.Errorf("%w: amount %s, first output value %s", ErrInvalidWithdrawal, w.Amount, payout.Value)
		}
	case circuits.Ownership:
		if w.Token == nil || w.TokenID == nil || w.Amount != nil {
			return fmt.Errorf("%w: an NFT withdrawal takes a token and a token id", ErrInvalidWithdrawal)
		}
		id, err := field.AssetID(w.TokenID.MathBigInt(), *w.Token)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidWithdrawal, err)
		}
		if id.Cmp(payout.Value) != 0 {
			return fmt.Errorf("%w: first output is not the asset id of token %s", ErrInvalidWithdrawal, w.TokenID)
		}
	default:
		return fmt.Errorf("%w: unknown shape %s", ErrInvalidWithdrawal, shape)
	}
	return nil
}

// Legs returns the bundle and its counterpart, if any, in submission order.
func (b *Bundle) Legs() []*Bundle {
	if b.Counterpart == nil {
		return []*Bundle{b}
	}
	return []*Bundle{b, b.Counterpart}
}

// AppendedCommitments returns the commitments the pool appends to the tree
// once the bundle is accepted, in order: every output of every leg except
// the payout of a withdrawal.
func (b *Bundle) AppendedCommitments() []*big.Int {
	var out []*big.Int
	for _, leg := range b.Legs() {
		commitments := leg.Commitments
		if leg.Withdrawal != nil && len(commitments) > 0 {
			commitments = commitments[1:]
		}
		out = append(out, types.MathBigInts(commitments)...)
	}
	return out
}

// SpentNullifiers returns the nullifiers the pool publishes once the bundle
// is accepted.
func (b *Bundle) SpentNullifiers() []*big.Int {
	var out []*big.Int
	for _, leg := range b.Legs() {
		out = append(out, types.MathBigInts(leg.Nullifiers)...)
	}
	return out
}

// bundleJSON is the plural layout used by join-split transactions.
type bundleJSON struct {
	Variant       circuits.Variant `json:"variant"`
	Proof         *Proof           `json:"proof"`
	Message       *types.BigInt    `json:"message"`
	MerkleRoot    *types.BigInt    `json:"merkleRoot"`
	Nullifiers    []*types.BigInt  `json:"nullifiers,omitempty"`
	Commitments   []*types.BigInt  `json:"commitments,omitempty"`
	Nullifier     *types.BigInt    `json:"nullifier,omitempty"`
	Commitment    *types.BigInt    `json:"commitment,omitempty"`
	Hash          *types.BigInt    `json:"hash,omitempty"`
	PublicSignals []string         `json:"publicSignals,omitempty"`
	Withdrawal    *Withdrawal      `json:"withdrawal,omitempty"`
	Counterpart   *Bundle          `json:"counterpart,omitempty"`
}

// MarshalJSON encodes the bundle with plural nullifiers and commitments for
// multi note shapes and singular fields for single note shapes, matching
// the contract entry point of each shape.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	out := bundleJSON{
		Variant:       b.Variant,
		Proof:         b.Proof,
		Message:       b.Message,
		MerkleRoot:    b.MerkleRoot,
		Hash:          b.Hash,
		PublicSignals: b.PublicSignals,
		Withdrawal:    b.Withdrawal,
		Counterpart:   b.Counterpart,
	}
	if b.singular() {
		out.Nullifier = b.Nullifiers[0]
		out.Commitment = b.Commitments[0]
	} else {
		out.Nullifiers = b.Nullifiers
		out.Commitments = b.Commitments
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes both the plural and the singular layouts.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var in bundleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = Bundle{
		Variant:       in.Variant,
		Proof:         in.Proof,
		Message:       in.Message,
		MerkleRoot:    in.MerkleRoot,
		Nullifiers:    in.Nullifiers,
		Commitments:   in.Commitments,
		Hash:          in.Hash,
		PublicSignals: in.PublicSignals,
		Withdrawal:    in.Withdrawal,
		Counterpart:   in.Counterpart,
	}
	if in.Nullifier != nil {
		if len(in.Nullifiers) != 0 {
			return fmt.Errorf("bundle has both nullifier and nullifiers")
		}
		b.Nullifiers = []*types.BigInt{in.Nullifier}
	}
	if in.Commitment != nil {
		if len(in.Commitments) != 0 {
			return fmt.Errorf("bundle has both commitment and commitments")
		}
		b.Commitments = []*types.BigInt{in.Commitment}
	}
	return nil
}

func (b *Bundle) singular() bool {
	return b.Variant.Shape.Inputs() == 1 && b.Variant.Shape.Outputs() == 1 &&
		len(b.Nullifiers) == 1 && len(b.Commitments) == 1
}
