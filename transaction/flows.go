package transaction

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/crypto/note"
	"github.com/vocdoni/aegis/types"
)

// Deposit returns the commitment a depositor submits to the pool contract
// to create a note of value for publicKey.
func (b *Builder) Deposit(shape circuits.Shape, value, publicKey *big.Int) (*big.Int, error) {
	return b.Scheme(shape).Commit(value, publicKey)
}

// PadInputs fills the unused input slots of the shape with zero value notes,
// each owned by a fresh key pair so no two inputs share a nullifier. Dummy
// inputs are never looked up in the tree.
func PadInputs(shape circuits.Shape, inputs []Input) ([]Input, error) {
	if len(inputs) > shape.Inputs() {
		return nil, fmt.Errorf("%w: %d inputs for %s", ErrArity, len(inputs), shape)
	}
	padded := make([]Input, 0, shape.Inputs())
	padded = append(padded, inputs...)
	for len(padded) < shape.Inputs() {
		keys, err := note.NewKeyPair()
		if err != nil {
			return nil, fmt.Errorf("cannot create dummy keys: %w", err)
		}
		padded = append(padded, Input{Value: big.NewInt(0), Keys: keys})
	}
	return padded, nil
}

// WithdrawRequest returns the join-split request that pays value of the
// native currency to the recipient address. The address takes the place of
// the first output public key and the message is zero. The second output
// takes the change, or a zero value note to the recipient if change is nil.
func WithdrawRequest(variant circuits.Variant, inputs []Input, recipient common.Address,
	value *big.Int, change *Output,
) *Request {
	recipientPK := field.AddressToField(recipient)
	outputs := []Output{{Value: value, PublicKey: recipientPK}}
	if variant.Shape.Outputs() > 1 {
		if change == nil {
			change = &Output{Value: big.NewInt(0), PublicKey: recipientPK}
		}
		outputs = append(outputs, *change)
	}
	return &Request{
		Variant: variant,
		Inputs:  inputs,
		Outputs: outputs,
		Withdrawal: &Withdrawal{
			Recipient: recipient,
			Amount:    types.NewBigInt(value),
		},
	}
}

// WithdrawNFTRequest returns the ownership request that releases the token
// held by the input note to the recipient address.
func WithdrawNFTRequest(variant circuits.Variant, input Input, tokenID *big.Int,
	token, recipient common.Address,
) (*Request, error) {
	if variant.Shape != circuits.Ownership {
		return nil, fmt.Errorf("%w: NFT withdrawal with a %s transaction", ErrInvalidWithdrawal, variant.Shape)
	}
	assetID, err := field.AssetID(tokenID, token)
	if err != nil {
		return nil, err
	}
	return &Request{
		Variant: variant,
		Inputs:  []Input{input},
		Outputs: []Output{{Value: assetID, PublicKey: field.AddressToField(recipient)}},
		Withdrawal: &Withdrawal{
			Recipient: recipient,
			Token:     &token,
			TokenID:   types.NewBigInt(tokenID),
		},
	}, nil
}
