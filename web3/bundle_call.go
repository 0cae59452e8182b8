package web3

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/types"
)

// JoinSplitParams is the tuple taken by the swap and withdraw entry points
// for a join-split proof. Hash is zero for plain variants.
type JoinSplitParams struct {
	A           [2]*big.Int
	B           [2][2]*big.Int
	C           [2]*big.Int
	Root        *big.Int
	Nullifiers  []*big.Int
	Commitments []*big.Int
	Message     *big.Int
	Hash        *big.Int
}

// OwnershipParams is the tuple taken by the swap and withdraw entry points
// for an ownership proof. Hash is zero for plain variants.
type OwnershipParams struct {
	A          [2]*big.Int
	B          [2][2]*big.Int
	C          [2]*big.Int
	Root       *big.Int
	Nullifier  *big.Int
	Commitment *big.Int
	Message    *big.Int
	Hash       *big.Int
}

// BundleCall returns the pool method and the arguments that submit the
// bundle. A bundle with a counterpart is a swap, a bundle with a withdrawal
// pays out its first output, and any other bundle is a plain transfer
// between notes.
func BundleCall(b *transaction.Bundle) (string, []any, error) {
	switch {
	case b == nil:
		return "", nil, fmt.Errorf("%w: missing bundle", transaction.ErrMalformedProof)
	case b.Counterpart != nil:
		return swapCall(b)
	case b.Withdrawal != nil:
		return withdrawCall(b)
	}
	switch b.Variant.Shape {
	case circuits.JoinSplit:
		p, err := joinSplitParams(b)
		if err != nil {
			return "", nil, err
		}
		args := []any{p.A, p.B, p.C, p.Root, p.Nullifiers, p.Commitments, p.Message}
		if b.Variant.Optimized {
			return "transactOptimized", append(args, p.Hash), nil
		}
		return "transact", args, nil
	case circuits.Ownership:
		p, err := ownershipParams(b)
		if err != nil {
			return "", nil, err
		}
		args := []any{p.A, p.B, p.C, p.Root, p.Nullifier, p.Commitment, p.Message}
		if b.Variant.Optimized {
			return "transferOptimized", append(args, p.Hash), nil
		}
		return "transfer", args, nil
	default:
		return "", nil, fmt.Errorf("unknown shape %s", b.Variant.Shape)
	}
}

// swapCall pairs the join-split and the ownership legs of the bundle, in
// whichever order they were stored.
func swapCall(b *transaction.Bundle) (string, []any, error) {
	pay, transfer := b, b.Counterpart
	if pay.Variant.Shape == circuits.Ownership {
		pay, transfer = transfer, pay
	}
	if pay.Variant.Shape != circuits.JoinSplit || transfer.Variant.Shape != circuits.Ownership {
		return "", nil, fmt.Errorf("swap needs a %s and an %s leg", circuits.JoinSplit, circuits.Ownership)
	}
	if pay.Variant.Optimized != transfer.Variant.Optimized {
		return "", nil, fmt.Errorf("swap legs mix optimized and plain proofs")
	}
	if pay.Withdrawal != nil || transfer.Withdrawal != nil || b.Counterpart.Counterpart != nil {
		return "", nil, fmt.Errorf("swap legs cannot be withdrawals or swaps")
	}
	jsParams, err := joinSplitParams(pay)
	if err != nil {
		return "", nil, fmt.Errorf("payment: %w", err)
	}
	ownParams, err := ownershipParams(transfer)
	if err != nil {
		return "", nil, fmt.Errorf("transfer: %w", err)
	}
	return methodName("swap", b.Variant), []any{*jsParams, *ownParams}, nil
}

func withdrawCall(b *transaction.Bundle) (string, []any, error) {
	w := b.Withdrawal
	switch b.Variant.Shape {
	case circuits.JoinSplit:
		if w.Amount == nil {
			return "", nil, fmt.Errorf("funds withdrawal without amount")
		}
		p, err := joinSplitParams(b)
		if err != nil {
			return "", nil, err
		}
		return methodName("withdrawFunds", b.Variant), []any{w.Amount.MathBigInt(), w.Recipient, *p}, nil
	case circuits.Ownership:
		if w.Token == nil || w.TokenID == nil {
			return "", nil, fmt.Errorf("NFT withdrawal without token")
		}
		p, err := ownershipParams(b)
		if err != nil {
			return "", nil, err
		}
		return methodName("withdrawNFT", b.Variant), []any{w.TokenID.MathBigInt(), *w.Token, w.Recipient, *p}, nil
	default:
		return "", nil, fmt.Errorf("unknown shape %s", b.Variant.Shape)
	}
}

func methodName(base string, v circuits.Variant) string {
	if v.Optimized {
		return base + "Optimized"
	}
	return base
}

func joinSplitParams(b *transaction.Bundle) (*JoinSplitParams, error) {
	p := &JoinSplitParams{}
	var err error
	if p.A, p.B, p.C, err = proofPoints(b); err != nil {
		return nil, err
	}
	if p.Root, p.Message, p.Hash, err = publicInputs(b); err != nil {
		return nil, err
	}
	p.Nullifiers = types.MathBigInts(b.Nullifiers)
	p.Commitments = types.MathBigInts(b.Commitments)
	return p, nil
}

func ownershipParams(b *transaction.Bundle) (*OwnershipParams, error) {
	p := &OwnershipParams{}
	var err error
	if p.A, p.B, p.C, err = proofPoints(b); err != nil {
		return nil, err
	}
	if p.Root, p.Message, p.Hash, err = publicInputs(b); err != nil {
		return nil, err
	}
	p.Nullifier = b.Nullifiers[0].MathBigInt()
	p.Commitment = b.Commitments[0].MathBigInt()
	return p, nil
}

// publicInputs returns the root, the message and the public inputs hash of
// the bundle. The message and the hash default to zero.
func publicInputs(b *transaction.Bundle) (root, message, hash *big.Int, err error) {
	if b.MerkleRoot == nil || len(b.Nullifiers) == 0 || len(b.Commitments) == 0 {
		return nil, nil, nil, fmt.Errorf("incomplete bundle")
	}
	message, hash = big.NewInt(0), big.NewInt(0)
	if b.Message != nil {
		message = b.Message.MathBigInt()
	}
	if b.Variant.Optimized {
		if b.Hash == nil {
			return nil, nil, nil, fmt.Errorf("optimized bundle without public inputs hash")
		}
		hash = b.Hash.MathBigInt()
	}
	return b.MerkleRoot.MathBigInt(), message, hash, nil
}

func proofPoints(b *transaction.Bundle) (a [2]*big.Int, pb [2][2]*big.Int, c [2]*big.Int, err error) {
	if b.Proof == nil {
		return a, pb, c, fmt.Errorf("%w: missing proof", transaction.ErrMalformedProof)
	}
	for i := 0; i < 2; i++ {
		if a[i], err = decimal(b.Proof.A[i]); err != nil {
			return a, pb, c, fmt.Errorf("pi_a: %w", err)
		}
		if c[i], err = decimal(b.Proof.C[i]); err != nil {
			return a, pb, c, fmt.Errorf("pi_c: %w", err)
		}
		for j := 0; j < 2; j++ {
			if pb[i][j], err = decimal(b.Proof.B[i][j]); err != nil {
				return a, pb, c, fmt.Errorf("pi_b: %w", err)
			}
		}
	}
	return a, pb, c, nil
}

func decimal(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid coordinate %q", transaction.ErrMalformedProof, s)
	}
	return x, nil
}
