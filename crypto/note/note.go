// Package note implements the commitment and nullifier scheme of the pool.
// A note of some value owned by a key pair is represented on-chain only by
// its commitment, Poseidon(value, publicKey). Spending it reveals its
// nullifier, Poseidon(privateKey, pathIndices), which is unique per leaf
// position and owner.
package note

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/aegis/config"
	"github.com/vocdoni/aegis/crypto/field"
)

// DefaultMaxValue is the exclusive upper bound of a note value enforced by
// the join-split circuits range checks.
var DefaultMaxValue = new(big.Int).Lsh(big.NewInt(1), config.JoinSplitMaxValueBits)

// ErrValueOutOfRange is returned when a note value is negative, not a field
// element or not lower than the maximum note value of the circuit.
var ErrValueOutOfRange = fmt.Errorf("note value out of range")

// KeyPair is the owner key of a note. The public key is the Poseidon hash of
// the private key. Key pairs are never persisted by the node.
type KeyPair struct {
	PrivateKey *big.Int
	PublicKey  *big.Int
}

// NewKeyPair generates a key pair from a random field element. It only fails
// if the randomness source fails.
func NewKeyPair() (*KeyPair, error) {
	seed, err := field.Random()
	if err != nil {
		return nil, err
	}
	privateKey, err := poseidon.Hash([]*big.Int{seed})
	if err != nil {
		return nil, fmt.Errorf("cannot derive private key: %w", err)
	}
	return KeyPairFromPrivate(privateKey)
}

// KeyPairFromPrivate derives the key pair of an existing private key.
func KeyPairFromPrivate(privateKey *big.Int) (*KeyPair, error) {
	if err := field.Check(privateKey); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	publicKey, err := poseidon.Hash([]*big.Int{privateKey})
	if err != nil {
		return nil, fmt.Errorf("cannot derive public key: %w", err)
	}
	return &KeyPair{
		PrivateKey: new(big.Int).Set(privateKey),
		PublicKey:  publicKey,
	}, nil
}

// Scheme computes commitments bounded by the maximum value accepted by a
// circuit. A nil MaxValue only enforces the field bound.
type Scheme struct {
	MaxValue *big.Int
}

// DefaultScheme uses DefaultMaxValue as the value bound.
var DefaultScheme = &Scheme{MaxValue: DefaultMaxValue}

// CheckValue returns ErrValueOutOfRange if the value cannot be committed.
func (s *Scheme) CheckValue(value *big.Int) error {
	if !field.IsCanonical(value) {
		return fmt.Errorf("%w: %v is not a field element", ErrValueOutOfRange, value)
	}
	if s.MaxValue != nil && value.Cmp(s.MaxValue) >= 0 {
		return fmt.Errorf("%w: %s exceeds the maximum %s", ErrValueOutOfRange, value, s.MaxValue)
	}
	return nil
}

// Commit returns Poseidon(value, publicKey). The value is range checked before
// any hashing is done.
func (s *Scheme) Commit(value, publicKey *big.Int) (*big.Int, error) {
	if err := s.CheckValue(value); err != nil {
		return nil, err
	}
	if publicKey == nil {
		return nil, fmt.Errorf("missing public key")
	}
	return poseidon.Hash([]*big.Int{value, field.BigToFF(publicKey)})
}

// Nullify returns Poseidon(privateKey, pathIndices).
func Nullify(privateKey, pathIndices *big.Int) (*big.Int, error) {
	if err := field.Check(privateKey); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if err := field.Check(pathIndices); err != nil {
		return nil, fmt.Errorf("invalid path indices: %w", err)
	}
	return poseidon.Hash([]*big.Int{privateKey, pathIndices})
}

// Note is a value owned by a key pair.
type Note struct {
	Value *big.Int
	Keys  *KeyPair
}

// IsDummy reports whether the note has zero value. Dummy notes fill unused
// input slots of a circuit and are never looked up in the tree.
func (n *Note) IsDummy() bool {
	return n.Value == nil || n.Value.Sign() == 0
}

// Commitment returns the commitment of the note under the given scheme.
func (n *Note) Commitment(s *Scheme) (*big.Int, error) {
	if n.Keys == nil {
		return nil, fmt.Errorf("note without keys")
	}
	return s.Commit(n.Value, n.Keys.PublicKey)
}
