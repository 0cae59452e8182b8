// Package field implements the arithmetic helpers over the BN254 scalar
// field used by every hash, commitment and public input of the pool.
package field

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ElementSize is the size in bytes of a serialized field element.
const ElementSize = fr.Bytes

// Modulus is the BN254 scalar field prime, the field of the proving system
// and of the Poseidon hash.
var Modulus = fr.Modulus()

// ErrNotInField is returned when a value is negative or not lower than the
// field modulus.
var ErrNotInField = fmt.Errorf("value is not a field element")

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// BigToFF function returns the finite field representation of the big.Int
// provided. It uses Euclidean modulus so negative numbers are mapped into
// [0, p) too.
func BigToFF(iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(Modulus); c == 0 {
		return z
	} else if c != 1 && iv.Sign() != -1 {
		return new(big.Int).Set(iv)
	}
	return z.Mod(iv, Modulus)
}

// IsCanonical reports whether x is already a reduced field element.
func IsCanonical(x *big.Int) bool {
	return x != nil && x.Sign() >= 0 && x.Cmp(Modulus) < 0
}

// Check returns ErrNotInField if x is not a reduced field element.
func Check(x *big.Int) error {
	if x == nil {
		return fmt.Errorf("%w: nil value", ErrNotInField)
	}
	if !IsCanonical(x) {
		return fmt.Errorf("%w: %s", ErrNotInField, x.String())
	}
	return nil
}

// Bytes32 returns the 32 bytes big-endian encoding of x reduced into the
// field.
func Bytes32(x *big.Int) [ElementSize]byte {
	var e fr.Element
	e.SetBigInt(x)
	return e.Bytes()
}

// FromBytes interprets b as a big-endian number and reduces it into the
// field.
func FromBytes(b []byte) *big.Int {
	return BigToFF(new(big.Int).SetBytes(b))
}

// Random returns a uniformly distributed field element drawn from 32 bytes
// of cryptographically secure randomness.
func Random() (*big.Int, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("cannot read randomness: %w", err)
	}
	return FromBytes(b), nil
}

// Sha256 hashes the concatenation of the 32 bytes big-endian encoding of
// every value and reduces the digest into the field. It is the hash that
// compresses the public inputs of the optimized circuits into one.
func Sha256(values ...*big.Int) *big.Int {
	hasher := sha256.New()
	for _, v := range values {
		b := Bytes32(v)
		hasher.Write(b[:])
	}
	return FromBytes(hasher.Sum(nil))
}

// Keccak256 hashes the concatenation of data with keccak256 and reduces the
// digest into the field.
func Keccak256(data ...[]byte) *big.Int {
	return FromBytes(crypto.Keccak256(data...))
}

// AssetID returns the note value that represents a non-fungible token:
// keccak256(abi.encodePacked(uint256(tokenID), address(token))) mod p.
func AssetID(tokenID *big.Int, token common.Address) (*big.Int, error) {
	if tokenID == nil || tokenID.Sign() < 0 || tokenID.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("token id does not fit in uint256")
	}
	return Keccak256(common.LeftPadBytes(tokenID.Bytes(), 32), token.Bytes()), nil
}

// AddressToField returns the address as a field element. Withdrawals use the
// recipient address in place of an output public key.
func AddressToField(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}
