// Package vkey converts snarkjs Groth16 verification keys into the layout
// consumed by the on-chain verifier contract.
//
// snarkjs serializes every Fp2 coordinate as [c0, c1] while the EVM pairing
// precompile expects [c1, c0], so each G2 coordinate is swapped. G1 points
// keep their affine (x, y) and drop the projective z.
package vkey

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/log"
)

// ErrMalformedKey is returned when a verification key lacks a point, has a
// point with missing or invalid coordinates, or its IC does not match the
// number of public inputs.
var ErrMalformedKey = fmt.Errorf("malformed verification key")

// SnarkJSKey is the verification key as exported by snarkjs.
type SnarkJSKey struct {
	Protocol  string       `json:"protocol"`
	Curve     string       `json:"curve"`
	NPublic   int          `json:"nPublic"`
	Alpha1    []string     `json:"vk_alpha_1"`
	Beta2     [][]string   `json:"vk_beta_2"`
	Gamma2    [][]string   `json:"vk_gamma_2"`
	Delta2    [][]string   `json:"vk_delta_2"`
	IC        [][]string   `json:"IC"`
	AlphaBeta [][][]string `json:"vk_alphabeta_12,omitempty"`
}

// G1Point is an affine point of the BN254 G1 group.
type G1Point struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// G2Point is an affine point of the BN254 G2 group with its coordinates
// in [c1, c0] order.
type G2Point struct {
	X [2]string `json:"x"`
	Y [2]string `json:"y"`
}

// VerificationKey is the formatted verification key. Every coordinate is a
// decimal string.
type VerificationKey struct {
	Alpha1 G1Point   `json:"alpha1"`
	Beta2  G2Point   `json:"beta2"`
	Gamma2 G2Point   `json:"gamma2"`
	Delta2 G2Point   `json:"delta2"`
	IC     []G1Point `json:"ic"`
}

// Format parses a snarkjs verification key and returns it in the verifier
// layout.
func Format(raw []byte) (*VerificationKey, error) {
	var sk SnarkJSKey
	if err := json.Unmarshal(raw, &sk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return FormatKey(&sk)
}

// FormatKey returns the verifier layout of an already decoded snarkjs key.
func FormatKey(sk *SnarkJSKey) (*VerificationKey, error) {
	if sk.Protocol != "" && sk.Protocol != "groth16" {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrMalformedKey, sk.Protocol)
	}
	if sk.Curve != "" && sk.Curve != "bn128" && sk.Curve != "bn254" {
		return nil, fmt.Errorf("%w: unsupported curve %q", ErrMalformedKey, sk.Curve)
	}
	vk := &VerificationKey{}
	var err error
	if vk.Alpha1, err = g1Point("vk_alpha_1", sk.Alpha1); err != nil {
		return nil, err
	}
	if vk.Beta2, err = g2Point("vk_beta_2", sk.Beta2); err != nil {
		return nil, err
	}
	if vk.Gamma2, err = g2Point("vk_gamma_2", sk.Gamma2); err != nil {
		return nil, err
	}
	if vk.Delta2, err = g2Point("vk_delta_2", sk.Delta2); err != nil {
		return nil, err
	}
	if len(sk.IC) != sk.NPublic+1 {
		return nil, fmt.Errorf("%w: IC has %d points, expected %d for %d public inputs",
			ErrMalformedKey, len(sk.IC), sk.NPublic+1, sk.NPublic)
	}
	vk.IC = make([]G1Point, len(sk.IC))
	for i, p := range sk.IC {
		if vk.IC[i], err = g1Point(fmt.Sprintf("IC[%d]", i), p); err != nil {
			return nil, err
		}
	}
	return vk, nil
}

// coordinate parses a decimal base field element.
func coordinate(name, s string) (fp.Element, error) {
	var e fp.Element
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return e, fmt.Errorf("%w: %s: invalid coordinate %q", ErrMalformedKey, name, s)
	}
	if v.Sign() < 0 || v.Cmp(fp.Modulus()) >= 0 {
		return e, fmt.Errorf("%w: %s: coordinate %s out of the base field", ErrMalformedKey, name, s)
	}
	e.SetBigInt(v)
	return e, nil
}

func g1Point(name string, raw []string) (G1Point, error) {
	if len(raw) < 2 {
		return G1Point{}, fmt.Errorf("%w: %s: missing coordinates", ErrMalformedKey, name)
	}
	var p bn254.G1Affine
	var err error
	if p.X, err = coordinate(name, raw[0]); err != nil {
		return G1Point{}, err
	}
	if p.Y, err = coordinate(name, raw[1]); err != nil {
		return G1Point{}, err
	}
	if !p.IsOnCurve() {
		return G1Point{}, fmt.Errorf("%w: %s: point not on curve", ErrMalformedKey, name)
	}
	return G1Point{X: p.X.String(), Y: p.Y.String()}, nil
}

func g2Point(name string, raw [][]string) (G2Point, error) {
	if len(raw) < 2 || len(raw[0]) < 2 || len(raw[1]) < 2 {
		return G2Point{}, fmt.Errorf("%w: %s: missing coordinates", ErrMalformedKey, name)
	}
	var p bn254.G2Affine
	var err error
	if p.X.A0, err = coordinate(name, raw[0][0]); err != nil {
		return G2Point{}, err
	}
	if p.X.A1, err = coordinate(name, raw[0][1]); err != nil {
		return G2Point{}, err
	}
	if p.Y.A0, err = coordinate(name, raw[1][0]); err != nil {
		return G2Point{}, err
	}
	if p.Y.A1, err = coordinate(name, raw[1][1]); err != nil {
		return G2Point{}, err
	}
	if !p.IsOnCurve() {
		return G2Point{}, fmt.Errorf("%w: %s: point not on curve", ErrMalformedKey, name)
	}
	return G2Point{
		X: [2]string{p.X.A1.String(), p.X.A0.String()},
		Y: [2]string{p.Y.A1.String(), p.Y.A0.String()},
	}, nil
}

// Keys caches the formatted verification key of every circuit variant.
type Keys struct {
	mu   sync.RWMutex
	keys map[circuits.Variant]*VerificationKey
}

// NewKeys returns an empty cache.
func NewKeys() *Keys {
	return &Keys{keys: make(map[circuits.Variant]*VerificationKey)}
}

// LoadAll formats the verification key of every variant in the registry.
// The artifacts must be loaded already.
func (k *Keys) LoadAll(registry circuits.Registry) error {
	keys := make(map[circuits.Variant]*VerificationKey, len(registry))
	for v, a := range registry {
		raw := a.VerifyingKey()
		if len(raw) == 0 {
			log.Warnw("verification key not loaded", "circuit", v.Name())
			continue
		}
		vk, err := Format(raw)
		if err != nil {
			return fmt.Errorf("circuit %s: %w", v.Name(), err)
		}
		keys[v] = vk
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for v, vk := range keys {
		k.keys[v] = vk
	}
	return nil
}

// Set stores the formatted key of a variant.
func (k *Keys) Set(v circuits.Variant, vk *VerificationKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[v] = vk
}

// Get returns the formatted key of the variant, or false if it is unknown.
func (k *Keys) Get(v circuits.Variant) (*VerificationKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	vk, ok := k.keys[v]
	return vk, ok
}
