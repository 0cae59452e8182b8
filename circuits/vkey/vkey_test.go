package vkey

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/aegis/circuits"
)

func g1Raw(p bn254.G1Affine) []string {
	return []string{p.X.String(), p.Y.String(), "1"}
}

func g2Raw(p bn254.G2Affine) [][]string {
	return [][]string{
		{p.X.A0.String(), p.X.A1.String()},
		{p.Y.A0.String(), p.Y.A1.String()},
		{"1", "0"},
	}
}

// testKey returns a structurally valid key built from multiples of the
// group generators.
func testKey(nPublic int) *SnarkJSKey {
	_, _, g1, g2 := bn254.Generators()
	var g1x3 bn254.G1Affine
	g1x3.ScalarMultiplication(&g1, big.NewInt(3))
	var g2x2, g2x5 bn254.G2Affine
	g2x2.ScalarMultiplication(&g2, big.NewInt(2))
	g2x5.ScalarMultiplication(&g2, big.NewInt(5))

	ic := [][]string{}
	for i := 0; i <= nPublic; i++ {
		var p bn254.G1Affine
		p.ScalarMultiplication(&g1, big.NewInt(int64(i+7)))
		ic = append(ic, g1Raw(p))
	}
	return &SnarkJSKey{
		Protocol: "groth16",
		Curve:    "bn128",
		NPublic:  nPublic,
		Alpha1:   g1Raw(g1x3),
		Beta2:    g2Raw(g2),
		Gamma2:   g2Raw(g2x2),
		Delta2:   g2Raw(g2x5),
		IC:       ic,
	}
}

func encode(c *qt.C, sk *SnarkJSKey) []byte {
	raw, err := json.Marshal(sk)
	c.Assert(err, qt.IsNil)
	return raw
}

func TestFormatSwapsG2Coordinates(t *testing.T) {
	c := qt.New(t)
	sk := testKey(3)
	vk, err := Format(encode(c, sk))
	c.Assert(err, qt.IsNil)

	c.Assert(vk.Alpha1, qt.Equals, G1Point{X: sk.Alpha1[0], Y: sk.Alpha1[1]})
	for _, tc := range []struct {
		name string
		raw  [][]string
		got  G2Point
	}{
		{"beta", sk.Beta2, vk.Beta2},
		{"gamma", sk.Gamma2, vk.Gamma2},
		{"delta", sk.Delta2, vk.Delta2},
	} {
		c.Run(tc.name, func(c *qt.C) {
			c.Assert(tc.got.X, qt.Equals, [2]string{tc.raw[0][1], tc.raw[0][0]})
			c.Assert(tc.got.Y, qt.Equals, [2]string{tc.raw[1][1], tc.raw[1][0]})
		})
	}
	c.Assert(vk.IC, qt.HasLen, 4)
	for i, p := range sk.IC {
		c.Assert(vk.IC[i], qt.Equals, G1Point{X: p[0], Y: p[1]})
	}
}

func TestFormatGeneratorBeta(t *testing.T) {
	c := qt.New(t)
	vk, err := Format(encode(c, testKey(1)))
	c.Assert(err, qt.IsNil)
	c.Assert(vk.Beta2.X, qt.Equals, [2]string{
		"11559732032986387107991004021392285783925812861821192530917403151452391805634",
		"10857046999023057135944570762232829481370756359578518086990519993285655852781",
	})
	c.Assert(vk.Beta2.Y, qt.Equals, [2]string{
		"4082367875863433681332203403145435568316851327593401208105741076214120093531",
		"8495653923123431417604973247489272438418190587263600148770280649306958101930",
	})
}

func TestFormatJSONLayout(t *testing.T) {
	c := qt.New(t)
	vk, err := Format(encode(c, testKey(0)))
	c.Assert(err, qt.IsNil)
	out, err := json.Marshal(vk)
	c.Assert(err, qt.IsNil)
	var decoded map[string]json.RawMessage
	c.Assert(json.Unmarshal(out, &decoded), qt.IsNil)
	for _, k := range []string{"alpha1", "beta2", "gamma2", "delta2", "ic"} {
		_, ok := decoded[k]
		c.Assert(ok, qt.IsTrue, qt.Commentf("missing %s", k))
	}
}

func TestFormatMalformed(t *testing.T) {
	c := qt.New(t)
	modulus := fp.Modulus().String()

	for _, tc := range []struct {
		name   string
		mutate func(*SnarkJSKey)
	}{
		{"missing alpha", func(sk *SnarkJSKey) { sk.Alpha1 = nil }},
		{"short alpha", func(sk *SnarkJSKey) { sk.Alpha1 = sk.Alpha1[:1] }},
		{"missing beta", func(sk *SnarkJSKey) { sk.Beta2 = nil }},
		{"short gamma", func(sk *SnarkJSKey) { sk.Gamma2 = [][]string{{"1", "2"}, {"3"}} }},
		{"missing delta", func(sk *SnarkJSKey) { sk.Delta2 = [][]string{} }},
		{"non decimal", func(sk *SnarkJSKey) { sk.Alpha1[0] = "0xzz" }},
		{"coordinate out of field", func(sk *SnarkJSKey) { sk.Alpha1[0] = modulus }},
		{"negative coordinate", func(sk *SnarkJSKey) { sk.IC[0][1] = "-1" }},
		{"g1 off curve", func(sk *SnarkJSKey) { sk.Alpha1 = []string{"1", "3", "1"} }},
		{"g2 off curve", func(sk *SnarkJSKey) {
			sk.Beta2[0][0], sk.Beta2[0][1] = sk.Beta2[0][1], sk.Beta2[0][0]
		}},
		{"ic too short", func(sk *SnarkJSKey) { sk.IC = sk.IC[:2] }},
		{"ic too long", func(sk *SnarkJSKey) { sk.NPublic = 1 }},
		{"wrong protocol", func(sk *SnarkJSKey) { sk.Protocol = "plonk" }},
	} {
		c.Run(tc.name, func(c *qt.C) {
			sk := testKey(2)
			tc.mutate(sk)
			_, err := Format(encode(c, sk))
			c.Assert(err, qt.ErrorIs, ErrMalformedKey)
		})
	}

	_, err := Format([]byte("not json"))
	c.Assert(err, qt.ErrorIs, ErrMalformedKey)
}

func TestKeysCache(t *testing.T) {
	c := qt.New(t)
	raw := encode(c, testKey(5))
	variant := circuits.Variant{Shape: circuits.JoinSplit, Optimized: true}
	registry := circuits.Registry{
		variant: circuits.NewCircuitArtifacts(nil, nil, &circuits.Artifact{Content: raw}),
		{Shape: circuits.Ownership}: circuits.NewCircuitArtifacts(nil, nil, nil),
	}
	keys := NewKeys()
	c.Assert(keys.LoadAll(registry), qt.IsNil)

	vk, ok := keys.Get(variant)
	c.Assert(ok, qt.IsTrue)
	c.Assert(vk.IC, qt.HasLen, 6)
	_, ok = keys.Get(circuits.Variant{Shape: circuits.Ownership})
	c.Assert(ok, qt.IsFalse)

	bad := circuits.Registry{
		variant: circuits.NewCircuitArtifacts(nil, nil, &circuits.Artifact{Content: []byte(`{"IC":[]}`)}),
	}
	c.Assert(NewKeys().LoadAll(bad), qt.ErrorIs, ErrMalformedKey)
}
