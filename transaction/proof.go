package transaction

import (
	"fmt"

	"github.com/vocdoni/circom2gnark/parser"
)

// ErrMalformedProof is returned when the proof returned by the proving
// backend does not have the expected number of coordinates.
var ErrMalformedProof = fmt.Errorf("malformed proof")

// Proof is a Groth16 proof in the order expected by the on-chain verifier:
// affine coordinates only and G2 components as [c1, c0].
type Proof struct {
	A [2]string    `json:"a" cbor:"0,keyasint"`
	B [2][2]string `json:"b" cbor:"1,keyasint"`
	C [2]string    `json:"c" cbor:"2,keyasint"`
}

// FormatProof converts a circom proof to the verifier layout. The projective
// coordinate of every point is dropped and the two components of each G2
// coordinate are swapped.
func FormatProof(p *parser.CircomProof) (*Proof, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty proof", ErrMalformedProof)
	}
	if len(p.PiA) < 2 {
		return nil, fmt.Errorf("%w: pi_a has %d coordinates", ErrMalformedProof, len(p.PiA))
	}
	if len(p.PiC) < 2 {
		return nil, fmt.Errorf("%w: pi_c has %d coordinates", ErrMalformedProof, len(p.PiC))
	}
	if len(p.PiB) < 2 || len(p.PiB[0]) < 2 || len(p.PiB[1]) < 2 {
		return nil, fmt.Errorf("%w: pi_b is not a 2x2 matrix", ErrMalformedProof)
	}
	return &Proof{
		A: [2]string{p.PiA[0], p.PiA[1]},
		B: [2][2]string{
			{p.PiB[0][1], p.PiB[0][0]},
			{p.PiB[1][1], p.PiB[1][0]},
		},
		C: [2]string{p.PiC[0], p.PiC[1]},
	}, nil
}
