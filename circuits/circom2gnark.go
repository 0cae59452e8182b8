package circuits

import (
	"fmt"

	"github.com/vocdoni/circom2gnark/parser"
)

// ErrInvalidProof is returned when a circom proof does not verify against
// its verification key.
var ErrInvalidProof = fmt.Errorf("invalid circom proof")

// ParseCircomProof decodes the proof and the public signals as returned by
// snarkjs or rapidsnark.
func ParseCircomProof(circomProof, pubSignals string) (*parser.CircomProof, []string, error) {
	proofData, err := parser.UnmarshalCircomProofJSON([]byte(circomProof))
	if err != nil {
		return nil, nil, fmt.Errorf("error decoding circom proof: %w", err)
	}
	pubSignalsData, err := parser.UnmarshalCircomPublicSignalsJSON([]byte(pubSignals))
	if err != nil {
		return nil, nil, fmt.Errorf("error decoding public signals: %w", err)
	}
	return proofData, pubSignalsData, nil
}

// VerifyCircomProof converts the circom proof to gnark and verifies it with
// the snarkjs verification key provided.
func VerifyCircomProof(vkey []byte, proof *parser.CircomProof, pubSignals []string) error {
	gnarkVKeyData, err := parser.UnmarshalCircomVerificationKeyJSON(vkey)
	if err != nil {
		return fmt.Errorf("error decoding verification key: %w", err)
	}
	gnarkProof, err := parser.ConvertCircomToGnark(proof, gnarkVKeyData, pubSignals)
	if err != nil {
		return fmt.Errorf("error converting proof: %w", err)
	}
	ok, err := parser.VerifyProof(gnarkProof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !ok {
		return ErrInvalidProof
	}
	return nil
}
