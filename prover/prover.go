// Package prover generates Groth16 proofs of the transaction circuits. The
// Backend interface isolates the proving system from the transaction
// assembly so it can be replaced in tests or by a remote prover.
package prover

import (
	"context"
	"fmt"
	"time"

	rapidsnark "github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/circom2gnark/parser"
)

var (
	// ErrProvingFailure is returned when the witness calculation or the proof
	// generation fails. The backend message is kept in the wrapped error.
	ErrProvingFailure = fmt.Errorf("proving failure")
	// ErrProvingTimeout is returned when the context ends before the proof is
	// ready. It wraps ErrProvingFailure.
	ErrProvingTimeout = fmt.Errorf("%w: proving timed out", ErrProvingFailure)
)

// RawProof is the proof as produced by the proving system, before any
// formatting for the verifier.
type RawProof struct {
	Proof         *parser.CircomProof
	PublicSignals []string
}

// Backend generates proofs for the circuit variants.
type Backend interface {
	Prove(ctx context.Context, variant circuits.Variant, inputs *circuits.Inputs) (*RawProof, error)
}

// Rapidsnark is a Backend that computes the witness with the circom wasm
// witness calculator and the proof with rapidsnark.
type Rapidsnark struct {
	artifacts circuits.Registry
	// VerifyProofs enables the verification of every generated proof with
	// its verification key before returning it.
	VerifyProofs bool
}

// NewRapidsnark returns a rapidsnark backend using the artifacts of the
// registry. Artifacts must be loaded before proving.
func NewRapidsnark(artifacts circuits.Registry) *Rapidsnark {
	return &Rapidsnark{artifacts: artifacts}
}

type proveResult struct {
	proof *RawProof
	err   error
}

// Prove generates the proof of the inputs for the variant. The computation
// itself cannot be interrupted: when the context ends first ErrProvingTimeout
// is returned and the result is discarded once ready.
func (r *Rapidsnark) Prove(ctx context.Context, variant circuits.Variant, inputs *circuits.Inputs) (*RawProof, error) {
	artifacts, err := r.artifacts.Get(variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingFailure, err)
	}
	wasm, zkey := artifacts.CircuitDefinition(), artifacts.ProvingKey()
	if len(wasm) == 0 || len(zkey) == 0 {
		return nil, fmt.Errorf("%w: artifacts of %s not loaded", ErrProvingFailure, variant.Name())
	}
	inputsJSON, err := inputs.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: encode inputs: %v", ErrProvingFailure, err)
	}

	done := make(chan proveResult, 1)
	startTime := time.Now()
	go func() {
		proof, err := r.prove(variant, wasm, zkey, inputsJSON, artifacts.VerifyingKey())
		done <- proveResult{proof, err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		log.Debugw("proof generated", "circuit", variant.Name(), "took", time.Since(startTime).String())
		return res.proof, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s after %s: %v", ErrProvingTimeout, variant.Name(),
			time.Since(startTime).String(), ctx.Err())
	}
}

func (r *Rapidsnark) prove(variant circuits.Variant, wasm, zkey, inputsJSON, vkey []byte) (*RawProof, error) {
	parsedInputs, err := witness.ParseInputs(inputsJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: circom inputs: %v", ErrProvingFailure, err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(wasm, true)
	if err != nil {
		return nil, fmt.Errorf("%w: instance witness calculator: %v", ErrProvingFailure, err)
	}
	wtns, err := calc.CalculateWTNSBin(parsedInputs, true)
	if err != nil {
		return nil, fmt.Errorf("%w: calculate witness: %v", ErrProvingFailure, err)
	}
	proofJSON, pubSignalsJSON, err := rapidsnark.Groth16ProverRaw(zkey, wtns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingFailure, err)
	}
	proof, pubSignals, err := circuits.ParseCircomProof(proofJSON, pubSignalsJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvingFailure, err)
	}
	if r.VerifyProofs {
		if len(vkey) == 0 {
			return nil, fmt.Errorf("%w: verification key of %s not loaded", ErrProvingFailure, variant.Name())
		}
		if err := circuits.VerifyCircomProof(vkey, proof, pubSignals); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProvingFailure, err)
		}
	}
	return &RawProof{Proof: proof, PublicSignals: pubSignals}, nil
}
