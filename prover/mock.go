package prover

import (
	"context"
	"sync"

	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/circom2gnark/parser"
)

// MockBackend is a Backend that returns a fixed proof without proving. It is
// used in tests and by nodes running without circuit artifacts. The public
// signals are the public inputs of the circuit: the hash alone for the
// optimized variants, otherwise message, root, nullifiers and commitments.
type MockBackend struct {
	mu     sync.Mutex
	calls  int
	Err    error
	Proof  *parser.CircomProof
	Inputs []*circuits.Inputs
}

// NewMockBackend returns a mock backend answering with MockProof.
func NewMockBackend() *MockBackend {
	return &MockBackend{Proof: MockProof()}
}

// MockProof returns a structurally valid circom proof made of small values.
func MockProof() *parser.CircomProof {
	return &parser.CircomProof{
		PiA:      []string{"1", "2", "1"},
		PiB:      [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
		PiC:      []string{"7", "8", "1"},
		Protocol: "groth16",
	}
}

// Prove records the inputs and returns the configured proof or error.
func (m *MockBackend) Prove(ctx context.Context, variant circuits.Variant, inputs *circuits.Inputs) (*RawProof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.Inputs = append(m.Inputs, inputs)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrProvingTimeout
	}
	return &RawProof{Proof: m.Proof, PublicSignals: publicSignals(variant, inputs)}, nil
}

// Calls returns the number of proving requests received.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func publicSignals(variant circuits.Variant, in *circuits.Inputs) []string {
	if variant.Optimized && in.Hash != nil {
		return []string{in.Hash.String()}
	}
	signals := []string{in.Message.String(), in.MerkleRoot.String()}
	for _, n := range in.Nullifiers {
		signals = append(signals, n.String())
	}
	for _, c := range in.CommitmentsOut {
		signals = append(signals, c.String())
	}
	return signals
}
