package config

// ArtifactSource describes where the artifacts of one circuit variant are
// found: a file name inside the local build directory and, optionally, a
// remote URL with the expected sha256 of the content.
type ArtifactSource struct {
	File      string
	RemoteURL string
	Hash      string
}

// CircuitSources groups the three artifacts of a circuit variant.
type CircuitSources struct {
	Circuit         ArtifactSource
	ProvingKey      ArtifactSource
	VerificationKey ArtifactSource
}

// Circuit names, as produced by the circuits build (circom + snarkjs).
const (
	JoinSplitCircuit          = "JoinSplit"
	JoinSplitOptimizedCircuit = "JoinSplitOptimized"
	OwnershipCircuit          = "Ownership"
	OwnershipOptimizedCircuit = "OwnershipOptimized"
)

// CircuitArtifacts holds the artifact sources per circuit name. The remote
// URL and hash of each artifact can be set per deployment, when empty the
// artifacts are read from the build directory.
var CircuitArtifacts = map[string]CircuitSources{
	JoinSplitCircuit:          localSources(JoinSplitCircuit),
	JoinSplitOptimizedCircuit: localSources(JoinSplitOptimizedCircuit),
	OwnershipCircuit:          localSources(OwnershipCircuit),
	OwnershipOptimizedCircuit: localSources(OwnershipOptimizedCircuit),
}

func localSources(name string) CircuitSources {
	return CircuitSources{
		Circuit:         ArtifactSource{File: name + ".wasm"},
		ProvingKey:      ArtifactSource{File: name + ".zkey"},
		VerificationKey: ArtifactSource{File: name + ".json"},
	}
}
