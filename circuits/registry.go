package circuits

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vocdoni/aegis/config"
	"github.com/vocdoni/aegis/types"
)

// Registry holds the artifacts of every circuit variant.
type Registry map[Variant]*CircuitArtifacts

func sourceArtifact(buildDir string, src config.ArtifactSource) *Artifact {
	a := &Artifact{
		RemoteURL: src.RemoteURL,
		Hash:      types.HexStringToHexBytes(src.Hash),
	}
	if src.File != "" && buildDir != "" {
		a.LocalPath = filepath.Join(buildDir, src.File)
	}
	return a
}

// NewRegistry returns the artifacts of every variant as configured in
// config.CircuitArtifacts, reading local files from buildDir.
func NewRegistry(buildDir string) Registry {
	r := make(Registry, len(Variants))
	for _, v := range Variants {
		src, ok := config.CircuitArtifacts[v.Name()]
		if !ok {
			continue
		}
		r[v] = NewCircuitArtifacts(
			sourceArtifact(buildDir, src.Circuit),
			sourceArtifact(buildDir, src.ProvingKey),
			sourceArtifact(buildDir, src.VerificationKey),
		)
	}
	return r
}

// Get returns the artifacts of the variant.
func (r Registry) Get(v Variant) (*CircuitArtifacts, error) {
	a, ok := r[v]
	if !ok {
		return nil, fmt.Errorf("no artifacts for circuit %s", v.Name())
	}
	return a, nil
}

// LoadAll loads the artifacts of every variant.
func (r Registry) LoadAll(ctx context.Context) error {
	for _, v := range Variants {
		a, ok := r[v]
		if !ok {
			continue
		}
		if err := a.LoadAll(ctx); err != nil {
			return fmt.Errorf("circuit %s: %w", v.Name(), err)
		}
	}
	return nil
}
