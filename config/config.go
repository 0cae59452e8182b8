// Package config holds the defaults of the node and the circuit artifact
// sources.
package config

import "time"

const (
	// DefaultTreeDepth is the depth of the commitments tree.
	DefaultTreeDepth = 16
	// JoinSplitInputs and JoinSplitOutputs are the arities of the join-split
	// circuits.
	JoinSplitInputs  = 2
	JoinSplitOutputs = 2
	// OwnershipInputs and OwnershipOutputs are the arities of the ownership
	// circuits.
	OwnershipInputs  = 1
	OwnershipOutputs = 1
	// JoinSplitMaxValueBits is the width of the range check applied to note
	// values by the join-split circuits.
	JoinSplitMaxValueBits = 252

	// DefaultProvingTimeout bounds a single proof generation.
	DefaultProvingTimeout = 2 * time.Minute
	// DefaultArtifactsTimeout bounds the download of every circuit artifact.
	DefaultArtifactsTimeout = 20 * time.Minute
	// DefaultSyncInterval is the polling interval of the pool contract events.
	DefaultSyncInterval = 10 * time.Second
	// DefaultConfirmations is the number of blocks an event must be buried
	// under before it is mirrored in the local tree.
	DefaultConfirmations = 2
	// DefaultSyncBlockRange is the maximum number of blocks requested per
	// logs query.
	DefaultSyncBlockRange = 5000
	// DefaultRelayInterval is the polling interval of the bundle queue.
	DefaultRelayInterval = 5 * time.Second

	DefaultAPIHost  = "127.0.0.1"
	DefaultAPIPort  = 9090
	DefaultBuildDir = "build"
	DefaultDataDir  = ".aegis"
)
