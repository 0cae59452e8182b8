package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/types"
)

// TreeInfo is the response to a tree status request.
type TreeInfo struct {
	Depth    int           `json:"depth"`
	Size     uint64        `json:"size"`
	Capacity uint64        `json:"capacity"`
	Root     *types.BigInt `json:"root"`
}

// TreeLeaves is the list of commitments to append to the tree.
type TreeLeaves struct {
	Leaves []*types.BigInt `json:"leaves"`
}

// TreeProof is the membership path of a commitment. The root and the path
// belong to the same tree state.
type TreeProof struct {
	Commitment   *types.BigInt   `json:"commitment"`
	Root         *types.BigInt   `json:"root"`
	PathIndices  uint64          `json:"pathIndices"`
	PathElements []*types.BigInt `json:"pathElements"`
}

// NoteInput is a note to spend. Missing inputs are filled with dummy notes.
type NoteInput struct {
	Value      *types.BigInt `json:"value"`
	PrivateKey *types.BigInt `json:"privateKey"`
}

// NoteOutput is a note to create.
type NoteOutput struct {
	Value     *types.BigInt `json:"value"`
	PublicKey *types.BigInt `json:"publicKey"`
}

// Transaction is a request to build and prove a pool transaction. When
// Recipient is set the transaction is a withdrawal to that address: of
// WithdrawValue for join-split variants, with Outputs holding at most the
// change note, or of the TokenID of the Token contract for ownership
// variants, with no outputs.
type Transaction struct {
	Variant       circuits.Variant `json:"variant"`
	Message       *types.BigInt    `json:"message,omitempty"`
	Inputs        []*NoteInput     `json:"inputs"`
	Outputs       []*NoteOutput    `json:"outputs,omitempty"`
	Recipient     *common.Address  `json:"recipient,omitempty"`
	WithdrawValue *types.BigInt    `json:"withdrawValue,omitempty"`
	Token         *common.Address  `json:"token,omitempty"`
	TokenID       *types.BigInt    `json:"tokenId,omitempty"`
}

// Swap is a request to build and prove both legs of an exchange: a
// join-split Payment for the asset moved by the ownership Transfer. Their
// messages are set by the builder.
type Swap struct {
	Payment  *Transaction `json:"payment"`
	Transfer *Transaction `json:"transfer"`
}

// TransactionResponse is the queued proof bundle of a transaction.
type TransactionResponse struct {
	ID     uuid.UUID            `json:"id"`
	Status storage.BundleStatus `json:"status"`
	TxHash types.HexBytes       `json:"txHash,omitempty"`
	Error  string               `json:"error,omitempty"`
	Bundle *transaction.Bundle  `json:"bundle"`
}

// NullifierStatus is the response to a nullifier request.
type NullifierStatus struct {
	Nullifier *types.BigInt `json:"nullifier"`
	Spent     bool          `json:"spent"`
	Block     uint64        `json:"block,omitempty"`
}
