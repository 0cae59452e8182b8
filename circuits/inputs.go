package circuits

import (
	"encoding/json"

	"github.com/vocdoni/aegis/types"
)

// Inputs are the witness inputs of a transaction circuit. Path elements are
// flattened input by input, leaf level first. Path indices hold the leaf
// position of each input, bit i being the side at level i. Hash is only set
// for optimized variants.
type Inputs struct {
	Message        *types.BigInt   `json:"message"`
	ValuesIn       []*types.BigInt `json:"valuesIn"`
	PrivateKeys    []*types.BigInt `json:"privateKeys"`
	MerkleRoot     *types.BigInt   `json:"merkleRoot"`
	PathElements   []*types.BigInt `json:"pathElements"`
	PathIndices    []*types.BigInt `json:"pathIndices"`
	Nullifiers     []*types.BigInt `json:"nullifiers"`
	RecipientPK    []*types.BigInt `json:"recipientPK"`
	ValuesOut      []*types.BigInt `json:"valuesOut"`
	CommitmentsOut []*types.BigInt `json:"commitmentsOut"`
	Hash           *types.BigInt   `json:"hash,omitempty"`
}

// Marshal encodes the inputs as the JSON document read by the witness
// calculator.
func (i *Inputs) Marshal() ([]byte, error) {
	return json.Marshal(i)
}
