package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"

	// TreeEndpoint is the endpoint to get the depth, size and root of the
	// commitment tree
	TreeEndpoint = "/tree"
	// TreeLeavesEndpoint is the endpoint to append commitments to the tree
	// when the node runs without chain sync
	TreeLeavesEndpoint = "/tree/leaves"
	// TreeProofEndpoint is the endpoint to get the membership path of a
	// commitment
	CommitmentURLParam = "commitment"
	TreeProofEndpoint  = "/tree/proof/{" + CommitmentURLParam + "}"

	// TransactionsEndpoint is the endpoint for building and proving a new
	// transaction
	TransactionsEndpoint = "/transactions"
	// TransactionEndpoint is the endpoint to get a queued proof bundle
	TransactionURLParam = "id"
	TransactionEndpoint = "/transactions/{" + TransactionURLParam + "}"
	// SwapEndpoint is the endpoint for building and proving both legs of a
	// swap
	SwapEndpoint = "/transactions/swap"

	// VKeyEndpoint is the endpoint to get the formatted verification key of
	// a circuit variant
	VariantURLParam = "variant"
	VKeyEndpoint    = "/vkeys/{" + VariantURLParam + "}"

	// NullifierEndpoint is the endpoint to check if a nullifier is spent
	NullifierURLParam = "nullifier"
	NullifierEndpoint = "/nullifiers/{" + NullifierURLParam + "}"
)
