package client

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/google/uuid"
	"github.com/vocdoni/aegis/api"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/circuits/vkey"
	"github.com/vocdoni/aegis/types"
)

// call performs the request and decodes a 200 response into out. Any other
// status is returned as an *Error.
func (c *HTTPclient) call(method string, body, out any, urlPath ...string) error {
	data, status, err := c.Request(method, body, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return responseError(status, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Tree returns the status of the commitment tree.
func (c *HTTPclient) Tree() (*api.TreeInfo, error) {
	info := &api.TreeInfo{}
	if err := c.call(HTTPGET, nil, info, api.TreeEndpoint); err != nil {
		return nil, err
	}
	return info, nil
}

// InsertLeaves appends commitments to the tree of a node without chain
// sync.
func (c *HTTPclient) InsertLeaves(leaves ...*big.Int) (*api.TreeInfo, error) {
	info := &api.TreeInfo{}
	req := &api.TreeLeaves{Leaves: types.BigIntSlice(leaves)}
	if err := c.call(HTTPPOST, req, info, api.TreeLeavesEndpoint); err != nil {
		return nil, err
	}
	return info, nil
}

// TreeProof returns the membership path of a commitment.
func (c *HTTPclient) TreeProof(commitment *big.Int) (*api.TreeProof, error) {
	proof := &api.TreeProof{}
	if err := c.call(HTTPGET, nil, proof, "tree", "proof", commitment.String()); err != nil {
		return nil, err
	}
	return proof, nil
}

// SubmitTransaction asks the node to build and prove a transaction.
func (c *HTTPclient) SubmitTransaction(tx *api.Transaction) (*api.TransactionResponse, error) {
	res := &api.TransactionResponse{}
	if err := c.call(HTTPPOST, tx, res, api.TransactionsEndpoint); err != nil {
		return nil, err
	}
	return res, nil
}

// SubmitSwap asks the node to build and prove both legs of a swap.
func (c *HTTPclient) SubmitSwap(swap *api.Swap) (*api.TransactionResponse, error) {
	res := &api.TransactionResponse{}
	if err := c.call(HTTPPOST, swap, res, api.SwapEndpoint); err != nil {
		return nil, err
	}
	return res, nil
}

// Transaction returns a queued proof bundle.
func (c *HTTPclient) Transaction(id uuid.UUID) (*api.TransactionResponse, error) {
	res := &api.TransactionResponse{}
	if err := c.call(HTTPGET, nil, res, "transactions", id.String()); err != nil {
		return nil, err
	}
	return res, nil
}

// VerificationKey returns the formatted verification key of a variant.
func (c *HTTPclient) VerificationKey(v circuits.Variant) (*vkey.VerificationKey, error) {
	vk := &vkey.VerificationKey{}
	if err := c.call(HTTPGET, nil, vk, "vkeys", v.Name()); err != nil {
		return nil, err
	}
	return vk, nil
}

// Nullifier returns the spent status of a nullifier.
func (c *HTTPclient) Nullifier(nullifier *big.Int) (*api.NullifierStatus, error) {
	res := &api.NullifierStatus{}
	if err := c.call(HTTPGET, nil, res, "nullifiers", nullifier.String()); err != nil {
		return nil, err
	}
	return res, nil
}
