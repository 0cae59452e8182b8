package api

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/crypto/note"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/prover"
	"github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/transaction"
)

// newTransaction builds and proves a transaction against the current tree
// and queues the resulting bundle for relaying.
// POST /transactions
func (a *API) newTransaction(w http.ResponseWriter, r *http.Request) {
	tx := &Transaction{}
	if err := decodeJSONBody(r, tx); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	req, err := transactionRequest(tx)
	if err != nil {
		buildError(err).Write(w)
		return
	}
	bundle, err := a.builder.Build(r.Context(), a.tree, req)
	if err != nil {
		buildError(err).Write(w)
		return
	}
	id, err := a.storage.PushBundle(bundle)
	if err != nil {
		ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	log.Infow("transaction queued", "id", id.String(), "circuit", req.Variant.Name())
	httpWriteJSON(w, &TransactionResponse{
		ID:     id,
		Status: storage.BundlePending,
		Bundle: bundle,
	})
}

// newSwap builds and proves both legs of a swap and queues them as a single
// bundle.
// POST /transactions/swap
func (a *API) newSwap(w http.ResponseWriter, r *http.Request) {
	swap := &Swap{}
	if err := decodeJSONBody(r, swap); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if swap.Payment == nil || swap.Transfer == nil {
		ErrInvalidSwap.With("missing leg").Write(w)
		return
	}
	payment, err := transactionRequest(swap.Payment)
	if err != nil {
		buildError(fmt.Errorf("payment: %w", err)).Write(w)
		return
	}
	transfer, err := transactionRequest(swap.Transfer)
	if err != nil {
		buildError(fmt.Errorf("transfer: %w", err)).Write(w)
		return
	}
	bundle, err := a.builder.Swap(r.Context(), a.tree, payment, transfer)
	if err != nil {
		buildError(err).Write(w)
		return
	}
	id, err := a.storage.PushBundle(bundle)
	if err != nil {
		ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	log.Infow("swap queued", "id", id.String(), "payment", payment.Variant.Name(), "transfer", transfer.Variant.Name())
	httpWriteJSON(w, &TransactionResponse{
		ID:     id,
		Status: storage.BundlePending,
		Bundle: bundle,
	})
}

// transaction returns a queued proof bundle and its relay status.
// GET /transactions/{id}
func (a *API) transaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, TransactionURLParam))
	if err != nil {
		ErrMalformedTransactionID.WithErr(err).Write(w)
		return
	}
	entry, err := a.storage.Bundle(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrTransactionNotFound.Write(w)
			return
		}
		ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &TransactionResponse{
		ID:     entry.ID,
		Status: entry.Status,
		TxHash: entry.TxHash,
		Error:  entry.Error,
		Bundle: entry.Bundle,
	})
}

// transactionRequest converts the API transaction into a builder request.
// Missing inputs are padded with zero value notes of fresh key pairs.
func transactionRequest(tx *Transaction) (*transaction.Request, error) {
	inputs := make([]transaction.Input, 0, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if in == nil || in.Value == nil {
			return nil, fmt.Errorf("%w: input %d: missing value", note.ErrValueOutOfRange, i)
		}
		if in.PrivateKey == nil {
			return nil, fmt.Errorf("input %d: missing private key", i)
		}
		keys, err := note.KeyPairFromPrivate(in.PrivateKey.MathBigInt())
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		inputs = append(inputs, transaction.Input{Value: in.Value.MathBigInt(), Keys: keys})
	}
	if len(inputs) < tx.Variant.Shape.Inputs() {
		var err error
		if inputs, err = transaction.PadInputs(tx.Variant.Shape, inputs); err != nil {
			return nil, err
		}
	}

	outputs := make([]transaction.Output, 0, len(tx.Outputs))
	for j, out := range tx.Outputs {
		if out == nil || out.Value == nil || out.PublicKey == nil {
			return nil, fmt.Errorf("output %d: missing value or public key", j)
		}
		outputs = append(outputs, transaction.Output{
			Value:     out.Value.MathBigInt(),
			PublicKey: out.PublicKey.MathBigInt(),
		})
	}

	if tx.Recipient != nil && (tx.Token != nil || tx.TokenID != nil) {
		if tx.Token == nil || tx.TokenID == nil {
			return nil, fmt.Errorf("%w: an NFT withdrawal takes a token and a token id", transaction.ErrInvalidWithdrawal)
		}
		if len(inputs) != 1 || len(outputs) != 0 {
			return nil, fmt.Errorf("%w: an NFT withdrawal takes one input and no outputs", transaction.ErrArity)
		}
		return transaction.WithdrawNFTRequest(tx.Variant, inputs[0], tx.TokenID.MathBigInt(), *tx.Token, *tx.Recipient)
	}
	if tx.Recipient != nil {
		if tx.WithdrawValue == nil {
			return nil, fmt.Errorf("%w: missing withdraw value", note.ErrValueOutOfRange)
		}
		var change *transaction.Output
		switch {
		case len(outputs) == 1:
			change = &outputs[0]
		case len(outputs) > 1:
			return nil, fmt.Errorf("%w: a withdrawal takes at most one change output", transaction.ErrArity)
		}
		return transaction.WithdrawRequest(tx.Variant, inputs, *tx.Recipient,
			tx.WithdrawValue.MathBigInt(), change), nil
	}

	var message *big.Int
	if tx.Message != nil {
		message = tx.Message.MathBigInt()
	}
	return &transaction.Request{
		Variant: tx.Variant,
		Message: message,
		Inputs:  inputs,
		Outputs: outputs,
	}, nil
}

// buildError maps the transaction builder errors to API errors.
func buildError(err error) Error {
	switch {
	case errors.Is(err, transaction.ErrUnbalancedTransaction):
		return ErrUnbalancedTransaction.WithErr(err)
	case errors.Is(err, note.ErrValueOutOfRange):
		return ErrValueOutOfRange.WithErr(err)
	case errors.Is(err, transaction.ErrInputNotFound):
		return ErrInputNotFound.WithErr(err)
	case errors.Is(err, transaction.ErrNullifierSpent):
		return ErrNullifierSpent.WithErr(err)
	case errors.Is(err, transaction.ErrDuplicateNullifier):
		return ErrDuplicateNullifier.WithErr(err)
	case errors.Is(err, transaction.ErrInvalidWithdrawal):
		return ErrInvalidWithdrawal.WithErr(err)
	case errors.Is(err, transaction.ErrInvalidSwap):
		return ErrInvalidSwap.WithErr(err)
	case errors.Is(err, prover.ErrProvingTimeout):
		return ErrProvingTimeout.WithErr(err)
	case errors.Is(err, prover.ErrProvingFailure):
		return ErrProvingFailed.WithErr(err)
	case errors.Is(err, field.ErrNotInField):
		return ErrMalformedFieldElement.WithErr(err)
	default:
		return ErrInvalidTransaction.WithErr(err)
	}
}
