package web3

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/util"
)

const (
	// DefaultGasLimit is the gas limit of the relayed transactions. Pairing
	// checks are expensive, so estimation is skipped.
	DefaultGasLimit = 10000000
	// DefaultReceiptTimeout bounds the wait for a relayed transaction to be
	// mined.
	DefaultReceiptTimeout = 2 * time.Minute
)

// ErrReverted is returned when a relayed transaction was mined but rejected
// by the pool contract.
var ErrReverted = errors.New("pool transaction reverted")

// RelayBackend is the chain access needed to send transactions and wait for
// their receipts. *ethclient.Client implements it.
type RelayBackend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Relayer submits proof bundles to the pool contract, signing with its own
// account.
type Relayer struct {
	backend        RelayBackend
	contract       *bind.BoundContract
	chainID        uint64
	privKey        *ecdsa.PrivateKey
	address        common.Address
	gasLimit       uint64
	receiptTimeout time.Duration
}

// NewRelayer returns a relayer of the pool at address signing with the hex
// encoded private key.
func NewRelayer(backend RelayBackend, chainID uint64, pool common.Address, hexPrivKey string) (*Relayer, error) {
	privKey, err := crypto.HexToECDSA(util.TrimHex(hexPrivKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Relayer{
		backend:  backend,
		contract: bind.NewBoundContract(pool, poolABI, backend, backend, backend),
		chainID:  chainID,
		privKey:  privKey,
		address:  crypto.PubkeyToAddress(privKey.PublicKey),
		gasLimit: DefaultGasLimit,

		receiptTimeout: DefaultReceiptTimeout,
	}, nil
}

// AccountAddress returns the address of the account used to sign transactions.
func (r *Relayer) AccountAddress() common.Address {
	return r.address
}

// SetGasLimit overrides DefaultGasLimit.
func (r *Relayer) SetGasLimit(gasLimit uint64) {
	r.gasLimit = gasLimit
}

// SetReceiptTimeout overrides DefaultReceiptTimeout.
func (r *Relayer) SetReceiptTimeout(d time.Duration) {
	r.receiptTimeout = d
}

// Submit sends the bundle to the pool contract, waits for it to be mined and
// returns the hash of the transaction. A transaction rejected by the pool
// returns its hash with an error wrapping ErrReverted.
func (r *Relayer) Submit(ctx context.Context, b *transaction.Bundle) (common.Hash, error) {
	method, args, err := BundleCall(b)
	if err != nil {
		return common.Hash{}, err
	}
	opts, err := r.authTransactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	opts.Context = ctx
	tx, err := r.contract.Transact(opts, method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send %s transaction: %w", method, err)
	}
	log.Debugw("bundle sent", "method", method, "txHash", tx.Hash().Hex(), "nonce", tx.Nonce())

	waitCtx, cancel := context.WithTimeout(ctx, r.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, r.backend, tx)
	if err != nil {
		return tx.Hash(), fmt.Errorf("%s transaction %s not mined: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash(), fmt.Errorf("%w: %s transaction %s in block %d", ErrReverted,
			method, tx.Hash().Hex(), receipt.BlockNumber)
	}
	log.Infow("bundle relayed", "method", method, "txHash", tx.Hash().Hex(),
		"block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return tx.Hash(), nil
}

// authTransactOpts creates the transact options signed by the relayer
// account, with the pending nonce, the suggested tip and the gas limit set.
func (r *Relayer) authTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(r.privKey, new(big.Int).SetUint64(r.chainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	log.Debugw("getting nonce", "address", r.address.Hex())
	nonce, err := r.backend.PendingNonceAt(ctx, r.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	if auth.GasTipCap, err = r.backend.SuggestGasTipCap(ctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	auth.GasLimit = r.gasLimit
	return auth, nil
}
