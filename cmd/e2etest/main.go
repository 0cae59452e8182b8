package main

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/aegis/api"
	"github.com/vocdoni/aegis/api/client"
	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/crypto/note"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/nullifiers"
	"github.com/vocdoni/aegis/prover"
	"github.com/vocdoni/aegis/service"
	"github.com/vocdoni/aegis/storage"
	"github.com/vocdoni/aegis/transaction"
	"github.com/vocdoni/aegis/tree"
	"github.com/vocdoni/aegis/types"
	"github.com/vocdoni/aegis/web3"
	"github.com/vocdoni/arbo/memdb"
)

var poolAddress = common.HexToAddress("0x00000000000000000000000000000000000a6e15")

// chainSubmitter relays bundles to the mock chain as if the pool contract
// accepted them: the nullifiers are published, the commitments appended and
// the withdrawals paid out.
type chainSubmitter struct {
	mu        sync.Mutex
	chain     *web3.MockChain
	block     uint64
	leafIndex uint64
	payouts   []*transaction.Withdrawal
}

func (cs *chainSubmitter) Submit(_ context.Context, b *transaction.Bundle) (common.Hash, error) {
	if b.Proof != nil {
		method, _, err := web3.BundleCall(b)
		if err != nil {
			return common.Hash{}, err
		}
		log.Debugw("pool call", "method", method)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	commitments := b.AppendedCommitments()
	cs.block++
	txHash, err := cs.chain.AddTx(poolAddress, cs.block, cs.leafIndex, commitments, b.SpentNullifiers())
	if err != nil {
		return common.Hash{}, err
	}
	cs.leafIndex += uint64(len(commitments))
	for _, leg := range b.Legs() {
		if leg.Withdrawal != nil {
			cs.payouts = append(cs.payouts, leg.Withdrawal)
		}
	}
	return txHash, nil
}

func (cs *chainSubmitter) paidOut() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.payouts)
}

func (cs *chainSubmitter) deposit(commitment *big.Int) error {
	_, err := cs.Submit(context.Background(), &transaction.Bundle{
		Commitments: []*types.BigInt{types.NewBigInt(commitment)},
	})
	return err
}

func main() {
	apiPort := flag.Int("port", 9091, "API port of the test node")
	depth := flag.Int("depth", 8, "depth of the commitment tree")
	variantName := flag.String("variant", circuits.Variants[0].Name(), "circuit variant of the transfer")
	optimizedFlag := flag.Bool("optimized", false, "use the optimized variant of the circuit")
	flag.Parse()
	log.Init("debug", "stdout", nil)

	variant, err := circuits.ParseVariant(*variantName)
	if err != nil {
		log.Fatal(err)
	}
	variant.Optimized = variant.Optimized || *optimizedFlag

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// node components, everything in memory and a mock chain
	stg := storage.New(memdb.New())
	defer stg.Close()
	commitments, err := tree.New(*depth)
	if err != nil {
		log.Fatal(err)
	}
	spent, err := nullifiers.New(memdb.New())
	if err != nil {
		log.Fatal(err)
	}
	backend := prover.NewMockBackend()
	builder := transaction.NewBuilder(backend).SetSpentChecker(spent)

	chain := web3.NewMockChain()
	submitter := &chainSubmitter{chain: chain}
	watcher := web3.NewPoolWatcher(chain, poolAddress, 0)
	watcher.SetConfirmations(0)
	treeSync := service.NewTreeSync(watcher, commitments, spent, stg, 200*time.Millisecond)
	if err := treeSync.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer treeSync.Stop()
	relayer := service.NewRelayer(stg, submitter, 200*time.Millisecond)
	if err := relayer.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer relayer.Stop()

	apiService := service.NewAPI(&api.APIConfig{
		Host:    "127.0.0.1",
		Port:    *apiPort,
		Storage: stg,
		Tree:    commitments,
		Builder: builder,
		Spent:   spent,
	})
	if err := apiService.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer apiService.Stop()

	cli, err := client.New(fmt.Sprintf("http://127.0.0.1:%d", *apiPort))
	if err != nil {
		log.Fatal(err)
	}

	// alice deposits a note
	alice, err := note.NewKeyPair()
	if err != nil {
		log.Fatal(err)
	}
	bob, err := note.NewKeyPair()
	if err != nil {
		log.Fatal(err)
	}
	deposited := big.NewInt(100)
	cm, err := builder.Deposit(variant.Shape, deposited, alice.PublicKey)
	if err != nil {
		log.Fatal(err)
	}
	if err := submitter.deposit(cm); err != nil {
		log.Fatal(err)
	}
	waitTreeSize(cli, 1)
	proof, err := cli.TreeProof(cm)
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("deposit synced", "commitment", cm.String(), "root", proof.Root.String(),
		"pathIndices", proof.PathIndices)

	// alice pays bob, keeping the change for a join-split
	tx := &api.Transaction{
		Variant: variant,
		Inputs:  []*api.NoteInput{{Value: types.NewBigInt(deposited), PrivateKey: types.NewBigInt(alice.PrivateKey)}},
	}
	if variant.Shape == circuits.Ownership {
		tx.Outputs = []*api.NoteOutput{{Value: types.NewBigInt(deposited), PublicKey: types.NewBigInt(bob.PublicKey)}}
	} else {
		tx.Outputs = []*api.NoteOutput{
			{Value: types.NewInt(60), PublicKey: types.NewBigInt(bob.PublicKey)},
			{Value: types.NewInt(40), PublicKey: types.NewBigInt(alice.PublicKey)},
		}
	}
	queued, err := cli.SubmitTransaction(tx)
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("transaction queued", "id", queued.ID.String(), "variant", variant.Name(),
		"nullifiers", len(queued.Bundle.Nullifiers), "commitments", len(queued.Bundle.Commitments))

	relayed := waitRelayed(cli, queued.ID)
	log.Infow("transaction relayed", "id", relayed.ID.String(), "txHash", relayed.TxHash.String())

	waitTreeSize(cli, 1+uint64(len(queued.Bundle.Commitments)))
	for _, nf := range queued.Bundle.Nullifiers {
		status, err := cli.Nullifier(nf.MathBigInt())
		if err != nil {
			log.Fatal(err)
		}
		if !status.Spent {
			log.Fatalf("nullifier %s not marked as spent", nf.String())
		}
	}

	// spending the same note again must be rejected before proving
	calls := backend.Calls()
	if _, err := cli.SubmitTransaction(tx); !client.IsCode(err, api.ErrNullifierSpent) {
		log.Fatalf("double spend not rejected as spent: %v", err)
	}
	log.Info("double spend rejected")
	if backend.Calls() != calls {
		log.Fatal("double spend reached the prover")
	}

	swapAndWithdraw(cli, builder, submitter, variant.Optimized)

	if err := treeSync.Err(); err != nil {
		log.Fatal(err)
	}
	info, err := cli.Tree()
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("e2e test finished", "leaves", info.Size, "root", info.Root.String())
}

// swapAndWithdraw has dave buy carol's NFT in a swap, then both withdraw
// what they received.
func swapAndWithdraw(cli *client.HTTPclient, builder *transaction.Builder, submitter *chainSubmitter, optimized bool) {
	jsVariant := circuits.Variant{Shape: circuits.JoinSplit, Optimized: optimized}
	ownVariant := circuits.Variant{Shape: circuits.Ownership, Optimized: optimized}
	carol, err := note.NewKeyPair()
	if err != nil {
		log.Fatal(err)
	}
	dave, err := note.NewKeyPair()
	if err != nil {
		log.Fatal(err)
	}
	token := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	tokenID := big.NewInt(7)
	nft, err := field.AssetID(tokenID, token)
	if err != nil {
		log.Fatal(err)
	}
	price := big.NewInt(50)

	info, err := cli.Tree()
	if err != nil {
		log.Fatal(err)
	}
	nftCm, err := builder.Deposit(circuits.Ownership, nft, carol.PublicKey)
	if err != nil {
		log.Fatal(err)
	}
	fundsCm, err := builder.Deposit(circuits.JoinSplit, price, dave.PublicKey)
	if err != nil {
		log.Fatal(err)
	}
	for _, cm := range []*big.Int{nftCm, fundsCm} {
		if err := submitter.deposit(cm); err != nil {
			log.Fatal(err)
		}
	}
	size := info.Size + 2
	waitTreeSize(cli, size)

	queued, err := cli.SubmitSwap(&api.Swap{
		Payment: &api.Transaction{
			Variant: jsVariant,
			Inputs:  []*api.NoteInput{{Value: types.NewBigInt(price), PrivateKey: types.NewBigInt(dave.PrivateKey)}},
			Outputs: []*api.NoteOutput{
				{Value: types.NewBigInt(price), PublicKey: types.NewBigInt(carol.PublicKey)},
				{Value: types.NewInt(0), PublicKey: types.NewBigInt(dave.PublicKey)},
			},
		},
		Transfer: &api.Transaction{
			Variant: ownVariant,
			Inputs:  []*api.NoteInput{{Value: types.NewBigInt(nft), PrivateKey: types.NewBigInt(carol.PrivateKey)}},
			Outputs: []*api.NoteOutput{{Value: types.NewBigInt(nft), PublicKey: types.NewBigInt(dave.PublicKey)}},
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	waitRelayed(cli, queued.ID)
	size += uint64(len(queued.Bundle.AppendedCommitments()))
	waitTreeSize(cli, size)
	log.Infow("swap relayed", "id", queued.ID.String(), "leaves", size)

	recipient := common.HexToAddress("0x000000000000000000000000000000000000ca01")
	queued, err = cli.SubmitTransaction(&api.Transaction{
		Variant:       jsVariant,
		Inputs:        []*api.NoteInput{{Value: types.NewBigInt(price), PrivateKey: types.NewBigInt(carol.PrivateKey)}},
		Recipient:     &recipient,
		WithdrawValue: types.NewBigInt(price),
	})
	if err != nil {
		log.Fatal(err)
	}
	waitRelayed(cli, queued.ID)
	size += uint64(len(queued.Bundle.AppendedCommitments()))
	waitTreeSize(cli, size)

	recipient = common.HexToAddress("0x000000000000000000000000000000000000da7e")
	queued, err = cli.SubmitTransaction(&api.Transaction{
		Variant:   ownVariant,
		Inputs:    []*api.NoteInput{{Value: types.NewBigInt(nft), PrivateKey: types.NewBigInt(dave.PrivateKey)}},
		Recipient: &recipient,
		Token:     &token,
		TokenID:   types.NewBigInt(tokenID),
	})
	if err != nil {
		log.Fatal(err)
	}
	waitRelayed(cli, queued.ID)
	if n := submitter.paidOut(); n != 2 {
		log.Fatalf("%d withdrawals paid out, expected 2", n)
	}
	log.Infow("withdrawals paid out", "funds", price.String(), "tokenId", tokenID.String())
}

func waitTreeSize(cli *client.HTTPclient, size uint64) {
	for i := 0; ; i++ {
		info, err := cli.Tree()
		if err != nil {
			log.Fatal(err)
		}
		if info.Size >= size {
			return
		}
		if i == 50 {
			log.Fatalf("tree size %d after %d polls, expected %d", info.Size, i, size)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func waitRelayed(cli *client.HTTPclient, id uuid.UUID) *api.TransactionResponse {
	for i := 0; ; i++ {
		res, err := cli.Transaction(id)
		if err != nil {
			log.Fatal(err)
		}
		if res.Status == storage.BundleDone {
			return res
		}
		if i == 50 {
			log.Fatalf("transaction %s still %s", id, res.Status)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
