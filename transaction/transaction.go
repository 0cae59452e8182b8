// Package transaction assembles the circuit inputs of a pool transaction
// from the notes it spends and creates, proves it and formats the result
// for the pool contract.
//
// Every shape goes through the same assembly code, parameterized by the
// number of inputs and outputs of the shape. The optimized variants only add
// the compressed public input hash. The builder never mutates the tree: new
// commitments enter it once the contract emits them.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/vocdoni/aegis/circuits"
	"github.com/vocdoni/aegis/config"
	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/crypto/note"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/prover"
	"github.com/vocdoni/aegis/tree"
	"github.com/vocdoni/aegis/types"
)

var (
	// ErrArity is returned when the number of inputs or outputs does not
	// match the transaction shape.
	ErrArity = fmt.Errorf("wrong number of notes for the transaction shape")
	// ErrUnbalancedTransaction is returned when the input values do not add
	// up to the output values.
	ErrUnbalancedTransaction = fmt.Errorf("unbalanced transaction")
	// ErrInputNotFound is returned when a spent note commitment is not in
	// the tree. It also matches tree.ErrLeafNotFound.
	ErrInputNotFound = fmt.Errorf("input note not found")
	// ErrNullifierSpent is returned when an input note was already spent.
	ErrNullifierSpent = fmt.Errorf("input note already spent")
	// ErrDuplicateNullifier is returned when two inputs of a transaction
	// derive the same nullifier, such as dummy notes sharing a key.
	ErrDuplicateNullifier = fmt.Errorf("duplicate nullifier")
	// ErrInvalidWithdrawal is returned when the payout of a withdrawal does
	// not match its first output note.
	ErrInvalidWithdrawal = fmt.Errorf("invalid withdrawal")
	// ErrInvalidSwap is returned when the legs of a swap do not pair a
	// join-split payment with an ownership transfer.
	ErrInvalidSwap = fmt.Errorf("invalid swap")
)

// Input is a note to spend.
type Input struct {
	Value *big.Int
	Keys  *note.KeyPair
}

// Output is a note to create for the owner of PublicKey.
type Output struct {
	Value     *big.Int
	PublicKey *big.Int
}

// Request describes a transaction. Message is an arbitrary field element
// bound to the proof, such as the commitment expected from the other leg of
// a swap. Withdrawal is set when the first output is paid out by the pool
// instead of kept as a note.
type Request struct {
	Variant    circuits.Variant
	Message    *big.Int
	Inputs     []Input
	Outputs    []Output
	Withdrawal *Withdrawal
}

// SpentChecker reports whether a nullifier has already been published.
type SpentChecker interface {
	IsSpent(nullifier *big.Int) (bool, error)
}

// Builder builds and proves transactions. It is safe for concurrent use,
// including its setters.
type Builder struct {
	backend prover.Backend
	mu      sync.RWMutex
	schemes map[circuits.Shape]*note.Scheme
	spent   SpentChecker
	timeout time.Duration
}

// NewBuilder returns a builder that proves with backend. Join-split notes are
// bounded by note.DefaultMaxValue; ownership notes carry asset ids, which are
// only bounded by the field.
func NewBuilder(backend prover.Backend) *Builder {
	return &Builder{
		backend: backend,
		schemes: map[circuits.Shape]*note.Scheme{
			circuits.JoinSplit: note.DefaultScheme,
			circuits.Ownership: {},
		},
		timeout: config.DefaultProvingTimeout,
	}
}

// SetScheme overrides the commitment scheme of a shape.
func (b *Builder) SetScheme(shape circuits.Shape, scheme *note.Scheme) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schemes[shape] = scheme
	return b
}

// SetSpentChecker enables the rejection of already spent inputs before
// proving.
func (b *Builder) SetSpentChecker(spent SpentChecker) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent = spent
	return b
}

// SetTimeout sets the maximum proving time. Zero disables it.
func (b *Builder) SetTimeout(timeout time.Duration) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = timeout
	return b
}

// Scheme returns the commitment scheme of a shape.
func (b *Builder) Scheme(shape circuits.Shape) *note.Scheme {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.schemes[shape]; ok && s != nil {
		return s
	}
	return note.DefaultScheme
}

// Build assembles the circuit inputs of the request against the current
// state of the tree, proves them and returns the bundle to submit.
// Structural, range and balance errors are returned before the tree or the
// backend are touched.
func (b *Builder) Build(ctx context.Context, t tree.Viewer, req *Request) (*Bundle, error) {
	inputs, err := b.Assemble(t, req)
	if err != nil {
		return nil, err
	}
	if err := b.checkSpent(req, inputs); err != nil {
		return nil, err
	}
	return b.prove(ctx, req, inputs)
}

// Swap proves the two legs of an atomic exchange: payment is a join-split
// paying for the asset and transfer the ownership transfer of the asset.
// The message of each leg is the first output commitment of the other, so
// the pool only accepts them together. The messages of the requests are
// ignored. The returned bundle is the payment with the transfer as its
// counterpart.
func (b *Builder) Swap(ctx context.Context, t tree.Viewer, payment, transfer *Request) (*Bundle, error) {
	if payment == nil || transfer == nil {
		return nil, fmt.Errorf("%w: missing leg", ErrInvalidSwap)
	}
	if payment.Variant.Shape != circuits.JoinSplit || transfer.Variant.Shape != circuits.Ownership {
		return nil, fmt.Errorf("%w: expected a %s payment and an %s transfer, got %s and %s", ErrInvalidSwap,
			circuits.JoinSplit, circuits.Ownership, payment.Variant.Shape, transfer.Variant.Shape)
	}
	if payment.Variant.Optimized != transfer.Variant.Optimized {
		return nil, fmt.Errorf("%w: legs must both be optimized or plain", ErrInvalidSwap)
	}
	if payment.Withdrawal != nil || transfer.Withdrawal != nil {
		return nil, fmt.Errorf("%w: legs cannot be withdrawals", ErrInvalidSwap)
	}
	if err := b.validate(payment); err != nil {
		return nil, fmt.Errorf("payment: %w", err)
	}
	if err := b.validate(transfer); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	paid, err := b.Scheme(circuits.JoinSplit).Commit(payment.Outputs[0].Value, payment.Outputs[0].PublicKey)
	if err != nil {
		return nil, fmt.Errorf("payment: %w", err)
	}
	transferred, err := b.Scheme(circuits.Ownership).Commit(transfer.Outputs[0].Value, transfer.Outputs[0].PublicKey)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	payReq, transferReq := *payment, *transfer
	payReq.Message, transferReq.Message = transferred, paid

	payInputs, err := b.Assemble(t, &payReq)
	if err != nil {
		return nil, fmt.Errorf("payment: %w", err)
	}
	transferInputs, err := b.Assemble(t, &transferReq)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	for _, nf := range transferInputs.Nullifiers {
		for i, other := range payInputs.Nullifiers {
			if nf.MathBigInt().Cmp(other.MathBigInt()) == 0 {
				return nil, fmt.Errorf("%w: transfer input and payment input %d", ErrDuplicateNullifier, i)
			}
		}
	}
	if err := b.checkSpent(&payReq, payInputs); err != nil {
		return nil, fmt.Errorf("payment: %w", err)
	}
	if err := b.checkSpent(&transferReq, transferInputs); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	bundle, err := b.prove(ctx, &payReq, payInputs)
	if err != nil {
		return nil, fmt.Errorf("payment: %w", err)
	}
	if bundle.Counterpart, err = b.prove(ctx, &transferReq, transferInputs); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	return bundle, nil
}

// checkSpent rejects the request if any of its real inputs was already
// spent. It is a no-op without a spent checker.
func (b *Builder) checkSpent(req *Request, inputs *circuits.Inputs) error {
	b.mu.RLock()
	spentChecker := b.spent
	b.mu.RUnlock()
	if spentChecker == nil {
		return nil
	}
	for i, in := range req.Inputs {
		if in.Value.Sign() == 0 {
			continue
		}
		nullifier := inputs.Nullifiers[i].MathBigInt()
		spent, err := spentChecker.IsSpent(nullifier)
		if err != nil {
			return fmt.Errorf("cannot check nullifier of input %d: %w", i, err)
		}
		if spent {
			return fmt.Errorf("%w: input %d, nullifier %s", ErrNullifierSpent, i, nullifier)
		}
	}
	return nil
}

// prove runs the backend on the assembled inputs and packs the formatted
// proof with its public inputs.
func (b *Builder) prove(ctx context.Context, req *Request, inputs *circuits.Inputs) (*Bundle, error) {
	b.mu.RLock()
	timeout := b.timeout
	b.mu.RUnlock()
	proveCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		proveCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	startTime := time.Now()
	raw, err := b.backend.Prove(proveCtx, req.Variant, inputs)
	if err != nil {
		if !errors.Is(err, prover.ErrProvingFailure) {
			err = fmt.Errorf("%w: %w", prover.ErrProvingFailure, err)
		}
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: backend returned no proof", prover.ErrProvingFailure)
	}
	proof, err := FormatProof(raw.Proof)
	if err != nil {
		return nil, err
	}
	log.Infow("transaction proved",
		"circuit", req.Variant.Name(),
		"root", inputs.MerkleRoot.String(),
		"took", time.Since(startTime).String())
	return &Bundle{
		Variant:       req.Variant,
		Proof:         proof,
		Message:       inputs.Message,
		MerkleRoot:    inputs.MerkleRoot,
		Nullifiers:    inputs.Nullifiers,
		Commitments:   inputs.CommitmentsOut,
		Hash:          inputs.Hash,
		PublicSignals: raw.PublicSignals,
		Withdrawal:    req.Withdrawal,
	}, nil
}

// Assemble validates the request and returns its circuit inputs. The root
// and every membership path are read from a single snapshot of the tree.
func (b *Builder) Assemble(t tree.Viewer, req *Request) (*circuits.Inputs, error) {
	if err := b.validate(req); err != nil {
		return nil, err
	}
	scheme := b.Scheme(req.Variant.Shape)
	message := big.NewInt(0)
	if req.Message != nil {
		message = req.Message
	}

	var (
		root  *big.Int
		depth int
		paths = make([]*tree.Path, len(req.Inputs))
	)
	if err := t.View(func(r tree.Reader) error {
		root, depth = r.Root(), r.Depth()
		for i, in := range req.Inputs {
			if in.Value.Sign() == 0 {
				paths[i] = tree.ZeroPath(depth)
				continue
			}
			commitment, err := scheme.Commit(in.Value, in.Keys.PublicKey)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			path, err := r.GenerateProof(commitment)
			if err != nil {
				if errors.Is(err, tree.ErrLeafNotFound) {
					return fmt.Errorf("%w: input %d: %w", ErrInputNotFound, i, err)
				}
				return fmt.Errorf("input %d: %w", i, err)
			}
			paths[i] = path
		}
		return nil
	}); err != nil {
		return nil, err
	}

	inputs := &circuits.Inputs{
		Message:    types.NewBigInt(message),
		MerkleRoot: types.NewBigInt(root),
	}
	seen := make(map[string]int, len(req.Inputs))
	for i, in := range req.Inputs {
		nullifier, err := note.Nullify(in.Keys.PrivateKey, paths[i].IndicesBig())
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		if j, ok := seen[nullifier.String()]; ok {
			return nil, fmt.Errorf("%w: inputs %d and %d", ErrDuplicateNullifier, j, i)
		}
		seen[nullifier.String()] = i
		inputs.ValuesIn = append(inputs.ValuesIn, types.NewBigInt(in.Value))
		inputs.PrivateKeys = append(inputs.PrivateKeys, types.NewBigInt(in.Keys.PrivateKey))
		inputs.PathElements = append(inputs.PathElements, types.BigIntSlice(paths[i].Elements)...)
		inputs.PathIndices = append(inputs.PathIndices, types.NewBigInt(paths[i].IndicesBig()))
		inputs.Nullifiers = append(inputs.Nullifiers, types.NewBigInt(nullifier))
	}
	for j, out := range req.Outputs {
		commitment, err := scheme.Commit(out.Value, out.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", j, err)
		}
		inputs.RecipientPK = append(inputs.RecipientPK, types.NewBigInt(field.BigToFF(out.PublicKey)))
		inputs.ValuesOut = append(inputs.ValuesOut, types.NewBigInt(out.Value))
		inputs.CommitmentsOut = append(inputs.CommitmentsOut, types.NewBigInt(commitment))
	}
	if req.Variant.Optimized {
		inputs.Hash = types.NewBigInt(PublicInputsHash(message, root,
			types.MathBigInts(inputs.Nullifiers), types.MathBigInts(inputs.CommitmentsOut)))
	}
	return inputs, nil
}

// validate checks the shape, the ranges and the balance of the request.
func (b *Builder) validate(req *Request) error {
	shape := req.Variant.Shape
	if len(req.Inputs) != shape.Inputs() || len(req.Outputs) != shape.Outputs() {
		return fmt.Errorf("%w: %s expects %d inputs and %d outputs, got %d and %d", ErrArity,
			shape, shape.Inputs(), shape.Outputs(), len(req.Inputs), len(req.Outputs))
	}
	if req.Message != nil {
		if err := field.Check(req.Message); err != nil {
			return fmt.Errorf("message: %w", err)
		}
	}
	scheme := b.Scheme(shape)
	sumIn, sumOut := new(big.Int), new(big.Int)
	for i, in := range req.Inputs {
		if in.Keys == nil || in.Keys.PrivateKey == nil || in.Keys.PublicKey == nil {
			return fmt.Errorf("input %d: missing keys", i)
		}
		if in.Value == nil {
			return fmt.Errorf("input %d: %w: missing value", i, note.ErrValueOutOfRange)
		}
		if err := scheme.CheckValue(in.Value); err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		sumIn.Add(sumIn, in.Value)
	}
	for j, out := range req.Outputs {
		if out.PublicKey == nil {
			return fmt.Errorf("output %d: missing public key", j)
		}
		if out.Value == nil {
			return fmt.Errorf("output %d: %w: missing value", j, note.ErrValueOutOfRange)
		}
		if err := scheme.CheckValue(out.Value); err != nil {
			return fmt.Errorf("output %d: %w", j, err)
		}
		sumOut.Add(sumOut, out.Value)
	}
	if sumIn.Cmp(sumOut) != 0 {
		return fmt.Errorf("%w: inputs add up to %s, outputs to %s", ErrUnbalancedTransaction, sumIn, sumOut)
	}
	if req.Withdrawal != nil {
		return req.Withdrawal.check(shape, req.Outputs[0])
	}
	return nil
}

// PublicInputsHash compresses the public inputs of an optimized circuit:
// sha256(message, root, nullifiers..., commitments...) reduced into the
// field, every value encoded as 32 bytes big-endian.
func PublicInputsHash(message, root *big.Int, nullifiers, commitments []*big.Int) *big.Int {
	values := make([]*big.Int, 0, 2+len(nullifiers)+len(commitments))
	values = append(values, message, root)
	values = append(values, nullifiers...)
	values = append(values, commitments...)
	return field.Sha256(values...)
}
