package api

import (
	"errors"
	"net/http"

	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/tree"
	"github.com/vocdoni/aegis/types"
)

// treeInfo returns the depth, size and root of the commitment tree.
// GET /tree
func (a *API) treeInfo(w http.ResponseWriter, r *http.Request) {
	info := &TreeInfo{Capacity: a.tree.Capacity()}
	if err := a.tree.View(func(t tree.Reader) error {
		info.Depth = t.Depth()
		info.Size = t.Size()
		info.Root = types.NewBigInt(t.Root())
		return nil
	}); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, info)
}

// insertLeaves appends commitments to the tree and returns its new state.
// Only available when the tree is not synced from the chain.
// POST /tree/leaves
func (a *API) insertLeaves(w http.ResponseWriter, r *http.Request) {
	if !a.writableTree {
		ErrTreeReadOnly.Write(w)
		return
	}
	req := &TreeLeaves{}
	if err := decodeJSONBody(r, req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(req.Leaves) == 0 {
		ErrMalformedBody.With("no leaves provided").Write(w)
		return
	}
	for i, leaf := range req.Leaves {
		if leaf == nil {
			ErrMalformedFieldElement.Withf("leaf %d is null", i).Write(w)
			return
		}
	}
	root, err := a.tree.InsertLeaves(types.MathBigInts(req.Leaves))
	if err != nil {
		switch {
		case errors.Is(err, tree.ErrCapacityExceeded):
			ErrTreeFull.WithErr(err).Write(w)
		case errors.Is(err, field.ErrNotInField):
			ErrMalformedFieldElement.WithErr(err).Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	log.Infow("tree leaves inserted from api", "count", len(req.Leaves), "root", root.String())
	httpWriteJSON(w, &TreeInfo{
		Depth:    a.tree.Depth(),
		Size:     a.tree.Size(),
		Capacity: a.tree.Capacity(),
		Root:     types.NewBigInt(root),
	})
}

// treeProof returns the membership path of a commitment together with the
// root it proves against.
// GET /tree/proof/{commitment}
func (a *API) treeProof(w http.ResponseWriter, r *http.Request) {
	commitment, err := urlFieldElement(r, CommitmentURLParam)
	if err != nil {
		ErrMalformedFieldElement.WithErr(err).Write(w)
		return
	}
	res := &TreeProof{Commitment: types.NewBigInt(commitment)}
	if err := a.tree.View(func(t tree.Reader) error {
		path, err := t.GenerateProof(commitment)
		if err != nil {
			return err
		}
		res.Root = types.NewBigInt(t.Root())
		res.PathIndices = path.Indices
		res.PathElements = types.BigIntSlice(path.Elements)
		return nil
	}); err != nil {
		if errors.Is(err, tree.ErrLeafNotFound) {
			ErrLeafNotFound.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, res)
}
