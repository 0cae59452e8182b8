package api

import (
	"net/http"

	"github.com/vocdoni/aegis/types"
)

// nullifier returns whether a nullifier has been published on chain and the
// block where it was.
// GET /nullifiers/{nullifier}
func (a *API) nullifier(w http.ResponseWriter, r *http.Request) {
	if a.spent == nil {
		ErrNullifierTrackingOff.Write(w)
		return
	}
	nullifier, err := urlFieldElement(r, NullifierURLParam)
	if err != nil {
		ErrMalformedFieldElement.WithErr(err).Write(w)
		return
	}
	block, spent, err := a.spent.SpentAt(nullifier)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &NullifierStatus{
		Nullifier: types.NewBigInt(nullifier),
		Spent:     spent,
		Block:     block,
	})
}
