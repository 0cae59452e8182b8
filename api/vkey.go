package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/aegis/circuits"
)

// verificationKey returns the verification key of a circuit variant in the
// layout of the on-chain verifier.
// GET /vkeys/{variant}
func (a *API) verificationKey(w http.ResponseWriter, r *http.Request) {
	variant, err := circuits.ParseVariant(chi.URLParam(r, VariantURLParam))
	if err != nil {
		ErrUnknownVariant.WithErr(err).Write(w)
		return
	}
	if a.keys == nil {
		ErrVKeyNotFound.With(variant.Name()).Write(w)
		return
	}
	vk, ok := a.keys.Get(variant)
	if !ok {
		ErrVKeyNotFound.With(variant.Name()).Write(w)
		return
	}
	httpWriteJSON(w, vk)
}
