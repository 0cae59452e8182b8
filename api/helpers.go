package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/aegis/crypto/field"
	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/types"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// urlFieldElement parses the URL parameter as a field element, decimal or 0x
// prefixed hexadecimal.
func urlFieldElement(r *http.Request, param string) (*big.Int, error) {
	s := chi.URLParam(r, param)
	if s == "" {
		return nil, fmt.Errorf("missing %s", param)
	}
	bi := new(types.BigInt)
	if err := bi.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	x := bi.MathBigInt()
	if err := field.Check(x); err != nil {
		return nil, err
	}
	return x, nil
}

// decodeJSONBody decodes the request body into v, rejecting unknown fields.
func decodeJSONBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
