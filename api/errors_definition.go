//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400 or 404 (or even 204), whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 4010, 4011 and 4013 exist, 4012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound       = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody          = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedFieldElement  = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed field element")}
	ErrLeafNotFound           = Error{Code: 40011, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("commitment not found in the tree")}
	ErrTreeFull               = Error{Code: 40012, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("tree capacity exceeded")}
	ErrTreeReadOnly           = Error{Code: 40013, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("tree is synced from the chain and cannot be written")}
	ErrUnknownVariant         = Error{Code: 40014, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown circuit variant")}
	ErrVKeyNotFound           = Error{Code: 40015, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("verification key not loaded")}
	ErrInvalidTransaction     = Error{Code: 40016, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid transaction")}
	ErrUnbalancedTransaction  = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unbalanced transaction")}
	ErrValueOutOfRange        = Error{Code: 40018, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("note value out of range")}
	ErrInputNotFound          = Error{Code: 40019, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("input note not found")}
	ErrNullifierSpent         = Error{Code: 40020, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("input note already spent")}
	ErrMalformedTransactionID = Error{Code: 40021, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed transaction ID")}
	ErrTransactionNotFound    = Error{Code: 40022, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("transaction not found")}
	ErrNullifierTrackingOff   = Error{Code: 40023, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("nullifier tracking is disabled")}
	ErrInvalidWithdrawal      = Error{Code: 40024, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid withdrawal")}
	ErrInvalidSwap            = Error{Code: 40025, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid swap")}
	ErrDuplicateNullifier     = Error{Code: 40026, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("duplicate nullifier")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrProvingFailed              = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("proof generation failed")}
	ErrProvingTimeout             = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("proof generation timed out")}
	ErrStorageFailure             = Error{Code: 50005, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("storage failure")}
)
