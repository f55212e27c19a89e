package admin

import (
	"errors"
	"net/http"

	"github.com/galemark/ratelimitgw/ratelimit"
)

func writeInvalidArgument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", message)
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	writeInvalidArgument(w, "could not decode request body: "+err.Error())
}

// writeCoreError maps ratelimit package sentinel errors to HTTP status
// codes and the standard error envelope.
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	case errors.Is(err, ratelimit.ErrRuleNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, ratelimit.ErrMalformedPayload):
		WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, ratelimit.ErrStoreUnavailable), errors.Is(err, ratelimit.ErrRuleRefreshFailed):
		WriteError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}
