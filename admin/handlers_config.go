package admin

import (
	"net/http"

	"github.com/galemark/ratelimitgw/ratelimit"
)

// handleListConfig returns a handler for GET /api/v1/config.
func handleListConfig(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := p.Store().ListConfig(r.Context())
		if err != nil {
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg)
	}
}

// handleGetConfig returns a handler for GET /api/v1/config/{key}.
func handleGetConfig(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		value, ok, err := p.Store().GetConfig(r.Context(), key)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		if !ok {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "config key not set: "+key)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
	}
}

type setConfigRequest struct {
	Value string `json:"value"`
}

// handleSetConfig returns a handler for POST /api/v1/config/{key}.
func handleSetConfig(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")

		var req setConfigRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := p.Store().SetConfig(r.Context(), key, req.Value); err != nil {
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
	}
}
