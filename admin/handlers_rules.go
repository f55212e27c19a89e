package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/galemark/ratelimitgw/ratelimit"
)

// handleListRules returns a handler for GET /api/v1/rules — every
// persisted rule, active or not.
func handleListRules(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := p.Store().ListRules(r.Context())
		if err != nil {
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rules)
	}
}

// handleListActiveRules returns a handler for GET /api/v1/rules/active —
// the rule cache's current in-memory match set, in match-priority order.
func handleListActiveRules(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, p.RuleCache().Snapshot())
	}
}

// handleGetRule returns a handler for GET /api/v1/rules/{id}.
func handleGetRule(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		rule, err := p.Store().GetRule(r.Context(), id)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rule)
	}
}

// handleCreateRule returns a handler for POST /api/v1/rules. The rule id
// is always server-assigned, matching the original controller's behavior
// of ignoring any client-supplied id on create.
func handleCreateRule(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rule ratelimit.Rule
		if err := DecodeBody(r, &rule); err != nil {
			writeDecodeBodyError(w, err)
			return
		}

		rule.ID = uuid.NewString()
		now := time.Now()
		rule.CreatedAt = now
		rule.UpdatedAt = now

		if err := rule.Validate(); err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		if err := p.Store().PutRule(r.Context(), &rule); err != nil {
			writeCoreError(w, err)
			return
		}
		if err := p.RuleCache().Refresh(r.Context(), p.Store()); err != nil {
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, &rule)
	}
}

// handleUpdateRule returns a handler for PUT /api/v1/rules/{id}: a full
// replace of an existing rule's definition.
func handleUpdateRule(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		existing, err := p.Store().GetRule(r.Context(), id)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		var rule ratelimit.Rule
		if err := DecodeBody(r, &rule); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		rule.ID = id
		rule.CreatedAt = existing.CreatedAt
		rule.UpdatedAt = time.Now()

		if err := rule.Validate(); err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		if err := p.Store().PutRule(r.Context(), &rule); err != nil {
			writeCoreError(w, err)
			return
		}
		if err := p.RuleCache().Refresh(r.Context(), p.Store()); err != nil {
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, &rule)
	}
}

// queuePatch is the body shape for PATCH /api/v1/rules/{id}/queue.
type queuePatch struct {
	Enabled      bool  `json:"enabled"`
	MaxDepth     int   `json:"max_depth"`
	DelayPerSlot int64 `json:"delay_per_slot_ms"`
	MaxWait      int64 `json:"max_wait_ms"`
}

// handlePatchQueue returns a handler for PATCH /api/v1/rules/{id}/queue,
// updating only a rule's queue configuration.
func handlePatchQueue(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		rule, err := p.Store().GetRule(r.Context(), id)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		var patch queuePatch
		if err := DecodeBody(r, &patch); err != nil {
			writeDecodeBodyError(w, err)
			return
		}

		rule.Queue = ratelimit.QueueConfig{
			Enabled:      patch.Enabled,
			MaxDepth:     patch.MaxDepth,
			DelayPerSlot: patch.DelayPerSlot * time.Millisecond,
			MaxWait:      patch.MaxWait * time.Millisecond,
		}
		rule.UpdatedAt = time.Now()

		if err := rule.Validate(); err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		if err := p.Store().PutRule(r.Context(), rule); err != nil {
			writeCoreError(w, err)
			return
		}
		if err := p.RuleCache().Refresh(r.Context(), p.Store()); err != nil {
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rule)
	}
}

type bodyLimitPatch struct {
	BodyLimitBytes int64 `json:"body_limit_bytes"`
}

// handlePatchBodyLimit returns a handler for
// PATCH /api/v1/rules/{id}/body-limit.
func handlePatchBodyLimit(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		rule, err := p.Store().GetRule(r.Context(), id)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		var patch bodyLimitPatch
		if err := DecodeBody(r, &patch); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if patch.BodyLimitBytes < 0 {
			writeInvalidArgument(w, "body_limit_bytes must not be negative")
			return
		}

		rule.BodyLimitBytes = patch.BodyLimitBytes
		rule.UpdatedAt = time.Now()

		if err := p.Store().PutRule(r.Context(), rule); err != nil {
			writeCoreError(w, err)
			return
		}
		if err := p.RuleCache().Refresh(r.Context(), p.Store()); err != nil {
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rule)
	}
}

// handleDeleteRule returns a handler for DELETE /api/v1/rules/{id}.
func handleDeleteRule(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := p.Store().DeleteRule(r.Context(), id); err != nil {
			writeCoreError(w, err)
			return
		}
		if err := p.RuleCache().Refresh(r.Context(), p.Store()); err != nil {
			writeCoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleRefreshRules returns a handler for POST /api/v1/rules/refresh,
// forcing an immediate reload of the rule cache from the store.
func handleRefreshRules(p *ratelimit.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.RuleCache().Refresh(r.Context(), p.Store()); err != nil {
			if errors.Is(err, ratelimit.ErrRuleRefreshFailed) {
				writeCoreError(w, err)
				return
			}
			writeCoreError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p.RuleCache().Snapshot())
	}
}
