package ratelimit

import "errors"

// Sentinel errors returned by the core. Callers should use errors.Is to
// check these rather than comparing strings, since Store implementations
// may wrap them with additional context.
var (
	// ErrStoreUnavailable is returned by a Store when it cannot reach its
	// backing system (e.g. Redis connection refused). The pipeline treats
	// this as fail-open: the request is admitted and the condition is
	// logged at warn level.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

	// ErrMalformedPayload is returned when a request body cannot be
	// parsed in the format a rule's identifier or extraction config
	// declares (invalid JSON, unparsable form body, etc).
	ErrMalformedPayload = errors.New("ratelimit: malformed request payload")

	// ErrRuleRefreshFailed is returned by RuleCache.Refresh when the
	// backing store could not be read. The previously loaded rule set is
	// left in place.
	ErrRuleRefreshFailed = errors.New("ratelimit: rule refresh failed")

	// ErrQueueFull is returned by QueueManager.Offer when a rule's queue
	// has reached its configured depth limit.
	ErrQueueFull = errors.New("ratelimit: queue full")

	// ErrCancelled is returned when a queued request's context is
	// cancelled while it is waiting for its delay slot.
	ErrCancelled = errors.New("ratelimit: request cancelled while queued")

	// ErrRuleNotFound is returned by admin lookups for an unknown rule id.
	ErrRuleNotFound = errors.New("ratelimit: rule not found")

	// ErrNoMatchingRule is returned by RuleCache.Match when no active
	// rule's pattern matches the given path. This is not an error
	// condition for the pipeline: it means the request is unregulated.
	ErrNoMatchingRule = errors.New("ratelimit: no matching rule")
)
