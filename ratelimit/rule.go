package ratelimit

import (
	"fmt"
	"time"
)

// IdentifierKind tags which source of a resolved identifier ultimately
// produced it. The pipeline reports this alongside the identifier value
// itself so callers and the decision event stream can distinguish, say,
// "rate limited by user id from JWT claim" from "fell back to client IP".
type IdentifierKind string

const (
	IdentifierHeader IdentifierKind = "header"
	IdentifierCookie IdentifierKind = "cookie"
	IdentifierBody   IdentifierKind = "body"
	IdentifierJWT    IdentifierKind = "jwt"
	IdentifierIP     IdentifierKind = "ip"
)

// BodyFormat names how a rule's body-derived identifier or extraction
// config should parse the request body.
type BodyFormat string

const (
	BodyFormatJSON      BodyFormat = "json"
	BodyFormatForm      BodyFormat = "form"
	BodyFormatXML       BodyFormat = "xml"
	BodyFormatMultipart BodyFormat = "multipart"
)

// IdentifierMode controls how a header/cookie/body source's resolved
// value is combined with the request's client IP to form the final
// identifier.
type IdentifierMode string

const (
	// ModeReplaceIP uses the source's value as the identifier outright.
	// This is the default (zero value "" behaves the same way).
	ModeReplaceIP IdentifierMode = "replace_ip"

	// ModeCombineWithIP prefixes the source's value with the request's
	// client IP and a colon: "<clientIp>:<value>".
	ModeCombineWithIP IdentifierMode = "combine_with_ip"
)

// IdentifierSource describes one entry in a rule's identifier precedence
// chain. Only the field matching Kind is meaningful; the rest are the
// zero value.
type IdentifierSource struct {
	Kind IdentifierKind `json:"kind"`

	// Mode applies to header/cookie/body sources (IdentifierHeader,
	// IdentifierCookie, IdentifierBody): whether the resolved value
	// replaces the identifier outright or is combined with the client
	// IP. Ignored for IdentifierJWT and IdentifierIP. The zero value
	// behaves as ModeReplaceIP.
	Mode IdentifierMode `json:"mode,omitempty"`

	// HeaderName is used when Kind == IdentifierHeader.
	HeaderName string `json:"header_name,omitempty"`

	// CookieName is used when Kind == IdentifierCookie.
	CookieName string `json:"cookie_name,omitempty"`

	// BodyField is a dot-path (e.g. "user.id") into the parsed request
	// body, used when Kind == IdentifierBody. BodyFormat selects the
	// parser.
	BodyField  string     `json:"body_field,omitempty"`
	BodyFormat BodyFormat `json:"body_format,omitempty"`

	// Claims is the ordered list of JWT claim names to extract, used
	// when Kind == IdentifierJWT. Their values are concatenated with
	// Separator in order; a claim missing anywhere invalidates the
	// whole source. The claims are read structurally without signature
	// verification; see doc.go.
	Claims    []string `json:"claims,omitempty"`
	Separator string   `json:"separator,omitempty"`
}

// QueueConfig controls leaky-bucket admission for requests that exceed a
// rule's counter quota, instead of an outright rejection.
type QueueConfig struct {
	// Enabled turns on queueing for this rule. When false, an exceeded
	// counter always yields an outright reject Decision.
	Enabled bool `json:"enabled"`

	// MaxDepth is the maximum number of requests concurrently held in
	// the queue of one (rule, identifier) pair; each identifier has its
	// own budget. Offers beyond this depth are rejected with ErrQueueFull.
	MaxDepth int `json:"max_depth"`

	// DelayPerSlot is the additional delay applied per queue position.
	// A request admitted at position 3 waits 3 * DelayPerSlot before
	// being allowed through.
	DelayPerSlot time.Duration `json:"delay_per_slot"`

	// MaxWait bounds the total delay a single request will tolerate.
	// Positions whose computed delay would exceed MaxWait are rejected
	// rather than queued.
	MaxWait time.Duration `json:"max_wait"`
}

// Rule is the unit of rate-limit policy: a path pattern, a window/limit
// pair, an identifier precedence chain, and optional queueing.
type Rule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Priority int    `json:"priority"`
	Active   bool   `json:"active"`

	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`

	Identifiers []IdentifierSource `json:"identifiers"`

	// RequiresBody is true when any IdentifierSource in Identifiers has
	// Kind == IdentifierBody. Computed by Validate, not set by callers.
	RequiresBody bool `json:"requires_body"`

	Queue QueueConfig `json:"queue"`

	// BodyLimitBytes caps how much of the request body the BodyBuffer
	// will read for this rule. Zero means the pipeline-wide default.
	BodyLimitBytes int64 `json:"body_limit_bytes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks a Rule's invariants and derives RequiresBody. It is
// called by RuleCache before a rule is admitted into the active set, and
// by the admin API before persisting a create or update.
func (r *Rule) Validate() error {
	if r.Pattern == "" {
		return fmt.Errorf("ratelimit: rule %q: pattern must not be empty", r.ID)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("ratelimit: rule %q: limit must be positive, got %d", r.ID, r.Limit)
	}
	if r.Window <= 0 {
		return fmt.Errorf("ratelimit: rule %q: window must be positive, got %s", r.ID, r.Window)
	}
	if len(r.Identifiers) == 0 {
		return fmt.Errorf("ratelimit: rule %q: at least one identifier source is required", r.ID)
	}

	requiresBody := false
	for i, src := range r.Identifiers {
		switch src.Kind {
		case IdentifierHeader:
			if src.HeaderName == "" {
				return fmt.Errorf("ratelimit: rule %q: identifier[%d] header source missing HeaderName", r.ID, i)
			}
			if err := validateMode(src.Mode); err != nil {
				return fmt.Errorf("ratelimit: rule %q: identifier[%d] header source: %w", r.ID, i, err)
			}
		case IdentifierCookie:
			if src.CookieName == "" {
				return fmt.Errorf("ratelimit: rule %q: identifier[%d] cookie source missing CookieName", r.ID, i)
			}
			if err := validateMode(src.Mode); err != nil {
				return fmt.Errorf("ratelimit: rule %q: identifier[%d] cookie source: %w", r.ID, i, err)
			}
		case IdentifierBody:
			if src.BodyField == "" {
				return fmt.Errorf("ratelimit: rule %q: identifier[%d] body source missing BodyField", r.ID, i)
			}
			switch src.BodyFormat {
			case BodyFormatJSON, BodyFormatForm, BodyFormatXML, BodyFormatMultipart:
			default:
				return fmt.Errorf("ratelimit: rule %q: identifier[%d] unknown body format %q", r.ID, i, src.BodyFormat)
			}
			if err := validateMode(src.Mode); err != nil {
				return fmt.Errorf("ratelimit: rule %q: identifier[%d] body source: %w", r.ID, i, err)
			}
			requiresBody = true
		case IdentifierJWT:
			if len(src.Claims) == 0 {
				return fmt.Errorf("ratelimit: rule %q: identifier[%d] jwt source missing Claims", r.ID, i)
			}
			if src.Separator == "" {
				r.Identifiers[i].Separator = ":"
			}
		case IdentifierIP:
			// no fields required
		default:
			return fmt.Errorf("ratelimit: rule %q: identifier[%d] unknown kind %q", r.ID, i, src.Kind)
		}
	}
	r.RequiresBody = requiresBody

	if r.Queue.Enabled {
		if r.Queue.MaxDepth <= 0 {
			return fmt.Errorf("ratelimit: rule %q: queue enabled but MaxDepth must be positive", r.ID)
		}
		if r.Queue.DelayPerSlot <= 0 {
			return fmt.Errorf("ratelimit: rule %q: queue enabled but DelayPerSlot must be positive", r.ID)
		}
	}

	return nil
}

func validateMode(mode IdentifierMode) error {
	switch mode {
	case "", ModeReplaceIP, ModeCombineWithIP:
		return nil
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// Clone returns a deep-enough copy of r suitable for handing to a caller
// without letting them mutate the cache's internal rule list.
func (r *Rule) Clone() *Rule {
	c := *r
	c.Identifiers = append([]IdentifierSource(nil), r.Identifiers...)
	for i, src := range c.Identifiers {
		c.Identifiers[i].Claims = append([]string(nil), src.Claims...)
	}
	return &c
}
