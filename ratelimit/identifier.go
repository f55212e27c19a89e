package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// Identifier is the result of resolving a rule's precedence chain against
// one request: the value used as the counter key, and which source
// ultimately produced it.
type Identifier struct {
	Value string
	Kind  IdentifierKind
}

// Resolver walks a rule's ordered IdentifierSource chain against a
// request and its buffered body, stopping at the first source that
// yields a non-empty value. Sources that come back empty (header absent,
// cookie unset, body field missing, claim missing) are logged at debug
// level and silently skipped; this mirrors the identifier resolution
// contract's silent-fallback behavior rather than treating a partial
// match as an error.
type Resolver struct {
	logger Logger
}

// NewResolver creates a Resolver. A nil logger installs the no-op default.
func NewResolver(logger Logger) *Resolver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Resolver{logger: logger}
}

// Resolve computes the identifier for req under rule. body may be nil if
// the rule has no body-derived identifier source (RequiresBody == false);
// if RequiresBody is true, body must already have been populated via
// BodyBuffer.Read.
func (rv *Resolver) Resolve(req *http.Request, rule *Rule, body *BodyBuffer) Identifier {
	for _, src := range rule.Identifiers {
		var value string
		combine := false

		switch src.Kind {
		case IdentifierHeader:
			value = req.Header.Get(src.HeaderName)
			combine = src.Mode == ModeCombineWithIP
		case IdentifierCookie:
			if c, err := req.Cookie(src.CookieName); err == nil {
				value = c.Value
			}
			combine = src.Mode == ModeCombineWithIP
		case IdentifierBody:
			value = rv.resolveBody(req, src, body)
			combine = src.Mode == ModeCombineWithIP
		case IdentifierJWT:
			value = extractJWTClaims(req.Header.Get("Authorization"), src.Claims, src.Separator)
		case IdentifierIP:
			value = clientIP(req)
		}

		if value != "" {
			if combine {
				value = clientIP(req) + ":" + value
			}
			return Identifier{Value: value, Kind: src.Kind}
		}
		rv.logger.Debugf("ratelimit: identifier source %q yielded no value for rule %q, falling through", src.Kind, rule.ID)
	}

	// No configured source produced a value; fall back to client IP so
	// the rule still has something to key its counter on.
	return Identifier{Value: clientIP(req), Kind: IdentifierIP}
}

func (rv *Resolver) resolveBody(req *http.Request, src IdentifierSource, body *BodyBuffer) string {
	if body == nil {
		return ""
	}
	data, err := body.Read(req, 0)
	if err != nil || len(data) == 0 {
		return ""
	}

	if src.BodyFormat == BodyFormatMultipart {
		v, err := extractMultipartField(data, req.Header.Get("Content-Type"), src.BodyField)
		if err != nil {
			return ""
		}
		return v
	}

	v, err := extractBodyField(data, src.BodyFormat, src.BodyField)
	if err != nil {
		return ""
	}
	return v
}

// clientIP extracts the request's client address, preferring the
// left-most entry of X-Forwarded-For (the original client in a typical
// proxy chain) and falling back to RemoteAddr.
func clientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
