package ratelimit

import (
	"encoding/base64"
	"strings"

	"github.com/goccy/go-json"
)

// extractJWTClaims reads claimNames out of the payload segment of a
// bearer token, without checking its signature, and joins their values
// with separator in the order given. authHeader is the full
// Authorization header value ("Bearer <token>"); a token missing the
// "Bearer " prefix, malformed as a JWT, or missing ANY of claimNames
// resolves to "" rather than an error, so a caller missing or misusing
// auth simply falls through to the next identifier source instead of
// failing the request outright.
//
// This is a deliberate trust decision, not an oversight: verifying a
// signature here would require per-rule key material this core has no
// business holding, and the gateway sits behind whatever authentication
// layer already validated the token before rate limiting ever sees it.
func extractJWTClaims(authHeader string, claimNames []string, separator string) string {
	claims, ok := decodeJWTClaims(authHeader)
	if !ok {
		return ""
	}

	values := make([]string, len(claimNames))
	for i, name := range claimNames {
		raw, present := claims[name]
		if !present {
			return ""
		}
		v := jsonScalarToString(raw)
		if v == "" {
			return ""
		}
		values[i] = v
	}
	return strings.Join(values, separator)
}

// decodeJWTClaims base64url-decodes and JSON-parses the payload segment
// of a bearer token, without checking its signature. ok is false for any
// malformed input, so callers never have to distinguish "claims absent"
// from "token unparseable".
func decodeJWTClaims(authHeader string) (map[string]interface{}, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil, false
	}
	token := strings.TrimPrefix(authHeader, prefix)

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}

	payload, err := decodeJWTSegment(parts[1])
	if err != nil {
		return nil, false
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, false
	}
	return claims, true
}

// decodeJWTSegment base64url-decodes one JWT segment, tolerating both
// padded and unpadded encodings since different issuers emit either.
func decodeJWTSegment(seg string) ([]byte, error) {
	if data, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(seg)
}
