package ratelimit

import "strings"

// segKind classifies one path-pattern segment.
type segKind int

const (
	segLiteral segKind = iota
	segSingle          // "*" — exactly one path segment
	segMulti           // "**" — zero or more path segments
)

type patternSegment struct {
	kind    segKind
	literal string // only meaningful when kind == segLiteral
}

// compiledPattern is a parsed path pattern ready for repeated matching.
// Patterns use "*" to match exactly one path segment and "**" to match
// any number of segments, including zero, comparable in spirit to Ant-style
// path matching but limited to the two wildcard forms the rule model
// exposes.
type compiledPattern struct {
	raw         string
	segments    []patternSegment
	specificity int
}

// compilePattern parses a pattern string once so Match can run without
// re-splitting on every call.
func compilePattern(pattern string) *compiledPattern {
	parts := strings.Split(strings.Trim(pattern, "/"), "/")
	segs := make([]patternSegment, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "**":
			segs = append(segs, patternSegment{kind: segMulti})
		case "*":
			segs = append(segs, patternSegment{kind: segSingle})
		default:
			segs = append(segs, patternSegment{kind: segLiteral, literal: p})
		}
	}
	cp := &compiledPattern{raw: pattern, segments: segs}
	cp.specificity = computeSpecificity(segs)
	return cp
}

// computeSpecificity scores a segment list so that more specific patterns
// (more literal segments, fewer wildcards, no "**") rank above more
// general ones when several rules match the same path. Literal segments
// score highest, "*" scores lower, and "**" scores lowest of all since it
// can absorb an unbounded number of path segments.
func computeSpecificity(segs []patternSegment) int {
	score := 0
	for _, s := range segs {
		switch s.kind {
		case segLiteral:
			score += 100
		case segSingle:
			score += 10
		case segMulti:
			score += 1
		}
	}
	// Longer, more constrained patterns edge out shorter ones with the
	// same segment-kind mix (e.g. "/a/*/c" over "/a/**").
	score += len(segs)
	return score
}

// match reports whether path satisfies the compiled pattern.
func (cp *compiledPattern) match(path string) bool {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	return matchSegments(cp.segments, pathParts)
}

func matchSegments(pat []patternSegment, path []string) bool {
	for len(pat) > 0 {
		seg := pat[0]

		if seg.kind == segMulti {
			// A trailing "**" matches everything remaining, including
			// zero segments.
			if len(pat) == 1 {
				return true
			}
			// Try consuming 0..len(path) segments for this "**" and see
			// if the remainder matches the rest of the pattern.
			for consume := 0; consume <= len(path); consume++ {
				if matchSegments(pat[1:], path[consume:]) {
					return true
				}
			}
			return false
		}

		if len(path) == 0 {
			return false
		}

		switch seg.kind {
		case segLiteral:
			if path[0] != seg.literal {
				return false
			}
		case segSingle:
			// matches any single non-empty segment
			if path[0] == "" {
				return false
			}
		}

		pat = pat[1:]
		path = path[1:]
	}
	return len(path) == 0
}
