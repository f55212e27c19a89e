package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/maypok86/otter"
)

// ruleEntry pairs a validated Rule with its compiled pattern so the cache
// never has to re-parse a pattern on the match path.
type ruleEntry struct {
	rule    *Rule
	pattern *compiledPattern
	// seq preserves insertion order for the final tie-break after
	// priority and pattern specificity.
	seq int
}

// ruleSet is the immutable snapshot swapped in by Refresh. Readers hold a
// pointer to one of these and never see a partially updated rule list.
type ruleSet struct {
	entries []ruleEntry
}

// RuleCache holds the active rule set and answers path-match queries. A
// single writer calls Refresh (typically the admin API, or a periodic
// reload); many readers call Match concurrently. The active set is stored
// behind an atomic.Pointer so readers never block on the writer and never
// observe a torn update.
//
// Match results are memoized in a bounded LRU (github.com/maypok86/otter)
// keyed by (generation, path), since a busy gateway will see the same
// literal paths far more often than it sees new ones between rule
// refreshes.
type RuleCache struct {
	set atomic.Pointer[ruleSet]
	gen atomic.Uint64

	matchCache otter.Cache[string, matchCacheEntry]
	logger     Logger
}

type matchCacheEntry struct {
	rule  *Rule
	found bool
}

// NewRuleCache builds an empty RuleCache. matchCacheSize bounds the number
// of memoized (generation, path) -> rule lookups retained; pass 0 to use a
// sensible default.
func NewRuleCache(matchCacheSize int, logger Logger) *RuleCache {
	if matchCacheSize <= 0 {
		matchCacheSize = 10000
	}
	if logger == nil {
		logger = noopLogger{}
	}
	cache, err := otter.MustBuilder[string, matchCacheEntry](matchCacheSize).
		Cost(func(_ string, _ matchCacheEntry) uint32 { return 1 }).
		Build()
	if err != nil {
		// otter only errors on invalid builder configuration, which is a
		// programmer error, not a runtime condition.
		panic("ratelimit: failed to build rule match cache: " + err.Error())
	}
	rc := &RuleCache{matchCache: cache, logger: logger}
	rc.set.Store(&ruleSet{})
	return rc
}

// Load replaces the active rule set with rules, validating each one
// first. Rules that fail validation are skipped and logged; the rest are
// installed atomically. Load also invalidates the match memoization
// cache, since old entries may point at rules no longer active.
func (rc *RuleCache) Load(rules []*Rule) {
	entries := make([]ruleEntry, 0, len(rules))
	for i, r := range rules {
		if !r.Active {
			continue
		}
		if err := r.Validate(); err != nil {
			rc.logger.Warnf("ratelimit: skipping invalid rule %q on load: %v", r.ID, err)
			continue
		}
		entries = append(entries, ruleEntry{
			rule:    r,
			pattern: compilePattern(r.Pattern),
			seq:     i,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].rule.Priority != entries[j].rule.Priority {
			return entries[i].rule.Priority > entries[j].rule.Priority
		}
		if entries[i].pattern.specificity != entries[j].pattern.specificity {
			return entries[i].pattern.specificity > entries[j].pattern.specificity
		}
		return entries[i].seq < entries[j].seq
	})

	rc.set.Store(&ruleSet{entries: entries})
	rc.gen.Add(1)
	rc.matchCache.Clear()
}

// Refresh reloads the rule set from store, a Store implementation's rule
// listing. It reports ErrRuleRefreshFailed (wrapping the store's error) on
// failure, leaving the previously loaded rules in place.
func (rc *RuleCache) Refresh(ctx context.Context, store Store) error {
	rules, err := store.ListRules(ctx)
	if err != nil {
		rc.logger.Warnf("ratelimit: rule refresh failed: %v", err)
		return fmt.Errorf("%w: %w", ErrRuleRefreshFailed, err)
	}
	rc.Load(rules)
	return nil
}

// Match returns the highest-priority active rule whose pattern matches
// path, or ErrNoMatchingRule if none does. The returned Rule is a clone
// safe for the caller to read without synchronization.
func (rc *RuleCache) Match(path string) (*Rule, error) {
	gen := rc.gen.Load()
	cacheKey := cacheKeyFor(gen, path)

	if cached, ok := rc.matchCache.Get(cacheKey); ok {
		if !cached.found {
			return nil, ErrNoMatchingRule
		}
		return cached.rule.Clone(), nil
	}

	set := rc.set.Load()
	for _, e := range set.entries {
		if e.pattern.match(path) {
			rc.matchCache.Set(cacheKey, matchCacheEntry{rule: e.rule, found: true})
			return e.rule.Clone(), nil
		}
	}

	rc.matchCache.Set(cacheKey, matchCacheEntry{found: false})
	return nil, ErrNoMatchingRule
}

// Snapshot returns clones of every currently active rule, ordered by match
// priority. Used by the admin API's listing endpoints.
func (rc *RuleCache) Snapshot() []*Rule {
	set := rc.set.Load()
	out := make([]*Rule, 0, len(set.entries))
	for _, e := range set.entries {
		out = append(out, e.rule.Clone())
	}
	return out
}

func cacheKeyFor(gen uint64, path string) string {
	// A tiny hand-rolled key rather than fmt.Sprintf: this runs on every
	// cache miss on the hot path.
	buf := make([]byte, 0, len(path)+21)
	buf = appendUint64(buf, gen)
	buf = append(buf, '|')
	buf = append(buf, path...)
	return string(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(buf, tmp[i:]...)
}
