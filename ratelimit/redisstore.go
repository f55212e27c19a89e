package ratelimit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// counterScript advances a fixed-window counter atomically: on first use it
// creates the key with the window's expiry; on later calls it only INCRs
// when the counter is still under the passed limit, leaving an
// already-exhausted window's count untouched rather than letting it grow
// without bound. It returns the resulting count, the window's remaining
// TTL, and 1 if this call advanced the counter or 0 if the window was
// already exhausted. This generalizes the teacher's plain "INCR, PEXPIRE if
// first" script to the fixed-window compare/reset/increment contract
// Store.IncrementCounter promises: the limit is read fresh on every call,
// since it can change between window rollovers without invalidating an
// in-flight window.
const counterScript = `
local current = redis.call("GET", KEYS[1])
if current == false then
	redis.call("SET", KEYS[1], 1, "PX", ARGV[1])
	return {1, tonumber(ARGV[1]), 1}
end
current = tonumber(current)
local limit = tonumber(ARGV[2])
local advanced = 0
if current < limit then
	current = redis.call("INCR", KEYS[1])
	advanced = 1
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl, advanced}
`

const rulesSetKey = "ratelimit:rules"
const rulePrefix = "ratelimit:rule:"
const configKey = "ratelimit:config"

// RedisStore implements Store on top of Redis, suitable for a gateway
// running as multiple replicas that must share one counter and rule
// state. Counter increments run through a pre-compiled Lua script so the
// read-then-write cycle is atomic across replicas; each rule is stored as
// a JSON-encoded string under its own key, with rule ids tracked in a set,
// and system config is a hash of plain string values.
type RedisStore struct {
	client        *redis.Client
	counterScript *redis.Script
}

// NewRedisStore wraps an existing *redis.Client. The caller owns the
// client's lifecycle up to Close, which closes it.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:        client,
		counterScript: redis.NewScript(counterScript),
	}
}

// IncrementCounter implements Store.
func (s *RedisStore) IncrementCounter(ctx context.Context, key string, window time.Duration, limit int) (CounterResult, error) {
	res, err := s.counterScript.Run(ctx, s.client, []string{key}, window.Milliseconds(), limit).Result()
	if err != nil {
		return CounterResult{}, ErrStoreUnavailable
	}

	arr, ok := res.([]interface{})
	if !ok || len(arr) < 3 {
		return CounterResult{}, ErrStoreUnavailable
	}
	count, _ := arr[0].(int64)
	ttlMs, _ := arr[1].(int64)
	advanced, _ := arr[2].(int64)

	return CounterResult{
		Count:   int(count),
		Limit:   limit,
		Allowed: advanced == 1,
		ResetAt: time.Now().Add(time.Duration(ttlMs) * time.Millisecond),
	}, nil
}

// PeekCounter implements Store.
func (s *RedisStore) PeekCounter(ctx context.Context, key string) (CounterResult, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return CounterResult{}, ErrStoreUnavailable
	}

	count, err := getCmd.Int()
	if err == redis.Nil {
		return CounterResult{}, nil
	}
	if err != nil {
		return CounterResult{}, ErrStoreUnavailable
	}
	ttl, _ := ttlCmd.Result()

	return CounterResult{
		Count:   count,
		ResetAt: time.Now().Add(ttl),
	}, nil
}

// ListRules implements Store.
func (s *RedisStore) ListRules(ctx context.Context) ([]*Rule, error) {
	ids, err := s.client.SMembers(ctx, rulesSetKey).Result()
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	out := make([]*Rule, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, rulePrefix+id).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, ErrStoreUnavailable
		}
		var r Rule
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// GetRule implements Store.
func (s *RedisStore) GetRule(ctx context.Context, id string) (*Rule, error) {
	raw, err := s.client.Get(ctx, rulePrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	var r Rule
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, ErrMalformedPayload
	}
	return &r, nil
}

// PutRule implements Store.
func (s *RedisStore) PutRule(ctx context.Context, rule *Rule) error {
	raw, err := json.Marshal(rule)
	if err != nil {
		return ErrMalformedPayload
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, rulePrefix+rule.ID, raw, 0)
	pipe.SAdd(ctx, rulesSetKey, rule.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}

// DeleteRule implements Store.
func (s *RedisStore) DeleteRule(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, rulePrefix+id)
	pipe.SRem(ctx, rulesSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}

// GetConfig implements Store.
func (s *RedisStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, configKey, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, ErrStoreUnavailable
	}
	return v, true, nil
}

// SetConfig implements Store.
func (s *RedisStore) SetConfig(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, configKey, key, value).Err(); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}

// ListConfig implements Store.
func (s *RedisStore) ListConfig(ctx context.Context) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, configKey).Result()
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	return m, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
