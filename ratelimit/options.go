package ratelimit

import "time"

// Config holds all configurable parameters for a Pipeline. Users interact
// with it via functional Options rather than constructing it directly.
type Config struct {
	Logger Logger

	Store Store

	// MatchCacheSize bounds the RuleCache's path-match memoization.
	MatchCacheSize int

	// EventStreamBufferSize bounds the EventStream's per-subscriber
	// buffer and retained snapshot length.
	EventStreamBufferSize int

	// DefaultBodyLimitBytes caps how much of a request body is read for
	// rules that don't set their own BodyLimitBytes.
	DefaultBodyLimitBytes int64

	// QueueSweepMinInterval and QueueSweepJitter control how often the
	// QueueManager's background sweeper reclaims stale queue state.
	QueueSweepMinInterval time.Duration
	QueueSweepJitter      time.Duration

	// OnStoreError, if set, is invoked whenever the pipeline falls back
	// to fail-open admission because Store reported ErrStoreUnavailable.
	// Operators can use it to increment a metric alongside the warn-level
	// log line the pipeline always emits.
	OnStoreError func(err error)
}

// Option applies a configuration setting to a Config. This is the
// functional options pattern.
type Option func(*Config)

// NewConfig builds a Config with defaults, then applies opts in order.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Logger:                noopLogger{},
		MatchCacheSize:        10000,
		EventStreamBufferSize: DefaultStreamBufferSize,
		DefaultBodyLimitBytes: DefaultBodyLimitBytes,
		QueueSweepMinInterval: 60 * time.Second,
		QueueSweepJitter:      10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithLogger sets the Logger used throughout the pipeline and its
// components.
func WithLogger(l Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithStore sets the Store backing rule persistence and counters. There
// is no default: Pipeline construction fails without one.
func WithStore(s Store) Option {
	return func(c *Config) {
		if s != nil {
			c.Store = s
		}
	}
}

// WithMatchCacheSize overrides the RuleCache's path-match memoization
// size.
func WithMatchCacheSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MatchCacheSize = n
		}
	}
}

// WithEventStreamBufferSize overrides the EventStream's buffer size.
func WithEventStreamBufferSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.EventStreamBufferSize = n
		}
	}
}

// WithDefaultBodyLimitBytes overrides the default per-request body read
// cap used by rules that don't set BodyLimitBytes.
func WithDefaultBodyLimitBytes(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.DefaultBodyLimitBytes = n
		}
	}
}

// WithQueueSweepInterval overrides the queue manager's stale-entry sweep
// cadence.
func WithQueueSweepInterval(minInterval, jitter time.Duration) Option {
	return func(c *Config) {
		if minInterval > 0 {
			c.QueueSweepMinInterval = minInterval
		}
		if jitter >= 0 {
			c.QueueSweepJitter = jitter
		}
	}
}

// WithStoreErrorHook registers a callback invoked on every fail-open
// admission caused by a store error.
func WithStoreErrorHook(fn func(err error)) Option {
	return func(c *Config) {
		c.OnStoreError = fn
	}
}
