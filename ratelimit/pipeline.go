package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Pipeline composes the rule cache, body buffer, identifier resolver,
// counter engine, and queue manager into the single entry point a
// middleware calls per request. It also owns the EventStream that every
// Decision is published to.
type Pipeline struct {
	cache    *RuleCache
	resolver *Resolver
	store    Store
	queue    *QueueManager
	stream   *EventStream
	logger   Logger
	cfg      *Config
}

// NewPipeline builds a Pipeline from opts. WithStore is required; every
// other option has a workable default.
func NewPipeline(opts ...Option) (*Pipeline, error) {
	cfg := NewConfig(opts...)
	if cfg.Store == nil {
		return nil, errors.New("ratelimit: NewPipeline requires WithStore")
	}

	qm := NewQueueManager(cfg.Logger)
	qm.minInterval = cfg.QueueSweepMinInterval
	qm.jitterRange = cfg.QueueSweepJitter

	return &Pipeline{
		cache:    NewRuleCache(cfg.MatchCacheSize, cfg.Logger),
		resolver: NewResolver(cfg.Logger),
		store:    cfg.Store,
		queue:    qm,
		stream:   NewEventStream(cfg.EventStreamBufferSize),
		logger:   cfg.Logger,
		cfg:      cfg,
	}, nil
}

// RuleCache exposes the pipeline's rule cache, for admin CRUD handlers
// that need to Load/Refresh it directly.
func (p *Pipeline) RuleCache() *RuleCache { return p.cache }

// EventStream exposes the pipeline's decision event stream, for the admin
// API's stream endpoint.
func (p *Pipeline) EventStream() *EventStream { return p.stream }

// Store exposes the pipeline's backing Store, for admin config/rule
// handlers.
func (p *Pipeline) Store() Store { return p.store }

// Close shuts down the pipeline's background goroutines (the queue
// sweeper). It does not close the Store; the caller owns that.
func (p *Pipeline) Close() {
	p.queue.Stop()
}

// Handle runs the full decision pipeline for req and publishes the
// resulting DecisionEvent. Store failures fail open: the request is
// admitted, a warn is logged, and OnStoreError (if set) is invoked,
// rather than turning into an error response.
func (p *Pipeline) Handle(ctx context.Context, req *http.Request) (Decision, error) {
	path := req.URL.Path

	rule, err := p.cache.Match(path)
	if err != nil {
		if !errors.Is(err, ErrNoMatchingRule) {
			return Decision{}, fmt.Errorf("ratelimit: rule match failed: %w", err)
		}
		d := Decision{Outcome: OutcomeUnregulated}
		p.stream.Publish(NewDecisionEvent(path, d))
		return d, nil
	}

	var body *BodyBuffer
	if rule.RequiresBody {
		body = &BodyBuffer{}
		limit := rule.BodyLimitBytes
		if limit <= 0 {
			limit = p.cfg.DefaultBodyLimitBytes
		}
		if _, err := body.Read(req, limit); err != nil {
			p.logger.Warnf("ratelimit: failed to read request body for rule %q: %v", rule.ID, err)
		}
	}

	id := p.resolver.Resolve(req, rule, body)
	counterKey := CounterKey(rule.ID, id.Value)

	counterRes, err := p.store.IncrementCounter(ctx, counterKey, rule.Window, rule.Limit)
	if err != nil {
		p.logger.Warnf("ratelimit: store error incrementing counter for rule %q: %v; failing open", rule.ID, err)
		if p.cfg.OnStoreError != nil {
			p.cfg.OnStoreError(err)
		}
		d := Decision{Outcome: OutcomeAllow, Rule: rule, Identifier: id}
		p.stream.Publish(NewDecisionEvent(path, d))
		return d, nil
	}

	if counterRes.Allowed {
		d := Decision{Outcome: OutcomeAllow, Rule: rule, Identifier: id, Counter: counterRes}
		p.stream.Publish(NewDecisionEvent(path, d))
		return d, nil
	}

	if rule.Queue.Enabled {
		delay, err := p.queue.Offer(rule, id.Value)
		if err == nil {
			d := Decision{Outcome: OutcomeQueued, Rule: rule, Identifier: id, Counter: counterRes, Delay: delay}
			p.stream.Publish(NewDecisionEvent(path, d))
			return d, nil
		}
		if !errors.Is(err, ErrQueueFull) {
			return Decision{}, err
		}
	}

	d := Decision{Outcome: OutcomeReject, Rule: rule, Identifier: id, Counter: counterRes}
	p.stream.Publish(NewDecisionEvent(path, d))
	return d, nil
}

// ReleaseQueue frees one slot in the given rule/identifier pair's queue.
// Middleware calls this after a Decision with Outcome == OutcomeQueued
// has finished waiting out its Delay and been forwarded (or abandoned).
func (p *Pipeline) ReleaseQueue(ruleID, identifier string) {
	p.queue.Release(ruleID, identifier)
}
