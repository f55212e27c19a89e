// Package ratelimit implements the rate-limiting core of an HTTP API
// gateway: rule matching, identifier resolution, fixed-window counters, a
// leaky-bucket queue for excess traffic, and a decision event stream.
//
// # Overview
//
// Every request flows through a Pipeline:
//
//  1. RuleCache selects the highest-priority active Rule whose path
//     pattern matches the request path.
//  2. If the rule requires a request body, BodyBuffer reads and caches it
//     once.
//  3. Resolver computes an identifier by walking header, cookie, body,
//     JWT claim, and client-IP sources in that order, stopping at the
//     first non-empty value.
//  4. The Counter Engine (a Store implementation) advances a fixed-window
//     counter for (rule, identifier) and reports through
//     CounterResult.Allowed whether the request is within quota.
//  5. When it is not, if the rule enables queueing, QueueManager offers a
//     leaky-bucket delay slot instead of an outright rejection.
//  6. A Decision is returned and a DecisionEvent is published to any
//     EventStream subscribers.
//
// # Backends
//
// Store is the core's only collaborator with the outside world: it
// persists rules, fixed-window counters, and system config. MemoryStore is
// a dependency-free stand-in for tests and single-instance deployments;
// RedisStore uses an embedded Lua script so the read/compare/increment
// cycle is atomic across gateway replicas.
//
// # Fail-open policy
//
// Store failures never turn into 5xx responses. A StoreUnavailable
// condition is logged at warn level and the request is admitted, matching
// the behavior of the system this core replaces (see DESIGN.md, Open
// Question (a)).
//
// # No JWT signature verification
//
// The JWT identifier source decodes the second dot-segment of a bearer
// token structurally, without checking its signature. This is a
// deliberate trust model: upstream authentication is assumed to have
// already verified the token before the gateway sees it. Do not use claim
// extraction here as an authentication mechanism.
package ratelimit
