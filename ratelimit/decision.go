package ratelimit

import "time"

// Outcome is the final disposition of a Decision.
type Outcome string

const (
	// OutcomeAllow means the request is within quota and should proceed
	// immediately.
	OutcomeAllow Outcome = "allow"
	// OutcomeQueued means the request exceeded quota but was admitted
	// into the rule's queue and should proceed after Delay.
	OutcomeQueued Outcome = "queued"
	// OutcomeReject means the request exceeded quota and either
	// queueing is disabled for the rule or the queue is full/would wait
	// too long.
	OutcomeReject Outcome = "reject"
	// OutcomeUnregulated means no active rule matched the request path;
	// it proceeds without any counter or queue interaction.
	OutcomeUnregulated Outcome = "unregulated"
)

// Decision is what the pipeline computes for a single request.
type Decision struct {
	Outcome    Outcome
	Rule       *Rule
	Identifier Identifier
	Counter    CounterResult
	Delay      time.Duration
}

// DecisionEvent is the wire-level record published to the event stream
// for every Decision the pipeline makes. It carries enough context for a
// subscriber (the admin UI, an analytics sink) to reconstruct what
// happened without re-deriving it from the Decision itself.
type DecisionEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	RuleID     string    `json:"rule_id,omitempty"`
	RuleName   string    `json:"rule_name,omitempty"`
	Path       string    `json:"path"`
	Identifier string    `json:"identifier,omitempty"`
	Source     string    `json:"source,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Count      int       `json:"count,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	DelayMs    int64     `json:"delay_ms,omitempty"`
}

// NewDecisionEvent builds the event record for a Decision made against
// path.
func NewDecisionEvent(path string, d Decision) DecisionEvent {
	ev := DecisionEvent{
		Timestamp: time.Now(),
		Path:      path,
		Outcome:   d.Outcome,
	}
	if d.Rule != nil {
		ev.RuleID = d.Rule.ID
		ev.RuleName = d.Rule.Name
	}
	if d.Identifier.Value != "" {
		ev.Identifier = d.Identifier.Value
		ev.Source = string(d.Identifier.Kind)
	}
	ev.Count = d.Counter.Count
	ev.Limit = d.Counter.Limit
	if d.Delay > 0 {
		ev.DelayMs = d.Delay.Milliseconds()
	}
	return ev
}
