package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// queueSlot tracks one (rule, identifier) pair's current queue occupancy.
type queueSlot struct {
	depth      int
	lastActive time.Time
}

// QueueManager implements leaky-bucket admission for requests that have
// exceeded a rule's counter quota: instead of an outright reject, a
// request is given a position in the queue for its (rule, identifier)
// pair and told to wait position * DelayPerSlot before proceeding. Depth
// is tracked per "<ruleId>:<identifier>" key in a concurrent map so
// admission and release never contend with a global lock on the hot
// path, and so one identifier's traffic can never exhaust another
// identifier's share of a rule's MaxDepth budget.
//
// QueueManager never decrements a depth on its own timer: a position is
// released only when Release is called or the sweeper reclaims a stale
// entry. The bundled middlewares call Release as soon as a queued
// request's wait is cancelled (client disconnect), and otherwise after
// the forwarded handler returns. The fixed-window counter increment that
// preceded the queueing is never undone.
type QueueManager struct {
	slots *xsync.Map[string, *queueSlot]

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	minInterval time.Duration
	jitterRange time.Duration
	staleAfter  time.Duration

	logger Logger
}

// NewQueueManager creates a QueueManager and starts its background sweep
// loop, which evicts rule queue slots that have gone stale (no
// offer/release activity for staleAfter). Call Stop to shut the sweeper
// down.
func NewQueueManager(logger Logger) *QueueManager {
	if logger == nil {
		logger = noopLogger{}
	}
	qm := &QueueManager{
		slots:       xsync.NewMap[string, *queueSlot](),
		stopCh:      make(chan struct{}),
		minInterval: 60 * time.Second,
		jitterRange: 10 * time.Second,
		staleAfter:  5 * time.Minute,
		logger:      logger,
	}
	qm.wg.Add(1)
	go func() {
		defer qm.wg.Done()
		runJittered(qm.stopCh, qm.minInterval, qm.jitterRange, qm.sweep)
	}()
	return qm
}

// Stop halts the background sweeper and waits for it to exit.
func (qm *QueueManager) Stop() {
	qm.stopOnce.Do(func() { close(qm.stopCh) })
	qm.wg.Wait()
}

// Offer attempts to admit a request, identified by identifier, into
// rule's queue. On success it returns the delay the caller should wait
// before proceeding. It fails with ErrQueueFull if this (rule,
// identifier) pair's queue is already at MaxDepth, or if the computed
// delay would exceed MaxWait.
func (qm *QueueManager) Offer(rule *Rule, identifier string) (time.Duration, error) {
	var delay time.Duration
	var rejected bool

	key := CounterKey(rule.ID, identifier)
	qm.slots.Compute(key, func(old *queueSlot, loaded bool) (*queueSlot, xsync.ComputeOp) {
		depth := 0
		if loaded {
			depth = old.depth
		}
		if depth >= rule.Queue.MaxDepth {
			rejected = true
			if loaded {
				return old, xsync.CancelOp
			}
			return nil, xsync.CancelOp
		}

		position := depth + 1
		candidateDelay := time.Duration(position) * rule.Queue.DelayPerSlot
		if rule.Queue.MaxWait > 0 && candidateDelay > rule.Queue.MaxWait {
			rejected = true
			if loaded {
				return old, xsync.CancelOp
			}
			return nil, xsync.CancelOp
		}

		delay = candidateDelay
		return &queueSlot{depth: position, lastActive: time.Now()}, xsync.UpdateOp
	})

	if rejected {
		return 0, ErrQueueFull
	}
	return delay, nil
}

// Release frees one slot in the (rule, identifier) pair's queue after
// the delayed request has been forwarded or has otherwise left the
// queue.
func (qm *QueueManager) Release(ruleID, identifier string) {
	key := CounterKey(ruleID, identifier)
	qm.slots.Compute(key, func(old *queueSlot, loaded bool) (*queueSlot, xsync.ComputeOp) {
		if !loaded || old.depth <= 1 {
			return nil, xsync.DeleteOp
		}
		return &queueSlot{depth: old.depth - 1, lastActive: time.Now()}, xsync.UpdateOp
	})
}

// Depth reports a (rule, identifier) pair's current queue occupancy,
// for admin inspection.
func (qm *QueueManager) Depth(ruleID, identifier string) int {
	key := CounterKey(ruleID, identifier)
	slot, ok := qm.slots.Load(key)
	if !ok {
		return 0
	}
	return slot.depth
}

// Wait blocks for delay or until ctx is cancelled, whichever comes first.
// It returns ErrCancelled in the latter case.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}

func (qm *QueueManager) sweep() {
	now := time.Now()
	var stale []string
	qm.slots.Range(func(key string, slot *queueSlot) bool {
		if now.Sub(slot.lastActive) > qm.staleAfter {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		qm.slots.Compute(key, func(old *queueSlot, loaded bool) (*queueSlot, xsync.ComputeOp) {
			if !loaded || now.Sub(old.lastActive) <= qm.staleAfter {
				return old, xsync.CancelOp
			}
			return nil, xsync.DeleteOp
		})
		qm.logger.Warnf("ratelimit: evicted stale queue state for key %q", key)
	}
}

// runJittered executes fn at a jittered interval until stopCh closes: the
// interval is minInterval plus a random value in [0, jitterRange).
func runJittered(stopCh <-chan struct{}, minInterval, jitterRange time.Duration, fn func()) {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if jitterRange < 0 {
		jitterRange = 0
	}

	timer := time.NewTimer(minInterval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
		fn()

		interval := minInterval
		if jitterRange > 0 {
			interval += time.Duration(rand.Int64N(int64(jitterRange)))
		}
		timer.Reset(interval)
	}
}
