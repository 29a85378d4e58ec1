package sync

import (
	"time"

	"github.com/caresync/platform/internal/store"
)

// AckLevel is the acknowledgement strength required from a store before a
// write is considered committed.
type AckLevel string

const (
	// AckMajority requires quorum acknowledgement within the bounded wait.
	AckMajority AckLevel = "majority"
	// AckOne requires a single-replica acknowledgement.
	AckOne AckLevel = "one"
	// AckBestEffort is fire-and-forget; only a failed call itself is
	// recorded.
	AckBestEffort AckLevel = "best_effort"
	// AckLocal is immediate local acknowledgement; replays are cheap
	// because the writes are idempotent.
	AckLocal AckLevel = "local"
)

// Requirement is the per-target durability contract consulted by the
// dispatcher.
type Requirement struct {
	Ack AckLevel
	// Timeout bounds each store call; exceeding it fails the target with
	// an adapter timeout.
	Timeout time.Duration
	// MaxAttempts is the attempt budget per store call, retrying only
	// retryable error classes.
	MaxAttempts int
	// RetryBackoff is the pause between attempts.
	RetryBackoff time.Duration
}

// Policy maps each logical target to its requirement. Static configuration,
// not embedded per call site, so consistency strength changes without
// touching dispatch logic.
type Policy struct {
	requirements map[store.Target]Requirement
}

// DefaultPolicy returns the shipped per-store contract: majority with a 5s
// bound for the authoritative document store, single-replica for analytics,
// best-effort for the time series, local for graph and cache.
func DefaultPolicy() *Policy {
	return &Policy{
		requirements: map[store.Target]Requirement{
			store.TargetDocument: {
				Ack:          AckMajority,
				Timeout:      5 * time.Second,
				MaxAttempts:  2,
				RetryBackoff: 200 * time.Millisecond,
			},
			store.TargetAnalytics: {
				Ack:          AckOne,
				Timeout:      2 * time.Second,
				MaxAttempts:  2,
				RetryBackoff: 100 * time.Millisecond,
			},
			store.TargetTimeSeries: {
				Ack:         AckBestEffort,
				Timeout:     2 * time.Second,
				MaxAttempts: 1,
			},
			store.TargetGraph: {
				Ack:          AckLocal,
				Timeout:      3 * time.Second,
				MaxAttempts:  2,
				RetryBackoff: 100 * time.Millisecond,
			},
			store.TargetCache: {
				Ack:          AckLocal,
				Timeout:      time.Second,
				MaxAttempts:  2,
				RetryBackoff: 50 * time.Millisecond,
			},
		},
	}
}

// For returns the requirement for a target. Unknown targets get a
// conservative single-attempt local requirement.
func (p *Policy) For(target store.Target) Requirement {
	if req, ok := p.requirements[target]; ok {
		return req
	}
	return Requirement{Ack: AckLocal, Timeout: time.Second, MaxAttempts: 1}
}

// Override replaces the requirement for one target.
func (p *Policy) Override(target store.Target, req Requirement) {
	p.requirements[target] = req
}
