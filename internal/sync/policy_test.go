package sync

import (
	"testing"
	"time"

	"github.com/caresync/platform/internal/store"
)

func TestDefaultPolicy(t *testing.T) {
	tests := []struct {
		target      store.Target
		ack         AckLevel
		timeout     time.Duration
		maxAttempts int
	}{
		{store.TargetDocument, AckMajority, 5 * time.Second, 2},
		{store.TargetAnalytics, AckOne, 2 * time.Second, 2},
		{store.TargetTimeSeries, AckBestEffort, 2 * time.Second, 1},
		{store.TargetGraph, AckLocal, 3 * time.Second, 2},
		{store.TargetCache, AckLocal, time.Second, 2},
	}

	p := DefaultPolicy()
	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			req := p.For(tt.target)
			if req.Ack != tt.ack {
				t.Errorf("ack: expected %s, got %s", tt.ack, req.Ack)
			}
			if req.Timeout != tt.timeout {
				t.Errorf("timeout: expected %s, got %s", tt.timeout, req.Timeout)
			}
			if req.MaxAttempts != tt.maxAttempts {
				t.Errorf("max attempts: expected %d, got %d", tt.maxAttempts, req.MaxAttempts)
			}
		})
	}
}

func TestPolicyUnknownTarget(t *testing.T) {
	req := DefaultPolicy().For(store.Target("ledger"))
	if req.MaxAttempts != 1 {
		t.Errorf("unknown targets get a single attempt, got %d", req.MaxAttempts)
	}
	if req.Ack != AckLocal {
		t.Errorf("unknown targets get local ack, got %s", req.Ack)
	}
}

func TestPolicyOverride(t *testing.T) {
	p := DefaultPolicy()
	p.Override(store.TargetCache, Requirement{Ack: AckOne, Timeout: 10 * time.Second, MaxAttempts: 5})

	req := p.For(store.TargetCache)
	if req.Ack != AckOne || req.Timeout != 10*time.Second || req.MaxAttempts != 5 {
		t.Errorf("override not applied: %+v", req)
	}
	// Other targets are untouched.
	if got := p.For(store.TargetDocument); got.Ack != AckMajority {
		t.Errorf("document requirement changed unexpectedly: %+v", got)
	}
}
