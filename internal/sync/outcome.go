package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/caresync/platform/internal/shared/errors"
	"github.com/caresync/platform/internal/store"
)

// TargetStatus is the per-store result of one event.
type TargetStatus string

const (
	StatusCommitted TargetStatus = "committed"
	StatusSkipped   TargetStatus = "skipped"
	StatusFailed    TargetStatus = "failed"
)

// OverallStatus aggregates the per-target results of one event.
type OverallStatus string

const (
	OutcomeCommitted      OverallStatus = "committed"
	OutcomePartialFailure OverallStatus = "partial_failure"
	OutcomeInvalid        OverallStatus = "invalid"
)

// TargetResult is the outcome of one store target for one event.
type TargetResult struct {
	Target   store.Target `json:"target"`
	Status   TargetStatus `json:"status"`
	Attempts int          `json:"attempts,omitempty"`
	Err      error        `json:"-"`
	Reason   string       `json:"reason,omitempty"`
}

func committed(target store.Target, attempts int) TargetResult {
	return TargetResult{Target: target, Status: StatusCommitted, Attempts: attempts}
}

func skipped(target store.Target) TargetResult {
	return TargetResult{Target: target, Status: StatusSkipped}
}

func failed(target store.Target, attempts int, err error) TargetResult {
	return TargetResult{
		Target:   target,
		Status:   StatusFailed,
		Attempts: attempts,
		Err:      err,
		Reason:   err.Error(),
	}
}

// Outcome is the complete per-event dispatch result. The dispatcher always
// returns one, never an error: adapter failures are captured per target.
type Outcome struct {
	EventID   string        `json:"event_id"`
	Kind      string        `json:"kind"`
	PatientID string        `json:"patient_id"`
	Status    OverallStatus `json:"status"`
	// Reason is set only for invalid events, which carry no target results.
	Reason      string         `json:"reason,omitempty"`
	Targets     []TargetResult `json:"targets,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Committed reports whether every target committed.
func (o Outcome) Committed() bool {
	return o.Status == OutcomeCommitted
}

// FailedTargets returns the targets that failed, in dispatch order.
func (o Outcome) FailedTargets() []store.Target {
	var out []store.Target
	for _, t := range o.Targets {
		if t.Status == StatusFailed {
			out = append(out, t.Target)
		}
	}
	return out
}

// Retryable reports whether re-dispatching the event could succeed: at least
// one target failed with a retryable error class.
func (o Outcome) Retryable() bool {
	for _, t := range o.Targets {
		if t.Status == StatusFailed && t.Err != nil && errors.Retryable(t.Err) {
			return true
		}
	}
	return false
}

func (o Outcome) String() string {
	if len(o.Targets) == 0 {
		return fmt.Sprintf("%s %s: %s", o.Kind, o.EventID, o.Status)
	}
	parts := make([]string, 0, len(o.Targets))
	for _, t := range o.Targets {
		parts = append(parts, fmt.Sprintf("%s=%s", t.Target, t.Status))
	}
	return fmt.Sprintf("%s %s: %s (%s)", o.Kind, o.EventID, o.Status, strings.Join(parts, " "))
}

// aggregate computes the overall status from per-target results.
func aggregate(ev Event, targets []TargetResult) Outcome {
	status := OutcomeCommitted
	for _, t := range targets {
		if t.Status == StatusFailed {
			status = OutcomePartialFailure
			break
		}
	}
	return Outcome{
		EventID:     ev.EventID(),
		Kind:        ev.Kind(),
		PatientID:   ev.Patient(),
		Status:      status,
		Targets:     targets,
		CompletedAt: time.Now().UTC(),
	}
}

// invalidOutcome rejects a malformed event before any write is attempted.
func invalidOutcome(ev Event, err error) Outcome {
	return Outcome{
		EventID:     ev.EventID(),
		Kind:        ev.Kind(),
		PatientID:   ev.Patient(),
		Status:      OutcomeInvalid,
		Reason:      err.Error(),
		CompletedAt: time.Now().UTC(),
	}
}
