package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caresync/platform/internal/shared/errors"
	"github.com/caresync/platform/internal/shared/metrics"
	"github.com/caresync/platform/internal/store"
)

// OutcomeSink receives every completed event outcome, e.g. the Postgres
// outcome journal.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

// DeadLetter receives events whose dispatch outcome failed, pending retry or
// manual inspection.
type DeadLetter interface {
	Append(ctx context.Context, ev Event, o Outcome) error
}

// Deps are the dispatcher's collaborators. Adapter instances are passed in
// explicitly; lifecycle is owned by the process bootstrap.
type Deps struct {
	TimeSeries store.TimeSeriesStore
	Analytics  store.AnalyticsStore
	Cache      store.CacheStore
	Graph      store.GraphStore

	Policy    *Policy
	Evaluator *Evaluator

	// Journal and DeadLetter are optional; failures writing to them are
	// logged, never folded into the event outcome.
	Journal    OutcomeSink
	DeadLetter DeadLetter
}

// Dispatcher routes one domain event to the subset of store adapters that
// must process it and aggregates their results into a single outcome.
type Dispatcher struct {
	timeseries store.TimeSeriesStore
	analytics  store.AnalyticsStore
	cache      store.CacheStore
	graph      store.GraphStore

	policy    *Policy
	evaluator *Evaluator

	journal    OutcomeSink
	deadletter DeadLetter
}

// NewDispatcher creates a dispatcher. Policy and Evaluator default if nil.
func NewDispatcher(deps Deps) *Dispatcher {
	policy := deps.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = NewEvaluator(nil)
	}
	return &Dispatcher{
		timeseries: deps.TimeSeries,
		analytics:  deps.Analytics,
		cache:      deps.Cache,
		graph:      deps.Graph,
		policy:     policy,
		evaluator:  evaluator,
		journal:    deps.Journal,
		deadletter: deps.DeadLetter,
	}
}

// Dispatch processes one event to completion and returns the aggregated
// outcome. It never returns an error: per-target failures are captured in
// the outcome and surfaced to the caller for retry decisions.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	metrics.EventInFlightInc()
	defer metrics.EventInFlightDec()

	var outcome Outcome
	switch e := ev.(type) {
	case VitalReading:
		outcome = d.dispatchVital(ctx, e)
	case RelationshipChange:
		outcome = d.dispatchRelationship(ctx, e)
	default:
		outcome = invalidOutcome(ev, errors.InvalidEvent("unknown event kind", map[string]string{"kind": ev.Kind()}))
	}

	metrics.RecordEventDispatched(outcome.Kind, string(outcome.Status))
	for _, t := range outcome.FailedTargets() {
		metrics.RecordTargetFailure(string(t))
	}

	d.record(ctx, ev, outcome)
	return outcome
}

// dispatchVital validates the reading, evaluates the alert rule, then writes
// the time-series sample, the analytics row and the alert-cache mutation
// concurrently. The three writes are independent; order does not matter
// between them.
func (d *Dispatcher) dispatchVital(ctx context.Context, ev VitalReading) Outcome {
	if err := validateVital(ev); err != nil {
		return invalidOutcome(ev, err)
	}

	// The alert decision is pure, so re-dispatching the same value is
	// deterministic and side-effect-equivalent.
	decision := d.evaluator.Evaluate(ev.PatientID, ev.Metric, ev.Value)

	// The graph is not involved in vital readings; every outcome still
	// reports all event targets.
	results := make([]TargetResult, 4)
	results[3] = skipped(store.TargetGraph)
	var g errgroup.Group
	g.Go(func() error {
		results[0] = d.attempt(ctx, store.TargetTimeSeries, func(callCtx context.Context) error {
			tags := map[string]string{"patient_id": ev.PatientID, "region": ev.Region}
			return d.timeseries.WriteSample(callCtx, ev.Metric, tags, ev.Value, ev.MeasuredAt)
		})
		return nil
	})
	g.Go(func() error {
		results[1] = d.attempt(ctx, store.TargetAnalytics, func(callCtx context.Context) error {
			return d.analytics.InsertRow(callCtx, store.AnalyticsRow{
				Region:     ev.Region,
				PatientID:  ev.PatientID,
				MeasuredAt: ev.MeasuredAt,
				Metric:     ev.Metric,
				Value:      ev.Value,
			})
		})
		return nil
	})
	g.Go(func() error {
		results[2] = d.attempt(ctx, store.TargetCache, func(callCtx context.Context) error {
			return d.applyAlert(callCtx, decision)
		})
		return nil
	})
	// Workers only record results; a slow target never cancels its
	// siblings.
	_ = g.Wait()

	if results[2].Status == StatusCommitted {
		metrics.RecordAlertMutation(string(decision.Action))
	}

	return aggregate(ev, results)
}

// dispatchRelationship mirrors one care relationship into the graph store.
// The doctor node, patient node and TREATS edge are written in strict order
// because the edge is defined only if both endpoints exist; the first
// failure aborts the remaining steps.
func (d *Dispatcher) dispatchRelationship(ctx context.Context, ev RelationshipChange) Outcome {
	if err := validateRelationship(ev); err != nil {
		return invalidOutcome(ev, err)
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"merge doctor node", func(c context.Context) error {
			return d.graph.MergeDoctorNode(c, ev.DoctorID, ev.DoctorName)
		}},
		{"merge patient node", func(c context.Context) error {
			return d.graph.MergePatientNode(c, ev.PatientID, ev.PatientName)
		}},
		{"merge treats edge", func(c context.Context) error {
			return d.graph.MergeTreatsEdge(c, ev.DoctorID, ev.PatientID)
		}},
	}

	for _, step := range steps {
		res := d.attempt(ctx, store.TargetGraph, step.fn)
		if res.Status != StatusCommitted {
			res.Err = fmt.Errorf("%s: %w", step.name, res.Err)
			res.Reason = res.Err.Error()
			return aggregate(ev, relationshipTargets(res))
		}
	}
	return aggregate(ev, relationshipTargets(committed(store.TargetGraph, 1)))
}

// relationshipTargets reports the full event-target set for a relationship
// outcome: only the graph is written, the vital-sign targets are skipped.
func relationshipTargets(graph TargetResult) []TargetResult {
	return []TargetResult{
		skipped(store.TargetTimeSeries),
		skipped(store.TargetAnalytics),
		skipped(store.TargetCache),
		graph,
	}
}

// applyAlert performs the single cache mutation the decision calls for.
func (d *Dispatcher) applyAlert(ctx context.Context, decision AlertDecision) error {
	key := AlertKey(decision.PatientID)
	if decision.Action == ActionSet {
		return d.cache.Set(ctx, key, decision.Message)
	}
	// Deleting an absent key is a no-op success.
	return d.cache.Delete(ctx, key)
}

// attempt runs one store call under the target's consistency requirement:
// bounded timeout per call, bounded retry with backoff on retryable error
// classes only.
func (d *Dispatcher) attempt(ctx context.Context, target store.Target, fn func(context.Context) error) TargetResult {
	req := d.policy.For(target)
	attempts := req.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 1; ; i++ {
		callCtx, cancel := context.WithTimeout(ctx, req.Timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return committed(target, i)
		}

		cerr := classify(target, req.Timeout, err)
		if i >= attempts || !errors.Retryable(cerr) || ctx.Err() != nil {
			return failed(target, i, cerr)
		}
		if req.RetryBackoff > 0 {
			select {
			case <-time.After(req.RetryBackoff):
			case <-ctx.Done():
				return failed(target, i, cerr)
			}
		}
	}
}

// record journals the outcome and dead-letters failed events. Both are best
// effort: an unavailable journal must not fail the clinical event itself.
func (d *Dispatcher) record(ctx context.Context, ev Event, outcome Outcome) {
	if d.journal != nil {
		if err := d.journal.RecordOutcome(ctx, outcome); err != nil {
			log.Printf("outcome journal write failed for event %s: %v", outcome.EventID, err)
		}
	}
	if d.deadletter != nil && outcome.Status == OutcomePartialFailure {
		if err := d.deadletter.Append(ctx, ev, outcome); err != nil {
			log.Printf("dead-letter append failed for event %s: %v", outcome.EventID, err)
		} else {
			metrics.RecordDeadLetter(outcome.Kind)
		}
	}
}

// classify maps raw adapter errors onto the shared taxonomy. Errors already
// classified by an adapter pass through unchanged.
func classify(target store.Target, timeout time.Duration, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.AdapterTimeout(string(target), timeout)
	}
	return errors.AdapterUnavailable(string(target), err)
}

func validateVital(ev VitalReading) error {
	details := map[string]string{}
	if ev.PatientID == "" {
		details["patient_id"] = "required"
	}
	if ev.Metric == "" {
		details["metric"] = "required"
	}
	if math.IsNaN(ev.Value) || math.IsInf(ev.Value, 0) {
		details["value"] = "must be finite"
	}
	if len(details) > 0 {
		return errors.InvalidEvent("malformed vital reading", details)
	}
	return nil
}

func validateRelationship(ev RelationshipChange) error {
	details := map[string]string{}
	if ev.DoctorID == "" {
		details["doctor_id"] = "required"
	}
	if ev.PatientID == "" {
		details["patient_id"] = "required"
	}
	if len(details) > 0 {
		return errors.InvalidEvent("malformed relationship change", details)
	}
	return nil
}
