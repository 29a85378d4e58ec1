package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/caresync/platform/internal/shared/metrics"
	"github.com/caresync/platform/internal/store"
)

// RunSummary reports one reconciliation run. Failures are aggregated per
// patient; the run never aborts on the first failure.
type RunSummary struct {
	RunID      string            `json:"run_id"`
	Region     string            `json:"region,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Total      int               `json:"total"`
	Succeeded  []string          `json:"succeeded,omitempty"`
	Skipped    []string          `json:"skipped,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// RunSink receives completed reconciliation run summaries.
type RunSink interface {
	RecordRun(ctx context.Context, summary RunSummary) error
}

// Reconciler replays patient/doctor relationship records from the
// authoritative document store into the graph store. Used for bulk backfill
// and drift repair after a graph outage; safe to re-run because every graph
// write is an idempotent merge.
type Reconciler struct {
	documents  store.DocumentStore
	dispatcher *Dispatcher
	limiter    *rate.Limiter
	sink       RunSink
}

// NewReconciler creates a reconciler. ratePerSecond 0 disables pacing; sink
// may be nil.
func NewReconciler(documents store.DocumentStore, dispatcher *Dispatcher, ratePerSecond, burst int, sink RunSink) *Reconciler {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Reconciler{
		documents:  documents,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(limit, burst),
		sink:       sink,
	}
}

// Run reconciles every patient in the region (all regions when empty).
// Patients without a treating doctor are skipped, not failed. Returns an
// error only when the authoritative read itself fails; per-patient dispatch
// failures are carried in the summary.
func (r *Reconciler) Run(ctx context.Context, region string) (RunSummary, error) {
	summary := RunSummary{
		RunID:     newRunID(),
		Region:    region,
		StartedAt: time.Now().UTC(),
		Failed:    make(map[string]string),
	}

	var (
		patients []store.PatientRecord
		err      error
	)
	if region != "" {
		patients, err = r.documents.FindPatientsByRegion(ctx, region)
	} else {
		patients, err = r.documents.FindAllPatients(ctx)
	}
	if err != nil {
		return summary, fmt.Errorf("read patients: %w", err)
	}

	doctors, err := r.documents.FindAllDoctors(ctx)
	if err != nil {
		return summary, fmt.Errorf("read doctors: %w", err)
	}
	doctorNames := make(map[string]string, len(doctors))
	for _, d := range doctors {
		doctorNames[d.ID] = d.Name
	}

	summary.Total = len(patients)
	for _, p := range patients {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if p.DoctorID == "" {
			summary.Skipped = append(summary.Skipped, p.ID)
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		ev := NewRelationshipChange(p.DoctorID, p.ID, doctorNames[p.DoctorID], p.Name)
		outcome := r.dispatcher.Dispatch(ctx, ev)
		if outcome.Committed() {
			summary.Succeeded = append(summary.Succeeded, p.ID)
		} else {
			reason := string(outcome.Status)
			if outcome.Reason != "" {
				reason = outcome.Reason
			}
			for _, t := range outcome.Targets {
				if t.Status == StatusFailed && t.Reason != "" {
					reason = t.Reason
					break
				}
			}
			summary.Failed[p.ID] = reason
		}
	}

	summary.FinishedAt = time.Now().UTC()
	metrics.RecordReconcilerRun(len(summary.Failed) == 0)

	if r.sink != nil {
		if err := r.sink.RecordRun(ctx, summary); err != nil {
			log.Printf("reconciler run journal write failed for run %s: %v", summary.RunID, err)
		}
	}
	return summary, nil
}

func newRunID() string {
	return uuid.New().String()
}
