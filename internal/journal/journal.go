// Package journal persists per-event dispatch outcomes and reconciler run
// summaries in Postgres for operational reporting. Writes are best effort
// from the dispatcher's perspective: a journal failure never fails the
// clinical event.
package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caresync/platform/internal/sync"
)

// Journal implements sync.OutcomeSink and sync.RunSink.
type Journal struct {
	db *DB
}

// New creates a journal over an open pool.
func New(db *DB) *Journal {
	return &Journal{db: db}
}

// RecordOutcome upserts one event outcome. Keyed by event ID so a retried
// event overwrites its earlier, failed row.
func (j *Journal) RecordOutcome(ctx context.Context, o sync.Outcome) error {
	targets, err := json.Marshal(o.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}

	_, err = j.db.Pool.Exec(ctx, `
		INSERT INTO sync_outcomes (event_id, kind, patient_id, status, reason, targets, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			targets = EXCLUDED.targets,
			completed_at = EXCLUDED.completed_at,
			recorded_at = NOW()
	`, o.EventID, o.Kind, o.PatientID, string(o.Status), nullable(o.Reason), targets, o.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert outcome %s: %w", o.EventID, err)
	}
	return nil
}

// RecordRun stores one reconciliation run summary.
func (j *Journal) RecordRun(ctx context.Context, s sync.RunSummary) error {
	failed, err := json.Marshal(s.Failed)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	_, err = j.db.Pool.Exec(ctx, `
		INSERT INTO reconciler_runs (run_id, region, started_at, finished_at, total, succeeded, skipped, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO NOTHING
	`, s.RunID, nullable(s.Region), s.StartedAt, s.FinishedAt, s.Total, len(s.Succeeded), len(s.Skipped), failed)
	if err != nil {
		return fmt.Errorf("insert reconciler run %s: %w", s.RunID, err)
	}
	return nil
}

// OutcomeRow is one journaled outcome as read back for reporting.
type OutcomeRow struct {
	EventID   string          `json:"event_id"`
	Kind      string          `json:"kind"`
	PatientID string          `json:"patient_id"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Targets   json.RawMessage `json:"targets,omitempty"`
}

// RecentFailures returns the latest non-committed outcomes.
func (j *Journal) RecentFailures(ctx context.Context, limit int) ([]OutcomeRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Pool.Query(ctx, `
		SELECT event_id, kind, patient_id, status, COALESCE(reason, ''), targets
		FROM sync_outcomes
		WHERE status <> 'committed'
		ORDER BY completed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var r OutcomeRow
		if err := rows.Scan(&r.EventID, &r.Kind, &r.PatientID, &r.Status, &r.Reason, &r.Targets); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var (
	_ sync.OutcomeSink = (*Journal)(nil)
	_ sync.RunSink     = (*Journal)(nil)
)
