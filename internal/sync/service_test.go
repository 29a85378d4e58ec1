package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/caresync/platform/internal/store"
)

func TestServicePerPatientOrdering(t *testing.T) {
	d, stores := newTestDispatcher(t)
	svc := NewService(d, ServiceConfig{Workers: 4, QueueSize: 16})

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Interleave two patients; each patient's values encode submission order.
	for i := 0; i < 20; i++ {
		if err := svc.Submit(ctx, NewVitalReading("p1", "North", "heartbeat", float64(i))); err != nil {
			t.Fatal(err)
		}
		if err := svc.Submit(ctx, NewVitalReading("p2", "South", "heartbeat", float64(i))); err != nil {
			t.Fatal(err)
		}
	}
	svc.Stop() // drains the queues before returning

	perPatient := make(map[string][]float64)
	stores.analytics.mu.Lock()
	for _, row := range stores.analytics.rows {
		perPatient[row.PatientID] = append(perPatient[row.PatientID], row.Value)
	}
	stores.analytics.mu.Unlock()

	for _, patient := range []string{"p1", "p2"} {
		values := perPatient[patient]
		if len(values) != 20 {
			t.Fatalf("%s: expected 20 rows, got %d", patient, len(values))
		}
		for i, v := range values {
			if v != float64(i) {
				t.Fatalf("%s: row %d has value %.0f, submission order broken", patient, i, v)
			}
		}
	}
}

func TestServiceStats(t *testing.T) {
	d, _ := newTestDispatcher(t)
	svc := NewService(d, DefaultServiceConfig())

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	svc.Submit(ctx, NewVitalReading("p1", "North", "heartbeat", 72))
	svc.Submit(ctx, NewVitalReading("p2", "North", "heartbeat", 45))
	svc.Submit(ctx, NewVitalReading("", "North", "heartbeat", 72))
	svc.Stop()

	stats := svc.Stats()
	if stats.Submitted != 3 {
		t.Errorf("expected 3 submitted, got %d", stats.Submitted)
	}
	if stats.Committed != 2 {
		t.Errorf("expected 2 committed, got %d", stats.Committed)
	}
	if stats.Invalid != 1 {
		t.Errorf("expected 1 invalid, got %d", stats.Invalid)
	}
}

func TestServiceBackpressure(t *testing.T) {
	stores := &testStores{
		timeseries: &fakeTimeSeries{block: make(chan struct{})},
		analytics:  &fakeAnalytics{},
		cache:      newFakeCache(),
		graph:      newFakeGraph(),
	}
	policy := testPolicy()
	policy.Override(store.TargetTimeSeries, Requirement{Ack: AckBestEffort, Timeout: 10 * time.Second, MaxAttempts: 1})
	d := NewDispatcher(Deps{
		TimeSeries: stores.timeseries,
		Analytics:  stores.analytics,
		Cache:      stores.cache,
		Graph:      stores.graph,
		Policy:     policy,
	})

	svc := NewService(d, ServiceConfig{Workers: 1, QueueSize: 1})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	ctx := context.Background()
	// First event occupies the worker, second fills the queue.
	if err := svc.Submit(ctx, NewVitalReading("p1", "North", "heartbeat", 72)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := svc.Submit(ctx, NewVitalReading("p1", "North", "heartbeat", 72)); err != nil {
		t.Fatal(err)
	}

	// The partition is saturated; submission must block until the caller
	// gives up rather than buffer without bound.
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := svc.Submit(waitCtx, NewVitalReading("p1", "North", "heartbeat", 72))
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(stores.timeseries.block)
}

func TestServiceSubmitDuringStop(t *testing.T) {
	// Submissions racing shutdown must fail cleanly, never reach a closed
	// queue.
	for i := 0; i < 200; i++ {
		d, _ := newTestDispatcher(t)
		svc := NewService(d, ServiceConfig{Workers: 2, QueueSize: 4})
		if err := svc.Start(context.Background()); err != nil {
			t.Fatal(err)
		}

		var wg stdsync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := svc.Submit(context.Background(), NewVitalReading("p1", "North", "heartbeat", 72)); err != nil {
					return
				}
			}
		}()

		svc.Stop()
		wg.Wait()
	}
}

func TestServiceSubmitAfterStop(t *testing.T) {
	d, _ := newTestDispatcher(t)
	svc := NewService(d, DefaultServiceConfig())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc.Stop()

	if err := svc.Submit(context.Background(), NewVitalReading("p1", "North", "heartbeat", 72)); err == nil {
		t.Error("expected an error submitting to a stopped service")
	}
}

func TestServiceSubmitBeforeStart(t *testing.T) {
	d, _ := newTestDispatcher(t)
	svc := NewService(d, DefaultServiceConfig())

	if err := svc.Submit(context.Background(), NewVitalReading("p1", "North", "heartbeat", 72)); err == nil {
		t.Error("expected an error submitting before start")
	}
}

func TestServiceDoubleStart(t *testing.T) {
	d, _ := newTestDispatcher(t)
	svc := NewService(d, DefaultServiceConfig())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	if err := svc.Start(context.Background()); err == nil {
		t.Error("expected an error starting twice")
	}
}
