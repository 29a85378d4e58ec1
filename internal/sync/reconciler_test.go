package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/caresync/platform/internal/store"
)

type fakeDocuments struct {
	patients []store.PatientRecord
	doctors  []store.DoctorRecord
	readErr  error
}

func (f *fakeDocuments) UpsertPatient(ctx context.Context, p store.PatientRecord) error { return nil }
func (f *fakeDocuments) UpsertDoctor(ctx context.Context, d store.DoctorRecord) error   { return nil }

func (f *fakeDocuments) FindPatientsByRegion(ctx context.Context, region string) ([]store.PatientRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []store.PatientRecord
	for _, p := range f.patients {
		if p.Region == region {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDocuments) FindAllPatients(ctx context.Context) ([]store.PatientRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.patients, nil
}

func (f *fakeDocuments) FindAllDoctors(ctx context.Context) ([]store.DoctorRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.doctors, nil
}

func (f *fakeDocuments) Ping(ctx context.Context) error { return nil }

type fakeRunSink struct {
	runs []RunSummary
}

func (f *fakeRunSink) RecordRun(ctx context.Context, summary RunSummary) error {
	f.runs = append(f.runs, summary)
	return nil
}

func directorySeed() *fakeDocuments {
	return &fakeDocuments{
		patients: []store.PatientRecord{
			{ID: "p1", Name: "Mohamed", Region: "North", DoctorID: "doc001"},
			{ID: "p2", Name: "Jelena", Region: "North"}, // no treating doctor
			{ID: "p3", Name: "Stefan", Region: "South", DoctorID: "doc002"},
		},
		doctors: []store.DoctorRecord{
			{ID: "doc001", Name: "Dr. Alice"},
			{ID: "doc002", Name: "Dr. Bob"},
		},
	}
}

func TestReconcilerRun(t *testing.T) {
	d, stores := newTestDispatcher(t)
	docs := directorySeed()
	sink := &fakeRunSink{}
	r := NewReconciler(docs, d, 0, 0, sink)

	summary, err := r.Run(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}

	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if len(summary.Succeeded) != 2 {
		t.Errorf("expected 2 succeeded, got %v", summary.Succeeded)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0] != "p2" {
		t.Errorf("patients without a doctor are skipped, got %v", summary.Skipped)
	}
	if len(summary.Failed) != 0 {
		t.Errorf("expected no failures, got %v", summary.Failed)
	}

	if !stores.graph.hasEdge("doc001", "p1") || !stores.graph.hasEdge("doc002", "p3") {
		t.Error("expected treats edges for p1 and p3")
	}
	if stores.graph.hasEdge("", "p2") {
		t.Error("skipped patient must not reach the graph")
	}
	if len(sink.runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(sink.runs))
	}
}

func TestReconcilerRegionFilter(t *testing.T) {
	d, stores := newTestDispatcher(t)
	r := NewReconciler(directorySeed(), d, 0, 0, nil)

	summary, err := r.Run(context.Background(), "South")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 1 || len(summary.Succeeded) != 1 || summary.Succeeded[0] != "p3" {
		t.Errorf("unexpected summary for South: %+v", summary)
	}
	if stores.graph.hasEdge("doc001", "p1") {
		t.Error("patients outside the region must not be replayed")
	}
}

func TestReconcilerAggregatesFailures(t *testing.T) {
	d, stores := newTestDispatcher(t)
	stores.graph.failDoctor = fmt.Errorf("graph down")
	r := NewReconciler(directorySeed(), d, 0, 0, nil)

	summary, err := r.Run(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}

	// Both patients with a doctor fail, but the run processes all of them.
	if summary.Total != 3 {
		t.Errorf("expected total 3, got %d", summary.Total)
	}
	if len(summary.Failed) != 2 {
		t.Errorf("expected 2 failures, got %v", summary.Failed)
	}
	if _, ok := summary.Failed["p1"]; !ok {
		t.Error("p1 failure missing from summary")
	}
	if _, ok := summary.Failed["p3"]; !ok {
		t.Error("p3 failure missing from summary")
	}
	if len(summary.Skipped) != 1 {
		t.Errorf("skips are still recorded, got %v", summary.Skipped)
	}
}

func TestReconcilerReadFailure(t *testing.T) {
	d, _ := newTestDispatcher(t)
	r := NewReconciler(&fakeDocuments{readErr: fmt.Errorf("primary unreachable")}, d, 0, 0, nil)

	if _, err := r.Run(context.Background(), ""); err == nil {
		t.Fatal("expected an error when the authoritative read fails")
	}
}

func TestReconcilerRerunIsIdempotent(t *testing.T) {
	d, stores := newTestDispatcher(t)
	r := NewReconciler(directorySeed(), d, 0, 0, nil)

	ctx := context.Background()
	if _, err := r.Run(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(ctx, ""); err != nil {
		t.Fatal(err)
	}

	if len(stores.graph.edges) != 2 || len(stores.graph.nodes) != 4 {
		t.Errorf("re-running must not change graph state: %d nodes, %d edges",
			len(stores.graph.nodes), len(stores.graph.edges))
	}
}
