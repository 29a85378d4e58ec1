package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/caresync/platform/internal/store"
	"github.com/caresync/platform/internal/sync"
)

type memStores struct {
	mu       stdsync.Mutex
	patients map[string]store.PatientRecord
	doctors  map[string]store.DoctorRecord
	rows     []store.AnalyticsRow
	cache    map[string]string
	samples  int
	nodes    map[string]bool
	edges    map[string]bool
}

func newMemStores() *memStores {
	return &memStores{
		patients: make(map[string]store.PatientRecord),
		doctors:  make(map[string]store.DoctorRecord),
		cache:    make(map[string]string),
		nodes:    make(map[string]bool),
		edges:    make(map[string]bool),
	}
}

func (m *memStores) UpsertPatient(ctx context.Context, p store.PatientRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
	return nil
}

func (m *memStores) UpsertDoctor(ctx context.Context, d store.DoctorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
	return nil
}

func (m *memStores) FindPatientsByRegion(ctx context.Context, region string) ([]store.PatientRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PatientRecord
	for _, p := range m.patients {
		if p.Region == region {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStores) FindAllPatients(ctx context.Context) ([]store.PatientRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.PatientRecord, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStores) FindAllDoctors(ctx context.Context) ([]store.DoctorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.DoctorRecord, 0, len(m.doctors))
	for _, d := range m.doctors {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStores) InsertRow(ctx context.Context, row store.AnalyticsRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row)
	return nil
}

func (m *memStores) QueryRecent(ctx context.Context, patientID string, limit int) ([]store.AnalyticsRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.AnalyticsRow
	for _, r := range m.rows {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStores) WriteSample(ctx context.Context, metric string, tags map[string]string, value float64, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples++
	return nil
}

func (m *memStores) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *memStores) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

func (m *memStores) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cache[key]
	return v, ok, nil
}

func (m *memStores) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.cache))
	for k := range m.cache {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memStores) MergeDoctorNode(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes["doctor:"+id] = true
	return nil
}

func (m *memStores) MergePatientNode(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes["patient:"+id] = true
	return nil
}

func (m *memStores) MergeTreatsEdge(ctx context.Context, doctorID, patientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[doctorID+"->"+patientID] = true
	return nil
}

func (m *memStores) Ping(ctx context.Context) error { return nil }

func newTestHandler(t *testing.T) (*Handler, *memStores, func()) {
	t.Helper()
	stores := newMemStores()

	dispatcher := sync.NewDispatcher(sync.Deps{
		TimeSeries: stores,
		Analytics:  stores,
		Cache:      stores,
		Graph:      stores,
	})
	svc := sync.NewService(dispatcher, sync.ServiceConfig{Workers: 2, QueueSize: 16})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	reconciler := sync.NewReconciler(stores, dispatcher, 0, 0, nil)

	h := NewHandler(svc, dispatcher, reconciler, stores, stores, stores)
	return h, stores, svc.Stop
}

func TestSubmitVitalSynchronous(t *testing.T) {
	h, stores, stop := newTestHandler(t)
	defer stop()

	body := `{"patient_id":"p1","region":"North","metric":"heartbeat","value":45,"wait":true}`
	req := httptest.NewRequest(http.MethodPost, "/events/vitals", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var outcome sync.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.Status != sync.OutcomeCommitted {
		t.Errorf("expected committed outcome, got %s", outcome.Status)
	}
	if msg := stores.cache["alert:p1"]; msg != "Abnormal heartbeat detected: 45.00" {
		t.Errorf("unexpected alert flag: %q", msg)
	}
}

func TestSubmitVitalAsynchronous(t *testing.T) {
	h, _, stop := newTestHandler(t)

	body := `{"patient_id":"p1","region":"North","metric":"heartbeat","value":72}`
	req := httptest.NewRequest(http.MethodPost, "/events/vitals", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["event_id"] == "" {
		t.Error("accepted response must carry the event ID")
	}

	stop() // drain before asserting side effects
	stats := h.service.Stats()
	if stats.Committed != 1 {
		t.Errorf("expected 1 committed event, got %+v", stats)
	}
}

func TestSubmitVitalInvalid(t *testing.T) {
	h, _, stop := newTestHandler(t)
	defer stop()

	body := `{"region":"North","metric":"heartbeat","value":72,"wait":true}`
	req := httptest.NewRequest(http.MethodPost, "/events/vitals", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a reading without a patient, got %d", rec.Code)
	}
}

func TestSubmitRelationshipSynchronous(t *testing.T) {
	h, stores, stop := newTestHandler(t)
	defer stop()

	body := `{"doctor_id":"doc001","patient_id":"p1","doctor_name":"Dr. Alice","patient_name":"Mohamed","wait":true}`
	req := httptest.NewRequest(http.MethodPost, "/events/relationships", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !stores.edges["doc001->p1"] {
		t.Error("expected the treats edge after a synchronous dispatch")
	}
}

func TestUpsertPatientMirrorsRelationship(t *testing.T) {
	h, stores, stop := newTestHandler(t)

	body := `{"name":"Mohamed","region":"North","doctor_id":"doc001","doctor_name":"Dr. Alice"}`
	req := httptest.NewRequest(http.MethodPut, "/patients/p1", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, ok := stores.patients["p1"]; !ok {
		t.Fatal("patient record not written")
	}

	stop() // drain the derived relationship event
	if !stores.edges["doc001->p1"] {
		t.Error("expected the derived treats edge in the graph")
	}
}

func TestUpsertPatientRequiresName(t *testing.T) {
	h, _, stop := newTestHandler(t)
	defer stop()

	req := httptest.NewRequest(http.MethodPut, "/patients/p1", strings.NewReader(`{"region":"North"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPatientAlertLifecycle(t *testing.T) {
	h, _, stop := newTestHandler(t)
	defer stop()

	router := h.Routes()
	submit := func(value float64) {
		t.Helper()
		body := `{"patient_id":"p1","region":"North","metric":"heartbeat","value":` + jsonNumber(value) + `,"wait":true}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events/vitals", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("submit failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	// No alert before any abnormal reading.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/p1/alert", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without an alert, got %d", rec.Code)
	}

	submit(45)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/p1/alert", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with an active alert, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listing struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	if listing.Total != 1 {
		t.Errorf("expected 1 active alert, got %d", listing.Total)
	}

	// Recovery clears the flag.
	submit(72)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/p1/alert", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after recovery, got %d", rec.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	h, stores, stop := newTestHandler(t)
	defer stop()

	ctx := context.Background()
	stores.UpsertDoctor(ctx, store.DoctorRecord{ID: "doc001", Name: "Dr. Alice"})
	stores.UpsertPatient(ctx, store.PatientRecord{ID: "p1", Name: "Mohamed", Region: "North", DoctorID: "doc001"})
	stores.UpsertPatient(ctx, store.PatientRecord{ID: "p2", Name: "Jelena", Region: "North"})

	rec := httptest.NewRecorder()
	h.AdminRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reconcile?region=North", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary sync.RunSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary.Total != 2 || len(summary.Succeeded) != 1 || len(summary.Skipped) != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func jsonNumber(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
