// Package store defines the narrow adapter contracts the synchronization
// core depends on. Implementations wrap one concrete driver each and live in
// the subpackages; the core never imports a driver directly.
package store

import (
	"context"
	"time"
)

// Target names one logical store as it appears in event outcomes.
type Target string

const (
	TargetDocument   Target = "document"
	TargetGraph      Target = "graph"
	TargetTimeSeries Target = "timeseries"
	TargetAnalytics  Target = "analytics"
	TargetCache      Target = "cache"
)

// PatientRecord is the authoritative patient document.
type PatientRecord struct {
	ID             string   `json:"id" bson:"_id"`
	Name           string   `json:"name" bson:"name"`
	Region         string   `json:"region" bson:"region"`
	MedicalHistory []string `json:"medical_history" bson:"medical_history"`
	// DoctorID is a weak reference; empty means no treating doctor.
	DoctorID string `json:"doctor_id,omitempty" bson:"doctor_id,omitempty"`
}

// DoctorRecord is the authoritative doctor document.
type DoctorRecord struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
}

// AnalyticsRow is one durable per-metric measurement, partitioned by
// (region, patient) and clustered by time and metric.
type AnalyticsRow struct {
	Region     string    `json:"region"`
	PatientID  string    `json:"patient_id"`
	MeasuredAt time.Time `json:"measured_at"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
}

// DocumentStore is the authoritative record store for patients and doctors.
type DocumentStore interface {
	UpsertPatient(ctx context.Context, p PatientRecord) error
	UpsertDoctor(ctx context.Context, d DoctorRecord) error
	FindPatientsByRegion(ctx context.Context, region string) ([]PatientRecord, error)
	FindAllPatients(ctx context.Context) ([]PatientRecord, error)
	FindAllDoctors(ctx context.Context) ([]DoctorRecord, error)
	Ping(ctx context.Context) error
}

// GraphStore mirrors doctor-patient care relationships. All writes are
// idempotent merges: re-applying the same node or edge is a no-op.
type GraphStore interface {
	MergeDoctorNode(ctx context.Context, id, name string) error
	MergePatientNode(ctx context.Context, id, name string) error
	// MergeTreatsEdge requires both endpoint nodes to exist already; a
	// missing endpoint is an ordering violation, not a silent no-op.
	MergeTreatsEdge(ctx context.Context, doctorID, patientID string) error
	Ping(ctx context.Context) error
}

// TimeSeriesStore records high-frequency vital-sign samples.
type TimeSeriesStore interface {
	WriteSample(ctx context.Context, metric string, tags map[string]string, value float64, ts time.Time) error
	Ping(ctx context.Context) error
}

// AnalyticsStore keeps the append-only per-metric history.
type AnalyticsStore interface {
	InsertRow(ctx context.Context, row AnalyticsRow) error
	QueryRecent(ctx context.Context, patientID string, limit int) ([]AnalyticsRow, error)
	Ping(ctx context.Context) error
}

// CacheStore holds transient alert flags. No persistence requirement across
// restarts.
type CacheStore interface {
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}
