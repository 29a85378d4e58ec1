// Package sync implements the synchronization core: domain events, the
// fan-out dispatcher, the consistency policy, the alert evaluator and the
// directory reconciler.
package sync

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindVitalReading       = "vital_reading"
	KindRelationshipChange = "relationship_change"
)

// Event is one incoming clinical event. Events for the same patient apply in
// submission order; events for different patients carry no ordering guarantee.
type Event interface {
	// EventID identifies the event across retries.
	EventID() string
	// Kind returns the event kind constant.
	Kind() string
	// Patient returns the patient ID the event belongs to. Used for
	// ordered partitioning in the worker pool.
	Patient() string
}

// VitalReading is one vital-sign sample for a patient.
type VitalReading struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	Region     string    `json:"region"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	MeasuredAt time.Time `json:"measured_at"`
}

// NewVitalReading creates a vital reading stamped with an event ID and a UTC
// measurement time.
func NewVitalReading(patientID, region, metric string, value float64) VitalReading {
	return VitalReading{
		ID:         uuid.New().String(),
		PatientID:  patientID,
		Region:     region,
		Metric:     metric,
		Value:      value,
		MeasuredAt: time.Now().UTC(),
	}
}

func (v VitalReading) EventID() string { return v.ID }
func (v VitalReading) Kind() string    { return KindVitalReading }
func (v VitalReading) Patient() string { return v.PatientID }

// RelationshipChange mirrors a doctor-patient care relationship into the
// graph store. Derived entirely from the patient's doctor reference; never
// independently authored.
type RelationshipChange struct {
	ID          string `json:"id"`
	DoctorID    string `json:"doctor_id"`
	PatientID   string `json:"patient_id"`
	DoctorName  string `json:"doctor_name"`
	PatientName string `json:"patient_name"`
}

// NewRelationshipChange creates a relationship change stamped with an event ID.
func NewRelationshipChange(doctorID, patientID, doctorName, patientName string) RelationshipChange {
	return RelationshipChange{
		ID:          uuid.New().String(),
		DoctorID:    doctorID,
		PatientID:   patientID,
		DoctorName:  doctorName,
		PatientName: patientName,
	}
}

func (r RelationshipChange) EventID() string { return r.ID }
func (r RelationshipChange) Kind() string    { return KindRelationshipChange }
func (r RelationshipChange) Patient() string { return r.PatientID }
