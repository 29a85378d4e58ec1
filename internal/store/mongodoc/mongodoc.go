// Package mongodoc implements the authoritative document store on MongoDB.
package mongodoc

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/caresync/platform/internal/shared/config"
	"github.com/caresync/platform/internal/shared/metrics"
	"github.com/caresync/platform/internal/store"
)

// Store implements store.DocumentStore. Writes use majority write concern
// with a bounded wait, per the consistency policy for authoritative records.
type Store struct {
	client   *mongo.Client
	patients *mongo.Collection
	doctors  *mongo.Collection
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetReadPreference(readpref.Primary())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	wc := &writeconcern.WriteConcern{W: "majority", WTimeout: cfg.WriteTimeout}
	db := client.Database(cfg.Database)
	collOpts := options.Collection().SetWriteConcern(wc)

	return &Store{
		client:   client,
		patients: db.Collection("patients", collOpts),
		doctors:  db.Collection("doctors", collOpts),
	}, nil
}

// UpsertPatient creates or replaces the patient document keyed by its ID.
func (s *Store) UpsertPatient(ctx context.Context, p store.PatientRecord) error {
	defer observe("upsert_patient")()
	_, err := s.patients.UpdateByID(ctx, p.ID,
		bson.M{"$set": p},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert patient %s: %w", p.ID, err)
	}
	return nil
}

// UpsertDoctor creates or replaces the doctor document keyed by its ID.
func (s *Store) UpsertDoctor(ctx context.Context, d store.DoctorRecord) error {
	defer observe("upsert_doctor")()
	_, err := s.doctors.UpdateByID(ctx, d.ID,
		bson.M{"$set": d},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert doctor %s: %w", d.ID, err)
	}
	return nil
}

// FindPatientsByRegion returns the patients recorded in one region.
func (s *Store) FindPatientsByRegion(ctx context.Context, region string) ([]store.PatientRecord, error) {
	defer observe("find_patients_by_region")()
	return s.findPatients(ctx, bson.M{"region": region})
}

// FindAllPatients returns the full patient set.
func (s *Store) FindAllPatients(ctx context.Context) ([]store.PatientRecord, error) {
	defer observe("find_all_patients")()
	return s.findPatients(ctx, bson.M{})
}

func (s *Store) findPatients(ctx context.Context, filter bson.M) ([]store.PatientRecord, error) {
	cur, err := s.patients.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	var out []store.PatientRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	return out, nil
}

// FindAllDoctors returns the full doctor set.
func (s *Store) FindAllDoctors(ctx context.Context) ([]store.DoctorRecord, error) {
	defer observe("find_all_doctors")()
	cur, err := s.doctors.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find doctors: %w", err)
	}
	var out []store.DoctorRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode doctors: %w", err)
	}
	return out, nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveAdapterCall(string(store.TargetDocument), op, time.Since(start))
	}
}

var _ store.DocumentStore = (*Store)(nil)
