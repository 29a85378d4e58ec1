// Package neo4jgraph implements the care-relationship graph store on Neo4j.
package neo4jgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/caresync/platform/internal/shared/config"
	"github.com/caresync/platform/internal/shared/errors"
	"github.com/caresync/platform/internal/shared/metrics"
	"github.com/caresync/platform/internal/store"
)

// Store implements store.GraphStore. All writes are Cypher MERGE statements,
// so replaying the same node or edge converges without duplicates.
type Store struct {
	driver neo4j.DriverWithContext
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg config.Neo4jConfig) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}
	return &Store{driver: driver}, nil
}

// MergeDoctorNode creates the doctor node if absent.
func (s *Store) MergeDoctorNode(ctx context.Context, id, name string) error {
	defer observe("merge_doctor_node")()
	return s.run(ctx,
		"MERGE (d:Doctor {id: $id}) ON CREATE SET d.name = $name",
		map[string]any{"id": id, "name": name},
	)
}

// MergePatientNode creates the patient node if absent.
func (s *Store) MergePatientNode(ctx context.Context, id, name string) error {
	defer observe("merge_patient_node")()
	return s.run(ctx,
		"MERGE (p:Patient {id: $id}) ON CREATE SET p.name = $name",
		map[string]any{"id": id, "name": name},
	)
}

// MergeTreatsEdge creates the TREATS edge between existing nodes. A missing
// endpoint surfaces as an ordering violation instead of the silent no-op a
// bare MATCH would produce.
func (s *Store) MergeTreatsEdge(ctx context.Context, doctorID, patientID string) error {
	defer observe("merge_treats_edge")()
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Doctor {id: $doctor_id}), (p:Patient {id: $patient_id})
		MERGE (d)-[:TREATS]->(p)
		RETURN count(*) AS merged
	`, map[string]any{"doctor_id": doctorID, "patient_id": patientID})
	if err != nil {
		return fmt.Errorf("merge treats edge %s->%s: %w", doctorID, patientID, err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("merge treats edge %s->%s: %w", doctorID, patientID, err)
	}
	merged, _ := record.Get("merged")
	if count, ok := merged.(int64); ok && count == 0 {
		return errors.OrderingViolation(
			fmt.Sprintf("treats edge %s->%s: one or both endpoint nodes missing", doctorID, patientID),
		)
	}
	return nil
}

func (s *Store) run(ctx context.Context, cypher string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close closes the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveAdapterCall(string(store.TargetGraph), op, time.Since(start))
	}
}

var _ store.GraphStore = (*Store)(nil)
