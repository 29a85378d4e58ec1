// Package cassandra implements the wide-column analytics store on Cassandra.
package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/caresync/platform/internal/shared/config"
	"github.com/caresync/platform/internal/shared/metrics"
	"github.com/caresync/platform/internal/store"
)

// Store implements store.AnalyticsStore. History rows are partitioned by
// (region, patient) and clustered by measurement time descending; inserting
// the same primary key again overwrites in place, so retried events never
// duplicate semantically-identical rows.
type Store struct {
	session  *gocql.Session
	keyspace string
}

// New connects to the cluster with single-replica consistency, acceptable
// because this store is an append-only history, not a decision input.
func New(cfg config.CassandraConfig) (*Store, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.One
	cluster.Timeout = 5 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cassandra: %w", err)
	}
	return &Store{session: session, keyspace: cfg.Keyspace}, nil
}

// EnsureSchema creates the keyspace and analytics table if absent. Called
// once at process bootstrap, never from the dispatch path.
func EnsureSchema(cfg config.CassandraConfig) error {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Consistency = gocql.One
	cluster.Timeout = 10 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect for schema setup: %w", err)
	}
	defer session.Close()

	if err := session.Query(fmt.Sprintf(`
		CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '1'}
	`, cfg.Keyspace)).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}

	if err := session.Query(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.patient_analytics (
			region text,
			patient_id text,
			measurement_time timestamp,
			metric text,
			value double,
			PRIMARY KEY ((region, patient_id), measurement_time, metric)
		) WITH CLUSTERING ORDER BY (measurement_time DESC)
	`, cfg.Keyspace)).Exec(); err != nil {
		return fmt.Errorf("create analytics table: %w", err)
	}
	return nil
}

// InsertRow records one measurement in the durable history.
func (s *Store) InsertRow(ctx context.Context, row store.AnalyticsRow) error {
	defer observe("insert_row")()
	err := s.session.Query(`
		INSERT INTO patient_analytics (region, patient_id, measurement_time, metric, value)
		VALUES (?, ?, ?, ?, ?)
	`, row.Region, row.PatientID, row.MeasuredAt, row.Metric, row.Value).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("insert analytics row for %s: %w", row.PatientID, err)
	}
	return nil
}

// QueryRecent returns the latest rows for one patient across regions. Serves
// the low-volume operational read endpoint, hence the filtering scan.
func (s *Store) QueryRecent(ctx context.Context, patientID string, limit int) ([]store.AnalyticsRow, error) {
	defer observe("query_recent")()
	if limit <= 0 {
		limit = 10
	}
	iter := s.session.Query(`
		SELECT region, patient_id, measurement_time, metric, value
		FROM patient_analytics
		WHERE patient_id = ?
		LIMIT ?
		ALLOW FILTERING
	`, patientID, limit).WithContext(ctx).Iter()

	var out []store.AnalyticsRow
	var row store.AnalyticsRow
	for iter.Scan(&row.Region, &row.PatientID, &row.MeasuredAt, &row.Metric, &row.Value) {
		out = append(out, row)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("query recent analytics for %s: %w", patientID, err)
	}
	return out, nil
}

// Ping verifies the session is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.session.Query("SELECT release_version FROM system.local").
		WithContext(ctx).Exec()
}

// Close closes the session.
func (s *Store) Close() {
	s.session.Close()
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveAdapterCall(string(store.TargetAnalytics), op, time.Since(start))
	}
}

var _ store.AnalyticsStore = (*Store)(nil)
