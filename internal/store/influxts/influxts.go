// Package influxts implements the vital-sign time-series store on InfluxDB.
package influxts

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/caresync/platform/internal/shared/config"
	"github.com/caresync/platform/internal/shared/metrics"
	"github.com/caresync/platform/internal/store"
)

// Store implements store.TimeSeriesStore. Writes are best-effort per the
// consistency policy; only a failed call itself is recorded.
type Store struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// New creates the InfluxDB client. Samples are written with second
// precision.
func New(cfg config.InfluxConfig) *Store {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetPrecision(time.Second))
	return &Store{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// WriteSample appends one measurement point.
func (s *Store) WriteSample(ctx context.Context, metric string, tags map[string]string, value float64, ts time.Time) error {
	defer observe("write_sample")()
	point := write.NewPoint(metric, tags, map[string]any{"value": value}, ts)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write %s sample: %w", metric, err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("influxdb not ready")
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() {
	s.client.Close()
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveAdapterCall(string(store.TargetTimeSeries), op, time.Since(start))
	}
}

var _ store.TimeSeriesStore = (*Store)(nil)
