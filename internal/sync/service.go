package sync

import (
	"context"
	"fmt"
	"hash/fnv"
	stdsync "sync"
)

// ServiceConfig bounds the event worker pool.
type ServiceConfig struct {
	// Workers is the number of partitioned workers.
	Workers int

	// QueueSize is the per-worker buffered queue depth. Submit blocks
	// once a partition's queue is full, bounding in-flight work against
	// slow downstream stores.
	QueueSize int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Workers:   4,
		QueueSize: 256,
	}
}

// ServiceStats are cumulative counters for one service instance.
type ServiceStats struct {
	Submitted       uint64
	Committed       uint64
	PartialFailures uint64
	Invalid         uint64
}

// Service runs a pool of event workers over a Dispatcher. Events are
// partitioned by patient ID onto a fixed worker, so one patient's events
// apply in submission order while different patients run fully in parallel.
// A stuck store slows only the partitions hashing to its in-flight events,
// never acceptance on other partitions.
type Service struct {
	dispatcher *Dispatcher
	queues     []chan Event

	mu      stdsync.Mutex
	stats   ServiceStats
	started bool

	stopCh     chan struct{}
	wg         stdsync.WaitGroup
	submitters stdsync.WaitGroup
}

// NewService creates an event processing service over the dispatcher.
func NewService(dispatcher *Dispatcher, cfg ServiceConfig) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	queues := make([]chan Event, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan Event, cfg.QueueSize)
	}
	return &Service{
		dispatcher: dispatcher,
		queues:     queues,
		stopCh:     make(chan struct{}),
	}
}

// Start starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := range s.queues {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	return nil
}

// Stop drains the queues and stops the workers.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	// Every in-flight Submit must return before the queues close; a send
	// racing the close would panic.
	s.submitters.Wait()
	for _, q := range s.queues {
		close(q)
	}
	s.wg.Wait()
}

// Submit enqueues an event on its patient's partition. Blocks while the
// partition queue is full; returns the context error if the caller gives up
// first, and an error once the service is stopped.
func (s *Service) Submit(ctx context.Context, ev Event) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("service not running")
	}
	s.submitters.Add(1)
	s.mu.Unlock()
	defer s.submitters.Done()

	q := s.queues[s.partition(ev.Patient())]
	select {
	case q <- ev:
		s.mu.Lock()
		s.stats.Submitted++
		s.mu.Unlock()
		return nil
	case <-s.stopCh:
		return fmt.Errorf("service stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the cumulative counters.
func (s *Service) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Service) worker(ctx context.Context, idx int) {
	defer s.wg.Done()
	for ev := range s.queues[idx] {
		outcome := s.dispatcher.Dispatch(ctx, ev)

		s.mu.Lock()
		switch outcome.Status {
		case OutcomeCommitted:
			s.stats.Committed++
		case OutcomePartialFailure:
			s.stats.PartialFailures++
		case OutcomeInvalid:
			s.stats.Invalid++
		}
		s.mu.Unlock()
	}
}

// partition maps a patient ID to a worker index.
func (s *Service) partition(patientID string) int {
	h := fnv.New32a()
	h.Write([]byte(patientID))
	return int(h.Sum32() % uint32(len(s.queues)))
}
