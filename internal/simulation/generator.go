// Package simulation generates randomized demo vital readings. Explicitly
// non-core: the alert evaluator never consults it, and its "normal" band is
// a test-data convenience, not a product rule.
package simulation

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/caresync/platform/internal/shared/config"
	"github.com/caresync/platform/internal/sync"
)

// Patient is one simulated subject.
type Patient struct {
	ID     string
	Region string
}

// DefaultPatients mirrors the demo dataset.
var DefaultPatients = []Patient{
	{ID: "patient001", Region: "North"},
	{ID: "patient002", Region: "South"},
}

// Generator periodically submits heartbeat readings for a fixed patient set.
type Generator struct {
	cfg      config.SimulationConfig
	patients []Patient
	submit   func(context.Context, sync.Event) error
	rng      *rand.Rand
}

// NewGenerator creates a generator submitting through the given function,
// typically sync.Service.Submit.
func NewGenerator(cfg config.SimulationConfig, patients []Patient, submit func(context.Context, sync.Event) error) *Generator {
	if len(patients) == 0 {
		patients = DefaultPatients
	}
	return &Generator{
		cfg:      cfg,
		patients: patients,
		submit:   submit,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run emits readings until the context is canceled.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := g.patients[g.rng.Intn(len(g.patients))]
			ev := sync.NewVitalReading(p.ID, p.Region, "heartbeat", g.nextValue())
			if err := g.submit(ctx, ev); err != nil {
				log.Printf("simulation submit failed: %v", err)
			}
		}
	}
}

// nextValue draws from the normal band, occasionally spiking out of range to
// exercise the alert path.
func (g *Generator) nextValue() float64 {
	if g.rng.Float64() < g.cfg.SpikeChance {
		if g.rng.Intn(2) == 0 {
			return g.cfg.NormalLow - 10 - g.rng.Float64()*20
		}
		return g.cfg.NormalHigh + 20 + g.rng.Float64()*30
	}
	return g.cfg.NormalLow + g.rng.Float64()*(g.cfg.NormalHigh-g.cfg.NormalLow)
}
