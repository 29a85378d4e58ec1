package deadletter

import (
	"encoding/json"
	"testing"

	"github.com/caresync/platform/internal/sync"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	vital := sync.NewVitalReading("p1", "North", "heartbeat", 140)
	rel := sync.NewRelationshipChange("doc001", "p1", "Dr. Alice", "Mohamed")

	tests := []struct {
		name string
		env  envelope
	}{
		{"vital reading", envelope{Kind: vital.Kind(), Vital: &vital}},
		{"relationship change", envelope{Kind: rel.Kind(), Relationship: &rel}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.env)
			if err != nil {
				t.Fatal(err)
			}
			var decoded envelope
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatal(err)
			}

			ev, err := decoded.event()
			if err != nil {
				t.Fatal(err)
			}
			if ev.Kind() != tt.env.Kind {
				t.Errorf("expected kind %s, got %s", tt.env.Kind, ev.Kind())
			}
			if ev.Patient() != "p1" {
				t.Errorf("expected patient p1, got %s", ev.Patient())
			}
		})
	}
}

func TestEnvelopeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		env  envelope
	}{
		{"unknown kind", envelope{Kind: "audit_trail"}},
		{"vital kind without payload", envelope{Kind: sync.KindVitalReading}},
		{"relationship kind without payload", envelope{Kind: sync.KindRelationshipChange}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.env.event(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
