package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/caresync/platform/internal/sync"
)

// envelope is the stored form of one dead-lettered event together with the
// outcome that sent it here.
type envelope struct {
	Kind         string                   `json:"kind"`
	Vital        *sync.VitalReading       `json:"vital,omitempty"`
	Relationship *sync.RelationshipChange `json:"relationship,omitempty"`
	Outcome      sync.Outcome             `json:"outcome"`
}

func (e envelope) event() (sync.Event, error) {
	switch e.Kind {
	case sync.KindVitalReading:
		if e.Vital == nil {
			return nil, fmt.Errorf("dead-letter envelope missing vital payload")
		}
		return *e.Vital, nil
	case sync.KindRelationshipChange:
		if e.Relationship == nil {
			return nil, fmt.Errorf("dead-letter envelope missing relationship payload")
		}
		return *e.Relationship, nil
	default:
		return nil, fmt.Errorf("unknown dead-letter kind %q", e.Kind)
	}
}

// Stream appends failed events to one EventStoreDB stream and replays them
// back through the dispatcher.
type Stream struct {
	client *Client
	name   string
}

// NewStream creates a dead-letter stream handle.
func NewStream(client *Client, name string) *Stream {
	return &Stream{client: client, name: name}
}

// Append stores one failed event. Implements sync.DeadLetter.
func (s *Stream) Append(ctx context.Context, ev sync.Event, outcome sync.Outcome) error {
	env := envelope{Kind: ev.Kind(), Outcome: outcome}
	switch e := ev.(type) {
	case sync.VitalReading:
		env.Vital = &e
	case sync.RelationshipChange:
		env.Relationship = &e
	default:
		return fmt.Errorf("unsupported event kind %q", ev.Kind())
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal dead-letter envelope: %w", err)
	}

	_, err = s.client.DB().AppendToStream(ctx, s.name, esdb.AppendToStreamOptions{}, esdb.EventData{
		EventID:     uuid.New(),
		EventType:   "deadletter." + ev.Kind(),
		ContentType: esdb.ContentTypeJson,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("append to dead-letter stream: %w", err)
	}
	return nil
}

// ReplayReport summarizes one replay pass.
type ReplayReport struct {
	Read         int    `json:"read"`
	Recovered    int    `json:"recovered"`
	StillFailing int    `json:"still_failing"`
	NextRevision uint64 `json:"next_revision"`
}

// Replay re-dispatches up to max dead-lettered events starting at the given
// stream revision. Events that fail again are re-appended by the dispatcher
// itself, so the stream stays the single holding area. Returns the revision
// to resume from.
func (s *Stream) Replay(ctx context.Context, dispatcher *sync.Dispatcher, from uint64, max int) (ReplayReport, error) {
	report := ReplayReport{NextRevision: from}
	if max <= 0 {
		max = 100
	}

	stream, err := s.client.DB().ReadStream(ctx, s.name, esdb.ReadStreamOptions{
		From:      esdb.Revision(from),
		Direction: esdb.Forwards,
	}, uint64(max))
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
			// Nothing dead-lettered yet.
			return report, nil
		}
		return report, fmt.Errorf("read dead-letter stream: %w", err)
	}
	defer stream.Close()

	for {
		resolved, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return report, nil
			}
			if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return report, nil
			}
			return report, fmt.Errorf("receive dead-letter event: %w", err)
		}

		report.Read++
		report.NextRevision = resolved.Event.EventNumber + 1

		var env envelope
		if err := json.Unmarshal(resolved.Event.Data, &env); err != nil {
			// Undecodable entries stay behind for manual inspection.
			report.StillFailing++
			continue
		}
		ev, err := env.event()
		if err != nil {
			report.StillFailing++
			continue
		}

		outcome := dispatcher.Dispatch(ctx, ev)
		if outcome.Committed() {
			report.Recovered++
		} else {
			report.StillFailing++
		}
	}
}

var _ sync.DeadLetter = (*Stream)(nil)
