// Package publisher sends committed events to NATS JetStream for
// downstream consumers (projections, notification fan-out, analytics).
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PerpCore/internal/event"
)

const (
	// StreamName holds every outbound core event.
	StreamName = "PERP_EVENTS"

	// SubjectPrefix roots the per-type subjects:
	// perp.events.positionliquidated, perp.events.fundingsettled, ...
	SubjectPrefix = "perp.events"
)

// NATSPublisher is an engine.EventSink over JetStream. Publishing happens
// after the store transaction committed; a failed publish is logged and
// recovered from the durable event_log, never retried inline.
type NATSPublisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

func New(nc *nats.Conn, log zerolog.Logger) (*NATSPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return &NATSPublisher{js: js, log: log}, nil
}

// EnsureStream creates the event stream if it does not exist.
func (p *NATSPublisher) EnsureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	return nil
}

func (p *NATSPublisher) Publish(ctx context.Context, evt event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}
	subject := Subject(evt.EventType())
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug().
		Str("subject", subject).
		Str("market_id", evt.MarketID()).
		Msg("event published")
	return nil
}

// Subject returns the JetStream subject for an event type.
func Subject(et event.EventType) string {
	return SubjectPrefix + "." + strings.ToLower(et.String())
}
