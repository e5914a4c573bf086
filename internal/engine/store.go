package engine

import (
	"context"

	"github.com/google/uuid"

	"PerpCore/internal/event"
	"PerpCore/internal/state"
)

// Tx is one atomic read-modify-write scope over the records an operation
// touches. Implementations must serialize concurrent transactions on the
// same market and (owner, market) records so that racing liquidators
// observe either the reduced size or the recovered margin, never a stale
// snapshot.
type Tx interface {
	// Market returns the locked market record or ErrMarketNotFound.
	Market(id string) (*state.Market, error)

	// Position returns the locked position record, creating a zeroed one
	// on first touch. Positions are never deleted, only zeroed.
	Position(owner uuid.UUID, marketID string) (*state.Position, error)

	// Bracket returns the locked bracket order record, creating an inert
	// one on first touch.
	Bracket(owner uuid.UUID, marketID string) (*state.BracketOrder, error)

	// Stop returns the locked stop order record, creating an inert one on
	// first touch.
	Stop(owner uuid.UUID, marketID string) (*state.StopOrder, error)

	// OpposingPositions returns open positions on the given side of a
	// market, for the auto-deleverage hook.
	OpposingPositions(marketID string, side state.Side) ([]*state.Position, error)

	CreateMarket(m *state.Market) error
	SaveMarket(m *state.Market) error
	SavePosition(p *state.Position) error
	SaveBracket(b *state.BracketOrder) error
	SaveStop(s *state.StopOrder) error

	// AppendEvent records an outbound event in the same atomic scope.
	AppendEvent(evt event.Event) error
}

// Store runs an operation body in one transaction: either every effect
// commits or none do.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// EventSink receives committed events for external transport.
type EventSink interface {
	Publish(ctx context.Context, evt event.Event) error
}

// NopSink discards events; used when no transport is wired.
type NopSink struct{}

func (NopSink) Publish(context.Context, event.Event) error { return nil }
