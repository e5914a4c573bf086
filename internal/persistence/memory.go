// Package persistence provides the durable and in-memory implementations
// of the engine's transactional store.
package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"PerpCore/internal/engine"
	"PerpCore/internal/event"
	"PerpCore/internal/state"
)

type posKey struct {
	owner  uuid.UUID
	market string
}

// MemoryStore is a process-local Store: one big lock, staged copies per
// transaction, commit-on-success. Used in tests and single-node setups;
// the Postgres store carries the same semantics durably.
type MemoryStore struct {
	mu        sync.Mutex
	markets   map[string]*state.Market
	positions map[posKey]*state.Position
	brackets  map[posKey]*state.BracketOrder
	stops     map[posKey]*state.StopOrder
	events    []event.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]*state.Market),
		positions: make(map[posKey]*state.Position),
		brackets:  make(map[posKey]*state.BracketOrder),
		stops:     make(map[posKey]*state.StopOrder),
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(engine.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:     s,
		markets:   make(map[string]*state.Market),
		positions: make(map[posKey]*state.Position),
		brackets:  make(map[posKey]*state.BracketOrder),
		stops:     make(map[posKey]*state.StopOrder),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// Events returns the committed event log.
func (s *MemoryStore) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// OpenPositionOwners returns owners with exposure in a market, for the
// keeper's scan loop.
func (s *MemoryStore) OpenPositionOwners(_ context.Context, marketID string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for k, p := range s.positions {
		if k.market == marketID && !p.IsFlat() {
			out = append(out, k.owner)
		}
	}
	return out, nil
}

// ArmedBracketOwners returns owners with an armed bracket order in a
// market.
func (s *MemoryStore) ArmedBracketOwners(_ context.Context, marketID string) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for k, b := range s.brackets {
		if k.market == marketID && b.Armed() {
			out = append(out, k.owner)
		}
	}
	return out, nil
}

// MarketIDs returns the committed market identifiers.
func (s *MemoryStore) MarketIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	return ids, nil
}

// memTx stages copies of every record it touches. Nothing reaches the
// store maps until commit.
type memTx struct {
	store     *MemoryStore
	markets   map[string]*state.Market
	positions map[posKey]*state.Position
	brackets  map[posKey]*state.BracketOrder
	stops     map[posKey]*state.StopOrder
	events    []event.Event
}

func (t *memTx) Market(id string) (*state.Market, error) {
	if m, ok := t.markets[id]; ok {
		return m, nil
	}
	src, ok := t.store.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, engine.ErrMarketNotFound)
	}
	cp := *src
	t.markets[id] = &cp
	return &cp, nil
}

func (t *memTx) Position(owner uuid.UUID, marketID string) (*state.Position, error) {
	k := posKey{owner: owner, market: marketID}
	if p, ok := t.positions[k]; ok {
		return p, nil
	}
	var cp state.Position
	if src, ok := t.store.positions[k]; ok {
		cp = *src
	} else {
		cp = state.Position{Owner: owner, MarketID: marketID, Side: state.SideFlat}
	}
	t.positions[k] = &cp
	return &cp, nil
}

func (t *memTx) Bracket(owner uuid.UUID, marketID string) (*state.BracketOrder, error) {
	k := posKey{owner: owner, market: marketID}
	if b, ok := t.brackets[k]; ok {
		return b, nil
	}
	var cp state.BracketOrder
	if src, ok := t.store.brackets[k]; ok {
		cp = *src
	} else {
		cp = state.BracketOrder{Owner: owner, MarketID: marketID}
	}
	t.brackets[k] = &cp
	return &cp, nil
}

func (t *memTx) Stop(owner uuid.UUID, marketID string) (*state.StopOrder, error) {
	k := posKey{owner: owner, market: marketID}
	if s, ok := t.stops[k]; ok {
		return s, nil
	}
	var cp state.StopOrder
	if src, ok := t.store.stops[k]; ok {
		cp = *src
	} else {
		cp = state.StopOrder{Owner: owner, MarketID: marketID}
	}
	t.stops[k] = &cp
	return &cp, nil
}

func (t *memTx) OpposingPositions(marketID string, side state.Side) ([]*state.Position, error) {
	var out []*state.Position
	seen := make(map[posKey]bool)
	for k, p := range t.positions {
		if k.market == marketID {
			seen[k] = true
			if p.Side == side && !p.IsFlat() {
				out = append(out, p)
			}
		}
	}
	for k, src := range t.store.positions {
		if k.market != marketID || seen[k] {
			continue
		}
		if src.Side != side || src.IsFlat() {
			continue
		}
		cp := *src
		t.positions[k] = &cp
		out = append(out, &cp)
	}
	return out, nil
}

func (t *memTx) CreateMarket(m *state.Market) error {
	if _, ok := t.store.markets[m.MarketID]; ok {
		return fmt.Errorf("market %s: %w", m.MarketID, engine.ErrMarketExists)
	}
	t.markets[m.MarketID] = m
	return nil
}

func (t *memTx) SaveMarket(m *state.Market) error {
	t.markets[m.MarketID] = m
	return nil
}

func (t *memTx) SavePosition(p *state.Position) error {
	t.positions[posKey{owner: p.Owner, market: p.MarketID}] = p
	return nil
}

func (t *memTx) SaveBracket(b *state.BracketOrder) error {
	t.brackets[posKey{owner: b.Owner, market: b.MarketID}] = b
	return nil
}

func (t *memTx) SaveStop(s *state.StopOrder) error {
	t.stops[posKey{owner: s.Owner, market: s.MarketID}] = s
	return nil
}

func (t *memTx) AppendEvent(evt event.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) commit() {
	for id, m := range t.markets {
		m.Version++
		t.store.markets[id] = m
	}
	for k, p := range t.positions {
		p.Version++
		t.store.positions[k] = p
	}
	for k, b := range t.brackets {
		b.Version++
		t.store.brackets[k] = b
	}
	for k, s := range t.stops {
		s.Version++
		t.store.stops[k] = s
	}
	t.store.events = append(t.store.events, t.events...)
}
