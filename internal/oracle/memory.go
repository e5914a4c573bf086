package oracle

import (
	"context"
	"fmt"
	"sync"
)

// MemoryOracle is an in-process price table, used in tests and as a
// fallback when no Redis is configured.
type MemoryOracle struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{quotes: make(map[string]Quote)}
}

func (o *MemoryOracle) GetPrice(_ context.Context, marketID string) (Quote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.quotes[marketID]
	if !ok {
		return Quote{}, fmt.Errorf("%s: %w", marketID, ErrNoQuote)
	}
	return q, nil
}

func (o *MemoryOracle) SetPrice(_ context.Context, marketID string, q Quote) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[marketID] = q
	return nil
}
