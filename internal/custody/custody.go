// Package custody abstracts movement of quote-asset funds between traders
// and the venue's vault. The core ledger only counts collateral; custody
// owns the actual asset flow.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrVaultUnderflow is returned when an outbound transfer exceeds the
// vault's recorded holdings for the asset.
var ErrVaultUnderflow = errors.New("vault balance underflow")

// Custody moves funds between a trader and the venue vault. TransferIn
// pulls amount of asset from the owner into the vault; TransferOut pays it
// back out. Implementations must reject before moving anything, or not at
// all.
type Custody interface {
	TransferIn(ctx context.Context, owner uuid.UUID, asset string, amount int64) error
	TransferOut(ctx context.Context, owner uuid.UUID, asset string, amount int64) error
}

// VaultRecorder is an in-memory Custody that tracks per-asset vault totals
// and per-owner net flow. Inbound transfers always succeed; outbound
// transfers fail if they would drive the vault negative.
type VaultRecorder struct {
	mu     sync.Mutex
	vault  map[string]int64
	byUser map[uuid.UUID]map[string]int64
}

func NewVaultRecorder() *VaultRecorder {
	return &VaultRecorder{
		vault:  make(map[string]int64),
		byUser: make(map[uuid.UUID]map[string]int64),
	}
}

func (v *VaultRecorder) TransferIn(_ context.Context, owner uuid.UUID, asset string, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vault[asset] += amount
	v.userFlows(owner)[asset] += amount
	return nil
}

func (v *VaultRecorder) TransferOut(_ context.Context, owner uuid.UUID, asset string, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vault[asset] < amount {
		return fmt.Errorf("transfer out %d %s: %w", amount, asset, ErrVaultUnderflow)
	}
	v.vault[asset] -= amount
	v.userFlows(owner)[asset] -= amount
	return nil
}

// VaultBalance returns the vault's recorded holdings for an asset.
func (v *VaultRecorder) VaultBalance(asset string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vault[asset]
}

// NetFlow returns the owner's net inbound flow for an asset.
func (v *VaultRecorder) NetFlow(owner uuid.UUID, asset string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.userFlows(owner)[asset]
}

func (v *VaultRecorder) userFlows(owner uuid.UUID) map[string]int64 {
	flows, ok := v.byUser[owner]
	if !ok {
		flows = make(map[string]int64)
		v.byUser[owner] = flows
	}
	return flows
}
