package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ManualLedger is an in-memory Reader used for tests and for manual
// overrides during incident response. It applies the same account
// normalisation as the EVM reader so lookups are case-insensitive.
type ManualLedger struct {
	mu        sync.RWMutex
	tiers     map[uint64]TierInfo
	ownership map[string]map[uint64]bool
}

// NewManualLedger constructs an empty manual ledger.
func NewManualLedger() *ManualLedger {
	return &ManualLedger{
		tiers:     make(map[uint64]TierInfo),
		ownership: make(map[string]map[uint64]bool),
	}
}

func manualAccountKey(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

// SetTier records or replaces a tier definition.
func (m *ManualLedger) SetTier(info TierInfo) {
	if m == nil || info.ID == 0 {
		return
	}
	m.mu.Lock()
	m.tiers[info.ID] = info.Clone()
	m.mu.Unlock()
}

// RemoveTier deletes a tier definition. Ownership entries for the tier are
// kept so stale references can be exercised in tests.
func (m *ManualLedger) RemoveTier(id uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.tiers, id)
	m.mu.Unlock()
}

// Grant marks the account as holding the tier.
func (m *ManualLedger) Grant(account string, id uint64) {
	if m == nil {
		return
	}
	key := manualAccountKey(account)
	if key == "" {
		return
	}
	m.mu.Lock()
	holdings := m.ownership[key]
	if holdings == nil {
		holdings = make(map[uint64]bool)
		m.ownership[key] = holdings
	}
	holdings[id] = true
	m.mu.Unlock()
}

// Revoke clears the account's holding of the tier.
func (m *ManualLedger) Revoke(account string, id uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if holdings := m.ownership[manualAccountKey(account)]; holdings != nil {
		delete(holdings, id)
	}
	m.mu.Unlock()
}

// ListActiveTierIDs returns the ids of all active tiers in ascending order.
func (m *ManualLedger) ListActiveTierIDs(ctx context.Context) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint64, 0, len(m.tiers))
	for id, info := range m.tiers {
		if info.Active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetTierInfo returns the stored definition for the tier.
func (m *ManualLedger) GetTierInfo(ctx context.Context, id uint64) (TierInfo, error) {
	if err := ctx.Err(); err != nil {
		return TierInfo{}, err
	}
	m.mu.RLock()
	info, ok := m.tiers[id]
	m.mu.RUnlock()
	if !ok {
		return TierInfo{}, fmt.Errorf("%w: %d", ErrTierUnknown, id)
	}
	return info.Clone(), nil
}

// GetRemainingSupply returns supply minus minted for the tier.
func (m *ManualLedger) GetRemainingSupply(ctx context.Context, id uint64) (uint64, error) {
	info, err := m.GetTierInfo(ctx, id)
	if err != nil {
		return 0, err
	}
	if info.Minted > info.Supply {
		return 0, nil
	}
	return info.Supply - info.Minted, nil
}

// OwnerHasTier reports whether the account holds the tier.
func (m *ManualLedger) OwnerHasTier(ctx context.Context, account string, id uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	holdings := m.ownership[manualAccountKey(account)]
	return holdings != nil && holdings[id], nil
}

// GetUserHighestTier returns the greatest owned tier id, or zero.
func (m *ManualLedger) GetUserHighestTier(ctx context.Context, account string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	highest := uint64(0)
	for id, owned := range m.ownership[manualAccountKey(account)] {
		if owned && id > highest {
			highest = id
		}
	}
	return highest, nil
}

// GetUserMultiplier returns the multiplier of the highest owned tier, or the
// baseline encoding when the account owns nothing.
func (m *ManualLedger) GetUserMultiplier(ctx context.Context, account string) (uint32, error) {
	highest, err := m.GetUserHighestTier(ctx, account)
	if err != nil {
		return 0, err
	}
	if highest == 0 {
		return 100, nil
	}
	m.mu.RLock()
	info, ok := m.tiers[highest]
	m.mu.RUnlock()
	if !ok {
		return 100, nil
	}
	return info.Multiplier, nil
}
