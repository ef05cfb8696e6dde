package catalog

import (
	"errors"
	"fmt"
	"time"

	"tiercore/tier"
)

// Status classifies how trustworthy a snapshot is. Degraded data is never
// presented as fresh; the flag travels with the snapshot so every consumer
// can warn the user instead of silently treating stale tiers as current.
type Status string

const (
	// StatusFresh means every tier read in the batch succeeded.
	StatusFresh Status = "fresh"
	// StatusPartial means some tier reads failed; the present subset is
	// current but incomplete.
	StatusPartial Status = "partial"
	// StatusDegraded means the ledger was unreachable and the snapshot is a
	// last-known-good or seeded fallback.
	StatusDegraded Status = "degraded"
)

// ErrTierNotFound reports a tier id unknown to the snapshot.
var ErrTierNotFound = errors.New("catalog: tier not found")

// Snapshot is an immutable view of the catalog assembled by one refresh
// batch. No partial snapshot is ever exposed mid-batch; a snapshot only
// exists once every outstanding read has completed or been marked failed.
type Snapshot struct {
	Tiers     map[tier.ID]tier.Tier
	Status    Status
	FetchedAt time.Time
}

// Degraded reports whether the snapshot is fallback data.
func (s Snapshot) Degraded() bool {
	return s.Status == StatusDegraded
}

// Empty reports whether the snapshot holds no tiers at all.
func (s Snapshot) Empty() bool {
	return len(s.Tiers) == 0
}

// Get returns one tier's record, or ErrTierNotFound.
func (s Snapshot) Get(id tier.ID) (tier.Tier, error) {
	t, ok := s.Tiers[id]
	if !ok {
		return tier.Tier{}, fmt.Errorf("%w: %d", ErrTierNotFound, id)
	}
	return t.Clone(), nil
}

// ActiveIDs returns all active tier ids in ascending order. Retired tiers
// are excluded.
func (s Snapshot) ActiveIDs() []tier.ID {
	ids := make([]tier.ID, 0, len(s.Tiers))
	for id, t := range s.Tiers {
		if t.Active {
			ids = append(ids, id)
		}
	}
	return tier.SortIDs(ids)
}

// OwnableIDs returns the ids an account may hold: every active tier plus
// special tiers, which stay ownable even when closed for new claims.
func (s Snapshot) OwnableIDs() []tier.ID {
	ids := make([]tier.ID, 0, len(s.Tiers))
	for id, t := range s.Tiers {
		if t.Active || t.Special {
			ids = append(ids, id)
		}
	}
	return tier.SortIDs(ids)
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	clone := Snapshot{Status: s.Status, FetchedAt: s.FetchedAt}
	if s.Tiers != nil {
		clone.Tiers = make(map[tier.ID]tier.Tier, len(s.Tiers))
		for id, t := range s.Tiers {
			clone.Tiers[id] = t.Clone()
		}
	}
	return clone
}
