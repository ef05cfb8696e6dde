// Package benefit turns a resolved ownership record plus a catalog snapshot
// into consumable benefit data: the union of access-plan grants and the
// effective rate multiplier. All rate math is exact rational arithmetic;
// the surrounding system feeds these rates into repeated daily accrual, so
// floating-point drift would compound downstream.
package benefit

import (
	"log/slog"
	"math/big"

	"tiercore/catalog"
	"tiercore/ownership"
	"tiercore/tier"
)

// Evaluator computes access grants and effective rates.
type Evaluator struct {
	log *slog.Logger
}

// NewEvaluator constructs an evaluator. A nil logger falls back to the
// process default.
func NewEvaluator(log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{log: log}
}

// AccessGrant unions the access plans of every owned tier, keyed by plan
// identifier. An owned tier id no longer resolvable in the snapshot is
// skipped and reported rather than failing the whole computation; the
// remaining tiers still grant what they grant.
func (e *Evaluator) AccessGrant(record ownership.Record, snap catalog.Snapshot) map[string]bool {
	grant := make(map[string]bool)
	for _, id := range record.OwnedTierIDs {
		t, err := snap.Get(id)
		if err != nil {
			e.log.Warn("owned tier missing from catalog", "account", record.Account, "tier", uint64(id))
			continue
		}
		for _, plan := range t.AccessPlans {
			grant[tier.NormalizePlan(plan)] = true
		}
	}
	return grant
}

// HasAccess reports whether the record unlocks the given plan.
func (e *Evaluator) HasAccess(planID string, record ownership.Record, snap catalog.Snapshot) bool {
	return e.AccessGrant(record, snap)[tier.NormalizePlan(planID)]
}

// EffectiveRate scales a base rate by the record's effective multiplier:
// baseRate * multiplier / 100. Pure arithmetic, no ledger access. A nil
// base is treated as zero. The result is always a fresh value.
func EffectiveRate(baseRate *big.Rat, record ownership.Record) *big.Rat {
	if baseRate == nil || baseRate.Sign() == 0 {
		return new(big.Rat)
	}
	multiplier := record.EffectiveMultiplier
	if multiplier < tier.BaselineMultiplier {
		multiplier = tier.BaselineMultiplier
	}
	return new(big.Rat).Mul(baseRate, tier.MultiplierRat(multiplier))
}
