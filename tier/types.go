package tier

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// ID identifies a benefit tier on the ledger. Identifiers are assigned in
// ascending benefit order and are never reused once a tier has been created.
type ID uint64

// None is the sentinel returned when an account owns no tier.
const None ID = 0

// BaselineMultiplier is the scaled multiplier applied when no tier is owned
// (1.00x). Scaled multipliers use a fixed denominator of 100.
const BaselineMultiplier uint32 = 100

// MultiplierScale is the fixed denominator used by the ledger's scaled
// multiplier encoding.
const MultiplierScale = 100

// Tier captures the on-ledger definition of one benefit class.
type Tier struct {
	ID          ID
	Name        string
	Description string
	// PriceWei is denominated in the payment token's smallest unit. A zero
	// price marks a claim-only tier.
	PriceWei *big.Int
	Supply   uint64
	Minted   uint64
	// Multiplier is scaled by 100, so 120 represents 1.20x. Values below
	// the baseline are rejected during validation.
	Multiplier  uint32
	AccessPlans []string
	Active      bool
	// Special marks tiers granted outside the normal purchase path
	// (event, partner and fidelity grants). Special tiers may be inactive
	// for new claims while remaining ownable.
	Special bool
}

// Remaining reports the unminted supply. Minted never exceeds Supply for a
// valid tier, so the result is never negative.
func (t Tier) Remaining() uint64 {
	if t.Minted > t.Supply {
		return 0
	}
	return t.Supply - t.Minted
}

// HasPlan reports whether the tier unlocks the given access plan.
func (t Tier) HasPlan(plan string) bool {
	needle := NormalizePlan(plan)
	for _, p := range t.AccessPlans {
		if NormalizePlan(p) == needle {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the tier so callers cannot mutate shared
// catalog state through the price pointer or plan slice.
func (t Tier) Clone() Tier {
	clone := t
	if t.PriceWei != nil {
		clone.PriceWei = new(big.Int).Set(t.PriceWei)
	}
	clone.AccessPlans = append([]string(nil), t.AccessPlans...)
	return clone
}

// Validate enforces the catalog invariants for a single tier.
func (t Tier) Validate() error {
	if t.ID == None {
		return fmt.Errorf("%w: id must be positive", ErrInvalidTier)
	}
	if t.PriceWei != nil && t.PriceWei.Sign() < 0 {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidTier)
	}
	if t.Minted > t.Supply {
		return fmt.Errorf("%w: minted %d exceeds supply %d", ErrInvalidTier, t.Minted, t.Supply)
	}
	if t.Multiplier < BaselineMultiplier {
		return fmt.Errorf("%w: multiplier %d below baseline %d", ErrInvalidTier, t.Multiplier, BaselineMultiplier)
	}
	return nil
}

// Sanitize returns a validated copy with trimmed display strings, a
// non-nil price, and a deduplicated, sorted access plan set.
func Sanitize(t Tier) (Tier, error) {
	clean := t.Clone()
	clean.Name = strings.TrimSpace(clean.Name)
	clean.Description = strings.TrimSpace(clean.Description)
	if clean.PriceWei == nil {
		clean.PriceWei = big.NewInt(0)
	}
	clean.AccessPlans = SanitizePlans(clean.AccessPlans)
	if err := clean.Validate(); err != nil {
		return Tier{}, err
	}
	return clean, nil
}

// NormalizePlan canonicalises an access plan identifier.
func NormalizePlan(plan string) string {
	return strings.ToLower(strings.TrimSpace(plan))
}

// SanitizePlans canonicalises, deduplicates and sorts a plan identifier set.
func SanitizePlans(plans []string) []string {
	seen := make(map[string]struct{}, len(plans))
	out := make([]string, 0, len(plans))
	for _, plan := range plans {
		canonical := NormalizePlan(plan)
		if canonical == "" {
			continue
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out
}

// SortIDs sorts tier identifiers ascending in place and returns the slice.
func SortIDs(ids []ID) []ID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
