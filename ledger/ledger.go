// Package ledger defines the read-only contract surface the engine consumes
// and its EVM-backed implementation. The engine never mutates ledger state;
// every call is an idempotent view read.
package ledger

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrUnreachable indicates no read against the ledger succeeded.
	ErrUnreachable = errors.New("ledger: unreachable")
	// ErrTierUnknown indicates the contract does not know the requested tier.
	ErrTierUnknown = errors.New("ledger: unknown tier")
)

// TierInfo mirrors the contract's native encoding for a single tier. Numeric
// fields keep the on-chain representation: the multiplier is scaled by 100
// and the price is denominated in the token's smallest unit. Decoding into
// display values is the consumer's job.
type TierInfo struct {
	ID          uint64
	Name        string
	Description string
	PriceWei    *big.Int
	Supply      uint64
	Minted      uint64
	Multiplier  uint32
	AccessPlans []string
	Active      bool
	Special     bool
}

// Clone returns a deep copy so callers cannot alias the price pointer.
func (t TierInfo) Clone() TierInfo {
	clone := t
	if t.PriceWei != nil {
		clone.PriceWei = new(big.Int).Set(t.PriceWei)
	}
	clone.AccessPlans = append([]string(nil), t.AccessPlans...)
	return clone
}

// Reader is the subset of the tier contract consumed by the engine. All
// methods take a context because every call is a network round trip; callers
// bound each read with a timeout and may abandon in-flight reads freely since
// reads have no side effects.
type Reader interface {
	ListActiveTierIDs(ctx context.Context) ([]uint64, error)
	GetTierInfo(ctx context.Context, id uint64) (TierInfo, error)
	GetRemainingSupply(ctx context.Context, id uint64) (uint64, error)
	OwnerHasTier(ctx context.Context, account string, id uint64) (bool, error)
	GetUserHighestTier(ctx context.Context, account string) (uint64, error)
	GetUserMultiplier(ctx context.Context, account string) (uint32, error)
}
