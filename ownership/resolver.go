// Package ownership answers "what does this account hold, and what is the
// best benefit it confers" by checking ownership against every catalog tier.
// Resolution is a derived, idempotent read: two calls with no ledger state
// change in between yield identical records.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"tiercore/catalog"
	"tiercore/ledger"
	"tiercore/observability/metrics"
	"tiercore/tier"
)

// ErrInvalidAccount reports a malformed account identifier. This is a format
// check only; existence on the ledger is never verified here.
var ErrInvalidAccount = errors.New("ownership: invalid account")

// PartialResolutionError reports tier ids whose ownership checks failed
// after a retry. Those tiers are unknown, not unowned: treating them as
// not-owned would under-report benefits the user is entitled to, so the ids
// travel with the record and the caller decides how to warn.
type PartialResolutionError struct {
	UnknownIDs []tier.ID
}

func (e *PartialResolutionError) Error() string {
	parts := make([]string, 0, len(e.UnknownIDs))
	for _, id := range e.UnknownIDs {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return "ownership: checks unresolved for tiers " + strings.Join(parts, ", ")
}

// Record is one account's resolved holdings. It is a view, never stored:
// recomputed on demand and replaced wholesale, never mutated.
type Record struct {
	// Account is the checksum-normalised identifier.
	Account string
	// OwnedTierIDs holds the tiers confirmed owned, ascending.
	OwnedTierIDs []tier.ID
	// UnknownTierIDs holds the tiers whose checks failed after retry.
	UnknownTierIDs []tier.ID
	// HighestTierID is the owned tier with the greatest id, or tier.None.
	HighestTierID tier.ID
	// EffectiveMultiplier is the highest tier's scaled multiplier, or the
	// baseline 100 when nothing is owned.
	EffectiveMultiplier uint32
}

// Owns reports whether the record confirms ownership of the tier.
func (r Record) Owns(id tier.ID) bool {
	for _, owned := range r.OwnedTierIDs {
		if owned == id {
			return true
		}
	}
	return false
}

const defaultResolveConcurrency = 4

// Resolver derives ownership records from the ledger.
type Resolver struct {
	reader      ledger.Reader
	specialIDs  []tier.ID
	concurrency int
	log         *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSpecialTierIDs adds tier ids checked on every resolution even when the
// catalog snapshot does not list them as ownable (fidelity/partner grants
// whose tiers may predate the snapshot).
func WithSpecialTierIDs(ids []tier.ID) Option {
	return func(r *Resolver) { r.specialIDs = append([]tier.ID(nil), ids...) }
}

// WithConcurrency bounds the number of in-flight ownership checks.
func WithConcurrency(n int) Option {
	return func(r *Resolver) { r.concurrency = n }
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// NewResolver constructs a resolver over the given ledger reader.
func NewResolver(reader ledger.Reader, opts ...Option) (*Resolver, error) {
	if reader == nil {
		return nil, fmt.Errorf("ownership: ledger reader required")
	}
	r := &Resolver{
		reader:      reader,
		concurrency: defaultResolveConcurrency,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	return r, nil
}

// Resolve derives the account's ownership record against the snapshot's
// ownable tiers plus the resolver's special tiers. Each check that fails
// transiently is retried once; a check still failing lands the tier in the
// record's UnknownTierIDs and the call returns a *PartialResolutionError
// alongside the best-effort record. When every check fails the record is
// withheld and an error wrapping ledger.ErrUnreachable is returned — a
// degraded catalog is acceptable, a record claiming false negatives is not.
func (r *Resolver) Resolve(ctx context.Context, account string, snap catalog.Snapshot) (Record, error) {
	started := time.Now()
	trimmed := strings.TrimSpace(account)
	if !common.IsHexAddress(trimmed) {
		metrics.Engine().ResolveTotal.WithLabelValues("invalid_account").Inc()
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidAccount, account)
	}
	normalized := common.HexToAddress(trimmed).Hex()

	ids := r.checkIDs(snap)
	record := Record{
		Account:             normalized,
		HighestTierID:       tier.None,
		EffectiveMultiplier: tier.BaselineMultiplier,
	}
	if len(ids) == 0 {
		metrics.Engine().ResolveTotal.WithLabelValues("ok").Inc()
		metrics.Engine().ResolveLatency.Observe(time.Since(started).Seconds())
		return record, nil
	}

	var (
		resMu   sync.Mutex
		owned   []tier.ID
		unknown []tier.ID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			has, err := r.checkOwnership(gctx, normalized, id)
			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				r.log.Warn("ownership check unresolved", "account", normalized, "tier", uint64(id), "error", err)
				unknown = append(unknown, id)
				return nil
			}
			if has {
				owned = append(owned, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(unknown) == len(ids) {
		metrics.Engine().ResolveTotal.WithLabelValues("unreachable").Inc()
		return Record{}, fmt.Errorf("%w: all %d ownership checks failed for %s", ledger.ErrUnreachable, len(ids), normalized)
	}

	record.OwnedTierIDs = tier.SortIDs(owned)
	record.UnknownTierIDs = tier.SortIDs(unknown)
	if n := len(record.OwnedTierIDs); n > 0 {
		record.HighestTierID = record.OwnedTierIDs[n-1]
		record.EffectiveMultiplier = r.highestMultiplier(ctx, record.HighestTierID, snap)
	}

	metrics.Engine().ResolveLatency.Observe(time.Since(started).Seconds())
	if len(record.UnknownTierIDs) > 0 {
		metrics.Engine().ResolveTotal.WithLabelValues("partial").Inc()
		return record, &PartialResolutionError{UnknownIDs: record.UnknownTierIDs}
	}
	metrics.Engine().ResolveTotal.WithLabelValues("ok").Inc()
	return record, nil
}

// checkIDs unions the snapshot's ownable tiers with the configured special
// tiers, deduplicated and ascending.
func (r *Resolver) checkIDs(snap catalog.Snapshot) []tier.ID {
	base := snap.OwnableIDs()
	seen := make(map[tier.ID]struct{}, len(base)+len(r.specialIDs))
	ids := make([]tier.ID, 0, len(base)+len(r.specialIDs))
	for _, id := range base {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range r.specialIDs {
		if id == tier.None {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return tier.SortIDs(ids)
}

func (r *Resolver) checkOwnership(ctx context.Context, account string, id tier.ID) (bool, error) {
	has, err := r.reader.OwnerHasTier(ctx, account, uint64(id))
	if err != nil && ctx.Err() == nil {
		has, err = r.reader.OwnerHasTier(ctx, account, uint64(id))
	}
	if err != nil {
		metrics.Engine().LedgerReads.WithLabelValues("ownerHasTier", "error").Inc()
		return false, err
	}
	metrics.Engine().LedgerReads.WithLabelValues("ownerHasTier", "ok").Inc()
	return has, nil
}

// highestMultiplier resolves the effective multiplier for the highest owned
// tier. The snapshot is consulted first; when the tier is missing there (a
// special tier resolved outside the snapshot) the ledger's tier record is
// fetched directly before falling back to baseline.
func (r *Resolver) highestMultiplier(ctx context.Context, highest tier.ID, snap catalog.Snapshot) uint32 {
	if t, err := snap.Get(highest); err == nil {
		return t.Multiplier
	}
	info, err := r.reader.GetTierInfo(ctx, uint64(highest))
	if err != nil && ctx.Err() == nil {
		info, err = r.reader.GetTierInfo(ctx, uint64(highest))
	}
	if err == nil && info.Multiplier >= tier.BaselineMultiplier {
		return info.Multiplier
	}
	if err != nil {
		r.log.Warn("multiplier lookup failed for owned tier", "tier", uint64(highest), "error", err)
	}
	return tier.BaselineMultiplier
}
