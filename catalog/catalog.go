// Package catalog maintains the authoritative, read-only view of all known
// benefit tiers, refreshed from the ledger with availability favoured over
// all-or-nothing consistency.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tiercore/ledger"
	"tiercore/observability/metrics"
	"tiercore/tier"
)

const defaultRefreshConcurrency = 4

// PartialRefreshError reports the tier ids whose reads failed during a
// refresh batch. The successfully fetched subset is still returned and
// usable; stale-but-present tier data beats none.
type PartialRefreshError struct {
	FailedIDs []tier.ID
}

func (e *PartialRefreshError) Error() string {
	parts := make([]string, 0, len(e.FailedIDs))
	for _, id := range e.FailedIDs {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return "catalog: refresh failed for tiers " + strings.Join(parts, ", ")
}

// Store persists the last-known-good snapshot across restarts so the
// degraded fallback survives a process bounce.
type Store interface {
	SaveSnapshot(snap Snapshot) error
	LoadSnapshot() (Snapshot, bool, error)
}

// Catalog holds the current snapshot and knows how to rebuild it from the
// ledger. All exported methods are safe for concurrent use.
type Catalog struct {
	reader      ledger.Reader
	store       Store
	seed        *Snapshot
	specialIDs  []tier.ID
	concurrency int
	log         *slog.Logger

	mu      sync.RWMutex
	current Snapshot
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithStore attaches a last-known-good snapshot store.
func WithStore(store Store) Option {
	return func(c *Catalog) { c.store = store }
}

// WithSeed injects the degraded seed snapshot used when the ledger is
// unreachable before any successful refresh. The seed is always flagged
// degraded regardless of the status it was loaded with.
func WithSeed(seed Snapshot) Option {
	return func(c *Catalog) {
		s := seed.Clone()
		s.Status = StatusDegraded
		c.seed = &s
	}
}

// WithSpecialTierIDs registers tiers that stay ownable while closed for new
// purchases. They are fetched on every refresh even when the ledger no
// longer lists them as active.
func WithSpecialTierIDs(ids []tier.ID) Option {
	return func(c *Catalog) { c.specialIDs = append([]tier.ID(nil), ids...) }
}

// WithConcurrency bounds the number of in-flight tier reads per refresh.
func WithConcurrency(n int) Option {
	return func(c *Catalog) { c.concurrency = n }
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

// New constructs a catalog over the given ledger reader.
func New(reader ledger.Reader, opts ...Option) (*Catalog, error) {
	if reader == nil {
		return nil, fmt.Errorf("catalog: ledger reader required")
	}
	c := &Catalog{
		reader:      reader,
		concurrency: defaultRefreshConcurrency,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c, nil
}

// Bootstrap primes the fallback snapshot from the store, or from the seed
// when no persisted snapshot exists. It performs no ledger reads.
func (c *Catalog) Bootstrap() error {
	if c.store != nil {
		snap, ok, err := c.store.LoadSnapshot()
		if err != nil {
			return fmt.Errorf("catalog: load snapshot: %w", err)
		}
		if ok && !snap.Empty() {
			snap.Status = StatusDegraded
			c.setCurrent(snap)
			c.log.Info("catalog bootstrapped from persisted snapshot", "tiers", len(snap.Tiers))
			return nil
		}
	}
	if c.seed != nil {
		c.setCurrent(c.seed.Clone())
		c.log.Info("catalog bootstrapped from seed snapshot", "tiers", len(c.seed.Tiers))
	}
	return nil
}

// Current returns the most recent snapshot. Before any successful refresh
// this is the bootstrapped fallback, flagged degraded.
func (c *Catalog) Current() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Clone()
}

// Get resolves one tier against the current snapshot.
func (c *Catalog) Get(id tier.ID) (tier.Tier, error) {
	return c.Current().Get(id)
}

// ListActiveTierIDs returns the active tier ids from the current snapshot in
// ascending order.
func (c *Catalog) ListActiveTierIDs() []tier.ID {
	return c.Current().ActiveIDs()
}

func (c *Catalog) setCurrent(snap Snapshot) {
	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()
}

// RefreshAll re-fetches every active tier plus the configured special tiers.
// Reads are issued concurrently and joined before any result is exposed.
// On partial failure the fetched subset is installed and returned together
// with a *PartialRefreshError naming the failed ids. When no read succeeds
// the last-known-good (or seed) snapshot is returned flagged degraded,
// together with an error wrapping ledger.ErrUnreachable.
func (c *Catalog) RefreshAll(ctx context.Context) (Snapshot, error) {
	ids, err := c.listRefreshIDs(ctx)
	if err != nil {
		metrics.Engine().RefreshTotal.WithLabelValues(string(StatusDegraded)).Inc()
		return c.fallback(err)
	}
	if len(ids) == 0 {
		snap := Snapshot{Tiers: map[tier.ID]tier.Tier{}, Status: StatusFresh, FetchedAt: time.Now().UTC()}
		c.install(snap)
		metrics.Engine().RefreshTotal.WithLabelValues(string(StatusFresh)).Inc()
		return snap, nil
	}

	var (
		resMu   sync.Mutex
		fetched = make(map[tier.ID]tier.Tier, len(ids))
		failed  []tier.ID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			t, err := c.fetchTier(gctx, id)
			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				c.log.Warn("tier read failed", "tier", uint64(id), "error", err)
				failed = append(failed, id)
				return nil
			}
			fetched[id] = t
			return nil
		})
	}
	// Workers never return errors; the group is used for joining and limit.
	_ = g.Wait()

	if len(fetched) == 0 {
		metrics.Engine().RefreshTotal.WithLabelValues(string(StatusDegraded)).Inc()
		return c.fallback(fmt.Errorf("%w: all %d tier reads failed", ledger.ErrUnreachable, len(ids)))
	}

	status := StatusFresh
	if len(failed) > 0 {
		status = StatusPartial
	}
	snap := Snapshot{Tiers: fetched, Status: status, FetchedAt: time.Now().UTC()}
	c.checkBenefitOrdering(snap)
	c.install(snap)

	metrics.Engine().RefreshTotal.WithLabelValues(string(status)).Inc()
	metrics.Engine().RefreshTiers.WithLabelValues("fetched").Set(float64(len(fetched)))
	metrics.Engine().RefreshTiers.WithLabelValues("failed").Set(float64(len(failed)))

	if len(failed) > 0 {
		tier.SortIDs(failed)
		return snap.Clone(), &PartialRefreshError{FailedIDs: failed}
	}
	return snap.Clone(), nil
}

func (c *Catalog) listRefreshIDs(ctx context.Context) ([]tier.ID, error) {
	raw, err := c.reader.ListActiveTierIDs(ctx)
	if err != nil && ctx.Err() == nil {
		raw, err = c.reader.ListActiveTierIDs(ctx)
	}
	if err != nil {
		metrics.Engine().LedgerReads.WithLabelValues("listActiveTierIds", "error").Inc()
		return nil, fmt.Errorf("%w: list active tiers: %v", ledger.ErrUnreachable, err)
	}
	metrics.Engine().LedgerReads.WithLabelValues("listActiveTierIds", "ok").Inc()

	seen := make(map[tier.ID]struct{}, len(raw)+len(c.specialIDs))
	ids := make([]tier.ID, 0, len(raw)+len(c.specialIDs))
	for _, id := range raw {
		tid := tier.ID(id)
		if tid == tier.None {
			continue
		}
		if _, ok := seen[tid]; ok {
			continue
		}
		seen[tid] = struct{}{}
		ids = append(ids, tid)
	}
	for _, tid := range c.specialIDs {
		if tid == tier.None {
			continue
		}
		if _, ok := seen[tid]; ok {
			continue
		}
		seen[tid] = struct{}{}
		ids = append(ids, tid)
	}
	return tier.SortIDs(ids), nil
}

func (c *Catalog) fetchTier(ctx context.Context, id tier.ID) (tier.Tier, error) {
	info, err := c.reader.GetTierInfo(ctx, uint64(id))
	if err != nil && ctx.Err() == nil {
		info, err = c.reader.GetTierInfo(ctx, uint64(id))
	}
	if err != nil {
		metrics.Engine().LedgerReads.WithLabelValues("getTierInfo", "error").Inc()
		return tier.Tier{}, err
	}
	metrics.Engine().LedgerReads.WithLabelValues("getTierInfo", "ok").Inc()
	return tierFromInfo(id, info)
}

func tierFromInfo(id tier.ID, info ledger.TierInfo) (tier.Tier, error) {
	if info.ID != 0 && tier.ID(info.ID) != id {
		return tier.Tier{}, fmt.Errorf("catalog: tier id mismatch: asked %d got %d", id, info.ID)
	}
	return tier.Sanitize(tier.Tier{
		ID:          id,
		Name:        info.Name,
		Description: info.Description,
		PriceWei:    info.PriceWei,
		Supply:      info.Supply,
		Minted:      info.Minted,
		Multiplier:  info.Multiplier,
		AccessPlans: info.AccessPlans,
		Active:      info.Active,
		Special:     info.Special,
	})
}

// checkBenefitOrdering warns when a higher tier id carries a lower
// multiplier. The highest-id-wins selection rule assumes ascending ids mean
// ascending benefit; a violation is a catalog data error worth surfacing,
// not something this component resolves.
func (c *Catalog) checkBenefitOrdering(snap Snapshot) {
	ids := make([]tier.ID, 0, len(snap.Tiers))
	for id := range snap.Tiers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var prev tier.Tier
	for i, id := range ids {
		t := snap.Tiers[id]
		if i > 0 && t.Multiplier < prev.Multiplier {
			c.log.Warn("tier benefit ordering violated",
				"tier", uint64(t.ID), "multiplier", t.Multiplier,
				"lowerTier", uint64(prev.ID), "lowerMultiplier", prev.Multiplier)
		}
		prev = t
	}
}

func (c *Catalog) install(snap Snapshot) {
	c.setCurrent(snap.Clone())
	if c.store == nil {
		return
	}
	if err := c.store.SaveSnapshot(snap); err != nil {
		c.log.Warn("persist snapshot failed", "error", err)
	}
}

// fallback returns the last-known-good snapshot, or the seed, flagged
// degraded. The cause is always surfaced so callers never mistake fallback
// data for a fresh read.
func (c *Catalog) fallback(cause error) (Snapshot, error) {
	c.mu.RLock()
	last := c.current.Clone()
	c.mu.RUnlock()
	if last.Empty() && c.seed != nil {
		last = c.seed.Clone()
	}
	last.Status = StatusDegraded
	c.setCurrent(last.Clone())
	c.log.Warn("catalog refresh degraded", "error", cause, "tiers", len(last.Tiers))
	return last, cause
}
