package catalog_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"tiercore/catalog"
	"tiercore/ledger"
	"tiercore/tier"
)

func newTestLedger() *ledger.ManualLedger {
	ml := ledger.NewManualLedger()
	ml.SetTier(ledger.TierInfo{
		ID: 1, Name: "Starter", PriceWei: big.NewInt(0),
		Supply: 1000, Minted: 100, Multiplier: 100,
		AccessPlans: []string{"starter"}, Active: true,
	})
	ml.SetTier(ledger.TierInfo{
		ID: 2, Name: "Silver", PriceWei: big.NewInt(5e17),
		Supply: 500, Minted: 50, Multiplier: 110,
		AccessPlans: []string{"starter", "standard"}, Active: true,
	})
	ml.SetTier(ledger.TierInfo{
		ID: 3, Name: "Gold", PriceWei: big.NewInt(1e18),
		Supply: 200, Minted: 20, Multiplier: 125,
		AccessPlans: []string{"starter", "standard", "premium"}, Active: true,
	})
	ml.SetTier(ledger.TierInfo{
		ID: 4, Name: "Diamond", PriceWei: big.NewInt(2e18),
		Supply: 50, Minted: 5, Multiplier: 150,
		AccessPlans: []string{"starter", "standard", "premium", "vip"}, Active: true,
	})
	return ml
}

// failingReader wraps a Reader and fails scripted calls a configurable
// number of times before letting them through.
type failingReader struct {
	ledger.Reader
	mu        sync.Mutex
	tierFails map[uint64]int
	listFails int
}

func newFailingReader(inner ledger.Reader) *failingReader {
	return &failingReader{Reader: inner, tierFails: make(map[uint64]int)}
}

func (f *failingReader) ListActiveTierIDs(ctx context.Context) ([]uint64, error) {
	f.mu.Lock()
	fail := f.listFails > 0
	if fail {
		f.listFails--
	}
	f.mu.Unlock()
	if fail {
		return nil, errors.New("rpc timeout")
	}
	return f.Reader.ListActiveTierIDs(ctx)
}

func (f *failingReader) GetTierInfo(ctx context.Context, id uint64) (ledger.TierInfo, error) {
	f.mu.Lock()
	fail := f.tierFails[id] > 0
	if fail {
		f.tierFails[id]--
	}
	f.mu.Unlock()
	if fail {
		return ledger.TierInfo{}, errors.New("rpc timeout")
	}
	return f.Reader.GetTierInfo(ctx, id)
}

const permanent = 1 << 20

func TestRefreshAllFresh(t *testing.T) {
	cat, err := catalog.New(newTestLedger())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	snap, err := cat.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.Status != catalog.StatusFresh {
		t.Fatalf("expected fresh status, got %s", snap.Status)
	}
	if len(snap.Tiers) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(snap.Tiers))
	}
	for _, tr := range snap.Tiers {
		if tr.Minted > tr.Supply {
			t.Fatalf("tier %d: minted %d exceeds supply %d", tr.ID, tr.Minted, tr.Supply)
		}
		if tr.Remaining() != tr.Supply-tr.Minted {
			t.Fatalf("tier %d: remaining mismatch", tr.ID)
		}
		if tr.Multiplier < tier.BaselineMultiplier {
			t.Fatalf("tier %d: multiplier below baseline", tr.ID)
		}
	}
	ids := snap.ActiveIDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("active ids not ascending: %v", ids)
		}
	}
}

func TestRefreshAllRetriesTransientFailure(t *testing.T) {
	reader := newFailingReader(newTestLedger())
	reader.tierFails[2] = 1
	cat, err := catalog.New(reader)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	snap, err := cat.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("expected retry to absorb single failure, got %v", err)
	}
	if snap.Status != catalog.StatusFresh {
		t.Fatalf("expected fresh status after retry, got %s", snap.Status)
	}
}

func TestRefreshAllPartialFailureKeepsGoodSubset(t *testing.T) {
	reader := newFailingReader(newTestLedger())
	reader.tierFails[3] = permanent
	cat, err := catalog.New(reader)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	snap, err := cat.RefreshAll(context.Background())
	var partial *catalog.PartialRefreshError
	if !errors.As(err, &partial) {
		t.Fatalf("expected partial refresh error, got %v", err)
	}
	if len(partial.FailedIDs) != 1 || partial.FailedIDs[0] != 3 {
		t.Fatalf("expected failed id 3, got %v", partial.FailedIDs)
	}
	if snap.Status != catalog.StatusPartial {
		t.Fatalf("expected partial status, got %s", snap.Status)
	}
	if len(snap.Tiers) != 3 {
		t.Fatalf("expected 3 fetched tiers, got %d", len(snap.Tiers))
	}
	if _, err := snap.Get(3); !errors.Is(err, catalog.ErrTierNotFound) {
		t.Fatalf("expected failed tier absent, got %v", err)
	}
}

func TestRefreshAllUnreachableServesLastKnownGood(t *testing.T) {
	reader := newFailingReader(newTestLedger())
	cat, err := catalog.New(reader)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, err := cat.RefreshAll(context.Background()); err != nil {
		t.Fatalf("priming refresh: %v", err)
	}

	reader.mu.Lock()
	reader.listFails = permanent
	reader.mu.Unlock()

	snap, err := cat.RefreshAll(context.Background())
	if !errors.Is(err, ledger.ErrUnreachable) {
		t.Fatalf("expected unreachable error, got %v", err)
	}
	if snap.Status != catalog.StatusDegraded {
		t.Fatalf("expected degraded status, got %s", snap.Status)
	}
	if len(snap.Tiers) != 4 {
		t.Fatalf("expected last-known-good tiers, got %d", len(snap.Tiers))
	}
	if current := cat.Current(); current.Status != catalog.StatusDegraded {
		t.Fatalf("expected current snapshot flagged degraded, got %s", current.Status)
	}
}

func TestRefreshAllFallsBackToSeedOnFirstRun(t *testing.T) {
	reader := newFailingReader(newTestLedger())
	reader.listFails = permanent
	seed := catalog.Snapshot{Tiers: map[tier.ID]tier.Tier{
		1: {ID: 1, Name: "Seeded", Supply: 10, Multiplier: 100, Active: true},
	}}
	cat, err := catalog.New(reader, catalog.WithSeed(seed))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	snap, err := cat.RefreshAll(context.Background())
	if !errors.Is(err, ledger.ErrUnreachable) {
		t.Fatalf("expected unreachable error, got %v", err)
	}
	if snap.Status != catalog.StatusDegraded {
		t.Fatalf("expected degraded seed snapshot, got %s", snap.Status)
	}
	seeded, err := snap.Get(1)
	if err != nil || seeded.Name != "Seeded" {
		t.Fatalf("expected seeded tier, got %v err %v", seeded, err)
	}
}

func TestRefreshIncludesSpecialTiers(t *testing.T) {
	ml := newTestLedger()
	ml.SetTier(ledger.TierInfo{
		ID: 9, Name: "Fidelity", PriceWei: big.NewInt(0),
		Supply: 100, Minted: 10, Multiplier: 200,
		AccessPlans: []string{"vip"}, Active: false, Special: true,
	})
	cat, err := catalog.New(ml, catalog.WithSpecialTierIDs([]tier.ID{9}))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	snap, err := cat.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	special, err := snap.Get(9)
	if err != nil {
		t.Fatalf("expected special tier fetched: %v", err)
	}
	if special.Active {
		t.Fatalf("special tier should stay inactive")
	}
	for _, id := range snap.ActiveIDs() {
		if id == 9 {
			t.Fatalf("inactive special tier listed as active")
		}
	}
	owned := snap.OwnableIDs()
	found := false
	for _, id := range owned {
		if id == 9 {
			found = true
		}
	}
	if !found {
		t.Fatalf("special tier missing from ownable ids: %v", owned)
	}
}

// memoryStore is an in-memory catalog.Store for bootstrap tests.
type memoryStore struct {
	mu    sync.Mutex
	saved *catalog.Snapshot
}

func (m *memoryStore) SaveSnapshot(snap catalog.Snapshot) error {
	m.mu.Lock()
	clone := snap.Clone()
	m.saved = &clone
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) LoadSnapshot() (catalog.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return catalog.Snapshot{}, false, nil
	}
	return m.saved.Clone(), true, nil
}

func TestBootstrapLoadsPersistedSnapshotAsDegraded(t *testing.T) {
	store := &memoryStore{}
	first, err := catalog.New(newTestLedger(), catalog.WithStore(store))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, err := first.RefreshAll(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	second, err := catalog.New(newFailingReader(newTestLedger()), catalog.WithStore(store))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if err := second.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	current := second.Current()
	if current.Status != catalog.StatusDegraded {
		t.Fatalf("expected degraded bootstrap snapshot, got %s", current.Status)
	}
	if len(current.Tiers) != 4 {
		t.Fatalf("expected persisted tiers, got %d", len(current.Tiers))
	}
}
