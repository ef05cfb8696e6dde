package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"tiercore/catalog"
)

const seedYAML = `
tiers:
  - id: 1
    name: Starter
    price_wei: "0"
    supply: 1000
    minted: 120
    multiplier: 100
    access_plans: [starter]
    active: true
  - id: 4
    name: Diamond
    description: Early backer tier
    price_wei: "2000000000000000000"
    supply: 50
    minted: 5
    multiplier: 150
    access_plans: [Starter, premium, VIP]
    active: true
    special: true
`

func TestParseSeed(t *testing.T) {
	snap, err := catalog.ParseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	if snap.Status != catalog.StatusDegraded {
		t.Fatalf("seed snapshots must be degraded, got %s", snap.Status)
	}
	if len(snap.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(snap.Tiers))
	}
	diamond, err := snap.Get(4)
	if err != nil {
		t.Fatalf("get tier 4: %v", err)
	}
	if diamond.PriceWei.String() != "2000000000000000000" {
		t.Fatalf("unexpected price: %v", diamond.PriceWei)
	}
	want := []string{"premium", "starter", "vip"}
	if len(diamond.AccessPlans) != len(want) {
		t.Fatalf("expected normalised plans %v, got %v", want, diamond.AccessPlans)
	}
	for i, plan := range want {
		if diamond.AccessPlans[i] != plan {
			t.Fatalf("expected normalised plans %v, got %v", want, diamond.AccessPlans)
		}
	}
	if !diamond.Special {
		t.Fatalf("expected special flag kept")
	}
}

func TestParseSeedRejectsDuplicates(t *testing.T) {
	raw := []byte("tiers:\n  - id: 1\n    name: A\n    supply: 1\n    multiplier: 100\n  - id: 1\n    name: B\n    supply: 1\n    multiplier: 100\n")
	if _, err := catalog.ParseSeed(raw); err == nil {
		t.Fatalf("expected duplicate id rejection")
	}
}

func TestParseSeedRejectsInvalidTier(t *testing.T) {
	raw := []byte("tiers:\n  - id: 1\n    name: A\n    supply: 1\n    minted: 2\n    multiplier: 100\n")
	if _, err := catalog.ParseSeed(raw); err == nil {
		t.Fatalf("expected minted-above-supply rejection")
	}
}

func TestParseSeedRejectsBadPrice(t *testing.T) {
	raw := []byte("tiers:\n  - id: 1\n    name: A\n    supply: 1\n    multiplier: 100\n    price_wei: \"12abc\"\n")
	if _, err := catalog.ParseSeed(raw); err == nil {
		t.Fatalf("expected invalid price rejection")
	}
}

func TestLoadSeedFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	snap, err := catalog.LoadSeed(path)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if len(snap.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(snap.Tiers))
	}
	if _, err := catalog.LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
