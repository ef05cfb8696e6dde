package catalog

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tiercore/tier"
)

type seedFile struct {
	Tiers []seedTier `yaml:"tiers"`
}

type seedTier struct {
	ID          uint64   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	PriceWei    string   `yaml:"price_wei"`
	Supply      uint64   `yaml:"supply"`
	Minted      uint64   `yaml:"minted"`
	Multiplier  uint32   `yaml:"multiplier"`
	AccessPlans []string `yaml:"access_plans"`
	Active      bool     `yaml:"active"`
	Special     bool     `yaml:"special"`
}

// LoadSeed reads a degraded seed snapshot from a yaml file. The seed is the
// explicit, clearly labelled data source used when the ledger has never been
// reachable; it is validated like any other tier data and always flagged
// degraded.
func LoadSeed(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("catalog: read seed %s: %w", path, err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes seed yaml into a degraded snapshot.
func ParseSeed(raw []byte) (Snapshot, error) {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Snapshot{}, fmt.Errorf("catalog: parse seed: %w", err)
	}
	tiers := make(map[tier.ID]tier.Tier, len(file.Tiers))
	for _, entry := range file.Tiers {
		price := big.NewInt(0)
		if entry.PriceWei != "" {
			parsed, ok := new(big.Int).SetString(entry.PriceWei, 10)
			if !ok {
				return Snapshot{}, fmt.Errorf("catalog: seed tier %d: invalid price %q", entry.ID, entry.PriceWei)
			}
			price = parsed
		}
		t, err := tier.Sanitize(tier.Tier{
			ID:          tier.ID(entry.ID),
			Name:        entry.Name,
			Description: entry.Description,
			PriceWei:    price,
			Supply:      entry.Supply,
			Minted:      entry.Minted,
			Multiplier:  entry.Multiplier,
			AccessPlans: entry.AccessPlans,
			Active:      entry.Active,
			Special:     entry.Special,
		})
		if err != nil {
			return Snapshot{}, fmt.Errorf("catalog: seed tier %d: %w", entry.ID, err)
		}
		if _, exists := tiers[t.ID]; exists {
			return Snapshot{}, fmt.Errorf("catalog: seed tier %d: duplicate id", entry.ID)
		}
		tiers[t.ID] = t
	}
	return Snapshot{Tiers: tiers, Status: StatusDegraded, FetchedAt: time.Now().UTC()}, nil
}
