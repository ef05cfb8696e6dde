// Package storage persists the engine's last-known-good catalog snapshot so
// the degraded fallback survives process restarts.
package storage

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	bolt "go.etcd.io/bbolt"

	"tiercore/catalog"
	"tiercore/tier"
)

var (
	snapshotBucket = []byte("catalog")
	snapshotKey    = []byte("latest")
)

// SnapshotStore is a bbolt-backed implementation of catalog.Store.
type SnapshotStore struct {
	db *bolt.DB
}

// OpenSnapshotStore opens (or creates) the snapshot database at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create bucket: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type persistedSnapshot struct {
	FetchedAt time.Time       `json:"fetchedAt"`
	Tiers     []persistedTier `json:"tiers"`
}

type persistedTier struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PriceWei    string   `json:"priceWei"`
	Supply      uint64   `json:"supply"`
	Minted      uint64   `json:"minted"`
	Multiplier  uint32   `json:"multiplier"`
	AccessPlans []string `json:"accessPlans,omitempty"`
	Active      bool     `json:"active"`
	Special     bool     `json:"special"`
}

// SaveSnapshot stores the snapshot as the new last-known-good. The snapshot
// status is deliberately not persisted: anything loaded back is fallback
// data and is re-flagged degraded on load.
func (s *SnapshotStore) SaveSnapshot(snap catalog.Snapshot) error {
	record := persistedSnapshot{FetchedAt: snap.FetchedAt}
	for _, t := range snap.Tiers {
		price := "0"
		if t.PriceWei != nil {
			price = t.PriceWei.String()
		}
		record.Tiers = append(record.Tiers, persistedTier{
			ID:          uint64(t.ID),
			Name:        t.Name,
			Description: t.Description,
			PriceWei:    price,
			Supply:      t.Supply,
			Minted:      t.Minted,
			Multiplier:  t.Multiplier,
			AccessPlans: append([]string(nil), t.AccessPlans...),
			Active:      t.Active,
			Special:     t.Special,
		})
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put(snapshotKey, encoded)
	})
}

// LoadSnapshot returns the persisted snapshot if one exists. The returned
// snapshot is flagged degraded because persisted data is by definition not a
// fresh ledger read.
func (s *SnapshotStore) LoadSnapshot() (catalog.Snapshot, bool, error) {
	var encoded []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(snapshotBucket).Get(snapshotKey); raw != nil {
			encoded = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return catalog.Snapshot{}, false, fmt.Errorf("storage: read snapshot: %w", err)
	}
	if encoded == nil {
		return catalog.Snapshot{}, false, nil
	}
	var record persistedSnapshot
	if err := json.Unmarshal(encoded, &record); err != nil {
		return catalog.Snapshot{}, false, fmt.Errorf("storage: decode snapshot: %w", err)
	}
	tiers := make(map[tier.ID]tier.Tier, len(record.Tiers))
	for _, entry := range record.Tiers {
		price, ok := new(big.Int).SetString(entry.PriceWei, 10)
		if !ok {
			return catalog.Snapshot{}, false, fmt.Errorf("storage: tier %d: invalid price %q", entry.ID, entry.PriceWei)
		}
		tiers[tier.ID(entry.ID)] = tier.Tier{
			ID:          tier.ID(entry.ID),
			Name:        entry.Name,
			Description: entry.Description,
			PriceWei:    price,
			Supply:      entry.Supply,
			Minted:      entry.Minted,
			Multiplier:  entry.Multiplier,
			AccessPlans: append([]string(nil), entry.AccessPlans...),
			Active:      entry.Active,
			Special:     entry.Special,
		}
	}
	return catalog.Snapshot{
		Tiers:     tiers,
		Status:    catalog.StatusDegraded,
		FetchedAt: record.FetchedAt,
	}, true, nil
}
