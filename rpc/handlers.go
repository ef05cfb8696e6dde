package rpc

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tiercore/benefit"
	"tiercore/catalog"
	"tiercore/fidelity"
	"tiercore/ownership"
	"tiercore/tier"
)

type tierBody struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PriceWei    string   `json:"priceWei"`
	Supply      uint64   `json:"supply"`
	Minted      uint64   `json:"minted"`
	Remaining   uint64   `json:"remaining"`
	Multiplier  uint32   `json:"multiplier"`
	Display     string   `json:"multiplierDisplay"`
	AccessPlans []string `json:"accessPlans,omitempty"`
	Active      bool     `json:"active"`
	Special     bool     `json:"special"`
}

func tierToBody(t tier.Tier) tierBody {
	price := "0"
	if t.PriceWei != nil {
		price = t.PriceWei.String()
	}
	return tierBody{
		ID:          uint64(t.ID),
		Name:        t.Name,
		Description: t.Description,
		PriceWei:    price,
		Supply:      t.Supply,
		Minted:      t.Minted,
		Remaining:   t.Remaining(),
		Multiplier:  t.Multiplier,
		Display:     tier.FormatMultiplier(t.Multiplier),
		AccessPlans: t.AccessPlans,
		Active:      t.Active,
		Special:     t.Special,
	}
}

type tiersBody struct {
	Status    catalog.Status `json:"status"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Tiers     []tierBody     `json:"tiers"`
}

func snapshotToBody(snap catalog.Snapshot) tiersBody {
	body := tiersBody{Status: snap.Status, FetchedAt: snap.FetchedAt, Tiers: []tierBody{}}
	for _, id := range snap.ActiveIDs() {
		if t, err := snap.Get(id); err == nil {
			body.Tiers = append(body.Tiers, tierToBody(t))
		}
	}
	return body
}

func (s *Server) handleListTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotToBody(s.catalog.Current()))
}

func (s *Server) handleGetTier(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid tier id")
		return
	}
	snap := s.catalog.Current()
	t, err := snap.Get(tier.ID(id))
	if err != nil {
		writeError(w, http.StatusNotFound, "tier not found")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status catalog.Status `json:"status"`
		Tier   tierBody       `json:"tier"`
	}{Status: snap.Status, Tier: tierToBody(t)})
}

type refreshBody struct {
	Status    catalog.Status `json:"status"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Tiers     int            `json:"tiers"`
	FailedIDs []uint64       `json:"failedTierIds,omitempty"`
	Warning   string         `json:"warning,omitempty"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.catalog.RefreshAll(r.Context())
	body := refreshBody{Status: snap.Status, FetchedAt: snap.FetchedAt, Tiers: len(snap.Tiers)}
	var partial *catalog.PartialRefreshError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		for _, id := range partial.FailedIDs {
			body.FailedIDs = append(body.FailedIDs, uint64(id))
		}
		body.Warning = partial.Error()
	default:
		body.Warning = "ledger unreachable; serving fallback snapshot"
	}
	writeJSON(w, http.StatusOK, body)
}

type recordBody struct {
	Account             string         `json:"account"`
	OwnedTierIDs        []uint64       `json:"ownedTierIds"`
	UnknownTierIDs      []uint64       `json:"unknownTierIds,omitempty"`
	HighestTierID       uint64         `json:"highestTierId"`
	EffectiveMultiplier uint32         `json:"effectiveMultiplier"`
	MultiplierDisplay   string         `json:"multiplierDisplay"`
	CatalogStatus       catalog.Status `json:"catalogStatus"`
	Warning             string         `json:"warning,omitempty"`
}

func recordToBody(record ownership.Record, status catalog.Status) recordBody {
	body := recordBody{
		Account:             record.Account,
		OwnedTierIDs:        []uint64{},
		HighestTierID:       uint64(record.HighestTierID),
		EffectiveMultiplier: record.EffectiveMultiplier,
		MultiplierDisplay:   tier.FormatMultiplier(record.EffectiveMultiplier),
		CatalogStatus:       status,
	}
	for _, id := range record.OwnedTierIDs {
		body.OwnedTierIDs = append(body.OwnedTierIDs, uint64(id))
	}
	for _, id := range record.UnknownTierIDs {
		body.UnknownTierIDs = append(body.UnknownTierIDs, uint64(id))
	}
	return body
}

// resolve runs ownership resolution and folds partial results into the
// response body instead of failing the request.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (ownership.Record, catalog.Snapshot, bool) {
	account := chi.URLParam(r, "account")
	snap := s.catalog.Current()
	record, err := s.resolver.Resolve(r.Context(), account, snap)
	var partial *ownership.PartialResolutionError
	if err != nil && !errors.As(err, &partial) {
		status, message := mapResolveError(err)
		writeError(w, status, message)
		return ownership.Record{}, catalog.Snapshot{}, false
	}
	return record, snap, true
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	record, snap, ok := s.resolve(w, r)
	if !ok {
		return
	}
	body := recordToBody(record, snap.Status)
	if len(record.UnknownTierIDs) > 0 {
		body.Warning = "some ownership checks unresolved; owned set may be incomplete"
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	record, snap, ok := s.resolve(w, r)
	if !ok {
		return
	}
	grant := s.evaluator.AccessGrant(record, snap)
	writeJSON(w, http.StatusOK, struct {
		Account       string          `json:"account"`
		Plans         map[string]bool `json:"plans"`
		CatalogStatus catalog.Status  `json:"catalogStatus"`
	}{Account: record.Account, Plans: grant, CatalogStatus: snap.Status})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSpace(r.URL.Query().Get("base"))
	if base == "" {
		writeError(w, http.StatusBadRequest, "base rate required")
		return
	}
	baseRate, ok := new(big.Rat).SetString(base)
	if !ok || baseRate.Sign() < 0 {
		writeError(w, http.StatusBadRequest, "invalid base rate")
		return
	}
	record, _, okResolve := s.resolve(w, r)
	if !okResolve {
		return
	}
	effective := benefit.EffectiveRate(baseRate, record)
	writeJSON(w, http.StatusOK, struct {
		Account           string `json:"account"`
		BaseRate          string `json:"baseRate"`
		Multiplier        uint32 `json:"multiplier"`
		MultiplierDisplay string `json:"multiplierDisplay"`
		EffectiveRate     string `json:"effectiveRate"`
	}{
		Account:           record.Account,
		BaseRate:          formatRat(baseRate),
		Multiplier:        record.EffectiveMultiplier,
		MultiplierDisplay: tier.FormatMultiplier(record.EffectiveMultiplier),
		EffectiveRate:     formatRat(effective),
	})
}

func (s *Server) handleFidelity(w http.ResponseWriter, r *http.Request) {
	if s.fidelity == nil {
		writeError(w, http.StatusNotFound, "fidelity backend not configured")
		return
	}
	account := chi.URLParam(r, "account")
	status, err := s.fidelity.Status(r.Context(), account)
	if err != nil {
		s.log.Warn("fidelity status fetch failed", "account", account, "error", err)
		writeError(w, http.StatusBadGateway, "fidelity backend unavailable")
		return
	}
	reconciled := fidelity.Reconcile(status)
	writeJSON(w, http.StatusOK, struct {
		Account     string `json:"account"`
		Fidel       bool   `json:"fidel"`
		Owns        bool   `json:"owns"`
		Claimed     bool   `json:"claimed"`
		Discrepant  bool   `json:"discrepant"`
		HighestTier uint64 `json:"highestTier"`
	}{
		Account:     account,
		Fidel:       reconciled.Fidel,
		Owns:        reconciled.Owns,
		Claimed:     reconciled.Claimed,
		Discrepant:  reconciled.Discrepant,
		HighestTier: uint64(reconciled.HighestTier),
	})
}
