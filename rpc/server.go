// Package rpc exposes the tier engine over a read-only HTTP API. Snapshot
// status (fresh, partial, degraded) travels in every response body so
// clients can render staleness instead of mistaking fallback data for
// current truth.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tiercore/benefit"
	"tiercore/catalog"
	"tiercore/fidelity"
	"tiercore/ledger"
	"tiercore/observability/metrics"
	"tiercore/ownership"
)

// Server wires the engine components behind HTTP handlers.
type Server struct {
	catalog   *catalog.Catalog
	resolver  *ownership.Resolver
	evaluator *benefit.Evaluator
	fidelity  *fidelity.Client
	log       *slog.Logger
}

// NewServer constructs the API server. The fidelity client is optional; the
// fidelity route responds 404 when it is absent.
func NewServer(cat *catalog.Catalog, resolver *ownership.Resolver, evaluator *benefit.Evaluator, fid *fidelity.Client, log *slog.Logger) (*Server, error) {
	if cat == nil {
		return nil, fmt.Errorf("rpc: catalog required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("rpc: resolver required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("rpc: evaluator required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{catalog: cat, resolver: resolver, evaluator: evaluator, fidelity: fid, log: log}, nil
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/tiers", s.handleListTiers)
		v1.Get("/tiers/{id}", s.handleGetTier)
		v1.Post("/tiers/refresh", s.handleRefresh)
		v1.Get("/accounts/{account}", s.handleResolve)
		v1.Get("/accounts/{account}/grants", s.handleGrants)
		v1.Get("/accounts/{account}/rate", s.handleRate)
		v1.Get("/accounts/{account}/fidelity", s.handleFidelity)
	})
	return r
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// mapResolveError translates engine errors into HTTP statuses. Partial
// results are not errors at this layer; callers get the record plus a
// warning field.
func mapResolveError(err error) (int, string) {
	switch {
	case errors.Is(err, ownership.ErrInvalidAccount):
		return http.StatusBadRequest, "invalid account"
	case errors.Is(err, ledger.ErrUnreachable):
		return http.StatusServiceUnavailable, "ledger unreachable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
