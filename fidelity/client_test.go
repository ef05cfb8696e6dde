package fidelity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tiercore/fidelity"
	"tiercore/tier"
)

func TestReconcileLedgerWins(t *testing.T) {
	// Database says claimed, chain says not owned: the chain's answer stands
	// and the mismatch is surfaced.
	out := fidelity.Reconcile(fidelity.Status{
		IsFidel:         true,
		HasClaimedNFT:   true,
		ActuallyOwnsNFT: false,
		HighestTier:     3,
	})
	if out.Owns {
		t.Fatalf("ownership must follow the chain")
	}
	if !out.Discrepant {
		t.Fatalf("expected discrepancy flagged")
	}
	if out.HighestTier != tier.None {
		t.Fatalf("expected highest tier cleared when unowned, got %d", out.HighestTier)
	}
	if !out.Fidel || !out.Claimed {
		t.Fatalf("backend flags should pass through: %+v", out)
	}
}

func TestReconcileOwnedButUnclaimed(t *testing.T) {
	out := fidelity.Reconcile(fidelity.Status{
		HasClaimedNFT:   false,
		ActuallyOwnsNFT: true,
		HighestTier:     5,
	})
	if !out.Owns || !out.Discrepant {
		t.Fatalf("expected owned and discrepant, got %+v", out)
	}
	if out.HighestTier != 5 {
		t.Fatalf("expected highest tier kept, got %d", out.HighestTier)
	}
}

func TestReconcileAgreementIsClean(t *testing.T) {
	out := fidelity.Reconcile(fidelity.Status{
		HasClaimedNFT:   true,
		ActuallyOwnsNFT: true,
		HighestTier:     2,
	})
	if out.Discrepant {
		t.Fatalf("agreeing flags must not be discrepant")
	}
	if !out.Owns || out.HighestTier != 2 {
		t.Fatalf("unexpected reconciliation: %+v", out)
	}
}

func TestClientStatusSendsAccountAndKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("account"); got != "0xabc" {
			t.Errorf("expected account query, got %q", got)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("expected api key header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(fidelity.Status{
			IsFidel:         true,
			HasClaimedNFT:   true,
			ActuallyOwnsNFT: true,
			HighestTier:     4,
		})
	}))
	defer server.Close()

	client, err := fidelity.NewClient(server.Client(), server.URL, "secret")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	status, err := client.Status(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.IsFidel || status.HighestTier != 4 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestClientStatusRejectsNonOKResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := fidelity.NewClient(server.Client(), server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Status(context.Background(), "0xabc"); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := fidelity.NewClient(nil, "   ", ""); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
