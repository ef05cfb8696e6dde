// Package fidelity reconciles the backend's fidelity-claim bookkeeping
// against on-chain ownership. The ledger is the system of record: when the
// database flag and the chain disagree, the chain wins and the discrepancy
// is surfaced rather than silently patched.
package fidelity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"tiercore/tier"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Status is the backend's view of one account's fidelity standing.
type Status struct {
	IsFidel         bool            `json:"isFidel"`
	HasClaimedNFT   bool            `json:"hasClaimedNFT"`
	ActuallyOwnsNFT bool            `json:"actuallyOwnsNFT"`
	HighestTier     uint64          `json:"highestTier"`
	UserInfo        json.RawMessage `json:"userInfo,omitempty"`
}

// Client fetches fidelity status from the backend endpoint.
type Client struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
}

// NewClient constructs a fidelity backend client. When the HTTP client is
// nil http.DefaultClient is used. The API key is optional and only attached
// when supplied.
func NewClient(client HTTPDoer, endpoint, apiKey string) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("fidelity: endpoint required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{client: client, endpoint: trimmed, apiKey: strings.TrimSpace(apiKey)}, nil
}

// Status fetches the backend's fidelity record for the account.
func (c *Client) Status(ctx context.Context, account string) (Status, error) {
	if c == nil {
		return Status{}, fmt.Errorf("fidelity: client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return Status{}, err
	}
	values := url.Values{}
	values.Set("account", strings.TrimSpace(account))
	req.URL.RawQuery = values.Encode()
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("fidelity: fetch status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Status{}, fmt.Errorf("fidelity: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, fmt.Errorf("fidelity: decode: %w", err)
	}
	return status, nil
}

// Reconciled is the merged fidelity view after applying the ledger-wins
// rule.
type Reconciled struct {
	// Fidel carries the backend's program-membership flag unchanged; the
	// ledger has no opinion on it.
	Fidel bool
	// Owns is the authoritative ownership answer (the chain's).
	Owns bool
	// Claimed is the database bookkeeping flag, kept for display.
	Claimed bool
	// Discrepant is set when Claimed and Owns disagree.
	Discrepant bool
	// HighestTier is the backend's reported tier, tier.None when unowned.
	HighestTier tier.ID
}

// Reconcile applies the ledger-wins rule to a backend status:
// actuallyOwnsNFT is authoritative over hasClaimedNFT whenever they
// disagree.
func Reconcile(status Status) Reconciled {
	out := Reconciled{
		Fidel:       status.IsFidel,
		Owns:        status.ActuallyOwnsNFT,
		Claimed:     status.HasClaimedNFT,
		Discrepant:  status.HasClaimedNFT != status.ActuallyOwnsNFT,
		HighestTier: tier.ID(status.HighestTier),
	}
	if !out.Owns {
		out.HighestTier = tier.None
	}
	return out
}
