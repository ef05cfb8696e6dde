package ledger_test

import (
	"context"
	"testing"
	"time"

	"tiercore/ledger"
)

func TestRateLimitedReaderPassthroughWhenDisabled(t *testing.T) {
	inner := seededManual()
	wrapped := ledger.NewRateLimitedReader(inner, 0, 10)
	if wrapped != ledger.Reader(inner) {
		t.Fatalf("expected non-positive rate to return the reader unchanged")
	}
}

func TestRateLimitedReaderDelegates(t *testing.T) {
	wrapped := ledger.NewRateLimitedReader(seededManual(), 1000, 10)
	ids, err := wrapped.ListActiveTierIDs(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 active tiers, got %v", ids)
	}
	if _, err := wrapped.GetTierInfo(context.Background(), 1); err != nil {
		t.Fatalf("getTierInfo: %v", err)
	}
}

func TestRateLimitedReaderHonoursContext(t *testing.T) {
	// Burst of 1 at a very slow rate: the second read must queue, and the
	// cancelled context has to release it.
	wrapped := ledger.NewRateLimitedReader(seededManual(), 0.001, 1)
	if _, err := wrapped.ListActiveTierIDs(context.Background()); err != nil {
		t.Fatalf("first read: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := wrapped.ListActiveTierIDs(ctx); err == nil {
		t.Fatalf("expected queued read to fail on context timeout")
	}
}
