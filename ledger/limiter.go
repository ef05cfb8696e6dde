package ledger

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedReader throttles ledger reads so a refresh burst cannot exhaust
// the RPC provider's request budget. Waits respect the caller's context, so
// an abandoned refresh stops queueing reads.
type RateLimitedReader struct {
	inner   Reader
	limiter *rate.Limiter
}

// NewRateLimitedReader wraps the reader with the given sustained rate and
// burst. A non-positive rate disables throttling and returns the reader
// unchanged.
func NewRateLimitedReader(inner Reader, readsPerSecond float64, burst int) Reader {
	if inner == nil {
		return nil
	}
	if readsPerSecond <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedReader{inner: inner, limiter: rate.NewLimiter(rate.Limit(readsPerSecond), burst)}
}

func (r *RateLimitedReader) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ledger: rate limit wait: %w", err)
	}
	return nil
}

func (r *RateLimitedReader) ListActiveTierIDs(ctx context.Context) ([]uint64, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.ListActiveTierIDs(ctx)
}

func (r *RateLimitedReader) GetTierInfo(ctx context.Context, id uint64) (TierInfo, error) {
	if err := r.wait(ctx); err != nil {
		return TierInfo{}, err
	}
	return r.inner.GetTierInfo(ctx, id)
}

func (r *RateLimitedReader) GetRemainingSupply(ctx context.Context, id uint64) (uint64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.inner.GetRemainingSupply(ctx, id)
}

func (r *RateLimitedReader) OwnerHasTier(ctx context.Context, account string, id uint64) (bool, error) {
	if err := r.wait(ctx); err != nil {
		return false, err
	}
	return r.inner.OwnerHasTier(ctx, account, id)
}

func (r *RateLimitedReader) GetUserHighestTier(ctx context.Context, account string) (uint64, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.inner.GetUserHighestTier(ctx, account)
}

func (r *RateLimitedReader) GetUserMultiplier(ctx context.Context, account string) (uint32, error) {
	if err := r.wait(ctx); err != nil {
		return 0, err
	}
	return r.inner.GetUserMultiplier(ctx, account)
}
