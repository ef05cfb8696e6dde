package tier

import "errors"

var (
	ErrInvalidTier       = errors.New("tier: invalid tier")
	ErrInvalidMultiplier = errors.New("tier: invalid multiplier")
)
