package tier

import (
	"fmt"
	"math/big"
	"strings"
)

// MultiplierRat converts a scaled multiplier into an exact rational
// (250 -> 5/2). The rational form is what downstream rate math consumes so
// repeated conversions never accumulate floating-point drift.
func MultiplierRat(scaled uint32) *big.Rat {
	return new(big.Rat).SetFrac64(int64(scaled), MultiplierScale)
}

// FormatMultiplier renders a scaled multiplier for display: 250 -> "2.5x",
// 100 -> "1x". The scale divides the value exactly, so two decimal places
// always suffice.
func FormatMultiplier(scaled uint32) string {
	rendered := MultiplierRat(scaled).FloatString(2)
	rendered = strings.TrimRight(rendered, "0")
	rendered = strings.TrimRight(rendered, ".")
	return rendered + "x"
}

// ParseMultiplier decodes a display string produced by FormatMultiplier back
// into the ledger's scaled encoding. The parse is exact: any value that does
// not land on the 1/100 grid is rejected rather than rounded.
func ParseMultiplier(display string) (uint32, error) {
	trimmed := strings.TrimSpace(display)
	trimmed = strings.TrimSuffix(trimmed, "x")
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidMultiplier)
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMultiplier, display)
	}
	scaled := new(big.Rat).Mul(rat, big.NewRat(MultiplierScale, 1))
	if !scaled.IsInt() {
		return 0, fmt.Errorf("%w: %q is finer than the 1/%d scale", ErrInvalidMultiplier, display, MultiplierScale)
	}
	value := scaled.Num()
	if value.Sign() < 0 || !value.IsUint64() || value.Uint64() > uint64(^uint32(0)) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidMultiplier, display)
	}
	return uint32(value.Uint64()), nil
}
