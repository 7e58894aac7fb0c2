package bond

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount into token base units using the token's
// decimals. Amounts with more fractional digits than the token supports are
// rejected rather than silently truncated.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	shifted := amount.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("bond: %s has more than %d decimal places", amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits converts token base units into a human amount.
func FromBaseUnits(units *big.Int, decimals uint8) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(decimals))
}
