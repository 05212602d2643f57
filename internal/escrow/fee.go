package escrow

import (
	"fmt"
	"math"
	"math/big"
)

// CalculateFee computes the platform commission for a gross amount in minor
// units at feePercent (0-100). Rounding is half-up, matching the gateway's
// own fee rounding; the computation runs in exact rational arithmetic so no
// float error can leak into a money amount.
func CalculateFee(amount int64, feePercent float64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("fee on negative amount %d: %w", amount, ErrInvalidAmount)
	}
	if math.IsNaN(feePercent) || feePercent < 0 || feePercent > 100 {
		return 0, fmt.Errorf("fee percent %v out of range [0,100]: %w", feePercent, ErrInvalidAmount)
	}

	percent := new(big.Rat).SetFloat64(feePercent)

	// amount * percent / 100, then round half-up: floor(x + 1/2).
	fee := new(big.Rat).SetInt64(amount)
	fee.Mul(fee, percent)
	fee.Quo(fee, big.NewRat(100, 1))
	fee.Add(fee, big.NewRat(1, 2))

	floored := new(big.Int).Quo(fee.Num(), fee.Denom())
	return floored.Int64(), nil
}
