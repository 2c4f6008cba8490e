package clmm

import (
	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

var q96 = decimal.NewFromBigInt(BASE_SQRT_PRICE.Big(), 0)

// SqrtPriceFromTick returns BASE + tick*TICK_STEP
func SqrtPriceFromTick(tick int32) (uint128.Uint128, error) {
	return DefaultCurve().SqrtPriceAtTick(tick)
}

// TickFromSqrtPrice returns (sqrtPrice - BASE) / TICK_STEP, truncated toward zero
func TickFromSqrtPrice(sqrtPrice uint128.Uint128) (int32, error) {
	return DefaultCurve().TickAtSqrtPrice(sqrtPrice)
}

// PriceFromSqrtPrice converts a Q96 sqrt price into a token1-per-token0 price
// for display. It plays no part in accounting.
func PriceFromSqrtPrice(sqrtPrice uint128.Uint128) decimal.Decimal {
	ratio := decimal.NewFromBigInt(sqrtPrice.Big(), 0).DivRound(q96, 36)
	return ratio.Mul(ratio)
}
