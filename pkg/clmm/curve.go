package clmm

import (
	"fmt"

	"github.com/gtdvccc/solclmm/pkg/math128"
	"lukechampine.com/uint128"
)

// Curve maps ticks to prices and liquidity to token amounts. The engine only
// talks to the curve through this interface so a real geometric curve can
// replace the linear one without touching the accounting.
type Curve interface {
	SqrtPriceAtTick(tick int32) (uint128.Uint128, error)
	TickAtSqrtPrice(sqrtPrice uint128.Uint128) (int32, error)
	AmountsForLiquidity(sqrtPrice, sqrtPriceLower, sqrtPriceUpper, liquidity uint128.Uint128) (amount0, amount1 uint64, err error)
	SwapSegment(sqrtPrice, liquidity uint128.Uint128, amountIn uint64, zeroForOne bool) (SwapStep, error)
}

// SwapStep is the outcome of one swap segment
type SwapStep struct {
	AmountOut     uint64
	FeeAmount     uint64
	SqrtPriceNext uint128.Uint128
}

// LinearCurve prices tick t at BASE + t*TickStep.
type LinearCurve struct {
	TickStep       uint64
	PriceStep      uint64
	FeeDenominator uint64
}

func DefaultCurve() LinearCurve {
	return LinearCurve{
		TickStep:       TICK_STEP,
		PriceStep:      SWAP_PRICE_STEP,
		FeeDenominator: FEE_DENOMINATOR,
	}
}

func NewLinearCurve(tickStep, priceStep, feeDenominator uint64) (LinearCurve, error) {
	if tickStep == 0 || priceStep == 0 || feeDenominator == 0 {
		return LinearCurve{}, fmt.Errorf("linear curve steps must be positive: tick=%d price=%d fee=%d",
			tickStep, priceStep, feeDenominator)
	}
	return LinearCurve{TickStep: tickStep, PriceStep: priceStep, FeeDenominator: feeDenominator}, nil
}

func (c LinearCurve) SqrtPriceAtTick(tick int32) (uint128.Uint128, error) {
	neg := tick < 0
	mag := uint64(tick)
	if neg {
		mag = uint64(-int64(tick))
	}
	// |tick| <= 2^31 so the product stays below 2^95
	delta := uint128.From64(mag).Mul64(c.TickStep)
	if neg {
		return math128.Sub(BASE_SQRT_PRICE, delta)
	}
	return math128.Add(BASE_SQRT_PRICE, delta)
}

// TickAtSqrtPrice truncates toward zero, so prices just below BASE map to 0.
func (c LinearCurve) TickAtSqrtPrice(sqrtPrice uint128.Uint128) (int32, error) {
	var (
		diff math128.Int128
		err  error
	)
	if sqrtPrice.Cmp(BASE_SQRT_PRICE) >= 0 {
		diff, err = math128.FromUint128(sqrtPrice.Sub(BASE_SQRT_PRICE))
	} else {
		diff, err = math128.NegFromUint128(BASE_SQRT_PRICE.Sub(sqrtPrice))
	}
	if err != nil {
		return 0, err
	}

	q := diff.Abs().Div64(c.TickStep)
	var tick math128.Int128
	if diff.IsNeg() {
		tick, err = math128.NegFromUint128(q)
	} else {
		tick, err = math128.FromUint128(q)
	}
	if err != nil {
		return 0, err
	}
	return math128.ToInt32(tick)
}

// AmountsForLiquidity splits liquidity half and half inside the range and puts
// all of it on one side outside the range.
func (c LinearCurve) AmountsForLiquidity(sqrtPrice, sqrtPriceLower, sqrtPriceUpper, liquidity uint128.Uint128) (uint64, uint64, error) {
	switch {
	case sqrtPrice.Cmp(sqrtPriceLower) >= 0 && sqrtPrice.Cmp(sqrtPriceUpper) < 0:
		half, err := math128.ToUint64(liquidity.Rsh(1))
		if err != nil {
			return 0, 0, err
		}
		return half, half, nil
	case sqrtPrice.Cmp(sqrtPriceLower) < 0:
		amount0, err := math128.ToUint64(liquidity)
		if err != nil {
			return 0, 0, err
		}
		return amount0, 0, nil
	default:
		amount1, err := math128.ToUint64(liquidity)
		if err != nil {
			return 0, 0, err
		}
		return 0, amount1, nil
	}
}

// SwapSegment charges a flat fee and moves the price one PriceStep against
// the direction of the trade.
func (c LinearCurve) SwapSegment(sqrtPrice, liquidity uint128.Uint128, amountIn uint64, zeroForOne bool) (SwapStep, error) {
	if liquidity.IsZero() {
		return SwapStep{}, ErrInsufficientPoolLiquidity
	}
	fee := amountIn / c.FeeDenominator
	step := SwapStep{
		AmountOut: amountIn - fee,
		FeeAmount: fee,
	}

	var err error
	if zeroForOne {
		step.SqrtPriceNext, err = math128.Sub(sqrtPrice, uint128.From64(c.PriceStep))
	} else {
		step.SqrtPriceNext, err = math128.Add(sqrtPrice, uint128.From64(c.PriceStep))
	}
	if err != nil {
		return SwapStep{}, fmt.Errorf("next sqrt price: %w", err)
	}
	return step, nil
}
