package math128

import (
	"fmt"
	"math"

	"lukechampine.com/uint128"
)

// Add returns a+b or ErrOverflow past 2^128-1.
func Add(a, b uint128.Uint128) (uint128.Uint128, error) {
	sum := a.AddWrap(b)
	if sum.Cmp(a) < 0 {
		return uint128.Zero, fmt.Errorf("%w: %s + %s", ErrOverflow, a, b)
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow when b > a.
func Sub(a, b uint128.Uint128) (uint128.Uint128, error) {
	if a.Cmp(b) < 0 {
		return uint128.Zero, fmt.Errorf("%w: %s - %s", ErrUnderflow, a, b)
	}
	return a.Sub(b), nil
}

// AddDelta applies a signed delta to an unsigned liquidity value.
func AddDelta(x uint128.Uint128, delta Int128) (uint128.Uint128, error) {
	if delta.IsNeg() {
		return Sub(x, delta.Abs())
	}
	return Add(x, delta.Abs())
}

// ToUint64 narrows u, failing instead of truncating.
func ToUint64(u uint128.Uint128) (uint64, error) {
	if u.Hi != 0 {
		return 0, fmt.Errorf("%w: %s does not fit u64", ErrOverflow, u)
	}
	return u.Lo, nil
}

// ToInt32 narrows a signed value, failing outside the int32 range.
func ToInt32(x Int128) (int32, error) {
	mag := x.Abs()
	if x.IsNeg() {
		if mag.Cmp64(uint64(-int64(math.MinInt32))) > 0 {
			return 0, fmt.Errorf("%w: %s does not fit i32", ErrOverflow, x)
		}
		return int32(-int64(mag.Lo)), nil
	}
	if mag.Cmp64(math.MaxInt32) > 0 {
		return 0, fmt.Errorf("%w: %s does not fit i32", ErrOverflow, x)
	}
	return int32(mag.Lo), nil
}
