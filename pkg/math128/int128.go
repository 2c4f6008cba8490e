package math128

import (
	"errors"
	"fmt"
	"math/big"

	"lukechampine.com/uint128"
)

var (
	ErrOverflow  = errors.New("arithmetic overflow")
	ErrUnderflow = fmt.Errorf("%w: underflow", ErrOverflow)
)

// Int128 is a signed 128-bit integer stored in two's complement on top of
// uint128.Uint128, matching the i128 layout used by on-chain accounts.
type Int128 struct {
	bits uint128.Uint128
}

var (
	MaxInt128 = Int128{bits: uint128.New(^uint64(0), ^uint64(0)>>1)}
	MinInt128 = Int128{bits: uint128.New(0, 1<<63)}
)

func FromInt64(x int64) Int128 {
	if x < 0 {
		return Int128{bits: uint128.New(uint64(x), ^uint64(0))}
	}
	return Int128{bits: uint128.From64(uint64(x))}
}

// FromUint128 converts an unsigned magnitude, failing above MaxInt128.
func FromUint128(u uint128.Uint128) (Int128, error) {
	if u.Hi>>63 != 0 {
		return Int128{}, fmt.Errorf("%w: %s does not fit i128", ErrOverflow, u)
	}
	return Int128{bits: u}, nil
}

// NegFromUint128 returns -u; u may be at most 2^127.
func NegFromUint128(u uint128.Uint128) (Int128, error) {
	if u.Hi>>63 != 0 && !(u.Hi == 1<<63 && u.Lo == 0) {
		return Int128{}, fmt.Errorf("%w: -%s does not fit i128", ErrOverflow, u)
	}
	return Int128{bits: twos(u)}, nil
}

func FromBig(b *big.Int) (Int128, error) {
	if b.Sign() >= 0 {
		if b.BitLen() > 127 {
			return Int128{}, fmt.Errorf("%w: %s does not fit i128", ErrOverflow, b)
		}
		return Int128{bits: uint128.FromBig(b)}, nil
	}
	mag := new(big.Int).Neg(b)
	if mag.BitLen() > 128 {
		return Int128{}, fmt.Errorf("%w: %s does not fit i128", ErrOverflow, b)
	}
	return NegFromUint128(uint128.FromBig(mag))
}

// FromBytes decodes a little-endian two's complement value.
func FromBytes(b []byte) Int128 {
	return Int128{bits: uint128.FromBytes(b)}
}

// PutBytes stores x into b as 16 little-endian bytes.
func (x Int128) PutBytes(b []byte) {
	x.bits.PutBytes(b)
}

func (x Int128) Bits() uint128.Uint128 { return x.bits }

func (x Int128) IsZero() bool { return x.bits.IsZero() }

func (x Int128) IsNeg() bool { return x.bits.Hi>>63 == 1 }

func (x Int128) Sign() int {
	switch {
	case x.IsZero():
		return 0
	case x.IsNeg():
		return -1
	}
	return 1
}

// Abs returns |x|. MinInt128 maps to 2^127, which fits the unsigned range.
func (x Int128) Abs() uint128.Uint128 {
	if x.IsNeg() {
		return twos(x.bits)
	}
	return x.bits
}

func (x Int128) Neg() (Int128, error) {
	if x == MinInt128 {
		return Int128{}, fmt.Errorf("%w: cannot negate %s", ErrOverflow, x)
	}
	return Int128{bits: twos(x.bits)}, nil
}

func (x Int128) Add(y Int128) (Int128, error) {
	sum := Int128{bits: x.bits.AddWrap(y.bits)}
	if x.IsNeg() == y.IsNeg() && sum.IsNeg() != x.IsNeg() {
		return Int128{}, fmt.Errorf("%w: %s + %s", ErrOverflow, x, y)
	}
	return sum, nil
}

func (x Int128) Sub(y Int128) (Int128, error) {
	diff := Int128{bits: x.bits.SubWrap(y.bits)}
	if x.IsNeg() != y.IsNeg() && diff.IsNeg() != x.IsNeg() {
		return Int128{}, fmt.Errorf("%w: %s - %s", ErrOverflow, x, y)
	}
	return diff, nil
}

func (x Int128) Cmp(y Int128) int {
	switch {
	case x.IsNeg() && !y.IsNeg():
		return -1
	case !x.IsNeg() && y.IsNeg():
		return 1
	}
	return x.bits.Cmp(y.bits)
}

func (x Int128) Big() *big.Int {
	if x.IsNeg() {
		return new(big.Int).Neg(x.Abs().Big())
	}
	return x.bits.Big()
}

func (x Int128) String() string {
	return x.Big().String()
}

func twos(u uint128.Uint128) uint128.Uint128 {
	return uint128.New(^u.Lo, ^u.Hi).AddWrap64(1)
}
