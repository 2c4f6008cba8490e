package clmm

import (
	"encoding/binary"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg/math128"
	"lukechampine.com/uint128"
)

// GrossMode selects how LiquidityGross reacts to removed liquidity.
type GrossMode string

const (
	// GrossCumulative adds |delta| for every change, so gross only grows
	GrossCumulative GrossMode = "cumulative"
	// GrossActive tracks the liquidity currently referencing the tick
	GrossActive GrossMode = "active"
)

// TickInfo - per-tick liquidity bookkeeping
type TickInfo struct {
	Initialized    bool            // 1 byte
	LiquidityGross uint128.Uint128 // 16 bytes
	LiquidityNet   math128.Int128  // 16 bytes
}

// UpdateLiquidity applies delta to the tick. Lower ticks add delta to net,
// upper ticks subtract it. Nothing changes unless every step succeeds.
func (t *TickInfo) UpdateLiquidity(delta math128.Int128, isLower bool, mode GrossMode) error {
	initialized := t.Initialized
	if t.LiquidityGross.IsZero() {
		initialized = true
	}

	var (
		gross uint128.Uint128
		err   error
	)
	switch mode {
	case GrossActive:
		gross, err = math128.AddDelta(t.LiquidityGross, delta)
		if err == nil && gross.IsZero() {
			initialized = false
		}
	default:
		gross, err = math128.Add(t.LiquidityGross, delta.Abs())
	}
	if err != nil {
		return fmt.Errorf("liquidity gross: %w", err)
	}

	var net math128.Int128
	if isLower {
		net, err = t.LiquidityNet.Add(delta)
	} else {
		net, err = t.LiquidityNet.Sub(delta)
	}
	if err != nil {
		return fmt.Errorf("liquidity net: %w", err)
	}

	t.Initialized, t.LiquidityGross, t.LiquidityNet = initialized, gross, net
	return nil
}

// TickArray - a fixed-size page of ticks owned by one pool
type TickArray struct {
	Pool         solana.PublicKey // 32 bytes
	StartingTick int32            // 4 bytes
	Ticks        []TickInfo       // TickInfoSize each
	Bump         uint8            // 1 byte
}

func NewTickArray(pool solana.PublicKey, startingTick int32, ticksPerArray int, bump uint8) *TickArray {
	return &TickArray{
		Pool:         pool,
		StartingTick: startingTick,
		Ticks:        make([]TickInfo, ticksPerArray),
		Bump:         bump,
	}
}

func (ta *TickArray) Span() uint64 {
	return uint64(TickArraySize(len(ta.Ticks)))
}

// StartingTickOf returns the first tick of the page holding tick. Division
// rounds toward negative infinity so negative ticks land in their own page.
func StartingTickOf(tick, tickSpacing int32, ticksPerArray int) (int32, error) {
	if tickSpacing <= 0 {
		return 0, ErrInvalidTickSpacing
	}
	if ticksPerArray <= 0 {
		return 0, fmt.Errorf("%w: %d ticks per array", ErrInvalidTickArray, ticksPerArray)
	}
	compressed := floorDivision(int64(tick), int64(tickSpacing))
	page := floorDivision(compressed, int64(ticksPerArray))
	start := page * int64(ticksPerArray) * int64(tickSpacing)
	if start < math.MinInt32 || start > math.MaxInt32 {
		return 0, fmt.Errorf("%w: tick array start %d", ErrArithmeticOverflow, start)
	}
	return int32(start), nil
}

func floorDivision(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// tickOffset is the slot index of tick without any range check
func (ta *TickArray) tickOffset(tick, tickSpacing int32) int {
	n := int64(len(ta.Ticks))
	off := floorDivision(int64(tick), int64(tickSpacing)) - floorDivision(int64(ta.StartingTick), int64(tickSpacing))
	off %= n
	if off < 0 {
		off += n
	}
	return int(off)
}

// Contains reports whether tick falls inside the page
func (ta *TickArray) Contains(tick, tickSpacing int32) bool {
	width := int64(len(ta.Ticks)) * int64(tickSpacing)
	t := int64(tick)
	return t >= int64(ta.StartingTick) && t < int64(ta.StartingTick)+width
}

// TickInfo returns the slot for tick, refusing ticks this page does not own.
func (ta *TickArray) TickInfo(tick, tickSpacing int32) (*TickInfo, error) {
	if tickSpacing <= 0 {
		return nil, ErrInvalidTickSpacing
	}
	if tick%tickSpacing != 0 {
		return nil, fmt.Errorf("%w: tick %d spacing %d", ErrTickNotAligned, tick, tickSpacing)
	}
	if !ta.Contains(tick, tickSpacing) {
		return nil, fmt.Errorf("%w: tick %d not in page starting at %d", ErrTickOutOfRange, tick, ta.StartingTick)
	}
	return &ta.Ticks[ta.tickOffset(tick, tickSpacing)], nil
}

func (ta *TickArray) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(tickArrayDiscriminator[:], false); err != nil {
		return err
	}
	if err := encoder.WriteBytes(ta.Pool[:], false); err != nil {
		return err
	}
	if err := encoder.WriteInt32(ta.StartingTick, binary.LittleEndian); err != nil {
		return err
	}
	for i := range ta.Ticks {
		tick := &ta.Ticks[i]
		if err := encoder.WriteBool(tick.Initialized); err != nil {
			return err
		}
		if err := writeU128(encoder, tick.LiquidityGross); err != nil {
			return err
		}
		if err := writeI128(encoder, tick.LiquidityNet); err != nil {
			return err
		}
	}
	return encoder.WriteUint8(ta.Bump)
}

func (ta *TickArray) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if err = checkDiscriminator(decoder, tickArrayDiscriminator); err != nil {
		return err
	}
	if ta.Pool, err = readPublicKey(decoder); err != nil {
		return fmt.Errorf("failed to decode pool: %w", err)
	}
	if ta.StartingTick, err = decoder.ReadInt32(binary.LittleEndian); err != nil {
		return fmt.Errorf("failed to decode starting tick: %w", err)
	}

	body := decoder.Remaining() - 1
	if body < 0 || body%TickInfoSize != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidTickArray, decoder.Remaining())
	}
	ta.Ticks = make([]TickInfo, body/TickInfoSize)
	for i := range ta.Ticks {
		tick := &ta.Ticks[i]
		if tick.Initialized, err = decoder.ReadBool(); err != nil {
			return fmt.Errorf("failed to decode tick %d: %w", i, err)
		}
		if tick.LiquidityGross, err = readU128(decoder); err != nil {
			return fmt.Errorf("failed to decode tick %d: %w", i, err)
		}
		if tick.LiquidityNet, err = readI128(decoder); err != nil {
			return fmt.Errorf("failed to decode tick %d: %w", i, err)
		}
	}
	if ta.Bump, err = decoder.ReadUint8(); err != nil {
		return fmt.Errorf("failed to decode bump: %w", err)
	}
	return nil
}

func (ta *TickArray) Encode() ([]byte, error) {
	return encodeAccount(int(ta.Span()), ta)
}

// Decode parses tick array account data
func (ta *TickArray) Decode(data []byte) error {
	return ta.UnmarshalWithDecoder(bin.NewBorshDecoder(data))
}

// DeriveTickArrayPDA derives the address of the page starting at startingTick
func DeriveTickArrayPDA(programID, pool solana.PublicKey, startingTick int32) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{
			[]byte(TICK_ARRAY_SEED),
			pool.Bytes(),
			i32Seed(startingTick),
		},
		programID,
	)
}
