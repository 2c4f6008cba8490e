package clmm

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// Program ID the account keys are derived under when none is configured
var DEFAULT_PROGRAM_ID = solana.MustPublicKeyFromBase58("4GhrgMYusqS5uuyzrrBvFv3FuVGp4RRp4XKDBctyW6oN")

// Pricing constants of the linear curve
var (
	// BASE_SQRT_PRICE is the sqrt price of tick 0 (2^96)
	BASE_SQRT_PRICE = uint128.New(0, 1<<32)
)

const (
	TICK_STEP       = 1_000_000     // sqrt price units per tick
	SWAP_PRICE_STEP = 1_000_000_000 // sqrt price units moved by one swap
	FEE_DENOMINATOR = 1000          // flat fee of amount_in/1000
)

// Tick array configuration
const (
	TICKS_PER_ARRAY      = 30
	TICKS_PER_ARRAY_WIDE = 100
	TickInfoSize         = 1 + 16 + 16
)

// Seeds
var (
	POOL_SEED       = "pool"
	TICK_ARRAY_SEED = "tick_array"
	POSITION_SEED   = "position"
)

// Account sizes including the 8-byte discriminator
const (
	DISCRIMINATOR_SIZE = 8
	PoolSize           = DISCRIMINATOR_SIZE + 32*4 + 16 + 16 + 4 + 4 + 1
	PositionSize       = DISCRIMINATOR_SIZE + 16 + 4 + 4 + 32 + 32 + 1
)

// TickArraySize returns the encoded size of a page with n slots
func TickArraySize(n int) int {
	return DISCRIMINATOR_SIZE + 32 + 4 + n*TickInfoSize + 1
}
