package clmm

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"github.com/gtdvccc/solclmm/pkg/ledger"
	"github.com/gtdvccc/solclmm/pkg/math128"
	"github.com/gtdvccc/solclmm/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

const startingBalance = 1_000_000

type fixture struct {
	engine *Engine
	store  *store.Memory
	ledger *ledger.Memory
	mint0  solana.PublicKey
	mint1  solana.PublicKey
	owner  solana.PublicKey
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemory(),
		ledger: ledger.NewMemory(nil),
		mint0:  solana.NewWallet().PublicKey(),
		mint1:  solana.NewWallet().PublicKey(),
		owner:  solana.NewWallet().PublicKey(),
	}
	engine, err := NewEngine(cfg, f.store, f.ledger, nil, nil)
	require.NoError(t, err)
	f.engine = engine
	f.fund(t, f.owner)
	return f
}

func (f *fixture) ata(t *testing.T, owner, mint solana.PublicKey) solana.PublicKey {
	t.Helper()
	acc, err := tokenAccount(owner, mint)
	require.NoError(t, err)
	return acc
}

func (f *fixture) fund(t *testing.T, owner solana.PublicKey) {
	t.Helper()
	require.NoError(t, f.ledger.MintTo(f.ata(t, owner, f.mint0), f.mint0, startingBalance))
	require.NoError(t, f.ledger.MintTo(f.ata(t, owner, f.mint1), f.mint1, startingBalance))
}

// spacing 60 at the given price
func (f *fixture) initPool(t *testing.T, sqrtPrice uint128.Uint128) *Pool {
	t.Helper()
	pool, err := f.engine.InitPool(context.Background(), InitPoolRequest{
		TokenMint0:       f.mint0,
		TokenMint1:       f.mint1,
		TickSpacing:      60,
		InitialSqrtPrice: sqrtPrice,
	})
	require.NoError(t, err)
	return pool
}

func (f *fixture) liquidityReq(pool *Pool, lower, upper int32, liquidity uint64) LiquidityRequest {
	return LiquidityRequest{
		Pool:      pool.PoolId,
		Owner:     f.owner,
		Signer:    f.owner,
		TickLower: lower,
		TickUpper: upper,
		Liquidity: uint128.From64(liquidity),
	}
}

func (f *fixture) snapshot(t *testing.T, keys ...solana.PublicKey) map[solana.PublicKey][]byte {
	t.Helper()
	out := make(map[solana.PublicKey][]byte)
	for _, k := range keys {
		data, err := f.store.Get(context.Background(), k)
		if errors.Is(err, pkg.ErrAccountNotFound) {
			continue
		}
		require.NoError(t, err)
		out[k] = data
	}
	return out
}

func TestInitPool(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)

	assert.Equal(t, int32(0), pool.CurrentTick)
	assert.True(t, pool.GlobalLiquidity.IsZero())

	loaded, err := f.engine.LoadPoolByMints(context.Background(), f.mint0, f.mint1, 60)
	require.NoError(t, err)
	assert.Equal(t, pool.PoolId, loaded.PoolId)
	assert.Equal(t, pool.TokenVault0, loaded.TokenVault0)
	assert.Equal(t, "1", loaded.Price().String())
}

func TestInitPoolValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	_, err := f.engine.InitPool(ctx, InitPoolRequest{TokenMint0: f.mint0, TokenMint1: f.mint0, TickSpacing: 60, InitialSqrtPrice: BASE_SQRT_PRICE})
	assert.ErrorIs(t, err, ErrInvalidTokenPair)

	_, err = f.engine.InitPool(ctx, InitPoolRequest{TokenMint0: f.mint0, TokenMint1: f.mint1, TickSpacing: 0, InitialSqrtPrice: BASE_SQRT_PRICE})
	assert.ErrorIs(t, err, ErrInvalidTickSpacing)

	_, err = f.engine.InitPool(ctx, InitPoolRequest{TokenMint0: f.mint0, TokenMint1: f.mint1, TickSpacing: 60})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = f.engine.InitPool(ctx, InitPoolRequest{TokenMint0: f.mint0, TokenMint1: f.mint1, TickSpacing: 60, InitialSqrtPrice: uint128.Max})
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	assert.Equal(t, 0, f.store.Len())

	f.initPool(t, BASE_SQRT_PRICE)
	_, err = f.engine.InitPool(ctx, InitPoolRequest{TokenMint0: f.mint0, TokenMint1: f.mint1, TickSpacing: 60, InitialSqrtPrice: BASE_SQRT_PRICE})
	assert.ErrorIs(t, err, ErrPoolAlreadyInitialized)
	assert.Equal(t, KindState, KindOf(err))
}

func TestAddLiquidity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)

	amounts, err := f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)
	assert.Equal(t, Amounts{Amount0: 500, Amount1: 500}, amounts)

	loaded, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1000), loaded.GlobalLiquidity)

	lower, err := f.engine.TickInfoAt(ctx, pool.PoolId, -60)
	require.NoError(t, err)
	assert.Equal(t, math128.FromInt64(1000), lower.LiquidityNet)
	assert.Equal(t, uint128.From64(1000), lower.LiquidityGross)
	assert.True(t, lower.Initialized)

	upper, err := f.engine.TickInfoAt(ctx, pool.PoolId, 60)
	require.NoError(t, err)
	assert.Equal(t, math128.FromInt64(-1000), upper.LiquidityNet)
	assert.Equal(t, uint128.From64(1000), upper.LiquidityGross)

	// -60 and 60 live on different pages
	lowerPage, err := f.engine.LoadTickArray(ctx, pool.PoolId, -60)
	require.NoError(t, err)
	assert.Equal(t, int32(-1800), lowerPage.StartingTick)
	upperPage, err := f.engine.LoadTickArray(ctx, pool.PoolId, 60)
	require.NoError(t, err)
	assert.Equal(t, int32(0), upperPage.StartingTick)

	pos, err := f.engine.LoadPosition(ctx, pool.PoolId, f.owner, -60, 60)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1000), pos.Liquidity)
	assert.Equal(t, f.owner, pos.Owner)

	assert.Equal(t, uint64(startingBalance-500), f.ledger.Balance(f.ata(t, f.owner, f.mint0)))
	assert.Equal(t, uint64(500), f.ledger.Balance(pool.TokenVault0))
	assert.Equal(t, uint64(500), f.ledger.Balance(pool.TokenVault1))

	// topping up the same position accumulates
	_, err = f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 200))
	require.NoError(t, err)
	pos, err = f.engine.LoadPosition(ctx, pool.PoolId, f.owner, -60, 60)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1200), pos.Liquidity)
}

func TestAddLiquidityValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)

	tests := []struct {
		name string
		req  LiquidityRequest
		want error
	}{
		{"inverted range", f.liquidityReq(pool, 60, -60, 1000), ErrInvalidTickRange},
		{"empty range", f.liquidityReq(pool, 60, 60, 1000), ErrInvalidTickRange},
		{"unaligned", f.liquidityReq(pool, -30, 60, 1000), ErrInvalidTickRange},
		{"range above price", f.liquidityReq(pool, 60, 120, 1000), ErrMintRangeMustCoverCurrentPrice},
		{"upper bound is exclusive", f.liquidityReq(pool, -60, 0, 1000), ErrMintRangeMustCoverCurrentPrice},
		{"zero liquidity", f.liquidityReq(pool, -60, 60, 0), ErrInsufficientInputAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.OpenOrAddLiquidity(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindInput, KindOf(err))
		})
	}

	stranger := f.liquidityReq(pool, -60, 60, 1000)
	stranger.Signer = solana.NewWallet().PublicKey()
	_, err := f.engine.OpenOrAddLiquidity(ctx, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// only the pool account exists after all the rejections
	assert.Equal(t, 1, f.store.Len())
	assert.Empty(t, f.ledger.History())
}

func TestSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)
	_, err := f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)

	// extra inventory so the vault can cover a 999 payout
	require.NoError(t, f.ledger.MintTo(pool.TokenVault1, f.mint1, 10_000))
	trader := solana.NewWallet().PublicKey()
	f.fund(t, trader)

	quote, err := f.engine.Quote(ctx, pool.PoolId, 1000, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(999), quote.AmountOut)

	res, err := f.engine.Swap(ctx, SwapRequest{
		Pool:             pool.PoolId,
		Trader:           trader,
		Signer:           trader,
		AmountIn:         1000,
		ZeroForOne:       true,
		AmountOutMinimum: 999,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(999), res.AmountOut)
	assert.Equal(t, BASE_SQRT_PRICE.Sub64(SWAP_PRICE_STEP), res.SqrtPriceNext)
	assert.Equal(t, int32(-1000), res.TickNext)
	assert.Equal(t, quote, res)

	loaded, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)
	assert.Equal(t, res.SqrtPriceNext, loaded.SqrtPrice)
	assert.Equal(t, int32(-1000), loaded.CurrentTick)
	assert.Equal(t, uint128.From64(1000), loaded.GlobalLiquidity)

	assert.Equal(t, uint64(startingBalance-1000), f.ledger.Balance(f.ata(t, trader, f.mint0)))
	assert.Equal(t, uint64(startingBalance+999), f.ledger.Balance(f.ata(t, trader, f.mint1)))
	assert.Equal(t, uint64(1500), f.ledger.Balance(pool.TokenVault0))
}

func TestSwapRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)

	_, err := f.engine.Swap(ctx, SwapRequest{Pool: pool.PoolId, Trader: f.owner, Signer: f.owner, AmountIn: 1000, ZeroForOne: true})
	assert.ErrorIs(t, err, ErrInsufficientPoolLiquidity)
	assert.Equal(t, KindEconomic, KindOf(err))

	_, err = f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)
	before := f.snapshot(t, pool.PoolId)

	_, err = f.engine.Swap(ctx, SwapRequest{Pool: pool.PoolId, Trader: f.owner, Signer: f.owner, AmountIn: 0, ZeroForOne: true})
	assert.ErrorIs(t, err, ErrInsufficientInputAmount)

	_, err = f.engine.Swap(ctx, SwapRequest{Pool: pool.PoolId, Trader: f.owner, Signer: f.owner, AmountIn: 100, ZeroForOne: false, AmountOutMinimum: 101})
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	// vault 1 only holds 500, so the payout leg fails and nothing is kept
	_, err = f.engine.Swap(ctx, SwapRequest{Pool: pool.PoolId, Trader: f.owner, Signer: f.owner, AmountIn: 1000, ZeroForOne: true})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, KindInfrastructure, KindOf(err))

	assert.Equal(t, before, f.snapshot(t, pool.PoolId))
	assert.Equal(t, uint64(500), f.ledger.Balance(pool.TokenVault0))

	_, err = f.engine.Swap(ctx, SwapRequest{Pool: solana.NewWallet().PublicKey(), Trader: f.owner, Signer: f.owner, AmountIn: 10})
	assert.ErrorIs(t, err, ErrPoolNotFound)

	// a stranger cannot spend the owner's tokens
	stranger := solana.NewWallet().PublicKey()
	_, err = f.engine.Swap(ctx, SwapRequest{Pool: pool.PoolId, Trader: f.owner, Signer: stranger, AmountIn: 100, ZeroForOne: true})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, KindInput, KindOf(err))
	_, err = f.engine.Swap(ctx, SwapRequest{Pool: pool.PoolId, Trader: f.owner, AmountIn: 100, ZeroForOne: true})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, uint64(startingBalance-500), f.ledger.Balance(f.ata(t, f.owner, f.mint0)))
	assert.Equal(t, before, f.snapshot(t, pool.PoolId))
}

func TestSwapRequiresCurrentTickArray(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)
	_, err := f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)

	req := SwapRequest{Pool: pool.PoolId, Trader: f.owner, Signer: f.owner, AmountIn: 100, ZeroForOne: true}
	// ticks 0 and -1000 both sit on pages written by the deposit
	for i := 0; i < 2; i++ {
		_, err = f.engine.Swap(ctx, req)
		require.NoError(t, err)
	}
	loaded, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)
	assert.Equal(t, int32(-2000), loaded.CurrentTick)
	before := f.snapshot(t, pool.PoolId)

	// tick -2000 lives on page -3600, which was never written
	_, err = f.engine.Swap(ctx, req)
	assert.ErrorIs(t, err, ErrTickArrayNotFound)
	assert.Equal(t, before, f.snapshot(t, pool.PoolId))

	_, err = f.engine.LoadTickArray(ctx, pool.PoolId, -2000)
	assert.ErrorIs(t, err, ErrTickArrayNotFound)
}

func TestClosePosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)
	_, err := f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)

	amounts, err := f.engine.DecreaseLiquidity(ctx, f.liquidityReq(pool, -60, 60, 400))
	require.NoError(t, err)
	assert.Equal(t, Amounts{Amount0: 200, Amount1: 200}, amounts)

	amounts, err = f.engine.ClosePosition(ctx, ClosePositionRequest{
		Pool:      pool.PoolId,
		Owner:     f.owner,
		Signer:    f.owner,
		TickLower: -60,
		TickUpper: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, Amounts{Amount0: 300, Amount1: 300}, amounts)

	_, err = f.engine.LoadPosition(ctx, pool.PoolId, f.owner, -60, 60)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	loaded, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)
	assert.True(t, loaded.GlobalLiquidity.IsZero())

	for _, tick := range []int32{-60, 60} {
		info, err := f.engine.TickInfoAt(ctx, pool.PoolId, tick)
		require.NoError(t, err)
		assert.True(t, info.LiquidityNet.IsZero(), "tick %d", tick)
		// cumulative gross keeps every unit ever added or removed
		assert.Equal(t, uint128.From64(2000), info.LiquidityGross, "tick %d", tick)
	}

	assert.Equal(t, uint64(startingBalance), f.ledger.Balance(f.ata(t, f.owner, f.mint0)))
	assert.Equal(t, uint64(0), f.ledger.Balance(pool.TokenVault0))
}

func TestDrainedPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)
	_, err := f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)

	_, err = f.engine.DecreaseLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)

	pos, err := f.engine.LoadPosition(ctx, pool.PoolId, f.owner, -60, 60)
	require.NoError(t, err)
	assert.True(t, pos.Liquidity.IsZero())

	// decreasing everything and then closing is rejected: close only
	// withdraws remaining liquidity, and none remains
	closeReq := ClosePositionRequest{Pool: pool.PoolId, Owner: f.owner, Signer: f.owner, TickLower: -60, TickUpper: 60}
	_, err = f.engine.ClosePosition(ctx, closeReq)
	assert.ErrorIs(t, err, ErrNoLiquidityToRemove)
	_, err = f.engine.LoadPosition(ctx, pool.PoolId, f.owner, -60, 60)
	assert.NoError(t, err)

	// a drained position can be funded again and then closed
	_, err = f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 10))
	require.NoError(t, err)
	_, err = f.engine.ClosePosition(ctx, closeReq)
	require.NoError(t, err)
}

func TestAddThenDecreaseRestoresTicks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{TicksPerArray: TICKS_PER_ARRAY, GrossMode: GrossActive})
	pool := f.initPool(t, BASE_SQRT_PRICE)
	other := solana.NewWallet().PublicKey()
	f.fund(t, other)

	// another owner keeps the boundary ticks alive
	req := f.liquidityReq(pool, -60, 60, 300)
	req.Owner, req.Signer = other, other
	_, err := f.engine.OpenOrAddLiquidity(ctx, req)
	require.NoError(t, err)

	ticksOf := func() []TickInfo {
		var out []TickInfo
		for _, tick := range []int32{-60, 60} {
			info, err := f.engine.TickInfoAt(ctx, pool.PoolId, tick)
			require.NoError(t, err)
			out = append(out, info)
		}
		return out
	}
	beforeTicks := ticksOf()
	beforePool, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)

	_, err = f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)
	_, err = f.engine.DecreaseLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)

	assert.Equal(t, beforeTicks, ticksOf())
	afterPool, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)
	assert.Equal(t, beforePool.GlobalLiquidity, afterPool.GlobalLiquidity)
	assert.Equal(t, uint128.From64(300), afterPool.GlobalLiquidity)
}

func TestAddThenDecreaseCumulativeGross(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)

	_, err := f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)
	_, err = f.engine.DecreaseLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)

	for _, tick := range []int32{-60, 60} {
		info, err := f.engine.TickInfoAt(ctx, pool.PoolId, tick)
		require.NoError(t, err)
		assert.True(t, info.LiquidityNet.IsZero(), "tick %d", tick)
		assert.Equal(t, uint128.From64(2000), info.LiquidityGross, "tick %d", tick)
	}
	loaded, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)
	assert.True(t, loaded.GlobalLiquidity.IsZero())
}

func TestDecreaseLiquidityRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)

	_, err := f.engine.DecreaseLiquidity(ctx, f.liquidityReq(pool, -60, 60, 10))
	assert.ErrorIs(t, err, ErrPositionNotFound)

	_, err = f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.NoError(t, err)

	lowerPage, _, err := DeriveTickArrayPDA(f.engine.ProgramID(), pool.PoolId, -1800)
	require.NoError(t, err)
	upperPage, _, err := DeriveTickArrayPDA(f.engine.ProgramID(), pool.PoolId, 0)
	require.NoError(t, err)
	posKey, _, err := DerivePositionPDA(f.engine.ProgramID(), f.owner, pool.PoolId, -60, 60)
	require.NoError(t, err)
	keys := []solana.PublicKey{pool.PoolId, lowerPage, upperPage, posKey}
	before := f.snapshot(t, keys...)

	_, err = f.engine.DecreaseLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1001))
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	assert.Equal(t, KindArithmetic, KindOf(err))

	_, err = f.engine.DecreaseLiquidity(ctx, f.liquidityReq(pool, 60, 120, 10))
	assert.ErrorIs(t, err, ErrBurnRangeMustCoverCurrentPrice)

	stranger := f.liquidityReq(pool, -60, 60, 10)
	stranger.Signer = solana.NewWallet().PublicKey()
	_, err = f.engine.DecreaseLiquidity(ctx, stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.engine.ClosePosition(ctx, ClosePositionRequest{Pool: pool.PoolId, Owner: f.owner, Signer: stranger.Signer, TickLower: -60, TickUpper: 60})
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, before, f.snapshot(t, keys...))
}

func TestNegativeTickPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	price, err := SqrtPriceFromTick(-1800)
	require.NoError(t, err)
	pool := f.initPool(t, price)
	assert.Equal(t, int32(-1800), pool.CurrentTick)

	_, err = f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -1860, -1740, 600))
	require.NoError(t, err)

	lower, err := f.engine.LoadTickArray(ctx, pool.PoolId, -1860)
	require.NoError(t, err)
	assert.Equal(t, int32(-3600), lower.StartingTick)
	info, err := lower.TickInfo(-1860, 60)
	require.NoError(t, err)
	assert.Equal(t, math128.FromInt64(600), info.LiquidityNet)

	upper, err := f.engine.LoadTickArray(ctx, pool.PoolId, -1740)
	require.NoError(t, err)
	assert.Equal(t, int32(-1800), upper.StartingTick)
	info, err = upper.TickInfo(-1740, 60)
	require.NoError(t, err)
	assert.Equal(t, math128.FromInt64(-600), info.LiquidityNet)

	// nothing leaked into the neighbouring slots of either page
	for i, slot := range upper.Ticks {
		if i == 1 {
			continue
		}
		assert.False(t, slot.Initialized, "slot %d", i)
	}
}

func TestSharedPageAndConservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{TicksPerArray: TICKS_PER_ARRAY_WIDE, GrossMode: GrossActive})
	pool := f.initPool(t, BASE_SQRT_PRICE)
	other := solana.NewWallet().PublicKey()
	f.fund(t, other)

	// both ranges sit on page 0 with 100 slots
	_, err := f.engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, 0, 120, 300))
	require.NoError(t, err)
	req := f.liquidityReq(pool, 0, 600, 500)
	req.Owner, req.Signer = other, other
	_, err = f.engine.OpenOrAddLiquidity(ctx, req)
	require.NoError(t, err)

	page, err := f.engine.LoadTickArray(ctx, pool.PoolId, 0)
	require.NoError(t, err)
	require.Len(t, page.Ticks, TICKS_PER_ARRAY_WIDE)

	sum := math128.FromInt64(0)
	for _, slot := range page.Ticks {
		sum, err = sum.Add(slot.LiquidityNet)
		require.NoError(t, err)
	}
	assert.True(t, sum.IsZero())

	zero, err := page.TickInfo(0, 60)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(800), zero.LiquidityGross)

	loaded, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(800), loaded.GlobalLiquidity)

	_, err = f.engine.ClosePosition(ctx, ClosePositionRequest{Pool: pool.PoolId, Owner: other, Signer: other, TickLower: 0, TickUpper: 600})
	require.NoError(t, err)

	zeroInfo, err := f.engine.TickInfoAt(ctx, pool.PoolId, 0)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(300), zeroInfo.LiquidityGross)
	top, err := f.engine.TickInfoAt(ctx, pool.PoolId, 600)
	require.NoError(t, err)
	assert.False(t, top.Initialized)
	assert.True(t, top.LiquidityGross.IsZero())
}

type failingLedger struct{}

func (failingLedger) Transfer(context.Context, pkg.Transfer) error {
	return errors.New("ledger offline")
}

func TestLedgerFailureLeavesNoState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultConfig())
	pool := f.initPool(t, BASE_SQRT_PRICE)

	engine, err := NewEngine(DefaultConfig(), f.store, failingLedger{}, nil, nil)
	require.NoError(t, err)
	_, err = engine.OpenOrAddLiquidity(ctx, f.liquidityReq(pool, -60, 60, 1000))
	require.Error(t, err)
	assert.Equal(t, KindInfrastructure, KindOf(err))

	assert.Equal(t, 1, f.store.Len())
	loaded, err := f.engine.LoadPool(ctx, pool.PoolId)
	require.NoError(t, err)
	assert.True(t, loaded.GlobalLiquidity.IsZero())
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(DefaultConfig(), nil, ledger.NewMemory(nil), nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.GrossMode = "sometimes"
	_, err = NewEngine(cfg, store.NewMemory(), ledger.NewMemory(nil), nil, nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.TicksPerArray = 0
	_, err = NewEngine(cfg, store.NewMemory(), ledger.NewMemory(nil), nil, nil)
	assert.Error(t, err)
}
