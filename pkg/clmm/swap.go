package clmm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"go.uber.org/zap"
	"lukechampine.com/uint128"
)

// SwapRequest trades AmountIn of token0 for token1 when ZeroForOne is set,
// token1 for token0 otherwise. Signer must be authorized to act for Trader.
type SwapRequest struct {
	Pool             solana.PublicKey
	Trader           solana.PublicKey
	Signer           solana.PublicKey
	AmountIn         uint64
	ZeroForOne       bool
	AmountOutMinimum uint64
}

type SwapResult struct {
	AmountIn      uint64
	AmountOut     uint64
	FeeAmount     uint64
	SqrtPriceNext uint128.Uint128
	TickNext      int32
}

// Swap executes one swap segment against the pool and settles it with the trader.
func (e *Engine) Swap(ctx context.Context, req SwapRequest) (SwapResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fields := []zap.Field{
		zap.String("pool", req.Pool.String()),
		zap.String("trader", req.Trader.String()),
		zap.Uint64("amount_in", req.AmountIn),
		zap.Bool("zero_for_one", req.ZeroForOne),
	}
	res, err := e.swap(ctx, req)
	if err != nil {
		e.logger.Debug("swap rejected", append(fields, zap.Error(err))...)
		return SwapResult{}, fmt.Errorf("swap: %w", err)
	}
	e.logger.Info("swap executed", append(fields,
		zap.Uint64("amount_out", res.AmountOut),
		zap.Int32("tick", res.TickNext))...)
	return res, nil
}

// Quote computes the result of a swap without touching any state.
func (e *Engine) Quote(ctx context.Context, poolKey solana.PublicKey, amountIn uint64, zeroForOne bool) (SwapResult, error) {
	pool, err := e.LoadPool(ctx, poolKey)
	if err != nil {
		return SwapResult{}, err
	}
	return e.simulate(pool, amountIn, zeroForOne)
}

func (e *Engine) simulate(pool *Pool, amountIn uint64, zeroForOne bool) (SwapResult, error) {
	if pool.GlobalLiquidity.IsZero() {
		return SwapResult{}, ErrInsufficientPoolLiquidity
	}
	if amountIn == 0 {
		return SwapResult{}, ErrInsufficientInputAmount
	}
	step, err := e.curve.SwapSegment(pool.SqrtPrice, pool.GlobalLiquidity, amountIn, zeroForOne)
	if err != nil {
		return SwapResult{}, err
	}
	tick, err := e.curve.TickAtSqrtPrice(step.SqrtPriceNext)
	if err != nil {
		return SwapResult{}, fmt.Errorf("next tick: %w", err)
	}
	return SwapResult{
		AmountIn:      amountIn,
		AmountOut:     step.AmountOut,
		FeeAmount:     step.FeeAmount,
		SqrtPriceNext: step.SqrtPriceNext,
		TickNext:      tick,
	}, nil
}

func (e *Engine) swap(ctx context.Context, req SwapRequest) (SwapResult, error) {
	if !e.auth.Verify(req.Trader, req.Signer) {
		return SwapResult{}, ErrUnauthorized
	}
	s := e.newStage()
	pool, err := s.pool(ctx, req.Pool)
	if err != nil {
		return SwapResult{}, err
	}
	res, err := e.simulate(pool, req.AmountIn, req.ZeroForOne)
	if err != nil {
		return SwapResult{}, err
	}
	// the segment is priced against the page holding the current tick
	if err := s.requireTickArray(ctx, pool, pool.CurrentTick); err != nil {
		return SwapResult{}, err
	}
	if res.AmountOut < req.AmountOutMinimum {
		return SwapResult{}, fmt.Errorf("%w: out %d below minimum %d", ErrSlippageExceeded, res.AmountOut, req.AmountOutMinimum)
	}

	pool.SqrtPrice = res.SqrtPriceNext
	pool.CurrentTick = res.TickNext
	s.markDirty(pool.PoolId)

	mintIn, mintOut := pool.Mints(req.ZeroForOne)
	vaultIn, vaultOut := pool.Vault(req.ZeroForOne)
	traderIn, err := tokenAccount(req.Trader, mintIn)
	if err != nil {
		return SwapResult{}, err
	}
	traderOut, err := tokenAccount(req.Trader, mintOut)
	if err != nil {
		return SwapResult{}, err
	}
	s.transfer(pkg.Transfer{Mint: mintIn, From: traderIn, To: vaultIn, Authority: req.Trader, Amount: res.AmountIn})
	s.transfer(pkg.Transfer{Mint: mintOut, From: vaultOut, To: traderOut, Authority: pool.PoolId, Amount: res.AmountOut})

	if err := s.commit(ctx); err != nil {
		return SwapResult{}, err
	}
	return res, nil
}
