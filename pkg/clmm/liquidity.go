package clmm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"github.com/gtdvccc/solclmm/pkg/math128"
	"go.uber.org/zap"
	"lukechampine.com/uint128"
)

// LiquidityRequest adds or removes Liquidity on Owner's position over
// [TickLower, TickUpper). Signer must be authorized to act for Owner.
type LiquidityRequest struct {
	Pool      solana.PublicKey
	Owner     solana.PublicKey
	Signer    solana.PublicKey
	TickLower int32
	TickUpper int32
	Liquidity uint128.Uint128
}

type ClosePositionRequest struct {
	Pool      solana.PublicKey
	Owner     solana.PublicKey
	Signer    solana.PublicKey
	TickLower int32
	TickUpper int32
}

// Amounts are the token quantities moved by a liquidity operation
type Amounts struct {
	Amount0 uint64
	Amount1 uint64
}

// OpenOrAddLiquidity creates the position on first use, or tops it up, and
// collects the matching token amounts from the owner into the pool vaults.
func (e *Engine) OpenOrAddLiquidity(ctx context.Context, req LiquidityRequest) (Amounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	amounts, err := e.addLiquidity(ctx, req)
	if err != nil {
		e.logger.Debug("add liquidity rejected", liquidityFields(req, zap.Error(err))...)
		return Amounts{}, fmt.Errorf("add liquidity: %w", err)
	}
	e.logger.Info("liquidity added", liquidityFields(req,
		zap.Uint64("amount0", amounts.Amount0),
		zap.Uint64("amount1", amounts.Amount1))...)
	return amounts, nil
}

// DecreaseLiquidity removes part of a position and pays the owner out of the
// vaults. A position drained to zero stays stored until it is closed.
func (e *Engine) DecreaseLiquidity(ctx context.Context, req LiquidityRequest) (Amounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	amounts, err := e.decreaseLiquidity(ctx, req)
	if err != nil {
		e.logger.Debug("decrease liquidity rejected", liquidityFields(req, zap.Error(err))...)
		return Amounts{}, fmt.Errorf("decrease liquidity: %w", err)
	}
	e.logger.Info("liquidity decreased", liquidityFields(req,
		zap.Uint64("amount0", amounts.Amount0),
		zap.Uint64("amount1", amounts.Amount1))...)
	return amounts, nil
}

// ClosePosition removes all remaining liquidity, pays it out and reclaims the
// position account.
func (e *Engine) ClosePosition(ctx context.Context, req ClosePositionRequest) (Amounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fields := []zap.Field{
		zap.String("pool", req.Pool.String()),
		zap.String("owner", req.Owner.String()),
		zap.Int32("lower", req.TickLower),
		zap.Int32("upper", req.TickUpper),
	}
	amounts, err := e.closePosition(ctx, req)
	if err != nil {
		e.logger.Debug("close position rejected", append(fields, zap.Error(err))...)
		return Amounts{}, fmt.Errorf("close position: %w", err)
	}
	e.logger.Info("position closed", append(fields,
		zap.Uint64("amount0", amounts.Amount0),
		zap.Uint64("amount1", amounts.Amount1))...)
	return amounts, nil
}

func liquidityFields(req LiquidityRequest, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("pool", req.Pool.String()),
		zap.String("owner", req.Owner.String()),
		zap.Int32("lower", req.TickLower),
		zap.Int32("upper", req.TickUpper),
		zap.Stringer("liquidity", req.Liquidity),
	}, extra...)
}

func (e *Engine) addLiquidity(ctx context.Context, req LiquidityRequest) (Amounts, error) {
	if !e.auth.Verify(req.Owner, req.Signer) {
		return Amounts{}, ErrUnauthorized
	}
	if req.Liquidity.IsZero() {
		return Amounts{}, ErrInsufficientInputAmount
	}
	s := e.newStage()
	pool, err := s.pool(ctx, req.Pool)
	if err != nil {
		return Amounts{}, err
	}
	if err := checkTickRange(pool, req.TickLower, req.TickUpper); err != nil {
		return Amounts{}, err
	}
	if !coversCurrentTick(pool, req.TickLower, req.TickUpper) {
		return Amounts{}, fmt.Errorf("%w: tick %d not in [%d, %d)",
			ErrMintRangeMustCoverCurrentPrice, pool.CurrentTick, req.TickLower, req.TickUpper)
	}

	delta, err := math128.FromUint128(req.Liquidity)
	if err != nil {
		return Amounts{}, err
	}
	if err := e.applyTicks(ctx, s, pool, req.TickLower, req.TickUpper, delta); err != nil {
		return Amounts{}, err
	}
	amounts, err := e.amountsFor(pool, req.TickLower, req.TickUpper, req.Liquidity)
	if err != nil {
		return Amounts{}, err
	}

	posKey, bump, err := DerivePositionPDA(e.programID, req.Owner, pool.PoolId, req.TickLower, req.TickUpper)
	if err != nil {
		return Amounts{}, fmt.Errorf("derive position: %w", err)
	}
	pos, err := s.position(ctx, posKey)
	if err != nil {
		return Amounts{}, err
	}
	if pos == nil {
		pos = &Position{
			TickLower: req.TickLower,
			TickUpper: req.TickUpper,
			Owner:     req.Owner,
			Pool:      pool.PoolId,
			Bump:      bump,
		}
	} else if err := pos.Matches(req.Owner, req.TickLower, req.TickUpper); err != nil {
		return Amounts{}, err
	}

	if pos.Liquidity, err = math128.Add(pos.Liquidity, req.Liquidity); err != nil {
		return Amounts{}, fmt.Errorf("position liquidity: %w", err)
	}
	if pool.GlobalLiquidity, err = math128.Add(pool.GlobalLiquidity, req.Liquidity); err != nil {
		return Amounts{}, fmt.Errorf("global liquidity: %w", err)
	}
	s.put(posKey, pos)
	s.markDirty(pool.PoolId)

	if err := e.stageDeposits(s, pool, req.Owner, amounts); err != nil {
		return Amounts{}, err
	}
	if err := s.commit(ctx); err != nil {
		return Amounts{}, err
	}
	return amounts, nil
}

func (e *Engine) decreaseLiquidity(ctx context.Context, req LiquidityRequest) (Amounts, error) {
	if !e.auth.Verify(req.Owner, req.Signer) {
		return Amounts{}, ErrUnauthorized
	}
	if req.Liquidity.IsZero() {
		return Amounts{}, ErrInsufficientInputAmount
	}
	s := e.newStage()
	pool, err := s.pool(ctx, req.Pool)
	if err != nil {
		return Amounts{}, err
	}
	if err := checkTickRange(pool, req.TickLower, req.TickUpper); err != nil {
		return Amounts{}, err
	}
	if !coversCurrentTick(pool, req.TickLower, req.TickUpper) {
		return Amounts{}, fmt.Errorf("%w: tick %d not in [%d, %d)",
			ErrBurnRangeMustCoverCurrentPrice, pool.CurrentTick, req.TickLower, req.TickUpper)
	}
	posKey, pos, err := e.existingPosition(ctx, s, pool, req.Owner, req.TickLower, req.TickUpper)
	if err != nil {
		return Amounts{}, err
	}

	amounts, err := e.removeLiquidity(ctx, s, pool, pos, req.Liquidity)
	if err != nil {
		return Amounts{}, err
	}
	s.put(posKey, pos)
	if err := s.commit(ctx); err != nil {
		return Amounts{}, err
	}
	return amounts, nil
}

func (e *Engine) closePosition(ctx context.Context, req ClosePositionRequest) (Amounts, error) {
	if !e.auth.Verify(req.Owner, req.Signer) {
		return Amounts{}, ErrUnauthorized
	}
	s := e.newStage()
	pool, err := s.pool(ctx, req.Pool)
	if err != nil {
		return Amounts{}, err
	}
	posKey, pos, err := e.existingPosition(ctx, s, pool, req.Owner, req.TickLower, req.TickUpper)
	if err != nil {
		return Amounts{}, err
	}
	if pos.Liquidity.IsZero() {
		return Amounts{}, ErrNoLiquidityToRemove
	}

	amounts, err := e.removeLiquidity(ctx, s, pool, pos, pos.Liquidity)
	if err != nil {
		return Amounts{}, err
	}
	s.reclaim(posKey)
	if err := s.commit(ctx); err != nil {
		return Amounts{}, err
	}
	return amounts, nil
}

func (e *Engine) existingPosition(ctx context.Context, s *stage, pool *Pool, owner solana.PublicKey, tickLower, tickUpper int32) (solana.PublicKey, *Position, error) {
	posKey, _, err := DerivePositionPDA(e.programID, owner, pool.PoolId, tickLower, tickUpper)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("derive position: %w", err)
	}
	pos, err := s.position(ctx, posKey)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	if pos == nil {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: %s", ErrPositionNotFound, posKey)
	}
	if !pos.Pool.Equals(pool.PoolId) {
		return solana.PublicKey{}, nil, fmt.Errorf("%w: position %s belongs to pool %s", ErrInvalidPositionRange, posKey, pos.Pool)
	}
	if err := pos.Matches(owner, tickLower, tickUpper); err != nil {
		return solana.PublicKey{}, nil, err
	}
	return posKey, pos, nil
}

// removeLiquidity is the exact negation of an add: both tick slots, the
// position and the pool all drop by liquidity, and the owner is paid out.
func (e *Engine) removeLiquidity(ctx context.Context, s *stage, pool *Pool, pos *Position, liquidity uint128.Uint128) (Amounts, error) {
	delta, err := math128.NegFromUint128(liquidity)
	if err != nil {
		return Amounts{}, err
	}
	if pos.Liquidity, err = math128.Sub(pos.Liquidity, liquidity); err != nil {
		return Amounts{}, fmt.Errorf("position liquidity: %w", err)
	}
	if pool.GlobalLiquidity, err = math128.Sub(pool.GlobalLiquidity, liquidity); err != nil {
		return Amounts{}, fmt.Errorf("global liquidity: %w", err)
	}
	if err := e.applyTicks(ctx, s, pool, pos.TickLower, pos.TickUpper, delta); err != nil {
		return Amounts{}, err
	}
	amounts, err := e.amountsFor(pool, pos.TickLower, pos.TickUpper, liquidity)
	if err != nil {
		return Amounts{}, err
	}
	s.markDirty(pool.PoolId)
	if err := e.stagePayouts(s, pool, pos.Owner, amounts); err != nil {
		return Amounts{}, err
	}
	return amounts, nil
}

func (e *Engine) applyTicks(ctx context.Context, s *stage, pool *Pool, tickLower, tickUpper int32, delta math128.Int128) error {
	for _, side := range []struct {
		tick    int32
		isLower bool
	}{{tickLower, true}, {tickUpper, false}} {
		ta, err := s.tickArray(ctx, pool, side.tick)
		if err != nil {
			return err
		}
		info, err := ta.TickInfo(side.tick, pool.TickSpacing)
		if err != nil {
			return err
		}
		if err := info.UpdateLiquidity(delta, side.isLower, e.grossMode); err != nil {
			return fmt.Errorf("tick %d: %w", side.tick, err)
		}
	}
	return nil
}

func (e *Engine) amountsFor(pool *Pool, tickLower, tickUpper int32, liquidity uint128.Uint128) (Amounts, error) {
	sqrtLower, err := e.curve.SqrtPriceAtTick(tickLower)
	if err != nil {
		return Amounts{}, fmt.Errorf("lower price: %w", err)
	}
	sqrtUpper, err := e.curve.SqrtPriceAtTick(tickUpper)
	if err != nil {
		return Amounts{}, fmt.Errorf("upper price: %w", err)
	}
	amount0, amount1, err := e.curve.AmountsForLiquidity(pool.SqrtPrice, sqrtLower, sqrtUpper, liquidity)
	if err != nil {
		return Amounts{}, fmt.Errorf("token amounts: %w", err)
	}
	return Amounts{Amount0: amount0, Amount1: amount1}, nil
}

func (e *Engine) stageDeposits(s *stage, pool *Pool, owner solana.PublicKey, amounts Amounts) error {
	return e.stageLegs(s, pool, owner, amounts, true)
}

func (e *Engine) stagePayouts(s *stage, pool *Pool, owner solana.PublicKey, amounts Amounts) error {
	return e.stageLegs(s, pool, owner, amounts, false)
}

func (e *Engine) stageLegs(s *stage, pool *Pool, owner solana.PublicKey, amounts Amounts, deposit bool) error {
	legs := []struct {
		mint, vault solana.PublicKey
		amount      uint64
	}{
		{pool.TokenMint0, pool.TokenVault0, amounts.Amount0},
		{pool.TokenMint1, pool.TokenVault1, amounts.Amount1},
	}
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		user, err := tokenAccount(owner, leg.mint)
		if err != nil {
			return err
		}
		t := pkg.Transfer{Mint: leg.mint, Amount: leg.amount}
		if deposit {
			t.From, t.To, t.Authority = user, leg.vault, owner
		} else {
			t.From, t.To, t.Authority = leg.vault, user, pool.PoolId
		}
		s.transfer(t)
	}
	return nil
}

func checkTickRange(pool *Pool, tickLower, tickUpper int32) error {
	if tickLower >= tickUpper {
		return fmt.Errorf("%w: lower %d must be below upper %d", ErrInvalidTickRange, tickLower, tickUpper)
	}
	if tickLower%pool.TickSpacing != 0 || tickUpper%pool.TickSpacing != 0 {
		return fmt.Errorf("%w: [%d, %d) not aligned to spacing %d", ErrInvalidTickRange, tickLower, tickUpper, pool.TickSpacing)
	}
	return nil
}

func coversCurrentTick(pool *Pool, tickLower, tickUpper int32) bool {
	return tickLower <= pool.CurrentTick && pool.CurrentTick < tickUpper
}
