package protocol

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"github.com/gtdvccc/solclmm/pkg/clmm"
	"go.uber.org/zap"
)

// LinearClmmProtocol discovers pools of the linear CLMM engine. A pair may
// have one pool per fee tier, where a tier is a tick spacing.
type LinearClmmProtocol struct {
	Engine   *clmm.Engine
	FeeTiers []int32
	logger   *zap.Logger
}

func NewLinearClmm(engine *clmm.Engine, feeTiers []int32, logger *zap.Logger) *LinearClmmProtocol {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinearClmmProtocol{
		Engine:   engine,
		FeeTiers: feeTiers,
		logger:   logger,
	}
}

// FetchPoolsByPair returns every initialized pool of the pair, in either
// mint order, across the configured fee tiers.
func (p *LinearClmmProtocol) FetchPoolsByPair(ctx context.Context, baseMint string, quoteMint string) ([]pkg.Pool, error) {
	baseKey, err := solana.PublicKeyFromBase58(baseMint)
	if err != nil {
		return nil, fmt.Errorf("invalid base mint address: %w", err)
	}
	quoteKey, err := solana.PublicKeyFromBase58(quoteMint)
	if err != nil {
		return nil, fmt.Errorf("invalid quote mint address: %w", err)
	}

	res := make([]pkg.Pool, 0)
	for _, pair := range [][2]solana.PublicKey{{baseKey, quoteKey}, {quoteKey, baseKey}} {
		for _, spacing := range p.FeeTiers {
			pool, err := p.Engine.LoadPoolByMints(ctx, pair[0], pair[1], spacing)
			if errors.Is(err, clmm.ErrPoolNotFound) {
				continue
			}
			if err != nil {
				p.logger.Warn("skipping pool",
					zap.String("mint0", pair[0].String()),
					zap.String("mint1", pair[1].String()),
					zap.Int32("tick_spacing", spacing),
					zap.Error(err))
				continue
			}
			res = append(res, &LinearClmmPool{Pool: pool, engine: p.Engine})
		}
	}
	return res, nil
}

func (p *LinearClmmProtocol) FetchPoolByID(ctx context.Context, poolId string) (pkg.Pool, error) {
	key, err := solana.PublicKeyFromBase58(poolId)
	if err != nil {
		return nil, fmt.Errorf("invalid pool id: %w", err)
	}
	pool, err := p.Engine.LoadPool(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load pool %s: %w", poolId, err)
	}
	return &LinearClmmPool{Pool: pool, engine: p.Engine}, nil
}

// LinearClmmPool is a pool snapshot that quotes through its engine.
type LinearClmmPool struct {
	*clmm.Pool
	engine *clmm.Engine
}

func (p *LinearClmmPool) ProtocolName() pkg.ProtocolName {
	return pkg.ProtocolNameLinearClmm
}

func (p *LinearClmmPool) GetProgramID() solana.PublicKey {
	return p.engine.ProgramID()
}

func (p *LinearClmmPool) GetID() string {
	return p.PoolId.String()
}

func (p *LinearClmmPool) GetTokens() (baseMint, quoteMint string) {
	return p.TokenMint0.String(), p.TokenMint1.String()
}

// Quote returns the output amount of swapping inputAmount of inputMint.
func (p *LinearClmmPool) Quote(ctx context.Context, inputMint string, inputAmount math.Int) (math.Int, error) {
	zeroForOne, err := p.direction(inputMint)
	if err != nil {
		return math.ZeroInt(), err
	}
	if inputAmount.IsNil() || !inputAmount.IsPositive() || !inputAmount.IsUint64() {
		return math.ZeroInt(), fmt.Errorf("input amount %v is not a positive u64", inputAmount)
	}
	res, err := p.engine.Quote(ctx, p.PoolId, inputAmount.Uint64(), zeroForOne)
	if err != nil {
		return math.ZeroInt(), err
	}
	return math.NewIntFromUint64(res.AmountOut), nil
}

// SwapRequest builds the engine request that executes a quoted route on
// behalf of trader, signed by signer.
func (p *LinearClmmPool) SwapRequest(trader, signer solana.PublicKey, inputMint string, amountIn, minAmountOut math.Int) (clmm.SwapRequest, error) {
	zeroForOne, err := p.direction(inputMint)
	if err != nil {
		return clmm.SwapRequest{}, err
	}
	if !amountIn.IsUint64() || !minAmountOut.IsUint64() {
		return clmm.SwapRequest{}, fmt.Errorf("swap amounts must fit u64")
	}
	return clmm.SwapRequest{
		Pool:             p.PoolId,
		Trader:           trader,
		Signer:           signer,
		AmountIn:         amountIn.Uint64(),
		ZeroForOne:       zeroForOne,
		AmountOutMinimum: minAmountOut.Uint64(),
	}, nil
}

func (p *LinearClmmPool) direction(inputMint string) (bool, error) {
	switch inputMint {
	case p.TokenMint0.String():
		return true, nil
	case p.TokenMint1.String():
		return false, nil
	default:
		return false, fmt.Errorf("mint %s is not traded by pool %s", inputMint, p.PoolId)
	}
}
