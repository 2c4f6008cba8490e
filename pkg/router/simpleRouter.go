package router

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/gtdvccc/solclmm/pkg"
	"go.uber.org/zap"
)

var ErrNoRoute = errors.New("no route found")

// SimpleRouter picks the single pool with the best quote for a pair.
type SimpleRouter struct {
	protocols []pkg.Protocol
	pools     []pkg.Pool
	logger    *zap.Logger
}

func NewSimpleRouter(logger *zap.Logger, protocols ...pkg.Protocol) *SimpleRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimpleRouter{
		protocols: protocols,
		pools:     []pkg.Pool{},
		logger:    logger,
	}
}

// QueryAllPools replaces the candidate set with the pools of the pair.
func (r *SimpleRouter) QueryAllPools(ctx context.Context, baseMint, quoteMint string) ([]pkg.Pool, error) {
	r.pools = make([]pkg.Pool, 0)
	for _, proto := range r.protocols {
		pools, err := proto.FetchPoolsByPair(ctx, baseMint, quoteMint)
		if err != nil {
			r.logger.Warn("fetch pools failed", zap.Error(err))
			continue
		}
		r.pools = append(r.pools, pools...)
	}
	return r.pools, nil
}

// GetBestPool quotes amountIn of tokenIn on every candidate pool and returns
// the one with the largest output.
func (r *SimpleRouter) GetBestPool(ctx context.Context, tokenIn, tokenOut string, amountIn math.Int) (pkg.Pool, math.Int, error) {
	var best pkg.Pool
	maxOut := math.NewInt(0)
	for _, pool := range r.pools {
		base, quote := pool.GetTokens()
		if !(base == tokenIn && quote == tokenOut) && !(base == tokenOut && quote == tokenIn) {
			continue
		}
		outAmount, err := pool.Quote(ctx, tokenIn, amountIn)
		if err != nil {
			r.logger.Debug("quote failed", zap.String("pool", pool.GetID()), zap.Error(err))
			continue
		}
		if outAmount.GT(maxOut) {
			maxOut = outAmount
			best = pool
		}
	}
	if best == nil {
		return nil, math.ZeroInt(), fmt.Errorf("%w: %s -> %s", ErrNoRoute, tokenIn, tokenOut)
	}
	return best, maxOut, nil
}
