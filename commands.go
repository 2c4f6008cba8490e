package main

import (
	"fmt"
	"strconv"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg/clmm"
	"github.com/gtdvccc/solclmm/pkg/ledger"
	"github.com/gtdvccc/solclmm/pkg/protocol"
	"github.com/gtdvccc/solclmm/pkg/store"
	"github.com/spf13/cobra"
	"lukechampine.com/uint128"
)

func withRuntime(run func(cmd *cobra.Command, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		return run(cmd, rt)
	}
}

func keyFlag(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", name, err)
	}
	return key, nil
}

func u64Flag(cmd *cobra.Command, name string) (uint64, error) {
	raw, _ := cmd.Flags().GetString(name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

func u128Flag(cmd *cobra.Command, name string) (uint128.Uint128, error) {
	raw, _ := cmd.Flags().GetString(name)
	v, err := uint128.FromString(raw)
	if err != nil {
		return uint128.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

// actors returns the position owner and the key signing for it. The owner
// defaults to the signer.
func (rt *runtime) actors(cmd *cobra.Command) (owner, signer solana.PublicKey, err error) {
	if len(rt.signer) == 0 {
		return owner, signer, fmt.Errorf("SOLANA_PRIVATE_KEY is required")
	}
	signer = rt.signer.PublicKey()
	owner = signer
	if raw, _ := cmd.Flags().GetString("owner"); raw != "" {
		if owner, err = solana.PublicKeyFromBase58(raw); err != nil {
			return owner, signer, fmt.Errorf("--owner: %w", err)
		}
	}
	return owner, signer, nil
}

func newInitPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-pool",
		Short: "Create a pool for a mint pair and tick spacing",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			mint0, err := keyFlag(cmd, "mint0")
			if err != nil {
				return err
			}
			mint1, err := keyFlag(cmd, "mint1")
			if err != nil {
				return err
			}
			spacing, _ := cmd.Flags().GetInt32("tick-spacing")

			var price uint128.Uint128
			if cmd.Flags().Changed("sqrt-price") {
				if price, err = u128Flag(cmd, "sqrt-price"); err != nil {
					return err
				}
			} else {
				tick, _ := cmd.Flags().GetInt32("tick")
				if price, err = rt.engine.Curve().SqrtPriceAtTick(tick); err != nil {
					return err
				}
			}

			pool, err := rt.engine.InitPool(cmd.Context(), clmm.InitPoolRequest{
				TokenMint0:       mint0,
				TokenMint1:       mint1,
				TickSpacing:      spacing,
				InitialSqrtPrice: price,
			})
			if err != nil {
				return err
			}
			if rt.client != nil {
				for _, mint := range []solana.PublicKey{mint0, mint1} {
					if _, err := rt.client.EnsureTokenAccount(cmd.Context(), rt.signer, pool.PoolId, mint); err != nil {
						return err
					}
				}
			}
			printPool(cmd, pool)
			return nil
		}),
	}
	cmd.Flags().String("mint0", "", "token mint 0")
	cmd.Flags().String("mint1", "", "token mint 1")
	cmd.Flags().Int32("tick-spacing", 60, "tick spacing")
	cmd.Flags().String("sqrt-price", "", "initial sqrt price (Q64.96)")
	cmd.Flags().Int32("tick", 0, "initial tick, used when --sqrt-price is not set")
	return cmd
}

func liquidityRequest(cmd *cobra.Command, rt *runtime) (clmm.LiquidityRequest, error) {
	pool, err := keyFlag(cmd, "pool")
	if err != nil {
		return clmm.LiquidityRequest{}, err
	}
	owner, signer, err := rt.actors(cmd)
	if err != nil {
		return clmm.LiquidityRequest{}, err
	}
	liquidity, err := u128Flag(cmd, "liquidity")
	if err != nil {
		return clmm.LiquidityRequest{}, err
	}
	lower, _ := cmd.Flags().GetInt32("lower")
	upper, _ := cmd.Flags().GetInt32("upper")
	rt.delegateVaults(pool)
	return clmm.LiquidityRequest{
		Pool:      pool,
		Owner:     owner,
		Signer:    signer,
		TickLower: lower,
		TickUpper: upper,
		Liquidity: liquidity,
	}, nil
}

func positionFlags(cmd *cobra.Command, withLiquidity bool) {
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("owner", "", "position owner (defaults to the signer)")
	cmd.Flags().Int32("lower", 0, "lower tick")
	cmd.Flags().Int32("upper", 0, "upper tick")
	if withLiquidity {
		cmd.Flags().String("liquidity", "0", "liquidity amount")
	}
}

func newAddLiquidityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-liquidity",
		Short: "Open a position or add liquidity to it",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			req, err := liquidityRequest(cmd, rt)
			if err != nil {
				return err
			}
			amounts, err := rt.engine.OpenOrAddLiquidity(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("deposited amount0=%d amount1=%d\n", amounts.Amount0, amounts.Amount1)
			return nil
		}),
	}
	positionFlags(cmd, true)
	return cmd
}

func newDecreaseLiquidityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrease-liquidity",
		Short: "Remove part of a position's liquidity",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			req, err := liquidityRequest(cmd, rt)
			if err != nil {
				return err
			}
			amounts, err := rt.engine.DecreaseLiquidity(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("withdrew amount0=%d amount1=%d\n", amounts.Amount0, amounts.Amount1)
			return nil
		}),
	}
	positionFlags(cmd, true)
	return cmd
}

func newClosePositionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close-position",
		Short: "Withdraw all liquidity of a position and delete it",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			pool, err := keyFlag(cmd, "pool")
			if err != nil {
				return err
			}
			owner, signer, err := rt.actors(cmd)
			if err != nil {
				return err
			}
			lower, _ := cmd.Flags().GetInt32("lower")
			upper, _ := cmd.Flags().GetInt32("upper")
			rt.delegateVaults(pool)
			amounts, err := rt.engine.ClosePosition(cmd.Context(), clmm.ClosePositionRequest{
				Pool:      pool,
				Owner:     owner,
				Signer:    signer,
				TickLower: lower,
				TickUpper: upper,
			})
			if err != nil {
				return err
			}
			cmd.Printf("closed, withdrew amount0=%d amount1=%d\n", amounts.Amount0, amounts.Amount1)
			return nil
		}),
	}
	positionFlags(cmd, false)
	return cmd
}

// bestPool returns the pool to trade on: --pool when given, otherwise the
// best quote across fee tiers.
func bestPool(cmd *cobra.Command, rt *runtime, inputMint, outputMint string, amountIn math.Int) (*protocol.LinearClmmPool, math.Int, error) {
	ctx := cmd.Context()
	if raw, _ := cmd.Flags().GetString("pool"); raw != "" {
		p, err := rt.pools.FetchPoolByID(ctx, raw)
		if err != nil {
			return nil, math.ZeroInt(), err
		}
		out, err := p.Quote(ctx, inputMint, amountIn)
		if err != nil {
			return nil, math.ZeroInt(), err
		}
		return p.(*protocol.LinearClmmPool), out, nil
	}
	if _, err := rt.router.QueryAllPools(ctx, inputMint, outputMint); err != nil {
		return nil, math.ZeroInt(), err
	}
	best, out, err := rt.router.GetBestPool(ctx, inputMint, outputMint, amountIn)
	if err != nil {
		return nil, math.ZeroInt(), err
	}
	return best.(*protocol.LinearClmmPool), out, nil
}

func tradeFlags(cmd *cobra.Command) {
	cmd.Flags().String("input-mint", "", "mint sold")
	cmd.Flags().String("output-mint", "", "mint bought")
	cmd.Flags().String("amount", "0", "amount of the input mint")
	cmd.Flags().String("pool", "", "pool address (defaults to the best quote)")
}

func tradeArgs(cmd *cobra.Command) (inputMint, outputMint string, amountIn math.Int, err error) {
	in, err := keyFlag(cmd, "input-mint")
	if err != nil {
		return "", "", math.ZeroInt(), err
	}
	out, err := keyFlag(cmd, "output-mint")
	if err != nil {
		return "", "", math.ZeroInt(), err
	}
	amount, err := u64Flag(cmd, "amount")
	if err != nil {
		return "", "", math.ZeroInt(), err
	}
	return in.String(), out.String(), math.NewIntFromUint64(amount), nil
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap across the configured fee tiers",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			inputMint, outputMint, amountIn, err := tradeArgs(cmd)
			if err != nil {
				return err
			}
			pool, out, err := bestPool(cmd, rt, inputMint, outputMint, amountIn)
			if err != nil {
				return err
			}
			cmd.Printf("pool=%s tick_spacing=%d amount_out=%s\n", pool.GetID(), pool.TickSpacing, out)
			return nil
		}),
	}
	tradeFlags(cmd)
	return cmd
}

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap on the pool with the best quote",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			if len(rt.signer) == 0 {
				return fmt.Errorf("SOLANA_PRIVATE_KEY is required")
			}
			trader := rt.signer.PublicKey()
			inputMint, outputMint, amountIn, err := tradeArgs(cmd)
			if err != nil {
				return err
			}
			slippageBps, _ := cmd.Flags().GetInt64("slippage-bps")
			if slippageBps < 0 || slippageBps > 10000 {
				return fmt.Errorf("--slippage-bps must be within [0, 10000]")
			}

			pool, out, err := bestPool(cmd, rt, inputMint, outputMint, amountIn)
			if err != nil {
				return err
			}
			minAmountOut := out.Mul(math.NewInt(10000 - slippageBps)).Quo(math.NewInt(10000))
			req, err := pool.SwapRequest(trader, trader, inputMint, amountIn, minAmountOut)
			if err != nil {
				return err
			}
			rt.delegateVaults(pool.PoolId)
			res, err := rt.engine.Swap(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("pool=%s amount_in=%d amount_out=%d fee=%d tick=%d\n",
				pool.GetID(), res.AmountIn, res.AmountOut, res.FeeAmount, res.TickNext)
			return nil
		}),
	}
	tradeFlags(cmd)
	cmd.Flags().Int64("slippage-bps", 100, "accepted slippage in basis points")
	return cmd
}

func printPool(cmd *cobra.Command, pool *clmm.Pool) {
	cmd.Printf("pool=%s\n", pool.PoolId)
	cmd.Printf("  mint0=%s vault0=%s\n", pool.TokenMint0, pool.TokenVault0)
	cmd.Printf("  mint1=%s vault1=%s\n", pool.TokenMint1, pool.TokenVault1)
	cmd.Printf("  tick_spacing=%d tick=%d\n", pool.TickSpacing, pool.CurrentTick)
	cmd.Printf("  sqrt_price=%s price=%s\n", pool.SqrtPrice, pool.Price().StringFixed(9))
	cmd.Printf("  liquidity=%s\n", pool.GlobalLiquidity)
}

func newShowPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-pool",
		Short: "Print a pool and optionally one of its ticks",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			key, err := keyFlag(cmd, "pool")
			if err != nil {
				return err
			}
			pool, err := rt.engine.LoadPool(cmd.Context(), key)
			if err != nil {
				return err
			}
			printPool(cmd, pool)
			if !cmd.Flags().Changed("tick") {
				return nil
			}
			tick, _ := cmd.Flags().GetInt32("tick")
			info, err := rt.engine.TickInfoAt(cmd.Context(), key, tick)
			if err != nil {
				return err
			}
			cmd.Printf("  tick %d: initialized=%t gross=%s net=%s\n",
				tick, info.Initialized, info.LiquidityGross, info.LiquidityNet)
			return nil
		}),
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Int32("tick", 0, "tick to print")
	return cmd
}

func newFundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Credit tokens to an owner's token account on a local ledger",
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime) error {
			owner, err := keyFlag(cmd, "owner")
			if err != nil {
				return err
			}
			mint, err := keyFlag(cmd, "mint")
			if err != nil {
				return err
			}
			amount, err := u64Flag(cmd, "amount")
			if err != nil {
				return err
			}
			ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
			if err != nil {
				return err
			}
			switch l := rt.ledger.(type) {
			case *ledger.Memory:
				err = l.MintTo(ata, mint, amount)
			case *store.Journal:
				err = l.MintTo(cmd.Context(), ata, mint, amount)
			default:
				return fmt.Errorf("the %s ledger cannot be funded locally", rt.cfg.Ledger)
			}
			if err != nil {
				return err
			}
			cmd.Printf("funded %s with %d of %s\n", ata, amount, mint)
			return nil
		}),
	}
	cmd.Flags().String("owner", "", "token owner")
	cmd.Flags().String("mint", "", "token mint")
	cmd.Flags().String("amount", "0", "amount")
	return cmd
}
