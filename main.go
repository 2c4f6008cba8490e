package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"github.com/gtdvccc/solclmm/pkg/clmm"
	"github.com/gtdvccc/solclmm/pkg/config"
	"github.com/gtdvccc/solclmm/pkg/ledger"
	"github.com/gtdvccc/solclmm/pkg/protocol"
	"github.com/gtdvccc/solclmm/pkg/router"
	"github.com/gtdvccc/solclmm/pkg/sol"
	"github.com/gtdvccc/solclmm/pkg/store"
	"github.com/gtdvccc/solclmm/pkg/store/postgres"
	"github.com/gtdvccc/solclmm/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

func main() {
	if err := utils.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clmm",
		Short:        "Linear concentrated liquidity pools",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("program-id", "", "program id that owns the derived accounts")
	flags.Int("ticks-per-array", clmm.TICKS_PER_ARRAY, "ticks per tick array page (30 or 100)")
	flags.String("gross-mode", string(clmm.GrossCumulative), "liquidity gross accounting (cumulative, active)")
	flags.String("fee-tiers", "", "tick spacings searched by quote and swap (comma-separated)")
	flags.String("store", "sqlite", "account store (memory, sqlite, mysql, postgres)")
	flags.String("store-dsn", "", "account store DSN")
	flags.String("ledger", "journal", "token ledger (memory, journal, solana)")
	flags.String("rpc", "", "Solana RPC URL")
	flags.String("ws", "", "Solana WebSocket URL")
	flags.Bool("simulate", true, "only simulate Solana transactions")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newInitPoolCmd(),
		newAddLiquidityCmd(),
		newDecreaseLiquidityCmd(),
		newClosePositionCmd(),
		newSwapCmd(),
		newQuoteCmd(),
		newShowPoolCmd(),
		newFundCmd(),
	)
	return root
}

// runtime is everything a command needs, built from the merged config.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	engine *clmm.Engine
	router *router.SimpleRouter
	pools  *protocol.LinearClmmProtocol
	ledger pkg.Ledger
	client *sol.Client
	keys   *sol.Keyring
	signer solana.PrivateKey

	// signs payouts out of pool vaults on the solana ledger
	vaultDelegate solana.PrivateKey

	closers []func()
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })

	if key := os.Getenv("SOLANA_PRIVATE_KEY"); key != "" {
		if rt.signer, err = solana.PrivateKeyFromBase58(key); err != nil {
			return nil, fmt.Errorf("SOLANA_PRIVATE_KEY: %w", err)
		}
	}
	if key := os.Getenv("SOLANA_VAULT_DELEGATE_KEY"); key != "" {
		if rt.vaultDelegate, err = solana.PrivateKeyFromBase58(key); err != nil {
			return nil, fmt.Errorf("SOLANA_VAULT_DELEGATE_KEY: %w", err)
		}
	}

	ctx := cmd.Context()
	accounts, db, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if rt.ledger, err = rt.openLedger(ctx, db); err != nil {
		rt.Close()
		return nil, err
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		rt.Close()
		return nil, err
	}
	if rt.engine, err = clmm.NewEngine(engineCfg, accounts, rt.ledger, sol.NewAuthorizer(), logger); err != nil {
		rt.Close()
		return nil, err
	}
	rt.pools = protocol.NewLinearClmm(rt.engine, cfg.FeeTiers, logger)
	rt.router = router.NewSimpleRouter(logger, rt.pools)
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) (pkg.AccountStore, *gorm.DB, error) {
	switch rt.cfg.Store {
	case "memory":
		return store.NewMemory(), nil, nil
	case "postgres":
		s, err := postgres.NewStore(ctx, rt.cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, s.Close)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return s, nil, nil
	default:
		if rt.cfg.Store == "sqlite" && !strings.HasPrefix(rt.cfg.StoreDSN, "file:") {
			if err := os.MkdirAll(filepath.Dir(rt.cfg.StoreDSN), 0o755); err != nil {
				return nil, nil, err
			}
		}
		db, err := store.OpenGorm(rt.cfg.Store, rt.cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewGorm(db, rt.logger)
		if err != nil {
			return nil, nil, err
		}
		return s, db, nil
	}
}

func (rt *runtime) openLedger(ctx context.Context, db *gorm.DB) (pkg.Ledger, error) {
	switch rt.cfg.Ledger {
	case "memory":
		return ledger.NewMemory(rt.logger), nil
	case "journal":
		return store.NewJournal(db, rt.logger)
	default:
		if len(rt.signer) == 0 {
			return nil, fmt.Errorf("SOLANA_PRIVATE_KEY is required for the solana ledger")
		}
		client, err := sol.NewClient(ctx, rt.cfg.RPCURL, rt.cfg.WSURL, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.client = client
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		rt.keys = sol.NewKeyring(rt.signer)
		return sol.NewTokenLedger(client, rt.keys, rt.signer, rt.cfg.Simulate, rt.logger)
	}
}

// delegateVaults lets the vault delegate sign payouts of pool.
func (rt *runtime) delegateVaults(pool solana.PublicKey) {
	if rt.keys == nil || len(rt.vaultDelegate) == 0 {
		return
	}
	rt.keys.Delegate(pool, rt.vaultDelegate)
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
