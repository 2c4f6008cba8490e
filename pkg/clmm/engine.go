package clmm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"go.uber.org/zap"
	"lukechampine.com/uint128"
)

// Config holds the engine parameters that are fixed for the lifetime of a deployment.
type Config struct {
	ProgramID     solana.PublicKey
	TicksPerArray int
	Curve         Curve
	GrossMode     GrossMode
}

func DefaultConfig() Config {
	return Config{
		ProgramID:     DEFAULT_PROGRAM_ID,
		TicksPerArray: TICKS_PER_ARRAY,
		Curve:         DefaultCurve(),
		GrossMode:     GrossCumulative,
	}
}

// Engine applies pool, position and swap operations against an account store,
// settling token movements through a ledger.
type Engine struct {
	programID     solana.PublicKey
	ticksPerArray int
	curve         Curve
	grossMode     GrossMode

	store  pkg.AccountStore
	ledger pkg.Ledger
	auth   pkg.Authorizer
	logger *zap.Logger

	mu sync.Mutex
}

type ownerIsSigner struct{}

func (ownerIsSigner) Verify(owner, signer solana.PublicKey) bool {
	return owner.Equals(signer)
}

// NewEngine wires an engine. A nil authorizer only accepts the owner as signer
// and a nil logger discards output.
func NewEngine(cfg Config, store pkg.AccountStore, ledger pkg.Ledger, auth pkg.Authorizer, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.TicksPerArray <= 0 {
		return nil, fmt.Errorf("ticks per array must be positive, got %d", cfg.TicksPerArray)
	}
	if cfg.Curve == nil {
		cfg.Curve = DefaultCurve()
	}
	switch cfg.GrossMode {
	case "":
		cfg.GrossMode = GrossCumulative
	case GrossCumulative, GrossActive:
	default:
		return nil, fmt.Errorf("unknown gross mode %q", cfg.GrossMode)
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DEFAULT_PROGRAM_ID
	}
	if auth == nil {
		auth = ownerIsSigner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		programID:     cfg.ProgramID,
		ticksPerArray: cfg.TicksPerArray,
		curve:         cfg.Curve,
		grossMode:     cfg.GrossMode,
		store:         store,
		ledger:        ledger,
		auth:          auth,
		logger:        logger,
	}, nil
}

func (e *Engine) ProgramID() solana.PublicKey { return e.programID }

func (e *Engine) Curve() Curve { return e.curve }

// InitPoolRequest creates the pool for (TokenMint0, TokenMint1, TickSpacing).
type InitPoolRequest struct {
	TokenMint0       solana.PublicKey
	TokenMint1       solana.PublicKey
	TickSpacing      int32
	InitialSqrtPrice uint128.Uint128
}

// InitPool creates a pool with zero liquidity at the given price.
func (e *Engine) InitPool(ctx context.Context, req InitPoolRequest) (*Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.initPool(ctx, req)
	if err != nil {
		e.logger.Debug("init pool rejected", zap.Error(err))
		return nil, fmt.Errorf("init pool: %w", err)
	}
	e.logger.Info("pool initialized",
		zap.String("pool", pool.PoolId.String()),
		zap.String("mint0", pool.TokenMint0.String()),
		zap.String("mint1", pool.TokenMint1.String()),
		zap.Int32("tick_spacing", pool.TickSpacing),
		zap.Int32("tick", pool.CurrentTick))
	return pool, nil
}

func (e *Engine) initPool(ctx context.Context, req InitPoolRequest) (*Pool, error) {
	if req.TickSpacing <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTickSpacing, req.TickSpacing)
	}
	if req.TokenMint0.Equals(req.TokenMint1) {
		return nil, ErrInvalidTokenPair
	}
	if req.InitialSqrtPrice.IsZero() {
		return nil, ErrInvalidPrice
	}
	tick, err := e.curve.TickAtSqrtPrice(req.InitialSqrtPrice)
	if err != nil {
		return nil, fmt.Errorf("initial tick: %w", err)
	}

	key, bump, err := DerivePoolPDA(e.programID, req.TokenMint0, req.TokenMint1, req.TickSpacing)
	if err != nil {
		return nil, fmt.Errorf("derive pool: %w", err)
	}
	s := e.newStage()
	if _, exists, err := s.get(ctx, key); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolAlreadyInitialized, key)
	}
	vault0, vault1, err := DeriveVaults(key, req.TokenMint0, req.TokenMint1)
	if err != nil {
		return nil, err
	}

	pool := &Pool{
		TokenMint0:      req.TokenMint0,
		TokenMint1:      req.TokenMint1,
		TokenVault0:     vault0,
		TokenVault1:     vault1,
		GlobalLiquidity: uint128.Zero,
		SqrtPrice:       req.InitialSqrtPrice,
		CurrentTick:     tick,
		TickSpacing:     req.TickSpacing,
		Bump:            bump,
		PoolId:          key,
	}
	s.put(key, pool)
	if err := s.commit(ctx); err != nil {
		return nil, err
	}
	return pool, nil
}

// LoadPool reads and validates a pool
func (e *Engine) LoadPool(ctx context.Context, key solana.PublicKey) (*Pool, error) {
	return e.newStage().pool(ctx, key)
}

// LoadPoolByMints reads the pool of a pair at one tick spacing
func (e *Engine) LoadPoolByMints(ctx context.Context, mint0, mint1 solana.PublicKey, tickSpacing int32) (*Pool, error) {
	key, _, err := DerivePoolPDA(e.programID, mint0, mint1, tickSpacing)
	if err != nil {
		return nil, fmt.Errorf("derive pool: %w", err)
	}
	return e.LoadPool(ctx, key)
}

// LoadPosition reads owner's position over [tickLower, tickUpper)
func (e *Engine) LoadPosition(ctx context.Context, pool, owner solana.PublicKey, tickLower, tickUpper int32) (*Position, error) {
	key, _, err := DerivePositionPDA(e.programID, owner, pool, tickLower, tickUpper)
	if err != nil {
		return nil, fmt.Errorf("derive position: %w", err)
	}
	pos, err := e.newStage().position(ctx, key)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, key)
	}
	return pos, nil
}

// LoadTickArray reads the stored page of pool that holds tick.
func (e *Engine) LoadTickArray(ctx context.Context, poolKey solana.PublicKey, tick int32) (*TickArray, error) {
	s := e.newStage()
	pool, err := s.pool(ctx, poolKey)
	if err != nil {
		return nil, err
	}
	start, err := StartingTickOf(tick, pool.TickSpacing, e.ticksPerArray)
	if err != nil {
		return nil, err
	}
	key, _, err := DeriveTickArrayPDA(e.programID, poolKey, start)
	if err != nil {
		return nil, fmt.Errorf("derive tick array: %w", err)
	}
	data, ok, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: page %d of %s", ErrTickArrayNotFound, start, poolKey)
	}
	ta := &TickArray{}
	if err := ta.Decode(data); err != nil {
		return nil, fmt.Errorf("decode tick array %s: %w", key, err)
	}
	return ta, nil
}

// TickInfoAt returns a copy of the state of one initialized-or-not tick.
func (e *Engine) TickInfoAt(ctx context.Context, poolKey solana.PublicKey, tick int32) (TickInfo, error) {
	pool, err := e.LoadPool(ctx, poolKey)
	if err != nil {
		return TickInfo{}, err
	}
	ta, err := e.LoadTickArray(ctx, poolKey, tick)
	if err != nil {
		return TickInfo{}, err
	}
	info, err := ta.TickInfo(tick, pool.TickSpacing)
	if err != nil {
		return TickInfo{}, err
	}
	return *info, nil
}

func tokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("token account of %s for %s: %w", owner, mint, err)
	}
	return ata, nil
}
