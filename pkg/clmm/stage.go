package clmm

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"go.uber.org/zap"
)

type account interface {
	Encode() ([]byte, error)
}

// stage holds decoded copies of every account an operation touches. Mutations
// go to the copies only; commit settles the transfers and then writes all
// dirty accounts in one store call.
type stage struct {
	e         *Engine
	accounts  map[solana.PublicKey]account
	dirty     []solana.PublicKey
	reclaimed map[solana.PublicKey]bool
	transfers []pkg.Transfer
}

func (e *Engine) newStage() *stage {
	return &stage{
		e:         e,
		accounts:  make(map[solana.PublicKey]account),
		reclaimed: make(map[solana.PublicKey]bool),
	}
}

func (s *stage) get(ctx context.Context, key solana.PublicKey) ([]byte, bool, error) {
	data, err := s.e.store.Get(ctx, key)
	if errors.Is(err, pkg.ErrAccountNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load account %s: %w", key, err)
	}
	return data, true, nil
}

func (s *stage) pool(ctx context.Context, key solana.PublicKey) (*Pool, error) {
	if cached, ok := s.accounts[key]; ok {
		if pool, ok := cached.(*Pool); ok {
			return pool, nil
		}
		return nil, fmt.Errorf("account %s is not a pool", key)
	}
	data, ok, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, key)
	}
	pool := &Pool{}
	if err := pool.Decode(data); err != nil {
		return nil, fmt.Errorf("decode pool %s: %w", key, err)
	}
	if err := pool.Validate(s.e.curve); err != nil {
		return nil, fmt.Errorf("pool %s: %w", key, err)
	}
	pool.PoolId = key
	s.accounts[key] = pool
	return pool, nil
}

// tickArray returns the page of pool that holds tick, creating an empty page
// when none is stored yet.
func (s *stage) tickArray(ctx context.Context, pool *Pool, tick int32) (*TickArray, error) {
	start, err := StartingTickOf(tick, pool.TickSpacing, s.e.ticksPerArray)
	if err != nil {
		return nil, err
	}
	key, bump, err := DeriveTickArrayPDA(s.e.programID, pool.PoolId, start)
	if err != nil {
		return nil, fmt.Errorf("derive tick array: %w", err)
	}
	if cached, ok := s.accounts[key]; ok {
		if ta, ok := cached.(*TickArray); ok {
			return ta, nil
		}
		return nil, fmt.Errorf("account %s is not a tick array", key)
	}

	data, ok, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	ta := NewTickArray(pool.PoolId, start, s.e.ticksPerArray, bump)
	if ok {
		if err := ta.Decode(data); err != nil {
			return nil, fmt.Errorf("decode tick array %s: %w", key, err)
		}
		if !ta.Pool.Equals(pool.PoolId) || ta.StartingTick != start || len(ta.Ticks) != s.e.ticksPerArray {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTickArray, key)
		}
	} else {
		s.e.logger.Debug("creating tick array",
			zap.String("pool", pool.PoolId.String()),
			zap.Int32("start", start))
	}
	s.accounts[key] = ta
	s.markDirty(key)
	return ta, nil
}

// requireTickArray fails unless the page of pool holding tick is stored.
// The page is neither created nor marked dirty.
func (s *stage) requireTickArray(ctx context.Context, pool *Pool, tick int32) error {
	start, err := StartingTickOf(tick, pool.TickSpacing, s.e.ticksPerArray)
	if err != nil {
		return err
	}
	key, _, err := DeriveTickArrayPDA(s.e.programID, pool.PoolId, start)
	if err != nil {
		return fmt.Errorf("derive tick array: %w", err)
	}
	if _, ok := s.accounts[key]; ok {
		return nil
	}
	_, ok, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: page %d of %s", ErrTickArrayNotFound, start, pool.PoolId)
	}
	return nil
}

// position returns the stored position or nil when it does not exist yet
func (s *stage) position(ctx context.Context, key solana.PublicKey) (*Position, error) {
	if cached, ok := s.accounts[key]; ok {
		if pos, ok := cached.(*Position); ok {
			return pos, nil
		}
		return nil, fmt.Errorf("account %s is not a position", key)
	}
	data, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	pos := &Position{}
	if err := pos.Decode(data); err != nil {
		return nil, fmt.Errorf("decode position %s: %w", key, err)
	}
	s.accounts[key] = pos
	return pos, nil
}

func (s *stage) put(key solana.PublicKey, a account) {
	s.accounts[key] = a
	s.markDirty(key)
}

func (s *stage) markDirty(key solana.PublicKey) {
	for _, k := range s.dirty {
		if k.Equals(key) {
			return
		}
	}
	s.dirty = append(s.dirty, key)
}

func (s *stage) reclaim(key solana.PublicKey) {
	s.reclaimed[key] = true
	s.markDirty(key)
}

func (s *stage) transfer(t pkg.Transfer) {
	if t.Amount == 0 {
		return
	}
	s.transfers = append(s.transfers, t)
}

func (s *stage) writes() ([]pkg.AccountWrite, error) {
	writes := make([]pkg.AccountWrite, 0, len(s.dirty))
	for _, key := range s.dirty {
		if s.reclaimed[key] {
			writes = append(writes, pkg.AccountWrite{Key: key, Reclaim: true})
			continue
		}
		data, err := s.accounts[key].Encode()
		if err != nil {
			return nil, fmt.Errorf("encode account %s: %w", key, err)
		}
		writes = append(writes, pkg.AccountWrite{Key: key, Data: data})
	}
	return writes, nil
}

// commit settles the transfers and persists the staged accounts. Encoding
// happens first so a codec failure cannot follow a settled transfer.
func (s *stage) commit(ctx context.Context) error {
	writes, err := s.writes()
	if err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return fmt.Errorf("settle transfers: %w", err)
	}
	if err := s.e.store.Commit(ctx, writes); err != nil {
		s.e.logger.Error("transfers settled but state commit failed",
			zap.Int("transfers", len(s.transfers)),
			zap.Int("writes", len(writes)),
			zap.Error(err))
		return fmt.Errorf("commit accounts: %w", err)
	}
	return nil
}

func (s *stage) settle(ctx context.Context) error {
	if len(s.transfers) == 0 {
		return nil
	}
	if batch, ok := s.e.ledger.(pkg.BatchLedger); ok {
		return batch.TransferBatch(ctx, s.transfers)
	}
	for i, t := range s.transfers {
		if err := s.e.ledger.Transfer(ctx, t); err != nil {
			return fmt.Errorf("transfer %d of %d: %w", i+1, len(s.transfers), err)
		}
	}
	return nil
}
