package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"go.uber.org/zap"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMintMismatch      = errors.New("token account holds a different mint")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// Memory is an in-process token ledger. Token accounts are created on first
// credit and bound to the mint they first received.
type Memory struct {
	mu       sync.Mutex
	balances map[solana.PublicKey]uint64
	mints    map[solana.PublicKey]solana.PublicKey
	history  []pkg.Transfer
	logger   *zap.Logger
}

func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		balances: make(map[solana.PublicKey]uint64),
		mints:    make(map[solana.PublicKey]solana.PublicKey),
		logger:   logger,
	}
}

// MintTo credits amount of mint to account out of thin air.
func (m *Memory) MintTo(account, mint solana.PublicKey, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.bind(account, mint); err != nil {
		return err
	}
	next := m.balances[account] + amount
	if next < amount {
		return fmt.Errorf("%w: %s", ErrBalanceOverflow, account)
	}
	m.balances[account] = next
	return nil
}

func (m *Memory) Balance(account solana.PublicKey) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account]
}

// History returns the settled transfers in order
func (m *Memory) History() []pkg.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pkg.Transfer, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Memory) Transfer(ctx context.Context, t pkg.Transfer) error {
	return m.TransferBatch(ctx, []pkg.Transfer{t})
}

// TransferBatch applies every transfer or none of them.
func (m *Memory) TransferBatch(ctx context.Context, ts []pkg.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	balances := make(map[solana.PublicKey]uint64)
	mints := make(map[solana.PublicKey]solana.PublicKey)
	balanceOf := func(acc solana.PublicKey) uint64 {
		if b, ok := balances[acc]; ok {
			return b
		}
		return m.balances[acc]
	}
	mintOf := func(acc solana.PublicKey) (solana.PublicKey, bool) {
		if mint, ok := mints[acc]; ok {
			return mint, true
		}
		mint, ok := m.mints[acc]
		return mint, ok
	}

	for i, t := range ts {
		for _, acc := range []solana.PublicKey{t.From, t.To} {
			if mint, ok := mintOf(acc); ok && !mint.Equals(t.Mint) {
				return fmt.Errorf("transfer %d: %w: %s holds %s, not %s", i, ErrMintMismatch, acc, mint, t.Mint)
			}
			mints[acc] = t.Mint
		}
		from := balanceOf(t.From)
		if from < t.Amount {
			return fmt.Errorf("transfer %d: %w: %s has %d, needs %d", i, ErrInsufficientFunds, t.From, from, t.Amount)
		}
		balances[t.From] = from - t.Amount
		to := balanceOf(t.To)
		if to+t.Amount < to {
			return fmt.Errorf("transfer %d: %w: %s", i, ErrBalanceOverflow, t.To)
		}
		balances[t.To] = to + t.Amount
	}

	for acc, b := range balances {
		m.balances[acc] = b
	}
	for acc, mint := range mints {
		m.mints[acc] = mint
	}
	m.history = append(m.history, ts...)
	m.logger.Debug("transfers settled", zap.Int("count", len(ts)))
	return nil
}

func (m *Memory) bind(account, mint solana.PublicKey) error {
	if bound, ok := m.mints[account]; ok && !bound.Equals(mint) {
		return fmt.Errorf("%w: %s holds %s, not %s", ErrMintMismatch, account, bound, mint)
	}
	m.mints[account] = mint
	return nil
}
