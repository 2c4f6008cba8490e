package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
)

// Memory keeps accounts in a map. Commit swaps every write in under one lock.
type Memory struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey][]byte
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[solana.PublicKey][]byte)}
}

func (m *Memory) Get(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.accounts[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pkg.ErrAccountNotFound, key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Commit(ctx context.Context, writes []pkg.AccountWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		if w.Reclaim {
			delete(m.accounts, w.Key)
			continue
		}
		data := make([]byte, len(w.Data))
		copy(data, w.Data)
		m.accounts[w.Key] = data
	}
	return nil
}

// Len returns the number of stored accounts
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}
