package pkg

import (
	"context"
	"errors"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// ProtocolName represents the string name of a pool protocol
type ProtocolName string

const (
	ProtocolNameLinearClmm ProtocolName = "linear_clmm"
)

// Pool is a quotable pool as seen by the router.
type Pool interface {
	ProtocolName() ProtocolName
	GetProgramID() solana.PublicKey
	GetID() string
	GetTokens() (baseMint, quoteMint string)
	Quote(ctx context.Context, inputMint string, inputAmount math.Int) (math.Int, error)
}

type Protocol interface {
	FetchPoolsByPair(ctx context.Context, baseMint, quoteMint string) ([]Pool, error)
	FetchPoolByID(ctx context.Context, poolID string) (Pool, error)
}

// Transfer moves Amount units of Mint between two token accounts. Authority
// is the key entitled to debit From: the owner for deposits, the pool key for
// payouts out of a vault.
type Transfer struct {
	Mint      solana.PublicKey
	From      solana.PublicKey
	To        solana.PublicKey
	Authority solana.PublicKey
	Amount    uint64
}

// Ledger executes token transfers.
type Ledger interface {
	Transfer(ctx context.Context, t Transfer) error
}

// BatchLedger settles several transfers as one unit: either every leg lands
// or none does.
type BatchLedger interface {
	Ledger
	TransferBatch(ctx context.Context, ts []Transfer) error
}

var ErrAccountNotFound = errors.New("account not found")

// AccountWrite is a pending change to one stored account. Reclaim deletes the
// account and releases its storage; otherwise Data replaces the contents.
type AccountWrite struct {
	Key     solana.PublicKey
	Data    []byte
	Reclaim bool
}

// AccountStore keeps serialized accounts keyed by their derived address.
type AccountStore interface {
	// Get returns ErrAccountNotFound (possibly wrapped) for unknown keys.
	Get(ctx context.Context, key solana.PublicKey) ([]byte, error)
	// Commit applies all writes atomically.
	Commit(ctx context.Context, writes []AccountWrite) error
}

// Authorizer decides whether signer may act on behalf of owner.
type Authorizer interface {
	Verify(owner, signer solana.PublicKey) bool
}
