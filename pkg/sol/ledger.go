package sol

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gtdvccc/solclmm/pkg"
	"go.uber.org/zap"
)

var ErrMissingSigner = errors.New("no key to sign for transfer authority")

// Sender submits instructions signed by signers. signers[0] pays the fee.
type Sender interface {
	Send(ctx context.Context, signers []solana.PrivateKey, insts []solana.Instruction, isSimulate bool) (solana.Signature, error)
}

// Keyring resolves the private key that signs for a transfer authority.
// A delegate entry lets a key approved on a vault sign for a pool address,
// which has no private key of its own.
type Keyring struct {
	keys      map[solana.PublicKey]solana.PrivateKey
	delegates map[solana.PublicKey]solana.PrivateKey
}

func NewKeyring(keys ...solana.PrivateKey) *Keyring {
	k := &Keyring{
		keys:      make(map[solana.PublicKey]solana.PrivateKey, len(keys)),
		delegates: make(map[solana.PublicKey]solana.PrivateKey),
	}
	for _, key := range keys {
		k.Add(key)
	}
	return k
}

func (k *Keyring) Add(key solana.PrivateKey) {
	k.keys[key.PublicKey()] = key
}

// Delegate makes signer sign transfers whose authority is authority.
func (k *Keyring) Delegate(authority solana.PublicKey, signer solana.PrivateKey) {
	k.delegates[authority] = signer
}

// Signer returns the key that signs for authority.
func (k *Keyring) Signer(authority solana.PublicKey) (solana.PrivateKey, bool) {
	if key, ok := k.keys[authority]; ok {
		return key, true
	}
	key, ok := k.delegates[authority]
	return key, ok
}

// TokenLedger settles transfers as SPL token instructions. A batch is sent as
// a single transaction, so it lands or fails as a whole.
type TokenLedger struct {
	sender   Sender
	keys     *Keyring
	payer    solana.PrivateKey
	simulate bool
	logger   *zap.Logger
}

func NewTokenLedger(sender Sender, keys *Keyring, payer solana.PrivateKey, simulate bool, logger *zap.Logger) (*TokenLedger, error) {
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if keys == nil {
		keys = NewKeyring()
	}
	if len(payer) == 0 {
		return nil, errors.New("fee payer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	keys.Add(payer)
	return &TokenLedger{sender: sender, keys: keys, payer: payer, simulate: simulate, logger: logger}, nil
}

func (l *TokenLedger) Transfer(ctx context.Context, t pkg.Transfer) error {
	return l.TransferBatch(ctx, []pkg.Transfer{t})
}

func (l *TokenLedger) TransferBatch(ctx context.Context, ts []pkg.Transfer) error {
	if len(ts) == 0 {
		return nil
	}
	insts, signers, err := l.build(ts)
	if err != nil {
		return err
	}
	sig, err := l.sender.Send(ctx, signers, insts, l.simulate)
	if err != nil {
		return fmt.Errorf("settle %d transfers: %w", len(ts), err)
	}
	l.logger.Info("transfers settled",
		zap.Int("count", len(ts)),
		zap.String("signature", sig.String()),
		zap.Bool("simulated", l.simulate))
	return nil
}

// build returns one transfer instruction per leg and the signers they need,
// fee payer first.
func (l *TokenLedger) build(ts []pkg.Transfer) ([]solana.Instruction, []solana.PrivateKey, error) {
	insts := make([]solana.Instruction, 0, len(ts))
	signers := []solana.PrivateKey{l.payer}
	seen := map[solana.PublicKey]bool{l.payer.PublicKey(): true}

	for i, t := range ts {
		signer, ok := l.keys.Signer(t.Authority)
		if !ok {
			return nil, nil, fmt.Errorf("transfer %d: %w: %s", i, ErrMissingSigner, t.Authority)
		}
		inst, err := token.NewTransferInstruction(
			t.Amount,
			t.From,
			t.To,
			signer.PublicKey(),
			[]solana.PublicKey{},
		).ValidateAndBuild()
		if err != nil {
			return nil, nil, fmt.Errorf("transfer %d: %w", i, err)
		}
		insts = append(insts, inst)
		if pub := signer.PublicKey(); !seen[pub] {
			seen[pub] = true
			signers = append(signers, signer)
		}
	}
	return insts, signers, nil
}
