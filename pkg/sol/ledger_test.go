package sol

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gtdvccc/solclmm/pkg"
	"github.com/gtdvccc/solclmm/pkg/clmm"
	"github.com/gtdvccc/solclmm/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	signers []solana.PrivateKey
	insts   []solana.Instruction
	sim     bool
}

type fakeSender struct {
	calls []sent
	err   error
}

func (f *fakeSender) Send(_ context.Context, signers []solana.PrivateKey, insts []solana.Instruction, isSimulate bool) (solana.Signature, error) {
	if f.err != nil {
		return solana.Signature{}, f.err
	}
	f.calls = append(f.calls, sent{signers: signers, insts: insts, sim: isSimulate})
	return solana.Signature{1}, nil
}

func TestTokenLedgerBuildsOneTransaction(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	owner := solana.NewWallet().PrivateKey
	custodian := solana.NewWallet().PrivateKey
	pool := solana.NewWallet().PublicKey()

	keys := NewKeyring(owner)
	keys.Delegate(pool, custodian)
	sender := &fakeSender{}
	l, err := NewTokenLedger(sender, keys, payer, true, nil)
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	src := solana.NewWallet().PublicKey()
	vault := solana.NewWallet().PublicKey()
	require.NoError(t, l.TransferBatch(context.Background(), []pkg.Transfer{
		{Mint: mint, From: src, To: vault, Authority: owner.PublicKey(), Amount: 500},
		{Mint: mint, From: vault, To: src, Authority: pool, Amount: 20},
		{Mint: mint, From: src, To: vault, Authority: owner.PublicKey(), Amount: 1},
	}))

	require.Len(t, sender.calls, 1)
	call := sender.calls[0]
	assert.True(t, call.sim)
	require.Len(t, call.signers, 3)
	assert.Equal(t, payer.PublicKey(), call.signers[0].PublicKey())
	assert.Equal(t, owner.PublicKey(), call.signers[1].PublicKey())
	assert.Equal(t, custodian.PublicKey(), call.signers[2].PublicKey())

	require.Len(t, call.insts, 3)
	payout := call.insts[1]
	assert.Equal(t, solana.TokenProgramID, payout.ProgramID())
	accounts := payout.Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, vault, accounts[0].PublicKey)
	assert.Equal(t, src, accounts[1].PublicKey)
	assert.Equal(t, custodian.PublicKey(), accounts[2].PublicKey)
	assert.True(t, accounts[2].IsSigner)
}

func TestTokenLedgerMissingSigner(t *testing.T) {
	sender := &fakeSender{}
	l, err := NewTokenLedger(sender, nil, solana.NewWallet().PrivateKey, false, nil)
	require.NoError(t, err)

	err = l.Transfer(context.Background(), pkg.Transfer{
		Mint:      solana.NewWallet().PublicKey(),
		From:      solana.NewWallet().PublicKey(),
		To:        solana.NewWallet().PublicKey(),
		Authority: solana.NewWallet().PublicKey(),
		Amount:    1,
	})
	assert.ErrorIs(t, err, ErrMissingSigner)
	assert.Empty(t, sender.calls)
}

func TestTokenLedgerSendFailure(t *testing.T) {
	boom := errors.New("node unavailable")
	owner := solana.NewWallet().PrivateKey
	l, err := NewTokenLedger(&fakeSender{err: boom}, NewKeyring(owner), owner, false, nil)
	require.NoError(t, err)

	err = l.Transfer(context.Background(), pkg.Transfer{
		From: solana.NewWallet().PublicKey(), To: solana.NewWallet().PublicKey(),
		Authority: owner.PublicKey(), Amount: 3,
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, l.TransferBatch(context.Background(), nil))
}

func TestNewTokenLedgerValidation(t *testing.T) {
	_, err := NewTokenLedger(nil, nil, solana.NewWallet().PrivateKey, false, nil)
	assert.Error(t, err)
	_, err = NewTokenLedger(&fakeSender{}, nil, nil, false, nil)
	assert.Error(t, err)
}

func TestEngineSettlesThroughTokenLedger(t *testing.T) {
	ctx := context.Background()
	owner := solana.NewWallet().PrivateKey
	delegate := solana.NewWallet().PrivateKey
	sender := &fakeSender{}
	l, err := NewTokenLedger(sender, NewKeyring(delegate), owner, false, nil)
	require.NoError(t, err)

	auth := NewAuthorizer()
	auth.Approve(owner.PublicKey(), delegate.PublicKey())
	engine, err := clmm.NewEngine(clmm.DefaultConfig(), store.NewMemory(), l, auth, nil)
	require.NoError(t, err)

	mint0 := solana.NewWallet().PublicKey()
	mint1 := solana.NewWallet().PublicKey()
	price, err := clmm.SqrtPriceFromTick(0)
	require.NoError(t, err)
	pool, err := engine.InitPool(ctx, clmm.InitPoolRequest{
		TokenMint0: mint0, TokenMint1: mint1, TickSpacing: 10, InitialSqrtPrice: price,
	})
	require.NoError(t, err)

	// the owner's key is the payer, the delegate is only approved
	_, err = engine.OpenOrAddLiquidity(ctx, clmm.LiquidityRequest{
		Pool: pool.PoolId, Owner: owner.PublicKey(), Signer: delegate.PublicKey(),
		TickLower: -100, TickUpper: 100, Liquidity: uint128From(1000),
	})
	require.NoError(t, err)
	require.Len(t, sender.calls, 1)
	assert.Len(t, sender.calls[0].insts, 2)

	// payouts need a key for the pool address
	_, err = engine.ClosePosition(ctx, clmm.ClosePositionRequest{
		Pool: pool.PoolId, Owner: owner.PublicKey(), Signer: owner.PublicKey(),
		TickLower: -100, TickUpper: 100,
	})
	assert.ErrorIs(t, err, ErrMissingSigner)
	pos, err := engine.LoadPosition(ctx, pool.PoolId, owner.PublicKey(), -100, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), pos.Liquidity.Lo)
}
