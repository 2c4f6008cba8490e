package sol

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// createTokenAccountInstruction creates owner's associated token account for
// mint, paid by payer. owner may be a program address such as a pool key.
func createTokenAccountInstruction(payer, owner, mint solana.PublicKey) (solana.PublicKey, solana.Instruction, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("find token account: %w", err)
	}
	inst, err := associatedtokenaccount.NewCreateInstruction(payer, owner, mint).ValidateAndBuild()
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("build create token account: %w", err)
	}
	return ata, inst, nil
}

// EnsureTokenAccount returns owner's associated token account for mint,
// creating it when it does not exist yet.
func (c *Client) EnsureTokenAccount(ctx context.Context, payer solana.PrivateKey, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, inst, err := createTokenAccountInstruction(payer.PublicKey(), owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	_, err = c.RpcClient.GetAccountInfo(ctx, ata)
	if err == nil {
		return ata, nil
	}
	if !errors.Is(err, rpc.ErrNotFound) {
		return solana.PublicKey{}, fmt.Errorf("get token account %s: %w", ata, err)
	}

	if _, err := c.Send(ctx, []solana.PrivateKey{payer}, []solana.Instruction{inst}, false); err != nil {
		return solana.PublicKey{}, fmt.Errorf("create token account %s: %w", ata, err)
	}
	c.logger.Info("token account created",
		zap.String("owner", owner.String()),
		zap.String("mint", mint.String()),
		zap.String("account", ata.String()))
	return ata, nil
}
