package sol

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

// Client holds the RPC and optional WebSocket connections of one cluster.
type Client struct {
	RpcClient *rpc.Client
	WsClient  *ws.Client
	logger    *zap.Logger
}

func NewClient(ctx context.Context, endpoint, wsEndpoint string, logger *zap.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("rpc endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		RpcClient: rpc.New(endpoint),
		logger:    logger,
	}
	if wsEndpoint != "" {
		wsClient, err := ws.Connect(ctx, wsEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to establish WebSocket connection: %w", err)
		}
		c.WsClient = wsClient
	}
	return c, nil
}

func (c *Client) Close() error {
	if c.WsClient != nil {
		c.WsClient.Close()
	}
	return nil
}

// TokenBalance returns the raw amount held by an SPL token account.
func (c *Client) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := c.RpcClient.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", account, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("balance of %s: empty response", account)
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", account, err)
	}
	return amount, nil
}
