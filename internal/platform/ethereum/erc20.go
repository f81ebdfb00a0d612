package ethereum

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

const erc20ABI = `[
	{"type":"function","name":"transferFrom","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

var tokenABI = mustABI(erc20ABI)

// ERC20 implements domain.FungibleToken. Contracts are bound per call since
// every operation is parameterized by token address.
type ERC20 struct {
	client *Client
	logger *slog.Logger
}

var _ domain.FungibleToken = (*ERC20)(nil)

// NewERC20 creates the token gateway.
func NewERC20(client *Client, logger *slog.Logger) *ERC20 {
	return &ERC20{
		client: client,
		logger: logger.With(slog.String("component", "erc20")),
	}
}

// TransferFrom moves amount from one account to another using the caller's
// allowance.
func (t *ERC20) TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	return t.client.transact(ctx, t.client.bound(token, tokenABI), "transferFrom", from, to, amount)
}

// Approve grants spender an allowance over the caller's balance.
func (t *ERC20) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	return t.client.transact(ctx, t.client.bound(token, tokenABI), "approve", spender, amount)
}

// Allowance returns the amount spender may move on behalf of owner.
func (t *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var out []any
	if err := t.client.call(ctx, t.client.bound(token, tokenABI), &out, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// BalanceOf returns the token balance of account.
func (t *ERC20) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	var out []any
	if err := t.client.call(ctx, t.client.bound(token, tokenABI), &out, "balanceOf", account); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
