package ethereum

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

const addressWhitelistABI = `[
	{"type":"function","name":"isOnWhitelist","inputs":[{"name":"elementToCheck","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"}
]`

var allowlistABI = mustABI(addressWhitelistABI)

// AddressWhitelist implements domain.AllowList against the on-chain
// collateral whitelist contract.
type AddressWhitelist struct {
	client   *Client
	contract *bind.BoundContract
}

var _ domain.AllowList = (*AddressWhitelist)(nil)

// NewAddressWhitelist binds the whitelist contract at addr.
func NewAddressWhitelist(client *Client, addr common.Address) *AddressWhitelist {
	return &AddressWhitelist{
		client:   client,
		contract: client.bound(addr, allowlistABI),
	}
}

// IsOnWhitelist reports whether token is approved as reward collateral.
func (w *AddressWhitelist) IsOnWhitelist(ctx context.Context, token common.Address) (bool, error) {
	var out []any
	if err := w.client.call(ctx, w.contract, &out, "isOnWhitelist", token); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}
