// Package ethereum binds the domain collaborator interfaces to on-chain
// contracts over JSON-RPC: the optimistic price oracle, the conditional-token
// settlement registry, ERC-20 reward tokens, and the collateral allowlist.
package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ClientConfig holds connection and signing parameters for the chain client.
type ClientConfig struct {
	// RPCURL is the JSON-RPC endpoint. Websocket URLs additionally enable
	// log subscriptions for the dispute listener.
	RPCURL string

	// ChainID of the target network.
	ChainID int64

	// PrivateKey is the hex-encoded secp256k1 key (with or without 0x
	// prefix) used to sign transactions.
	PrivateKey string

	// TxTimeout bounds how long to wait for a transaction to be mined.
	// Zero uses a 2-minute default.
	TxTimeout time.Duration
}

// Client wraps an ethclient connection with a keyed transactor.
type Client struct {
	eth       *ethclient.Client
	auth      *bind.TransactOpts
	address   common.Address
	chainID   *big.Int
	txTimeout time.Duration
	logger    *slog.Logger
}

// NewClient dials the RPC endpoint and builds a keyed transactor from the
// configured private key.
func NewClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum: dial %s: %w", cfg.RPCURL, err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("ethereum: chain id: %w", err)
		}
	}

	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("ethereum: invalid private key: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("ethereum: build transactor: %w", err)
	}

	txTimeout := cfg.TxTimeout
	if txTimeout <= 0 {
		txTimeout = 2 * time.Minute
	}

	return &Client{
		eth:       eth,
		auth:      auth,
		address:   ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:   chainID,
		txTimeout: txTimeout,
		logger:    logger.With(slog.String("component", "ethereum")),
	}, nil
}

// Address returns the transactor's account address.
func (c *Client) Address() common.Address {
	return c.address
}

// Raw returns the underlying ethclient for sub-components that need direct
// access to the RPC connection.
func (c *Client) Raw() *ethclient.Client {
	return c.eth
}

// Close shuts down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// bound constructs a BoundContract at addr with a pre-parsed ABI.
func (c *Client) bound(addr common.Address, parsed abi.ABI) *bind.BoundContract {
	return bind.NewBoundContract(addr, parsed, c.eth, c.eth, c.eth)
}

// transact sends a contract call and waits for it to be mined, failing on
// revert.
func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...any) error {
	opts := *c.auth
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		return fmt.Errorf("ethereum: %s: %w", method, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("ethereum: %s: wait mined %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("ethereum: %s: transaction %s reverted", method, tx.Hash().Hex())
	}

	c.logger.DebugContext(ctx, "ethereum: transaction mined",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}

// call performs a read-only contract call.
func (c *Client) call(ctx context.Context, contract *bind.BoundContract, out *[]any, method string, args ...any) error {
	if err := contract.Call(&bind.CallOpts{Context: ctx, From: c.address}, out, method, args...); err != nil {
		return fmt.Errorf("ethereum: call %s: %w", method, err)
	}
	return nil
}

// mustABI parses an ABI definition at package init time.
func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("ethereum: parse abi: %v", err))
	}
	return parsed
}

// identifierBytes32 right-pads an ASCII price identifier into a bytes32.
func identifierBytes32(identifier string) [32]byte {
	var b [32]byte
	copy(b[:], identifier)
	return b
}
