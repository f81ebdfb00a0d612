package ethereum

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// optimisticOracleABI covers the subset of the optimistic oracle surface the
// adapter drives, plus the dispute event the listener watches.
const optimisticOracleABI = `[
	{"type":"function","name":"requestPrice","inputs":[{"name":"identifier","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"ancillaryData","type":"bytes"},{"name":"currency","type":"address"},{"name":"reward","type":"uint256"}],"outputs":[{"name":"totalBond","type":"uint256"}]},
	{"type":"function","name":"setBond","inputs":[{"name":"identifier","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"ancillaryData","type":"bytes"},{"name":"bond","type":"uint256"}],"outputs":[{"name":"totalBond","type":"uint256"}]},
	{"type":"function","name":"setCustomLiveness","inputs":[{"name":"identifier","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"ancillaryData","type":"bytes"},{"name":"customLiveness","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"setEventBased","inputs":[{"name":"identifier","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"ancillaryData","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"setCallbacks","inputs":[{"name":"identifier","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"ancillaryData","type":"bytes"},{"name":"callbackOnPriceProposed","type":"bool"},{"name":"callbackOnPriceDisputed","type":"bool"},{"name":"callbackOnPriceSettled","type":"bool"}],"outputs":[]},
	{"type":"function","name":"hasPrice","inputs":[{"name":"requester","type":"address"},{"name":"identifier","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"ancillaryData","type":"bytes"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"getRequest","inputs":[{"name":"requester","type":"address"},{"name":"identifier","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"ancillaryData","type":"bytes"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"proposer","type":"address"},{"name":"disputer","type":"address"},{"name":"currency","type":"address"},{"name":"settled","type":"bool"},{"name":"requestSettings","type":"tuple","components":[{"name":"eventBased","type":"bool"},{"name":"refundOnDispute","type":"bool"},{"name":"callbackOnPriceProposed","type":"bool"},{"name":"callbackOnPriceDisputed","type":"bool"},{"name":"callbackOnPriceSettled","type":"bool"},{"name":"bond","type":"uint256"},{"name":"customLiveness","type":"uint256"}]},{"name":"proposedPrice","type":"int256"},{"name":"resolvedPrice","type":"int256"},{"name":"expirationTime","type":"uint256"},{"name":"reward","type":"uint256"},{"name":"finalFee","type":"uint256"}]}],"stateMutability":"view"},
	{"type":"function","name":"settleAndGetPrice","inputs":[{"name":"identifier","type":"bytes32"},{"name":"timestamp","type":"uint256"},{"name":"ancillaryData","type":"bytes"}],"outputs":[{"name":"","type":"int256"}]},
	{"type":"event","name":"DisputePrice","inputs":[{"name":"requester","type":"address","indexed":true},{"name":"proposer","type":"address","indexed":true},{"name":"disputer","type":"address","indexed":true},{"name":"identifier","type":"bytes32","indexed":false},{"name":"timestamp","type":"uint256","indexed":false},{"name":"ancillaryData","type":"bytes","indexed":false},{"name":"proposedPrice","type":"int256","indexed":false}]}
]`

var oracleABI = mustABI(optimisticOracleABI)

// oracleRequestSettings mirrors the on-chain request settings tuple.
type oracleRequestSettings struct {
	EventBased              bool
	RefundOnDispute         bool
	CallbackOnPriceProposed bool
	CallbackOnPriceDisputed bool
	CallbackOnPriceSettled  bool
	Bond                    *big.Int
	CustomLiveness          *big.Int
}

// oracleRequest mirrors the on-chain request tuple.
type oracleRequest struct {
	Proposer        common.Address
	Disputer        common.Address
	Currency        common.Address
	Settled         bool
	RequestSettings oracleRequestSettings
	ProposedPrice   *big.Int
	ResolvedPrice   *big.Int
	ExpirationTime  *big.Int
	Reward          *big.Int
	FinalFee        *big.Int
}

// OptimisticOracle implements domain.PriceOracle against the on-chain
// optimistic oracle contract.
type OptimisticOracle struct {
	client   *Client
	address  common.Address
	contract *bind.BoundContract
	logger   *slog.Logger
}

var _ domain.PriceOracle = (*OptimisticOracle)(nil)

// NewOptimisticOracle binds the oracle contract at addr.
func NewOptimisticOracle(client *Client, addr common.Address, logger *slog.Logger) *OptimisticOracle {
	return &OptimisticOracle{
		client:   client,
		address:  addr,
		contract: client.bound(addr, oracleABI),
		logger:   logger.With(slog.String("component", "oracle")),
	}
}

// Address returns the oracle contract address.
func (o *OptimisticOracle) Address() common.Address {
	return o.address
}

// RequestPrice files a new price request round.
func (o *OptimisticOracle) RequestPrice(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, rewardToken common.Address, reward *big.Int) error {
	return o.client.transact(ctx, o.contract, "requestPrice",
		identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData, rewardToken, reward)
}

// SetBond sets the proposal bond for a request round.
func (o *OptimisticOracle) SetBond(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, bond *big.Int) error {
	return o.client.transact(ctx, o.contract, "setBond",
		identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData, bond)
}

// SetCustomLiveness overrides the default liveness window for a request round.
func (o *OptimisticOracle) SetCustomLiveness(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, liveness uint64) error {
	return o.client.transact(ctx, o.contract, "setCustomLiveness",
		identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData, new(big.Int).SetUint64(liveness))
}

// SetEventBased marks the request as event-based.
func (o *OptimisticOracle) SetEventBased(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte) error {
	return o.client.transact(ctx, o.contract, "setEventBased",
		identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData)
}

// SetCallbacks registers which request lifecycle callbacks the oracle delivers.
func (o *OptimisticOracle) SetCallbacks(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, onProposed, onDisputed, onSettled bool) error {
	return o.client.transact(ctx, o.contract, "setCallbacks",
		identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData, onProposed, onDisputed, onSettled)
}

// HasPrice reports whether the oracle can currently serve a settled price for
// the request round.
func (o *OptimisticOracle) HasPrice(ctx context.Context, requester common.Address, identifier string, timestamp int64, ancillaryData []byte) (bool, error) {
	var out []any
	if err := o.client.call(ctx, o.contract, &out, "hasPrice",
		requester, identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// GetRequest returns the oracle's view of a request round.
func (o *OptimisticOracle) GetRequest(ctx context.Context, requester common.Address, identifier string, timestamp int64, ancillaryData []byte) (domain.OracleRequest, error) {
	var out []any
	if err := o.client.call(ctx, o.contract, &out, "getRequest",
		requester, identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData); err != nil {
		return domain.OracleRequest{}, err
	}

	req := *abi.ConvertType(out[0], new(oracleRequest)).(*oracleRequest)
	return domain.OracleRequest{
		Proposer:      req.Proposer,
		Disputer:      req.Disputer,
		ProposedPrice: req.ProposedPrice,
		ResolvedPrice: req.ResolvedPrice,
		Settled:       req.Settled,
		Disputed:      req.Disputer != (common.Address{}),
	}, nil
}

// SettleAndGetPrice settles the request round and returns the final price.
// The price is read via simulation first because the settling call itself is
// a state-mutating transaction.
func (o *OptimisticOracle) SettleAndGetPrice(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte) (*big.Int, error) {
	var out []any
	if err := o.client.call(ctx, o.contract, &out, "settleAndGetPrice",
		identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData); err != nil {
		return nil, err
	}
	price := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)

	if err := o.client.transact(ctx, o.contract, "settleAndGetPrice",
		identifierBytes32(identifier), big.NewInt(timestamp), ancillaryData); err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "oracle: request settled",
		slog.Int64("timestamp", timestamp),
		slog.String("price", price.String()),
	)
	return price, nil
}
