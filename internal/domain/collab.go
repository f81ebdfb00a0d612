package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Clock supplies the current time. Injected so the lifecycle state machine is
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// OracleRequest is the oracle's view of a single price request round.
type OracleRequest struct {
	Proposer      common.Address
	Disputer      common.Address
	ProposedPrice *big.Int
	ResolvedPrice *big.Int
	Settled       bool
	Disputed      bool
}

// PriceOracle is the optimistic-oracle collaborator. Requests are keyed by
// (identifier, timestamp, ancillary data); the requester is implicit in the
// connection identity.
type PriceOracle interface {
	RequestPrice(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, rewardToken common.Address, reward *big.Int) error
	SetBond(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, bond *big.Int) error
	SetCustomLiveness(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, liveness uint64) error
	SetEventBased(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte) error
	// SetCallbacks registers interest in request lifecycle callbacks. The
	// adapter only ever subscribes to the disputed callback.
	SetCallbacks(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte, onProposed, onDisputed, onSettled bool) error
	HasPrice(ctx context.Context, requester common.Address, identifier string, timestamp int64, ancillaryData []byte) (bool, error)
	GetRequest(ctx context.Context, requester common.Address, identifier string, timestamp int64, ancillaryData []byte) (OracleRequest, error)
	SettleAndGetPrice(ctx context.Context, identifier string, timestamp int64, ancillaryData []byte) (*big.Int, error)
}

// SettlementRegistry is the conditional-token settlement collaborator.
type SettlementRegistry interface {
	PrepareCondition(ctx context.Context, oracle common.Address, questionID QuestionID, outcomeSlotCount int) error
	ReportPayouts(ctx context.Context, questionID QuestionID, payouts []uint64) error
}

// FungibleToken provides ERC-20 style transfer and allowance operations,
// parameterized by token contract address.
type FungibleToken interface {
	TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
}

// AllowList answers whether a token is approved as reward collateral.
type AllowList interface {
	IsOnWhitelist(ctx context.Context, token common.Address) (bool, error)
}
