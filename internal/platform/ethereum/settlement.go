package ethereum

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

const conditionalTokensABI = `[
	{"type":"function","name":"prepareCondition","inputs":[{"name":"oracle","type":"address"},{"name":"questionId","type":"bytes32"},{"name":"outcomeSlotCount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"reportPayouts","inputs":[{"name":"questionId","type":"bytes32"},{"name":"payouts","type":"uint256[]"}],"outputs":[]}
]`

var settlementABI = mustABI(conditionalTokensABI)

// ConditionalTokens implements domain.SettlementRegistry against the
// conditional-token framework contract.
type ConditionalTokens struct {
	client   *Client
	contract *bind.BoundContract
	logger   *slog.Logger
}

var _ domain.SettlementRegistry = (*ConditionalTokens)(nil)

// NewConditionalTokens binds the settlement contract at addr.
func NewConditionalTokens(client *Client, addr common.Address, logger *slog.Logger) *ConditionalTokens {
	return &ConditionalTokens{
		client:   client,
		contract: client.bound(addr, settlementABI),
		logger:   logger.With(slog.String("component", "settlement")),
	}
}

// PrepareCondition registers the condition the question's outcome tokens
// split on. Preparing the same condition twice reverts on-chain, so this is
// only called on first initialization.
func (s *ConditionalTokens) PrepareCondition(ctx context.Context, oracle common.Address, questionID domain.QuestionID, outcomeSlotCount int) error {
	return s.client.transact(ctx, s.contract, "prepareCondition",
		oracle, questionID.Bytes32(), big.NewInt(int64(outcomeSlotCount)))
}

// ReportPayouts reports the final payout vector for a resolved question.
func (s *ConditionalTokens) ReportPayouts(ctx context.Context, questionID domain.QuestionID, payouts []uint64) error {
	vec := make([]*big.Int, len(payouts))
	for i, p := range payouts {
		vec[i] = new(big.Int).SetUint64(p)
	}
	if err := s.client.transact(ctx, s.contract, "reportPayouts", questionID.Bytes32(), vec); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "settlement: payouts reported",
		slog.String("question_id", questionID.Hex()),
		slog.Any("payouts", payouts),
	)
	return nil
}
