package local

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// Settlement is an in-memory settlement registry recording prepared
// conditions and reported payout vectors.
type Settlement struct {
	logger *slog.Logger

	mu       sync.Mutex
	prepared map[domain.QuestionID]int
	payouts  map[domain.QuestionID][]uint64
}

var _ domain.SettlementRegistry = (*Settlement)(nil)

// NewSettlement creates the simulation settlement registry.
func NewSettlement(logger *slog.Logger) *Settlement {
	return &Settlement{
		logger:   logger.With(slog.String("component", "local_settlement")),
		prepared: make(map[domain.QuestionID]int),
		payouts:  make(map[domain.QuestionID][]uint64),
	}
}

// PrepareCondition registers a condition. Preparing the same condition twice
// fails, matching on-chain behavior.
func (s *Settlement) PrepareCondition(ctx context.Context, oracle common.Address, questionID domain.QuestionID, outcomeSlotCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prepared[questionID]; ok {
		return fmt.Errorf("local settlement: condition %s already prepared", questionID.Hex())
	}
	s.prepared[questionID] = outcomeSlotCount
	return nil
}

// ReportPayouts records the final payout vector for a question.
func (s *Settlement) ReportPayouts(ctx context.Context, questionID domain.QuestionID, payouts []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prepared[questionID]; !ok {
		return fmt.Errorf("local settlement: condition %s not prepared", questionID.Hex())
	}
	if _, ok := s.payouts[questionID]; ok {
		return fmt.Errorf("local settlement: payouts for %s already reported", questionID.Hex())
	}
	s.payouts[questionID] = append([]uint64(nil), payouts...)

	s.logger.Info("local settlement: payouts reported",
		slog.String("question_id", questionID.Hex()),
		slog.Any("payouts", payouts),
	)
	return nil
}

// ReportedPayouts returns the recorded payout vector, if any.
func (s *Settlement) ReportedPayouts(questionID domain.QuestionID) ([]uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[questionID]
	return p, ok
}

type balanceKey struct {
	token   common.Address
	account common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// TokenLedger is an in-memory ERC-20 ledger. Balances are minted freely so
// the simulation never blocks on funding.
type TokenLedger struct {
	self common.Address

	mu         sync.Mutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

var _ domain.FungibleToken = (*TokenLedger)(nil)

// NewTokenLedger creates a ledger whose Approve calls act on behalf of self.
func NewTokenLedger(self common.Address) *TokenLedger {
	return &TokenLedger{
		self:       self,
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// Mint credits an account. Simulation control surface.
func (t *TokenLedger) Mint(token, account common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance(token, account).Add(t.balance(token, account), amount)
}

// SetAllowance sets an owner-to-spender allowance directly. Simulation
// control surface.
func (t *TokenLedger) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

func (t *TokenLedger) balance(token, account common.Address) *big.Int {
	k := balanceKey{token, account}
	if t.balances[k] == nil {
		t.balances[k] = big.NewInt(0)
	}
	return t.balances[k]
}

func (t *TokenLedger) allowance(token, owner, spender common.Address) *big.Int {
	k := allowanceKey{token, owner, spender}
	if t.allowances[k] == nil {
		t.allowances[k] = big.NewInt(0)
	}
	return t.allowances[k]
}

// TransferFrom moves amount between accounts, consuming the from-to allowance.
func (t *TokenLedger) TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := t.allowance(token, from, to)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("local tokens: allowance %s below transfer %s", allowance, amount)
	}
	balance := t.balance(token, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("local tokens: balance %s below transfer %s", balance, amount)
	}

	allowance.Sub(allowance, amount)
	balance.Sub(balance, amount)
	t.balance(token, to).Add(t.balance(token, to), amount)
	return nil
}

// Approve grants spender an allowance over self's balance.
func (t *TokenLedger) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{token, t.self, spender}] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns the owner-to-spender allowance.
func (t *TokenLedger) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowance(token, owner, spender)), nil
}

// BalanceOf returns the account balance.
func (t *TokenLedger) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(token, account)), nil
}

// AllowList is a static in-memory collateral allowlist.
type AllowList struct {
	mu     sync.RWMutex
	tokens map[common.Address]bool
}

var _ domain.AllowList = (*AllowList)(nil)

// NewAllowList creates an allowlist seeded with the given tokens.
func NewAllowList(tokens ...common.Address) *AllowList {
	a := &AllowList{tokens: make(map[common.Address]bool, len(tokens))}
	for _, t := range tokens {
		a.tokens[t] = true
	}
	return a
}

// Add whitelists a token.
func (a *AllowList) Add(token common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = true
}

// IsOnWhitelist reports whether token is approved as reward collateral.
func (a *AllowList) IsOnWhitelist(ctx context.Context, token common.Address) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tokens[token], nil
}
