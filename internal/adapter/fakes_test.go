package adapter

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start int64) *fakeClock {
	return &fakeClock{now: time.Unix(start, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// requestKey identifies one oracle request round.
type requestKey struct {
	timestamp int64
	dataHash  domain.QuestionID
}

func keyFor(timestamp int64, data []byte) requestKey {
	return requestKey{timestamp: timestamp, dataHash: domain.DeriveQuestionID(data)}
}

type oracleEntry struct {
	rewardToken common.Address
	reward      *big.Int
	bond        *big.Int
	liveness    uint64
	eventBased  bool
	onDisputed  bool
	price       *big.Int // nil until proposed/settled
}

// fakeOracle records requests and serves prices set by the test.
type fakeOracle struct {
	mu       sync.Mutex
	requests map[requestKey]*oracleEntry
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{requests: make(map[requestKey]*oracleEntry)}
}

func (o *fakeOracle) entry(timestamp int64, data []byte) (*oracleEntry, error) {
	e, ok := o.requests[keyFor(timestamp, data)]
	if !ok {
		return nil, fmt.Errorf("fake oracle: no request at %d", timestamp)
	}
	return e, nil
}

// setPrice makes a price available for the given round.
func (o *fakeOracle) setPrice(timestamp int64, data []byte, price *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.requests[keyFor(timestamp, data)]
	if !ok {
		panic("fake oracle: setPrice on unknown request")
	}
	e.price = new(big.Int).Set(price)
}

func (o *fakeOracle) RequestPrice(ctx context.Context, identifier string, timestamp int64, data []byte, rewardToken common.Address, reward *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := keyFor(timestamp, data)
	if _, ok := o.requests[k]; ok {
		return fmt.Errorf("fake oracle: duplicate request at %d", timestamp)
	}
	o.requests[k] = &oracleEntry{
		rewardToken: rewardToken,
		reward:      new(big.Int).Set(reward),
	}
	return nil
}

func (o *fakeOracle) SetBond(ctx context.Context, identifier string, timestamp int64, data []byte, bond *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.entry(timestamp, data)
	if err != nil {
		return err
	}
	e.bond = new(big.Int).Set(bond)
	return nil
}

func (o *fakeOracle) SetCustomLiveness(ctx context.Context, identifier string, timestamp int64, data []byte, liveness uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.entry(timestamp, data)
	if err != nil {
		return err
	}
	e.liveness = liveness
	return nil
}

func (o *fakeOracle) SetEventBased(ctx context.Context, identifier string, timestamp int64, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.entry(timestamp, data)
	if err != nil {
		return err
	}
	e.eventBased = true
	return nil
}

func (o *fakeOracle) SetCallbacks(ctx context.Context, identifier string, timestamp int64, data []byte, onProposed, onDisputed, onSettled bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.entry(timestamp, data)
	if err != nil {
		return err
	}
	e.onDisputed = onDisputed
	return nil
}

func (o *fakeOracle) HasPrice(ctx context.Context, requester common.Address, identifier string, timestamp int64, data []byte) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.requests[keyFor(timestamp, data)]
	if !ok {
		return false, nil
	}
	return e.price != nil, nil
}

func (o *fakeOracle) GetRequest(ctx context.Context, requester common.Address, identifier string, timestamp int64, data []byte) (domain.OracleRequest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.entry(timestamp, data)
	if err != nil {
		return domain.OracleRequest{}, err
	}
	out := domain.OracleRequest{}
	if e.price != nil {
		out.ProposedPrice = new(big.Int).Set(e.price)
	}
	return out, nil
}

func (o *fakeOracle) SettleAndGetPrice(ctx context.Context, identifier string, timestamp int64, data []byte) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, err := o.entry(timestamp, data)
	if err != nil {
		return nil, err
	}
	if e.price == nil {
		return nil, fmt.Errorf("fake oracle: no price at %d", timestamp)
	}
	return new(big.Int).Set(e.price), nil
}

// fakeSettlement records prepared conditions and reported payouts.
type fakeSettlement struct {
	mu        sync.Mutex
	prepared  map[domain.QuestionID]int
	reports   map[domain.QuestionID][][]uint64
	reportErr error
}

func newFakeSettlement() *fakeSettlement {
	return &fakeSettlement{
		prepared: make(map[domain.QuestionID]int),
		reports:  make(map[domain.QuestionID][][]uint64),
	}
}

func (s *fakeSettlement) PrepareCondition(ctx context.Context, oracle common.Address, id domain.QuestionID, outcomeSlotCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepared[id] = outcomeSlotCount
	return nil
}

func (s *fakeSettlement) ReportPayouts(ctx context.Context, id domain.QuestionID, payouts []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reportErr != nil {
		return s.reportErr
	}
	s.reports[id] = append(s.reports[id], append([]uint64(nil), payouts...))
	return nil
}

func (s *fakeSettlement) reportCount(id domain.QuestionID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports[id])
}

func (s *fakeSettlement) lastReport(id domain.QuestionID) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.reports[id]
	if len(rs) == 0 {
		return nil
	}
	return rs[len(rs)-1]
}

// fakeTokens is an in-memory ERC-20 ledger keyed by token address. The
// connection identity (the principal whose Approve calls set allowances) is
// fixed at construction, mirroring the platform client.
type fakeTokens struct {
	mu         sync.Mutex
	self       common.Address
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]map[common.Address]*big.Int
}

func newFakeTokens(self common.Address) *fakeTokens {
	return &fakeTokens{
		self:       self,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *fakeTokens) mint(token, account common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance(token, account).Add(t.balance(token, account), amount)
}

func (t *fakeTokens) setAllowance(token, owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowance(token, owner, spender).Set(amount)
}

func (t *fakeTokens) balance(token, account common.Address) *big.Int {
	if t.balances[token] == nil {
		t.balances[token] = make(map[common.Address]*big.Int)
	}
	if t.balances[token][account] == nil {
		t.balances[token][account] = big.NewInt(0)
	}
	return t.balances[token][account]
}

func (t *fakeTokens) allowance(token, owner, spender common.Address) *big.Int {
	if t.allowances[token] == nil {
		t.allowances[token] = make(map[common.Address]map[common.Address]*big.Int)
	}
	if t.allowances[token][owner] == nil {
		t.allowances[token][owner] = make(map[common.Address]*big.Int)
	}
	if t.allowances[token][owner][spender] == nil {
		t.allowances[token][owner][spender] = big.NewInt(0)
	}
	return t.allowances[token][owner][spender]
}

func (t *fakeTokens) TransferFrom(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	allowance := t.allowance(token, from, to)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("fake token: insufficient allowance")
	}
	bal := t.balance(token, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("fake token: insufficient balance")
	}
	allowance.Sub(allowance, amount)
	bal.Sub(bal, amount)
	t.balance(token, to).Add(t.balance(token, to), amount)
	return nil
}

func (t *fakeTokens) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowance(token, t.self, spender).Set(amount)
	return nil
}

func (t *fakeTokens) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowance(token, owner, spender)), nil
}

func (t *fakeTokens) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(token, account)), nil
}

// fakeAllowList approves a fixed token set.
type fakeAllowList struct {
	allowed map[common.Address]bool
}

func newFakeAllowList(tokens ...common.Address) *fakeAllowList {
	m := make(map[common.Address]bool, len(tokens))
	for _, tok := range tokens {
		m[tok] = true
	}
	return &fakeAllowList{allowed: m}
}

func (a *fakeAllowList) IsOnWhitelist(ctx context.Context, token common.Address) (bool, error) {
	return a.allowed[token], nil
}

// Compile-time interface checks.
var (
	_ domain.Clock              = (*fakeClock)(nil)
	_ domain.PriceOracle        = (*fakeOracle)(nil)
	_ domain.SettlementRegistry = (*fakeSettlement)(nil)
	_ domain.FungibleToken      = (*fakeTokens)(nil)
	_ domain.AllowList          = (*fakeAllowList)(nil)
)
