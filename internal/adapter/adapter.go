// Package adapter implements the question lifecycle state machine that binds
// binary prediction-market questions to an optimistic price oracle and
// reports final payout vectors to a conditional-token settlement registry.
//
// A question moves Uninitialized -> Initialized -> (disputed/ignored: reset
// back to Initialized with a fresh request round) -> Settled -> Resolved.
// Resolved is terminal. An admin can flag a question and, after a mandatory
// safety period, force a terminal payout independent of oracle state.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// Config holds the static identity and policy parameters of the adapter.
type Config struct {
	// Address is the adapter's own principal: the oracle requester and the
	// custodian of reward funds.
	Address common.Address

	// OracleAddress is the identity of the price oracle collaborator; only
	// this principal may deliver dispute callbacks.
	OracleAddress common.Address

	// EmergencySafetyPeriod is the mandatory delay between flagging a
	// question and being allowed to emergency-resolve it.
	EmergencySafetyPeriod time.Duration

	// MaxAncillaryData caps ancillary payload size. Zero uses the default.
	MaxAncillaryData int
}

// Deps bundles the collaborators the state machine drives.
type Deps struct {
	Store      domain.QuestionStore
	Oracle     domain.PriceOracle
	Settlement domain.SettlementRegistry
	Tokens     domain.FungibleToken
	AllowList  domain.AllowList
	Clock      domain.Clock
}

// Adapter is the question registry and resolver. All public operations take
// the caller identity explicitly; nothing is read from ambient context.
type Adapter struct {
	cfg        Config
	store      domain.QuestionStore
	oracle     domain.PriceOracle
	settlement domain.SettlementRegistry
	tokens     domain.FungibleToken
	allowlist  domain.AllowList
	clock      domain.Clock
	auth       *AccessController
	logger     *slog.Logger

	// busy guards each question against reentrant invocation while an
	// operation is mid-flight through external collaborator calls.
	mu   sync.Mutex
	busy map[domain.QuestionID]bool
}

// New creates an Adapter. The deployer principal is auto-authorized as the
// first admin.
func New(cfg Config, deps Deps, deployer common.Address, logger *slog.Logger) *Adapter {
	if cfg.MaxAncillaryData <= 0 {
		cfg.MaxAncillaryData = domain.MaxAncillaryData
	}
	if deps.Clock == nil {
		deps.Clock = domain.RealClock{}
	}
	return &Adapter{
		cfg:        cfg,
		store:      deps.Store,
		oracle:     deps.Oracle,
		settlement: deps.Settlement,
		tokens:     deps.Tokens,
		allowlist:  deps.AllowList,
		clock:      deps.Clock,
		auth:       NewAccessController(deployer),
		logger:     logger.With(slog.String("component", "adapter")),
	}
}

// InitParams are the creation parameters for a question.
type InitParams struct {
	AncillaryData          []byte
	RewardToken            common.Address
	Reward                 *big.Int
	ProposalBond           *big.Int
	Liveness               uint64
	ResolutionTime         int64
	EarlyResolutionEnabled bool
}

// UpdateParams replace a question's resolution-defining content. Zero-value
// fields are applied as-is; an update is wholesale, not a merge.
type UpdateParams struct {
	AncillaryData []byte
	RewardToken   common.Address
	Reward        *big.Int
	ProposalBond  *big.Int
}

// Resolution reports the outcome of Resolve or Settle.
type Resolution struct {
	Resolved bool
	Reset    bool
	Price    *big.Int
	Payouts  [2]uint64
}

// Initialize validates and creates a question record, prepares the 2-outcome
// condition with the settlement registry, and files the first price request.
// If Reward is positive it is pulled from the caller into adapter custody;
// the caller must have pre-authorized the transfer.
func (a *Adapter) Initialize(ctx context.Context, caller common.Address, p InitParams) (domain.QuestionID, error) {
	if len(p.AncillaryData) == 0 || len(p.AncillaryData) > a.cfg.MaxAncillaryData {
		return domain.QuestionID{}, domain.ErrInvalidAncillaryData
	}

	ok, err := a.allowlist.IsOnWhitelist(ctx, p.RewardToken)
	if err != nil {
		return domain.QuestionID{}, fmt.Errorf("adapter: allowlist check: %w", err)
	}
	if !ok {
		return domain.QuestionID{}, domain.ErrUnsupportedToken
	}

	id := domain.DeriveQuestionID(p.AncillaryData)

	unlock, err := a.acquire(id)
	if err != nil {
		return domain.QuestionID{}, err
	}
	defer unlock()

	if existing, err := a.store.Get(ctx, id); err == nil && existing.Initialized() {
		return domain.QuestionID{}, domain.ErrAlreadyInitialized
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.QuestionID{}, fmt.Errorf("adapter: lookup question: %w", err)
	}

	now := a.clock.Now()
	q := domain.QuestionData{
		QuestionID:             id,
		Creator:                caller,
		AncillaryData:          append([]byte(nil), p.AncillaryData...),
		RewardToken:            p.RewardToken,
		Reward:                 normalize(p.Reward),
		ProposalBond:           normalize(p.ProposalBond),
		Liveness:               p.Liveness,
		RequestTimestamp:       now.Unix(),
		ResolutionTime:         p.ResolutionTime,
		EarlyResolutionEnabled: p.EarlyResolutionEnabled,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := a.settlement.PrepareCondition(ctx, a.cfg.Address, id, 2); err != nil {
		return domain.QuestionID{}, fmt.Errorf("adapter: prepare condition: %w", err)
	}

	if err := a.requestPrice(ctx, priceRequest{
		payer:         caller,
		timestamp:     q.RequestTimestamp,
		ancillaryData: q.AncillaryData,
		rewardToken:   q.RewardToken,
		reward:        q.Reward,
		bond:          q.ProposalBond,
		liveness:      q.Liveness,
	}); err != nil {
		return domain.QuestionID{}, err
	}

	// Persist last so a failure anywhere above leaves no partial record.
	if err := a.store.Create(ctx, q); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.QuestionID{}, domain.ErrAlreadyInitialized
		}
		return domain.QuestionID{}, fmt.Errorf("adapter: persist question: %w", err)
	}

	a.logger.InfoContext(ctx, "adapter: question initialized",
		slog.String("question_id", id.Hex()),
		slog.String("creator", caller.Hex()),
		slog.Int64("request_timestamp", q.RequestTimestamp),
	)
	return id, nil
}

// UpdateQuestion replaces a question's content and re-files a fresh price
// request, exactly like a reset. Admin-only; rejected once the question has
// settled or resolved. The new reward, if positive, is pulled from the
// caller.
func (a *Adapter) UpdateQuestion(ctx context.Context, caller common.Address, id domain.QuestionID, p UpdateParams) error {
	if !a.auth.Authorized(caller) {
		return domain.ErrNotAuthorized
	}
	if len(p.AncillaryData) == 0 || len(p.AncillaryData) > a.cfg.MaxAncillaryData {
		return domain.ErrInvalidAncillaryData
	}
	ok, err := a.allowlist.IsOnWhitelist(ctx, p.RewardToken)
	if err != nil {
		return fmt.Errorf("adapter: allowlist check: %w", err)
	}
	if !ok {
		return domain.ErrUnsupportedToken
	}

	unlock, err := a.acquire(id)
	if err != nil {
		return err
	}
	defer unlock()

	q, err := a.getInitialized(ctx, id)
	if err != nil {
		return err
	}
	if q.Resolved {
		return domain.ErrAlreadyResolved
	}
	if q.Settled() {
		return domain.ErrAlreadySettled
	}

	q.AncillaryData = append([]byte(nil), p.AncillaryData...)
	q.RewardToken = p.RewardToken
	q.Reward = normalize(p.Reward)
	q.ProposalBond = normalize(p.ProposalBond)

	return a.reset(ctx, caller, &q)
}

// ReadyToResolve reports whether Resolve would currently make progress: the
// question exists, has passed its nominal resolution time (unless early
// resolution is enabled), and the oracle has a price for the current round.
func (a *Adapter) ReadyToResolve(ctx context.Context, id domain.QuestionID) (bool, error) {
	q, err := a.getInitialized(ctx, id)
	if err != nil {
		return false, err
	}
	if q.Resolved {
		return false, nil
	}
	return a.priceAvailable(ctx, &q)
}

// Resolve pulls the settled price from the oracle, maps it to a payout
// vector, marks the question resolved, and reports the payout to the
// settlement registry. If the oracle returns the ignore sentinel, the
// question is reset to a fresh request round instead.
func (a *Adapter) Resolve(ctx context.Context, caller common.Address, id domain.QuestionID) (Resolution, error) {
	unlock, err := a.acquire(id)
	if err != nil {
		return Resolution{}, err
	}
	defer unlock()

	q, err := a.getInitialized(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	switch {
	case q.Paused:
		return Resolution{}, domain.ErrPaused
	case q.Resolved:
		return Resolution{}, domain.ErrAlreadyResolved
	case q.Settled():
		// A two-step settle is in progress; the payout must go through
		// ReportPayouts so the round-ordering guard applies.
		return Resolution{}, domain.ErrAlreadySettled
	}

	if ready, err := a.priceAvailable(ctx, &q); err != nil {
		return Resolution{}, err
	} else if !ready {
		return Resolution{}, domain.ErrNotReadyToResolve
	}

	price, err := a.oracle.SettleAndGetPrice(ctx, domain.YesOrNoIdentifier, q.RequestTimestamp, q.AncillaryData)
	if err != nil {
		return Resolution{}, fmt.Errorf("adapter: settle price: %w", err)
	}

	if price.Cmp(domain.PriceIgnore) == 0 {
		if err := a.reset(ctx, a.cfg.Address, &q); err != nil {
			return Resolution{}, err
		}
		return Resolution{Reset: true, Price: price}, nil
	}

	payouts, err := domain.PayoutsForPrice(price)
	if err != nil {
		return Resolution{}, err
	}

	// Report before persisting: a failed report leaves the question
	// unresolved and retriable, while a failed persist at worst re-sends
	// the same payout vector on retry. The per-question lock keeps the
	// two steps from interleaving.
	if err := a.settlement.ReportPayouts(ctx, id, payouts[:]); err != nil {
		return Resolution{}, fmt.Errorf("adapter: report payouts: %w", err)
	}

	q.Resolved = true
	q.SettledPrice = price
	q.Payouts = payouts[:]
	q.UpdatedAt = a.clock.Now()
	if err := a.store.Update(ctx, q); err != nil {
		return Resolution{}, fmt.Errorf("adapter: persist resolution: %w", err)
	}

	a.logger.InfoContext(ctx, "adapter: question resolved",
		slog.String("question_id", id.Hex()),
		slog.String("price", price.String()),
		slog.Any("payouts", payouts[:]),
	)
	return Resolution{Resolved: true, Price: price, Payouts: payouts}, nil
}

// Settle is the first half of the two-step flow: it pulls and locks in the
// oracle price without reporting the payout. Report must happen in a later
// round via ReportPayouts. An ignore price resets the question instead.
func (a *Adapter) Settle(ctx context.Context, caller common.Address, id domain.QuestionID) (Resolution, error) {
	unlock, err := a.acquire(id)
	if err != nil {
		return Resolution{}, err
	}
	defer unlock()

	q, err := a.getInitialized(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	switch {
	case q.Paused:
		return Resolution{}, domain.ErrPaused
	case q.Resolved:
		return Resolution{}, domain.ErrAlreadyResolved
	case q.Settled():
		return Resolution{}, domain.ErrAlreadySettled
	}

	if ready, err := a.priceAvailable(ctx, &q); err != nil {
		return Resolution{}, err
	} else if !ready {
		return Resolution{}, domain.ErrPriceNotAvailable
	}

	price, err := a.oracle.SettleAndGetPrice(ctx, domain.YesOrNoIdentifier, q.RequestTimestamp, q.AncillaryData)
	if err != nil {
		return Resolution{}, fmt.Errorf("adapter: settle price: %w", err)
	}

	if price.Cmp(domain.PriceIgnore) == 0 {
		if err := a.reset(ctx, a.cfg.Address, &q); err != nil {
			return Resolution{}, err
		}
		return Resolution{Reset: true, Price: price}, nil
	}

	// Validate now so a bad price cannot become a wedged settled record.
	if _, err := domain.PayoutsForPrice(price); err != nil {
		return Resolution{}, err
	}

	now := a.clock.Now()
	q.SettledTime = now.Unix()
	q.SettledPrice = price
	q.UpdatedAt = now
	if err := a.store.Update(ctx, q); err != nil {
		return Resolution{}, fmt.Errorf("adapter: persist settle: %w", err)
	}

	a.logger.InfoContext(ctx, "adapter: question settled",
		slog.String("question_id", id.Hex()),
		slog.String("price", price.String()),
	)
	return Resolution{Price: price}, nil
}

// ReportPayouts is the second half of the two-step flow. It fails with
// ErrSameRoundReport when invoked in the same round as Settle, which defeats
// atomic settle-then-report grief sequences.
func (a *Adapter) ReportPayouts(ctx context.Context, caller common.Address, id domain.QuestionID) (Resolution, error) {
	unlock, err := a.acquire(id)
	if err != nil {
		return Resolution{}, err
	}
	defer unlock()

	q, err := a.getInitialized(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	switch {
	case q.Paused:
		return Resolution{}, domain.ErrPaused
	case q.Resolved:
		return Resolution{}, domain.ErrAlreadyResolved
	case !q.Settled():
		return Resolution{}, domain.ErrNotReadyToResolve
	}

	now := a.clock.Now()
	if now.Unix() == q.SettledTime {
		return Resolution{}, domain.ErrSameRoundReport
	}

	payouts, err := domain.PayoutsForPrice(q.SettledPrice)
	if err != nil {
		return Resolution{}, err
	}

	// Report first so a settlement failure leaves the question retriable.
	if err := a.settlement.ReportPayouts(ctx, id, payouts[:]); err != nil {
		return Resolution{}, fmt.Errorf("adapter: report payouts: %w", err)
	}

	q.Resolved = true
	q.Payouts = payouts[:]
	q.UpdatedAt = now
	if err := a.store.Update(ctx, q); err != nil {
		return Resolution{}, fmt.Errorf("adapter: persist resolution: %w", err)
	}

	a.logger.InfoContext(ctx, "adapter: payouts reported",
		slog.String("question_id", id.Hex()),
		slog.Any("payouts", payouts[:]),
	)
	return Resolution{Resolved: true, Price: q.SettledPrice, Payouts: payouts}, nil
}

// GetExpectedPayouts previews the payout vector the current oracle price
// would produce. Read-only; fails when no price is available yet.
func (a *Adapter) GetExpectedPayouts(ctx context.Context, id domain.QuestionID) ([2]uint64, error) {
	q, err := a.getInitialized(ctx, id)
	if err != nil {
		return [2]uint64{}, err
	}
	if q.Resolved {
		return [2]uint64{q.Payouts[0], q.Payouts[1]}, nil
	}

	has, err := a.oracle.HasPrice(ctx, a.cfg.Address, domain.YesOrNoIdentifier, q.RequestTimestamp, q.AncillaryData)
	if err != nil {
		return [2]uint64{}, fmt.Errorf("adapter: has price: %w", err)
	}
	if !has {
		return [2]uint64{}, domain.ErrPriceNotAvailable
	}

	req, err := a.oracle.GetRequest(ctx, a.cfg.Address, domain.YesOrNoIdentifier, q.RequestTimestamp, q.AncillaryData)
	if err != nil {
		return [2]uint64{}, fmt.Errorf("adapter: get request: %w", err)
	}
	price := req.ResolvedPrice
	if price == nil {
		price = req.ProposedPrice
	}
	return domain.PayoutsForPrice(price)
}

// PriceDisputed handles the oracle's dispute callback. Only the configured
// oracle identity may deliver it. A dispute of the current round resets the
// question to a fresh request; a dispute carrying a stale round timestamp is
// a no-op, so duplicate deliveries cannot double-reset.
func (a *Adapter) PriceDisputed(ctx context.Context, caller common.Address, timestamp int64, ancillaryData []byte) error {
	if caller != a.cfg.OracleAddress {
		return domain.ErrNotOracle
	}

	id := domain.DeriveQuestionID(ancillaryData)

	unlock, err := a.acquire(id)
	if err != nil {
		return err
	}
	defer unlock()

	q, err := a.getInitialized(ctx, id)
	if err != nil {
		return err
	}
	if q.Resolved {
		a.logger.WarnContext(ctx, "adapter: dispute after resolution ignored",
			slog.String("question_id", id.Hex()),
		)
		return nil
	}
	if timestamp != q.RequestTimestamp {
		a.logger.InfoContext(ctx, "adapter: stale dispute ignored",
			slog.String("question_id", id.Hex()),
			slog.Int64("disputed_timestamp", timestamp),
			slog.Int64("current_timestamp", q.RequestTimestamp),
		)
		return nil
	}

	a.logger.InfoContext(ctx, "adapter: price disputed, resetting",
		slog.String("question_id", id.Hex()),
		slog.Int64("request_timestamp", timestamp),
	)
	return a.reset(ctx, a.cfg.Address, &q)
}

// GetQuestion returns the full stored record.
func (a *Adapter) GetQuestion(ctx context.Context, id domain.QuestionID) (domain.QuestionData, error) {
	return a.store.Get(ctx, id)
}

// IsInitialized reports whether a record exists and is initialized.
func (a *Adapter) IsInitialized(ctx context.Context, id domain.QuestionID) (bool, error) {
	q, err := a.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return q.Initialized(), nil
}

// IsAdmin reports whether principal is in the admin set.
func (a *Adapter) IsAdmin(principal common.Address) bool {
	return a.auth.Authorized(principal)
}

// Rely adds principal to the admin set; caller must be authorized.
func (a *Adapter) Rely(caller, principal common.Address) error {
	return a.auth.Rely(caller, principal)
}

// Deny removes principal from the admin set; caller must be authorized.
func (a *Adapter) Deny(caller, principal common.Address) error {
	return a.auth.Deny(caller, principal)
}

// reset discards the current price-request round and files a fresh one. Only
// the request timestamp, settle progress, and the reset-tracking flag change;
// every content field is preserved bit-for-bit. When payer is the adapter
// itself the reward already in custody is reused rather than pulled again.
func (a *Adapter) reset(ctx context.Context, payer common.Address, q *domain.QuestionData) error {
	now := a.clock.Now()
	newTS := now.Unix()
	if newTS <= q.RequestTimestamp {
		// The fresh round's timestamp must be strictly greater than the one
		// it supersedes, which is also the oracle's request key.
		newTS = q.RequestTimestamp + 1
	}

	q.RequestTimestamp = newTS
	q.SettledTime = 0
	q.SettledPrice = nil
	q.Reset = true
	q.UpdatedAt = now

	if err := a.requestPrice(ctx, priceRequest{
		payer:         payer,
		timestamp:     q.RequestTimestamp,
		ancillaryData: q.AncillaryData,
		rewardToken:   q.RewardToken,
		reward:        q.Reward,
		bond:          q.ProposalBond,
		liveness:      q.Liveness,
	}); err != nil {
		return err
	}

	if err := a.store.Update(ctx, *q); err != nil {
		return fmt.Errorf("adapter: persist reset: %w", err)
	}

	a.logger.InfoContext(ctx, "adapter: question reset",
		slog.String("question_id", q.QuestionID.Hex()),
		slog.Int64("request_timestamp", q.RequestTimestamp),
	)
	return nil
}

// priceAvailable checks request timing and oracle price availability for the
// question's current round.
func (a *Adapter) priceAvailable(ctx context.Context, q *domain.QuestionData) (bool, error) {
	// Standard timing waits for the nominal resolution time; early
	// resolution skips the wait until that time has passed anyway.
	if q.ResolutionTime > 0 && !q.EarlyResolutionEnabled {
		if a.clock.Now().Unix() < q.ResolutionTime {
			return false, nil
		}
	}
	has, err := a.oracle.HasPrice(ctx, a.cfg.Address, domain.YesOrNoIdentifier, q.RequestTimestamp, q.AncillaryData)
	if err != nil {
		return false, fmt.Errorf("adapter: has price: %w", err)
	}
	return has, nil
}

// getInitialized loads a question and maps absent or empty records to
// ErrNotInitialized. Uninitialized records are indistinguishable from absent
// ones.
func (a *Adapter) getInitialized(ctx context.Context, id domain.QuestionID) (domain.QuestionData, error) {
	q, err := a.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.QuestionData{}, domain.ErrNotInitialized
	}
	if err != nil {
		return domain.QuestionData{}, fmt.Errorf("adapter: load question: %w", err)
	}
	if !q.Initialized() {
		return domain.QuestionData{}, domain.ErrNotInitialized
	}
	return q, nil
}

// acquire takes the per-question reentrancy guard.
func (a *Adapter) acquire(id domain.QuestionID) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy == nil {
		a.busy = make(map[domain.QuestionID]bool)
	}
	if a.busy[id] {
		return nil, domain.ErrReentrancy
	}
	a.busy[id] = true
	return func() {
		a.mu.Lock()
		delete(a.busy, id)
		a.mu.Unlock()
	}, nil
}

func normalize(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
