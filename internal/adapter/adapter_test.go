package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
	"github.com/outcomebridge/ooadapter/internal/store/memory"
)

var (
	adapterAddr = common.HexToAddress("0x00000000000000000000000000000000000000AD")
	oracleAddr  = common.HexToAddress("0x000000000000000000000000000000000000000F")
	admin       = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	creator     = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	rando       = common.HexToAddress("0x0000000000000000000000000000000000000BAD")
	usdc        = common.HexToAddress("0x00000000000000000000000000000000000000CC")
)

const safetyPeriod = 48 * time.Hour

type harness struct {
	clock      *fakeClock
	oracle     *fakeOracle
	settlement *fakeSettlement
	tokens     *fakeTokens
	store      *memory.QuestionStore
	adapter    *Adapter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:      newFakeClock(1_700_000_000),
		oracle:     newFakeOracle(),
		settlement: newFakeSettlement(),
		tokens:     newFakeTokens(adapterAddr),
		store:      memory.NewQuestionStore(),
	}
	h.adapter = New(
		Config{
			Address:               adapterAddr,
			OracleAddress:         oracleAddr,
			EmergencySafetyPeriod: safetyPeriod,
		},
		Deps{
			Store:      h.store,
			Oracle:     h.oracle,
			Settlement: h.settlement,
			Tokens:     h.tokens,
			AllowList:  newFakeAllowList(usdc),
			Clock:      h.clock,
		},
		admin,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return h
}

func (h *harness) initialize(t *testing.T, data string, reward int64) domain.QuestionID {
	t.Helper()
	ctx := context.Background()
	if reward > 0 {
		h.tokens.mint(usdc, creator, big.NewInt(reward))
		h.tokens.setAllowance(usdc, creator, adapterAddr, big.NewInt(reward))
	}
	id, err := h.adapter.Initialize(ctx, creator, InitParams{
		AncillaryData: []byte(data),
		RewardToken:   usdc,
		Reward:        big.NewInt(reward),
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return id
}

// propose makes a price available for the question's current round.
func (h *harness) propose(t *testing.T, id domain.QuestionID, price *big.Int) {
	t.Helper()
	q, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	h.oracle.setPrice(q.RequestTimestamp, q.AncillaryData, price)
}

func TestInitializeCreatesRecordAndFilesRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "will it rain", 0)

	q, err := h.store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if q.Creator != creator {
		t.Fatalf("creator=%s", q.Creator)
	}
	if q.Resolved || q.Paused || q.Settled() || q.Flagged() {
		t.Fatalf("fresh question has progress flags set: %+v", q)
	}
	if q.RequestTimestamp != h.clock.Now().Unix() {
		t.Fatalf("request timestamp=%d want %d", q.RequestTimestamp, h.clock.Now().Unix())
	}
	if h.settlement.prepared[id] != 2 {
		t.Fatalf("condition not prepared with 2 outcome slots")
	}

	e, err := h.oracle.entry(q.RequestTimestamp, q.AncillaryData)
	if err != nil {
		t.Fatalf("oracle request missing: %v", err)
	}
	if !e.eventBased || !e.onDisputed {
		t.Fatalf("request not event-based with disputed callback: %+v", e)
	}
}

func TestInitializeValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.adapter.Initialize(ctx, creator, InitParams{AncillaryData: nil, RewardToken: usdc})
	if !errors.Is(err, domain.ErrInvalidAncillaryData) {
		t.Fatalf("empty ancillary err=%v", err)
	}

	_, err = h.adapter.Initialize(ctx, creator, InitParams{
		AncillaryData: make([]byte, domain.MaxAncillaryData+1),
		RewardToken:   usdc,
	})
	if !errors.Is(err, domain.ErrInvalidAncillaryData) {
		t.Fatalf("oversized ancillary err=%v", err)
	}

	_, err = h.adapter.Initialize(ctx, creator, InitParams{
		AncillaryData: []byte("x"),
		RewardToken:   common.HexToAddress("0x1234"),
	})
	if !errors.Is(err, domain.ErrUnsupportedToken) {
		t.Fatalf("unlisted token err=%v", err)
	}
}

func TestReinitializationRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "duplicate me", 0)

	before, _ := h.store.Get(ctx, id)
	_, err := h.adapter.Initialize(ctx, rando, InitParams{
		AncillaryData: []byte("duplicate me"),
		RewardToken:   usdc,
	})
	if !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Fatalf("err=%v want ErrAlreadyInitialized", err)
	}
	after, _ := h.store.Get(ctx, id)
	if after.Creator != before.Creator || after.RequestTimestamp != before.RequestTimestamp {
		t.Fatalf("second initialize mutated state")
	}
}

func TestRewardCustodyRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.initialize(t, "paid question", 500)

	creatorBal, _ := h.tokens.BalanceOf(ctx, usdc, creator)
	adapterBal, _ := h.tokens.BalanceOf(ctx, usdc, adapterAddr)
	if creatorBal.Sign() != 0 {
		t.Fatalf("creator balance=%s want 0", creatorBal)
	}
	if adapterBal.Int64() != 500 {
		t.Fatalf("adapter balance=%s want 500", adapterBal)
	}

	allowance, _ := h.tokens.Allowance(ctx, usdc, adapterAddr, oracleAddr)
	if allowance.Cmp(big.NewInt(500)) < 0 {
		t.Fatalf("oracle allowance=%s too small", allowance)
	}

	// A second, larger-reward initialization must not shrink the allowance.
	h.tokens.mint(usdc, creator, big.NewInt(10_000))
	h.tokens.setAllowance(usdc, creator, adapterAddr, big.NewInt(10_000))
	h.clock.Advance(time.Second)
	if _, err := h.adapter.Initialize(ctx, creator, InitParams{
		AncillaryData: []byte("bigger reward"),
		RewardToken:   usdc,
		Reward:        big.NewInt(10_000),
	}); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	after, _ := h.tokens.Allowance(ctx, usdc, adapterAddr, oracleAddr)
	if after.Cmp(allowance) < 0 {
		t.Fatalf("allowance shrank from %s to %s", allowance, after)
	}
	if after.Cmp(big.NewInt(10_000)) < 0 {
		t.Fatalf("allowance=%s cannot cover new reward", after)
	}
}

func TestInitializeRewardTransferFailureSurfaces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// No mint, no allowance: the pull must fail and no record may be left.
	_, err := h.adapter.Initialize(ctx, creator, InitParams{
		AncillaryData: []byte("unfunded"),
		RewardToken:   usdc,
		Reward:        big.NewInt(100),
	})
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("err=%v want ErrTransferFailed", err)
	}
	id := domain.DeriveQuestionID([]byte("unfunded"))
	if _, err := h.store.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("partial record persisted after failed initialize")
	}
}

func TestResolvePriceMapping(t *testing.T) {
	cases := []struct {
		name  string
		price *big.Int
		want  [2]uint64
	}{
		{"no", big.NewInt(0), [2]uint64{0, 1}},
		{"unknown", new(big.Int).SetUint64(5e17), [2]uint64{1, 1}},
		{"yes", new(big.Int).SetUint64(1e18), [2]uint64{1, 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			id := h.initialize(t, "mapping "+tc.name, 0)
			h.propose(t, id, tc.price)

			res, err := h.adapter.Resolve(ctx, rando, id)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !res.Resolved || res.Payouts != tc.want {
				t.Fatalf("resolution=%+v want payouts %v", res, tc.want)
			}
			if got := h.settlement.lastReport(id); len(got) != 2 || got[0] != tc.want[0] || got[1] != tc.want[1] {
				t.Fatalf("reported payouts=%v want %v", got, tc.want)
			}

			q, _ := h.store.Get(ctx, id)
			if !q.Resolved {
				t.Fatalf("record not marked resolved")
			}
		})
	}
}

func TestResolveRejectsOffScalePrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "weird price", 0)
	h.propose(t, id, new(big.Int).SetUint64(3e17))

	_, err := h.adapter.Resolve(ctx, rando, id)
	if !errors.Is(err, domain.ErrInvalidOOPrice) {
		t.Fatalf("err=%v want ErrInvalidOOPrice", err)
	}

	q, _ := h.store.Get(ctx, id)
	if q.Resolved || q.Settled() {
		t.Fatalf("off-scale price mutated state: %+v", q)
	}
	if h.settlement.reportCount(id) != 0 {
		t.Fatalf("payouts reported for invalid price")
	}
}

func TestIgnorePriceResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "try again later", 0)
	before, _ := h.store.Get(ctx, id)
	h.propose(t, id, domain.PriceIgnore)
	h.clock.Advance(time.Minute)

	res, err := h.adapter.Resolve(ctx, rando, id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Reset || res.Resolved {
		t.Fatalf("expected reset, got %+v", res)
	}

	after, _ := h.store.Get(ctx, id)
	if after.RequestTimestamp <= before.RequestTimestamp {
		t.Fatalf("request timestamp not advanced: %d -> %d", before.RequestTimestamp, after.RequestTimestamp)
	}
	if after.Resolved {
		t.Fatalf("reset must not resolve")
	}
	if !after.Reset {
		t.Fatalf("reset flag not recorded")
	}
	if string(after.AncillaryData) != string(before.AncillaryData) ||
		after.RewardToken != before.RewardToken ||
		after.Reward.Cmp(before.Reward) != 0 ||
		after.ProposalBond.Cmp(before.ProposalBond) != 0 {
		t.Fatalf("reset mutated content fields")
	}

	// No price proposed for the fresh round yet.
	ready, err := h.adapter.ReadyToResolve(ctx, id)
	if err != nil {
		t.Fatalf("readyToResolve: %v", err)
	}
	if ready {
		t.Fatalf("question ready immediately after reset")
	}
}

func TestSingleResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "only once", 0)
	h.propose(t, id, domain.PriceYes)

	if _, err := h.adapter.Resolve(ctx, rando, id); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := h.adapter.Resolve(ctx, rando, id); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("second resolve err=%v", err)
	}
	if _, err := h.adapter.ReportPayouts(ctx, rando, id); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("report after resolve err=%v", err)
	}
	if err := h.adapter.Flag(ctx, admin, id); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("flag after resolve err=%v", err)
	}

	q, _ := h.store.Get(ctx, id)
	if q.Payouts[0] != 1 || q.Payouts[1] != 0 {
		t.Fatalf("stored payouts changed: %v", q.Payouts)
	}
	if h.settlement.reportCount(id) != 1 {
		t.Fatalf("payouts reported %d times, want exactly once", h.settlement.reportCount(id))
	}
}

func TestTwoStepSameRoundReportRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "two step", 0)
	h.propose(t, id, domain.PriceYes)

	res, err := h.adapter.Settle(ctx, rando, id)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if res.Price.Cmp(domain.PriceYes) != 0 {
		t.Fatalf("settled price=%s", res.Price)
	}

	// Same round: report must fail with the dedicated ordering error.
	if _, err := h.adapter.ReportPayouts(ctx, rando, id); !errors.Is(err, domain.ErrSameRoundReport) {
		t.Fatalf("same-round report err=%v want ErrSameRoundReport", err)
	}

	// The unified path is also blocked while a settle is pending.
	if _, err := h.adapter.Resolve(ctx, rando, id); !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("resolve while settled err=%v want ErrAlreadySettled", err)
	}

	h.clock.Advance(time.Second)
	rep, err := h.adapter.ReportPayouts(ctx, rando, id)
	if err != nil {
		t.Fatalf("next-round report: %v", err)
	}
	if rep.Payouts != domain.PayoutsYes {
		t.Fatalf("payouts=%v", rep.Payouts)
	}
	if h.settlement.reportCount(id) != 1 {
		t.Fatalf("report count=%d", h.settlement.reportCount(id))
	}
}

func TestSettleIgnorePriceResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "two step ignore", 0)
	h.propose(t, id, domain.PriceIgnore)
	h.clock.Advance(time.Second)

	res, err := h.adapter.Settle(ctx, rando, id)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if !res.Reset {
		t.Fatalf("expected reset")
	}
	q, _ := h.store.Get(ctx, id)
	if q.Settled() {
		t.Fatalf("ignore price left settle progress")
	}
}

func TestPriceDisputedResetsCurrentRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "contentious", 0)
	before, _ := h.store.Get(ctx, id)
	h.clock.Advance(time.Minute)

	// Only the oracle may deliver the callback.
	if err := h.adapter.PriceDisputed(ctx, rando, before.RequestTimestamp, before.AncillaryData); !errors.Is(err, domain.ErrNotOracle) {
		t.Fatalf("non-oracle dispute err=%v", err)
	}

	if err := h.adapter.PriceDisputed(ctx, oracleAddr, before.RequestTimestamp, before.AncillaryData); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	after, _ := h.store.Get(ctx, id)
	if after.RequestTimestamp <= before.RequestTimestamp {
		t.Fatalf("dispute did not reset the round")
	}

	// Duplicate delivery of the same dispute is a no-op.
	if err := h.adapter.PriceDisputed(ctx, oracleAddr, before.RequestTimestamp, before.AncillaryData); err != nil {
		t.Fatalf("duplicate dispute: %v", err)
	}
	again, _ := h.store.Get(ctx, id)
	if again.RequestTimestamp != after.RequestTimestamp {
		t.Fatalf("duplicate dispute reset again: %d -> %d", after.RequestTimestamp, again.RequestTimestamp)
	}
}

func TestEmergencyResolveSafetyPeriodGate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "emergency", 0)

	if err := h.adapter.EmergencyResolve(ctx, admin, id, []uint64{1, 0}); !errors.Is(err, domain.ErrNotFlagged) {
		t.Fatalf("unflagged emergency err=%v", err)
	}

	if err := h.adapter.Flag(ctx, admin, id); err != nil {
		t.Fatalf("flag: %v", err)
	}
	if err := h.adapter.Flag(ctx, admin, id); !errors.Is(err, domain.ErrAlreadyFlagged) {
		t.Fatalf("double flag err=%v", err)
	}

	q, _ := h.store.Get(ctx, id)
	if !q.Paused {
		t.Fatalf("flagging must pause")
	}
	wantTS := h.clock.Now().Add(safetyPeriod).Unix()
	if q.EmergencyResolutionTimestamp != wantTS {
		t.Fatalf("emergency ts=%d want %d", q.EmergencyResolutionTimestamp, wantTS)
	}

	// Before the window: blocked.
	h.clock.Advance(safetyPeriod - time.Second)
	if err := h.adapter.EmergencyResolve(ctx, admin, id, []uint64{1, 0}); !errors.Is(err, domain.ErrSafetyPeriodNotPassed) {
		t.Fatalf("early emergency err=%v", err)
	}

	// The instant the boundary is crossed: allowed, with the exact vector.
	h.clock.Advance(time.Second)
	if err := h.adapter.EmergencyResolve(ctx, admin, id, []uint64{1, 1}); err != nil {
		t.Fatalf("emergency resolve: %v", err)
	}
	got := h.settlement.lastReport(id)
	if len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Fatalf("reported=%v want [1 1]", got)
	}

	// Terminal afterwards.
	if err := h.adapter.EmergencyResolve(ctx, admin, id, []uint64{1, 0}); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("second emergency err=%v", err)
	}
}

func TestEmergencyResolveRejectsMalformedPayouts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "bad payouts", 0)
	if err := h.adapter.Flag(ctx, admin, id); err != nil {
		t.Fatalf("flag: %v", err)
	}
	h.clock.Advance(safetyPeriod)

	for _, p := range [][]uint64{nil, {1}, {1, 0, 0}, {0, 0}, {2, 1}} {
		if err := h.adapter.EmergencyResolve(ctx, admin, id, p); !errors.Is(err, domain.ErrInvalidPayouts) {
			t.Fatalf("payouts %v err=%v want ErrInvalidPayouts", p, err)
		}
	}
}

func TestUnflagOnlyBeforeWindowElapses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "unflag me", 0)
	if err := h.adapter.Unflag(ctx, admin, id); !errors.Is(err, domain.ErrNotFlagged) {
		t.Fatalf("unflag unflagged err=%v", err)
	}

	if err := h.adapter.Flag(ctx, admin, id); err != nil {
		t.Fatalf("flag: %v", err)
	}
	h.clock.Advance(time.Hour)
	if err := h.adapter.Unflag(ctx, admin, id); err != nil {
		t.Fatalf("unflag: %v", err)
	}
	q, _ := h.store.Get(ctx, id)
	if q.Flagged() || q.Paused {
		t.Fatalf("unflag did not clear flag/pause: %+v", q)
	}

	if err := h.adapter.Flag(ctx, admin, id); err != nil {
		t.Fatalf("re-flag: %v", err)
	}
	h.clock.Advance(safetyPeriod)
	if err := h.adapter.Unflag(ctx, admin, id); !errors.Is(err, domain.ErrSafetyPeriodPassed) {
		t.Fatalf("late unflag err=%v", err)
	}
}

func TestPauseBlocksResolveButNotEmergency(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "paused question", 0)
	h.propose(t, id, domain.PriceYes)

	if err := h.adapter.Pause(ctx, admin, id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := h.adapter.Resolve(ctx, rando, id); !errors.Is(err, domain.ErrPaused) {
		t.Fatalf("resolve while paused err=%v", err)
	}
	if _, err := h.adapter.Settle(ctx, rando, id); !errors.Is(err, domain.ErrPaused) {
		t.Fatalf("settle while paused err=%v", err)
	}

	if err := h.adapter.Flag(ctx, admin, id); err != nil {
		t.Fatalf("flag: %v", err)
	}
	h.clock.Advance(safetyPeriod)
	if err := h.adapter.EmergencyResolve(ctx, admin, id, []uint64{0, 1}); err != nil {
		t.Fatalf("emergency resolve while paused: %v", err)
	}
}

func TestUnpauseRestoresResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "pause cycle", 0)
	h.propose(t, id, domain.PriceNo)

	if err := h.adapter.Unpause(ctx, admin, id); !errors.Is(err, domain.ErrNotPaused) {
		t.Fatalf("unpause unpaused err=%v", err)
	}
	if err := h.adapter.Pause(ctx, admin, id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := h.adapter.Pause(ctx, admin, id); !errors.Is(err, domain.ErrPaused) {
		t.Fatalf("double pause err=%v", err)
	}
	if err := h.adapter.Unpause(ctx, admin, id); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if _, err := h.adapter.Resolve(ctx, rando, id); err != nil {
		t.Fatalf("resolve after unpause: %v", err)
	}
}

func TestAuthorizationBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "admin only", 0)

	adminOps := map[string]func(caller common.Address) error{
		"flag":    func(c common.Address) error { return h.adapter.Flag(ctx, c, id) },
		"unflag":  func(c common.Address) error { return h.adapter.Unflag(ctx, c, id) },
		"pause":   func(c common.Address) error { return h.adapter.Pause(ctx, c, id) },
		"unpause": func(c common.Address) error { return h.adapter.Unpause(ctx, c, id) },
		"emergency": func(c common.Address) error {
			return h.adapter.EmergencyResolve(ctx, c, id, []uint64{1, 0})
		},
		"update": func(c common.Address) error {
			return h.adapter.UpdateQuestion(ctx, c, id, UpdateParams{AncillaryData: []byte("admin only"), RewardToken: usdc})
		},
		"rely": func(c common.Address) error { return h.adapter.Rely(c, rando) },
		"deny": func(c common.Address) error { return h.adapter.Deny(c, admin) },
	}
	for name, op := range adminOps {
		if err := op(rando); !errors.Is(err, domain.ErrNotAuthorized) {
			t.Fatalf("%s by non-admin err=%v want ErrNotAuthorized", name, err)
		}
	}

	// Rely takes effect immediately; deny revokes immediately.
	if err := h.adapter.Rely(admin, rando); err != nil {
		t.Fatalf("rely: %v", err)
	}
	if !h.adapter.IsAdmin(rando) {
		t.Fatalf("rely not reflected")
	}
	if err := h.adapter.Pause(ctx, rando, id); err != nil {
		t.Fatalf("pause by new admin: %v", err)
	}
	if err := h.adapter.Deny(admin, rando); err != nil {
		t.Fatalf("deny: %v", err)
	}
	if h.adapter.IsAdmin(rando) {
		t.Fatalf("deny not reflected")
	}
	if err := h.adapter.Unpause(ctx, rando, id); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("denied principal still authorized: %v", err)
	}
}

func TestUpdateQuestionResetsRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "updatable", 0)
	before, _ := h.store.Get(ctx, id)
	h.clock.Advance(time.Minute)

	if err := h.adapter.UpdateQuestion(ctx, admin, id, UpdateParams{
		AncillaryData: []byte("updated criteria"),
		RewardToken:   usdc,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, _ := h.store.Get(ctx, id)
	if string(after.AncillaryData) != "updated criteria" {
		t.Fatalf("ancillary not replaced")
	}
	if after.RequestTimestamp <= before.RequestTimestamp {
		t.Fatalf("update did not file a fresh request")
	}

	// Once settled the question content is locked.
	h.propose(t, id, domain.PriceYes)
	if _, err := h.adapter.Settle(ctx, rando, id); err != nil {
		t.Fatalf("settle: %v", err)
	}
	err := h.adapter.UpdateQuestion(ctx, admin, id, UpdateParams{
		AncillaryData: []byte("too late"),
		RewardToken:   usdc,
	})
	if !errors.Is(err, domain.ErrAlreadySettled) {
		t.Fatalf("update after settle err=%v want ErrAlreadySettled", err)
	}
}

func TestGetExpectedPayoutsIsReadOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	missing := domain.DeriveQuestionID([]byte("never made"))
	if _, err := h.adapter.GetExpectedPayouts(ctx, missing); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("missing question err=%v", err)
	}

	id := h.initialize(t, "previewable", 0)
	if _, err := h.adapter.GetExpectedPayouts(ctx, id); !errors.Is(err, domain.ErrPriceNotAvailable) {
		t.Fatalf("no price err=%v", err)
	}

	h.propose(t, id, domain.PriceUnknown)
	got, err := h.adapter.GetExpectedPayouts(ctx, id)
	if err != nil {
		t.Fatalf("expected payouts: %v", err)
	}
	if got != domain.PayoutsUnknown {
		t.Fatalf("payouts=%v", got)
	}

	q, _ := h.store.Get(ctx, id)
	if q.Resolved || q.Settled() {
		t.Fatalf("preview mutated state")
	}
	if h.settlement.reportCount(id) != 0 {
		t.Fatalf("preview reported payouts")
	}
}

func TestReadyToResolveWaitsForNominalTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resTime := h.clock.Now().Add(24 * time.Hour).Unix()
	id, err := h.adapter.Initialize(ctx, creator, InitParams{
		AncillaryData:  []byte("scheduled"),
		RewardToken:    usdc,
		ResolutionTime: resTime,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	h.propose(t, id, domain.PriceYes)

	ready, err := h.adapter.ReadyToResolve(ctx, id)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if ready {
		t.Fatalf("ready before nominal resolution time")
	}
	if _, err := h.adapter.Resolve(ctx, rando, id); !errors.Is(err, domain.ErrNotReadyToResolve) {
		t.Fatalf("resolve before time err=%v", err)
	}

	h.clock.Advance(24 * time.Hour)
	ready, _ = h.adapter.ReadyToResolve(ctx, id)
	if !ready {
		t.Fatalf("not ready after nominal resolution time")
	}
}

func TestEarlyResolutionSkipsNominalWait(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resTime := h.clock.Now().Add(24 * time.Hour).Unix()
	id, err := h.adapter.Initialize(ctx, creator, InitParams{
		AncillaryData:          []byte("early bird"),
		RewardToken:            usdc,
		ResolutionTime:         resTime,
		EarlyResolutionEnabled: true,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	h.propose(t, id, domain.PriceYes)

	ready, err := h.adapter.ReadyToResolve(ctx, id)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if !ready {
		t.Fatalf("early-resolution question not ready despite available price")
	}
	if _, err := h.adapter.Resolve(ctx, rando, id); err != nil {
		t.Fatalf("early resolve: %v", err)
	}
}

func TestResolveRetriesAfterSettlementFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "flaky settlement", 0)
	h.propose(t, id, domain.PriceYes)

	h.settlement.reportErr = errors.New("registry unavailable")
	if _, err := h.adapter.Resolve(ctx, rando, id); err == nil {
		t.Fatalf("resolve succeeded despite settlement failure")
	}

	// The failure must not wedge the question: nothing persisted, nothing
	// reported, and the admin recovery path stays open.
	q, _ := h.store.Get(ctx, id)
	if q.Resolved {
		t.Fatalf("record marked resolved after failed report")
	}
	if h.settlement.reportCount(id) != 0 {
		t.Fatalf("reportCount=%d want 0", h.settlement.reportCount(id))
	}
	if err := h.adapter.Flag(ctx, admin, id); err != nil {
		t.Fatalf("flag after failed report: %v", err)
	}
	if err := h.adapter.Unflag(ctx, admin, id); err != nil {
		t.Fatalf("unflag: %v", err)
	}

	h.settlement.reportErr = nil
	res, err := h.adapter.Resolve(ctx, rando, id)
	if err != nil {
		t.Fatalf("retry resolve: %v", err)
	}
	if !res.Resolved || h.settlement.reportCount(id) != 1 {
		t.Fatalf("retry resolution=%+v reportCount=%d", res, h.settlement.reportCount(id))
	}
}

func TestReportPayoutsRetriesAfterSettlementFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "flaky two-step", 0)
	h.propose(t, id, domain.PriceNo)

	if _, err := h.adapter.Settle(ctx, rando, id); err != nil {
		t.Fatalf("settle: %v", err)
	}
	h.clock.Advance(time.Minute)

	h.settlement.reportErr = errors.New("registry unavailable")
	if _, err := h.adapter.ReportPayouts(ctx, rando, id); err == nil {
		t.Fatalf("report succeeded despite settlement failure")
	}
	q, _ := h.store.Get(ctx, id)
	if q.Resolved {
		t.Fatalf("record marked resolved after failed report")
	}

	h.settlement.reportErr = nil
	res, err := h.adapter.ReportPayouts(ctx, rando, id)
	if err != nil {
		t.Fatalf("retry report: %v", err)
	}
	if !res.Resolved || res.Payouts != [2]uint64{0, 1} {
		t.Fatalf("retry resolution=%+v", res)
	}
}

func TestEmergencyResolveRetriesAfterSettlementFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "flaky emergency", 0)
	if err := h.adapter.Flag(ctx, admin, id); err != nil {
		t.Fatalf("flag: %v", err)
	}
	h.clock.Advance(safetyPeriod)

	h.settlement.reportErr = errors.New("registry unavailable")
	if err := h.adapter.EmergencyResolve(ctx, admin, id, []uint64{1, 0}); err == nil {
		t.Fatalf("emergency resolve succeeded despite settlement failure")
	}
	q, _ := h.store.Get(ctx, id)
	if q.Resolved {
		t.Fatalf("record marked resolved after failed report")
	}

	h.settlement.reportErr = nil
	if err := h.adapter.EmergencyResolve(ctx, admin, id, []uint64{1, 0}); err != nil {
		t.Fatalf("retry emergency resolve: %v", err)
	}
	if h.settlement.reportCount(id) != 1 {
		t.Fatalf("reportCount=%d want 1", h.settlement.reportCount(id))
	}
}
