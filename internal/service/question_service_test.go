package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/adapter"
	"github.com/outcomebridge/ooadapter/internal/domain"
	"github.com/outcomebridge/ooadapter/internal/platform/local"
	"github.com/outcomebridge/ooadapter/internal/store/memory"
)

var (
	svcAdapterAddr = common.HexToAddress("0x00000000000000000000000000000000000000AD")
	svcOracleAddr  = common.HexToAddress("0x000000000000000000000000000000000000000F")
	svcAdmin       = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	svcCreator     = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	svcToken       = common.HexToAddress("0x00000000000000000000000000000000000000CC")
)

type svcHarness struct {
	oracle     *local.Oracle
	settlement *local.Settlement
	store      *memory.QuestionStore
	cache      *memory.QuestionCache
	locks      *memory.LockManager
	audit      *memory.AuditStore
	bus        *memory.SignalBus
	svc        *QuestionService
}

func newSvcHarness(t *testing.T) *svcHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &svcHarness{
		oracle:     local.NewOracle(svcOracleAddr, logger),
		settlement: local.NewSettlement(logger),
		store:      memory.NewQuestionStore(),
		cache:      memory.NewQuestionCache(),
		locks:      memory.NewLockManager(),
		audit:      memory.NewAuditStore(),
		bus:        memory.NewSignalBus(),
	}

	adp := adapter.New(
		adapter.Config{
			Address:               svcAdapterAddr,
			OracleAddress:         svcOracleAddr,
			EmergencySafetyPeriod: time.Hour,
		},
		adapter.Deps{
			Store:      h.store,
			Oracle:     h.oracle,
			Settlement: h.settlement,
			Tokens:     local.NewTokenLedger(svcAdapterAddr),
			AllowList:  local.NewAllowList(svcToken),
			Clock:      domain.RealClock{},
		},
		svcAdmin,
		logger,
	)

	h.svc = NewQuestionService(adp, h.store, h.cache, h.locks, h.audit, h.bus, nil, domain.RealClock{}, logger)
	return h
}

func (h *svcHarness) initialize(t *testing.T, data string) domain.QuestionID {
	t.Helper()
	id, err := h.svc.Initialize(context.Background(), svcCreator, adapter.InitParams{
		AncillaryData: []byte(data),
		RewardToken:   svcToken,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return id
}

func (h *svcHarness) propose(t *testing.T, id domain.QuestionID, price *big.Int) {
	t.Helper()
	q, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if err := h.oracle.ProposePrice(svcCreator, domain.YesOrNoIdentifier, q.RequestTimestamp, q.AncillaryData, price); err != nil {
		t.Fatalf("propose: %v", err)
	}
}

func drain(events <-chan []byte, wait time.Duration) []domain.LifecycleEvent {
	deadline := time.After(wait)
	var out []domain.LifecycleEvent
	for {
		select {
		case payload, ok := <-events:
			if !ok {
				return out
			}
			var ev domain.LifecycleEvent
			if json.Unmarshal(payload, &ev) == nil {
				out = append(out, ev)
			}
		case <-deadline:
			return out
		}
	}
}

func TestInitializePublishesAndAudits(t *testing.T) {
	h := newSvcHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := h.bus.Subscribe(ctx, domain.ChannelQuestions)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	id := h.initialize(t, "service init")

	got := drain(events, 100*time.Millisecond)
	if len(got) != 1 || got[0].Type != domain.EventQuestionInitialized || got[0].QuestionID != id {
		t.Fatalf("events=%+v", got)
	}

	entries, err := h.audit.List(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(entries) != 1 || entries[0].Event != domain.EventQuestionInitialized {
		t.Fatalf("audit entries=%+v", entries)
	}
}

func TestGetUsesCacheAside(t *testing.T) {
	h := newSvcHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "cache aside")

	// First read misses the cache and back-fills it.
	if _, err := h.cache.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cache pre-populated: %v", err)
	}
	if _, err := h.svc.Get(ctx, id); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := h.cache.Get(ctx, id); err != nil {
		t.Fatalf("cache not back-filled: %v", err)
	}

	// A mutation invalidates the cached record.
	if err := h.svc.Pause(ctx, svcAdmin, id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := h.cache.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cache not invalidated after mutation: %v", err)
	}
}

func TestResolveAnnouncesResolution(t *testing.T) {
	h := newSvcHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := h.initialize(t, "service resolve")
	h.propose(t, id, domain.PriceYes)

	events, err := h.bus.Subscribe(ctx, domain.ChannelResolutions)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	res, err := h.svc.Resolve(ctx, svcCreator, id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Resolved || res.Payouts != domain.PayoutsYes {
		t.Fatalf("resolution=%+v", res)
	}

	got := drain(events, 100*time.Millisecond)
	if len(got) != 1 || got[0].Type != domain.EventQuestionResolved {
		t.Fatalf("events=%+v", got)
	}
	if payouts, ok := h.settlement.ReportedPayouts(id); !ok || payouts[0] != 1 || payouts[1] != 0 {
		t.Fatalf("settlement payouts=%v ok=%v", payouts, ok)
	}
}

func TestMutationsBlockWhileLockHeld(t *testing.T) {
	h := newSvcHarness(t)
	ctx := context.Background()

	id := h.initialize(t, "lock contention")
	h.propose(t, id, domain.PriceYes)

	unlock, err := h.locks.Acquire(ctx, "question:"+id.Hex(), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := h.svc.Resolve(ctx, svcCreator, id); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("resolve under held lock err=%v", err)
	}

	unlock()
	if _, err := h.svc.Resolve(ctx, svcCreator, id); err != nil {
		t.Fatalf("resolve after release: %v", err)
	}
}

func TestHandleDisputeResetsAndAnnounces(t *testing.T) {
	h := newSvcHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := h.initialize(t, "service dispute")
	before, _ := h.store.Get(ctx, id)

	events, err := h.bus.Subscribe(ctx, domain.ChannelDisputes)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := h.svc.HandleDispute(ctx, svcOracleAddr, before.RequestTimestamp, before.AncillaryData); err != nil {
		t.Fatalf("handle dispute: %v", err)
	}

	after, _ := h.store.Get(ctx, id)
	if after.RequestTimestamp <= before.RequestTimestamp {
		t.Fatalf("dispute did not reset the round")
	}

	got := drain(events, 100*time.Millisecond)
	if len(got) != 1 || got[0].Type != domain.EventPriceDisputed {
		t.Fatalf("events=%+v", got)
	}
}

func TestResolverWorkerSweep(t *testing.T) {
	h := newSvcHarness(t)
	ctx := context.Background()

	readyID := h.initialize(t, "worker ready")
	h.propose(t, readyID, domain.PriceNo)

	pendingID := h.initialize(t, "worker pending") // no price yet

	pausedID := h.initialize(t, "worker paused")
	h.propose(t, pausedID, domain.PriceYes)
	if err := h.svc.Pause(ctx, svcAdmin, pausedID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewResolverWorker(h.svc, h.store, ResolverConfig{PollInterval: time.Minute, BatchSize: 10}, logger)
	if err := w.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	resolved, _ := h.store.Get(ctx, readyID)
	if !resolved.Resolved {
		t.Fatalf("ready question not resolved by sweep")
	}
	pending, _ := h.store.Get(ctx, pendingID)
	if pending.Resolved {
		t.Fatalf("pending question resolved without a price")
	}
	paused, _ := h.store.Get(ctx, pausedID)
	if paused.Resolved {
		t.Fatalf("paused question resolved by sweep")
	}
}
