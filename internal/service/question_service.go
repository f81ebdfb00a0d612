// Package service composes the lifecycle state machine with persistence,
// caching, distributed locking, auditing, and event fan-out.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/adapter"
	"github.com/outcomebridge/ooadapter/internal/domain"
	"github.com/outcomebridge/ooadapter/internal/notify"
)

// lockTTL bounds how long a mutating operation may hold a question's
// distributed lock before it self-expires.
const lockTTL = 30 * time.Second

// QuestionService is the application-facing surface for question lifecycle
// operations. Every mutation is serialized per question across processes via
// the lock manager, audited, and announced on the signal bus.
type QuestionService struct {
	adapter  *adapter.Adapter
	store    domain.QuestionStore
	cache    domain.QuestionCache
	locks    domain.LockManager
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	clock    domain.Clock
	logger   *slog.Logger
}

// NewQuestionService creates a QuestionService with all required dependencies.
// Cache, audit store, bus, and notifier may be nil; the corresponding
// side-effects are skipped.
func NewQuestionService(
	adp *adapter.Adapter,
	store domain.QuestionStore,
	cache domain.QuestionCache,
	locks domain.LockManager,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	clock domain.Clock,
	logger *slog.Logger,
) *QuestionService {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &QuestionService{
		adapter:  adp,
		store:    store,
		cache:    cache,
		locks:    locks,
		audit:    audit,
		bus:      bus,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With(slog.String("component", "question_service")),
	}
}

// Initialize creates a new question and returns its derived ID.
func (s *QuestionService) Initialize(ctx context.Context, caller common.Address, p adapter.InitParams) (domain.QuestionID, error) {
	id := domain.DeriveQuestionID(p.AncillaryData)
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return domain.QuestionID{}, err
	}
	defer unlock()

	id, err = s.adapter.Initialize(ctx, caller, p)
	if err != nil {
		return domain.QuestionID{}, err
	}

	s.record(ctx, domain.EventQuestionInitialized, domain.LifecycleEvent{
		Type:       domain.EventQuestionInitialized,
		QuestionID: id,
		At:         s.clock.Now(),
	}, domain.ChannelQuestions, map[string]any{
		"question_id": id.Hex(),
		"creator":     caller.Hex(),
	})
	return id, nil
}

// Update replaces a question's content and files a fresh price request.
func (s *QuestionService) Update(ctx context.Context, caller common.Address, id domain.QuestionID, p adapter.UpdateParams) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.adapter.UpdateQuestion(ctx, caller, id, p); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.record(ctx, domain.EventQuestionUpdated, domain.LifecycleEvent{
		Type:       domain.EventQuestionUpdated,
		QuestionID: id,
		At:         s.clock.Now(),
	}, domain.ChannelQuestions, map[string]any{
		"question_id": id.Hex(),
		"caller":      caller.Hex(),
	})
	return nil
}

// Get retrieves a question, checking the cache first and falling back to the
// persistent store on a miss.
func (s *QuestionService) Get(ctx context.Context, id domain.QuestionID) (domain.QuestionData, error) {
	if s.cache != nil {
		if q, err := s.cache.Get(ctx, id); err == nil {
			return q, nil
		}
	}

	q, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.QuestionData{}, domain.ErrNotFound
		}
		return domain.QuestionData{}, fmt.Errorf("question_service: get %s: %w", id.Hex(), err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, q); cacheErr != nil {
			s.logger.WarnContext(ctx, "question_service: cache set failed",
				slog.String("question_id", id.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return q, nil
}

// ListUnresolved returns unresolved questions from the persistent store.
func (s *QuestionService) ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.QuestionData, error) {
	questions, err := s.store.ListUnresolved(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("question_service: list unresolved: %w", err)
	}
	return questions, nil
}

// Count returns the total number of question records.
func (s *QuestionService) Count(ctx context.Context) (int64, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("question_service: count: %w", err)
	}
	return count, nil
}

// IsInitialized reports whether a question record exists for id.
func (s *QuestionService) IsInitialized(ctx context.Context, id domain.QuestionID) (bool, error) {
	q, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return q.Initialized(), nil
}

// IsFlagged reports whether the question is flagged for emergency resolution.
func (s *QuestionService) IsFlagged(ctx context.Context, id domain.QuestionID) (bool, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return q.Flagged(), nil
}

// IsPaused reports whether the question is administratively paused.
func (s *QuestionService) IsPaused(ctx context.Context, id domain.QuestionID) (bool, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return q.Paused, nil
}

// ReadyToResolve reports whether Resolve would currently make progress.
func (s *QuestionService) ReadyToResolve(ctx context.Context, id domain.QuestionID) (bool, error) {
	return s.adapter.ReadyToResolve(ctx, id)
}

// Resolve runs the one-step resolution flow.
func (s *QuestionService) Resolve(ctx context.Context, caller common.Address, id domain.QuestionID) (adapter.Resolution, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return adapter.Resolution{}, err
	}
	defer unlock()

	res, err := s.adapter.Resolve(ctx, caller, id)
	if err != nil {
		return adapter.Resolution{}, err
	}
	s.invalidate(ctx, id)
	s.announceResolution(ctx, id, res)
	return res, nil
}

// Settle runs the first half of the two-step flow.
func (s *QuestionService) Settle(ctx context.Context, caller common.Address, id domain.QuestionID) (adapter.Resolution, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return adapter.Resolution{}, err
	}
	defer unlock()

	res, err := s.adapter.Settle(ctx, caller, id)
	if err != nil {
		return adapter.Resolution{}, err
	}
	s.invalidate(ctx, id)

	if res.Reset {
		s.announceResolution(ctx, id, res)
		return res, nil
	}
	s.record(ctx, domain.EventQuestionSettled, domain.LifecycleEvent{
		Type:       domain.EventQuestionSettled,
		QuestionID: id,
		Price:      res.Price.String(),
		At:         s.clock.Now(),
	}, domain.ChannelQuestions, map[string]any{
		"question_id": id.Hex(),
		"price":       res.Price.String(),
	})
	return res, nil
}

// ReportPayouts runs the second half of the two-step flow.
func (s *QuestionService) ReportPayouts(ctx context.Context, caller common.Address, id domain.QuestionID) (adapter.Resolution, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return adapter.Resolution{}, err
	}
	defer unlock()

	res, err := s.adapter.ReportPayouts(ctx, caller, id)
	if err != nil {
		return adapter.Resolution{}, err
	}
	s.invalidate(ctx, id)
	s.announceResolution(ctx, id, res)
	return res, nil
}

// ExpectedPayouts previews the payout vector the current oracle price would
// produce.
func (s *QuestionService) ExpectedPayouts(ctx context.Context, id domain.QuestionID) ([2]uint64, error) {
	return s.adapter.GetExpectedPayouts(ctx, id)
}

// Flag marks a question for emergency resolution after the safety period.
func (s *QuestionService) Flag(ctx context.Context, caller common.Address, id domain.QuestionID) error {
	return s.adminOp(ctx, caller, id, domain.EventQuestionFlagged, func() error {
		return s.adapter.Flag(ctx, caller, id)
	})
}

// Unflag withdraws an emergency flag before the safety period elapses.
func (s *QuestionService) Unflag(ctx context.Context, caller common.Address, id domain.QuestionID) error {
	return s.adminOp(ctx, caller, id, domain.EventQuestionUnflagged, func() error {
		return s.adapter.Unflag(ctx, caller, id)
	})
}

// Pause blocks resolution of a question.
func (s *QuestionService) Pause(ctx context.Context, caller common.Address, id domain.QuestionID) error {
	return s.adminOp(ctx, caller, id, domain.EventQuestionPaused, func() error {
		return s.adapter.Pause(ctx, caller, id)
	})
}

// Unpause lifts a pause.
func (s *QuestionService) Unpause(ctx context.Context, caller common.Address, id domain.QuestionID) error {
	return s.adminOp(ctx, caller, id, domain.EventQuestionUnpaused, func() error {
		return s.adapter.Unpause(ctx, caller, id)
	})
}

// EmergencyResolve forces a terminal payout after the safety period.
func (s *QuestionService) EmergencyResolve(ctx context.Context, caller common.Address, id domain.QuestionID, payouts []uint64) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.adapter.EmergencyResolve(ctx, caller, id, payouts); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.record(ctx, domain.EventEmergencyResolved, domain.LifecycleEvent{
		Type:       domain.EventEmergencyResolved,
		QuestionID: id,
		Payouts:    payouts,
		At:         s.clock.Now(),
	}, domain.ChannelResolutions, map[string]any{
		"question_id": id.Hex(),
		"caller":      caller.Hex(),
		"payouts":     payouts,
	})

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, domain.EventEmergencyResolved,
			"Emergency resolution",
			fmt.Sprintf("Question %s emergency-resolved by %s with payouts %v", id.Hex(), caller.Hex(), payouts),
		)
	}
	return nil
}

// HandleDispute processes an oracle dispute callback.
func (s *QuestionService) HandleDispute(ctx context.Context, oracle common.Address, timestamp int64, ancillaryData []byte) error {
	id := domain.DeriveQuestionID(ancillaryData)
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.adapter.PriceDisputed(ctx, oracle, timestamp, ancillaryData); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.record(ctx, domain.EventPriceDisputed, domain.LifecycleEvent{
		Type:             domain.EventPriceDisputed,
		QuestionID:       id,
		RequestTimestamp: timestamp,
		At:               s.clock.Now(),
	}, domain.ChannelDisputes, map[string]any{
		"question_id":        id.Hex(),
		"disputed_timestamp": timestamp,
	})

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, domain.EventPriceDisputed,
			"Price disputed",
			fmt.Sprintf("Question %s price disputed, request reset", id.Hex()),
		)
	}
	return nil
}

// IsAdmin reports whether principal is in the admin set.
func (s *QuestionService) IsAdmin(principal common.Address) bool {
	return s.adapter.IsAdmin(principal)
}

// Rely adds principal to the admin set.
func (s *QuestionService) Rely(ctx context.Context, caller, principal common.Address) error {
	if err := s.adapter.Rely(caller, principal); err != nil {
		return err
	}
	s.auditLog(ctx, "admin_relied", map[string]any{
		"caller":    caller.Hex(),
		"principal": principal.Hex(),
	})
	return nil
}

// Deny removes principal from the admin set.
func (s *QuestionService) Deny(ctx context.Context, caller, principal common.Address) error {
	if err := s.adapter.Deny(caller, principal); err != nil {
		return err
	}
	s.auditLog(ctx, "admin_denied", map[string]any{
		"caller":    caller.Hex(),
		"principal": principal.Hex(),
	})
	return nil
}

// AuditTrail returns recent audit entries.
func (s *QuestionService) AuditTrail(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.List(ctx, opts)
}

// adminOp wraps a question-scoped admin mutation with locking, cache
// invalidation, and event fan-out.
func (s *QuestionService) adminOp(ctx context.Context, caller common.Address, id domain.QuestionID, event string, op func() error) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := op(); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.record(ctx, event, domain.LifecycleEvent{
		Type:       event,
		QuestionID: id,
		At:         s.clock.Now(),
	}, domain.ChannelQuestions, map[string]any{
		"question_id": id.Hex(),
		"caller":      caller.Hex(),
	})
	return nil
}

// announceResolution publishes the outcome of a resolve/settle/report call.
func (s *QuestionService) announceResolution(ctx context.Context, id domain.QuestionID, res adapter.Resolution) {
	if res.Reset {
		s.record(ctx, domain.EventQuestionReset, domain.LifecycleEvent{
			Type:       domain.EventQuestionReset,
			QuestionID: id,
			At:         s.clock.Now(),
		}, domain.ChannelQuestions, map[string]any{
			"question_id": id.Hex(),
		})
		return
	}
	if !res.Resolved {
		return
	}

	s.record(ctx, domain.EventQuestionResolved, domain.LifecycleEvent{
		Type:       domain.EventQuestionResolved,
		QuestionID: id,
		Price:      res.Price.String(),
		Payouts:    res.Payouts[:],
		At:         s.clock.Now(),
	}, domain.ChannelResolutions, map[string]any{
		"question_id": id.Hex(),
		"price":       res.Price.String(),
		"payouts":     res.Payouts[:],
	})

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, domain.EventQuestionResolved,
			"Question resolved",
			fmt.Sprintf("Question %s resolved with payouts %v", id.Hex(), res.Payouts),
		)
	}
}

// lock acquires the distributed per-question lock. Without a lock manager
// the adapter's in-process guard is the only serialization.
func (s *QuestionService) lock(ctx context.Context, id domain.QuestionID) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "question:"+id.Hex(), lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, domain.ErrLockHeld
		}
		return nil, fmt.Errorf("question_service: acquire lock: %w", err)
	}
	return unlock, nil
}

func (s *QuestionService) invalidate(ctx context.Context, id domain.QuestionID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "question_service: cache invalidate failed",
			slog.String("question_id", id.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// record writes the audit row and publishes the lifecycle event. Both are
// best-effort: the state transition already committed.
func (s *QuestionService) record(ctx context.Context, event string, ev domain.LifecycleEvent, channel string, detail map[string]any) {
	s.auditLog(ctx, event, detail)

	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "question_service: marshal event",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "question_service: publish event failed",
			slog.String("event", event),
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *QuestionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "question_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
