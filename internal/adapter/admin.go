package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// Flag marks a question as eligible for emergency resolution after the
// configured safety period elapses. Flagging implies pausing.
func (a *Adapter) Flag(ctx context.Context, caller common.Address, id domain.QuestionID) error {
	if !a.auth.Authorized(caller) {
		return domain.ErrNotAuthorized
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
	if q.Flagged() {
		return domain.ErrAlreadyFlagged
	}

	now := a.clock.Now()
	q.EmergencyResolutionTimestamp = now.Add(a.cfg.EmergencySafetyPeriod).Unix()
	q.Paused = true
	q.UpdatedAt = now
	if err := a.store.Update(ctx, q); err != nil {
		return fmt.Errorf("adapter: persist flag: %w", err)
	}

	a.logger.InfoContext(ctx, "adapter: question flagged",
		slog.String("question_id", id.Hex()),
		slog.Int64("emergency_resolution_timestamp", q.EmergencyResolutionTimestamp),
	)
	return nil
}

// Unflag withdraws an emergency flag. Only permitted before the safety
// window elapses; afterwards the flag is taken as commitment to override.
func (a *Adapter) Unflag(ctx context.Context, caller common.Address, id domain.QuestionID) error {
	if !a.auth.Authorized(caller) {
		return domain.ErrNotAuthorized
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
	if !q.Flagged() {
		return domain.ErrNotFlagged
	}
	if a.clock.Now().Unix() >= q.EmergencyResolutionTimestamp {
		return domain.ErrSafetyPeriodPassed
	}

	q.EmergencyResolutionTimestamp = 0
	q.Paused = false
	q.UpdatedAt = a.clock.Now()
	if err := a.store.Update(ctx, q); err != nil {
		return fmt.Errorf("adapter: persist unflag: %w", err)
	}

	a.logger.InfoContext(ctx, "adapter: question unflagged",
		slog.String("question_id", id.Hex()),
	)
	return nil
}

// EmergencyResolve forces a terminal payout independent of oracle state. It
// requires the question to have been flagged and the safety period to have
// passed. The payout vector must be one of YES, NO, or the 50/50 split;
// arbitrary vectors are rejected.
func (a *Adapter) EmergencyResolve(ctx context.Context, caller common.Address, id domain.QuestionID, payouts []uint64) error {
	if !a.auth.Authorized(caller) {
		return domain.ErrNotAuthorized
	}
	if !domain.ValidPayouts(payouts) {
		return domain.ErrInvalidPayouts
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
	if !q.Flagged() {
		return domain.ErrNotFlagged
	}
	now := a.clock.Now()
	if now.Unix() < q.EmergencyResolutionTimestamp {
		return domain.ErrSafetyPeriodNotPassed
	}

	// Report first so a settlement failure leaves the question retriable.
	if err := a.settlement.ReportPayouts(ctx, id, payouts); err != nil {
		return fmt.Errorf("adapter: report payouts: %w", err)
	}

	q.Resolved = true
	q.Payouts = append([]uint64(nil), payouts...)
	q.UpdatedAt = now
	if err := a.store.Update(ctx, q); err != nil {
		return fmt.Errorf("adapter: persist emergency resolution: %w", err)
	}

	a.logger.WarnContext(ctx, "adapter: question emergency resolved",
		slog.String("question_id", id.Hex()),
		slog.String("caller", caller.Hex()),
		slog.Any("payouts", payouts),
	)
	return nil
}

// Pause blocks Resolve, Settle, and ReportPayouts on the question; it never
// blocks EmergencyResolve.
func (a *Adapter) Pause(ctx context.Context, caller common.Address, id domain.QuestionID) error {
	return a.setPaused(ctx, caller, id, true)
}

// Unpause lifts a pause.
func (a *Adapter) Unpause(ctx context.Context, caller common.Address, id domain.QuestionID) error {
	return a.setPaused(ctx, caller, id, false)
}

func (a *Adapter) setPaused(ctx context.Context, caller common.Address, id domain.QuestionID, paused bool) error {
	if !a.auth.Authorized(caller) {
		return domain.ErrNotAuthorized
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
	if q.Paused == paused {
		if paused {
			return domain.ErrPaused
		}
		return domain.ErrNotPaused
	}

	q.Paused = paused
	q.UpdatedAt = a.clock.Now()
	if err := a.store.Update(ctx, q); err != nil {
		return fmt.Errorf("adapter: persist pause state: %w", err)
	}

	a.logger.InfoContext(ctx, "adapter: pause state changed",
		slog.String("question_id", id.Hex()),
		slog.Bool("paused", paused),
	)
	return nil
}
