package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
	"github.com/outcomebridge/ooadapter/internal/platform/ethereum"
	"github.com/outcomebridge/ooadapter/internal/platform/local"
)

// Dispute is a source-agnostic dispute notification: a proposed price for one
// of our oracle requests was challenged and the request must be re-filed.
type Dispute struct {
	Oracle        common.Address
	Timestamp     int64
	AncillaryData []byte
}

// DisputeHandler processes a single dispute callback.
type DisputeHandler interface {
	HandleDispute(ctx context.Context, oracle common.Address, timestamp int64, ancillaryData []byte) error
}

// DisputeListener consumes a dispute feed and dispatches each notification to
// the handler. One listener per oracle subscription.
type DisputeListener struct {
	feed    <-chan Dispute
	handler DisputeHandler
	logger  *slog.Logger
}

// NewDisputeListener creates a new DisputeListener.
func NewDisputeListener(feed <-chan Dispute, handler DisputeHandler, logger *slog.Logger) *DisputeListener {
	return &DisputeListener{
		feed:    feed,
		handler: handler,
		logger:  logger,
	}
}

// Run dispatches disputes until the context is cancelled or the feed is
// closed. A closed feed means the underlying subscription ended, so Run
// returns nil and leaves restart policy to the caller.
func (l *DisputeListener) Run(ctx context.Context) error {
	l.logger.Info("dispute listener started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("dispute listener stopped")
			return ctx.Err()
		case d, ok := <-l.feed:
			if !ok {
				l.logger.Warn("dispute feed closed")
				return nil
			}
			l.dispatch(ctx, d)
		}
	}
}

func (l *DisputeListener) dispatch(ctx context.Context, d Dispute) {
	err := l.handler.HandleDispute(ctx, d.Oracle, d.Timestamp, d.AncillaryData)
	switch {
	case err == nil:
		l.logger.Info("dispute handled",
			slog.String("question_id", domain.DeriveQuestionID(d.AncillaryData).Hex()),
			slog.Int64("timestamp", d.Timestamp),
		)
	case errors.Is(err, domain.ErrNotInitialized):
		// A dispute on a request we never filed; nothing to reset.
		l.logger.Warn("dispute for unknown question",
			slog.String("question_id", domain.DeriveQuestionID(d.AncillaryData).Hex()),
		)
	case errors.Is(err, domain.ErrLockHeld), errors.Is(err, domain.ErrReentrancy):
		l.logger.Warn("dispute skipped, question busy",
			slog.String("question_id", domain.DeriveQuestionID(d.AncillaryData).Hex()),
		)
	default:
		l.logger.Error("dispute handling failed",
			slog.String("question_id", domain.DeriveQuestionID(d.AncillaryData).Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// BridgeOracleDisputes adapts the on-chain dispute event stream to the
// listener's feed. The returned channel closes when the source closes.
func BridgeOracleDisputes(oracle common.Address, in <-chan ethereum.DisputeEvent) <-chan Dispute {
	out := make(chan Dispute, cap(in))
	go func() {
		defer close(out)
		for ev := range in {
			out <- Dispute{
				Oracle:        oracle,
				Timestamp:     ev.Timestamp,
				AncillaryData: ev.AncillaryData,
			}
		}
	}()
	return out
}

// BridgeLocalDisputes adapts the in-process oracle's dispute feed to the
// listener's feed. The returned channel closes when the source closes.
func BridgeLocalDisputes(oracle common.Address, in <-chan local.DisputeNotice) <-chan Dispute {
	out := make(chan Dispute, cap(in))
	go func() {
		defer close(out)
		for n := range in {
			out <- Dispute{
				Oracle:        oracle,
				Timestamp:     n.Timestamp,
				AncillaryData: n.AncillaryData,
			}
		}
	}()
	return out
}
