// Package notify delivers operator alerts for question lifecycle events.
// Alerts fan out to every configured channel (Telegram, Discord) and are
// filtered by event name so operators can subscribe to, say, disputes and
// emergency resolutions without being paged for routine settlements.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is a single delivery channel.
type Sender interface {
	// Send delivers one alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Notifier fans alerts out to its senders, skipping events the operator has
// not subscribed to. An empty subscription list means every event is
// delivered.
type Notifier struct {
	senders    []Sender
	subscribed map[string]bool
	logger     *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. The events
// slice names the lifecycle events to forward; empty forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	subscribed := make(map[string]bool, len(events))
	for _, e := range events {
		subscribed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders:    senders,
		subscribed: subscribed,
		logger:     logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to every sender if the event is subscribed.
// Individual sender failures are logged and joined into the returned error;
// one failing channel never blocks the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.subscribed) > 0 && !n.subscribed[event] {
		n.logger.DebugContext(ctx, "event not subscribed",
			slog.String("event", event),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
