// Package notify delivers operator alerts for the odds pipeline: line
// movements, arbitrage windows, blocked scraping sessions, and failed sync
// cycles. Each alert is rendered once and fanned out to every configured
// channel, with an allow-list deciding which event kinds go out at all.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/strikeodds/strikebot/internal/domain"
	"github.com/strikeodds/strikebot/internal/identity"
)

// Event kinds the pipeline emits. The notifier's allow-list filters on these.
const (
	EventSessionBlocked = "session_blocked"
	EventNoCapacity     = "no_capacity"
	EventMovementAlert  = "movement_alert"
	EventOpportunity    = "arb_opportunity"
	EventSyncFailed     = "sync_failed"
)

// Sender delivers one rendered alert over a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs and combined errors.
	Name() string
}

// Notifier fans alerts out to its senders. Notify consults the allow-list;
// NotifyAll bypasses it.
type Notifier struct {
	senders []Sender
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier builds a Notifier over the given senders. An empty events list
// allows every kind.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert when its event kind is on the allow-list.
// A filtered event is not an error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 {
		if _, ok := n.allowed[event]; !ok {
			n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
			return nil
		}
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers the alert to every sender regardless of event kind.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every channel even when one fails, then returns the
// joined per-sender errors.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("notify %s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}

// FormatPoolEvent renders an identity-pool event for delivery. The bool is
// false for event kinds that are not operator-facing.
func FormatPoolEvent(ev identity.Event) (event, title, message string, ok bool) {
	switch ev.Kind {
	case identity.EventSessionBlocked:
		return EventSessionBlocked,
			"Session blocked",
			fmt.Sprintf("source %s: session %s blocked (%s)", ev.SourceID, ev.SessionID, ev.Reason),
			true
	case identity.EventPoolExhausted:
		return EventNoCapacity,
			"No capacity",
			fmt.Sprintf("source %s: every session is blocked, rotate proxies or reset the pool", ev.SourceID),
			true
	default:
		return "", "", "", false
	}
}

// FormatMovementAlert renders a movement alert for delivery.
func FormatMovementAlert(alert domain.MovementAlert) (event, title, message string) {
	return EventMovementAlert,
		fmt.Sprintf("Line movement: %s", alert.Movement),
		fmt.Sprintf("%s @ %s moved %+.1f%% (%d/%d -> %d/%d)",
			alert.FightID, alert.Sportsbook, alert.PercentChange,
			alert.Previous.Moneyline.Fighter1, alert.Previous.Moneyline.Fighter2,
			alert.Current.Moneyline.Fighter1, alert.Current.Moneyline.Fighter2)
}

// FormatOpportunity renders an arbitrage opportunity for delivery.
func FormatOpportunity(opp domain.ArbitrageOpportunity) (event, title, message string) {
	var legs []string
	for _, l := range opp.Legs {
		legs = append(legs, fmt.Sprintf("%s %s %+d (stake %s)", l.Sportsbook, l.Selection, l.Odds, l.Stake))
	}
	return EventOpportunity,
		fmt.Sprintf("Arbitrage %.2f%% (%s, %s confidence)", opp.ProfitMargin, opp.Type, opp.Confidence),
		fmt.Sprintf("%s: %s (expires %s)",
			opp.FightID, strings.Join(legs, "; "), opp.ExpiresAt.Format("15:04:05 MST"))
}

// FormatSyncFailure renders a cycle-level sync failure for delivery.
func FormatSyncFailure(sourceID string, err error) (event, title, message string) {
	return EventSyncFailed,
		"Sync cycle failed",
		fmt.Sprintf("source %s: %v", sourceID, err)
}
