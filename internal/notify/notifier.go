// Package notify delivers operator notifications for engine events to chat
// webhooks. Events can be filtered by name or by "prefix.*" pattern.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender in parallel. A slow or failing channel
// never blocks delivery to the others.
type Notifier struct {
	senders []Sender
	exact   map[string]bool
	prefix  []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. events lists the event names to forward;
// an entry ending in ".*" matches every event under that prefix. An empty
// list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		exact:   make(map[string]bool, len(events)),
		timeout: 10 * time.Second,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case strings.HasSuffix(e, ".*"):
			n.prefix = append(n.prefix, strings.TrimSuffix(e, "*"))
		default:
			n.exact[e] = true
		}
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Allows reports whether event passes the configured filter.
func (n *Notifier) Allows(event string) bool {
	if len(n.exact) == 0 && len(n.prefix) == 0 {
		return true
	}
	if n.exact[event] {
		return true
	}
	for _, p := range n.prefix {
		if strings.HasPrefix(event, p) {
			return true
		}
	}
	return false
}

// Notify forwards the message when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll bypasses the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	errs := make([]error, len(n.senders))
	var g errgroup.Group
	for i, s := range n.senders {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, n.timeout)
			defer cancel()
			if err := s.Send(sctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "sender failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				return nil
			}
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
