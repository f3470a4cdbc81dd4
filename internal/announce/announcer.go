// Package announce fans engine events out to the event bus, the audit log and
// operator notifications.
package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

const (
	// ChannelPrefix is prepended to the event name to form the pub/sub channel.
	ChannelPrefix = "exitengine:"
	// Stream is the durable stream every event is appended to.
	Stream = "exitengine:events"
)

// Alerter delivers a human-readable notification for an event type.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Announcer publishes domain events. Delivery failures are logged and never
// returned: announcing happens after state is committed and must not undo it.
type Announcer struct {
	bus     domain.SignalBus
	audit   domain.AuditStore
	alerter Alerter
	dedup   *Dedup
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Announcer. Any of bus, audit and alerter may be nil.
func New(bus domain.SignalBus, audit domain.AuditStore, alerter Alerter, alertTTL time.Duration, logger *slog.Logger) *Announcer {
	return &Announcer{
		bus:     bus,
		audit:   audit,
		alerter: alerter,
		dedup:   NewDedup(alertTTL),
		logger:  logger.With(slog.String("component", "announcer")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Announce publishes evt. ID and OccurredAt are filled in when empty.
func (a *Announcer) Announce(ctx context.Context, evt domain.Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = a.now()
	}
	log := a.logger.With(
		slog.String("event", evt.Name),
		slog.String("entity_id", evt.EntityID),
	)

	payload, err := json.Marshal(evt)
	if err != nil {
		log.ErrorContext(ctx, "marshal event failed", slog.String("error", err.Error()))
		return
	}

	if a.bus != nil {
		if err := a.bus.Publish(ctx, ChannelPrefix+evt.Name, payload); err != nil {
			log.WarnContext(ctx, "publish event failed", slog.String("error", err.Error()))
		}
		if err := a.bus.StreamAppend(ctx, Stream, payload); err != nil {
			log.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
		}
	}

	if a.audit != nil {
		detail := make(map[string]any, len(evt.Payload)+3)
		for k, v := range evt.Payload {
			detail[k] = v
		}
		detail["event_id"] = evt.ID
		detail["entity_id"] = evt.EntityID
		detail["kind"] = string(evt.Kind)
		if err := a.audit.Log(ctx, evt.Name, detail); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	a.notify(ctx, evt, log)

	switch evt.Kind {
	case domain.EventKindAlert:
		log.WarnContext(ctx, "alert announced")
	default:
		log.InfoContext(ctx, "event announced", slog.String("kind", string(evt.Kind)))
	}
}

// notify forwards trigger and alert events to operators. Repeated alerts for
// the same entity are suppressed for the dedup window; a trigger on the
// entity clears its suppression.
func (a *Announcer) notify(ctx context.Context, evt domain.Event, log *slog.Logger) {
	if a.alerter == nil || evt.Kind == domain.EventKindState {
		return
	}
	key := evt.Name + ":" + evt.EntityID
	if evt.Kind == domain.EventKindAlert {
		if a.dedup.IsDuplicate(key) {
			log.DebugContext(ctx, "alert suppressed")
			return
		}
	} else {
		a.dedup.Forget(failureName(evt.Name) + ":" + evt.EntityID)
	}

	if err := a.alerter.Notify(ctx, evt.Name, Title(evt), Message(evt)); err != nil {
		log.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}

// Cleanup expires old alert suppression entries.
func (a *Announcer) Cleanup() {
	a.dedup.Cleanup()
}

// Title renders a short notification title for evt.
func Title(evt domain.Event) string {
	if evt.Kind == domain.EventKindAlert {
		return "ALERT " + evt.Name
	}
	return evt.Name
}

// Message renders the event payload as sorted key=value lines.
func Message(evt domain.Event) string {
	keys := make([]string, 0, len(evt.Payload))
	for k := range evt.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "entity=%s", evt.EntityID)
	if evt.UserID != "" {
		fmt.Fprintf(&b, "\nuser=%s", evt.UserID)
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s=%v", k, evt.Payload[k])
	}
	return b.String()
}

func failureName(name string) string {
	switch name {
	case domain.EventStopLossHit:
		return domain.EventStopLossFailed
	case domain.EventTakeProfitHit, domain.EventTakeProfitLevelHit:
		return domain.EventTakeProfitFailed
	case domain.EventPositionClosed:
		return domain.EventPositionCloseFailed
	default:
		return domain.EventAdvancedOrderFailed
	}
}
