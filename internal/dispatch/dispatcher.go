package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/internal/history"
	"github.com/Iridium40/roam-services-sub004/internal/prefs"
	"github.com/Iridium40/roam-services-sub004/internal/registry"
	"github.com/Iridium40/roam-services-sub004/pkg/logger"
)

// Sender delivers a notification over a side channel (email, chat ping).
// Sends are best-effort: a failing sender never affects the push path.
type Sender interface {
	Name() string
	Channel() prefs.Channel
	Send(ctx context.Context, notif history.Notification, ev event.DomainEvent) error
}

// Dispatcher fans a domain event out to every interested subscriber:
// preference check, history append, live-channel push, side-channel sends.
type Dispatcher struct {
	registry *registry.Registry[history.Notification]
	store    history.Store
	gate     prefs.Store

	mirror      history.Store
	senders     []Sender
	sideTimeout time.Duration
	log         *slog.Logger

	mu sync.Mutex // serializes dispatch so per-event push order is stable
}

type Option func(*Dispatcher)

func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithMirror adds a durable store that receives a best-effort copy of every
// notification. Mirror failures are logged and never affect dispatch.
func WithMirror(mirror history.Store) Option {
	return func(d *Dispatcher) { d.mirror = mirror }
}

// WithSender attaches a side-channel sender. May be given multiple times.
func WithSender(s Sender) Option {
	return func(d *Dispatcher) { d.senders = append(d.senders, s) }
}

// WithSideChannelTimeout bounds each asynchronous side-channel send.
func WithSideChannelTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sideTimeout = timeout
		}
	}
}

func New(reg *registry.Registry[history.Notification], store history.Store, gate prefs.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    reg,
		store:       store,
		gate:        gate,
		sideTimeout: 15 * time.Second,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves the subscribers interested in ev and delivers to each:
// append to their retained history, push to their live channel if one is
// open, and trigger any opted-in side channels. Per-subscriber failures are
// contained; the only fatal condition is a payload that cannot be resolved.
// Returns the number of notifications created.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.DomainEvent) (int, error) {
	strat, ok := strategies[ev.Kind]
	if !ok {
		return 0, fmt.Errorf("%w: unknown kind %q", event.ErrMalformedEvent, ev.Kind)
	}

	recipients, err := strat.resolve(ev)
	if err != nil {
		return 0, errors.Join(event.ErrMalformedEvent, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	sent := 0
	for _, r := range recipients {
		p, err := d.gate.Get(ctx, r.SubscriberID)
		if err != nil {
			d.log.WarnContext(ctx, "preference lookup failed, using defaults",
				logger.SubscriberID(r.SubscriberID), logger.Error(err))
			p = prefs.DefaultPreferences()
		}
		if !p.Enabled(prefs.ChannelInApp) {
			d.log.DebugContext(ctx, "subscriber opted out of in-app notifications",
				logger.SubscriberID(r.SubscriberID), logger.EventID(ev.ID.String()))
			continue
		}

		notif := history.Notification{
			ID:           uuid.New(),
			SubscriberID: r.SubscriberID,
			Role:         r.Role,
			Kind:         ev.Kind,
			Message:      strat.message(ev, r),
			Data:         notificationData(ev),
			CreatedAt:    time.Now(),
		}

		if err := d.store.Add(ctx, notif); err != nil {
			d.log.ErrorContext(ctx, "failed to retain notification",
				logger.SubscriberID(r.SubscriberID), logger.NotificationID(notif.ID.String()), logger.Error(err))
		}
		sent++

		if d.mirror != nil {
			d.mirrorAsync(notif)
		}

		d.push(ctx, notif)
		d.sendSideChannels(p, notif, ev)
	}

	d.log.InfoContext(ctx, "event dispatched",
		logger.EventID(ev.ID.String()),
		slog.String("kind", string(ev.Kind)),
		logger.SubjectID(ev.SubjectID),
		slog.Int("notifications", sent),
	)
	return sent, nil
}

// push writes the notification to the subscriber's live channel, if any.
// A closed or saturated channel counts as no live channel.
func (d *Dispatcher) push(ctx context.Context, notif history.Notification) {
	ch, ok := d.registry.Lookup(notif.SubscriberID)
	if !ok {
		return
	}
	if err := ch.Push(notif); err != nil {
		d.registry.Unregister(notif.SubscriberID, ch.ID())
		d.log.DebugContext(ctx, "channel dropped during push",
			logger.SubscriberID(notif.SubscriberID), logger.ChannelID(ch.ID().String()), logger.Error(err))
	}
}

func (d *Dispatcher) mirrorAsync(notif history.Notification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.sideTimeout)
		defer cancel()
		if err := d.mirror.Add(ctx, notif); err != nil {
			d.log.WarnContext(ctx, "failed to mirror notification",
				logger.NotificationID(notif.ID.String()), logger.Error(err))
		}
	}()
}

// sendSideChannels triggers every opted-in sender asynchronously. Failures
// are logged and isolated from the push path.
func (d *Dispatcher) sendSideChannels(p prefs.Preferences, notif history.Notification, ev event.DomainEvent) {
	for _, s := range d.senders {
		if !p.Enabled(s.Channel()) {
			continue
		}
		go func(s Sender) {
			ctx, cancel := context.WithTimeout(context.Background(), d.sideTimeout)
			defer cancel()
			if err := s.Send(ctx, notif, ev); err != nil {
				d.log.WarnContext(ctx, "side-channel send failed",
					slog.String("sender", s.Name()),
					logger.SubscriberID(notif.SubscriberID),
					logger.NotificationID(notif.ID.String()),
					logger.Error(err),
				)
			}
		}(s)
	}
}
