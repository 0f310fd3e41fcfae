package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iridium40/roam-services-sub004/internal/dispatch"
	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/internal/history"
	"github.com/Iridium40/roam-services-sub004/internal/prefs"
	"github.com/Iridium40/roam-services-sub004/internal/registry"
)

type fakeSender struct {
	name    string
	channel prefs.Channel
	err     error
	calls   chan history.Notification
}

func newFakeSender(name string, channel prefs.Channel, err error) *fakeSender {
	return &fakeSender{name: name, channel: channel, err: err, calls: make(chan history.Notification, 16)}
}

func (s *fakeSender) Name() string           { return s.name }
func (s *fakeSender) Channel() prefs.Channel { return s.channel }

func (s *fakeSender) Send(_ context.Context, notif history.Notification, _ event.DomainEvent) error {
	s.calls <- notif
	return s.err
}

func bookingEvent(newStatus string) event.DomainEvent {
	return event.DomainEvent{
		ID:            uuid.New(),
		Kind:          event.KindBookingStatusChanged,
		SubjectID:     "bk-1",
		OccurredAt:    time.Now(),
		PreviousState: "pending",
		NewState:      newStatus,
		Actor:         "dispatcher-1",
		Payload: event.Payload{
			BookingID:      "bk-1",
			ServiceName:    "Deep Clean",
			CustomerID:     "cust-1",
			ProviderID:     "prov-1",
			NotifyCustomer: true,
			NotifyProvider: true,
		},
	}
}

func openChannel(t *testing.T, reg *registry.Registry[history.Notification], subscriberID string, role event.Role) *registry.Channel[history.Notification] {
	t.Helper()
	ch := registry.NewChannel[history.Notification](subscriberID, role, 16)
	reg.Register(subscriberID, ch)
	require.NoError(t, ch.Open())
	return ch
}

func TestDispatcher_BookingStatusChanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := registry.New[history.Notification]()
	store := history.NewMemoryStore(0)
	d := dispatch.New(reg, store, prefs.NewMemoryStore())

	// Customer is connected, provider is offline.
	custCh := openChannel(t, reg, "cust-1", event.RoleCustomer)

	sent, err := d.Dispatch(ctx, bookingEvent("confirmed"))
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	t.Run("customer receives live push", func(t *testing.T) {
		select {
		case notif := <-custCh.Receive():
			assert.Equal(t, "Your booking status has been updated to: confirmed", notif.Message)
			assert.Equal(t, event.RoleCustomer, notif.Role)
			assert.Equal(t, "bk-1", notif.Data["subjectId"])
		default:
			t.Fatal("expected a pushed notification on the customer channel")
		}
	})

	t.Run("provider gets history only", func(t *testing.T) {
		got, err := store.List(ctx, "prov-1", history.ListOptions{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Booking status updated to: confirmed", got[0].Message)
		assert.False(t, got[0].Read)
	})

	t.Run("customer history matches the push", func(t *testing.T) {
		got, err := store.List(ctx, "cust-1", history.ListOptions{})
		require.NoError(t, err)
		require.Len(t, got, 1)
	})
}

func TestDispatcher_NotifyFlags(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := history.NewMemoryStore(0)
	d := dispatch.New(registry.New[history.Notification](), store, prefs.NewMemoryStore())

	ev := bookingEvent("completed")
	ev.Payload.NotifyProvider = false

	sent, err := d.Dispatch(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	got, err := store.List(ctx, "prov-1", history.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDispatcher_PreferenceGate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := history.NewMemoryStore(0)
	gate := prefs.NewMemoryStore()
	require.NoError(t, gate.Set(ctx, "cust-1", prefs.Preferences{Email: true, SMS: true, Push: true, InApp: false}))

	d := dispatch.New(registry.New[history.Notification](), store, gate)

	sent, err := d.Dispatch(ctx, bookingEvent("confirmed"))
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "only the provider should be notified")

	got, err := store.List(ctx, "cust-1", history.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, got, "opted-out subscriber must not accumulate history")
}

func TestDispatcher_NewMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := registry.New[history.Notification]()
	store := history.NewMemoryStore(0)
	d := dispatch.New(reg, store, prefs.NewMemoryStore())

	recipCh := openChannel(t, reg, "cust-1", event.RoleCustomer)

	body := strings.Repeat("x", 200)
	ev := event.DomainEvent{
		ID:         uuid.New(),
		Kind:       event.KindNewMessage,
		SubjectID:  "conv-1",
		OccurredAt: time.Now(),
		Actor:      "prov-1",
		Payload: event.Payload{
			SenderID:    "prov-1",
			MessageBody: body,
			Participants: []event.Participant{
				{SubscriberID: "prov-1", Role: event.RoleProvider},
				{SubscriberID: "cust-1", Role: event.RoleCustomer},
			},
		},
	}

	sent, err := d.Dispatch(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "sender must be excluded from recipients")

	select {
	case notif := <-recipCh.Receive():
		assert.Len(t, notif.Message, 123, "body should be truncated with ellipsis")
		assert.True(t, strings.HasSuffix(notif.Message, "..."))
	default:
		t.Fatal("expected a pushed notification")
	}
}

func TestDispatcher_NewMessageMultibyteTruncation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := registry.New[history.Notification]()
	d := dispatch.New(reg, history.NewMemoryStore(0), prefs.NewMemoryStore())

	recipCh := openChannel(t, reg, "cust-1", event.RoleCustomer)

	// A rune straddling the preview limit must not be split mid-byte.
	body := strings.Repeat("x", 119) + "éé"
	ev := event.DomainEvent{
		ID:         uuid.New(),
		Kind:       event.KindNewMessage,
		SubjectID:  "conv-1",
		OccurredAt: time.Now(),
		Actor:      "prov-1",
		Payload: event.Payload{
			SenderID:    "prov-1",
			MessageBody: body,
			Participants: []event.Participant{
				{SubscriberID: "prov-1", Role: event.RoleProvider},
				{SubscriberID: "cust-1", Role: event.RoleCustomer},
			},
		},
	}

	sent, err := d.Dispatch(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	select {
	case notif := <-recipCh.Receive():
		assert.True(t, utf8.ValidString(notif.Message), "truncated preview must stay valid UTF-8")
		assert.Equal(t, strings.Repeat("x", 119)+"...", notif.Message)
	default:
		t.Fatal("expected a pushed notification")
	}
}

func TestDispatcher_MalformedEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := dispatch.New(registry.New[history.Notification](), history.NewMemoryStore(0), prefs.NewMemoryStore())

	t.Run("unknown kind", func(t *testing.T) {
		_, err := d.Dispatch(ctx, event.DomainEvent{ID: uuid.New(), Kind: "telepathy"})
		require.ErrorIs(t, err, event.ErrMalformedEvent)
	})

	t.Run("no resolvable subscribers", func(t *testing.T) {
		ev := bookingEvent("confirmed")
		ev.Payload.CustomerID = ""
		ev.Payload.ProviderID = ""

		_, err := d.Dispatch(ctx, ev)
		require.ErrorIs(t, err, event.ErrMalformedEvent)
	})

	t.Run("message event without recipients", func(t *testing.T) {
		ev := event.DomainEvent{
			ID:   uuid.New(),
			Kind: event.KindNewMessage,
			Payload: event.Payload{
				SenderID:     "u1",
				Participants: []event.Participant{{SubscriberID: "u1", Role: event.RoleCustomer}},
			},
		}
		_, err := d.Dispatch(ctx, ev)
		require.ErrorIs(t, err, event.ErrMalformedEvent)
	})
}

func TestDispatcher_SideChannelIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := registry.New[history.Notification]()
	store := history.NewMemoryStore(0)
	failing := newFakeSender("email", prefs.ChannelEmail, errors.New("smtp down"))

	d := dispatch.New(reg, store, prefs.NewMemoryStore(), dispatch.WithSender(failing))

	custCh := openChannel(t, reg, "cust-1", event.RoleCustomer)

	sent, err := d.Dispatch(ctx, bookingEvent("confirmed"))
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	// Failing side channel must not suppress the push or the history entry.
	select {
	case <-custCh.Receive():
	default:
		t.Fatal("expected a pushed notification despite side-channel failure")
	}

	got, err := store.List(ctx, "cust-1", history.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Both recipients were opted in, so the sender fires twice.
	for i := 0; i < 2; i++ {
		select {
		case <-failing.calls:
		case <-time.After(time.Second):
			t.Fatal("side-channel sender was not invoked")
		}
	}
}

func TestDispatcher_SideChannelPreference(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate := prefs.NewMemoryStore()
	require.NoError(t, gate.Set(ctx, "cust-1", prefs.Preferences{Email: false, SMS: true, Push: true, InApp: true}))
	require.NoError(t, gate.Set(ctx, "prov-1", prefs.Preferences{Email: false, SMS: true, Push: true, InApp: true}))

	email := newFakeSender("email", prefs.ChannelEmail, nil)
	chat := newFakeSender("chat", prefs.ChannelSMS, nil)

	d := dispatch.New(registry.New[history.Notification](), history.NewMemoryStore(0), gate,
		dispatch.WithSender(email), dispatch.WithSender(chat))

	sent, err := d.Dispatch(ctx, bookingEvent("confirmed"))
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	for i := 0; i < 2; i++ {
		select {
		case <-chat.calls:
		case <-time.After(time.Second):
			t.Fatal("opted-in sender was not invoked")
		}
	}
	select {
	case <-email.calls:
		t.Fatal("opted-out sender must not be invoked")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcher_DeadChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := registry.New[history.Notification]()
	store := history.NewMemoryStore(0)
	d := dispatch.New(reg, store, prefs.NewMemoryStore())

	ch := openChannel(t, reg, "cust-1", event.RoleCustomer)
	ch.Close()

	sent, err := d.Dispatch(ctx, bookingEvent("confirmed"))
	require.NoError(t, err)
	assert.Equal(t, 2, sent, "dead channel still counts as a created notification")

	got, err := store.List(ctx, "cust-1", history.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 1, "history retained even when the push fails")
}

func TestDispatcher_MirrorFailureIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := history.NewMemoryStore(0)
	d := dispatch.New(registry.New[history.Notification](), store, prefs.NewMemoryStore(),
		dispatch.WithMirror(failingStore{}))

	sent, err := d.Dispatch(ctx, bookingEvent("confirmed"))
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

type failingStore struct{}

func (failingStore) Add(context.Context, history.Notification) error { return errors.New("db down") }
func (failingStore) List(context.Context, string, history.ListOptions) ([]history.Notification, error) {
	return nil, errors.New("db down")
}
func (failingStore) MarkRead(context.Context, string, uuid.UUID) error { return errors.New("db down") }
func (failingStore) MarkAllRead(context.Context, string) error         { return errors.New("db down") }
func (failingStore) CountUnread(context.Context, string) (int, error) {
	return 0, errors.New("db down")
}
