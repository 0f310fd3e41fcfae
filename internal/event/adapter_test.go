package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iridium40/roam-services-sub004/pkg/webhook"
)

type fakeSink struct {
	mu        sync.Mutex
	events    []DomainEvent
	count     int
	err       error
	delay     time.Duration
	active    map[string]int
	maxActive map[string]int
}

func newFakeSink(count int) *fakeSink {
	return &fakeSink{
		count:     count,
		active:    make(map[string]int),
		maxActive: make(map[string]int),
	}
}

func (f *fakeSink) Dispatch(ctx context.Context, ev DomainEvent) (int, error) {
	f.mu.Lock()
	f.active[ev.SubjectID]++
	if f.active[ev.SubjectID] > f.maxActive[ev.SubjectID] {
		f.maxActive[ev.SubjectID] = f.active[ev.SubjectID]
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active[ev.SubjectID]--
	f.events = append(f.events, ev)
	f.mu.Unlock()

	return f.count, f.err
}

func (f *fakeSink) dispatched() []DomainEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DomainEvent, len(f.events))
	copy(out, f.events)
	return out
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []DomainEvent
	err    error
	called chan struct{}
}

func newFakeRecorder(err error) *fakeRecorder {
	return &fakeRecorder{err: err, called: make(chan struct{}, 8)}
}

func (f *fakeRecorder) RecordStatusChange(ctx context.Context, ev DomainEvent) error {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	f.called <- struct{}{}
	return f.err
}

func TestAdapter_ProcessStatusRequest(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }

	tests := []struct {
		name    string
		req     StatusRequest
		wantErr error
		check   func(*testing.T, DomainEvent)
	}{
		{
			name: "valid request",
			req: StatusRequest{
				SubjectID:      "bk-1",
				NewStatus:      "confirmed",
				PreviousStatus: "pending",
				Actor:          "provider-9",
				CustomerID:     "cust-1",
				ProviderID:     "prov-1",
				ServiceName:    "Deep Clean",
			},
			check: func(t *testing.T, ev DomainEvent) {
				assert.Equal(t, KindBookingStatusChanged, ev.Kind)
				assert.Equal(t, "bk-1", ev.SubjectID)
				assert.Equal(t, "pending", ev.PreviousState)
				assert.Equal(t, "confirmed", ev.NewState)
				assert.Equal(t, "provider-9", ev.Actor)
				assert.True(t, ev.Payload.NotifyCustomer)
				assert.True(t, ev.Payload.NotifyProvider)
				assert.NotEqual(t, "", ev.ID.String())
			},
		},
		{
			name: "notify flags respected",
			req: StatusRequest{
				SubjectID:      "bk-2",
				NewStatus:      "cancelled",
				Actor:          "customer-3",
				NotifyProvider: boolPtr(false),
			},
			check: func(t *testing.T, ev DomainEvent) {
				assert.True(t, ev.Payload.NotifyCustomer)
				assert.False(t, ev.Payload.NotifyProvider)
			},
		},
		{
			name:    "missing subject id",
			req:     StatusRequest{NewStatus: "confirmed", Actor: "a"},
			wantErr: ErrValidation,
		},
		{
			name:    "missing new status",
			req:     StatusRequest{SubjectID: "bk-1", Actor: "a"},
			wantErr: ErrValidation,
		},
		{
			name:    "missing actor",
			req:     StatusRequest{SubjectID: "bk-1", NewStatus: "confirmed"},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newFakeSink(2)
			adapter := New(sink, nil)

			n, err := adapter.ProcessStatusRequest(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, sink.dispatched())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 2, n)
			events := sink.dispatched()
			require.Len(t, events, 1)
			tt.check(t, events[0])
		})
	}
}

func TestAdapter_ProcessStatusRequest_UnchangedStatus(t *testing.T) {
	sink := newFakeSink(2)
	adapter := New(sink, nil)

	n, err := adapter.ProcessStatusRequest(context.Background(), StatusRequest{
		SubjectID:      "bk-1",
		NewStatus:      "confirmed",
		PreviousStatus: "confirmed",
		Actor:          "provider-9",
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sink.dispatched())
}

func TestAdapter_ProcessRowChange(t *testing.T) {
	t.Run("status change emits event", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, nil)

		n, err := adapter.ProcessRowChange(context.Background(), RowChange{
			Old: BookingRow{ID: "bk-1", Status: "pending", CustomerID: "c1", ProviderID: "p1"},
			New: BookingRow{ID: "bk-1", Status: "confirmed", CustomerID: "c1", ProviderID: "p1", UpdatedBy: "p1"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		events := sink.dispatched()
		require.Len(t, events, 1)
		assert.Equal(t, "pending", events[0].PreviousState)
		assert.Equal(t, "confirmed", events[0].NewState)
		assert.Equal(t, "p1", events[0].Actor)
	})

	t.Run("unchanged status is suppressed", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, nil)

		n, err := adapter.ProcessRowChange(context.Background(), RowChange{
			Old: BookingRow{ID: "bk-1", Status: "confirmed", ServiceName: "old name"},
			New: BookingRow{ID: "bk-1", Status: "confirmed", ServiceName: "new name"},
		})
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, sink.dispatched())
	})

	t.Run("missing row id", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, nil)

		_, err := adapter.ProcessRowChange(context.Background(), RowChange{})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestAdapter_ProcessWebhook(t *testing.T) {
	const secret = "whsec-test"
	secrets := map[string]string{"stripe": secret}

	sign := func(t *testing.T, body []byte) webhook.SignatureHeaders {
		t.Helper()
		sig, err := webhook.SignPayload(secret, body)
		require.NoError(t, err)
		return sig
	}

	t.Run("valid payment webhook", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, secrets)

		body := []byte(`{"event_type":"payment.succeeded","booking_id":"bk-1","previous_status":"pending","new_status":"paid","customer_id":"c1","amount_cents":12500}`)
		n, err := adapter.ProcessWebhook(context.Background(), "stripe", body, sign(t, body))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		events := sink.dispatched()
		require.Len(t, events, 1)
		assert.Equal(t, KindPaymentStatusChanged, events[0].Kind)
		assert.Equal(t, "bk-1", events[0].SubjectID)
		assert.Equal(t, int64(12500), events[0].Payload.AmountCents)
		assert.Equal(t, "stripe", events[0].Actor)
	})

	t.Run("verification event type routes to verification kind", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, secrets)

		body := []byte(`{"event_type":"identity.verified","subject_id":"user-7","previous_status":"pending","new_status":"verified"}`)
		_, err := adapter.ProcessWebhook(context.Background(), "stripe", body, sign(t, body))
		require.NoError(t, err)

		events := sink.dispatched()
		require.Len(t, events, 1)
		assert.Equal(t, KindVerificationStatusChanged, events[0].Kind)
	})

	t.Run("invalid signature drops event", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, secrets)

		body := []byte(`{"event_type":"payment.succeeded","booking_id":"bk-1","new_status":"paid"}`)
		sig := sign(t, body)
		sig.Signature = "deadbeef"

		_, err := adapter.ProcessWebhook(context.Background(), "stripe", body, sig)
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.Empty(t, sink.dispatched())
	})

	t.Run("unknown provider", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, secrets)

		body := []byte(`{"event_type":"payment.succeeded"}`)
		_, err := adapter.ProcessWebhook(context.Background(), "plaid", body, sign(t, body))
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})

	t.Run("unsupported event type", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, secrets)

		body := []byte(`{"event_type":"invoice.created","booking_id":"bk-1","new_status":"x"}`)
		_, err := adapter.ProcessWebhook(context.Background(), "stripe", body, sign(t, body))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("redelivered unchanged status is suppressed", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, secrets)

		body := []byte(`{"event_type":"payment.succeeded","booking_id":"bk-1","previous_status":"paid","new_status":"paid"}`)
		n, err := adapter.ProcessWebhook(context.Background(), "stripe", body, sign(t, body))
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, sink.dispatched())
	})
}

func TestAdapter_ProcessMessage(t *testing.T) {
	t.Run("valid message", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, nil)

		n, err := adapter.ProcessMessage(context.Background(), MessageEvent{
			ConversationID: "conv-1",
			SenderID:       "c1",
			Body:           "running late, be there in 10",
			Participants: []Participant{
				{SubscriberID: "c1", Role: RoleCustomer},
				{SubscriberID: "p1", Role: RoleProvider},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		events := sink.dispatched()
		require.Len(t, events, 1)
		assert.Equal(t, KindNewMessage, events[0].Kind)
		assert.Equal(t, "conv-1", events[0].SubjectID)
		assert.Equal(t, "c1", events[0].Actor)
	})

	t.Run("missing fields", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, nil)

		_, err := adapter.ProcessMessage(context.Background(), MessageEvent{ConversationID: "conv-1"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("no participants", func(t *testing.T) {
		sink := newFakeSink(1)
		adapter := New(sink, nil)

		_, err := adapter.ProcessMessage(context.Background(), MessageEvent{
			ConversationID: "conv-1",
			SenderID:       "c1",
			Body:           "hi",
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestAdapter_HistoryRecording(t *testing.T) {
	t.Run("history recorded for status changes", func(t *testing.T) {
		rec := newFakeRecorder(nil)
		adapter := New(newFakeSink(1), nil, WithHistoryRecorder(rec))

		_, err := adapter.ProcessStatusRequest(context.Background(), StatusRequest{
			SubjectID: "bk-1", NewStatus: "confirmed", Actor: "a",
		})
		require.NoError(t, err)

		select {
		case <-rec.called:
		case <-time.After(time.Second):
			t.Fatal("history recorder was not invoked")
		}
	})

	t.Run("recorder failure does not fail emission", func(t *testing.T) {
		rec := newFakeRecorder(errors.New("db down"))
		adapter := New(newFakeSink(3), nil, WithHistoryRecorder(rec))

		n, err := adapter.ProcessStatusRequest(context.Background(), StatusRequest{
			SubjectID: "bk-1", NewStatus: "confirmed", Actor: "a",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestAdapter_SerializesPerSubject(t *testing.T) {
	sink := newFakeSink(1)
	sink.delay = 10 * time.Millisecond
	adapter := New(sink, nil)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subject := "bk-a"
			if i%2 == 1 {
				subject = "bk-b"
			}
			_, _ = adapter.ProcessStatusRequest(context.Background(), StatusRequest{
				SubjectID: subject, NewStatus: "confirmed", Actor: "a",
			})
		}(i)
	}
	wg.Wait()

	assert.Len(t, sink.dispatched(), 8)
	assert.Equal(t, 1, sink.maxActive["bk-a"], "dispatches for one subject must not overlap")
	assert.Equal(t, 1, sink.maxActive["bk-b"], "dispatches for one subject must not overlap")
}

func TestAdapter_DispatchErrorPropagates(t *testing.T) {
	sink := newFakeSink(0)
	sink.err = ErrMalformedEvent
	adapter := New(sink, nil)

	_, err := adapter.ProcessStatusRequest(context.Background(), StatusRequest{
		SubjectID: "bk-1", NewStatus: "confirmed", Actor: "a",
	})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
