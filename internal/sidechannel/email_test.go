package sidechannel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/internal/history"
)

type fakePostmark struct {
	sent []postmark.Email
	resp postmark.EmailResponse
	err  error
}

func (f *fakePostmark) SendEmail(_ context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	f.sent = append(f.sent, email)
	return f.resp, f.err
}

type staticDirectory map[string]string

func (d staticDirectory) EmailFor(_ context.Context, subscriberID string) (string, error) {
	addr, ok := d[subscriberID]
	if !ok {
		return "", ErrNoAddress
	}
	return addr, nil
}

func emailFixture() (history.Notification, event.DomainEvent) {
	notif := history.Notification{
		ID:           uuid.New(),
		SubscriberID: "cust-1",
		Role:         event.RoleCustomer,
		Kind:         event.KindBookingStatusChanged,
		Message:      "Your booking status has been updated to: confirmed",
		CreatedAt:    time.Now(),
	}
	ev := event.DomainEvent{
		ID:        uuid.New(),
		Kind:      event.KindBookingStatusChanged,
		SubjectID: "bk-1",
		NewState:  "confirmed",
		Payload:   event.Payload{ServiceName: "Deep Clean"},
	}
	return notif, ev
}

func TestNewEmailSender_Validation(t *testing.T) {
	t.Parallel()

	dir := staticDirectory{}

	tests := []struct {
		name string
		cfg  EmailConfig
	}{
		{name: "missing tokens", cfg: EmailConfig{SenderEmail: "n@example.com"}},
		{name: "missing sender", cfg: EmailConfig{ServerToken: "st", AccountToken: "at"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewEmailSender(tt.cfg, dir)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("missing directory", func(t *testing.T) {
		t.Parallel()
		_, err := NewEmailSender(EmailConfig{ServerToken: "st", AccountToken: "at", SenderEmail: "n@example.com"}, nil)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestEmailSender_Send(t *testing.T) {
	t.Parallel()

	cfg := EmailConfig{SenderEmail: "notifications@example.com", SupportEmail: "support@example.com"}

	t.Run("sends to resolved address", func(t *testing.T) {
		t.Parallel()

		pm := &fakePostmark{}
		s := &EmailSender{client: pm, directory: staticDirectory{"cust-1": "customer@example.com"}, cfg: cfg}

		notif, ev := emailFixture()
		require.NoError(t, s.Send(context.Background(), notif, ev))

		require.Len(t, pm.sent, 1)
		sent := pm.sent[0]
		assert.Equal(t, "customer@example.com", sent.To)
		assert.Equal(t, "notifications@example.com", sent.From)
		assert.Equal(t, "Your booking has been updated", sent.Subject)
		assert.Equal(t, "booking_status_changed", sent.Tag)
		assert.Contains(t, sent.HTMLBody, "updated to: confirmed")
		assert.Contains(t, sent.HTMLBody, "Deep Clean")
	})

	t.Run("no address is not a failure", func(t *testing.T) {
		t.Parallel()

		pm := &fakePostmark{}
		s := &EmailSender{client: pm, directory: staticDirectory{}, cfg: cfg}

		notif, ev := emailFixture()
		require.NoError(t, s.Send(context.Background(), notif, ev))
		assert.Empty(t, pm.sent)
	})

	t.Run("transport error", func(t *testing.T) {
		t.Parallel()

		pm := &fakePostmark{err: errors.New("connection refused")}
		s := &EmailSender{client: pm, directory: staticDirectory{"cust-1": "c@example.com"}, cfg: cfg}

		notif, ev := emailFixture()
		require.ErrorIs(t, s.Send(context.Background(), notif, ev), ErrSendFailed)
	})

	t.Run("postmark error code", func(t *testing.T) {
		t.Parallel()

		pm := &fakePostmark{resp: postmark.EmailResponse{ErrorCode: 406, Message: "inactive recipient"}}
		s := &EmailSender{client: pm, directory: staticDirectory{"cust-1": "c@example.com"}, cfg: cfg}

		notif, ev := emailFixture()
		err := s.Send(context.Background(), notif, ev)
		require.ErrorIs(t, err, ErrSendFailed)
		assert.Contains(t, err.Error(), "inactive recipient")
	})
}
