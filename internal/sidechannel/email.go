package sidechannel

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/mrz1836/postmark"

	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/internal/history"
	"github.com/Iridium40/roam-services-sub004/internal/prefs"
)

// EmailConfig holds Postmark settings for the email side channel.
type EmailConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail  string `env:"SENDER_EMAIL" envDefault:"notifications@roamservices.app"`
	SupportEmail string `env:"SUPPORT_EMAIL" envDefault:"support@roamservices.app"`
}

// EmailDirectory resolves a subscriber id to an email address. Returning
// ErrNoAddress skips the send without treating it as a failure.
type EmailDirectory interface {
	EmailFor(ctx context.Context, subscriberID string) (string, error)
}

// postmarkSender is the subset of the Postmark client the sender uses.
type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// EmailSender delivers notification copies over transactional email.
type EmailSender struct {
	client    postmarkSender
	directory EmailDirectory
	cfg       EmailConfig
}

// NewEmailSender creates the Postmark-backed email side channel.
func NewEmailSender(cfg EmailConfig, directory EmailDirectory) (*EmailSender, error) {
	if cfg.ServerToken == "" || cfg.AccountToken == "" {
		return nil, fmt.Errorf("%w: postmark tokens are required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}
	if directory == nil {
		return nil, fmt.Errorf("%w: email directory is required", ErrInvalidConfig)
	}
	return &EmailSender{
		client:    postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		directory: directory,
		cfg:       cfg,
	}, nil
}

func (s *EmailSender) Name() string           { return "email" }
func (s *EmailSender) Channel() prefs.Channel { return prefs.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, notif history.Notification, ev event.DomainEvent) error {
	addr, err := s.directory.EmailFor(ctx, notif.SubscriberID)
	if err != nil {
		if errors.Is(err, ErrNoAddress) {
			return nil
		}
		return fmt.Errorf("resolve email address: %w", err)
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.cfg.SenderEmail,
		ReplyTo:    s.cfg.SupportEmail,
		To:         addr,
		Subject:    emailSubject(notif.Kind),
		Tag:        string(notif.Kind),
		HTMLBody:   emailBody(notif, ev),
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

func emailSubject(kind event.Kind) string {
	switch kind {
	case event.KindBookingStatusChanged:
		return "Your booking has been updated"
	case event.KindPaymentStatusChanged:
		return "Payment update for your booking"
	case event.KindVerificationStatusChanged:
		return "Verification status update"
	case event.KindNewMessage:
		return "You have a new message"
	default:
		return "Notification"
	}
}

func emailBody(notif history.Notification, ev event.DomainEvent) string {
	body := fmt.Sprintf("<p>%s</p>", html.EscapeString(notif.Message))
	if ev.Payload.ServiceName != "" {
		body += fmt.Sprintf("<p>Service: %s</p>", html.EscapeString(ev.Payload.ServiceName))
	}
	return body
}
