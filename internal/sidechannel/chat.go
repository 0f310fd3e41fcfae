package sidechannel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/internal/history"
	"github.com/Iridium40/roam-services-sub004/internal/prefs"
)

// ChatConfig holds settings for the conversational-messaging ping channel.
type ChatConfig struct {
	Endpoint    string        `env:"CHAT_ENDPOINT"`
	APIKey      string        `env:"CHAT_API_KEY"`
	MaxAttempts int           `env:"CHAT_MAX_ATTEMPTS" envDefault:"3"`
	Timeout     time.Duration `env:"CHAT_TIMEOUT" envDefault:"10s"`
}

// ChatSender pings the externally hosted conversational-messaging service
// about status transitions so the conversation thread reflects them. It
// retries transient failures with backoff and opens a circuit after
// repeated failures so a dead endpoint is not hammered on every dispatch.
type ChatSender struct {
	cfg     ChatConfig
	client  *http.Client
	backoff Backoff
	breaker *breaker
}

type chatPing struct {
	SubscriberID string `json:"subscriberId"`
	Kind         string `json:"kind"`
	SubjectID    string `json:"subjectId"`
	Message      string `json:"message"`
	NewStatus    string `json:"newStatus,omitempty"`
}

func NewChatSender(cfg ChatConfig) (*ChatSender, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: chat endpoint is required", ErrInvalidConfig)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ChatSender{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		backoff: DefaultBackoff(),
		breaker: newBreaker(5, 30*time.Second),
	}, nil
}

func (s *ChatSender) Name() string           { return "chat" }
func (s *ChatSender) Channel() prefs.Channel { return prefs.ChannelSMS }

func (s *ChatSender) Send(ctx context.Context, notif history.Notification, ev event.DomainEvent) error {
	// Message events originate in the conversation thread already.
	if ev.Kind == event.KindNewMessage {
		return nil
	}
	if !s.breaker.allow() {
		return ErrCircuitOpen
	}

	body, err := json.Marshal(chatPing{
		SubscriberID: notif.SubscriberID,
		Kind:         string(ev.Kind),
		SubjectID:    ev.SubjectID,
		Message:      notif.Message,
		NewStatus:    ev.NewState,
	})
	if err != nil {
		return fmt.Errorf("encode chat ping: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(s.backoff.NextInterval(attempt - 1)):
			case <-ctx.Done():
				s.breaker.recordFailure()
				return errors.Join(ErrSendFailed, ctx.Err())
			}
		}

		lastErr = s.post(ctx, body)
		if lastErr == nil {
			s.breaker.recordSuccess()
			return nil
		}
	}

	s.breaker.recordFailure()
	return errors.Join(ErrSendFailed, lastErr)
}

func (s *ChatSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat endpoint returned %d", resp.StatusCode)
	}
	return nil
}
