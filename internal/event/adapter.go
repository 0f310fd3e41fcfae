package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iridium40/roam-services-sub004/pkg/logger"
	"github.com/Iridium40/roam-services-sub004/pkg/webhook"
)

// Sink consumes normalized domain events. Implemented by the dispatcher.
// Dispatch returns the number of notifications created for the event.
type Sink interface {
	Dispatch(ctx context.Context, ev DomainEvent) (int, error)
}

// HistoryRecorder persists status transitions as an audit trail. Recording is
// best-effort: a failure never fails the event emission.
type HistoryRecorder interface {
	RecordStatusChange(ctx context.Context, ev DomainEvent) error
}

// StatusRequest is the direct status-update input shape.
type StatusRequest struct {
	SubjectID      string `json:"subjectId"`
	NewStatus      string `json:"newStatus"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	Actor          string `json:"actor"`
	Reason         string `json:"reason,omitempty"`
	CustomerID     string `json:"customerId,omitempty"`
	ProviderID     string `json:"providerId,omitempty"`
	ServiceName    string `json:"serviceName,omitempty"`
	NotifyCustomer *bool  `json:"notifyCustomer,omitempty"`
	NotifyProvider *bool  `json:"notifyProvider,omitempty"`
}

// BookingRow is the tracked subset of a booking row snapshot.
type BookingRow struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CustomerID  string `json:"customer_id"`
	ProviderID  string `json:"provider_id"`
	ServiceName string `json:"service_name"`
	UpdatedBy   string `json:"updated_by"`
}

// RowChange is a row-level change notification from the collaborator store.
type RowChange struct {
	Old BookingRow `json:"old"`
	New BookingRow `json:"new"`
}

// MessageEvent is an inbound "new message" trigger from the conversational
// messaging subsystem.
type MessageEvent struct {
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Body           string        `json:"body"`
	Participants   []Participant `json:"participants"`
}

// providerEvent is the normalized body shape of an authenticated provider
// webhook. Providers embed an event-type field the adapter routes on.
type providerEvent struct {
	EventType      string `json:"event_type"`
	SubjectID      string `json:"subject_id"`
	BookingID      string `json:"booking_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	CustomerID     string `json:"customer_id"`
	ProviderID     string `json:"provider_id"`
	ServiceName    string `json:"service_name"`
	AmountCents    int64  `json:"amount_cents"`
	Actor          string `json:"actor"`
}

// Adapter normalizes heterogeneous upstream triggers into DomainEvents and
// hands them to the sink, serializing emission per subject so transitions for
// one booking never interleave.
type Adapter struct {
	sink      Sink
	history   HistoryRecorder
	secrets   map[string]string
	maxSigAge time.Duration
	timeout   time.Duration
	log       *slog.Logger
	locks     *subjectLocks
}

// Option configures an Adapter.
type Option func(*Adapter)

func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// WithHistoryRecorder enables best-effort status history persistence.
func WithHistoryRecorder(rec HistoryRecorder) Option {
	return func(a *Adapter) { a.history = rec }
}

// WithTimeout bounds processing of a single event.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithSignatureMaxAge bounds the accepted webhook signature age.
func WithSignatureMaxAge(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.maxSigAge = d
		}
	}
}

// New creates an Adapter. secrets maps webhook provider names to their
// shared signing secrets.
func New(sink Sink, secrets map[string]string, opts ...Option) *Adapter {
	a := &Adapter{
		sink:      sink,
		secrets:   secrets,
		maxSigAge: 5 * time.Minute,
		timeout:   10 * time.Second,
		log:       slog.Default(),
		locks:     newSubjectLocks(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessStatusRequest handles a direct status-update call.
// Returns the number of notifications created.
func (a *Adapter) ProcessStatusRequest(ctx context.Context, req StatusRequest) (int, error) {
	if req.SubjectID == "" || req.NewStatus == "" || req.Actor == "" {
		return 0, fmt.Errorf("%w: subjectId, newStatus and actor are required", ErrValidation)
	}
	if req.PreviousStatus != "" && req.PreviousStatus == req.NewStatus {
		a.log.LogAttrs(ctx, slog.LevelDebug, "status request did not change status, suppressed",
			logger.SubjectID(req.SubjectID),
		)
		return 0, nil
	}

	notifyCustomer := req.NotifyCustomer == nil || *req.NotifyCustomer
	notifyProvider := req.NotifyProvider == nil || *req.NotifyProvider

	ev := DomainEvent{
		ID:            uuid.New(),
		Kind:          KindBookingStatusChanged,
		SubjectID:     req.SubjectID,
		OccurredAt:    time.Now(),
		PreviousState: req.PreviousStatus,
		NewState:      req.NewStatus,
		Actor:         req.Actor,
		Payload: Payload{
			BookingID:      req.SubjectID,
			ServiceName:    req.ServiceName,
			CustomerID:     req.CustomerID,
			ProviderID:     req.ProviderID,
			Reason:         req.Reason,
			NotifyCustomer: notifyCustomer,
			NotifyProvider: notifyProvider,
		},
	}

	return a.emit(ctx, ev)
}

// ProcessRowChange handles a row-level change notification.
// A change that does not touch the tracked status field is a deliberate
// no-op, not an error.
func (a *Adapter) ProcessRowChange(ctx context.Context, change RowChange) (int, error) {
	if change.New.ID == "" {
		return 0, fmt.Errorf("%w: row snapshot has no id", ErrValidation)
	}
	if change.Old.Status == change.New.Status {
		a.log.LogAttrs(ctx, slog.LevelDebug, "row change did not touch tracked status, suppressed",
			logger.SubjectID(change.New.ID),
		)
		return 0, nil
	}

	ev := DomainEvent{
		ID:            uuid.New(),
		Kind:          KindBookingStatusChanged,
		SubjectID:     change.New.ID,
		OccurredAt:    time.Now(),
		PreviousState: change.Old.Status,
		NewState:      change.New.Status,
		Actor:         change.New.UpdatedBy,
		Payload: Payload{
			BookingID:      change.New.ID,
			ServiceName:    change.New.ServiceName,
			CustomerID:     change.New.CustomerID,
			ProviderID:     change.New.ProviderID,
			NotifyCustomer: true,
			NotifyProvider: true,
		},
	}

	return a.emit(ctx, ev)
}

// ProcessWebhook handles an inbound provider webhook. The
// signature is verified before anything else; on failure the event is
// dropped and ErrAuthentication returned, with no retry on our side.
func (a *Adapter) ProcessWebhook(ctx context.Context, provider string, body []byte, sig webhook.SignatureHeaders) (int, error) {
	secret, ok := a.secrets[provider]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if err := webhook.VerifySignature(secret, body, sig, a.maxSigAge); err != nil {
		return 0, errors.Join(ErrAuthentication, err)
	}

	var pe providerEvent
	if err := json.Unmarshal(body, &pe); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	kind, err := kindForProviderEvent(pe.EventType)
	if err != nil {
		return 0, err
	}

	subjectID := pe.SubjectID
	if subjectID == "" {
		subjectID = pe.BookingID
	}
	if subjectID == "" {
		return 0, fmt.Errorf("%w: provider event has no subject", ErrValidation)
	}
	if pe.PreviousStatus == pe.NewStatus {
		// Providers re-deliver webhooks; an unchanged status is not a transition.
		return 0, nil
	}

	actor := pe.Actor
	if actor == "" {
		actor = provider
	}

	ev := DomainEvent{
		ID:            uuid.New(),
		Kind:          kind,
		SubjectID:     subjectID,
		OccurredAt:    time.Now(),
		PreviousState: pe.PreviousStatus,
		NewState:      pe.NewStatus,
		Actor:         actor,
		Payload: Payload{
			BookingID:      pe.BookingID,
			ServiceName:    pe.ServiceName,
			CustomerID:     pe.CustomerID,
			ProviderID:     pe.ProviderID,
			AmountCents:    pe.AmountCents,
			NotifyCustomer: true,
			NotifyProvider: true,
		},
	}

	return a.emit(ctx, ev)
}

// ProcessMessage handles a "new message" trigger from the messaging
// subsystem.
func (a *Adapter) ProcessMessage(ctx context.Context, msg MessageEvent) (int, error) {
	if msg.ConversationID == "" || msg.SenderID == "" || msg.Body == "" {
		return 0, fmt.Errorf("%w: conversationId, senderId and body are required", ErrValidation)
	}
	if len(msg.Participants) == 0 {
		return 0, fmt.Errorf("%w: message has no participants", ErrValidation)
	}

	ev := DomainEvent{
		ID:         uuid.New(),
		Kind:       KindNewMessage,
		SubjectID:  msg.ConversationID,
		OccurredAt: time.Now(),
		Actor:      msg.SenderID,
		Payload: Payload{
			SenderID:       msg.SenderID,
			Participants:   msg.Participants,
			MessageBody:    msg.Body,
			NotifyCustomer: true,
			NotifyProvider: true,
		},
	}

	return a.emit(ctx, ev)
}

// emit serializes per subject, dispatches, and records history best-effort.
func (a *Adapter) emit(ctx context.Context, ev DomainEvent) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.locks.acquire(ctx, ev.SubjectID); err != nil {
		return 0, errors.Join(ErrTimeout, err)
	}
	defer a.locks.release(ev.SubjectID)

	n, err := a.sink.Dispatch(ctx, ev)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, errors.Join(ErrTimeout, err)
		}
		return 0, err
	}

	a.recordHistory(ev)
	return n, nil
}

// recordHistory persists the transition as a detached side task. Failure is
// logged and otherwise ignored.
func (a *Adapter) recordHistory(ev DomainEvent) {
	if a.history == nil || ev.Kind == KindNewMessage {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.history.RecordStatusChange(ctx, ev); err != nil {
			a.log.LogAttrs(ctx, slog.LevelWarn, "failed to record status history",
				logger.EventID(ev.ID.String()),
				logger.SubjectID(ev.SubjectID),
				logger.Error(err),
			)
		}
	}()
}

func kindForProviderEvent(eventType string) (Kind, error) {
	switch {
	case strings.HasPrefix(eventType, "payment."):
		return KindPaymentStatusChanged, nil
	case strings.HasPrefix(eventType, "verification."), strings.HasPrefix(eventType, "identity."), strings.HasPrefix(eventType, "bank."):
		return KindVerificationStatusChanged, nil
	}
	return "", fmt.Errorf("%w: unsupported event type %q", ErrValidation, eventType)
}
