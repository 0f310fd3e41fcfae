package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates domain event variants. Per-kind resolution and
// templating logic lives in the dispatcher's strategy table.
type Kind string

const (
	KindBookingStatusChanged      Kind = "booking_status_changed"
	KindPaymentStatusChanged      Kind = "payment_status_changed"
	KindVerificationStatusChanged Kind = "verification_status_changed"
	KindNewMessage                Kind = "new_message"
)

// Valid reports whether the kind is one of the known variants.
func (k Kind) Valid() bool {
	switch k {
	case KindBookingStatusChanged, KindPaymentStatusChanged,
		KindVerificationStatusChanged, KindNewMessage:
		return true
	}
	return false
}

// Role identifies how a subscriber relates to a booking.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleProvider   Role = "provider"
	RoleDispatcher Role = "dispatcher"
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
)

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleProvider, RoleDispatcher, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// Participant is a conversation member referenced by new_message events.
type Participant struct {
	SubscriberID string `json:"subscriber_id"`
	Role         Role   `json:"role"`
}

// Payload carries kind-specific event data. Subject metadata needed for
// subscriber resolution is embedded here by the adapter so the dispatcher
// never reads the database.
type Payload struct {
	BookingID      string        `json:"booking_id,omitempty"`
	ServiceName    string        `json:"service_name,omitempty"`
	CustomerID     string        `json:"customer_id,omitempty"`
	ProviderID     string        `json:"provider_id,omitempty"`
	DispatcherID   string        `json:"dispatcher_id,omitempty"`
	AmountCents    int64         `json:"amount_cents,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	SenderID       string        `json:"sender_id,omitempty"`
	Participants   []Participant `json:"participants,omitempty"`
	MessageBody    string        `json:"message_body,omitempty"`
	NotifyCustomer bool          `json:"notify_customer"`
	NotifyProvider bool          `json:"notify_provider"`
}

// DomainEvent is an immutable fact describing a single state transition,
// normalized from one of the adapter's upstream shapes. It is created once,
// handed to the dispatcher, and discarded.
type DomainEvent struct {
	ID            uuid.UUID `json:"id"`
	Kind          Kind      `json:"kind"`
	SubjectID     string    `json:"subject_id"`
	OccurredAt    time.Time `json:"occurred_at"`
	PreviousState string    `json:"previous_state,omitempty"`
	NewState      string    `json:"new_state,omitempty"`
	Actor         string    `json:"actor"`
	Payload       Payload   `json:"payload"`
}
