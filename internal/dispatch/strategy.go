package dispatch

import (
	"fmt"
	"unicode/utf8"

	"github.com/Iridium40/roam-services-sub004/internal/event"
)

// maxMessagePreview bounds the notification text built from chat messages.
const maxMessagePreview = 120

// previewMessage truncates a chat body to the preview limit without
// splitting a multibyte rune.
func previewMessage(body string) string {
	if len(body) <= maxMessagePreview {
		return body
	}
	cut := maxMessagePreview
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}

// recipient is one resolved (subscriber, role) pair interested in an event.
type recipient struct {
	SubscriberID string
	Role         event.Role
}

// strategy bundles the per-kind resolution and templating logic so adding
// a kind never touches the dispatch loop itself.
type strategy struct {
	resolve func(ev event.DomainEvent) ([]recipient, error)
	message func(ev event.DomainEvent, r recipient) string
}

var strategies = map[event.Kind]strategy{
	event.KindBookingStatusChanged: {
		resolve: resolveBookingParties,
		message: func(ev event.DomainEvent, r recipient) string {
			if r.Role == event.RoleCustomer {
				return fmt.Sprintf("Your booking status has been updated to: %s", ev.NewState)
			}
			return fmt.Sprintf("Booking status updated to: %s", ev.NewState)
		},
	},
	event.KindPaymentStatusChanged: {
		resolve: resolveBookingParties,
		message: func(ev event.DomainEvent, r recipient) string {
			if r.Role == event.RoleCustomer {
				return fmt.Sprintf("Your payment status has been updated to: %s", ev.NewState)
			}
			return fmt.Sprintf("Payment status updated to: %s", ev.NewState)
		},
	},
	event.KindVerificationStatusChanged: {
		resolve: func(ev event.DomainEvent) ([]recipient, error) {
			if ev.Payload.ProviderID == "" {
				return nil, fmt.Errorf("verification event %s has no provider", ev.ID)
			}
			return []recipient{{SubscriberID: ev.Payload.ProviderID, Role: event.RoleProvider}}, nil
		},
		message: func(ev event.DomainEvent, _ recipient) string {
			return fmt.Sprintf("Your verification status has been updated to: %s", ev.NewState)
		},
	},
	event.KindNewMessage: {
		resolve: func(ev event.DomainEvent) ([]recipient, error) {
			recipients := make([]recipient, 0, len(ev.Payload.Participants))
			for _, p := range ev.Payload.Participants {
				if p.SubscriberID == "" || p.SubscriberID == ev.Payload.SenderID {
					continue
				}
				recipients = append(recipients, recipient{SubscriberID: p.SubscriberID, Role: p.Role})
			}
			if len(recipients) == 0 {
				return nil, fmt.Errorf("message event %s has no recipients", ev.ID)
			}
			return recipients, nil
		},
		message: func(ev event.DomainEvent, _ recipient) string {
			return previewMessage(ev.Payload.MessageBody)
		},
	},
}

// resolveBookingParties picks the customer, provider, and dispatcher of the
// booking named by the payload, honoring the event's notify flags.
func resolveBookingParties(ev event.DomainEvent) ([]recipient, error) {
	var recipients []recipient
	if ev.Payload.NotifyCustomer && ev.Payload.CustomerID != "" {
		recipients = append(recipients, recipient{SubscriberID: ev.Payload.CustomerID, Role: event.RoleCustomer})
	}
	if ev.Payload.NotifyProvider && ev.Payload.ProviderID != "" {
		recipients = append(recipients, recipient{SubscriberID: ev.Payload.ProviderID, Role: event.RoleProvider})
	}
	if ev.Payload.DispatcherID != "" {
		recipients = append(recipients, recipient{SubscriberID: ev.Payload.DispatcherID, Role: event.RoleDispatcher})
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("event %s resolves to no subscribers", ev.ID)
	}
	return recipients, nil
}

// notificationData is the structured payload attached to every notification
// built from ev.
func notificationData(ev event.DomainEvent) map[string]any {
	data := map[string]any{
		"eventId":   ev.ID.String(),
		"subjectId": ev.SubjectID,
	}
	if ev.NewState != "" {
		data["newStatus"] = ev.NewState
	}
	if ev.PreviousState != "" {
		data["previousStatus"] = ev.PreviousState
	}
	if ev.Payload.ServiceName != "" {
		data["serviceName"] = ev.Payload.ServiceName
	}
	if ev.Payload.SenderID != "" {
		data["senderId"] = ev.Payload.SenderID
	}
	if ev.Actor != "" {
		data["actor"] = ev.Actor
	}
	return data
}
