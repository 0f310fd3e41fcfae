package logger

import (
	"log/slog"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// SubscriberID records the subscriber identifier under the key "subscriber_id".
func SubscriberID(id string) slog.Attr {
	return slog.String("subscriber_id", id)
}

// EventID records the domain event identifier under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// SubjectID records the event subject (e.g. booking id) under the key "subject_id".
func SubjectID(id string) slog.Attr {
	return slog.String("subject_id", id)
}

// ChannelID records the delivery channel identifier under the key "channel_id".
func ChannelID(id string) slog.Attr {
	return slog.String("channel_id", id)
}

// NotificationID records the notification identifier under the key "notification_id".
func NotificationID(id string) slog.Attr {
	return slog.String("notification_id", id)
}
