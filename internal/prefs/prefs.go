package prefs

import (
	"context"
	"errors"
)

// Channel identifies a delivery pathway a subscriber can opt out of.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// Preferences holds a subscriber's per-channel opt-in flags.
type Preferences struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
	Push  bool `json:"push"`
	InApp bool `json:"inApp"`
}

// DefaultPreferences is applied to subscribers who never saved a record:
// everything enabled.
func DefaultPreferences() Preferences {
	return Preferences{Email: true, SMS: true, Push: true, InApp: true}
}

// Enabled reports whether the given channel is opted in.
func (p Preferences) Enabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.SMS
	case ChannelPush:
		return p.Push
	case ChannelInApp:
		return p.InApp
	default:
		return false
	}
}

// Patch carries a partial update; nil fields keep their stored value.
type Patch struct {
	Email *bool `json:"email"`
	SMS   *bool `json:"sms"`
	Push  *bool `json:"push"`
	InApp *bool `json:"inApp"`
}

// Apply merges the patch over existing preferences.
func (p Patch) Apply(existing Preferences) Preferences {
	if p.Email != nil {
		existing.Email = *p.Email
	}
	if p.SMS != nil {
		existing.SMS = *p.SMS
	}
	if p.Push != nil {
		existing.Push = *p.Push
	}
	if p.InApp != nil {
		existing.InApp = *p.InApp
	}
	return existing
}

// ErrStoreUnavailable is returned when the backing store cannot be reached.
var ErrStoreUnavailable = errors.New("preference store unavailable")

// Store persists per-subscriber preferences. Get must return
// DefaultPreferences for subscribers without a saved record.
type Store interface {
	Get(ctx context.Context, subscriberID string) (Preferences, error)
	Set(ctx context.Context, subscriberID string, prefs Preferences) error
}
