package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/internal/history"
	"github.com/Iridium40/roam-services-sub004/internal/registry"
	"github.com/Iridium40/roam-services-sub004/pkg/logger"
)

// streamFrame is a non-notification frame on the NDJSON stream.
type streamFrame struct {
	Type         string    `json:"type"`
	SubscriberID string    `json:"subscriberId,omitempty"`
	Role         string    `json:"role,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// handleStream opens a delivery channel for the subscriber and pushes
// newline-delimited JSON frames until the client disconnects, the channel
// is replaced by a newer connection, or liveness lapses.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriberId")
	role := event.Role(r.URL.Query().Get("role"))
	if subscriberID == "" || !role.Valid() {
		respondError(w, http.StatusBadRequest, "subscriberId and a valid role are required")
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	rc := http.NewResponseController(w)

	ch := registry.NewChannel[history.Notification](subscriberID, role, a.channelBuffer)
	a.registry.Register(subscriberID, ch)
	defer func() {
		ch.Close()
		a.registry.Unregister(subscriberID, ch.ID())
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	if err := enc.Encode(streamFrame{
		Type:         "connected",
		SubscriberID: subscriberID,
		Role:         string(role),
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	// The handshake frame is out; the channel is now live. Open fails only
	// if a newer connection already replaced this one.
	if err := ch.Open(); err != nil {
		return
	}

	a.log.InfoContext(r.Context(), "stream opened",
		logger.SubscriberID(subscriberID), logger.ChannelID(ch.ID().String()))
	defer a.log.InfoContext(r.Context(), "stream closed",
		logger.SubscriberID(subscriberID), logger.ChannelID(ch.ID().String()))

	ticker := time.NewTicker(a.livenessInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case notif, open := <-ch.Receive():
			if !open {
				// Closed by replacement or self-closed on a full buffer.
				return
			}
			if err := enc.Encode(notif); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}

		case <-ticker.C:
			if ch.Expired(a.livenessInterval) {
				a.log.WarnContext(ctx, "channel liveness lapsed, tearing down",
					logger.SubscriberID(subscriberID), logger.ChannelID(ch.ID().String()))
				return
			}
			if err := enc.Encode(streamFrame{Type: "ping", Timestamp: time.Now().UTC()}); err != nil {
				return
			}
			// A failed flush counts as a missed liveness interval; two in
			// a row trip the expiry check above.
			if err := rc.Flush(); err != nil {
				a.log.DebugContext(ctx, "ping flush failed",
					logger.SubscriberID(subscriberID), logger.ChannelID(ch.ID().String()), logger.Error(err))
				continue
			}
			ch.MarkLiveness()
		}
	}
}
