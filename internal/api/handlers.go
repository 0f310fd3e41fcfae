package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/internal/history"
	"github.com/Iridium40/roam-services-sub004/internal/prefs"
	"github.com/Iridium40/roam-services-sub004/pkg/logger"
	"github.com/Iridium40/roam-services-sub004/pkg/webhook"
)

// Adapter is the event ingestion surface the API feeds.
type Adapter interface {
	ProcessStatusRequest(ctx context.Context, req event.StatusRequest) (int, error)
	ProcessWebhook(ctx context.Context, provider string, body []byte, sig webhook.SignatureHeaders) (int, error)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": a.registry.Len(),
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req event.StatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	sent, err := a.adapter.ProcessStatusRequest(r.Context(), req)
	switch {
	case errors.Is(err, event.ErrValidation):
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	case errors.Is(err, event.ErrTimeout):
		respondError(w, http.StatusServiceUnavailable, "Processing timed out, retry later")
		return
	case err != nil:
		a.log.ErrorContext(r.Context(), "status update failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"notificationsSent": sent,
	})
}

func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	sig, err := webhook.FromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	sent, err := a.adapter.ProcessWebhook(r.Context(), provider, body, sig)
	switch {
	case errors.Is(err, event.ErrAuthentication), errors.Is(err, event.ErrUnknownProvider):
		respondError(w, http.StatusBadRequest, "Invalid signature")
		return
	case errors.Is(err, event.ErrTimeout):
		// Retryable for the provider's delivery machinery.
		respondError(w, http.StatusServiceUnavailable, "Processing timed out, retry later")
		return
	case err != nil:
		// Providers retry on non-2xx; internal processing failures are
		// acknowledged so the provider does not redeliver forever.
		a.log.ErrorContext(r.Context(), "webhook processing failed",
			"provider", provider, logger.Error(err))
		respondJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"received":          true,
		"notificationsSent": sent,
	})
}

type acknowledgeRequest struct {
	SubscriberID   string    `json:"subscriberId"`
	NotificationID uuid.UUID `json:"notificationId"`
	Read           bool      `json:"read"`
	MarkAllRead    bool      `json:"markAllRead"`
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if req.SubscriberID == "" {
		respondError(w, http.StatusBadRequest, "subscriberId is required")
		return
	}

	switch {
	case req.MarkAllRead:
		if err := a.store.MarkAllRead(r.Context(), req.SubscriberID); err != nil {
			a.log.ErrorContext(r.Context(), "mark all read failed",
				logger.SubscriberID(req.SubscriberID), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "Internal error")
			return
		}
	case req.NotificationID != uuid.Nil && req.Read:
		if err := a.store.MarkRead(r.Context(), req.SubscriberID, req.NotificationID); err != nil {
			a.log.ErrorContext(r.Context(), "mark read failed",
				logger.SubscriberID(req.SubscriberID), logger.NotificationID(req.NotificationID.String()), logger.Error(err))
			respondError(w, http.StatusInternalServerError, "Internal error")
			return
		}
	default:
		respondError(w, http.StatusBadRequest, "notificationId with read:true or markAllRead:true is required")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type preferencesRequest struct {
	SubscriberID string      `json:"subscriberId"`
	Preferences  prefs.Patch `json:"preferences"`
}

func (a *API) handlePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if req.SubscriberID == "" {
		respondError(w, http.StatusBadRequest, "subscriberId is required")
		return
	}

	current, err := a.gate.Get(r.Context(), req.SubscriberID)
	if err != nil {
		a.log.ErrorContext(r.Context(), "preference read failed",
			logger.SubscriberID(req.SubscriberID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	updated := req.Preferences.Apply(current)
	if err := a.gate.Set(r.Context(), req.SubscriberID, updated); err != nil {
		a.log.ErrorContext(r.Context(), "preference write failed",
			logger.SubscriberID(req.SubscriberID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"preferences": updated,
	})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriberId")
	if subscriberID == "" {
		respondError(w, http.StatusBadRequest, "subscriberId is required")
		return
	}

	opts := history.ListOptions{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = limit
	}
	opts.OnlyUnread = r.URL.Query().Get("unread") == "true"

	notifications, err := a.store.List(r.Context(), subscriberID, opts)
	if err != nil {
		a.log.ErrorContext(r.Context(), "list notifications failed",
			logger.SubscriberID(subscriberID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

func (a *API) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriberId")
	if subscriberID == "" {
		respondError(w, http.StatusBadRequest, "subscriberId is required")
		return
	}

	count, err := a.store.CountUnread(r.Context(), subscriberID)
	if err != nil {
		a.log.ErrorContext(r.Context(), "unread count failed",
			logger.SubscriberID(subscriberID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"unreadCount": count})
}
