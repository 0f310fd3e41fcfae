package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Iridium40/roam-services-sub004/internal/history"
	"github.com/Iridium40/roam-services-sub004/internal/prefs"
	"github.com/Iridium40/roam-services-sub004/internal/registry"
)

const (
	// DefaultLivenessInterval is how often the stream emits a ping frame.
	DefaultLivenessInterval = 20 * time.Second

	// DefaultChannelBuffer is the per-channel outbound buffer. A full
	// buffer closes the channel rather than blocking dispatch.
	DefaultChannelBuffer = 64

	maxBodyBytes = 1 << 20
)

// API is the HTTP surface of the notifier: the streaming endpoint, the
// status-update and acknowledgement calls, preference management, and the
// provider webhook intake.
type API struct {
	adapter  Adapter
	registry *registry.Registry[history.Notification]
	store    history.Store
	gate     prefs.Store

	livenessInterval time.Duration
	channelBuffer    int
	log              *slog.Logger
}

type Option func(*API)

func WithLogger(log *slog.Logger) Option {
	return func(a *API) { a.log = log }
}

func WithLivenessInterval(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.livenessInterval = d
		}
	}
}

func WithChannelBuffer(n int) Option {
	return func(a *API) {
		if n > 0 {
			a.channelBuffer = n
		}
	}
}

func New(adapter Adapter, reg *registry.Registry[history.Notification], store history.Store, gate prefs.Store, opts ...Option) *API {
	a := &API{
		adapter:          adapter,
		registry:         reg,
		store:            store,
		gate:             gate,
		livenessInterval: DefaultLivenessInterval,
		channelBuffer:    DefaultChannelBuffer,
		log:              slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router builds the chi router for the API.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.handleHealth)

	r.Post("/bookings/status", a.handleBookingStatus)
	r.Post("/webhooks/{provider}", a.handleWebhook)

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/stream", a.handleStream)
		r.Get("/", a.handleList)
		r.Get("/unread-count", a.handleUnreadCount)
		r.Patch("/", a.handleAcknowledge)
		r.Put("/preferences", a.handlePreferences)
	})

	return r
}
