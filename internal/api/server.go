// Package api serves the edge HTTP surface under /edge: station writes
// (registration, plays, redemptions), attendee lookups, on-demand sync
// triggers, health and a websocket stream of the shared sync status.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configures the router.
type Options struct {
	// AllowedOrigins feeds both CORS and the websocket origin check. Empty
	// means any origin.
	AllowedOrigins []string
}

func (o Options) origins() []string {
	if len(o.AllowedOrigins) == 0 {
		return []string{"*"}
	}

	return o.AllowedOrigins
}

// NewRouter creates the edge router with every route mounted under /edge.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.origins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	h.originPatterns = opts.AllowedOrigins

	r.Route("/edge", func(r chi.Router) {
		r.Route("/attendees", func(r chi.Router) {
			r.Post("/register", h.RegisterAttendee)
			r.Get("/{code}", h.FindAttendeeByCode)
		})

		r.Post("/attendees_status", h.AttendeeStatus)
		r.Post("/experience", h.LogExperiencePlay)
		r.Post("/redemption", h.RedeemPoints)

		r.Post("/sync", h.SyncEvent)
		r.Get("/sync/status", h.SyncStatus)
		r.Post("/upload", h.Upload)

		r.Get("/health", h.Health)
		r.Get("/status/stream", h.StatusStream)
	})

	return r
}

// accessLog writes one structured line per request.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote", r.RemoteAddr),
			)
		})
	}
}
