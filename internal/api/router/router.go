// Package router assembles the HTTP surface: middleware stack, health and
// metrics endpoints, and the versioned API behind actor auth.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/karthik-ak-dev/pulse-ops/internal/clinic"
	httpmiddleware "github.com/karthik-ak-dev/pulse-ops/internal/http/middleware"
	"github.com/karthik-ak-dev/pulse-ops/internal/queue"
	"github.com/karthik-ak-dev/pulse-ops/internal/realtime"
	"github.com/karthik-ak-dev/pulse-ops/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger        *logging.Logger
	QueueHandler  *queue.Handler
	ClinicHandler *clinic.Handler
	WSHandler     *realtime.WSHandler

	MetricsHandler http.Handler

	// AuthSecret signs actor tokens for every /v1 route.
	AuthSecret string
	// InternalToken gates server-to-server callbacks such as the payment
	// pipeline result hook.
	InternalToken string

	CORSAllowedOrigins []string

	// RateLimitPerSecond/RateLimitBurst throttle /v1 per clinic (per IP
	// for unauthenticated callers). Zero disables throttling.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Versioned API behind actor auth
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httpmiddleware.ActorJWT(cfg.AuthSecret))
		if cfg.RateLimitPerSecond > 0 && cfg.RateLimitBurst > 0 {
			v1.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}

		if cfg.QueueHandler != nil {
			qh := cfg.QueueHandler
			v1.Route("/queues", func(q chi.Router) {
				q.Get("/", qh.ListQueues)
				q.With(httpmiddleware.RequireOperator).Post("/", qh.CreateQueue)

				q.Route("/{queueID}", func(one chi.Router) {
					one.Get("/", qh.GetSnapshot)
					// Booking stays open to patient tokens; everything
					// that moves the line is operator-only.
					one.Post("/tokens", qh.CreateToken)

					one.Group(func(op chi.Router) {
						op.Use(httpmiddleware.RequireOperator)
						op.Post("/start", qh.StartQueue)
						op.Post("/pause", qh.PauseQueue)
						op.Post("/resume", qh.ResumeQueue)
						op.Post("/close", qh.CloseQueue)
						op.Post("/call-next", qh.CallNext)
						op.Post("/complete", qh.CompleteCurrent)
						op.Post("/skip", qh.SkipCurrent)
					})
				})
			})

			v1.Route("/tokens/{tokenID}", func(t chi.Router) {
				t.Get("/", qh.GetToken)
				t.Post("/confirm", qh.ConfirmToken)
				t.Post("/arrive", qh.MarkArrived)
				t.Post("/cancel", qh.CancelToken)
				t.With(httpmiddleware.RequireOperator).Post("/no-show", qh.MarkNoShow)
			})

			v1.With(requireInternalToken(cfg.InternalToken)).
				Post("/internal/payments/result", qh.PaymentResult)
		}

		if cfg.ClinicHandler != nil {
			v1.Route("/clinic", func(c chi.Router) {
				c.Use(httpmiddleware.RequireOperator)
				c.Get("/profile", cfg.ClinicHandler.GetProfile)
				c.Put("/profile", cfg.ClinicHandler.UpdateProfile)
				c.Get("/overview", cfg.ClinicHandler.Overview)
			})
		}

		if cfg.WSHandler != nil {
			v1.Get("/ws/queues/{queueID}", cfg.WSHandler.Subscribe)
		}
	})

	return r
}
