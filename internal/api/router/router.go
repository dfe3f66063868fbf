package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/turnos-ai/internal/auth"
	"github.com/wolfman30/turnos-ai/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/turnos-ai/internal/http/middleware"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Clinic             string
	Tokens             *auth.Tokens
	Chat               *handlers.ChatHandler
	Appointments       *handlers.AppointmentHandler
	Auth               *handlers.AuthHandler
	Health             *handlers.HealthHandler
	MetricsHandler     http.Handler
	ChatLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Method(http.MethodGet, "/health", cfg.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Get("/", handlers.Home(cfg.Clinic, cfg.Tokens))

		// Links emailed to the patient; the token is the credential.
		public.Route("/appointment", func(appt chi.Router) {
			appt.Get("/confirm/{token}", cfg.Appointments.Confirm)
			appt.Get("/cancel/{token}", cfg.Appointments.CancelForm)
			appt.Post("/cancel/{token}", cfg.Appointments.Cancel)
		})

		if cfg.Auth != nil {
			public.Route("/auth", func(a chi.Router) {
				a.Get("/login", cfg.Auth.Login)
				a.Get("/callback", cfg.Auth.Callback)
				a.Post("/logout", cfg.Auth.Logout)
			})
		}
	})

	// Chat (requires a signed-in user)
	r.Group(func(chat chi.Router) {
		chat.Use(auth.RequireUser(cfg.Tokens))
		if cfg.ChatLimiter != nil {
			chat.Use(httpmiddleware.RateLimit(cfg.ChatLimiter))
		}
		chat.Post("/chat", cfg.Chat.SendMessage)
		chat.Route("/api/chat", func(api chi.Router) {
			api.Post("/mensaje", cfg.Chat.SendMessage)
			api.Get("/historial", cfg.Chat.History)
			api.Post("/nueva", cfg.Chat.Reset)
		})
	})

	return r
}
