package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/isurunuwanthilaka/isuma.ai/internal/handlers"
	"github.com/isurunuwanthilaka/isuma.ai/internal/middleware"
)

type Deps struct {
	JWTAuth        *middleware.JWTAuth
	Sessions       *handlers.TestSessionHandler
	Review         *handlers.ReviewHandler
	LiveFeed       http.HandlerFunc
	ReportLimiter  *middleware.RateLimiter
	UploadsDir     string
	UploadsPrefix  string
	FrontendURL    string
	RequestTimeout time.Duration
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.FrontendURL))

	r.Get("/health", handlers.Health)

	// ──── Candidate routes ────
	r.Group(func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(d.RequestTimeout))
		}
		r.Get("/session/{id}", d.Sessions.Get)
		r.Post("/session/{id}/submit", d.Sessions.Submit)

		r.Group(func(r chi.Router) {
			if d.ReportLimiter != nil {
				r.Use(d.ReportLimiter.Middleware)
			}
			r.Post("/integrity-event", d.Sessions.IntegrityEvent)
			r.Post("/snapshot", d.Sessions.Snapshot)
		})
	})

	// ──── Reviewer routes ────
	r.Route("/review", func(r chi.Router) {
		// Websocket authenticates from its query string
		if d.LiveFeed != nil {
			r.Get("/ws", d.LiveFeed)
		}

		r.Group(func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Use(middleware.RequireRole(middleware.RoleAdmin, middleware.RoleRecruiter))
			r.Get("/sessions/{id}/timeline", d.Review.Timeline)
			r.Get("/sessions/{id}/report.xlsx", d.Review.Report)
		})
	})

	if d.UploadsDir != "" && d.UploadsPrefix != "" {
		fs := http.StripPrefix(d.UploadsPrefix, http.FileServer(http.Dir(d.UploadsDir)))
		r.Handle(d.UploadsPrefix+"/*", fs)
	}

	return r
}
