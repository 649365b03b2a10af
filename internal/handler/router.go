package handler

import (
	"net/http"
	"time"

	"remo-voting/internal/container"
	"remo-voting/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter configures and returns the HTTP router
func NewRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()
	authService := c.GetAuthService()
	services := c.Services

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(log.Named("http")))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	healthHandler := NewHealthHandler(c)
	pollHandler := NewPollHandler(services.Polls, services.Voting, cfg.ResultsLive, log)
	votingHandler := NewVotingHandler(services.Voting, cfg.ResultsLive, log)
	commentHandler := NewCommentHandler(services.Comments, log)

	r.Get("/health", healthHandler.Check)
	r.Method(http.MethodGet, "/metrics", c.Metrics.Handler())

	r.Route("/api/v1/polls", func(r chi.Router) {
		// Read-only endpoints, a token is optional
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(authService, log))

			r.Get("/{slug}", pollHandler.Get)
			r.Get("/{slug}/results", votingHandler.GetResults)
			r.Get("/{slug}/comments", commentHandler.List)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authService, log))

			r.Get("/", pollHandler.List)
			r.Post("/", pollHandler.Create)
			r.Put("/{slug}/schedule", pollHandler.Reschedule)
			r.Delete("/{slug}", pollHandler.Delete)

			r.Post("/{slug}/vote", votingHandler.SubmitVote)
			r.Get("/{slug}/my-status", votingHandler.GetMyStatus)
			r.Post("/{slug}/comments", commentHandler.Add)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"not_found","message":"Endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}
