package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vidgen/internal/http/handlers"
	"vidgen/internal/infra"
	"vidgen/internal/middleware"
)

// Options configures the router's middleware.
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
	// Metrics is served on /metrics when set.
	Metrics *infra.Metrics
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	// Providers call back without caller credentials; the shared secret is
	// checked by the reconciliation gateway.
	r.Post("/v1/webhooks/video", app.VideoWebhook)

	r.Route("/v1/videos", func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		r.Post("/generate", app.VideosGenerate)
		r.Post("/poll", app.VideosPoll)
		r.Get("/{job_id}", app.VideoStatus)
	})

	return r
}
