package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imagejob/internal/http/handlers"
	"imagejob/internal/infra"
	"imagejob/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/figurine/styles", app.FigurineStyles)

	// Each stream submits a remote job, so only streams are rate limited.
	r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).
		Get("/v1/jobs/{kind}/stream", app.Stream)

	r.Get("/v1/results/*", app.Result)

	return r
}
