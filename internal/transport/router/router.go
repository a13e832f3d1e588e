package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ryan4259/r2-image-compressor/internal/config"
	"github.com/ryan4259/r2-image-compressor/internal/metrics"
	"github.com/ryan4259/r2-image-compressor/internal/transport/handler"
	"github.com/ryan4259/r2-image-compressor/internal/transport/middleware"
)

func NewRouter(h *handler.Handler, cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Recover)
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	uploadLimiter := middleware.NewRateLimiter(cfg.Upload.RequestsPerSecond, cfg.Upload.Burst)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.IPRateLimit(uploadLimiter))
			r.Post("/images", h.UploadImage)
		})

		r.Get("/images", h.ListImages)
		r.Post("/images/token", h.IssueToken)
		r.Get("/images/download", h.DownloadImage)
	})

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
