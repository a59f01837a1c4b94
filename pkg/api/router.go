// Package api assembles the public and admin HTTP surfaces.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rexpump/mediad/pkg/api/handlers"
	"github.com/rexpump/mediad/pkg/api/middleware"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/rexpump"
	"github.com/rexpump/mediad/pkg/store/blob"
	"github.com/rexpump/mediad/pkg/store/kv"
	"github.com/rexpump/mediad/pkg/upload"
)

// bodyLimitSlack is added on top of the chunked upload cap to leave room
// for multipart framing and headers.
const bodyLimitSlack = 1024

// Deps carries everything the routers need.
type Deps struct {
	Cfg     *config.Config
	KV      *kv.Store
	Blobs   *blob.Store
	Uploads *upload.Engine
	Tokens  *rexpump.Service
	Version string
}

// NewPublicRouter builds the public listener's handler: uploads, blob
// serving, token metadata and health probes behind the shared middleware
// stack.
func NewPublicRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(time.Duration(d.Cfg.Server.RequestTimeoutSeconds) * time.Second))
	r.Use(chimiddleware.Throttle(d.Cfg.Server.MaxConnections))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Range", "X-API-Key", "If-None-Match"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         300,
	}))
	r.Use(middleware.BodyLimit(int64(d.Cfg.Upload.MaxChunkedUploadSize) + bodyLimitSlack))
	r.Use(middleware.APIKeyAuth(d.Cfg.Auth))

	if d.Cfg.RateLimit.Enabled {
		window := time.Duration(d.Cfg.RateLimit.WindowSeconds) * time.Second
		r.Use(httprate.Limit(
			d.Cfg.RateLimit.RequestsPerWindow,
			window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(middleware.RateLimitHandler),
		))
	}

	uploadHandler := handlers.NewUploadHandler(d.Uploads, d.Cfg)
	serveHandler := handlers.NewServeHandler(d.KV, d.Blobs, d.Cfg)
	healthHandler := handlers.NewHealthHandler(d.KV, d.Blobs, d.Version)
	rexpumpHandler := handlers.NewRexPumpHandler(d.Tokens)

	r.Route("/api/upload", func(r chi.Router) {
		if d.Cfg.RateLimit.Enabled {
			window := time.Duration(d.Cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(httprate.Limit(
				d.Cfg.RateLimit.UploadsPerWindow,
				window,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(middleware.RateLimitHandler),
			))
		}

		r.Post("/", uploadHandler.Simple)
		r.Post("/init", uploadHandler.Init)
		r.Patch("/{id}/chunk", uploadHandler.Chunk)
		r.Post("/{id}/complete", uploadHandler.Complete)
		r.Post("/{id}/cancel", uploadHandler.Cancel)
		r.Get("/{id}/status", uploadHandler.Status)
	})

	r.Route("/m", func(r chi.Router) {
		r.Get("/{id}", serveHandler.Optimized)
		r.Get("/{id}/original", serveHandler.Original)
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
		r.Get("/stats", healthHandler.Stats)
	})

	r.Route("/api/rexpump", func(r chi.Router) {
		r.Post("/metadata", rexpumpHandler.SignedUpdate)
		r.Get("/metadata/{chain}/{addr}", rexpumpHandler.PublicGet)
	})

	return r
}

// NewAdminRouter builds the loopback admin handler: media management,
// stats, manual sweep, token locks and the Prometheus endpoint.
func NewAdminRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(time.Duration(d.Cfg.Server.RequestTimeoutSeconds) * time.Second))

	adminHandler := handlers.NewAdminHandler(d.Uploads, d.Tokens, d.KV, d.Blobs, d.Cfg)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/media/{id}", adminHandler.GetMedia)
		r.Delete("/media/{id}", adminHandler.DeleteMedia)
		r.Get("/stats", adminHandler.Stats)
		r.Post("/cleanup", adminHandler.Cleanup)

		r.Route("/rexpump", func(r chi.Router) {
			r.Post("/lock/{chain}/{addr}", adminHandler.Lock)
			r.Delete("/lock/{chain}/{addr}", adminHandler.Unlock)
			r.Get("/metadata/{chain}/{addr}", adminHandler.GetTokenMetadata)
			r.Put("/metadata/{chain}/{addr}", adminHandler.PutTokenMetadata)
			r.Delete("/metadata/{chain}/{addr}", adminHandler.DeleteTokenMetadata)
		})

		r.Handle("/metrics", promhttp.Handler())
	})

	return r
}
