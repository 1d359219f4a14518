package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OutboxStats reports relay backlog. Implemented by *database.Relay.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

// ProductCounter reports how many products are stored.
type ProductCounter interface {
	Count(ctx context.Context) (int64, error)
}

type RouterConfig struct {
	// RequestTimeout bounds every request, including synchronous scrapes.
	RequestTimeout time.Duration
	AllowedOrigins []string
	Registry       *prometheus.Registry
	DB             Pinger
	Outbox         OutboxStats
	Products       ProductCounter
}

// NewRouter mounts the API, health and metrics endpoints.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health(cfg))

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Post("/scrape", h.Scrape)
		r.Post("/scrape/batch", h.ScrapeBatch)
		r.Get("/products", h.GetProduct)
	})

	return r
}

func (h *Handlers) health(cfg RouterConfig) http.HandlerFunc {
	db, outbox, products := cfg.DB, cfg.Outbox, cfg.Products

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := map[string]any{"status": "ok"}
		status := http.StatusOK

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				h.logger.Warn("database health check failed", "error", err)
				health["status"] = "error"
				health["database"] = "unreachable"
				h.respondJSON(w, http.StatusServiceUnavailable, health)
				return
			}
			health["database"] = "ok"
		}

		if products != nil {
			if n, err := products.Count(ctx); err == nil {
				health["products"] = n
			}
		}

		if outbox != nil {
			pending, _ := outbox.GetPendingCount(ctx)
			deadLetter, _ := outbox.GetDeadLetterCount(ctx)
			health["outbox"] = map[string]any{
				"pending":     pending,
				"dead_letter": deadLetter,
			}

			if pending > 1000 {
				health["status"] = "warning"
				health["message"] = "high number of pending outbox events"
			}
			if deadLetter > 100 {
				health["status"] = "error"
				health["message"] = "high number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}

		h.respondJSON(w, status, health)
	}
}
