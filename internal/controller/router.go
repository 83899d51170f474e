package controller

import (
	"time"

	"github.com/burgl/checkout/internal/checkout"
	"github.com/burgl/checkout/internal/infrastructure/config"
	"github.com/burgl/checkout/internal/infrastructure/observability"
	customMW "github.com/burgl/checkout/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	RedisClient      *redis.Client
	Checkout         *checkout.Service
	WebhookPublisher WebhookPublisher
	IdempotencyStore customMW.ResponseStore
	Metrics          *observability.Metrics
	CORSConfig       config.CORSConfig
	RateLimitRPM     int
	Logger           zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.RedisClient)
	checkoutH := NewCheckoutController(deps.Checkout, deps.Logger)
	webhookH := NewWebhookController(deps.Logger, deps.WebhookPublisher, deps.Metrics)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		create := r
		if deps.RateLimitRPM > 0 {
			create = create.With(customMW.RateLimit(deps.RateLimitRPM))
		}
		if deps.IdempotencyStore != nil {
			create = create.With(customMW.Idempotency(deps.IdempotencyStore))
		}
		create.Post("/create-transaction", checkoutH.CreateTransaction)

		r.Get("/check-transaction/{id}", checkoutH.CheckTransaction)
		r.Get("/qr-code/{id}", checkoutH.QRCode)
		r.Post("/webhook", webhookH.Receive)
	})

	return r
}
