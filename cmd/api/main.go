package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/burgl/checkout/internal/bootstrap"
	"github.com/burgl/checkout/internal/checkout"
	"github.com/burgl/checkout/internal/controller"
	"github.com/burgl/checkout/internal/gateway"
	infraRedis "github.com/burgl/checkout/internal/infrastructure/redis"
	customMW "github.com/burgl/checkout/internal/middleware"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "checkout-api", "checkout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	gatewayClient := gateway.NewClient(app.Config.Gateway, app.Logger, gateway.WithMetrics(app.Metrics))

	serviceOpts := []checkout.ServiceOption{checkout.WithServiceMetrics(app.Metrics)}

	var (
		events     *infraRedis.EventProducer
		idemStore  customMW.ResponseStore
		webhookPub controller.WebhookPublisher
	)
	if app.Redis != nil {
		events = infraRedis.NewEventProducer(app.Redis)
		serviceOpts = append(serviceOpts, checkout.WithEventPublisher(events))
		idemStore = infraRedis.NewIdempotencyStore(app.Redis, app.Config.Checkout.IdempotencyTTL)
		webhookPub = events
	}

	service := checkout.NewService(gatewayClient, app.Logger, serviceOpts...)

	router := controller.NewRouter(controller.RouterDeps{
		RedisClient:      app.Redis,
		Checkout:         service,
		WebhookPublisher: webhookPub,
		IdempotencyStore: idemStore,
		Metrics:          app.Metrics,
		CORSConfig:       app.Config.Server.CORS,
		RateLimitRPM:     app.Config.Checkout.RateLimitRPM,
		Logger:           app.Logger,
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
