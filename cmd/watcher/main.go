package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/burgl/checkout/internal/bootstrap"
	"github.com/burgl/checkout/internal/checkout"
	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/burgl/checkout/internal/gateway"
	infraRedis "github.com/burgl/checkout/internal/infrastructure/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "checkout-watcher", "checkout_watcher")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Redis == nil {
		app.Logger.Fatal().Msg("The watcher consumes the transaction stream; set redis.enabled=true")
	}

	gatewayClient := gateway.NewClient(app.Config.Gateway, app.Logger, gateway.WithMetrics(app.Metrics))
	events := infraRedis.NewEventProducer(app.Redis)

	watcherCfg := app.Config.Watcher
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.TransactionStream,
		watcherCfg.ConsumerGroup,
		app.Config.InstanceID,
		watcherCfg.BatchSize,
		watcherCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
	}

	app.Logger.Info().
		Str("stream", infraRedis.TransactionStream).
		Str("group", watcherCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Watcher started, listening for transactions...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runTransactionWatchers(gCtx, app, consumer, gatewayClient, events)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down watcher...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Watcher error")
	}
	app.Logger.Info().Msg("Watcher exited")
}

// runTransactionWatchers consumes created transactions and follows each one
// until it authorizes, the watch TTL passes, or the process stops. One
// goroutine per transaction; the Redis lock keeps replicas from doubling up.
func runTransactionWatchers(
	ctx context.Context,
	app *bootstrap.App,
	consumer *infraRedis.StreamConsumer,
	gatewayClient *gateway.Client,
	events *infraRedis.EventProducer,
) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ack := func(messageID string) {
		if err := consumer.Ack(ctx, messageID); err != nil {
			app.Logger.Warn().Err(err).Str("message_id", messageID).Msg("Failed to ack message")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := consumer.Read(ctx)
		if err != nil {
			app.Logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				txID, _ := msg.Values["transaction_id"].(string)
				statusStr, _ := msg.Values["status"].(string)
				status := transaction.Status(statusStr)

				if txID == "" {
					app.Logger.Error().Str("message_id", msg.ID).Msg("Missing transaction ID in stream message")
					ack(msg.ID)
					continue
				}

				// Authorized events (our own included) need no watcher.
				if status.Authorized() {
					ack(msg.ID)
					continue
				}

				lock := infraRedis.NewWatchLock(app.Redis, txID, app.Config.Watcher.WatchTTL)
				acquired, err := lock.Acquire(ctx)
				if err != nil {
					app.Logger.Error().Err(err).Str("transaction_id", txID).Msg("Failed to acquire watch lock")
					time.Sleep(1 * time.Second)
					continue
				}
				if !acquired {
					app.Logger.Debug().Str("transaction_id", txID).Msg("Transaction already watched, skipping")
					ack(msg.ID)
					continue
				}

				app.Logger.Info().Str("transaction_id", txID).Str("status", statusStr).Msg("Watching transaction")

				wg.Add(1)
				go func(txID string, status transaction.Status, lock *infraRedis.WatchLock) {
					defer wg.Done()
					watchTransaction(ctx, app, gatewayClient, events, txID, status)

					releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := lock.Release(releaseCtx); err != nil {
						app.Logger.Warn().Err(err).Str("transaction_id", txID).Msg("Failed to release watch lock")
					}
				}(txID, status, lock)

				ack(msg.ID)
			}
		}
	}
}

func watchTransaction(
	ctx context.Context,
	app *bootstrap.App,
	gatewayClient *gateway.Client,
	events *infraRedis.EventProducer,
	txID string,
	status transaction.Status,
) {
	watchCtx, cancel := context.WithTimeout(ctx, app.Config.Watcher.WatchTTL)
	defer cancel()

	app.Metrics.ActiveWatchers.Inc()
	defer app.Metrics.ActiveWatchers.Dec()

	watcher := checkout.NewWatcher(gatewayClient, txID, status,
		checkout.WithInterval(app.Config.Checkout.PollInterval),
		checkout.WithLogger(app.Logger),
		checkout.WithWatcherMetrics(app.Metrics),
		checkout.WithOnAuthorized(func(id string) {
			publishCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer pubCancel()
			if err := events.PublishTransactionAuthorized(publishCtx, id); err != nil {
				app.Logger.Warn().Err(err).Str("transaction_id", id).Msg("Failed to publish authorized event")
			}
			// The transaction reached its terminal success; stop this watch.
			cancel()
		}),
	)

	watcher.Run(watchCtx)
}
