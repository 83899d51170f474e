package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// TransactionStream carries created transactions for the watcher worker.
	TransactionStream = "checkout:transactions"
	// WebhookStream carries gateway-pushed status notifications.
	WebhookStream = "checkout:webhooks"
)

type EventProducer struct {
	client *redis.Client
}

func NewEventProducer(client *redis.Client) *EventProducer {
	return &EventProducer{client: client}
}

// PublishTransactionCreated announces a freshly submitted transaction so the
// watcher worker can start following its status.
func (p *EventProducer) PublishTransactionCreated(ctx context.Context, tx *transaction.Transaction) error {
	args := &redis.XAddArgs{
		Stream: TransactionStream,
		Values: map[string]any{
			"transaction_id": tx.ID,
			"external_id":    tx.ExternalID,
			"status":         string(tx.Status),
			"timestamp":      time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish transaction created event: %w", err)
	}
	return nil
}

// PublishTransactionAuthorized records an observed authorization.
func (p *EventProducer) PublishTransactionAuthorized(ctx context.Context, txID string) error {
	args := &redis.XAddArgs{
		Stream: TransactionStream,
		Values: map[string]any{
			"transaction_id": txID,
			"status":         string(transaction.StatusAuthorized),
			"timestamp":      time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish transaction authorized event: %w", err)
	}
	return nil
}

// PublishWebhook fans out a received gateway notification. Best effort: the
// webhook endpoint acks the gateway regardless of the publish outcome.
func (p *EventProducer) PublishWebhook(ctx context.Context, txID string, status transaction.Status, raw []byte) error {
	args := &redis.XAddArgs{
		Stream: WebhookStream,
		Values: map[string]any{
			"webhook_id":     uuid.New().String(),
			"transaction_id": txID,
			"status":         string(status),
			"payload":        string(raw),
			"timestamp":      time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish webhook event: %w", err)
	}
	return nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}
