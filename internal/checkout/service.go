package checkout

import (
	"context"
	"time"

	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/burgl/checkout/internal/infrastructure/observability"
	"github.com/burgl/checkout/pkg/retry"
	"github.com/rs/zerolog"
)

// Gateway is the outbound side of the checkout flow.
type Gateway interface {
	// Ready reports whether the gateway credential is configured.
	Ready() error
	// Submit creates a transaction. Single attempt, hard timeout.
	Submit(ctx context.Context, req *transaction.Request) (*transaction.Transaction, error)
	// Fetch returns the gateway's current view of a transaction.
	Fetch(ctx context.Context, id string) (*transaction.Transaction, error)
}

// EventPublisher fans out checkout events. Publishing is always best effort:
// the customer-facing flow never fails because the stream is down.
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, tx *transaction.Transaction) error
}

// Service drives the order-to-payment lifecycle: normalize, submit, observe.
type Service struct {
	gateway Gateway
	events  EventPublisher // nil when redis is disabled
	logger  zerolog.Logger
	metrics *observability.Metrics
}

type ServiceOption func(*Service)

func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

func WithServiceMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(gw Gateway, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		gateway: gw,
		logger:  logger.With().Str("component", "checkout").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ready is checked at the request boundary before the order body is parsed.
func (s *Service) Ready() error {
	return s.gateway.Ready()
}

// CreateTransaction validates and normalizes the raw order, submits it, and
// announces the created transaction to the watcher stream.
func (s *Service) CreateTransaction(ctx context.Context, in *OrderInput, clientIP string) (*transaction.Transaction, error) {
	req, err := BuildRequest(in, clientIP)
	if err != nil {
		return nil, err
	}

	tx, err := s.gateway.Submit(ctx, req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.TransactionsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TransactionsTotal.WithLabelValues(string(tx.Status)).Inc()
	}

	if s.events != nil {
		err := retry.Do(ctx, retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
		}, func() error {
			return s.events.PublishTransactionCreated(ctx, tx)
		})
		if err != nil {
			// The storefront already has its transaction; losing the event
			// only delays the background watcher.
			s.logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg("failed to publish created event")
		}
	}

	return tx, nil
}

// CheckTransaction is the manual "check now" path: one fetch, no retry,
// errors surface to the caller.
func (s *Service) CheckTransaction(ctx context.Context, id string) (*transaction.Transaction, error) {
	return s.gateway.Fetch(ctx, id)
}
