package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/burgl/checkout/internal/domain/errors"
	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/burgl/checkout/internal/infrastructure/config"
	"github.com/burgl/checkout/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const (
	transactionsPath = "/v1/transactions"
	secretHeader     = "api-secret"
)

// Client talks to the PIX payment gateway. It is stateless: idempotency of
// submissions rests on external_id uniqueness enforced by the gateway.
type Client struct {
	baseURL       string
	apiSecret     string
	submitTimeout time.Duration
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker[*transaction.Transaction]
	logger        zerolog.Logger
	metrics       *observability.Metrics
}

type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg config.GatewayConfig, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiSecret:     cfg.APISecret,
		submitTimeout: cfg.SubmitTimeout,
		httpClient:    &http.Client{},
		logger:        logger.With().Str("component", "gateway").Logger(),
	}
	if c.submitTimeout <= 0 {
		c.submitTimeout = 10 * time.Second
	}
	for _, o := range opts {
		o(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[*transaction.Transaction](gobreaker.Settings{
		Name:        "pix-gateway",
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		// A 4xx is the gateway working correctly and rejecting bad input; a
		// burst of customer typos must not open the breaker and block every
		// checkout.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var gwErr *domainErrors.GatewayError
			return errors.As(err, &gwErr) && gwErr.StatusCode >= 400 && gwErr.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			}
		},
	})

	return c
}

// Ready reports whether the client holds the gateway credential. Called at
// the request boundary before any body is read, so a misconfigured
// deployment fails fast without touching the network.
func (c *Client) Ready() error {
	if c.apiSecret == "" {
		return domainErrors.ErrMissingCredential
	}
	return nil
}

// Submit creates a transaction at the gateway. Single attempt, hard timeout;
// a timeout is reported as ErrGatewayTimeout, any other failure keeps its
// own shape.
func (c *Client) Submit(ctx context.Context, req *transaction.Request) (*transaction.Transaction, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode transaction request: %w", err)
	}

	tx, err := c.execute(ctx, "submit", func(ctx context.Context) (*transaction.Transaction, error) {
		ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transactionsPath, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set(secretHeader, c.apiSecret)

		return c.do(httpReq, submitError)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("transaction_id", tx.ID).
		Str("external_id", tx.ExternalID).
		Str("status", string(tx.Status)).
		Msg("transaction created")
	return tx, nil
}

// Fetch returns the current gateway view of a transaction. No timeout
// override and no retry; polling callers absorb transient failures.
func (c *Client) Fetch(ctx context.Context, id string) (*transaction.Transaction, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}

	return c.execute(ctx, "fetch", func(ctx context.Context) (*transaction.Transaction, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+transactionsPath+"/"+id, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set(secretHeader, c.apiSecret)

		return c.do(httpReq, fetchError)
	})
}

// execute runs fn through the circuit breaker and records request metrics.
func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) (*transaction.Transaction, error)) (*transaction.Transaction, error) {
	start := time.Now()
	tx, err := c.breaker.Execute(func() (*transaction.Transaction, error) {
		return fn(ctx)
	})

	if c.metrics != nil {
		c.metrics.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.GatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	}

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s transaction: %w", operation, domainErrors.ErrGatewayUnavailable)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s transaction: %w", operation, domainErrors.ErrGatewayTimeout)
		}
		return nil, err
	}
	return tx, nil
}

// do performs the HTTP exchange and decodes the gateway answer. toError maps
// a non-success payload to a GatewayError; Submit and Fetch derive messages
// differently.
func (c *Client) do(req *http.Request, toError func(status int, raw []byte) *domainErrors.GatewayError) (*transaction.Transaction, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	var probe struct {
		HasError bool `json:"hasError"`
	}
	// A body that is not JSON at all still falls through to the status check.
	_ = json.Unmarshal(raw, &probe)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || probe.HasError {
		gwErr := toError(resp.StatusCode, raw)
		c.logger.Warn().
			Int("status", gwErr.StatusCode).
			Str("message", gwErr.Message).
			Msg("gateway rejected request")
		return nil, gwErr
	}

	var tx transaction.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	tx.Raw = raw
	return &tx, nil
}

// submitError derives the user-facing message for a failed submission:
// field-level validation errors first, then the top-level error string,
// then a generic fallback. The raw payload always rides along.
func submitError(status int, raw []byte) *domainErrors.GatewayError {
	message := "payment could not be processed"

	var body struct {
		Error       string   `json:"error"`
		ErrorFields []string `json:"errorFields"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case len(body.ErrorFields) > 0:
			message = "validation failed: " + strings.Join(body.ErrorFields, ", ")
		case body.Error != "":
			message = body.Error
		}
	}

	return &domainErrors.GatewayError{
		StatusCode: normalizeStatus(status),
		Message:    message,
		Details:    jsonDetails(raw),
	}
}

func fetchError(status int, raw []byte) *domainErrors.GatewayError {
	message := "unable to fetch transaction"

	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		message = body.Message
	}

	return &domainErrors.GatewayError{
		StatusCode: normalizeStatus(status),
		Message:    message,
		Details:    jsonDetails(raw),
	}
}

// jsonDetails keeps the provider payload only when it is valid JSON. An HTML
// error page embedded as RawMessage would break the storefront error body at
// encode time.
func jsonDetails(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return raw
	}
	return nil
}

// normalizeStatus maps "no usable status" (omitted, or a 2xx that carried
// hasError) to 400 before it is propagated to the storefront.
func normalizeStatus(status int) int {
	if status < 300 {
		return http.StatusBadRequest
	}
	return status
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
