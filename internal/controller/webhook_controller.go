package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/burgl/checkout/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// WebhookPublisher fans a received notification out to the webhook stream.
type WebhookPublisher interface {
	PublishWebhook(ctx context.Context, txID string, status transaction.Status, raw []byte) error
}

// WebhookController acknowledges gateway-pushed status notifications. The
// gateway retries on non-2xx, so anything parseable is acked with 200 and
// processing stays log-and-forward only.
type WebhookController struct {
	logger  zerolog.Logger
	events  WebhookPublisher // nil when redis is disabled
	metrics *observability.Metrics
}

func NewWebhookController(logger zerolog.Logger, events WebhookPublisher, metrics *observability.Metrics) *WebhookController {
	return &WebhookController{
		logger:  logger.With().Str("component", "webhook").Logger(),
		events:  events,
		metrics: metrics,
	}
}

// Receive handles POST /api/webhook
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read webhook body")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process webhook"})
		return
	}

	// Any well-formed JSON object is acceptable; fields are extracted
	// loosely so an unexpected type in one of them cannot turn a valid
	// notification into a parse failure.
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Error().Err(err).Msg("failed to parse webhook body")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process webhook"})
		return
	}

	txID, _ := payload["id"].(string)
	externalID, _ := payload["external_id"].(string)
	statusStr, _ := payload["status"].(string)
	status := transaction.Status(statusStr)

	event := h.logger.Info().
		Str("transaction_id", txID).
		Str("external_id", externalID).
		Str("status", statusStr)

	switch status {
	case transaction.StatusAuthorized:
		event.Msg("webhook: payment authorized")
	case transaction.StatusFailed:
		event.Msg("webhook: payment failed")
	case transaction.StatusChargeback:
		event.Msg("webhook: chargeback received")
	default:
		event.Msg("webhook: status notification")
	}

	if h.metrics != nil {
		h.metrics.WebhooksTotal.WithLabelValues(statusStr).Inc()
	}

	if h.events != nil {
		if err := h.events.PublishWebhook(r.Context(), txID, status, raw); err != nil {
			// Best effort only; the gateway still gets its ack.
			h.logger.Warn().Err(err).Str("transaction_id", txID).Msg("failed to publish webhook event")
		}
	}

	writeJSON(w, http.StatusOK, WebhookAck{Received: true})
}
