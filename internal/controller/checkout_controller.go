package controller

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/burgl/checkout/internal/checkout"
	domainErrors "github.com/burgl/checkout/internal/domain/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
)

const qrCodeSize = 256

// CheckoutController handles the storefront-facing transaction endpoints.
type CheckoutController struct {
	service *checkout.Service
	logger  zerolog.Logger
}

func NewCheckoutController(service *checkout.Service, logger zerolog.Logger) *CheckoutController {
	return &CheckoutController{service: service, logger: logger}
}

// CreateTransaction handles POST /api/create-transaction
func (h *CheckoutController) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	// Credential check comes before the body is even read.
	if err := h.service.Ready(); err != nil {
		writeError(w, err)
		return
	}

	var in checkout.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, domainErrors.NewValidationError("body", "invalid JSON body"))
		return
	}

	tx, err := h.service.CreateTransaction(r.Context(), &in, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeRawJSON(w, http.StatusOK, tx.Raw)
}

// CheckTransaction handles GET /api/check-transaction/{id}
func (h *CheckoutController) CheckTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(); err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.service.CheckTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeRawJSON(w, http.StatusOK, tx.Raw)
}

// QRCode handles GET /api/qr-code/{id}. The PNG encodes pix.payload exactly
// as the gateway issued it.
func (h *CheckoutController) QRCode(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(); err != nil {
		writeError(w, err)
		return
	}

	tx, err := h.service.CheckTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	payload := tx.PixPayload()
	if payload == "" {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			HasError: true,
			Message:  "transaction has no pix payload",
		})
		return
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, qrCodeSize)
	if err != nil {
		h.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("failed to render qr code")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			HasError: true,
			Message:  "failed to render qr code",
		})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// clientIP assumes the RealIP middleware already resolved forwarded headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
