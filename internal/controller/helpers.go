package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	domainErrors "github.com/burgl/checkout/internal/domain/errors"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeRawJSON proxies a gateway body untouched, so fields this service does
// not model reach the storefront intact.
func writeRawJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw)
}

// writeError converts the error taxonomy into the storefront shape. Nothing
// internal leaks: unknown errors collapse into a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{HasError: true, Message: validationErr.Message})
		return
	}

	if errors.Is(err, domainErrors.ErrMissingCredential) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			HasError: true,
			Message:  "payment gateway credential not configured",
		})
		return
	}

	if errors.Is(err, domainErrors.ErrGatewayTimeout) {
		writeJSON(w, http.StatusRequestTimeout, ErrorResponse{
			HasError: true,
			Message:  "timeout communicating with the payment gateway",
		})
		return
	}

	if errors.Is(err, domainErrors.ErrGatewayUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			HasError: true,
			Message:  "payment gateway temporarily unavailable",
		})
		return
	}

	var gatewayErr *domainErrors.GatewayError
	if errors.As(err, &gatewayErr) {
		writeJSON(w, gatewayErr.StatusCode, ErrorResponse{
			HasError: true,
			Message:  gatewayErr.Message,
			Details:  gatewayErr.Details,
		})
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		HasError: true,
		Message:  "internal server error",
	})
}
