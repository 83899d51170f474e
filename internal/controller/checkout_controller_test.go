package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/burgl/checkout/internal/checkout"
	domainErrors "github.com/burgl/checkout/internal/domain/errors"
	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/burgl/checkout/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCheckoutController(gw *testutil.MockGateway) *CheckoutController {
	service := checkout.NewService(gw, zerolog.Nop())
	return NewCheckoutController(service, zerolog.Nop())
}

const validOrderBody = `{
	"external_id": "checkout_123",
	"total_amount": 32.90,
	"payment_method": "pix",
	"webhook_url": "https://store.example.com/api/webhook",
	"items": [{"name": "X-Burger", "price": 32.90, "quantity": 1}],
	"customer": {"name": "Ana Silva", "phone": "(11) 98765-4321", "document": "529.982.247-25"}
}`

func TestCreateTransaction_Success_ProxiesGatewayBody(t *testing.T) {
	gw := testutil.NewMockGateway()
	handler := newTestCheckoutController(gw)

	req := httptest.NewRequest(http.MethodPost, "/api/create-transaction", strings.NewReader(validOrderBody))
	rec := httptest.NewRecorder()

	handler.CreateTransaction(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	require.Len(t, gw.SubmittedRequests, 1)
	submitted := gw.SubmittedRequests[0]
	assert.Equal(t, "checkout_123", submitted.ExternalID)
	assert.Equal(t, "PIX", submitted.PaymentMethod)
	assert.Equal(t, "11987654321@temp.com", submitted.Customer.Email)
	assert.Equal(t, "CPF", submitted.Customer.DocumentType)
}

func TestCreateTransaction_Success_BodyIsByteExact(t *testing.T) {
	// The gateway response carries fields this service does not model; the
	// storefront must still receive them.
	raw := `{"id":"tx_9","status":"PENDING","pix":{"payload":"000201pix"},"acquirer":{"name":"lira"}}`

	gw := testutil.NewMockGateway()
	gw.SubmitFunc = func(_ context.Context, _ *transaction.Request) (*transaction.Transaction, error) {
		return &transaction.Transaction{
			ID:     "tx_9",
			Status: transaction.StatusPending,
			Raw:    json.RawMessage(raw),
		}, nil
	}
	handler := newTestCheckoutController(gw)

	req := httptest.NewRequest(http.MethodPost, "/api/create-transaction", strings.NewReader(validOrderBody))
	rec := httptest.NewRecorder()

	handler.CreateTransaction(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, rec.Body.String())
}

func TestCreateTransaction_MissingCredential_BeforeBodyParse(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.ReadyErr = domainErrors.ErrMissingCredential
	handler := newTestCheckoutController(gw)

	// Invalid JSON on purpose: the credential check must answer first.
	req := httptest.NewRequest(http.MethodPost, "/api/create-transaction", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	handler.CreateTransaction(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.True(t, response.HasError)
	assert.Equal(t, "payment gateway credential not configured", response.Message)
	assert.Empty(t, gw.SubmittedRequests)
}

func TestCreateTransaction_InvalidJSONBody(t *testing.T) {
	handler := newTestCheckoutController(testutil.NewMockGateway())

	req := httptest.NewRequest(http.MethodPost, "/api/create-transaction", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()

	handler.CreateTransaction(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "invalid JSON body", response.Message)
}

func TestCreateTransaction_MissingField_NamesTheField(t *testing.T) {
	gw := testutil.NewMockGateway()
	handler := newTestCheckoutController(gw)

	body := `{
		"external_id": "checkout_123",
		"total_amount": 32.90,
		"payment_method": "pix",
		"webhook_url": "https://store.example.com/api/webhook",
		"items": [{"name": "X-Burger", "price": 32.90}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/create-transaction", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.CreateTransaction(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.True(t, response.HasError)
	assert.Equal(t, "missing required field: customer", response.Message)
	assert.Empty(t, gw.SubmittedRequests)
}

func TestCreateTransaction_GatewayTimeout(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.SubmitFunc = func(_ context.Context, _ *transaction.Request) (*transaction.Transaction, error) {
		return nil, domainErrors.ErrGatewayTimeout
	}
	handler := newTestCheckoutController(gw)

	req := httptest.NewRequest(http.MethodPost, "/api/create-transaction", strings.NewReader(validOrderBody))
	rec := httptest.NewRecorder()

	handler.CreateTransaction(rec, req)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "timeout communicating with the payment gateway", response.Message)
}

func TestCreateTransaction_GatewayRejection_StatusPassesThrough(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.SubmitFunc = func(_ context.Context, _ *transaction.Request) (*transaction.Transaction, error) {
		return nil, &domainErrors.GatewayError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "customer.document",
		}
	}
	handler := newTestCheckoutController(gw)

	req := httptest.NewRequest(http.MethodPost, "/api/create-transaction", strings.NewReader(validOrderBody))
	rec := httptest.NewRecorder()

	handler.CreateTransaction(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "customer.document", response.Message)
}

func newParamRouter(handler *CheckoutController) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/check-transaction/{id}", handler.CheckTransaction)
	r.Get("/api/qr-code/{id}", handler.QRCode)
	return r
}

func TestCheckTransaction_ProxiesGatewayView(t *testing.T) {
	gw := testutil.NewMockGateway()
	tx := testutil.NewTestTransaction("tx_42", transaction.StatusAuthorized)
	gw.AddTransaction(tx)

	r := newParamRouter(newTestCheckoutController(gw))

	req := httptest.NewRequest(http.MethodGet, "/api/check-transaction/tx_42", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(tx.Raw), rec.Body.String())
	assert.Equal(t, []string{"tx_42"}, gw.FetchedIDs)
}

func TestCheckTransaction_GatewayErrorSurfaces(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.FetchFunc = func(_ context.Context, _ string) (*transaction.Transaction, error) {
		return nil, &domainErrors.GatewayError{StatusCode: http.StatusNotFound, Message: "transaction not found"}
	}

	r := newParamRouter(newTestCheckoutController(gw))

	req := httptest.NewRequest(http.MethodGet, "/api/check-transaction/tx_missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "transaction not found", response.Message)
}

func TestQRCode_RendersPNG(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.AddTransaction(testutil.NewTestTransaction("tx_7", transaction.StatusPending))

	r := newParamRouter(newTestCheckoutController(gw))

	req := httptest.NewRequest(http.MethodGet, "/api/qr-code/tx_7", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	// PNG magic bytes
	require.Greater(t, rec.Body.Len(), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes()[:4])
}

func TestQRCode_NoPixPayload(t *testing.T) {
	gw := testutil.NewMockGateway()
	gw.FetchFunc = func(_ context.Context, id string) (*transaction.Transaction, error) {
		return &transaction.Transaction{ID: id, Status: transaction.StatusPending}, nil
	}

	r := newParamRouter(newTestCheckoutController(gw))

	req := httptest.NewRequest(http.MethodGet, "/api/qr-code/tx_7", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "transaction has no pix payload", response.Message)
}
