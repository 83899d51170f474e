package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainErrors "github.com/burgl/checkout/internal/domain/errors"
	"github.com/burgl/checkout/internal/domain/transaction"
	"github.com/burgl/checkout/internal/infrastructure/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, secret string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.GatewayConfig{
		BaseURL:       srv.URL,
		APISecret:     secret,
		SubmitTimeout: 200 * time.Millisecond,
	}, zerolog.Nop())
}

func testRequest() *transaction.Request {
	return &transaction.Request{
		ExternalID:    "checkout_123",
		TotalAmount:   32.90,
		PaymentMethod: "PIX",
		WebhookURL:    "https://shop.example/api/webhook",
		Customer:      transaction.Customer{Name: "Ana", Email: "ana@example.com", Phone: "11987654321"},
		Items: []transaction.Item{
			{ID: "item_1", Title: "Burger", Description: "Burger", Quantity: 1, Price: 32.90},
		},
	}
}

func TestSubmit_Success(t *testing.T) {
	// The response carries a field this service does not model; it must
	// survive in Raw for the passthrough handlers.
	respBody := `{"id":"tx_1","external_id":"checkout_123","status":"PENDING","total_value":32.9,"pix":{"payload":"000201pix"},"acquirer":"lira"}`

	var gotSecret, gotPath, gotMethod string
	var gotBody transaction.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("api-secret")
		gotPath = r.URL.Path
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(respBody))
	}, "secret-1")

	tx, err := client.Submit(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "secret-1", gotSecret)
	assert.Equal(t, "/v1/transactions", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "checkout_123", gotBody.ExternalID)

	assert.Equal(t, "tx_1", tx.ID)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.Equal(t, "000201pix", tx.PixPayload())
	assert.Equal(t, respBody, string(tx.Raw))
}

func TestSubmit_MissingCredential(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	_, err := client.Submit(context.Background(), testRequest())

	assert.ErrorIs(t, err, domainErrors.ErrMissingCredential)
	assert.False(t, called, "credential check must happen before any network call")
}

func TestSubmit_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{}`))
	}, "secret-1")

	_, err := client.Submit(context.Background(), testRequest())

	assert.ErrorIs(t, err, domainErrors.ErrGatewayTimeout)
}

func TestSubmit_ErrorMessagePrecedence(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantMessage string
		wantDetails string
	}{
		{
			name:        "field errors joined",
			status:      http.StatusUnprocessableEntity,
			body:        `{"hasError":true,"errorFields":["email","phone"],"error":"ignored"}`,
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "validation failed: email, phone",
			wantDetails: `{"hasError":true,"errorFields":["email","phone"],"error":"ignored"}`,
		},
		{
			name:        "top-level error string",
			status:      http.StatusBadRequest,
			body:        `{"hasError":true,"error":"invalid document"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "invalid document",
			wantDetails: `{"hasError":true,"error":"invalid document"}`,
		},
		{
			name:        "generic fallback for opaque body, details dropped",
			status:      http.StatusInternalServerError,
			body:        `upstream exploded`,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "payment could not be processed",
			wantDetails: "",
		},
		{
			name:        "hasError with 200 defaults to 400",
			status:      http.StatusOK,
			body:        `{"hasError":true,"error":"duplicate external_id"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "duplicate external_id",
			wantDetails: `{"hasError":true,"error":"duplicate external_id"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, "secret-1")

			_, err := client.Submit(context.Background(), testRequest())
			require.Error(t, err)

			var gwErr *domainErrors.GatewayError
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.wantStatus, gwErr.StatusCode)
			assert.Equal(t, tt.wantMessage, gwErr.Message)
			assert.Equal(t, tt.wantDetails, string(gwErr.Details))
		})
	}
}

// An HTML 502 page from a proxy in front of the gateway must still produce
// an encodable error: the message survives, the non-JSON body does not ride
// along as Details.
func TestSubmit_NonJSONProviderBodyDropsDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>Bad Gateway</html>`))
	}, "secret-1")

	_, err := client.Submit(context.Background(), testRequest())

	var gwErr *domainErrors.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadGateway, gwErr.StatusCode)
	assert.Nil(t, gwErr.Details)
}

func TestSubmit_ValidationRejectionsDoNotOpenBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"hasError":true,"errorFields":["customer.document"]}`))
	}, "secret-1")

	// Well past the trip threshold: every attempt must still reach the
	// gateway and come back as the provider's 422, never as a 503.
	for i := 0; i < 20; i++ {
		_, err := client.Submit(context.Background(), testRequest())

		var gwErr *domainErrors.GatewayError
		require.ErrorAs(t, err, &gwErr)
		require.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
		require.NotErrorIs(t, err, domainErrors.ErrGatewayUnavailable)
	}
}

func TestSubmit_ServerErrorsOpenBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"hasError":true,"error":"upstream down"}`))
	}, "secret-1")

	var sawUnavailable bool
	for i := 0; i < 20; i++ {
		_, err := client.Submit(context.Background(), testRequest())
		require.Error(t, err)
		if errors.Is(err, domainErrors.ErrGatewayUnavailable) {
			sawUnavailable = true
			break
		}
	}

	assert.True(t, sawUnavailable, "sustained 5xx failures should open the breaker")
}

func TestFetch_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/transactions/tx_9", r.URL.Path)
		assert.Equal(t, "secret-1", r.Header.Get("api-secret"))
		w.Write([]byte(`{"id":"tx_9","status":"AUTHORIZED","total_value":32.9}`))
	}, "secret-1")

	tx, err := client.Fetch(context.Background(), "tx_9")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusAuthorized, tx.Status)
}

func TestFetch_ErrorUsesMessageField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"transaction not found"}`))
	}, "secret-1")

	_, err := client.Fetch(context.Background(), "missing")

	var gwErr *domainErrors.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusNotFound, gwErr.StatusCode)
	assert.Equal(t, "transaction not found", gwErr.Message)
}

func TestFetch_ErrorGenericFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>nope</html>`))
	}, "secret-1")

	_, err := client.Fetch(context.Background(), "tx_1")

	var gwErr *domainErrors.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "unable to fetch transaction", gwErr.Message)
	assert.Nil(t, gwErr.Details)
}

func TestFetch_MissingCredential(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not reach the gateway without a credential")
	}, "")

	_, err := client.Fetch(context.Background(), "tx_1")
	assert.ErrorIs(t, err, domainErrors.ErrMissingCredential)
}
