package paymentprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("shop-1", "secret-1")
	client.apiURL = server.URL
	return client
}

func TestCreatePayment(t *testing.T) {
	var gotIdempotenceKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		gotIdempotenceKey = r.Header.Get("Idempotence-Key")

		var req CreatePaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "299.00", req.Amount.Value)

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(Payment{
			ID:     "pay-1",
			Status: StatusPending,
			Amount: req.Amount,
			Confirmation: Confirmation{
				Type:            "redirect",
				ConfirmationURL: "https://yookassa.test/checkout/pay-1",
			},
			Metadata: req.Metadata,
		})
	})

	payment, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount:       Amount{Value: "299.00", Currency: "RUB"},
		Confirmation: Confirmation{Type: "redirect", ReturnURL: "https://t.me/bot"},
		Capture:      true,
		Metadata:     map[string]string{"user_id": "42"},
	})

	require.NoError(t, err)
	assert.Equal(t, "pay-1", payment.ID)
	assert.Equal(t, StatusPending, payment.Status)
	assert.Equal(t, "42", payment.Metadata["user_id"])
	assert.NotEmpty(t, gotIdempotenceKey)
}

func TestCreatePayment_IdempotenceKeyUniquePerCall(t *testing.T) {
	var keys []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotence-Key"))
		_ = json.NewEncoder(w).Encode(Payment{ID: "pay-1", Status: StatusPending})
	})

	req := CreatePaymentRequest{Amount: Amount{Value: "299.00", Currency: "RUB"}}
	_, err := client.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	_, err = client.CreatePayment(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1])
}

func TestGetPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/payments/pay-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Payment{ID: "pay-1", Status: StatusSucceeded})
	})

	payment, err := client.GetPayment(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, payment.Status)
}

func TestGetPayment_GatewayError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := client.GetPayment(context.Background(), "pay-1")

	assert.ErrorIs(t, err, ErrGateway)
}
