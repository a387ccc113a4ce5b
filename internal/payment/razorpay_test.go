package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret"

func sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// gatewayStub fakes the provider's /orders and /payments endpoints.
func gatewayStub(t *testing.T, payments map[string]paymentResponse) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "test_key", user)
		require.Equal(t, testSecret, pass)

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			var req struct {
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Receipt  string `json:"receipt"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(orderResponse{
				ID:       "order_test123",
				Amount:   req.Amount,
				Currency: req.Currency,
			})
		case r.Method == http.MethodGet:
			id := r.URL.Path[len("/payments/"):]
			pay, found := payments[id]
			if !found {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(pay)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestCreateOrder(t *testing.T) {
	srv := gatewayStub(t, nil)
	defer srv.Close()

	g := NewRazorpayGateway("test_key", testSecret, srv.URL)
	apptID := uuid.New()

	order, err := g.CreateOrder(context.Background(), apptID, 55000, "INR")
	require.NoError(t, err)
	assert.Equal(t, "order_test123", order.ID)
	assert.Equal(t, apptID, order.AppointmentID)
	assert.Equal(t, int64(55000), order.Amount)
	assert.Equal(t, "INR", order.Currency)
}

func TestCreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	g := NewRazorpayGateway("test_key", testSecret, srv.URL)
	_, err := g.CreateOrder(context.Background(), uuid.New(), 55000, "INR")
	assert.Error(t, err)
}

func TestVerifyAccepted(t *testing.T) {
	order := Order{ID: "order_test123", AppointmentID: uuid.New(), Amount: 55000, Currency: "INR"}
	srv := gatewayStub(t, map[string]paymentResponse{
		"pay_1": {ID: "pay_1", OrderID: order.ID, Amount: 55000, Currency: "INR", Status: "captured"},
	})
	defer srv.Close()

	g := NewRazorpayGateway("test_key", testSecret, srv.URL)
	err := g.Verify(context.Background(), order, VerificationInput{
		ProviderOrderID:   order.ID,
		ProviderPaymentID: "pay_1",
		Signature:         sign(order.ID, "pay_1"),
	})
	assert.NoError(t, err)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	order := Order{ID: "order_test123", Amount: 55000, Currency: "INR"}
	srv := gatewayStub(t, nil)
	defer srv.Close()

	g := NewRazorpayGateway("test_key", testSecret, srv.URL)
	err := g.Verify(context.Background(), order, VerificationInput{
		ProviderOrderID:   order.ID,
		ProviderPaymentID: "pay_1",
		Signature:         sign(order.ID, "pay_other"),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsForeignOrder(t *testing.T) {
	order := Order{ID: "order_test123", Amount: 55000, Currency: "INR"}
	g := NewRazorpayGateway("test_key", testSecret, "http://unused.invalid")

	err := g.Verify(context.Background(), order, VerificationInput{
		ProviderOrderID:   "order_other",
		ProviderPaymentID: "pay_1",
		Signature:         sign("order_other", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrOrderMismatch)
}

func TestVerifyRejectsAmountMismatch(t *testing.T) {
	order := Order{ID: "order_test123", Amount: 55000, Currency: "INR"}
	srv := gatewayStub(t, map[string]paymentResponse{
		"pay_1": {ID: "pay_1", OrderID: order.ID, Amount: 100, Currency: "INR", Status: "captured"},
	})
	defer srv.Close()

	g := NewRazorpayGateway("test_key", testSecret, srv.URL)
	err := g.Verify(context.Background(), order, VerificationInput{
		ProviderOrderID:   order.ID,
		ProviderPaymentID: "pay_1",
		Signature:         sign(order.ID, "pay_1"),
	})
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestVerifyRejectsUncapturedPayment(t *testing.T) {
	order := Order{ID: "order_test123", Amount: 55000, Currency: "INR"}
	srv := gatewayStub(t, map[string]paymentResponse{
		"pay_1": {ID: "pay_1", OrderID: order.ID, Amount: 55000, Currency: "INR", Status: "failed"},
	})
	defer srv.Close()

	g := NewRazorpayGateway("test_key", testSecret, srv.URL)
	err := g.Verify(context.Background(), order, VerificationInput{
		ProviderOrderID:   order.ID,
		ProviderPaymentID: "pay_1",
		Signature:         sign(order.ID, "pay_1"),
	})
	assert.ErrorIs(t, err, ErrPaymentNotCaptured)
}

func TestVerifyRejectsPaymentForDifferentOrder(t *testing.T) {
	order := Order{ID: "order_test123", Amount: 55000, Currency: "INR"}
	srv := gatewayStub(t, map[string]paymentResponse{
		"pay_1": {ID: "pay_1", OrderID: "order_other", Amount: 55000, Currency: "INR", Status: "captured"},
	})
	defer srv.Close()

	g := NewRazorpayGateway("test_key", testSecret, srv.URL)
	err := g.Verify(context.Background(), order, VerificationInput{
		ProviderOrderID:   order.ID,
		ProviderPaymentID: "pay_1",
		Signature:         sign(order.ID, "pay_1"),
	})
	assert.ErrorIs(t, err, ErrOrderMismatch)
}
