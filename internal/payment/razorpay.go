package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RazorpayGateway talks to a Razorpay-compatible gateway: orders are created
// server-side, the client completes checkout, and the callback carries
// (order id, payment id, HMAC-SHA256 signature over "orderID|paymentID").
type RazorpayGateway struct {
	keyID     string
	keySecret string
	baseURL   string
	httpc     *http.Client
}

func NewRazorpayGateway(keyID, keySecret, baseURL string) *RazorpayGateway {
	return &RazorpayGateway{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		httpc:     &http.Client{Timeout: 10 * time.Second},
	}
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type paymentResponse struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, appointmentID uuid.UUID, amount int64, currency string) (*Order, error) {
	body, err := json.Marshal(map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  appointmentID.String(),
		"notes":    map[string]string{"appointment_id": appointmentID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("create order: gateway returned %d: %s", resp.StatusCode, snippet)
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	return &Order{
		ID:            out.ID,
		AppointmentID: appointmentID,
		Amount:        out.Amount,
		Currency:      out.Currency,
	}, nil
}

func (g *RazorpayGateway) Verify(ctx context.Context, order Order, in VerificationInput) error {
	if in.ProviderOrderID != order.ID {
		return ErrOrderMismatch
	}

	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(in.ProviderOrderID + "|" + in.ProviderPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(in.Signature)) {
		return ErrInvalidSignature
	}

	// Signature only proves the callback is genuine; the amount still has to
	// match what was ordered.
	pay, err := g.fetchPayment(ctx, in.ProviderPaymentID)
	if err != nil {
		return err
	}

	if pay.OrderID != order.ID {
		return ErrOrderMismatch
	}
	if pay.Amount != order.Amount || pay.Currency != order.Currency {
		return ErrAmountMismatch
	}
	if pay.Status != "captured" && pay.Status != "authorized" {
		return fmt.Errorf("%w: status %q", ErrPaymentNotCaptured, pay.Status)
	}

	return nil
}

func (g *RazorpayGateway) fetchPayment(ctx context.Context, paymentID string) (*paymentResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/payments/"+paymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch payment: gateway returned %d: %s", resp.StatusCode, snippet)
	}

	var out paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}

	return &out, nil
}
