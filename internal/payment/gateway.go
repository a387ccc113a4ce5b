package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidSignature   = errors.New("payment signature is invalid")
	ErrOrderMismatch      = errors.New("payment does not belong to this order")
	ErrAmountMismatch     = errors.New("payment amount does not match the order")
	ErrPaymentNotCaptured = errors.New("payment is not captured")
)

// Order is the gateway-side handle for one pending payment, tied 1:1 to a
// pending_payment appointment.
type Order struct {
	ID            string
	AppointmentID uuid.UUID
	Amount        int64 // minor currency units
	Currency      string
}

// VerificationInput is the client-relayed gateway callback.
type VerificationInput struct {
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

// Gateway is the narrow payment boundary. Verify must cryptographically
// validate the provider signature and confirm amount and order identity; the
// orchestrator never trusts a client "success" claim on its own.
type Gateway interface {
	CreateOrder(ctx context.Context, appointmentID uuid.UUID, amount int64, currency string) (*Order, error)
	Verify(ctx context.Context, order Order, in VerificationInput) error
}
