package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/roza-in/client-sub001/internal/availability"
	"github.com/roza-in/client-sub001/internal/schedule"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already has an active appointment")
)

// Repository contains all DB interactions needed by the orchestrator.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Appointment, error)

	// CreatePending inserts the appointment in pending_payment. The active-slot
	// uniqueness is enforced by the store, never by a prior read: a losing
	// concurrent insert gets ErrSlotTaken. A replay of an already-used
	// idempotency key returns the existing row with created=false.
	CreatePending(ctx context.Context, appt *Appointment) (*Appointment, bool, error)

	// UpdateStatus is a compare-and-swap transition; ErrAppointmentNotFound
	// when the row is missing or no longer in the `from` status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// CancelFrom cancels from any of the given statuses, recording the reason.
	CancelFrom(ctx context.Context, id uuid.UUID, from []Status, to Status, reason string) (*Appointment, error)

	SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error

	// Reconciliation
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)

	// Availability feed (implements availability.BookingSource)
	ActiveIntervals(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]availability.Interval, error)

	// Lock manager feed (implements slotlock.OccupancyChecker)
	SlotTaken(ctx context.Context, doctorID uuid.UUID, day time.Time, startMin int, t schedule.ConsultationType) (bool, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
