package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/roza-in/client-sub001/internal/schedule"
)

type Status string

const (
	StatusPendingPayment     Status = "pending_payment"
	StatusConfirmed          Status = "confirmed"
	StatusCheckedIn          Status = "checked_in"
	StatusInProgress         Status = "in_progress"
	StatusCompleted          Status = "completed"
	StatusCancelledByPatient Status = "cancelled_by_patient"
	StatusCancelledByDoctor  Status = "cancelled_by_doctor"
	StatusCancelledByHosp    Status = "cancelled_by_hospital"
	StatusNoShow             Status = "no_show"
	StatusRescheduled        Status = "rescheduled"
)

// TerminalStatuses no longer occupy their slot; the availability calculator
// and the active-slot uniqueness constraint both ignore them.
var TerminalStatuses = []Status{
	StatusCancelledByPatient,
	StatusCancelledByDoctor,
	StatusCancelledByHosp,
	StatusNoShow,
	StatusRescheduled,
}

func (s Status) Terminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

type FeeBreakdown struct {
	ConsultationFee int64 // minor currency units
	PlatformFee     int64
	Total           int64
	Currency        string
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the durable booking record. While non-terminal it occupies
// its (doctor, day, start, type) slot exclusively.
type Appointment struct {
	ID             uuid.UUID
	DoctorID       uuid.UUID
	HospitalID     *uuid.UUID
	PatientID      uuid.UUID
	Day            time.Time // calendar date, midnight UTC
	StartMin       int
	EndMin         int
	Type           schedule.ConsultationType
	Status         Status
	Fee            FeeBreakdown
	IdempotencyKey string
	PaymentOrderID *string
	LockID         *uuid.UUID
	ExpiresAt      *time.Time // payment window for pending_payment rows
	CheckedInAt    *time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
	CancelledAt    *time.Time
	CancelReason   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
