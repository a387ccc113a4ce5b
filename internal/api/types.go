package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/roza-in/client-sub001/internal/availability"
	"github.com/roza-in/client-sub001/internal/booking"
	"github.com/roza-in/client-sub001/internal/schedule"
	"github.com/roza-in/client-sub001/internal/slotlock"
)

type LockSlotRequest struct {
	DoctorID string `json:"doctor_id"`
	Day      string `json:"day"`   // 2006-01-02
	Start    string `json:"start"` // HH:MM
	Type     string `json:"type"`
	Holder   string `json:"holder"`
}

type LockResponse struct {
	LockID      uuid.UUID `json:"lock_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Day         string    `json:"day"`
	Start       string    `json:"start"`
	Type        string    `json:"type"`
	LockedUntil time.Time `json:"locked_until"`
}

type CreateBookingRequest struct {
	PatientID      string  `json:"patient_id"`
	DoctorID       string  `json:"doctor_id"`
	HospitalID     *string `json:"hospital_id,omitempty"`
	Day            string  `json:"day"`
	Start          string  `json:"start"`
	Type           string  `json:"type"`
	IdempotencyKey string  `json:"idempotency_key"`
	Holder         string  `json:"holder"`
}

type VerifyPaymentRequest struct {
	AppointmentID     string `json:"appointment_id"`
	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Signature         string `json:"signature"`
}

type CancelBookingRequest struct {
	By     string `json:"by"` // patient, doctor, hospital
	Reason string `json:"reason"`
}

type FeeResponse struct {
	ConsultationFee int64  `json:"consultation_fee"`
	PlatformFee     int64  `json:"platform_fee"`
	Total           int64  `json:"total"`
	Currency        string `json:"currency"`
}

type AppointmentResponse struct {
	ID             uuid.UUID   `json:"id"`
	DoctorID       uuid.UUID   `json:"doctor_id"`
	HospitalID     *uuid.UUID  `json:"hospital_id,omitempty"`
	PatientID      uuid.UUID   `json:"patient_id"`
	Day            string      `json:"day"`
	Start          string      `json:"start"`
	End            string      `json:"end"`
	Type           string      `json:"type"`
	Status         string      `json:"status"`
	Fee            FeeResponse `json:"fee"`
	PaymentOrderID *string     `json:"payment_order_id,omitempty"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	CancelReason   *string     `json:"cancel_reason,omitempty"`
}

type PaymentOrderResponse struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type BookingFlowResponse struct {
	Appointment     AppointmentResponse   `json:"appointment"`
	RequiresPayment bool                  `json:"requires_payment"`
	PaymentOrder    *PaymentOrderResponse `json:"payment_order,omitempty"`
}

type SlotWindowResponse struct {
	Start             string `json:"start"`
	End               string `json:"end"`
	Available         bool   `json:"available"`
	RemainingCapacity int    `json:"remaining_capacity"`
}

type DayAvailabilityResponse struct {
	Date  string               `json:"date"`
	Slots []SlotWindowResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		DoctorID:   a.DoctorID,
		HospitalID: a.HospitalID,
		PatientID:  a.PatientID,
		Day:        a.Day.Format("2006-01-02"),
		Start:      schedule.FormatTimeOfDay(a.StartMin),
		End:        schedule.FormatTimeOfDay(a.EndMin),
		Type:       string(a.Type),
		Status:     string(a.Status),
		Fee: FeeResponse{
			ConsultationFee: a.Fee.ConsultationFee,
			PlatformFee:     a.Fee.PlatformFee,
			Total:           a.Fee.Total,
			Currency:        a.Fee.Currency,
		},
		PaymentOrderID: a.PaymentOrderID,
		ExpiresAt:      a.ExpiresAt,
		CancelReason:   a.CancelReason,
	}
}

func toLockResponse(l *slotlock.Lock) LockResponse {
	return LockResponse{
		LockID:      l.ID,
		DoctorID:    l.Slot.DoctorID,
		Day:         l.Slot.Day.Format("2006-01-02"),
		Start:       schedule.FormatTimeOfDay(l.Slot.StartMin),
		Type:        string(l.Slot.Type),
		LockedUntil: l.LockedUntil,
	}
}

func toAvailabilityResponse(days []availability.DayAvailability) []DayAvailabilityResponse {
	out := make([]DayAvailabilityResponse, 0, len(days))
	for _, d := range days {
		slots := make([]SlotWindowResponse, 0, len(d.Slots))
		for _, s := range d.Slots {
			slots = append(slots, SlotWindowResponse{
				Start:             schedule.FormatTimeOfDay(s.StartMin),
				End:               schedule.FormatTimeOfDay(s.EndMin),
				Available:         s.Available,
				RemainingCapacity: s.RemainingCapacity,
			})
		}
		out = append(out, DayAvailabilityResponse{Date: d.Date.Format("2006-01-02"), Slots: slots})
	}
	return out
}
