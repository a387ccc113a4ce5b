package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/roza-in/client-sub001/internal/availability"
	"github.com/roza-in/client-sub001/internal/booking"
	"github.com/roza-in/client-sub001/internal/payment"
	"github.com/roza-in/client-sub001/internal/schedule"
	"github.com/roza-in/client-sub001/internal/slotlock"
)

// BookingService is the slice of the orchestrator the handlers use.
type BookingService interface {
	ExecuteBookingFlow(ctx context.Context, in booking.BookingInput) (*booking.FlowResult, error)
	VerifyPaymentAndConfirm(ctx context.Context, in booking.VerifyInput) (*booking.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, by booking.CancelActor, reason string) (*booking.Appointment, error)
	CheckIn(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Start(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
}

type AvailabilityService interface {
	Compute(ctx context.Context, doctorID uuid.UUID, from, to time.Time, t schedule.ConsultationType) ([]availability.DayAvailability, error)
}

type SlotLocker interface {
	Acquire(ctx context.Context, slot slotlock.Slot, holder string) (*slotlock.Lock, error)
	Release(ctx context.Context, lockID uuid.UUID) error
}

func getAvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "from must be a date (2006-01-02)")
			return
		}
		to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "to must be a date (2006-01-02)")
			return
		}

		ctype, err := schedule.ParseConsultationType(r.URL.Query().Get("type"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_type", err.Error())
			return
		}

		days, err := svc.Compute(r.Context(), doctorID, from, to, ctype)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(days))
	}
}

func lockSlotHandler(locker SlotLocker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LockSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := parseSlot(req.DoctorID, req.Day, req.Start, req.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
			return
		}

		lock, err := locker.Acquire(r.Context(), slot, req.Holder)
		if err != nil {
			handleLockError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toLockResponse(lock))
	}
}

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		slot, err := parseSlot(req.DoctorID, req.Day, req.Start, req.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
			return
		}

		var hospitalID *uuid.UUID
		if req.HospitalID != nil {
			id, err := uuid.Parse(*req.HospitalID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_hospital_id", "hospital_id must be a valid UUID")
				return
			}
			hospitalID = &id
		}

		result, err := svc.ExecuteBookingFlow(r.Context(), booking.BookingInput{
			PatientID:      patientID,
			DoctorID:       slot.DoctorID,
			HospitalID:     hospitalID,
			Day:            slot.Day,
			StartMin:       slot.StartMin,
			Type:           slot.Type,
			IdempotencyKey: req.IdempotencyKey,
			Holder:         req.Holder,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := BookingFlowResponse{
			Appointment:     toAppointmentResponse(result.Appointment),
			RequiresPayment: result.RequiresPayment,
		}
		if result.PaymentOrder != nil {
			resp.PaymentOrder = &PaymentOrderResponse{
				OrderID:  result.PaymentOrder.ID,
				Amount:   result.PaymentOrder.Amount,
				Currency: result.PaymentOrder.Currency,
			}
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func verifyPaymentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		apptID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		appt, err := svc.VerifyPaymentAndConfirm(r.Context(), booking.VerifyInput{
			AppointmentID:     apptID,
			ProviderOrderID:   req.ProviderOrderID,
			ProviderPaymentID: req.ProviderPaymentID,
			Signature:         req.Signature,
		})
		if err != nil {
			handleVerifyError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, booking.CancelActor(req.By), req.Reason)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionHandler(apply func(context.Context, uuid.UUID) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := apply(r.Context(), id)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func parseSlot(doctorID, day, start, ctype string) (slotlock.Slot, error) {
	var slot slotlock.Slot

	id, err := uuid.Parse(doctorID)
	if err != nil {
		return slot, errors.New("doctor_id must be a valid UUID")
	}

	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return slot, errors.New("day must be a date (2006-01-02)")
	}

	startMin, err := schedule.ParseTimeOfDay(start)
	if err != nil {
		return slot, err
	}

	t, err := schedule.ParseConsultationType(ctype)
	if err != nil {
		return slot, err
	}

	slot.DoctorID = id
	slot.Day = availability.Day(d)
	slot.StartMin = startMin
	slot.Type = t
	return slot, nil
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, availability.ErrInvalidRange), errors.Is(err, availability.ErrRangeTooLarge):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleLockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slotlock.ErrAlreadyLocked):
		writeError(w, http.StatusConflict, "slot_locked", "slot is no longer available, request fresh availability")
	case errors.Is(err, slotlock.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot already has an active appointment")
	case errors.Is(err, slotlock.ErrInvalidSlot):
		writeError(w, http.StatusUnprocessableEntity, "invalid_slot", err.Error())
	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, schedule.ErrHospitalNotFound):
		writeError(w, http.StatusNotFound, "hospital_not_found", err.Error())
	case errors.Is(err, booking.ErrIdempotencyKeyRequired):
		writeError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, booking.ErrSlotTaken), errors.Is(err, slotlock.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is no longer available, request fresh availability")
	case errors.Is(err, slotlock.ErrAlreadyLocked):
		writeError(w, http.StatusConflict, "slot_locked", "slot is no longer available, request fresh availability")
	case errors.Is(err, slotlock.ErrInvalidSlot):
		writeError(w, http.StatusUnprocessableEntity, "invalid_slot", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleVerifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingExpired):
		writeError(w, http.StatusConflict, "booking_expired", "payment window closed, start a new booking")
	case errors.Is(err, booking.ErrNotPayable), errors.Is(err, booking.ErrNoPaymentOrder):
		writeError(w, http.StatusConflict, "not_payable", err.Error())
	case errors.Is(err, payment.ErrInvalidSignature),
		errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrOrderMismatch),
		errors.Is(err, payment.ErrPaymentNotCaptured):
		writeError(w, http.StatusBadRequest, "payment_failed", "payment verification failed, please retry the booking")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrNotCancellable), errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
