package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roza-in/client-sub001/internal/payment"
	"github.com/roza-in/client-sub001/internal/schedule"
	"github.com/roza-in/client-sub001/internal/slotlock"
)

const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingExpired   = "BOOKING_EXPIRED"
	EventBookingCompleted = "BOOKING_COMPLETED"
)

const (
	reasonPaymentFailed       = "payment_verification_failed"
	reasonPaymentOrderFailed  = "payment_order_creation_failed"
	reasonPaymentWindowClosed = "payment_window_expired"
)

var (
	ErrIdempotencyKeyRequired  = errors.New("idempotency key is required")
	ErrNotPayable              = errors.New("appointment is not awaiting payment")
	ErrNoPaymentOrder          = errors.New("appointment has no payment order")
	ErrBookingExpired          = errors.New("payment window has expired")
	ErrNotCancellable          = errors.New("appointment cannot be cancelled in its current status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// CancelActor identifies who is cancelling an appointment.
type CancelActor string

const (
	CancelledByPatient  CancelActor = "patient"
	CancelledByDoctor   CancelActor = "doctor"
	CancelledByHospital CancelActor = "hospital"
)

func (a CancelActor) status() (Status, error) {
	switch a {
	case CancelledByPatient:
		return StatusCancelledByPatient, nil
	case CancelledByDoctor:
		return StatusCancelledByDoctor, nil
	case CancelledByHospital:
		return StatusCancelledByHosp, nil
	}
	return "", fmt.Errorf("unknown cancel actor %q", a)
}

// Notifier is informed of booking transitions. Fire and forget: failures must
// never roll a booking back, so the methods return nothing.
type Notifier interface {
	BookingConfirmed(ctx context.Context, appt *Appointment)
	BookingCancelled(ctx context.Context, appt *Appointment)
}

// LockManager is the slice of slotlock.Manager the orchestrator uses.
type LockManager interface {
	Acquire(ctx context.Context, slot slotlock.Slot, holder string) (*slotlock.Lock, error)
	Release(ctx context.Context, lockID uuid.UUID) error
}

type FeePolicy struct {
	PlatformPctOnline   int
	PlatformPctInPerson int
}

func (p FeePolicy) breakdown(set schedule.Settings, t schedule.ConsultationType) FeeBreakdown {
	fee := set.Fee(t)
	pct := p.PlatformPctInPerson
	if t == schedule.ConsultationOnline {
		pct = p.PlatformPctOnline
	}
	platform := fee * int64(pct) / 100

	return FeeBreakdown{
		ConsultationFee: fee,
		PlatformFee:     platform,
		Total:           fee + platform,
		Currency:        set.Currency,
	}
}

type BookingInput struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	HospitalID     *uuid.UUID
	Day            time.Time
	StartMin       int
	Type           schedule.ConsultationType
	IdempotencyKey string
	Holder         string // patient session identifier for the slot lock
}

type FlowResult struct {
	Appointment     *Appointment
	RequiresPayment bool
	PaymentOrder    *payment.Order
}

type VerifyInput struct {
	AppointmentID     uuid.UUID
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

// Service drives one booking attempt through lock acquisition, appointment
// creation, payment and confirmation, with compensating actions at every
// failure point. It is the only writer of appointment status.
type Service struct {
	repo      Repository
	schedules schedule.Repository
	locks     LockManager
	gateway   payment.Gateway
	notifier  Notifier
	fees      FeePolicy
	log       *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, schedules schedule.Repository, locks LockManager, gateway payment.Gateway, notifier Notifier, fees FeePolicy, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		schedules: schedules,
		locks:     locks,
		gateway:   gateway,
		notifier:  notifier,
		fees:      fees,
		log:       log,
		now:       time.Now,
	}
}

// ExecuteBookingFlow takes a patient's intent to book a slot and turns it
// into either a pending_payment appointment with a payment order, a directly
// confirmed appointment when no fee is due, or a clean failure.
//
// A replayed idempotency key returns the original appointment; the slot
// uniqueness is enforced by the lock's atomic acquisition plus the store's
// active-slot constraint, never by a read-then-write in this code.
func (s *Service) ExecuteBookingFlow(ctx context.Context, in BookingInput) (*FlowResult, error) {
	if in.IdempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}

	if _, err := s.repo.GetPatientByID(ctx, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.schedules.GetDoctorByID(ctx, in.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if in.HospitalID != nil {
		if _, err := s.schedules.GetHospitalByID(ctx, *in.HospitalID); err != nil {
			return nil, fmt.Errorf("load hospital: %w", err)
		}
	}

	// Retry safety: a resubmitted request returns the attempt it already made.
	if existing, err := s.repo.GetByIdempotencyKey(ctx, in.IdempotencyKey); err == nil {
		return s.resultFor(existing), nil
	} else if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	slot := slotlock.Slot{DoctorID: in.DoctorID, Day: in.Day, StartMin: in.StartMin, Type: in.Type}
	lock, err := s.locks.Acquire(ctx, slot, in.Holder)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:             uuid.New(),
		DoctorID:       in.DoctorID,
		HospitalID:     in.HospitalID,
		PatientID:      in.PatientID,
		Day:            slot.Day,
		StartMin:       in.StartMin,
		EndMin:         in.StartMin + doctor.Settings.SlotDurationMinutes,
		Type:           in.Type,
		Status:         StatusPendingPayment,
		Fee:            s.fees.breakdown(doctor.Settings, in.Type),
		IdempotencyKey: in.IdempotencyKey,
		LockID:         &lock.ID,
		ExpiresAt:      &lock.LockedUntil,
	}

	created, fresh, err := s.repo.CreatePending(ctx, appt)
	if err != nil {
		s.releaseLock(ctx, lock.ID)
		return nil, err
	}
	if !fresh {
		// Lost an idempotency race; the earlier attempt owns the slot.
		s.releaseLock(ctx, lock.ID)
		return s.resultFor(created), nil
	}

	s.logEvent(ctx, created.ID, EventBookingCreated, map[string]any{
		"doctor_id":  in.DoctorID.String(),
		"patient_id": in.PatientID.String(),
		"day":        slot.Day.Format("2006-01-02"),
		"start":      schedule.FormatTimeOfDay(in.StartMin),
		"type":       string(in.Type),
		"total_fee":  created.Fee.Total,
	})

	if created.Fee.Total == 0 {
		confirmed, err := s.repo.UpdateStatus(ctx, created.ID, StatusPendingPayment, StatusConfirmed)
		if err != nil {
			return nil, fmt.Errorf("confirm zero-fee booking: %w", err)
		}
		s.releaseLock(ctx, lock.ID)
		s.logEvent(ctx, confirmed.ID, EventBookingConfirmed, map[string]any{"fee": 0})
		s.notifier.BookingConfirmed(ctx, confirmed)
		return &FlowResult{Appointment: confirmed, RequiresPayment: false}, nil
	}

	order, err := s.gateway.CreateOrder(ctx, created.ID, created.Fee.Total, created.Fee.Currency)
	if err != nil {
		s.cancelAndRelease(ctx, created, StatusCancelledByPatient, reasonPaymentOrderFailed)
		return nil, fmt.Errorf("create payment order: %w", err)
	}

	if err := s.repo.SetPaymentOrder(ctx, created.ID, order.ID); err != nil {
		s.cancelAndRelease(ctx, created, StatusCancelledByPatient, reasonPaymentOrderFailed)
		return nil, fmt.Errorf("record payment order: %w", err)
	}
	created.PaymentOrderID = &order.ID

	return &FlowResult{Appointment: created, RequiresPayment: true, PaymentOrder: order}, nil
}

// resultFor rebuilds a FlowResult for an appointment that already exists,
// used on idempotent replays.
func (s *Service) resultFor(appt *Appointment) *FlowResult {
	res := &FlowResult{Appointment: appt}
	if appt.Status == StatusPendingPayment && appt.Fee.Total > 0 {
		res.RequiresPayment = true
		if appt.PaymentOrderID != nil {
			res.PaymentOrder = &payment.Order{
				ID:            *appt.PaymentOrderID,
				AppointmentID: appt.ID,
				Amount:        appt.Fee.Total,
				Currency:      appt.Fee.Currency,
			}
		}
	}
	return res
}

// VerifyPaymentAndConfirm consumes the gateway callback for a pending
// appointment. Safe to replay: verifying an already confirmed appointment
// returns it unchanged. A failed verification cancels the appointment and
// releases its lock so the slot becomes bookable again.
func (s *Service) VerifyPaymentAndConfirm(ctx context.Context, in VerifyInput) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, in.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == StatusConfirmed {
		return appt, nil
	}
	if appt.Status != StatusPendingPayment {
		return nil, ErrNotPayable
	}

	if appt.ExpiresAt != nil && appt.ExpiresAt.Before(s.now()) {
		s.cancelAndRelease(ctx, appt, StatusCancelledByPatient, reasonPaymentWindowClosed)
		s.logEvent(ctx, appt.ID, EventBookingExpired, map[string]any{"reason": "verify_after_expiry"})
		return nil, ErrBookingExpired
	}

	if appt.PaymentOrderID == nil {
		return nil, ErrNoPaymentOrder
	}

	order := payment.Order{
		ID:            *appt.PaymentOrderID,
		AppointmentID: appt.ID,
		Amount:        appt.Fee.Total,
		Currency:      appt.Fee.Currency,
	}

	if err := s.gateway.Verify(ctx, order, payment.VerificationInput{
		ProviderOrderID:   in.ProviderOrderID,
		ProviderPaymentID: in.ProviderPaymentID,
		Signature:         in.Signature,
	}); err != nil {
		s.cancelAndRelease(ctx, appt, StatusCancelledByPatient, reasonPaymentFailed)
		s.logEvent(ctx, appt.ID, EventBookingCancelled, map[string]any{"reason": reasonPaymentFailed})
		return nil, fmt.Errorf("payment verification: %w", err)
	}

	confirmed, err := s.repo.UpdateStatus(ctx, appt.ID, StatusPendingPayment, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the CAS; a concurrent replay may have confirmed it first.
			current, getErr := s.repo.GetAppointmentByID(ctx, appt.ID)
			if getErr == nil && current.Status == StatusConfirmed {
				return current, nil
			}
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	if appt.LockID != nil {
		s.releaseLock(ctx, *appt.LockID)
	}

	s.logEvent(ctx, confirmed.ID, EventBookingConfirmed, map[string]any{
		"payment_id": in.ProviderPaymentID,
		"order_id":   in.ProviderOrderID,
	})
	s.notifier.BookingConfirmed(ctx, confirmed)

	return confirmed, nil
}

// Cancel cancels a pending_payment or confirmed appointment and releases its
// slot lock. Safe to call when the lock already expired.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, by CancelActor, reason string) (*Appointment, error) {
	to, err := by.status()
	if err != nil {
		return nil, err
	}

	cancelled, err := s.repo.CancelFrom(ctx, id, []Status{StatusPendingPayment, StatusConfirmed}, to, reason)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("cancel appointment: %w", err)
		}
		current, getErr := s.repo.GetAppointmentByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == to {
			return current, nil // already cancelled, idempotent
		}
		return nil, ErrNotCancellable
	}

	if cancelled.LockID != nil {
		s.releaseLock(ctx, *cancelled.LockID)
	}

	s.logEvent(ctx, cancelled.ID, EventBookingCancelled, map[string]any{
		"by":     string(by),
		"reason": reason,
	})
	s.notifier.BookingCancelled(ctx, cancelled)

	return cancelled, nil
}

// CheckIn, Start, Complete and MarkNoShow are the simpler day-of-visit
// transitions outside the payment pipeline.

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, StatusCheckedIn, "")
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCheckedIn, StatusInProgress, "")
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, StatusCompleted, EventBookingCompleted)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.CancelFrom(ctx, id, []Status{StatusConfirmed, StatusCheckedIn}, StatusNoShow, "patient did not arrive")
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("mark no-show: %w", err)
	}
	return appt, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to Status, event string) (*Appointment, error) {
	appt, err := s.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			if _, getErr := s.repo.GetAppointmentByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("transition to %s: %w", to, err)
	}
	if event != "" {
		s.logEvent(ctx, appt.ID, event, map[string]any{})
	}
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ReconcileAbandoned cancels pending_payment appointments whose payment
// window has closed. Run periodically by the reconciler; the same check also
// happens lazily in VerifyPaymentAndConfirm.
func (s *Service) ReconcileAbandoned(ctx context.Context) error {
	stale, err := s.repo.FindExpiredPending(ctx, s.now())
	if err != nil {
		return fmt.Errorf("find expired pending appointments: %w", err)
	}

	for _, appt := range stale {
		a := appt
		cancelled, err := s.repo.CancelFrom(ctx, a.ID, []Status{StatusPendingPayment}, StatusCancelledByPatient, reasonPaymentWindowClosed)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Warn("failed to cancel abandoned appointment",
					zap.String("appointment_id", a.ID.String()), zap.Error(err))
			}
			continue
		}
		if cancelled.LockID != nil {
			s.releaseLock(ctx, *cancelled.LockID)
		}
		s.logEvent(ctx, cancelled.ID, EventBookingExpired, map[string]any{"reason": "reconciler"})
		s.notifier.BookingCancelled(ctx, cancelled)
	}

	return nil
}

func (s *Service) cancelAndRelease(ctx context.Context, appt *Appointment, to Status, reason string) {
	if _, err := s.repo.CancelFrom(ctx, appt.ID, []Status{StatusPendingPayment}, to, reason); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		s.log.Error("failed to cancel appointment during rollback",
			zap.String("appointment_id", appt.ID.String()), zap.Error(err))
	}
	if appt.LockID != nil {
		s.releaseLock(ctx, *appt.LockID)
	}
}

func (s *Service) releaseLock(ctx context.Context, lockID uuid.UUID) {
	if err := s.locks.Release(ctx, lockID); err != nil {
		// Passive expiry will reclaim the slot within the lock TTL.
		s.log.Warn("failed to release slot lock", zap.String("lock_id", lockID.String()), zap.Error(err))
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}
