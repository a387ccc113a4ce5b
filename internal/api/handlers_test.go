package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roza-in/client-sub001/internal/availability"
	"github.com/roza-in/client-sub001/internal/booking"
	"github.com/roza-in/client-sub001/internal/payment"
	"github.com/roza-in/client-sub001/internal/schedule"
	"github.com/roza-in/client-sub001/internal/slotlock"
)

type stubBookings struct {
	flow   func(booking.BookingInput) (*booking.FlowResult, error)
	verify func(booking.VerifyInput) (*booking.Appointment, error)
	cancel func(uuid.UUID, booking.CancelActor, string) (*booking.Appointment, error)
	apply  func(uuid.UUID) (*booking.Appointment, error)
	get    func(uuid.UUID) (*booking.Appointment, error)
}

func (s *stubBookings) ExecuteBookingFlow(_ context.Context, in booking.BookingInput) (*booking.FlowResult, error) {
	return s.flow(in)
}

func (s *stubBookings) VerifyPaymentAndConfirm(_ context.Context, in booking.VerifyInput) (*booking.Appointment, error) {
	return s.verify(in)
}

func (s *stubBookings) Cancel(_ context.Context, id uuid.UUID, by booking.CancelActor, reason string) (*booking.Appointment, error) {
	return s.cancel(id, by, reason)
}

func (s *stubBookings) CheckIn(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return s.apply(id)
}

func (s *stubBookings) Start(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return s.apply(id)
}

func (s *stubBookings) Complete(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return s.apply(id)
}

func (s *stubBookings) MarkNoShow(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return s.apply(id)
}

func (s *stubBookings) GetAppointment(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	return s.get(id)
}

type stubAvailability struct {
	compute func(uuid.UUID, time.Time, time.Time, schedule.ConsultationType) ([]availability.DayAvailability, error)
}

func (s *stubAvailability) Compute(_ context.Context, doctorID uuid.UUID, from, to time.Time, t schedule.ConsultationType) ([]availability.DayAvailability, error) {
	return s.compute(doctorID, from, to, t)
}

type stubLocker struct {
	acquire func(slotlock.Slot, string) (*slotlock.Lock, error)
}

func (s *stubLocker) Acquire(_ context.Context, slot slotlock.Slot, holder string) (*slotlock.Lock, error) {
	return s.acquire(slot, holder)
}

func (s *stubLocker) Release(context.Context, uuid.UUID) error { return nil }

func newTestRouter(b BookingService, a AvailabilityService, l SlotLocker) http.Handler {
	return NewRouter(RouterConfig{
		Bookings:     b,
		Availability: a,
		Locker:       l,
		Log:          zap.NewNop(),
		Env:          "test",
		Version:      "test",
	})
}

func sampleAppointment() *booking.Appointment {
	return &booking.Appointment{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		PatientID: uuid.New(),
		Day:       time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartMin:  540,
		EndMin:    570,
		Type:      schedule.ConsultationOnline,
		Status:    booking.StatusPendingPayment,
		Fee:       booking.FeeBreakdown{ConsultationFee: 50000, PlatformFee: 5000, Total: 55000, Currency: "INR"},
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetAvailability(t *testing.T) {
	doctorID := uuid.New()
	avail := &stubAvailability{
		compute: func(id uuid.UUID, from, to time.Time, ct schedule.ConsultationType) ([]availability.DayAvailability, error) {
			assert.Equal(t, doctorID, id)
			assert.Equal(t, schedule.ConsultationOnline, ct)
			return []availability.DayAvailability{{
				Date:  from,
				Slots: []availability.SlotWindow{{StartMin: 540, EndMin: 570, Available: true, RemainingCapacity: 1}},
			}}, nil
		},
	}
	router := newTestRouter(&stubBookings{}, avail, &stubLocker{})

	rec := doJSON(t, router, http.MethodGet,
		"/doctors/"+doctorID.String()+"/availability?from=2026-03-02&to=2026-03-02&type=online", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var days []DayAvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &days))
	require.Len(t, days, 1)
	assert.Equal(t, "2026-03-02", days[0].Date)
	require.Len(t, days[0].Slots, 1)
	assert.Equal(t, "09:00", days[0].Slots[0].Start)
	assert.Equal(t, "09:30", days[0].Slots[0].End)
	assert.True(t, days[0].Slots[0].Available)
}

func TestGetAvailabilityBadRequest(t *testing.T) {
	router := newTestRouter(&stubBookings{}, &stubAvailability{}, &stubLocker{})

	rec := doJSON(t, router, http.MethodGet, "/doctors/not-a-uuid/availability?from=2026-03-02&to=2026-03-02&type=online", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := uuid.New().String()
	rec = doJSON(t, router, http.MethodGet, "/doctors/"+id+"/availability?from=bad&to=2026-03-02&type=online", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/doctors/"+id+"/availability?from=2026-03-02&to=2026-03-02&type=telepathy", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAvailabilityDoctorNotFound(t *testing.T) {
	avail := &stubAvailability{
		compute: func(uuid.UUID, time.Time, time.Time, schedule.ConsultationType) ([]availability.DayAvailability, error) {
			return nil, schedule.ErrDoctorNotFound
		},
	}
	router := newTestRouter(&stubBookings{}, avail, &stubLocker{})

	rec := doJSON(t, router, http.MethodGet,
		"/doctors/"+uuid.New().String()+"/availability?from=2026-03-02&to=2026-03-02&type=online", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLockSlot(t *testing.T) {
	locker := &stubLocker{
		acquire: func(slot slotlock.Slot, holder string) (*slotlock.Lock, error) {
			assert.Equal(t, 540, slot.StartMin)
			assert.Equal(t, "session-1", holder)
			return &slotlock.Lock{
				ID:          uuid.New(),
				Slot:        slot,
				Holder:      holder,
				LockedUntil: time.Now().Add(7 * time.Minute),
			}, nil
		},
	}
	router := newTestRouter(&stubBookings{}, &stubAvailability{}, locker)

	rec := doJSON(t, router, http.MethodPost, "/slots/lock", LockSlotRequest{
		DoctorID: uuid.New().String(),
		Day:      "2026-03-02",
		Start:    "09:00",
		Type:     "online",
		Holder:   "session-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp LockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.LockID)
	assert.Equal(t, "09:00", resp.Start)
}

func TestLockSlotConflicts(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"already locked", slotlock.ErrAlreadyLocked, http.StatusConflict, "slot_locked"},
		{"occupied", slotlock.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{"invalid slot", slotlock.ErrInvalidSlot, http.StatusUnprocessableEntity, "invalid_slot"},
		{"unknown doctor", schedule.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			locker := &stubLocker{
				acquire: func(slotlock.Slot, string) (*slotlock.Lock, error) { return nil, tc.err },
			}
			router := newTestRouter(&stubBookings{}, &stubAvailability{}, locker)

			rec := doJSON(t, router, http.MethodPost, "/slots/lock", LockSlotRequest{
				DoctorID: uuid.New().String(),
				Day:      "2026-03-02",
				Start:    "09:00",
				Type:     "online",
				Holder:   "session-1",
			})
			assert.Equal(t, tc.wantCode, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantErr, resp.Error)
		})
	}
}

func TestCreateBooking(t *testing.T) {
	appt := sampleAppointment()
	orderID := "order_1"
	appt.PaymentOrderID = &orderID

	bookings := &stubBookings{
		flow: func(in booking.BookingInput) (*booking.FlowResult, error) {
			assert.Equal(t, "key-1", in.IdempotencyKey)
			assert.Equal(t, 540, in.StartMin)
			return &booking.FlowResult{
				Appointment:     appt,
				RequiresPayment: true,
				PaymentOrder:    &payment.Order{ID: orderID, Amount: 55000, Currency: "INR"},
			}, nil
		},
	}
	router := newTestRouter(bookings, &stubAvailability{}, &stubLocker{})

	rec := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:      appt.PatientID.String(),
		DoctorID:       appt.DoctorID.String(),
		Day:            "2026-03-02",
		Start:          "09:00",
		Type:           "online",
		IdempotencyKey: "key-1",
		Holder:         "session-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp BookingFlowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, appt.ID, resp.Appointment.ID)
	assert.Equal(t, "pending_payment", resp.Appointment.Status)
	assert.True(t, resp.RequiresPayment)
	require.NotNil(t, resp.PaymentOrder)
	assert.Equal(t, orderID, resp.PaymentOrder.OrderID)
	assert.Equal(t, int64(55000), resp.PaymentOrder.Amount)
}

func TestCreateBookingErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"missing key", booking.ErrIdempotencyKeyRequired, http.StatusBadRequest, "idempotency_key_required"},
		{"slot taken", booking.ErrSlotTaken, http.StatusConflict, "slot_unavailable"},
		{"slot locked", slotlock.ErrAlreadyLocked, http.StatusConflict, "slot_locked"},
		{"unknown patient", booking.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bookings := &stubBookings{
				flow: func(booking.BookingInput) (*booking.FlowResult, error) { return nil, tc.err },
			}
			router := newTestRouter(bookings, &stubAvailability{}, &stubLocker{})

			rec := doJSON(t, router, http.MethodPost, "/bookings", CreateBookingRequest{
				PatientID:      uuid.New().String(),
				DoctorID:       uuid.New().String(),
				Day:            "2026-03-02",
				Start:          "09:00",
				Type:           "online",
				IdempotencyKey: "key-1",
			})
			assert.Equal(t, tc.wantCode, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantErr, resp.Error)
		})
	}
}

func TestVerifyPayment(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = booking.StatusConfirmed

	bookings := &stubBookings{
		verify: func(in booking.VerifyInput) (*booking.Appointment, error) {
			assert.Equal(t, appt.ID, in.AppointmentID)
			assert.Equal(t, "pay_1", in.ProviderPaymentID)
			return appt, nil
		},
	}
	router := newTestRouter(bookings, &stubAvailability{}, &stubLocker{})

	rec := doJSON(t, router, http.MethodPost, "/payments/verify", VerifyPaymentRequest{
		AppointmentID:     appt.ID.String(),
		ProviderOrderID:   "order_1",
		ProviderPaymentID: "pay_1",
		Signature:         "sig",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", resp.Status)
}

func TestVerifyPaymentErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"expired", booking.ErrBookingExpired, http.StatusConflict, "booking_expired"},
		{"not payable", booking.ErrNotPayable, http.StatusConflict, "not_payable"},
		{"bad signature", payment.ErrInvalidSignature, http.StatusBadRequest, "payment_failed"},
		{"unknown appointment", booking.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bookings := &stubBookings{
				verify: func(booking.VerifyInput) (*booking.Appointment, error) { return nil, tc.err },
			}
			router := newTestRouter(bookings, &stubAvailability{}, &stubLocker{})

			rec := doJSON(t, router, http.MethodPost, "/payments/verify", VerifyPaymentRequest{
				AppointmentID: uuid.New().String(),
			})
			assert.Equal(t, tc.wantCode, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantErr, resp.Error)
		})
	}
}

func TestCancelBooking(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = booking.StatusCancelledByPatient

	bookings := &stubBookings{
		cancel: func(id uuid.UUID, by booking.CancelActor, reason string) (*booking.Appointment, error) {
			assert.Equal(t, appt.ID, id)
			assert.Equal(t, booking.CancelledByPatient, by)
			assert.Equal(t, "changed plans", reason)
			return appt, nil
		},
	}
	router := newTestRouter(bookings, &stubAvailability{}, &stubLocker{})

	rec := doJSON(t, router, http.MethodPost, "/bookings/"+appt.ID.String()+"/cancel", CancelBookingRequest{
		By:     "patient",
		Reason: "changed plans",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled_by_patient", resp.Status)
}

func TestCancelBookingNotCancellable(t *testing.T) {
	bookings := &stubBookings{
		cancel: func(uuid.UUID, booking.CancelActor, string) (*booking.Appointment, error) {
			return nil, booking.ErrNotCancellable
		},
	}
	router := newTestRouter(bookings, &stubAvailability{}, &stubLocker{})

	rec := doJSON(t, router, http.MethodPost, "/bookings/"+uuid.New().String()+"/cancel", CancelBookingRequest{By: "patient"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVisitTransitionEndpoints(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = booking.StatusCheckedIn

	bookings := &stubBookings{
		apply: func(id uuid.UUID) (*booking.Appointment, error) {
			assert.Equal(t, appt.ID, id)
			return appt, nil
		},
	}
	router := newTestRouter(bookings, &stubAvailability{}, &stubLocker{})

	for _, path := range []string{"check-in", "start", "complete", "no-show"} {
		rec := doJSON(t, router, http.MethodPost, "/bookings/"+appt.ID.String()+"/"+path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	bookings.apply = func(uuid.UUID) (*booking.Appointment, error) {
		return nil, booking.ErrInvalidStatusTransition
	}
	rec := doJSON(t, router, http.MethodPost, "/bookings/"+appt.ID.String()+"/check-in", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetBooking(t *testing.T) {
	appt := sampleAppointment()

	bookings := &stubBookings{
		get: func(id uuid.UUID) (*booking.Appointment, error) {
			if id == appt.ID {
				return appt, nil
			}
			return nil, booking.ErrAppointmentNotFound
		},
	}
	router := newTestRouter(bookings, &stubAvailability{}, &stubLocker{})

	rec := doJSON(t, router, http.MethodGet, "/bookings/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, appt.ID, resp.ID)
	assert.Equal(t, "09:00", resp.Start)

	rec = doJSON(t, router, http.MethodGet, "/bookings/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
