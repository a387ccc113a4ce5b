package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/roza-in/client-sub001/internal/availability"
	"github.com/roza-in/client-sub001/internal/schedule"
)

const (
	constraintActiveSlot     = "appointments_active_slot_idx"
	constraintIdempotencyKey = "appointments_idempotency_key_key"
)

const appointmentColumns = `
	id, doctor_id, hospital_id, patient_id, day, start_min, end_min,
	consultation_type, status,
	consultation_fee, platform_fee, total_fee, currency,
	idempotency_key, payment_order_id, lock_id, expires_at,
	checked_in_at, started_at, ended_at, cancelled_at, cancel_reason,
	created_at, updated_at`

// Querier is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db Querier
}

func NewPgRepository(db Querier) *PgRepository {
	return &PgRepository{db: db}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.HospitalID,
		&a.PatientID,
		&a.Day,
		&a.StartMin,
		&a.EndMin,
		&a.Type,
		&a.Status,
		&a.Fee.ConsultationFee,
		&a.Fee.PlatformFee,
		&a.Fee.Total,
		&a.Fee.Currency,
		&a.IdempotencyKey,
		&a.PaymentOrderID,
		&a.LockID,
		&a.ExpiresAt,
		&a.CheckedInAt,
		&a.StartedAt,
		&a.EndedAt,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	var phone *string

	err := r.db.QueryRow(ctx, `
		SELECT id, name, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Phone = phone
	return &p, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE idempotency_key = $1`, key)
	return scanAppointment(row)
}

func (r *PgRepository) CreatePending(ctx context.Context, appt *Appointment) (*Appointment, bool, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, doctor_id, hospital_id, patient_id, day, start_min, end_min,
			consultation_type, status,
			consultation_fee, platform_fee, total_fee, currency,
			idempotency_key, lock_id, expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending_payment', $9, $10, $11, $12, $13, $14, $15, now(), now())
		RETURNING`+appointmentColumns,
		id, appt.DoctorID, appt.HospitalID, appt.PatientID,
		appt.Day, appt.StartMin, appt.EndMin, appt.Type,
		appt.Fee.ConsultationFee, appt.Fee.PlatformFee, appt.Fee.Total, appt.Fee.Currency,
		appt.IdempotencyKey, appt.LockID, appt.ExpiresAt,
	)

	created, err := scanAppointment(row)
	if err == nil {
		return created, true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case constraintIdempotencyKey:
			existing, getErr := r.GetByIdempotencyKey(ctx, appt.IdempotencyKey)
			if getErr != nil {
				return nil, false, fmt.Errorf("load existing appointment for idempotency key: %w", getErr)
			}
			return existing, false, nil
		case constraintActiveSlot:
			return nil, false, ErrSlotTaken
		}
	}

	return nil, false, fmt.Errorf("create pending appointment: %w", err)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now(),
		    checked_in_at = CASE WHEN $2 = 'checked_in'  THEN now() ELSE checked_in_at END,
		    started_at    = CASE WHEN $2 = 'in_progress' THEN now() ELSE started_at END,
		    ended_at      = CASE WHEN $2 = 'completed'   THEN now() ELSE ended_at END
		WHERE id = $1
		  AND status = $3
		RETURNING`+appointmentColumns, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) CancelFrom(ctx context.Context, id uuid.UUID, from []Status, to Status, reason string) (*Appointment, error) {
	froms := make([]string, len(from))
	for i, s := range from {
		froms[i] = string(s)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancelled_at = now(),
		    cancel_reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING`+appointmentColumns, id, to, reason, froms)

	return scanAppointment(row)
}

func (r *PgRepository) SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET payment_order_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending_payment'
	`, id, orderID)
	if err != nil {
		return fmt.Errorf("set payment order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending_payment'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ActiveIntervals(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]availability.Interval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_min, end_min
		FROM appointments
		WHERE doctor_id = $1
		  AND day = $2
		  AND status NOT IN ('cancelled_by_patient', 'cancelled_by_doctor', 'cancelled_by_hospital', 'no_show', 'rescheduled')
		ORDER BY start_min
	`, doctorID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.StartMin, &iv.EndMin); err != nil {
			return nil, err
		}
		result = append(result, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) SlotTaken(ctx context.Context, doctorID uuid.UUID, day time.Time, startMin int, t schedule.ConsultationType) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND day = $2
			  AND start_min = $3
			  AND consultation_type = $4
			  AND status NOT IN ('cancelled_by_patient', 'cancelled_by_doctor', 'cancelled_by_hospital', 'no_show', 'rescheduled')
		)
	`, doctorID, day, startMin, t).Scan(&taken)
	if err != nil {
		return false, err
	}
	return taken, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
