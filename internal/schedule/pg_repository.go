package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.Settings.SlotDurationMinutes,
		&d.Settings.BufferTimeMinutes,
		&d.Settings.MaxPatientsPerSlot,
		&d.Settings.OnlineEnabled,
		&d.Settings.OnlineFee,
		&d.Settings.InPersonFee,
		&d.Settings.Currency,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty

	if err := d.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("doctor %s has invalid settings: %w", d.ID, err)
	}

	return &d, nil
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty,
		       slot_duration_min, buffer_min, max_patients_per_slot,
		       online_enabled, online_fee, in_person_fee, currency,
		       created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetHospitalByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	var h Hospital
	var city *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, city, created_at, updated_at
		FROM hospitals
		WHERE id = $1
	`, id).Scan(&h.ID, &h.Name, &city, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHospitalNotFound
		}
		return nil, err
	}

	h.City = city
	return &h, nil
}

func (r *PgRepository) WeeklyWindows(ctx context.Context, doctorID uuid.UUID) ([]WeeklyWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_min, end_min, consultation_type
		FROM doctor_schedule_windows
		WHERE doctor_id = $1
		ORDER BY weekday, start_min
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectWindows(rows)
}

func (r *PgRepository) WindowsForWeekday(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]WeeklyWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday, start_min, end_min, consultation_type
		FROM doctor_schedule_windows
		WHERE doctor_id = $1 AND weekday = $2
		ORDER BY start_min
	`, doctorID, int(weekday))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectWindows(rows)
}

func collectWindows(rows pgx.Rows) ([]WeeklyWindow, error) {
	var result []WeeklyWindow
	for rows.Next() {
		var w WeeklyWindow
		var weekday int
		if err := rows.Scan(&w.ID, &w.DoctorID, &weekday, &w.StartMin, &w.EndMin, &w.Type); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(weekday)
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("doctor %s has invalid schedule window: %w", w.DoctorID, err)
		}
		result = append(result, w)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
