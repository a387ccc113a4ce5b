package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrHospitalNotFound = errors.New("hospital not found")
)

// Repository supplies doctor and hospital configuration. Read-only from the
// booking core's perspective.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetHospitalByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	WeeklyWindows(ctx context.Context, doctorID uuid.UUID) ([]WeeklyWindow, error)
	WindowsForWeekday(ctx context.Context, doctorID uuid.UUID, weekday time.Weekday) ([]WeeklyWindow, error)
}
