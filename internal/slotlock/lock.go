package slotlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roza-in/client-sub001/internal/schedule"
)

var (
	// ErrAlreadyLocked means another active lock holds the slot. Expected
	// under contention, recoverable by re-querying availability.
	ErrAlreadyLocked = errors.New("slot is already locked")
	// ErrSlotUnavailable means a non-cancelled appointment occupies the slot.
	ErrSlotUnavailable = errors.New("slot already has an active appointment")
	// ErrInvalidSlot means the tuple does not name a bookable slot at all.
	ErrInvalidSlot = errors.New("slot is outside the doctor's bookable schedule")
)

// Slot is one bookable unit of time.
type Slot struct {
	DoctorID uuid.UUID
	Day      time.Time // calendar date, midnight UTC
	StartMin int       // minutes from midnight
	Type     schedule.ConsultationType
}

func (s Slot) String() string {
	return fmt.Sprintf("%s/%s/%s/%s",
		s.DoctorID, s.Day.Format("2006-01-02"), schedule.FormatTimeOfDay(s.StartMin), s.Type)
}

// Lock is a short-lived exclusive claim on a slot.
type Lock struct {
	ID          uuid.UUID
	Slot        Slot
	Holder      string
	LockedUntil time.Time
	CreatedAt   time.Time
}

// Validator rejects tuples that do not name a bookable slot.
// Satisfied by availability.Calculator.
type Validator interface {
	ValidateSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, startMin int, t schedule.ConsultationType) error
}

// OccupancyChecker reports whether a non-cancelled appointment already
// occupies a slot. Satisfied by the booking repository.
type OccupancyChecker interface {
	SlotTaken(ctx context.Context, doctorID uuid.UUID, day time.Time, startMin int, t schedule.ConsultationType) (bool, error)
}

// Manager grants exclusive short-lived holds on slots. Acquisition is atomic:
// among concurrent contenders for one slot exactly one acquire succeeds.
type Manager interface {
	Acquire(ctx context.Context, slot Slot, holder string) (*Lock, error)
	Release(ctx context.Context, lockID uuid.UUID) error
	IsActive(ctx context.Context, lockID uuid.UUID) (bool, error)
}
