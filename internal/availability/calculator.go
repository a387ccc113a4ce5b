package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roza-in/client-sub001/internal/schedule"
)

var (
	ErrInvalidRange    = errors.New("invalid date range")
	ErrRangeTooLarge   = errors.New("date range exceeds the allowed window")
	ErrOutsideSchedule = errors.New("slot is outside the doctor's schedule")
	ErrPastSlot        = errors.New("slot start time is in the past")
	ErrTypeDisabled    = errors.New("consultation type is not enabled for this doctor")
)

// Interval is a half-open [StartMin, EndMin) range of minutes within a day.
type Interval struct {
	StartMin int
	EndMin   int
}

func (i Interval) Overlaps(startMin, endMin int) bool {
	return i.StartMin < endMin && startMin < i.EndMin
}

// BookingSource reports intervals occupied by non-cancelled appointments.
type BookingSource interface {
	ActiveIntervals(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Interval, error)
}

// LockSource reports slot start minutes currently held by unexpired locks.
type LockSource interface {
	HeldStarts(ctx context.Context, doctorID uuid.UUID, day time.Time, t schedule.ConsultationType) (map[int]int, error)
}

type SlotWindow struct {
	StartMin          int
	EndMin            int
	Available         bool
	RemainingCapacity int
}

type DayAvailability struct {
	Date  time.Time
	Slots []SlotWindow
}

// Calculator derives bookable time windows from a doctor's recurring
// schedule, existing appointments and active slot locks. Pure read path:
// it never mutates anything and its output is recomputed on every call.
type Calculator struct {
	schedules schedule.Repository
	bookings  BookingSource
	locks     LockSource

	maxRangeDays int
	now          func() time.Time
}

func NewCalculator(schedules schedule.Repository, bookings BookingSource, locks LockSource, maxRangeDays int) *Calculator {
	return &Calculator{
		schedules:    schedules,
		bookings:     bookings,
		locks:        locks,
		maxRangeDays: maxRangeDays,
		now:          time.Now,
	}
}

// Day truncates a timestamp to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Compute returns per-day availability for [from, to] inclusive.
// A doctor with no schedule in range yields empty days, not an error.
func (c *Calculator) Compute(ctx context.Context, doctorID uuid.UUID, from, to time.Time, t schedule.ConsultationType) ([]DayAvailability, error) {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days > c.maxRangeDays {
		return nil, fmt.Errorf("%w: %d days requested, max %d", ErrRangeTooLarge, days, c.maxRangeDays)
	}

	doctor, err := c.schedules.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Settings.Enabled(t) {
		return []DayAvailability{}, nil
	}

	windows, err := c.schedules.WeeklyWindows(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	byWeekday := make(map[time.Weekday][]schedule.WeeklyWindow)
	for _, w := range windows {
		if w.Type == t {
			byWeekday[w.Weekday] = append(byWeekday[w.Weekday], w)
		}
	}

	result := make([]DayAvailability, 0, days)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		slots, err := c.computeDay(ctx, doctor, byWeekday[day.Weekday()], day, t)
		if err != nil {
			return nil, err
		}
		result = append(result, DayAvailability{Date: day, Slots: slots})
	}

	return result, nil
}

func (c *Calculator) computeDay(ctx context.Context, doctor *schedule.Doctor, windows []schedule.WeeklyWindow, day time.Time, t schedule.ConsultationType) ([]SlotWindow, error) {
	if len(windows) == 0 {
		return nil, nil
	}

	booked, err := c.bookings.ActiveIntervals(ctx, doctor.ID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}

	held, err := c.locks.HeldStarts(ctx, doctor.ID, day, t)
	if err != nil {
		return nil, fmt.Errorf("load slot locks: %w", err)
	}

	now := c.now()
	cutoff := -1
	if Day(now).Equal(day) {
		cutoff = now.UTC().Hour()*60 + now.UTC().Minute()
	}

	var slots []SlotWindow
	set := doctor.Settings
	stride := set.SlotDurationMinutes + set.BufferTimeMinutes

	for _, w := range windows {
		for start := w.StartMin; start+set.SlotDurationMinutes <= w.EndMin; start += stride {
			end := start + set.SlotDurationMinutes
			if start <= cutoff {
				continue
			}

			occupied := 0
			for _, b := range booked {
				if b.Overlaps(start, end) {
					occupied++
				}
			}

			remaining := set.MaxPatientsPerSlot - occupied - held[start]
			if remaining < 0 {
				remaining = 0
			}

			slots = append(slots, SlotWindow{
				StartMin:          start,
				EndMin:            end,
				Available:         occupied == 0 && held[start] == 0,
				RemainingCapacity: remaining,
			})
		}
	}

	return slots, nil
}

// ValidateSlot checks that (doctor, day, start, type) names a real bookable
// slot: the doctor exists, the type is enabled, the start is not in the past
// and it aligns with a slot boundary of a schedule window for that weekday.
func (c *Calculator) ValidateSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, startMin int, t schedule.ConsultationType) error {
	doctor, err := c.schedules.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Settings.Enabled(t) {
		return ErrTypeDisabled
	}

	day = Day(day)
	now := c.now()
	if day.Before(Day(now)) {
		return ErrPastSlot
	}
	if Day(now).Equal(day) && startMin <= now.UTC().Hour()*60+now.UTC().Minute() {
		return ErrPastSlot
	}

	windows, err := c.schedules.WindowsForWeekday(ctx, doctorID, day.Weekday())
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	set := doctor.Settings
	stride := set.SlotDurationMinutes + set.BufferTimeMinutes
	for _, w := range windows {
		if w.Type != t {
			continue
		}
		if startMin < w.StartMin || startMin+set.SlotDurationMinutes > w.EndMin {
			continue
		}
		if (startMin-w.StartMin)%stride == 0 {
			return nil
		}
	}

	return ErrOutsideSchedule
}
