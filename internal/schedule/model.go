package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ConsultationType string

const (
	ConsultationOnline   ConsultationType = "online"
	ConsultationInPerson ConsultationType = "in_person"
)

func ParseConsultationType(s string) (ConsultationType, error) {
	switch ConsultationType(s) {
	case ConsultationOnline, ConsultationInPerson:
		return ConsultationType(s), nil
	}
	return "", fmt.Errorf("unknown consultation type %q", s)
}

// Settings is the per-doctor booking configuration, validated once when it
// is loaded from the store.
type Settings struct {
	SlotDurationMinutes int
	BufferTimeMinutes   int
	MaxPatientsPerSlot  int
	OnlineEnabled       bool
	OnlineFee           int64 // minor currency units
	InPersonFee         int64
	Currency            string
}

func (s Settings) Validate() error {
	if s.SlotDurationMinutes <= 0 {
		return fmt.Errorf("slot duration must be positive, got %d", s.SlotDurationMinutes)
	}
	if s.BufferTimeMinutes < 0 {
		return fmt.Errorf("buffer time must not be negative, got %d", s.BufferTimeMinutes)
	}
	if s.MaxPatientsPerSlot < 1 {
		return fmt.Errorf("max patients per slot must be at least 1, got %d", s.MaxPatientsPerSlot)
	}
	if s.OnlineFee < 0 || s.InPersonFee < 0 {
		return fmt.Errorf("fees must not be negative")
	}
	if s.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}

// Fee returns the consultation fee for the given type.
func (s Settings) Fee(t ConsultationType) int64 {
	if t == ConsultationOnline {
		return s.OnlineFee
	}
	return s.InPersonFee
}

// Enabled reports whether the doctor accepts bookings of the given type.
func (s Settings) Enabled(t ConsultationType) bool {
	if t == ConsultationOnline {
		return s.OnlineEnabled
	}
	return true
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Settings  Settings
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Hospital struct {
	ID        uuid.UUID
	Name      string
	City      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeeklyWindow is one recurring working window, e.g. Monday 09:00-13:00 for
// in-person consultations. Times are minutes from midnight.
type WeeklyWindow struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
	Weekday  time.Weekday
	StartMin int
	EndMin   int
	Type     ConsultationType
}

func (w WeeklyWindow) Validate() error {
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("invalid weekday %d", w.Weekday)
	}
	if w.StartMin < 0 || w.EndMin > 24*60 || w.StartMin >= w.EndMin {
		return fmt.Errorf("invalid window [%d, %d)", w.StartMin, w.EndMin)
	}
	return nil
}

// ParseTimeOfDay converts "HH:MM" to minutes from midnight.
func ParseTimeOfDay(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// FormatTimeOfDay converts minutes from midnight to "HH:MM".
func FormatTimeOfDay(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
