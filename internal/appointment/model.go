package appointment

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	// SlotLength is the fixed duration of every slot.
	SlotLength = 15 * time.Minute
	// HoldWindow is how long an unconfirmed appointment keeps its slot.
	HoldWindow = 30 * time.Minute
	// AdvanceNotice is the minimum lead time between booking and slot start.
	AdvanceNotice = 24 * time.Hour
)

type Provider struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Client struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Slot struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	CreatedAt  time.Time
}

// Appointment is a hold on a slot until Confirmed is set.
// Expired holds are never rewritten; see IsActive.
type Appointment struct {
	ID              uuid.UUID
	SlotID          uuid.UUID
	ClientID        uuid.UUID
	ReservationTime time.Time
	Confirmed       bool
	ConfirmedAt     *time.Time
}

// ExpirationTime is the last instant at which an unconfirmed hold still occupies its slot.
func ExpirationTime(reservationTime time.Time) time.Time {
	return reservationTime.Add(HoldWindow)
}

// HoldCutoff is the oldest reservation time of a hold that is still active at now.
// Store queries compare reservation_time >= HoldCutoff(now), which is the same
// predicate as IsActive.
func HoldCutoff(now time.Time) time.Time {
	return now.Add(-HoldWindow)
}

func (a Appointment) ExpirationTime() time.Time {
	return ExpirationTime(a.ReservationTime)
}

// IsActive reports whether the appointment occupies its slot at now.
func (a Appointment) IsActive(now time.Time) bool {
	if a.Confirmed {
		return true
	}
	return !a.ReservationTime.Before(HoldCutoff(now))
}

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusExpired   AppointmentStatus = "expired"
)

func (a Appointment) Status(now time.Time) AppointmentStatus {
	switch {
	case a.Confirmed:
		return StatusConfirmed
	case a.IsActive(now):
		return StatusPending
	default:
		return StatusExpired
	}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail is an appointment joined with the slot and client it references.
type AppointmentDetail struct {
	Appointment
	Slot   Slot
	Client Client
}

// TimeRange is a provider-supplied window to be cut into slots.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}
