package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
// Reads outside a transaction see committed state only.
type Repository interface {
	// InTx runs fn in one transaction. The transaction commits if fn returns nil
	// and is rolled back on every other exit path.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// ListAvailableSlots returns the provider's slots starting after now with no
	// active appointment at now, ordered by start time.
	ListAvailableSlots(ctx context.Context, providerID uuid.UUID, now time.Time) ([]Slot, error)
}

// Tx is the set of operations that must run inside a transaction.
type Tx interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error)

	// LockSlot loads the slot and holds a row lock on it until the transaction ends.
	LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error)

	// ExistingSlotStarts returns the subset of starts that already have a slot for the provider.
	ExistingSlotStarts(ctx context.Context, providerID uuid.UUID, starts []time.Time) ([]time.Time, error)
	// InsertSlots writes all slots in one statement and returns those actually created.
	InsertSlots(ctx context.Context, slots []Slot) ([]Slot, error)

	HasActiveAppointment(ctx context.Context, slotID uuid.UUID, now time.Time) (bool, error)
	InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error)

	// ConfirmAppointment sets confirmed=true only if the appointment is unconfirmed and
	// still active at now. It returns ErrAppointmentNotFound when no row matched.
	ConfirmAppointment(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
