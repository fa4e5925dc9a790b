package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/weili-projects/reservation-api/internal/redis"
)

// MakeReservation places a hold on a slot for a client.
//
// The slot row is locked for the whole transaction, so the active appointment check
// and the insert cannot interleave with another reservation of the same slot, in this
// process or any other. The Redis slot lock only thins out contention before the
// transaction starts; when it cannot be taken the reservation proceeds without it.
func (s *Service) MakeReservation(ctx context.Context, slotID, clientID uuid.UUID) (*AppointmentDetail, error) {
	var created *Appointment

	reserve := func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
			slot, err := tx.LockSlot(ctx, slotID)
			if err != nil {
				return err
			}
			client, err := tx.GetClientByID(ctx, clientID)
			if err != nil {
				return err
			}

			now := s.clock.Now()
			if slot.StartTime.Before(now.Add(AdvanceNotice)) {
				return ErrTooLate
			}

			active, err := tx.HasActiveAppointment(ctx, slot.ID, now)
			if err != nil {
				return fmt.Errorf("check active appointment: %w", err)
			}
			if active {
				return ErrSlotUnavailable
			}

			appt, err := tx.InsertAppointment(ctx, Appointment{
				ID:              uuid.New(),
				SlotID:          slot.ID,
				ClientID:        client.ID,
				ReservationTime: now,
			})
			if err != nil {
				return err
			}
			created = appt

			return s.recordEvent(ctx, tx, &appt.ID, EventAppointmentCreated, map[string]any{
				"slot_id":         slot.ID.String(),
				"client_id":       client.ID.String(),
				"expiration_time": appt.ExpirationTime(),
			})
		})
	}

	err := s.locker.WithSlotLock(ctx, slotID, reserve)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.logger.Warn("slot lock unavailable, relying on row lock",
			zap.Stringer("slot_id", slotID), zap.Error(err))
		err = reserve(ctx)
	}
	if err != nil {
		s.logOutcome("make_reservation", err,
			zap.Stringer("slot_id", slotID), zap.Stringer("client_id", clientID))
		return nil, err
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, created.ID)
	if err != nil {
		err = fmt.Errorf("reload appointment %s: %w", created.ID, err)
		s.logOutcome("make_reservation", err, zap.Stringer("appointment_id", created.ID))
		return nil, err
	}

	s.logger.Info("reservation created",
		zap.Stringer("appointment_id", detail.ID),
		zap.Stringer("slot_id", slotID),
		zap.Stringer("client_id", clientID),
		zap.Time("expiration_time", detail.ExpirationTime()),
	)
	return detail, nil
}
