package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConfirmReservation turns an unexpired hold into a confirmed appointment.
// The state check and the write are one conditional update; a miss is classified
// afterwards by re-reading the row inside the same transaction. Concurrent confirmations
// queue on the row, and every one after the first finds it already confirmed.
func (s *Service) ConfirmReservation(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		now := s.clock.Now()

		_, err := tx.ConfirmAppointment(ctx, id, now)
		if errors.Is(err, ErrAppointmentNotFound) {
			appt, getErr := tx.GetAppointmentByID(ctx, id)
			if getErr != nil {
				return getErr
			}
			if appt.Confirmed {
				return ErrAlreadyConfirmed
			}
			return ErrExpired
		}
		if err != nil {
			return err
		}

		return s.recordEvent(ctx, tx, &id, EventAppointmentConfirmed, map[string]any{
			"confirmed_at": now,
		})
	})
	if err != nil {
		s.logOutcome("confirm_reservation", err, zap.Stringer("appointment_id", id))
		return nil, err
	}

	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		err = fmt.Errorf("reload appointment %s: %w", id, err)
		s.logOutcome("confirm_reservation", err, zap.Stringer("appointment_id", id))
		return nil, err
	}

	s.logger.Info("reservation confirmed", zap.Stringer("appointment_id", id))
	return detail, nil
}
