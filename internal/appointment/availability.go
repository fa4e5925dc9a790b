package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ListAvailability returns the provider's future slots that have no active appointment.
// Slots closer than 24 hours are still listed even though they can no longer be booked.
func (s *Service) ListAvailability(ctx context.Context, providerID uuid.UUID) ([]Slot, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		s.logOutcome("list_availability", err, zap.Stringer("provider_id", providerID))
		return nil, err
	}

	slots, err := s.repo.ListAvailableSlots(ctx, providerID, s.clock.Now())
	if err != nil {
		err = fmt.Errorf("list available slots: %w", err)
		s.logOutcome("list_availability", err, zap.Stringer("provider_id", providerID))
		return nil, err
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}
