package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateAvailability cuts the provider's ranges into 15 minute slots and stores the
// ones that do not exist yet. Misaligned or past ranges are skipped, not rejected.
// Only newly created slots are returned.
func (s *Service) CreateAvailability(ctx context.Context, providerID uuid.UUID, ranges []TimeRange) ([]Slot, error) {
	var created []Slot

	err := s.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetProviderByID(ctx, providerID); err != nil {
			return err
		}

		candidates := GenerateSlots(providerID, ranges, s.clock.Now())
		if len(candidates) == 0 {
			return nil
		}

		starts := make([]time.Time, len(candidates))
		for i, c := range candidates {
			starts[i] = c.StartTime
		}
		existing, err := tx.ExistingSlotStarts(ctx, providerID, starts)
		if err != nil {
			return fmt.Errorf("load existing slots: %w", err)
		}

		taken := make(map[int64]struct{}, len(existing))
		for _, t := range existing {
			taken[t.UnixNano()] = struct{}{}
		}
		fresh := candidates[:0]
		for _, c := range candidates {
			if _, ok := taken[c.StartTime.UnixNano()]; ok {
				continue
			}
			fresh = append(fresh, c)
		}
		if len(fresh) == 0 {
			return nil
		}

		inserted, err := tx.InsertSlots(ctx, fresh)
		if err != nil {
			return fmt.Errorf("insert slots: %w", err)
		}
		created = inserted

		return s.recordEvent(ctx, tx, nil, EventSlotsCreated, map[string]any{
			"provider_id": providerID.String(),
			"count":       len(inserted),
		})
	})
	if err != nil {
		s.logOutcome("create_availability", err, zap.Stringer("provider_id", providerID))
		return nil, err
	}

	s.logger.Info("availability created",
		zap.Stringer("provider_id", providerID),
		zap.Int("ranges", len(ranges)),
		zap.Int("slots", len(created)),
	)
	if created == nil {
		created = []Slot{}
	}
	return created, nil
}

// GenerateSlots returns the candidate slots for ranges at now, without consulting the
// store. A range contributes nothing if either bound is misaligned or it ended before
// now. The walk over a range stops at the first start that is not after now, so a
// range that has already begun yields nothing. A start emitted by an earlier range is
// not emitted again.
func GenerateSlots(providerID uuid.UUID, ranges []TimeRange, now time.Time) []Slot {
	var out []Slot
	seen := make(map[int64]struct{})

	for _, r := range ranges {
		if !IsAligned(r.Start) || !IsAligned(r.End) || r.End.Before(now) {
			continue
		}

		start := r.Start.UTC()
		end := r.End.UTC()
		for cursor := start; end.Sub(cursor) >= SlotLength && cursor.After(now); cursor = cursor.Add(SlotLength) {
			key := cursor.UnixNano()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			out = append(out, Slot{
				ID:         uuid.New(),
				ProviderID: providerID,
				StartTime:  cursor,
				EndTime:    cursor.Add(SlotLength),
			})
		}
	}

	return out
}

// IsAligned reports whether t falls on a quarter hour with no seconds.
func IsAligned(t time.Time) bool {
	return t.Minute()%15 == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
